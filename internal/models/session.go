package models

import (
	"sort"
	"time"
)

// Field names an editable descriptive field of a book.
type Field string

const (
	FieldTitle           Field = "title"
	FieldSummary         Field = "summary"
	FieldCoverURL        Field = "cover_url"
	FieldPublicationYear Field = "publication_year"
	FieldLanguage        Field = "language"
	FieldISBN            Field = "isbn"
	FieldOwner           Field = "owner"
	FieldSourceURL       Field = "source_url"
)

// FieldSet is a set of book fields.
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from the given fields.
func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Has reports whether f is in the set. A nil set is empty.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Add inserts f.
func (s FieldSet) Add(f Field) { s[f] = struct{}{} }

// Sorted returns the members in lexical order.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EditSession represents a book form open in the UI. It tracks which fields
// the user changed by hand so enrichment results never silently replace them.
type EditSession struct {
	ID          string    `json:"id"`
	BookID      *int64    `json:"book_id,omitempty"`
	Draft       BookInput `json:"draft"`
	Dirty       FieldSet  `json:"-"`
	Suggestion  *Pending  `json:"suggestion,omitempty"`
	Generation  uint64    `json:"generation"`
	Provenance  string    `json:"provenance,omitempty"`
	Authors     string    `json:"authors,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	FetchedISBN string    `json:"fetched_isbn,omitempty"`
	Fetching    bool      `json:"fetching"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pending holds enrichment values that were not applied because the user
// had already edited those fields. The UI can offer them for explicit use.
type Pending struct {
	Provenance string    `json:"provenance"`
	Values     BookInput `json:"values"`
	Skipped    []Field   `json:"skipped"`
}

// DirtyFields lists hand-edited fields, for JSON responses.
func (s *EditSession) DirtyFields() []Field {
	return s.Dirty.Sorted()
}

// Clone returns a deep copy of s.
func (s *EditSession) Clone() *EditSession {
	c := *s
	if s.BookID != nil {
		id := *s.BookID
		c.BookID = &id
	}
	if s.Draft.PublicationYear != nil {
		y := *s.Draft.PublicationYear
		c.Draft.PublicationYear = &y
	}
	c.Dirty = make(FieldSet, len(s.Dirty))
	for f := range s.Dirty {
		c.Dirty[f] = struct{}{}
	}
	return &c
}
