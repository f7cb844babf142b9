package models

import "time"

// Status is the circulation state of a book.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusBorrowed  Status = "Borrowed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusBorrowed
}

// Book represents a catalogued book and its current circulation state
type Book struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	CoverURL        string     `json:"cover_url"`
	PublicationYear *int       `json:"publication_year,omitempty"`
	Language        string     `json:"language"`
	ISBN            string     `json:"isbn"`
	Owner           string     `json:"owner"`
	SourceURL       string     `json:"source_url"`
	Status          Status     `json:"status"`
	BorrowedDate    *time.Time `json:"borrowed_date,omitempty"`
	BorrowedBy      *int64     `json:"borrowed_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsBorrowed reports whether the book is currently out on loan.
func (b Book) IsBorrowed() bool { return b.Status == StatusBorrowed }

// Person represents a borrower
type Person struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// LoanRecord is one entry of a book's borrowing history. ReturnedDate is nil
// while the loan is active.
type LoanRecord struct {
	ID           int64      `json:"id"`
	BookID       int64      `json:"book_id"`
	PersonID     int64      `json:"person_id"`
	BorrowedDate time.Time  `json:"borrowed_date"`
	ReturnedDate *time.Time `json:"returned_date,omitempty"`
}

// Active reports whether the loan has not been closed yet.
func (l LoanRecord) Active() bool { return l.ReturnedDate == nil }

// BookInput carries the descriptive fields of a book for add operations.
type BookInput struct {
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	CoverURL        string `json:"cover_url"`
	PublicationYear *int   `json:"publication_year,omitempty"`
	Language        string `json:"language"`
	ISBN            string `json:"isbn"`
	Owner           string `json:"owner"`
	SourceURL       string `json:"source_url"`
}

// Input returns the descriptive fields of b.
func (b Book) Input() BookInput {
	return BookInput{
		Title:           b.Title,
		Summary:         b.Summary,
		CoverURL:        b.CoverURL,
		PublicationYear: b.PublicationYear,
		Language:        b.Language,
		ISBN:            b.ISBN,
		Owner:           b.Owner,
		SourceURL:       b.SourceURL,
	}
}

// WithInput returns a copy of b with its descriptive fields replaced by in.
// Circulation fields are left alone.
func (b Book) WithInput(in BookInput) Book {
	b.Title = in.Title
	b.Summary = in.Summary
	b.CoverURL = in.CoverURL
	b.PublicationYear = in.PublicationYear
	b.Language = in.Language
	b.ISBN = in.ISBN
	b.Owner = in.Owner
	b.SourceURL = in.SourceURL
	return b
}

// BookPatch is a partial update. Nil fields are left unchanged. Status and
// borrower fields are deliberately absent: they only change through borrow
// and return.
type BookPatch struct {
	Title           *string `json:"title,omitempty"`
	Summary         *string `json:"summary,omitempty"`
	CoverURL        *string `json:"cover_url,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
	ClearYear       bool    `json:"clear_publication_year,omitempty"`
	Language        *string `json:"language,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	Owner           *string `json:"owner,omitempty"`
	SourceURL       *string `json:"source_url,omitempty"`
}

// Apply returns in with the patch applied.
func (p BookPatch) Apply(in BookInput) BookInput {
	setString(&in.Title, p.Title)
	setString(&in.Summary, p.Summary)
	setString(&in.CoverURL, p.CoverURL)
	setString(&in.Language, p.Language)
	setString(&in.ISBN, p.ISBN)
	setString(&in.Owner, p.Owner)
	setString(&in.SourceURL, p.SourceURL)
	if p.ClearYear {
		in.PublicationYear = nil
	} else if p.PublicationYear != nil {
		y := *p.PublicationYear
		in.PublicationYear = &y
	}
	return in
}

// PersonInput carries the fields of a person for add operations.
type PersonInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// PersonPatch is a partial update of a person.
type PersonPatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Department *string `json:"department,omitempty"`
}

// Apply returns in with the patch applied.
func (p PersonPatch) Apply(in PersonInput) PersonInput {
	setString(&in.Name, p.Name)
	setString(&in.Email, p.Email)
	setString(&in.Department, p.Department)
	return in
}

// Input returns the editable fields of p.
func (p Person) Input() PersonInput {
	return PersonInput{Name: p.Name, Email: p.Email, Department: p.Department}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
