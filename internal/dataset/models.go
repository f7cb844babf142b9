package dataset

import (
	"time"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// BookRecord is one book row in a parquet or JSONL file. Imports read only
// the descriptive columns; exports fill every column.
type BookRecord struct {
	ID              int64  `json:"id,omitempty" parquet:"id"`
	Title           string `json:"title" parquet:"title"`
	Summary         string `json:"summary" parquet:"summary"`
	CoverURL        string `json:"cover_url" parquet:"cover_url"`
	PublicationYear *int32 `json:"publication_year,omitempty" parquet:"publication_year,optional"`
	Language        string `json:"language" parquet:"language"`
	ISBN            string `json:"isbn" parquet:"isbn"`
	Owner           string `json:"owner" parquet:"owner"`
	SourceURL       string `json:"source_url" parquet:"source_url"`
	Status          string `json:"status,omitempty" parquet:"status"`
	BorrowedBy      *int64 `json:"borrowed_by,omitempty" parquet:"borrowed_by,optional"`
	BorrowedDate    string `json:"borrowed_date,omitempty" parquet:"borrowed_date"`
	CreatedAt       string `json:"created_at,omitempty" parquet:"created_at"`
}

// LoanRecord is one borrowing history row.
type LoanRecord struct {
	ID           int64  `json:"id" parquet:"id"`
	BookID       int64  `json:"book_id" parquet:"book_id"`
	PersonID     int64  `json:"person_id" parquet:"person_id"`
	BorrowedDate string `json:"borrowed_date" parquet:"borrowed_date"`
	ReturnedDate string `json:"returned_date,omitempty" parquet:"returned_date"`
}

// Input returns the descriptive fields of the record.
func (r BookRecord) Input() models.BookInput {
	in := models.BookInput{
		Title:     r.Title,
		Summary:   r.Summary,
		CoverURL:  r.CoverURL,
		Language:  r.Language,
		ISBN:      r.ISBN,
		Owner:     r.Owner,
		SourceURL: r.SourceURL,
	}
	if r.PublicationYear != nil {
		y := int(*r.PublicationYear)
		in.PublicationYear = &y
	}
	return in
}

// FromBook converts a stored book to a record.
func FromBook(b models.Book) BookRecord {
	r := BookRecord{
		ID:        b.ID,
		Title:     b.Title,
		Summary:   b.Summary,
		CoverURL:  b.CoverURL,
		Language:  b.Language,
		ISBN:      b.ISBN,
		Owner:     b.Owner,
		SourceURL: b.SourceURL,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.PublicationYear != nil {
		y := int32(*b.PublicationYear)
		r.PublicationYear = &y
	}
	if b.BorrowedBy != nil {
		id := *b.BorrowedBy
		r.BorrowedBy = &id
	}
	if b.BorrowedDate != nil {
		r.BorrowedDate = b.BorrowedDate.Format(time.DateOnly)
	}
	return r
}

// FromLoan converts a loan to a record.
func FromLoan(l models.LoanRecord) LoanRecord {
	r := LoanRecord{
		ID:           l.ID,
		BookID:       l.BookID,
		PersonID:     l.PersonID,
		BorrowedDate: l.BorrowedDate.Format(time.DateOnly),
	}
	if l.ReturnedDate != nil {
		r.ReturnedDate = l.ReturnedDate.Format(time.DateOnly)
	}
	return r
}
