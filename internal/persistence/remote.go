// Package persistence defines the remote data store the collection
// synchronizes with, and a SQLite implementation of it.
package persistence

import (
	"context"
	"errors"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("record not found")

// Remote is the durable owner of books, persons and loan history. Every
// mutating call returns the record as stored, which callers treat as
// authoritative. Implementations assign identifiers.
type Remote interface {
	ListBooks(ctx context.Context) ([]models.Book, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	ListLoans(ctx context.Context) ([]models.LoanRecord, error)

	InsertBook(ctx context.Context, book models.Book) (models.Book, error)
	UpdateBook(ctx context.Context, book models.Book) (models.Book, error)
	DeleteBook(ctx context.Context, id int64) error

	InsertPerson(ctx context.Context, person models.Person) (models.Person, error)
	UpdatePerson(ctx context.Context, person models.Person) (models.Person, error)
	DeletePerson(ctx context.Context, id int64) error

	// Borrow stores the borrowed book and appends the loan atomically.
	Borrow(ctx context.Context, book models.Book, loan models.LoanRecord) (models.Book, models.LoanRecord, error)
	// Return stores the returned book and closes the loan atomically. loan
	// may be nil when no open history record exists.
	Return(ctx context.Context, book models.Book, loan *models.LoanRecord) (models.Book, *models.LoanRecord, error)
}
