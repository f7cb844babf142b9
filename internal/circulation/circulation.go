// Package circulation holds the borrowing state machine. Every function is a
// pure decision over model values: it either returns the complete new state
// or an error and no state at all.
package circulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// ConflictCode identifies a rejected circulation transition.
type ConflictCode string

const (
	CodeAlreadyBorrowed       ConflictCode = "AlreadyBorrowed"
	CodeNotBorrowed           ConflictCode = "NotBorrowed"
	CodeBookCurrentlyBorrowed ConflictCode = "BookCurrentlyBorrowed"
	CodePersonHasActiveLoans  ConflictCode = "PersonHasActiveLoans"
)

// StateConflict is returned when a transition's precondition does not hold.
type StateConflict struct {
	Code     ConflictCode
	BookID   int64
	PersonID int64
	Message  string
}

func (e *StateConflict) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// Is matches conflicts by code, so errors.Is(err, ErrAlreadyBorrowed) works
// for any conflict carrying that code.
func (e *StateConflict) Is(target error) bool {
	t, ok := target.(*StateConflict)
	return ok && t.Code == e.Code
}

var (
	ErrAlreadyBorrowed       = &StateConflict{Code: CodeAlreadyBorrowed}
	ErrNotBorrowed           = &StateConflict{Code: CodeNotBorrowed}
	ErrBookCurrentlyBorrowed = &StateConflict{Code: CodeBookCurrentlyBorrowed}
	ErrPersonHasActiveLoans  = &StateConflict{Code: CodePersonHasActiveLoans}

	// ErrUnknownPerson is returned when a borrower id does not resolve.
	ErrUnknownPerson = errors.New("UnknownPerson: borrower does not exist")
)

// Borrow lends an available book to person. person is nil when the id did
// not resolve. The returned loan has no ID yet; the store assigns it.
func Borrow(book models.Book, personID int64, person *models.Person, date time.Time) (models.Book, models.LoanRecord, error) {
	if book.IsBorrowed() {
		return models.Book{}, models.LoanRecord{}, &StateConflict{
			Code:    CodeAlreadyBorrowed,
			BookID:  book.ID,
			Message: fmt.Sprintf("book %d is already borrowed", book.ID),
		}
	}
	if person == nil || person.ID != personID {
		return models.Book{}, models.LoanRecord{}, fmt.Errorf("%w: person %d", ErrUnknownPerson, personID)
	}

	day := truncateDay(date)
	pid := person.ID
	book.Status = models.StatusBorrowed
	book.BorrowedBy = &pid
	book.BorrowedDate = &day

	loan := models.LoanRecord{
		BookID:       book.ID,
		PersonID:     pid,
		BorrowedDate: day,
	}
	return book, loan, nil
}

// Return closes the active loan of a borrowed book. active may be nil when
// the history has no open record (for example, data imported before loans
// were tracked); the book is still returned.
func Return(book models.Book, active *models.LoanRecord, now time.Time) (models.Book, *models.LoanRecord, error) {
	if !book.IsBorrowed() {
		return models.Book{}, nil, &StateConflict{
			Code:    CodeNotBorrowed,
			BookID:  book.ID,
			Message: fmt.Sprintf("book %d is not borrowed", book.ID),
		}
	}

	book.Status = models.StatusAvailable
	book.BorrowedBy = nil
	book.BorrowedDate = nil

	if active == nil {
		return book, nil, nil
	}
	closed := *active
	day := truncateDay(now)
	closed.ReturnedDate = &day
	return book, &closed, nil
}

// CanDeleteBook refuses to delete a book that is out on loan.
func CanDeleteBook(book models.Book) error {
	if book.IsBorrowed() {
		return &StateConflict{
			Code:    CodeBookCurrentlyBorrowed,
			BookID:  book.ID,
			Message: "cannot delete a borrowed book, return it first",
		}
	}
	return nil
}

// CanDeletePerson refuses to delete a person who still holds any book.
func CanDeletePerson(personID int64, books []models.Book) error {
	held := 0
	for _, b := range books {
		if b.IsBorrowed() && b.BorrowedBy != nil && *b.BorrowedBy == personID {
			held++
		}
	}
	if held > 0 {
		return &StateConflict{
			Code:     CodePersonHasActiveLoans,
			PersonID: personID,
			Message:  fmt.Sprintf("person %d has %d borrowed book(s)", personID, held),
		}
	}
	return nil
}

// CheckInvariant verifies Status = Borrowed iff the borrower fields are set
// and the borrower exists.
func CheckInvariant(book models.Book, personExists func(int64) bool) error {
	hasFields := book.BorrowedDate != nil && book.BorrowedBy != nil
	switch {
	case book.IsBorrowed() && !hasFields:
		return fmt.Errorf("book %d is borrowed without borrower fields", book.ID)
	case book.IsBorrowed() && !personExists(*book.BorrowedBy):
		return fmt.Errorf("book %d is borrowed by unknown person %d", book.ID, *book.BorrowedBy)
	case !book.IsBorrowed() && (book.BorrowedDate != nil || book.BorrowedBy != nil):
		return fmt.Errorf("book %d is available but has borrower fields", book.ID)
	case !book.Status.Valid():
		return fmt.Errorf("book %d has unknown status %q", book.ID, book.Status)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
