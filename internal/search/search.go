// Package search derives filtered and sorted views of the book list.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// StatusAll disables the status filter.
const StatusAll = "all"

// PersonLookup resolves borrower ids to persons.
type PersonLookup interface {
	Person(id int64) (models.Person, bool)
}

// Criteria selects books. An empty Status behaves like StatusAll.
type Criteria struct {
	Query  string
	Status string
}

// ParseStatus checks a status filter value from user input.
func ParseStatus(s string) (string, error) {
	switch {
	case s == "" || strings.EqualFold(s, StatusAll):
		return StatusAll, nil
	case strings.EqualFold(s, string(models.StatusAvailable)):
		return string(models.StatusAvailable), nil
	case strings.EqualFold(s, string(models.StatusBorrowed)):
		return string(models.StatusBorrowed), nil
	}
	return "", fmt.Errorf("unknown status filter %q", s)
}

// Filter returns the books matching c, in their original order. The query
// matches title, ISBN, or the name of the current borrower.
func Filter(books []models.Book, persons PersonLookup, c Criteria) []models.Book {
	q := strings.ToLower(strings.TrimSpace(c.Query))
	out := make([]models.Book, 0, len(books))
	for _, b := range books {
		if c.Status != "" && c.Status != StatusAll && string(b.Status) != c.Status {
			continue
		}
		if q != "" && !matches(b, persons, q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func matches(b models.Book, persons PersonLookup, q string) bool {
	if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.ISBN), q) {
		return true
	}
	if !b.IsBorrowed() || b.BorrowedBy == nil || persons == nil {
		return false
	}
	p, ok := persons.Person(*b.BorrowedBy)
	return ok && strings.Contains(strings.ToLower(p.Name), q)
}

// SortKey names a sortable column.
type SortKey string

const (
	SortNone   SortKey = ""
	SortTitle  SortKey = "title"
	SortStatus SortKey = "status"
	SortOwner  SortKey = "owner"
)

// ParseSortKey checks a sort key from user input.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(s)); k {
	case SortNone, SortTitle, SortStatus, SortOwner:
		return k, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// statusRank orders Available before Borrowed.
func statusRank(s models.Status) int {
	if s == models.StatusAvailable {
		return 0
	}
	return 1
}

// Sort returns a sorted copy of books. The sort is stable in both
// directions, so ties keep their prior relative order.
func Sort(books []models.Book, key SortKey, descending bool) []models.Book {
	out := make([]models.Book, len(books))
	copy(out, books)
	if key == SortNone {
		return out
	}

	cmp := func(a, b models.Book) int {
		switch key {
		case SortTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case SortStatus:
			return statusRank(a.Status) - statusRank(b.Status)
		case SortOwner:
			return strings.Compare(strings.ToLower(a.Owner), strings.ToLower(b.Owner))
		}
		return 0
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out
}
