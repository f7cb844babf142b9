package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/models"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// bookRow is how a book is printed in json and yaml output.
type bookRow struct {
	ID              int64  `json:"id" yaml:"id"`
	Title           string `json:"title" yaml:"title"`
	ISBN            string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Owner           string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Language        string `json:"language,omitempty" yaml:"language,omitempty"`
	PublicationYear *int   `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`
	Status          string `json:"status" yaml:"status"`
	BorrowedBy      string `json:"borrowed_by,omitempty" yaml:"borrowed_by,omitempty"`
	BorrowedDate    string `json:"borrowed_date,omitempty" yaml:"borrowed_date,omitempty"`
}

func toBookRow(b models.Book, persons collection.Snapshot) bookRow {
	row := bookRow{
		ID:              b.ID,
		Title:           b.Title,
		ISBN:            b.ISBN,
		Owner:           b.Owner,
		Language:        b.Language,
		PublicationYear: b.PublicationYear,
		Status:          string(b.Status),
	}
	if b.BorrowedBy != nil {
		row.BorrowedBy = fmt.Sprintf("#%d", *b.BorrowedBy)
		if p, ok := persons.Person(*b.BorrowedBy); ok {
			row.BorrowedBy = p.Name
		}
	}
	if b.BorrowedDate != nil {
		row.BorrowedDate = b.BorrowedDate.Format("2006-01-02")
	}
	return row
}

func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case formatTable, "":
		return false, nil
	}
	return true, fmt.Errorf("unknown output format %q", format)
}

func printBooks(w io.Writer, format string, books []models.Book, snap collection.Snapshot) error {
	rows := make([]bookRow, len(books))
	for i, b := range books {
		rows[i] = toBookRow(b, snap)
	}
	if done, err := printStructured(w, format, rows); done {
		return err
	}

	fmt.Fprintf(w, "%-5s %-40s %-14s %-10s %-20s %s\n", "ID", "Title", "ISBN", "Status", "Borrower", "Since")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range rows {
		fmt.Fprintf(w, "%-5d %-40s %-14s %-10s %-20s %s\n",
			r.ID, truncate(r.Title, 40), r.ISBN, r.Status, truncate(r.BorrowedBy, 20), r.BorrowedDate)
	}
	return nil
}

func printBook(w io.Writer, format string, b models.Book, snap collection.Snapshot) error {
	row := toBookRow(b, snap)
	if done, err := printStructured(w, format, b); done {
		return err
	}
	fmt.Fprintf(w, "ID:        %d\n", row.ID)
	fmt.Fprintf(w, "Title:     %s\n", row.Title)
	fmt.Fprintf(w, "ISBN:      %s\n", row.ISBN)
	fmt.Fprintf(w, "Owner:     %s\n", row.Owner)
	fmt.Fprintf(w, "Language:  %s\n", row.Language)
	if row.PublicationYear != nil {
		fmt.Fprintf(w, "Published: %d\n", *row.PublicationYear)
	}
	fmt.Fprintf(w, "Status:    %s\n", row.Status)
	if row.BorrowedBy != "" {
		fmt.Fprintf(w, "Borrower:  %s (since %s)\n", row.BorrowedBy, row.BorrowedDate)
	}
	if b.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", b.Summary)
	}
	return nil
}

// personRow is how a person is printed in json and yaml output.
type personRow struct {
	ID         int64    `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Email      string   `json:"email,omitempty" yaml:"email,omitempty"`
	Department string   `json:"department,omitempty" yaml:"department,omitempty"`
	Borrowed   int      `json:"borrowed_count" yaml:"borrowed_count"`
	Books      []string `json:"borrowed_books,omitempty" yaml:"borrowed_books,omitempty"`
}

func printPersons(w io.Writer, format string, persons []models.Person, snap collection.Snapshot) error {
	rows := make([]personRow, len(persons))
	for i, p := range persons {
		rows[i] = personRow{ID: p.ID, Name: p.Name, Email: p.Email, Department: p.Department}
		for _, b := range snap.BorrowedBy(p.ID) {
			rows[i].Books = append(rows[i].Books, fmt.Sprintf("#%d %s", b.ID, b.Title))
		}
		rows[i].Borrowed = len(rows[i].Books)
	}
	if done, err := printStructured(w, format, rows); done {
		return err
	}
	fmt.Fprintf(w, "%-5s %-30s %-30s %-20s %s\n", "ID", "Name", "Email", "Department", "Borrowed")
	fmt.Fprintln(w, strings.Repeat("-", 95))
	for _, r := range rows {
		fmt.Fprintf(w, "%-5d %-30s %-30s %-20s %d\n", r.ID, truncate(r.Name, 30), truncate(r.Email, 30), truncate(r.Department, 20), r.Borrowed)
		for _, b := range r.Books {
			fmt.Fprintf(w, "      %s\n", b)
		}
	}
	return nil
}

func printLoans(w io.Writer, format string, loans []models.LoanRecord, snap collection.Snapshot) error {
	if done, err := printStructured(w, format, loans); done {
		return err
	}
	fmt.Fprintf(w, "%-5s %-6s %-25s %-12s %s\n", "Loan", "Book", "Borrower", "Borrowed", "Returned")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, l := range loans {
		name := fmt.Sprintf("#%d", l.PersonID)
		if p, ok := snap.Person(l.PersonID); ok {
			name = p.Name
		}
		returned := "-"
		if l.ReturnedDate != nil {
			returned = l.ReturnedDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%-5d %-6d %-25s %-12s %s\n", l.ID, l.BookID, truncate(name, 25), l.BorrowedDate.Format("2006-01-02"), returned)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
