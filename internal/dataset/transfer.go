package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// BookAdder adds one validated book.
type BookAdder interface {
	AddBook(ctx context.Context, in models.BookInput) (models.Book, error)
}

// Failure is a record that could not be imported.
type Failure struct {
	Index int    `json:"index" yaml:"index"`
	Title string `json:"title" yaml:"title"`
	Error string `json:"error" yaml:"error"`
}

// ImportSummary reports what Import did.
type ImportSummary struct {
	Imported int       `json:"imported" yaml:"imported"`
	Failed   []Failure `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// Import adds every record as a new Available book. Records that fail
// validation or persistence are reported and skipped; a cancelled context
// stops the import.
func Import(ctx context.Context, books BookAdder, records []BookRecord) (ImportSummary, error) {
	var summary ImportSummary
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		book, err := books.AddBook(ctx, r.Input())
		if err != nil {
			slog.Warn("Skipping record", "index", i, "title", r.Title, "error", err)
			summary.Failed = append(summary.Failed, Failure{Index: i, Title: r.Title, Error: err.Error()})
			continue
		}
		slog.Debug("Imported book", "index", i, "book_id", book.ID)
		summary.Imported++
	}
	slog.Info("Import finished", "imported", summary.Imported, "failed", len(summary.Failed))
	return summary, nil
}

// WriteBooks writes books as parquet to w.
func WriteBooks(w io.Writer, books []models.Book) error {
	rows := make([]BookRecord, len(books))
	for i, b := range books {
		rows[i] = FromBook(b)
	}
	return writeParquet(w, rows)
}

// WriteLoans writes loan history as parquet to w.
func WriteLoans(w io.Writer, loans []models.LoanRecord) error {
	rows := make([]LoanRecord, len(loans))
	for i, l := range loans {
		rows[i] = FromLoan(l)
	}
	return writeParquet(w, rows)
}

func writeParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
