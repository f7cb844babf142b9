package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/models"
)

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	content := `{"title": "Clean Code", "isbn": "9780132350884", "publication_year": 2008, "owner": "CS"}

{"title": "Refactoring", "language": "EN"}
{"title": "Working Effectively with Legacy Code"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := NewLoader(path).Load(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Clean Code", records[0].Title)
	require.NotNil(t, records[0].PublicationYear)
	assert.Equal(t, int32(2008), *records[0].PublicationYear)
	assert.Nil(t, records[1].PublicationYear)

	limited, err := NewLoader(path).Load(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLoadJSONLBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"title\": \"ok\"}\nnot json\n"), 0644))
	_, err := NewLoader(path).Load(0)
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "books.json")
	content := `[
  {"title": "Clean Code", "isbn": "9780132350884", "publication_year": 2008},
  {"title": "Refactoring"},
  {"title": "Working Effectively with Legacy Code"}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	records, err := NewLoader(path).Load(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Clean Code", records[0].Title)
	require.NotNil(t, records[0].PublicationYear)
	assert.Equal(t, int32(2008), *records[0].PublicationYear)

	limited, err := NewLoader(path).Load(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	lines := filepath.Join(dir, "lines.json")
	require.NoError(t, os.WriteFile(lines, []byte("{\"title\": \"Dune\"}\n{\"title\": \"Emma\"}\n"), 0644))
	records, err = NewLoader(lines).Load(0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"title": "ok"}, {"title": 3}]`), 0644))
	_, err = NewLoader(bad).Load(0)
	assert.ErrorContains(t, err, "record 2")
}

func TestLoadUnsupported(t *testing.T) {
	_, err := NewLoader("books.csv").Load(0)
	assert.Error(t, err)
}

func TestParquetRoundTrip(t *testing.T) {
	year := 2008
	by := int64(3)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	books := []models.Book{
		{ID: 2, Title: "Clean Code", ISBN: "9780132350884", PublicationYear: &year, Status: models.StatusBorrowed, BorrowedBy: &by, BorrowedDate: &day},
		{ID: 1, Title: "Refactoring", Status: models.StatusAvailable},
	}

	path := filepath.Join(t.TempDir(), "books.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteBooks(f, books))
	require.NoError(t, f.Close())

	records, err := NewLoader(path).Load(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Clean Code", records[0].Title)
	assert.Equal(t, "Borrowed", records[0].Status)
	assert.Equal(t, "2025-01-02", records[0].BorrowedDate)
	require.NotNil(t, records[0].BorrowedBy)
	assert.Equal(t, int64(3), *records[0].BorrowedBy)
	require.NotNil(t, records[0].PublicationYear)
	assert.Equal(t, int32(2008), *records[0].PublicationYear)
	assert.Nil(t, records[1].PublicationYear)
	assert.Nil(t, records[1].BorrowedBy)

	in := records[0].Input()
	assert.Equal(t, 2008, *in.PublicationYear)
}

func TestWriteLoans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loans.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	ret := time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC)
	loans := []models.LoanRecord{
		{ID: 1, BookID: 2, PersonID: 3, BorrowedDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), ReturnedDate: &ret},
	}
	require.NoError(t, WriteLoans(f, loans))
	require.NoError(t, f.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestImport(t *testing.T) {
	books := collection.New(nil)
	year := int32(2008)
	records := []BookRecord{
		{Title: "Clean Code", PublicationYear: &year, Status: "Borrowed"},
		{Title: "   "},
		{Title: "Refactoring"},
	}

	summary, err := Import(context.Background(), books, records)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Imported)
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 1, summary.Failed[0].Index)

	for _, b := range books.Books() {
		assert.Equal(t, models.StatusAvailable, b.Status, "imported books always start available")
	}
}
