package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "librarian.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestBooksAddAndListWithDatabase(t *testing.T) {
	cfg := writeConfig(t, fmt.Sprintf("database:\n  path: %s\n", filepath.Join(t.TempDir(), "books.db")))

	out, err := run(t, "", "--config", cfg, "persons", "add", "--name", "Ada Lovelace", "-o", "json")
	require.NoError(t, err)
	var persons []models.Person
	require.NoError(t, json.Unmarshal([]byte(out), &persons))
	require.Len(t, persons, 1)

	out, err = run(t, "", "--config", cfg, "books", "add", "--title", "Dune", "--isbn", "0-306-40615-2", "-o", "json")
	require.NoError(t, err)
	var book models.Book
	require.NoError(t, json.Unmarshal([]byte(out), &book))
	assert.Equal(t, "0306406152", book.ISBN)
	assert.Equal(t, models.StatusAvailable, book.Status)

	_, err = run(t, "", "--config", cfg, "books", "borrow", fmt.Sprint(book.ID), fmt.Sprint(persons[0].ID), "--date", "2025-03-01")
	require.NoError(t, err)

	_, err = run(t, "", "--config", cfg, "books", "delete", fmt.Sprint(book.ID))
	assert.Error(t, err, "a borrowed book cannot be deleted")

	out, err = run(t, "", "--config", cfg, "persons", "list", "-o", "json")
	require.NoError(t, err)
	var rows []personRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Borrowed)
	assert.Equal(t, []string{fmt.Sprintf("#%d Dune", book.ID)}, rows[0].Books)

	out, err = run(t, "", "--config", cfg, "persons", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Borrowed")
	assert.Contains(t, out, fmt.Sprintf("#%d Dune", book.ID))

	out, err = run(t, "", "--config", cfg, "books", "list", "--status", "borrowed", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "title: Dune")
	assert.Contains(t, out, "borrowed_by: Ada Lovelace")
	assert.Contains(t, out, "2025-03-01")

	_, err = run(t, "", "--config", cfg, "books", "return", fmt.Sprint(book.ID))
	require.NoError(t, err)

	out, err = run(t, "", "--config", cfg, "persons", "list", "-o", "json")
	require.NoError(t, err)
	rows = nil
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].Borrowed)

	out, err = run(t, "", "--config", cfg, "books", "history", fmt.Sprint(book.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Lovelace")
	assert.Contains(t, out, "2025-03-01")
}

func TestBooksAddRejectsInvalidInput(t *testing.T) {
	t.Setenv("LIBRARIAN_STANDALONE", "true")
	_, err := run(t, "", "books", "add", "--summary", "no title")
	assert.Error(t, err)

	_, err = run(t, "", "books", "borrow", "1", "x")
	assert.Error(t, err)
}

func TestBooksAddFetchKeepsHandEdits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ISBN:9780306406157": {"title": "Signals and Systems", "publish_date": "1983", "languages": [{"key": "/languages/eng"}]}}`)
	}))
	defer srv.Close()

	cfg := writeConfig(t, fmt.Sprintf(`database:
  standalone: true
enrichment:
  sources: [openlibrary]
  open_library_url: %s
`, srv.URL))

	out, err := run(t, "", "--config", cfg, "books", "add", "--isbn", "9780306406157", "--language", "German", "--fetch", "-o", "json")
	require.NoError(t, err)
	var book models.Book
	require.NoError(t, json.Unmarshal([]byte(out), &book))
	assert.Equal(t, "Signals and Systems", book.Title)
	assert.Equal(t, "German", book.Language)
	require.NotNil(t, book.PublicationYear)
	assert.Equal(t, 1983, *book.PublicationYear)

	out, err = run(t, "", "--config", cfg, "isbn", "lookup", "978-0-306-40615-7", "9781111111111")
	require.NoError(t, err)
	assert.Contains(t, out, "9780306406157: Signals and Systems (1983) [ENG] via Open Library")
	assert.Contains(t, out, "9781111111111: not found")
}

func TestSearchReadsQueriesFromStdin(t *testing.T) {
	t.Setenv("LIBRARIAN_STANDALONE", "true")
	out, err := run(t, "du\ndune\n", "books", "search")
	require.NoError(t, err)
	assert.Contains(t, out, `0 match(es) for "dune"`)
	assert.NotContains(t, out, `for "du"`)
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "correct horse\n", "hash-password")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
}

func TestUnknownFormat(t *testing.T) {
	t.Setenv("LIBRARIAN_STANDALONE", "true")
	_, err := run(t, "", "persons", "list", "-o", "xml")
	assert.Error(t, err)
}
