package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/librarian/internal/auth"
	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/editing"
	"github.com/lehigh-university-libraries/librarian/internal/enrichment"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/storage"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

const knownISBN = "9780306406157"

var fixedDate = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, isbn string) (enrichment.Result, error) {
	norm := validation.NormalizeISBN(isbn)
	if !validation.ValidISBN(norm) {
		return enrichment.Result{}, enrichment.ErrInvalidISBN
	}
	if norm != knownISBN {
		return enrichment.Result{Found: false}, nil
	}
	return enrichment.Result{Found: true, Suggestion: &enrichment.Suggestion{
		Metadata:   enrichment.Metadata{Title: "Signals and Systems", Language: "EN"},
		ISBN:       norm,
		Provenance: "Open Library",
	}}, nil
}

type fakeQuotes struct{}

func (fakeQuotes) Today(context.Context) (models.Quote, error) {
	return models.Quote{Quote: "A room without books is like a body without a soul.", Author: "Cicero", Date: "2025-03-14"}, nil
}

func newTestHandler(t *testing.T, quotes QuoteSource) (*Handler, *collection.Collection) {
	t.Helper()
	books := collection.New(nil)
	require.NoError(t, books.Load(context.Background()))
	sessions := editing.NewService(storage.New(), books, fakeResolver{})
	return New(books, sessions, fakeResolver{}, quotes), books
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthcheckAndMetrics(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, routes, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookLifecycle(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodPost, "/api/persons", models.PersonInput{Name: "Ada Lovelace", Email: "ada@example.org"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	person := decodeBody[models.Person](t, rec)

	rec = do(t, routes, http.MethodPost, "/api/books", models.BookInput{Title: "Dune", ISBN: "0-306-40615-2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	book := decodeBody[bookView](t, rec)
	assert.Equal(t, "0306406152", book.ISBN)
	assert.Equal(t, models.StatusAvailable, book.Status)

	rec = do(t, routes, http.MethodPost, "/api/books/1/borrow", map[string]any{"person_id": person.ID, "date": "2025-03-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	borrowed := decodeBody[bookView](t, rec)
	assert.Equal(t, models.StatusBorrowed, borrowed.Status)
	require.NotNil(t, borrowed.Borrower)
	assert.Equal(t, "Ada Lovelace", borrowed.Borrower.Name)

	rec = do(t, routes, http.MethodPost, "/api/books/1/borrow", map[string]any{"person_id": person.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "AlreadyBorrowed", decodeBody[errorBody](t, rec).Code)

	rec = do(t, routes, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "BookCurrentlyBorrowed", decodeBody[errorBody](t, rec).Code)

	rec = do(t, routes, http.MethodDelete, "/api/persons/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PersonHasActiveLoans", decodeBody[errorBody](t, rec).Code)

	rec = do(t, routes, http.MethodPost, "/api/books/1/return", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := decodeBody[bookView](t, rec)
	assert.Equal(t, models.StatusAvailable, returned.Status)
	assert.Nil(t, returned.BorrowedBy)
	assert.Nil(t, returned.Borrower)

	rec = do(t, routes, http.MethodPost, "/api/books/1/return", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NotBorrowed", decodeBody[errorBody](t, rec).Code)

	rec = do(t, routes, http.MethodGet, "/api/books/1/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans := decodeBody[[]models.LoanRecord](t, rec)
	require.Len(t, loans, 1)
	assert.False(t, loans[0].Active())

	rec = do(t, routes, http.MethodDelete, "/api/books/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, routes, http.MethodGet, "/api/books/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookErrors(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodPost, "/api/books", models.BookInput{Title: "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "ValidationError", body.Code)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "title", body.Fields[0].Field)

	rec = do(t, routes, http.MethodPost, "/api/books", map[string]any{"title": "X", "status": "Borrowed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "status is not an input field")

	rec = do(t, routes, http.MethodPost, "/api/books", models.BookInput{Title: "Emma"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/books/1/borrow", map[string]any{"person_id": 42})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/books/1/borrow", map[string]any{"person_id": 1, "date": "March 1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodGet, "/api/books/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodPatch, "/api/books/99", models.BookPatch{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, routes, http.MethodGet, "/api/books?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBooksFiltersAndSorts(t *testing.T) {
	h, books := newTestHandler(t, nil)
	routes := h.Routes(nil)
	ctx := context.Background()

	ada, err := books.AddPerson(ctx, models.PersonInput{Name: "Ada Lovelace"})
	require.NoError(t, err)
	for _, title := range []string{"Middlemarch", "Beloved", "Ulysses"} {
		_, err := books.AddBook(ctx, models.BookInput{Title: title})
		require.NoError(t, err)
	}
	_, err = books.Borrow(ctx, 2, ada.ID, fixedDate)
	require.NoError(t, err)

	titles := func(path string) []string {
		rec := do(t, routes, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []string
		for _, b := range decodeBody[[]bookView](t, rec) {
			out = append(out, b.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Ulysses", "Beloved", "Middlemarch"}, titles("/api/books"))
	assert.Equal(t, []string{"Beloved"}, titles("/api/books?q=lovelace"))
	assert.Equal(t, []string{"Ulysses", "Middlemarch"}, titles("/api/books?status=available"))
	assert.Equal(t, []string{"Beloved", "Middlemarch", "Ulysses"}, titles("/api/books?sort=title"))
	assert.Equal(t, []string{"Ulysses", "Middlemarch", "Beloved"}, titles("/api/books?sort=title&desc=true"))
}

func TestPersonEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodPost, "/api/persons", models.PersonInput{Name: "Grace Hopper", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/persons", models.PersonInput{Name: "Grace Hopper"})
	require.Equal(t, http.StatusCreated, rec.Code)

	dept := "Computing"
	rec = do(t, routes, http.MethodPatch, "/api/persons/1", models.PersonPatch{Department: &dept})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Computing", decodeBody[models.Person](t, rec).Department)

	rec = do(t, routes, http.MethodGet, "/api/persons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Person](t, rec), 1)

	rec = do(t, routes, http.MethodDelete, "/api/persons/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, routes, http.MethodGet, "/api/persons/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersonShowsBorrowedBooks(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	for _, name := range []string{"Ada Lovelace", "Ada"} {
		rec := do(t, routes, http.MethodPost, "/api/persons", models.PersonInput{Name: name})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, 0, decodeBody[personView](t, rec).BorrowedCount)
	}
	for _, title := range []string{"Dune", "Emma"} {
		rec := do(t, routes, http.MethodPost, "/api/books", models.BookInput{Title: title})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec := do(t, routes, http.MethodPost, "/api/books/2/borrow", map[string]any{"person_id": 1, "date": "2025-03-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, routes, http.MethodGet, "/api/persons/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lovelace := decodeBody[personView](t, rec)
	assert.Equal(t, "Ada Lovelace", lovelace.Name)
	assert.Equal(t, 1, lovelace.BorrowedCount)
	require.Len(t, lovelace.BorrowedBooks, 1)
	assert.Equal(t, "Emma", lovelace.BorrowedBooks[0].Title)

	rec = do(t, routes, http.MethodGet, "/api/persons/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ada := decodeBody[personView](t, rec)
	assert.Equal(t, 0, ada.BorrowedCount)
	assert.Empty(t, ada.BorrowedBooks)

	rec = do(t, routes, http.MethodGet, "/api/persons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	counts := map[string]int{}
	for _, p := range decodeBody[[]personView](t, rec) {
		counts[p.Name] = p.BorrowedCount
	}
	assert.Equal(t, map[string]int{"Ada Lovelace": 1, "Ada": 0}, counts)

	rec = do(t, routes, http.MethodPost, "/api/books/2/return", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, routes, http.MethodGet, "/api/persons/1", nil)
	assert.Equal(t, 0, decodeBody[personView](t, rec).BorrowedCount)
}

func TestISBNLookup(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodGet, "/api/isbn/978-0-306-40615-7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[enrichment.Result](t, rec)
	require.True(t, result.Found)
	assert.Equal(t, "Signals and Systems", result.Suggestion.Title)
	assert.Equal(t, "Open Library", result.Suggestion.Provenance)

	rec = do(t, routes, http.MethodGet, "/api/isbn/9781111111111", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[enrichment.Result](t, rec).Found)

	rec = do(t, routes, http.MethodGet, "/api/isbn/12345", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidFormat", decodeBody[errorBody](t, rec).Code)
}

func TestSessionFetchAndCommit(t *testing.T) {
	h, books := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodPost, "/api/sessions", map[string]any{"isbn": knownISBN})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decodeBody[models.EditSession](t, rec)

	rec = do(t, routes, http.MethodPost, "/api/sessions/"+session.ID+"/fetch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fetched := decodeBody[struct {
		Session models.EditSession   `json:"session"`
		Outcome editing.FetchOutcome `json:"outcome"`
	}](t, rec)
	assert.True(t, fetched.Outcome.Result.Found)
	assert.Equal(t, "Signals and Systems", fetched.Session.Draft.Title)
	assert.Equal(t, "Open Library", fetched.Session.Provenance)

	rec = do(t, routes, http.MethodPost, "/api/sessions/"+session.ID+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	committed := decodeBody[bookView](t, rec)
	assert.Equal(t, knownISBN, committed.ISBN)

	stored, ok := books.Book(committed.ID)
	require.True(t, ok)
	assert.Equal(t, "Signals and Systems", stored.Title)

	rec = do(t, routes, http.MethodGet, "/api/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionEditAndClose(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes(nil)

	rec := do(t, routes, http.MethodPost, "/api/sessions", map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeBody[models.EditSession](t, rec)

	title := "Notes from Underground"
	rec = do(t, routes, http.MethodPatch, "/api/sessions/"+session.ID, models.BookPatch{Title: &title})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[struct {
		Draft       models.BookInput `json:"draft"`
		DirtyFields []models.Field   `json:"dirty_fields"`
	}](t, rec)
	assert.Equal(t, title, view.Draft.Title)
	assert.Equal(t, []models.Field{models.FieldTitle}, view.DirtyFields)

	rec = do(t, routes, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]sessionView](t, rec), 1)

	rec = do(t, routes, http.MethodDelete, "/api/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/sessions/"+session.ID+"/commit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/sessions", map[string]any{"book_id": 7})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := do(t, h.Routes(nil), http.MethodGet, "/api/quote", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h, _ = newTestHandler(t, fakeQuotes{})
	rec = do(t, h.Routes(nil), http.MethodGet, "/api/quote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cicero", decodeBody[models.Quote](t, rec).Author)
}

func TestRoutesRequireAuth(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	provider, err := auth.NewStaticProvider([]auth.Account{{Email: "desk@example.org", PasswordHash: hash}})
	require.NoError(t, err)

	h, _ := newTestHandler(t, nil)
	routes := h.Routes(provider)

	rec := do(t, routes, http.MethodGet, "/api/books", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.SetBasicAuth("desk@example.org", "wrong")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/books", nil)
	req.SetBasicAuth("desk@example.org", "correct horse")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, routes, http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "healthcheck stays public")
}
