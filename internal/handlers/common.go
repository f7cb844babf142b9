package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/librarian/internal/circulation"
	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/editing"
	"github.com/lehigh-university-libraries/librarian/internal/enrichment"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/quotes"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

// Resolver looks up book metadata by ISBN.
type Resolver interface {
	Resolve(ctx context.Context, isbn string) (enrichment.Result, error)
}

// QuoteSource returns today's quote.
type QuoteSource interface {
	Today(ctx context.Context) (models.Quote, error)
}

type Handler struct {
	books    *collection.Collection
	sessions *editing.Service
	resolver Resolver
	quotes   QuoteSource
}

// New creates the API handler. quotes may be nil when no quote API key is
// configured.
func New(books *collection.Collection, sessions *editing.Service, resolver Resolver, quotes QuoteSource) *Handler {
	return &Handler{
		books:    books,
		sessions: sessions,
		resolver: resolver,
		quotes:   quotes,
	}
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errorBody struct {
	Error  string                  `json:"error"`
	Code   string                  `json:"code,omitempty"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Debug(message, "status", code)
	}
	h.writeJSONStatus(w, code, errorBody{Error: message})
}

// writeFailure maps a domain error onto an HTTP status.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var (
		verrs    validation.Errors
		conflict *circulation.StateConflict
	)
	switch {
	case errors.As(err, &verrs):
		h.writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: "validation failed", Code: "ValidationError", Fields: verrs})
	case errors.As(err, &conflict):
		h.writeJSONStatus(w, http.StatusConflict, errorBody{Error: conflict.Error(), Code: string(conflict.Code)})
	case errors.Is(err, circulation.ErrUnknownPerson):
		h.writeJSONStatus(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "UnknownPerson"})
	case errors.Is(err, collection.ErrBookNotFound),
		errors.Is(err, collection.ErrPersonNotFound),
		errors.Is(err, editing.ErrSessionNotFound):
		h.writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, enrichment.ErrInvalidISBN):
		h.writeJSONStatus(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "InvalidFormat"})
	case errors.Is(err, editing.ErrDiscarded):
		h.writeError(w, err.Error(), http.StatusConflict)
	case collection.IsRemoteFailure(err):
		h.writeError(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, quotes.ErrNoAPIKey):
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, "request cancelled", http.StatusGatewayTimeout)
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, fmt.Sprintf("Invalid id %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// bookView is a book with its borrower resolved.
type bookView struct {
	models.Book
	Borrower *models.Person `json:"borrower,omitempty"`
}

type personLookup interface {
	Person(id int64) (models.Person, bool)
}

func viewOf(b models.Book, persons personLookup) bookView {
	v := bookView{Book: b}
	if b.BorrowedBy != nil {
		if p, ok := persons.Person(*b.BorrowedBy); ok {
			v.Borrower = &p
		}
	}
	return v
}
