package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/search"
)

// HandleListBooks serves GET /api/books?q=&status=&sort=&desc=
func (h *Handler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := search.ParseStatus(q.Get("status"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	key, err := search.ParseSortKey(q.Get("sort"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	desc, _ := strconv.ParseBool(q.Get("desc"))

	snap := h.books.Snapshot()
	books := search.Filter(snap.Books, snap, search.Criteria{Query: q.Get("q"), Status: status})
	books = search.Sort(books, key, desc)

	views := make([]bookView, len(books))
	for i, b := range books {
		views[i] = viewOf(b, snap)
	}
	h.writeJSON(w, views)
}

func (h *Handler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in models.BookInput
	if !h.decode(w, r, &in) {
		return
	}
	book, err := h.books.AddBook(r.Context(), in)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, viewOf(book, h.books))
}

func (h *Handler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	book, found := h.books.Book(id)
	if !found {
		h.writeFailure(w, collection.ErrBookNotFound)
		return
	}
	h.writeJSON(w, viewOf(book, h.books))
}

func (h *Handler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var patch models.BookPatch
	if !h.decode(w, r, &patch) {
		return
	}
	book, err := h.books.UpdateBook(r.Context(), id, patch)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOf(book, h.books))
}

func (h *Handler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.books.RemoveBook(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type borrowRequest struct {
	PersonID int64 `json:"person_id"`
	// Date is YYYY-MM-DD; today when empty.
	Date string `json:"date,omitempty"`
}

func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req borrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	date := time.Now()
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			h.writeError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = d
	}

	book, err := h.books.Borrow(r.Context(), id, req.PersonID, date)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOf(book, h.books))
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	book, err := h.books.ReturnBook(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOf(book, h.books))
}

// HandleBookLoans serves the borrowing history of one book.
func (h *Handler) HandleBookLoans(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, h.books.Loans(id))
}

// HandleLoans serves the whole borrowing history.
func (h *Handler) HandleLoans(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.books.Loans(0))
}

// HandleReload drops the cache and reads everything from the store again.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.books.Load(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
