package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/librarian/internal/quotes"
)

// HandleISBNLookup serves GET /api/isbn/{isbn}. A miss is 200 with
// found=false.
func (h *Handler) HandleISBNLookup(w http.ResponseWriter, r *http.Request) {
	result, err := h.resolver.Resolve(r.Context(), r.PathValue("isbn"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, result)
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		h.writeFailure(w, quotes.ErrNoAPIKey)
		return
	}
	q, err := h.quotes.Today(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, q)
}
