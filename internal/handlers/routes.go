package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/librarian/internal/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the server mux. Everything under /api/ requires basic auth
// when provider is non-nil.
func (h *Handler) Routes(provider auth.Provider) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/books", h.HandleListBooks)
	api.HandleFunc("POST /api/books", h.HandleCreateBook)
	api.HandleFunc("GET /api/books/{id}", h.HandleGetBook)
	api.HandleFunc("PATCH /api/books/{id}", h.HandleUpdateBook)
	api.HandleFunc("DELETE /api/books/{id}", h.HandleDeleteBook)
	api.HandleFunc("POST /api/books/{id}/borrow", h.HandleBorrow)
	api.HandleFunc("POST /api/books/{id}/return", h.HandleReturn)
	api.HandleFunc("GET /api/books/{id}/loans", h.HandleBookLoans)
	api.HandleFunc("GET /api/loans", h.HandleLoans)

	api.HandleFunc("GET /api/persons", h.HandleListPersons)
	api.HandleFunc("POST /api/persons", h.HandleCreatePerson)
	api.HandleFunc("GET /api/persons/{id}", h.HandleGetPerson)
	api.HandleFunc("PATCH /api/persons/{id}", h.HandleUpdatePerson)
	api.HandleFunc("DELETE /api/persons/{id}", h.HandleDeletePerson)

	api.HandleFunc("GET /api/isbn/{isbn}", h.HandleISBNLookup)
	api.HandleFunc("GET /api/quote", h.HandleQuote)
	api.HandleFunc("POST /api/reload", h.HandleReload)

	api.HandleFunc("GET /api/sessions", h.HandleSessions)
	api.HandleFunc("POST /api/sessions", h.HandleOpenSession)
	api.HandleFunc("GET /api/sessions/{id}", h.HandleSessionDetail)
	api.HandleFunc("PATCH /api/sessions/{id}", h.HandleEditSession)
	api.HandleFunc("DELETE /api/sessions/{id}", h.HandleCloseSession)
	api.HandleFunc("POST /api/sessions/{id}/fetch", h.HandleFetchSession)
	api.HandleFunc("POST /api/sessions/{id}/commit", h.HandleCommitSession)

	var protected http.Handler = api
	if provider != nil {
		protected = auth.Middleware(provider, api)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", protected)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}
