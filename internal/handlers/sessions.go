package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/librarian/internal/editing"
	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// sessionView adds the hand-edited field list, which the session keeps as a
// set.
type sessionView struct {
	*models.EditSession
	DirtyFields []models.Field `json:"dirty_fields"`
}

func viewOfSession(s *models.EditSession) sessionView {
	return sessionView{EditSession: s, DirtyFields: s.DirtyFields()}
}

func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = viewOfSession(s)
	}
	h.writeJSON(w, views)
}

type openSessionRequest struct {
	BookID *int64 `json:"book_id,omitempty"`
	ISBN   string `json:"isbn,omitempty"`
}

func (h *Handler) HandleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	session, err := h.sessions.Open(req.BookID, req.ISBN)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, viewOfSession(session))
}

func (h *Handler) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOfSession(session))
}

func (h *Handler) HandleEditSession(w http.ResponseWriter, r *http.Request) {
	var patch models.BookPatch
	if !h.decode(w, r, &patch) {
		return
	}
	session, err := h.sessions.Edit(r.PathValue("id"), patch)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOfSession(session))
}

func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.PathValue("id")); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFetchSession serves POST /api/sessions/{id}/fetch?trigger=explicit&async=true.
// An async fetch returns 202 at once; the client polls the session.
func (h *Handler) HandleFetchSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	trigger := editing.TriggerAuto
	if r.URL.Query().Get("trigger") == editing.TriggerExplicit.String() {
		trigger = editing.TriggerExplicit
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := h.sessions.Start(context.WithoutCancel(r.Context()), id, trigger); err != nil {
			h.writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	session, outcome, err := h.sessions.Fetch(r.Context(), id, trigger)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, struct {
		Session sessionView          `json:"session"`
		Outcome editing.FetchOutcome `json:"outcome"`
	}{viewOfSession(session), outcome})
}

func (h *Handler) HandleCommitSession(w http.ResponseWriter, r *http.Request) {
	book, err := h.sessions.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, viewOf(book, h.books))
}
