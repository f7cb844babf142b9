package handlers

import (
	"net/http"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// personView is a person with the books they hold right now.
type personView struct {
	models.Person
	BorrowedCount int           `json:"borrowed_count"`
	BorrowedBooks []models.Book `json:"borrowed_books"`
}

func personViewOf(p models.Person, snap collection.Snapshot) personView {
	held := snap.BorrowedBy(p.ID)
	return personView{Person: p, BorrowedCount: len(held), BorrowedBooks: held}
}

func (h *Handler) HandleListPersons(w http.ResponseWriter, r *http.Request) {
	snap := h.books.Snapshot()
	views := make([]personView, len(snap.Persons))
	for i, p := range snap.Persons {
		views[i] = personViewOf(p, snap)
	}
	h.writeJSON(w, views)
}

func (h *Handler) HandleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var in models.PersonInput
	if !h.decode(w, r, &in) {
		return
	}
	person, err := h.books.AddPerson(r.Context(), in)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, personViewOf(person, h.books.Snapshot()))
}

func (h *Handler) HandleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	snap := h.books.Snapshot()
	person, found := snap.Person(id)
	if !found {
		h.writeFailure(w, collection.ErrPersonNotFound)
		return
	}
	h.writeJSON(w, personViewOf(person, snap))
}

func (h *Handler) HandleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var patch models.PersonPatch
	if !h.decode(w, r, &patch) {
		return
	}
	person, err := h.books.UpdatePerson(r.Context(), id, patch)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeJSON(w, personViewOf(person, h.books.Snapshot()))
}

func (h *Handler) HandleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.books.RemovePerson(r.Context(), id); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
