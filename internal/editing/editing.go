// Package editing tracks book forms while they are open. It runs ISBN
// lookups for a form in two phases, fetch then merge, and drops results that
// arrive after the form was closed or a newer lookup started.
package editing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/enrichment"
	"github.com/lehigh-university-libraries/librarian/internal/metrics"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/storage"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

var (
	ErrSessionNotFound = errors.New("edit session not found")
	// ErrDiscarded is returned by Fetch when the session was closed, or a
	// newer lookup was started, while the lookup was in flight.
	ErrDiscarded = errors.New("lookup result discarded")
)

// Trigger says who asked for a lookup.
type Trigger int

const (
	// TriggerAuto is a lookup the UI starts on its own. It is skipped for
	// existing books and for an ISBN already looked up in this session, and
	// it never replaces hand-edited fields.
	TriggerAuto Trigger = iota
	// TriggerExplicit is a lookup the user asked for. It replaces every
	// fetched field except owner and ISBN.
	TriggerExplicit
)

func (t Trigger) String() string {
	if t == TriggerExplicit {
		return "explicit"
	}
	return "auto"
}

// Books is the part of the collection an edit session writes to.
type Books interface {
	Book(id int64) (models.Book, bool)
	AddBook(ctx context.Context, in models.BookInput) (models.Book, error)
	UpdateBook(ctx context.Context, id int64, patch models.BookPatch) (models.Book, error)
}

// Resolver looks up metadata by ISBN.
type Resolver interface {
	Resolve(ctx context.Context, isbn string) (enrichment.Result, error)
}

// FetchOutcome describes what a Fetch did.
type FetchOutcome struct {
	Result  enrichment.Result `json:"result"`
	Skipped bool              `json:"skipped"`
	Applied []models.Field    `json:"applied"`
}

type Service struct {
	store    *storage.SessionStore
	books    Books
	resolver Resolver
	now      func() time.Time
}

func NewService(store *storage.SessionStore, books Books, resolver Resolver) *Service {
	return &Service{
		store:    store,
		books:    books,
		resolver: resolver,
		now:      time.Now,
	}
}

// Open starts a session. With a nil bookID the session drafts a new book,
// optionally seeded with an ISBN.
func (s *Service) Open(bookID *int64, isbn string) (*models.EditSession, error) {
	now := s.now()
	session := &models.EditSession{
		ID:        uuid.NewString(),
		Dirty:     models.NewFieldSet(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if bookID != nil {
		book, ok := s.books.Book(*bookID)
		if !ok {
			return nil, fmt.Errorf("book %d: %w", *bookID, collection.ErrBookNotFound)
		}
		id := book.ID
		session.BookID = &id
		session.Draft = book.Input()
	} else if isbn != "" {
		session.Draft.ISBN = validation.NormalizeISBN(isbn)
		session.Dirty.Add(models.FieldISBN)
	}

	s.store.Set(session.ID, session)
	slog.Info("Edit session opened", "session_id", session.ID, "book_id", bookID)
	return session, nil
}

// Get returns the session with the given id.
func (s *Service) Get(id string) (*models.EditSession, error) {
	session, ok := s.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns all open sessions.
func (s *Service) List() []*models.EditSession {
	return s.store.GetAll()
}

// Edit records hand edits to the draft. Every field present in the patch
// becomes dirty. Changing the ISBN supersedes any lookup in flight.
func (s *Service) Edit(id string, patch models.BookPatch) (*models.EditSession, error) {
	session, ok, err := s.store.Update(id, func(es *models.EditSession) error {
		before := es.Draft.ISBN
		es.Draft = patch.Apply(es.Draft)
		es.Draft.ISBN = validation.NormalizeISBN(es.Draft.ISBN)
		for _, f := range patchedFields(patch) {
			es.Dirty.Add(f)
		}
		if es.Draft.ISBN != before {
			es.Generation++
			es.Fetching = false
			es.Suggestion = nil
		}
		es.UpdatedAt = s.now()
		return nil
	})
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, err
}

// Fetch looks up the draft's ISBN and merges the result into the draft.
// The lookup runs without holding the session, so the session may be edited
// or closed meanwhile; in that case the result is dropped and ErrDiscarded
// returned.
func (s *Service) Fetch(ctx context.Context, id string, trigger Trigger) (*models.EditSession, FetchOutcome, error) {
	var (
		gen     uint64
		isbn    string
		skipped bool
	)
	session, ok, err := s.store.Update(id, func(es *models.EditSession) error {
		if err := checkISBN(es.Draft.ISBN); err != nil {
			return err
		}
		if trigger == TriggerAuto && (es.BookID != nil || es.FetchedISBN == es.Draft.ISBN) {
			skipped = true
			return nil
		}
		es.Generation++
		es.Fetching = true
		gen, isbn = es.Generation, es.Draft.ISBN
		return nil
	})
	if !ok {
		return nil, FetchOutcome{}, ErrSessionNotFound
	}
	if err != nil {
		return session, FetchOutcome{}, err
	}
	if skipped {
		slog.Debug("Skipping automatic lookup", "session_id", id, "isbn", session.Draft.ISBN)
		return session, FetchOutcome{Skipped: true}, nil
	}

	result, lookupErr := s.resolver.Resolve(ctx, isbn)

	var applied []models.Field
	session, ok, err = s.store.Update(id, func(es *models.EditSession) error {
		if es.Generation != gen {
			return ErrDiscarded
		}
		es.Fetching = false
		es.UpdatedAt = s.now()
		if lookupErr != nil {
			return nil
		}
		es.FetchedISBN = isbn
		if result.Found {
			applied = merge(es, *result.Suggestion, trigger)
		}
		return nil
	})
	if !ok || errors.Is(err, ErrDiscarded) {
		metrics.DiscardedSuggestions.Inc()
		slog.Info("Discarding lookup result for stale session", "session_id", id, "isbn", isbn)
		return nil, FetchOutcome{}, ErrDiscarded
	}
	if lookupErr != nil {
		return session, FetchOutcome{}, lookupErr
	}
	return session, FetchOutcome{Result: result, Applied: applied}, nil
}

// Start runs Fetch in the background and returns at once. The lookup is
// detached from ctx's cancellation; closing the session abandons it.
func (s *Service) Start(ctx context.Context, id string, trigger Trigger) error {
	if _, ok := s.store.Get(id); !ok {
		return ErrSessionNotFound
	}
	go func() {
		if _, _, err := s.Fetch(context.WithoutCancel(ctx), id, trigger); err != nil && !errors.Is(err, ErrDiscarded) {
			slog.Warn("Background lookup failed", "session_id", id, "error", err)
		}
	}()
	return nil
}

// Close abandons a session. Lookups still in flight for it are discarded
// when they complete.
func (s *Service) Close(id string) error {
	if _, ok := s.store.Get(id); !ok {
		return ErrSessionNotFound
	}
	s.store.Delete(id)
	slog.Info("Edit session closed", "session_id", id)
	return nil
}

// Commit saves the draft through the collection and closes the session.
// On failure the session stays open so the user can fix the draft.
func (s *Service) Commit(ctx context.Context, id string) (models.Book, error) {
	session, ok := s.store.Get(id)
	if !ok {
		return models.Book{}, ErrSessionNotFound
	}

	var (
		book models.Book
		err  error
	)
	if session.BookID == nil {
		book, err = s.books.AddBook(ctx, session.Draft)
	} else {
		book, err = s.books.UpdateBook(ctx, *session.BookID, fullPatch(session.Draft))
	}
	if err != nil {
		return models.Book{}, err
	}

	s.store.Delete(id)
	slog.Info("Edit session committed", "session_id", id, "book_id", book.ID)
	return book, nil
}

func checkISBN(isbn string) error {
	if isbn == "" || !validation.ValidISBN(isbn) {
		return validation.Errors{{
			Field:   string(models.FieldISBN),
			Kind:    validation.InvalidFormat,
			Message: "a valid 10 or 13 digit ISBN is required to look up a book",
		}}
	}
	return nil
}

// merge applies a suggestion according to the trigger and returns the
// fields it changed. Automatic lookups keep hand-edited fields and park the
// values they skipped in the session's pending suggestion.
func merge(es *models.EditSession, sug enrichment.Suggestion, trigger Trigger) []models.Field {
	keep := models.NewFieldSet()
	if trigger == TriggerAuto {
		keep = es.Dirty
	}

	before := es.Draft
	es.Draft = enrichment.ApplySuggestion(es.Draft, sug, keep)
	es.Provenance = sug.Provenance
	es.Authors = sug.Authors
	es.Publisher = sug.Publisher
	es.Suggestion = nil

	var applied, skipped []models.Field
	for _, f := range enrichment.FetchedFields {
		switch {
		case fieldValue(es.Draft, f) != fieldValue(before, f):
			applied = append(applied, f)
			// Values written by a lookup are not hand edits.
			delete(es.Dirty, f)
		case keep.Has(f) && fieldValue(enrichment.ApplySuggestion(before, sug, nil), f) != fieldValue(before, f):
			skipped = append(skipped, f)
		}
	}
	if len(skipped) > 0 {
		es.Suggestion = &models.Pending{
			Provenance: sug.Provenance,
			Values:     enrichment.ApplySuggestion(models.BookInput{}, sug, nil),
			Skipped:    skipped,
		}
	}
	return applied
}

func fieldValue(in models.BookInput, f models.Field) string {
	switch f {
	case models.FieldTitle:
		return in.Title
	case models.FieldSummary:
		return in.Summary
	case models.FieldCoverURL:
		return in.CoverURL
	case models.FieldPublicationYear:
		if in.PublicationYear == nil {
			return ""
		}
		return fmt.Sprint(*in.PublicationYear)
	case models.FieldLanguage:
		return in.Language
	case models.FieldISBN:
		return in.ISBN
	case models.FieldOwner:
		return in.Owner
	case models.FieldSourceURL:
		return in.SourceURL
	}
	return ""
}

func patchedFields(p models.BookPatch) []models.Field {
	var out []models.Field
	add := func(set bool, f models.Field) {
		if set {
			out = append(out, f)
		}
	}
	add(p.Title != nil, models.FieldTitle)
	add(p.Summary != nil, models.FieldSummary)
	add(p.CoverURL != nil, models.FieldCoverURL)
	add(p.PublicationYear != nil || p.ClearYear, models.FieldPublicationYear)
	add(p.Language != nil, models.FieldLanguage)
	add(p.ISBN != nil, models.FieldISBN)
	add(p.Owner != nil, models.FieldOwner)
	add(p.SourceURL != nil, models.FieldSourceURL)
	return out
}

// fullPatch turns a draft into a patch that sets every descriptive field.
func fullPatch(in models.BookInput) models.BookPatch {
	return models.BookPatch{
		Title:           &in.Title,
		Summary:         &in.Summary,
		CoverURL:        &in.CoverURL,
		PublicationYear: in.PublicationYear,
		ClearYear:       in.PublicationYear == nil,
		Language:        &in.Language,
		ISBN:            &in.ISBN,
		Owner:           &in.Owner,
		SourceURL:       &in.SourceURL,
	}
}
