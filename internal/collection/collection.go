// Package collection is the authoritative in-memory view of books, persons
// and loan history for a session. Every mutation goes through validation and
// the circulation rules, then through the remote store, and only the remote's
// confirmed result is applied to the cache.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/librarian/internal/circulation"
	"github.com/lehigh-university-libraries/librarian/internal/metrics"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/persistence"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

// Collection owns the cached books, persons and loans. It is safe for
// concurrent use; mutations are applied one at a time.
type Collection struct {
	remote    persistence.Remote
	validator *validation.Validator
	now       func() time.Time
	logger    *slog.Logger

	// writeMu serializes commands, including the remote round trip, so two
	// commands never interleave against the same cached state.
	writeMu sync.Mutex

	mu      sync.RWMutex
	books   map[int64]models.Book
	persons map[int64]models.Person
	loans   []models.LoanRecord
}

// Option configures a Collection.
type Option func(*Collection)

// WithClock sets the time source used for return dates and creation times.
func WithClock(now func() time.Time) Option {
	return func(c *Collection) { c.now = now }
}

// WithValidator replaces the default validator.
func WithValidator(v *validation.Validator) Option {
	return func(c *Collection) { c.validator = v }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// New creates an empty collection. A nil remote puts the collection in
// standalone mode: nothing is persisted and identifiers are assigned locally.
func New(remote persistence.Remote, opts ...Option) *Collection {
	c := &Collection{
		remote:  remote,
		now:     time.Now,
		logger:  slog.Default(),
		books:   make(map[int64]models.Book),
		persons: make(map[int64]models.Person),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = validation.New(validation.Options{Now: c.now})
	}
	return c
}

// Standalone reports whether the collection runs without a remote store.
func (c *Collection) Standalone() bool { return c.remote == nil }

// Validator returns the validator used by commands.
func (c *Collection) Validator() *validation.Validator { return c.validator }

// Load replaces the cache with the remote's current contents. On failure the
// previous cache is kept.
func (c *Collection) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.load(ctx)
}

func (c *Collection) load(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}

	var (
		books   []models.Book
		persons []models.Person
		loans   []models.LoanRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		books, err = c.remote.ListBooks(gctx)
		return err
	})
	g.Go(func() (err error) {
		persons, err = c.remote.ListPersons(gctx)
		return err
	})
	g.Go(func() (err error) {
		loans, err = c.remote.ListLoans(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return &RemoteFailure{Op: "load", Err: err}
	}

	bookMap := make(map[int64]models.Book, len(books))
	for _, b := range books {
		bookMap[b.ID] = b
	}
	personMap := make(map[int64]models.Person, len(persons))
	for _, p := range persons {
		personMap[p.ID] = p
	}

	c.mu.Lock()
	c.books = bookMap
	c.persons = personMap
	c.loans = loans
	c.mu.Unlock()

	c.logger.Debug("Collection loaded", "books", len(books), "persons", len(persons), "loans", len(loans))
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Books returns all books, newest first.
func (c *Collection) Books() []models.Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedBooks()
}

func (c *Collection) sortedBooks() []models.Book {
	out := make([]models.Book, 0, len(c.books))
	for _, b := range c.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// Book returns the cached book with the given id.
func (c *Collection) Book(id int64) (models.Book, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[id]
	return b, ok
}

// Persons returns all persons sorted by name.
func (c *Collection) Persons() []models.Person {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedPersons()
}

func (c *Collection) sortedPersons() []models.Person {
	out := make([]models.Person, 0, len(c.persons))
	for _, p := range c.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Person returns the cached person with the given id.
func (c *Collection) Person(id int64) (models.Person, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.persons[id]
	return p, ok
}

// Loans returns the borrowing history of one book, oldest first. A zero
// bookID returns the whole history.
func (c *Collection) Loans(bookID int64) []models.LoanRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.LoanRecord, 0)
	for _, l := range c.loans {
		if bookID == 0 || l.BookID == bookID {
			out = append(out, l)
		}
	}
	return out
}

// ActiveLoan returns the open loan of a book, if any.
func (c *Collection) ActiveLoan(bookID int64) (models.LoanRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l := c.activeLoan(bookID); l != nil {
		return *l, true
	}
	return models.LoanRecord{}, false
}

func (c *Collection) activeLoan(bookID int64) *models.LoanRecord {
	for i := range c.loans {
		if c.loans[i].BookID == bookID && c.loans[i].Active() {
			l := c.loans[i]
			return &l
		}
	}
	return nil
}

// Snapshot is a consistent copy of the books and persons at one instant.
type Snapshot struct {
	Books   []models.Book
	Persons []models.Person
	byID    map[int64]models.Person
}

// Person resolves a person id inside the snapshot.
func (s Snapshot) Person(id int64) (models.Person, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// BorrowedBy returns the books currently lent to a person, newest first.
func (s Snapshot) BorrowedBy(personID int64) []models.Book {
	out := make([]models.Book, 0)
	for _, b := range s.Books {
		if b.IsBorrowed() && b.BorrowedBy != nil && *b.BorrowedBy == personID {
			out = append(out, b)
		}
	}
	return out
}

// Snapshot returns books and persons read under one lock.
func (c *Collection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byID := make(map[int64]models.Person, len(c.persons))
	for id, p := range c.persons {
		byID[id] = p
	}
	return Snapshot{Books: c.sortedBooks(), Persons: c.sortedPersons(), byID: byID}
}

// ---------------------------------------------------------------------------
// Book commands
// ---------------------------------------------------------------------------

// AddBook validates and stores a new book. It starts Available with no
// borrower.
func (c *Collection) AddBook(ctx context.Context, in models.BookInput) (book models.Book, err error) {
	defer c.observe("add_book", time.Now(), &err)

	norm, err := c.validateBook(in)
	if err != nil {
		return models.Book{}, err
	}
	book = models.Book{}.WithInput(norm)
	book.Status = models.StatusAvailable
	book.CreatedAt = c.now().UTC()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.remote == nil {
		c.mu.RLock()
		book.ID = nextID(keys(c.books))
		c.mu.RUnlock()
	} else {
		stored, err := c.remote.InsertBook(ctx, book)
		if err != nil {
			return models.Book{}, c.remoteError(ctx, "insert_book", err)
		}
		book = stored
	}

	c.mu.Lock()
	c.books[book.ID] = book
	c.mu.Unlock()

	c.logger.Info("Book added", "book_id", book.ID, "title", book.Title)
	return book, nil
}

// UpdateBook applies a partial update to the descriptive fields of a book.
func (c *Collection) UpdateBook(ctx context.Context, id int64, patch models.BookPatch) (book models.Book, err error) {
	defer c.observe("update_book", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, ok := c.Book(id)
	if !ok {
		return models.Book{}, fmt.Errorf("book %d: %w", id, ErrBookNotFound)
	}
	norm, err := c.validateBook(patch.Apply(current.Input()))
	if err != nil {
		return models.Book{}, err
	}
	next := current.WithInput(norm)

	if c.remote != nil {
		stored, err := c.remote.UpdateBook(ctx, next)
		if err != nil {
			return models.Book{}, c.remoteError(ctx, "update_book", err)
		}
		next = stored
	}

	c.apply(ctx, func() { c.books[next.ID] = next }, next)
	c.logger.Info("Book updated", "book_id", next.ID)
	return next, nil
}

// RemoveBook deletes a book that is not out on loan.
func (c *Collection) RemoveBook(ctx context.Context, id int64) (err error) {
	defer c.observe("remove_book", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, ok := c.Book(id)
	if !ok {
		return fmt.Errorf("book %d: %w", id, ErrBookNotFound)
	}
	if err := circulation.CanDeleteBook(current); err != nil {
		return err
	}

	if c.remote != nil {
		if err := c.remote.DeleteBook(ctx, id); err != nil {
			return c.remoteError(ctx, "delete_book", err)
		}
	}

	c.mu.Lock()
	delete(c.books, id)
	c.mu.Unlock()

	c.logger.Info("Book deleted", "book_id", id)
	return nil
}

// ---------------------------------------------------------------------------
// Person commands
// ---------------------------------------------------------------------------

// AddPerson validates and stores a new person.
func (c *Collection) AddPerson(ctx context.Context, in models.PersonInput) (person models.Person, err error) {
	defer c.observe("add_person", time.Now(), &err)

	norm, errs := c.validator.ValidatePerson(in)
	if len(errs) > 0 {
		return models.Person{}, errs
	}
	person = models.Person{Name: norm.Name, Email: norm.Email, Department: norm.Department}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.remote == nil {
		c.mu.RLock()
		person.ID = nextID(keys(c.persons))
		c.mu.RUnlock()
	} else {
		stored, err := c.remote.InsertPerson(ctx, person)
		if err != nil {
			return models.Person{}, c.remoteError(ctx, "insert_person", err)
		}
		person = stored
	}

	c.mu.Lock()
	c.persons[person.ID] = person
	c.mu.Unlock()

	c.logger.Info("Person added", "person_id", person.ID, "name", person.Name)
	return person, nil
}

// UpdatePerson applies a partial update to a person.
func (c *Collection) UpdatePerson(ctx context.Context, id int64, patch models.PersonPatch) (person models.Person, err error) {
	defer c.observe("update_person", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, ok := c.Person(id)
	if !ok {
		return models.Person{}, fmt.Errorf("person %d: %w", id, ErrPersonNotFound)
	}
	norm, errs := c.validator.ValidatePerson(patch.Apply(current.Input()))
	if len(errs) > 0 {
		return models.Person{}, errs
	}
	next := models.Person{ID: id, Name: norm.Name, Email: norm.Email, Department: norm.Department}

	if c.remote != nil {
		stored, err := c.remote.UpdatePerson(ctx, next)
		if err != nil {
			return models.Person{}, c.remoteError(ctx, "update_person", err)
		}
		next = stored
	}

	c.mu.Lock()
	c.persons[next.ID] = next
	c.mu.Unlock()

	c.logger.Info("Person updated", "person_id", next.ID)
	return next, nil
}

// RemovePerson deletes a person who holds no books.
func (c *Collection) RemovePerson(ctx context.Context, id int64) (err error) {
	defer c.observe("remove_person", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, ok := c.Person(id); !ok {
		return fmt.Errorf("person %d: %w", id, ErrPersonNotFound)
	}
	if err := circulation.CanDeletePerson(id, c.Books()); err != nil {
		return err
	}

	if c.remote != nil {
		if err := c.remote.DeletePerson(ctx, id); err != nil {
			return c.remoteError(ctx, "delete_person", err)
		}
	}

	c.mu.Lock()
	delete(c.persons, id)
	c.mu.Unlock()

	c.logger.Info("Person deleted", "person_id", id)
	return nil
}

// ---------------------------------------------------------------------------
// Circulation commands
// ---------------------------------------------------------------------------

// Borrow lends a book to a person from date on and opens a loan record.
func (c *Collection) Borrow(ctx context.Context, bookID, personID int64, date time.Time) (book models.Book, err error) {
	defer c.observe("borrow", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, ok := c.Book(bookID)
	if !ok {
		return models.Book{}, fmt.Errorf("book %d: %w", bookID, ErrBookNotFound)
	}
	var borrower *models.Person
	if p, ok := c.Person(personID); ok {
		borrower = &p
	}
	next, loan, err := circulation.Borrow(current, personID, borrower, date)
	if err != nil {
		return models.Book{}, err
	}

	if c.remote == nil {
		c.mu.RLock()
		loan.ID = nextLoanID(c.loans)
		c.mu.RUnlock()
	} else {
		storedBook, storedLoan, err := c.remote.Borrow(ctx, next, loan)
		if err != nil {
			return models.Book{}, c.remoteError(ctx, "borrow", err)
		}
		next, loan = storedBook, storedLoan
	}

	c.apply(ctx, func() {
		c.books[next.ID] = next
		c.loans = append(c.loans, loan)
	}, next)

	c.logger.Info("Book borrowed", "book_id", bookID, "person_id", personID, "loan_id", loan.ID)
	return next, nil
}

// ReturnBook makes a borrowed book available again and closes its loan.
func (c *Collection) ReturnBook(ctx context.Context, bookID int64) (book models.Book, err error) {
	defer c.observe("return", time.Now(), &err)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, ok := c.Book(bookID)
	if !ok {
		return models.Book{}, fmt.Errorf("book %d: %w", bookID, ErrBookNotFound)
	}
	c.mu.RLock()
	active := c.activeLoan(bookID)
	c.mu.RUnlock()

	next, closed, err := circulation.Return(current, active, c.now())
	if err != nil {
		return models.Book{}, err
	}

	if c.remote != nil {
		storedBook, storedLoan, err := c.remote.Return(ctx, next, closed)
		if err != nil {
			return models.Book{}, c.remoteError(ctx, "return", err)
		}
		next, closed = storedBook, storedLoan
	}

	c.apply(ctx, func() {
		c.books[next.ID] = next
		if closed != nil {
			c.replaceLoan(*closed)
		}
	}, next)

	c.logger.Info("Book returned", "book_id", bookID)
	return next, nil
}

func (c *Collection) replaceLoan(l models.LoanRecord) {
	for i := range c.loans {
		if c.loans[i].ID == l.ID {
			c.loans[i] = l
			return
		}
	}
	c.loans = append(c.loans, l)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Collection) validateBook(in models.BookInput) (models.BookInput, error) {
	norm, errs := c.validator.ValidateBook(in)
	if blocking := errs.Blocking(); len(blocking) > 0 {
		return models.BookInput{}, blocking
	}
	if len(errs) > 0 {
		c.logger.Warn("Saving book with non-blocking validation errors", "errors", errs.Error())
	}
	return norm, nil
}

// apply commits a confirmed change to the cache, then checks the book
// invariant against the cached persons. A violation means the cache has
// drifted from the remote, so it is reloaded.
func (c *Collection) apply(ctx context.Context, change func(), book models.Book) {
	c.mu.Lock()
	change()
	_, known := c.persons[valueOr(book.BorrowedBy)]
	c.mu.Unlock()

	if err := circulation.CheckInvariant(book, func(int64) bool { return known }); err != nil {
		c.logger.Warn("Cache inconsistent with remote, reloading", "book_id", book.ID, "error", err)
		metrics.Reloads.WithLabelValues("invariant").Inc()
		if err := c.load(ctx); err != nil {
			c.logger.Error("Reload failed", "error", err)
		}
	}
}

// remoteError classifies an error from the remote. Conflicts and vanished
// records mean another session changed the data, so the cache is reloaded
// and the typed error is returned. Anything else is a RemoteFailure and the
// cache is left as it was.
func (c *Collection) remoteError(ctx context.Context, op string, err error) error {
	var conflict *circulation.StateConflict
	switch {
	case errors.As(err, &conflict), errors.Is(err, circulation.ErrUnknownPerson):
		c.reconcile(ctx, "conflict", op, err)
		return err
	case errors.Is(err, persistence.ErrNotFound):
		c.reconcile(ctx, "not_found", op, err)
		if op == "insert_person" || op == "update_person" || op == "delete_person" {
			return fmt.Errorf("%w: %v", ErrPersonNotFound, err)
		}
		return fmt.Errorf("%w: %v", ErrBookNotFound, err)
	default:
		c.logger.Error("Remote write failed", "op", op, "error", err)
		return &RemoteFailure{Op: op, Err: err}
	}
}

func (c *Collection) reconcile(ctx context.Context, reason, op string, cause error) {
	c.logger.Warn("Remote rejected change, reloading", "op", op, "reason", reason, "error", cause)
	metrics.Reloads.WithLabelValues(reason).Inc()
	if err := c.load(ctx); err != nil {
		c.logger.Error("Reload failed", "error", err)
	}
}

func (c *Collection) observe(op string, start time.Time, err *error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.Operations.WithLabelValues(op, outcome(*err)).Inc()
}

func keys[V any](m map[int64]V) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// nextID returns one more than the largest id, or 1 for an empty set.
func nextID(ids []int64) int64 {
	var maxID int64
	for _, id := range ids {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

func nextLoanID(loans []models.LoanRecord) int64 {
	ids := make([]int64, len(loans))
	for i, l := range loans {
		ids[i] = l.ID
	}
	return nextID(ids)
}

func valueOr(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
