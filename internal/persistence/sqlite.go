package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lehigh-university-libraries/librarian/internal/circulation"
	"github.com/lehigh-university-libraries/librarian/internal/models"
)

const dateLayout = "2006-01-02"

// Database is a SQLite backed Remote.
type Database struct {
	db *sql.DB

	insertBookStmt   *sql.Stmt
	insertPersonStmt *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.insertBookStmt != nil {
		d.insertBookStmt.Close()
	}
	if d.insertPersonStmt != nil {
		d.insertPersonStmt.Close()
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS persons (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            department TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS books (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            title TEXT NOT NULL,
            summary TEXT NOT NULL DEFAULT '',
            cover_url TEXT NOT NULL DEFAULT '',
            publication_year INTEGER,
            language TEXT NOT NULL DEFAULT '',
            isbn TEXT NOT NULL DEFAULT '',
            owner TEXT NOT NULL DEFAULT '',
            source_url TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'Available' CHECK (status IN ('Available','Borrowed')),
            borrowed_date TEXT,
            borrowed_by INTEGER REFERENCES persons(id),
            created_at TEXT NOT NULL
        );`,
		// History outlives the books and persons it mentions, so no foreign keys.
		`CREATE TABLE IF NOT EXISTS borrowing_history (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            book_id INTEGER NOT NULL,
            person_id INTEGER NOT NULL,
            borrowed_date TEXT NOT NULL,
            returned_date TEXT
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_one_active
            ON borrowing_history(book_id) WHERE returned_date IS NULL;`,
		`CREATE TABLE IF NOT EXISTS daily_quotes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            quote TEXT NOT NULL,
            book TEXT NOT NULL DEFAULT '',
            author TEXT NOT NULL DEFAULT '',
            date TEXT NOT NULL UNIQUE
        );`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.insertBookStmt, err = d.db.Prepare(`INSERT INTO books(title,summary,cover_url,publication_year,language,isbn,owner,source_url,status,created_at)
        VALUES(?,?,?,?,?,?,?,?,'Available',?)`); err != nil {
		return fmt.Errorf("failed to prepare insert book: %w", err)
	}
	if d.insertPersonStmt, err = d.db.Prepare(`INSERT INTO persons(name,email,department) VALUES(?,?,?)`); err != nil {
		return fmt.Errorf("failed to prepare insert person: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

const bookColumns = `id,title,summary,cover_url,publication_year,language,isbn,owner,source_url,status,borrowed_date,borrowed_by,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (models.Book, error) {
	var (
		b            models.Book
		year         sql.NullInt64
		borrowedDate sql.NullString
		borrowedBy   sql.NullInt64
		createdAt    string
		status       string
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Summary, &b.CoverURL, &year, &b.Language, &b.ISBN,
		&b.Owner, &b.SourceURL, &status, &borrowedDate, &borrowedBy, &createdAt); err != nil {
		return models.Book{}, err
	}
	b.Status = models.Status(status)
	if year.Valid {
		y := int(year.Int64)
		b.PublicationYear = &y
	}
	if borrowedDate.Valid {
		t, err := time.Parse(dateLayout, borrowedDate.String)
		if err != nil {
			return models.Book{}, fmt.Errorf("failed to parse borrowed_date of book %d: %w", b.ID, err)
		}
		b.BorrowedDate = &t
	}
	if borrowedBy.Valid {
		id := borrowedBy.Int64
		b.BorrowedBy = &id
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		b.CreatedAt = t
	}
	return b, nil
}

func getBook(ctx context.Context, q querier, id int64) (models.Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return b, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListBooks returns every book, newest first.
func (d *Database) ListBooks(ctx context.Context) ([]models.Book, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT `+bookColumns+` FROM books ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// InsertBook stores a new available book and returns it with its id.
func (d *Database) InsertBook(ctx context.Context, book models.Book) (models.Book, error) {
	createdAt := book.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := d.insertBookStmt.ExecContext(ctx, book.Title, book.Summary, book.CoverURL, nullableYear(book.PublicationYear),
		book.Language, book.ISBN, book.Owner, book.SourceURL, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to insert book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Book{}, err
	}
	return getBook(ctx, d.db, id)
}

// UpdateBook replaces the descriptive fields of a book. Circulation fields
// are owned by Borrow and Return and ignored here.
func (d *Database) UpdateBook(ctx context.Context, book models.Book) (models.Book, error) {
	res, err := d.db.ExecContext(ctx, `UPDATE books SET title=?,summary=?,cover_url=?,publication_year=?,language=?,isbn=?,owner=?,source_url=? WHERE id=?`,
		book.Title, book.Summary, book.CoverURL, nullableYear(book.PublicationYear), book.Language, book.ISBN, book.Owner, book.SourceURL, book.ID)
	if err != nil {
		return models.Book{}, fmt.Errorf("failed to update book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Book{}, fmt.Errorf("book %d: %w", book.ID, ErrNotFound)
	}
	return getBook(ctx, d.db, book.ID)
}

// DeleteBook removes an available book. A borrowed book is rejected even if
// the caller's view said otherwise.
func (d *Database) DeleteBook(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b, err := getBook(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := circulation.CanDeleteBook(b); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Persons
// ---------------------------------------------------------------------------

func getPerson(ctx context.Context, q querier, id int64) (models.Person, error) {
	var p models.Person
	err := q.QueryRowContext(ctx, `SELECT id,name,email,department FROM persons WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Email, &p.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Person{}, fmt.Errorf("person %d: %w", id, ErrNotFound)
	}
	return p, err
}

// ListPersons returns all persons sorted by name.
func (d *Database) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id,name,email,department FROM persons ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Department); err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// InsertPerson stores a new person.
func (d *Database) InsertPerson(ctx context.Context, person models.Person) (models.Person, error) {
	res, err := d.insertPersonStmt.ExecContext(ctx, person.Name, person.Email, person.Department)
	if err != nil {
		return models.Person{}, fmt.Errorf("failed to insert person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Person{}, err
	}
	return getPerson(ctx, d.db, id)
}

// UpdatePerson replaces the fields of a person.
func (d *Database) UpdatePerson(ctx context.Context, person models.Person) (models.Person, error) {
	res, err := d.db.ExecContext(ctx, `UPDATE persons SET name=?,email=?,department=? WHERE id=?`,
		person.Name, person.Email, person.Department, person.ID)
	if err != nil {
		return models.Person{}, fmt.Errorf("failed to update person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Person{}, fmt.Errorf("person %d: %w", person.ID, ErrNotFound)
	}
	return getPerson(ctx, d.db, person.ID)
}

// DeletePerson removes a person who holds no books.
func (d *Database) DeletePerson(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := getPerson(ctx, tx, id); err != nil {
		return err
	}
	var held int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE borrowed_by=? AND status='Borrowed'`, id).Scan(&held); err != nil {
		return err
	}
	if held > 0 {
		return &circulation.StateConflict{
			Code:     circulation.CodePersonHasActiveLoans,
			PersonID: id,
			Message:  fmt.Sprintf("person %d has %d borrowed book(s)", id, held),
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id=?`, id); err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Circulation
// ---------------------------------------------------------------------------

// ListLoans returns the full borrowing history in insertion order.
func (d *Database) ListLoans(ctx context.Context) ([]models.LoanRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id,book_id,person_id,borrowed_date,returned_date FROM borrowing_history ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var loans []models.LoanRecord
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func scanLoan(row rowScanner) (models.LoanRecord, error) {
	var (
		l        models.LoanRecord
		borrowed string
		returned sql.NullString
	)
	if err := row.Scan(&l.ID, &l.BookID, &l.PersonID, &borrowed, &returned); err != nil {
		return models.LoanRecord{}, err
	}
	t, err := time.Parse(dateLayout, borrowed)
	if err != nil {
		return models.LoanRecord{}, fmt.Errorf("failed to parse borrowed_date of loan %d: %w", l.ID, err)
	}
	l.BorrowedDate = t
	if returned.Valid {
		rt, err := time.Parse(dateLayout, returned.String)
		if err != nil {
			return models.LoanRecord{}, fmt.Errorf("failed to parse returned_date of loan %d: %w", l.ID, err)
		}
		l.ReturnedDate = &rt
	}
	return l, nil
}

// Borrow records the loan and updates the book in one transaction. The
// book's status is re-checked inside the transaction so a concurrent session
// cannot lend the same copy twice.
func (d *Database) Borrow(ctx context.Context, book models.Book, loan models.LoanRecord) (models.Book, models.LoanRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	defer tx.Rollback()

	current, err := getBook(ctx, tx, book.ID)
	if err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	if current.IsBorrowed() {
		return models.Book{}, models.LoanRecord{}, &circulation.StateConflict{
			Code:    circulation.CodeAlreadyBorrowed,
			BookID:  book.ID,
			Message: fmt.Sprintf("book %d is already borrowed", book.ID),
		}
	}
	if _, err := getPerson(ctx, tx, loan.PersonID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.Book{}, models.LoanRecord{}, fmt.Errorf("%w: person %d", circulation.ErrUnknownPerson, loan.PersonID)
		}
		return models.Book{}, models.LoanRecord{}, err
	}

	borrowed := loan.BorrowedDate.Format(dateLayout)
	res, err := tx.ExecContext(ctx, `INSERT INTO borrowing_history(book_id,person_id,borrowed_date) VALUES(?,?,?)`,
		loan.BookID, loan.PersonID, borrowed)
	if err != nil {
		return models.Book{}, models.LoanRecord{}, fmt.Errorf("failed to insert history: %w", err)
	}
	loanID, err := res.LastInsertId()
	if err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET status='Borrowed', borrowed_date=?, borrowed_by=? WHERE id=?`,
		borrowed, loan.PersonID, book.ID); err != nil {
		return models.Book{}, models.LoanRecord{}, fmt.Errorf("failed to update book: %w", err)
	}

	stored, err := getBook(ctx, tx, book.ID)
	if err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	storedLoan, err := scanLoan(tx.QueryRowContext(ctx, `SELECT id,book_id,person_id,borrowed_date,returned_date FROM borrowing_history WHERE id=?`, loanID))
	if err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Book{}, models.LoanRecord{}, err
	}
	return stored, storedLoan, nil
}

// Return closes the open history record and makes the book available in one
// transaction.
func (d *Database) Return(ctx context.Context, book models.Book, loan *models.LoanRecord) (models.Book, *models.LoanRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Book{}, nil, err
	}
	defer tx.Rollback()

	current, err := getBook(ctx, tx, book.ID)
	if err != nil {
		return models.Book{}, nil, err
	}
	if !current.IsBorrowed() {
		return models.Book{}, nil, &circulation.StateConflict{
			Code:    circulation.CodeNotBorrowed,
			BookID:  book.ID,
			Message: fmt.Sprintf("book %d is not borrowed", book.ID),
		}
	}

	returned := time.Now().UTC().Format(dateLayout)
	if loan != nil && loan.ReturnedDate != nil {
		returned = loan.ReturnedDate.Format(dateLayout)
	}

	var closedID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT id FROM borrowing_history WHERE book_id=? AND returned_date IS NULL`, book.ID).Scan(&closedID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, nil, err
	}
	if closedID.Valid {
		if _, err := tx.ExecContext(ctx, `UPDATE borrowing_history SET returned_date=? WHERE id=?`, returned, closedID.Int64); err != nil {
			return models.Book{}, nil, fmt.Errorf("failed to close history: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE books SET status='Available', borrowed_date=NULL, borrowed_by=NULL WHERE id=?`, book.ID); err != nil {
		return models.Book{}, nil, fmt.Errorf("failed to update book: %w", err)
	}

	stored, err := getBook(ctx, tx, book.ID)
	if err != nil {
		return models.Book{}, nil, err
	}
	var closed *models.LoanRecord
	if closedID.Valid {
		l, err := scanLoan(tx.QueryRowContext(ctx, `SELECT id,book_id,person_id,borrowed_date,returned_date FROM borrowing_history WHERE id=?`, closedID.Int64))
		if err != nil {
			return models.Book{}, nil, err
		}
		closed = &l
	}
	if err := tx.Commit(); err != nil {
		return models.Book{}, nil, err
	}
	return stored, closed, nil
}

// ---------------------------------------------------------------------------
// Daily quotes
// ---------------------------------------------------------------------------

// QuoteForDate returns the stored quote for date (YYYY-MM-DD).
func (d *Database) QuoteForDate(ctx context.Context, date string) (models.Quote, bool, error) {
	var q models.Quote
	err := d.db.QueryRowContext(ctx, `SELECT id,quote,book,author,date FROM daily_quotes WHERE date=?`, date).
		Scan(&q.ID, &q.Quote, &q.Book, &q.Author, &q.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Quote{}, false, nil
	}
	if err != nil {
		return models.Quote{}, false, fmt.Errorf("failed to query quote: %w", err)
	}
	return q, true, nil
}

// SaveQuote stores the quote for its date, replacing any earlier one.
func (d *Database) SaveQuote(ctx context.Context, q models.Quote) (models.Quote, error) {
	_, err := d.db.ExecContext(ctx, `INSERT INTO daily_quotes(quote,book,author,date) VALUES(?,?,?,?)
        ON CONFLICT(date) DO UPDATE SET quote=excluded.quote, book=excluded.book, author=excluded.author`,
		q.Quote, q.Book, q.Author, q.Date)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to save quote: %w", err)
	}
	saved, _, err := d.QuoteForDate(ctx, q.Date)
	return saved, err
}

// DeleteQuotesExcept removes every quote not dated date.
func (d *Database) DeleteQuotesExcept(ctx context.Context, date string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM daily_quotes WHERE date<>?`, date); err != nil {
		return fmt.Errorf("failed to delete old quotes: %w", err)
	}
	return nil
}

func nullableYear(y *int) any {
	if y == nil {
		return nil
	}
	return *y
}
