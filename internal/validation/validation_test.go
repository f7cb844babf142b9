package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func TestValidateBook(t *testing.T) {
	v := New(Options{Now: fixedNow})

	tests := []struct {
		name      string
		input     models.BookInput
		wantField string
		wantKind  Kind
		blocking  bool
	}{
		{
			name:      "blank title",
			input:     models.BookInput{Title: "   "},
			wantField: "title",
			wantKind:  MissingRequiredField,
			blocking:  true,
		},
		{
			name:      "malformed isbn does not block save",
			input:     models.BookInput{Title: "Clean Code", ISBN: "12345"},
			wantField: "isbn",
			wantKind:  InvalidFormat,
			blocking:  false,
		},
		{
			name:      "13 digit isbn with wrong prefix",
			input:     models.BookInput{Title: "Clean Code", ISBN: "9770132350884"},
			wantField: "isbn",
			wantKind:  InvalidFormat,
			blocking:  false,
		},
		{
			name:      "year too early",
			input:     models.BookInput{Title: "Old", PublicationYear: intPtr(999)},
			wantField: "publication_year",
			wantKind:  InvalidFormat,
			blocking:  true,
		},
		{
			name:      "year in the future",
			input:     models.BookInput{Title: "New", PublicationYear: intPtr(2026)},
			wantField: "publication_year",
			wantKind:  InvalidFormat,
			blocking:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := v.ValidateBook(tt.input)
			fe, ok := errs.For(tt.wantField)
			require.True(t, ok, "expected error for %s, got %v", tt.wantField, errs)
			assert.Equal(t, tt.wantKind, fe.Kind)
			assert.Equal(t, tt.blocking, len(errs.Blocking()) > 0)
		})
	}
}

func TestValidateBookNormalizes(t *testing.T) {
	v := New(Options{Now: fixedNow})

	out, errs := v.ValidateBook(models.BookInput{
		Title:           "  Clean Code ",
		ISBN:            "978-0-13-235088-4",
		PublicationYear: intPtr(2008),
		Owner:           " Library ",
	})

	assert.Empty(t, errs)
	assert.Equal(t, "Clean Code", out.Title)
	assert.Equal(t, "9780132350884", out.ISBN)
	assert.Equal(t, "Library", out.Owner)
	assert.Equal(t, 2008, *out.PublicationYear)
}

func TestValidateBookCurrentYearAccepted(t *testing.T) {
	v := New(Options{Now: fixedNow})
	_, errs := v.ValidateBook(models.BookInput{Title: "Fresh", PublicationYear: intPtr(2025)})
	assert.Empty(t, errs)
}

func TestValidatePerson(t *testing.T) {
	v := New(Options{})

	tests := []struct {
		name      string
		input     models.PersonInput
		wantField string
	}{
		{name: "missing name", input: models.PersonInput{Name: ""}, wantField: "name"},
		{name: "bad email", input: models.PersonInput{Name: "Ada", Email: "ada-at-example"}, wantField: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := v.ValidatePerson(tt.input)
			_, ok := errs.For(tt.wantField)
			assert.True(t, ok, "expected %s error, got %v", tt.wantField, errs)
		})
	}

	out, errs := v.ValidatePerson(models.PersonInput{Name: " Ada Lovelace ", Email: "ada@example.org"})
	assert.Empty(t, errs)
	assert.Equal(t, "Ada Lovelace", out.Name)
}

func TestISBNHelpers(t *testing.T) {
	tests := []struct {
		isbn     string
		valid    bool
		checksum bool
	}{
		{"9780132350884", true, true},
		{"9780132350885", true, false},
		{"0132350882", true, true},
		{"080442957X", true, true},
		{"97801323508", false, false},
		{"9790000000001", true, true},
		{"abcdefghij", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.isbn, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidISBN(tt.isbn))
			assert.Equal(t, tt.checksum, ISBNChecksumValid(tt.isbn))
		})
	}

	assert.Equal(t, "080442957X", NormalizeISBN(" 0-8044-2957-x "))
}

func TestStrictISBN(t *testing.T) {
	v := New(Options{StrictISBN: true, Now: fixedNow})
	_, errs := v.ValidateBook(models.BookInput{Title: "T", ISBN: "9780132350885"})
	fe, ok := errs.For("isbn")
	require.True(t, ok)
	assert.Equal(t, InvalidFormat, fe.Kind)

	_, errs = v.ValidateBook(models.BookInput{Title: "T", ISBN: "9780132350884"})
	assert.Empty(t, errs)
}
