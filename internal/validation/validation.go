// Package validation enforces field-level rules on books and persons before
// they reach the collection. Validation is pure: failures are returned as
// values so callers can render them next to the offending field.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

// Kind classifies a field error.
type Kind string

const (
	MissingRequiredField Kind = "MissingRequiredField"
	InvalidFormat        Kind = "InvalidFormat"
)

// MinPublicationYear is the earliest accepted publication year.
const MinPublicationYear = 1000

var (
	validate = validator.New()

	isbn10Pattern = regexp.MustCompile(`^\d{9}[\dX]$`)
	isbn13Pattern = regexp.MustCompile(`^97[89]\d{10}$`)
)

// FieldError describes one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is a list of field errors. It implements error so it can travel
// through the usual error returns.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Blocking returns the errors that prevent saving. A malformed ISBN only
// blocks enrichment, never the save itself.
func (e Errors) Blocking() Errors {
	var out Errors
	for _, fe := range e {
		if fe.Field == string(models.FieldISBN) && fe.Kind == InvalidFormat {
			continue
		}
		out = append(out, fe)
	}
	return out
}

// For returns the first error for the given field.
func (e Errors) For(field string) (FieldError, bool) {
	for _, fe := range e {
		if fe.Field == field {
			return fe, true
		}
	}
	return FieldError{}, false
}

// Options tune the validator.
type Options struct {
	// StrictISBN additionally verifies the ISBN check digit.
	StrictISBN bool
	// Now is used for the publication year upper bound. Defaults to time.Now.
	Now func() time.Time
}

// Validator applies the rules with a fixed set of options.
type Validator struct {
	opts Options
}

// New creates a validator.
func New(opts Options) *Validator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Validator{opts: opts}
}

// ValidateBook trims and normalizes the input and checks every rule. The
// normalized input is returned even when there are errors.
func (v *Validator) ValidateBook(in models.BookInput) (models.BookInput, Errors) {
	out := models.BookInput{
		Title:           strings.TrimSpace(in.Title),
		Summary:         strings.TrimSpace(in.Summary),
		CoverURL:        strings.TrimSpace(in.CoverURL),
		PublicationYear: in.PublicationYear,
		Language:        strings.TrimSpace(in.Language),
		ISBN:            NormalizeISBN(in.ISBN),
		Owner:           strings.TrimSpace(in.Owner),
		SourceURL:       strings.TrimSpace(in.SourceURL),
	}

	var errs Errors
	if out.Title == "" {
		errs = append(errs, FieldError{Field: string(models.FieldTitle), Kind: MissingRequiredField, Message: "title is required"})
	}
	if out.ISBN != "" {
		if err := v.CheckISBN(out.ISBN); err != nil {
			errs = append(errs, *err)
		}
	}
	if out.PublicationYear != nil {
		year := *out.PublicationYear
		maxYear := v.opts.Now().Year()
		if year < MinPublicationYear || year > maxYear {
			errs = append(errs, FieldError{
				Field:   string(models.FieldPublicationYear),
				Kind:    InvalidFormat,
				Message: fmt.Sprintf("publication year must be between %d and %d", MinPublicationYear, maxYear),
			})
		}
	}
	return out, errs
}

// ValidatePerson trims the input and checks every rule.
func (v *Validator) ValidatePerson(in models.PersonInput) (models.PersonInput, Errors) {
	out := models.PersonInput{
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.TrimSpace(in.Email),
		Department: strings.TrimSpace(in.Department),
	}

	var errs Errors
	if out.Name == "" {
		errs = append(errs, FieldError{Field: "name", Kind: MissingRequiredField, Message: "name is required"})
	}
	if out.Email != "" {
		if err := validate.Var(out.Email, "email"); err != nil {
			errs = append(errs, FieldError{Field: "email", Kind: InvalidFormat, Message: "email address is not valid"})
		}
	}
	return out, errs
}

// CheckISBN validates an already normalized ISBN. It returns nil when the
// ISBN is acceptable.
func (v *Validator) CheckISBN(isbn string) *FieldError {
	if !ValidISBN(isbn) {
		return &FieldError{
			Field:   string(models.FieldISBN),
			Kind:    InvalidFormat,
			Message: "ISBN must be 10 digits or 13 digits starting with 978 or 979",
		}
	}
	if v.opts.StrictISBN && !ISBNChecksumValid(isbn) {
		return &FieldError{Field: string(models.FieldISBN), Kind: InvalidFormat, Message: "ISBN check digit does not match"}
	}
	return nil
}

// NormalizeISBN strips hyphens and whitespace and upper-cases a trailing x.
func NormalizeISBN(isbn string) string {
	var sb strings.Builder
	for _, r := range isbn {
		switch {
		case r == '-' || r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r == 'x':
			sb.WriteRune('X')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidISBN reports whether a normalized ISBN has the 10 or 13 digit shape.
func ValidISBN(isbn string) bool {
	return isbn10Pattern.MatchString(isbn) || isbn13Pattern.MatchString(isbn)
}

// ISBNChecksumValid verifies the check digit of a normalized ISBN-10 or ISBN-13.
func ISBNChecksumValid(isbn string) bool {
	switch len(isbn) {
	case 10:
		sum := 0
		for i := 0; i < 10; i++ {
			var d int
			if i == 9 && isbn[i] == 'X' {
				d = 10
			} else if isbn[i] >= '0' && isbn[i] <= '9' {
				d = int(isbn[i] - '0')
			} else {
				return false
			}
			sum += d * (10 - i)
		}
		return sum%11 == 0
	case 13:
		sum := 0
		for i := 0; i < 13; i++ {
			if isbn[i] < '0' || isbn[i] > '9' {
				return false
			}
			d := int(isbn[i] - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		return sum%10 == 0
	default:
		return false
	}
}
