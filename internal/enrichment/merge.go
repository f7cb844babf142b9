package enrichment

import (
	"regexp"
	"strconv"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// ExtractYear returns the first run of four digits in a free-text date such
// as "March 2008" or "2008-08-01", or nil when there is none.
func ExtractYear(date string) *int {
	m := yearPattern.FindString(date)
	if m == "" {
		return nil
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &y
}

// FetchedFields are the draft fields a suggestion can fill.
var FetchedFields = []models.Field{
	models.FieldTitle,
	models.FieldSummary,
	models.FieldCoverURL,
	models.FieldPublicationYear,
	models.FieldLanguage,
	models.FieldSourceURL,
}

// ApplySuggestion merges s into draft. Fields listed in keep are left alone,
// as are fields the suggestion has no value for. Owner and ISBN are never
// touched.
func ApplySuggestion(draft models.BookInput, s Suggestion, keep models.FieldSet) models.BookInput {
	set := func(f models.Field, dst *string, v string) {
		if v != "" && !keep.Has(f) {
			*dst = v
		}
	}
	set(models.FieldTitle, &draft.Title, s.Title)
	set(models.FieldSummary, &draft.Summary, s.Summary)
	set(models.FieldCoverURL, &draft.CoverURL, s.CoverURL)
	set(models.FieldLanguage, &draft.Language, s.Language)
	set(models.FieldSourceURL, &draft.SourceURL, s.SourceURL)
	if s.PublicationYear != nil && !keep.Has(models.FieldPublicationYear) {
		y := *s.PublicationYear
		draft.PublicationYear = &y
	}
	return draft
}
