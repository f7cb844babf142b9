package enrichment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

type fakeSource struct {
	name  string
	md    *Metadata
	err   error
	calls atomic.Int32
	isbns []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(_ context.Context, isbn string) (*Metadata, error) {
	f.calls.Add(1)
	f.isbns = append(f.isbns, isbn)
	return f.md, f.err
}

func TestResolveFirstSourceWins(t *testing.T) {
	a := &fakeSource{name: "source A", md: &Metadata{Title: "Clean Code"}}
	b := &fakeSource{name: "source B", md: &Metadata{Title: "Something Else"}}
	r := NewResolver([]Source{a, b})

	res, err := r.Resolve(context.Background(), "9780132350884")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "source A", res.Suggestion.Provenance)
	assert.Equal(t, "Clean Code", res.Suggestion.Title)
	assert.Equal(t, "9780132350884", res.Suggestion.ISBN)
	assert.Equal(t, int32(0), b.calls.Load())
}

func TestResolveFallsBack(t *testing.T) {
	tests := []struct {
		name string
		a    *fakeSource
	}{
		{name: "first source errors", a: &fakeSource{name: "A", err: errors.New("503")}},
		{name: "first source has no record", a: &fakeSource{name: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeSource{name: "B", md: &Metadata{Title: "Fallback"}}
			res, err := NewResolver([]Source{tt.a, b}).Resolve(context.Background(), "0132350882")
			require.NoError(t, err)
			require.True(t, res.Found)
			assert.Equal(t, "B", res.Suggestion.Provenance)
			assert.Equal(t, int32(1), tt.a.calls.Load())
		})
	}
}

func TestResolveNotFoundQueriesBoth(t *testing.T) {
	a := &fakeSource{name: "A"}
	b := &fakeSource{name: "B", err: errors.New("connection refused")}
	res, err := NewResolver([]Source{a, b}).Resolve(context.Background(), "9791234567896")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Suggestion)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestResolveInvalidISBN(t *testing.T) {
	a := &fakeSource{name: "A", md: &Metadata{Title: "x"}}
	r := NewResolver([]Source{a})
	for _, isbn := range []string{"", "123", "97801323508", "1230132350884", "abcdefghij"} {
		_, err := r.Resolve(context.Background(), isbn)
		assert.True(t, errors.Is(err, ErrInvalidISBN), "isbn %q", isbn)
	}
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestResolveNormalizesISBN(t *testing.T) {
	a := &fakeSource{name: "A", md: &Metadata{Title: "x"}}
	_, err := NewResolver([]Source{a}).Resolve(context.Background(), " 978-0-13-235088-4 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"9780132350884"}, a.isbns)
}

func TestResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &fakeSource{name: "A", md: &Metadata{Title: "x"}}
	_, err := NewResolver([]Source{a}, WithRate(1, 1)).Resolve(ctx, "9780132350884")
	assert.Error(t, err)
}

type blockingSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSource) Name() string { return "slow" }

func (b *blockingSource) Lookup(ctx context.Context, _ string) (*Metadata, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-b.release:
		return &Metadata{Title: "Clean Code"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolveSharedLookupSurvivesOneCallerCancelling(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver([]Source{src})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctxA, "9780132350884")
		errA <- err
	}()
	<-src.started

	type outcome struct {
		res Result
		err error
	}
	doneB := make(chan outcome, 1)
	go func() {
		res, err := r.Resolve(context.Background(), "9780132350884")
		doneB <- outcome{res, err}
	}()

	// Give the second caller time to join the in-flight lookup.
	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(src.release)
	select {
	case got := <-doneB:
		require.NoError(t, got.err)
		require.True(t, got.res.Found)
		assert.Equal(t, "Clean Code", got.res.Suggestion.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestExtractYear(t *testing.T) {
	tests := []struct {
		in   string
		want *int
	}{
		{in: "2008", want: ptr(2008)},
		{in: "August 1, 2008", want: ptr(2008)},
		{in: "2008-08-01", want: ptr(2008)},
		{in: "c1999, printed 2001", want: ptr(1999)},
		{in: "", want: nil},
		{in: "n.d.", want: nil},
		{in: "199", want: nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractYear(tt.in), "input %q", tt.in)
	}
}

func TestApplySuggestion(t *testing.T) {
	draft := models.BookInput{
		Title:    "my title",
		Summary:  "my notes",
		ISBN:     "9780132350884",
		Owner:    "Room 101",
		Language: "",
	}
	s := Suggestion{
		Metadata: Metadata{
			Title:           "Clean Code",
			Summary:         "A handbook",
			CoverURL:        "https://covers.example/l.jpg",
			PublicationYear: ptr(2008),
			Language:        "ENG",
			SourceURL:       "https://openlibrary.org/works/OL1W",
		},
		ISBN:       "0000000000",
		Provenance: "Open Library",
	}

	t.Run("keeps listed fields", func(t *testing.T) {
		got := ApplySuggestion(draft, s, models.NewFieldSet(models.FieldTitle))
		assert.Equal(t, "my title", got.Title)
		assert.Equal(t, "A handbook", got.Summary)
		assert.Equal(t, "ENG", got.Language)
		assert.Equal(t, 2008, *got.PublicationYear)
		assert.Equal(t, "Room 101", got.Owner)
		assert.Equal(t, "9780132350884", got.ISBN)
	})

	t.Run("overwrites every fetched field when nothing is kept", func(t *testing.T) {
		got := ApplySuggestion(draft, s, nil)
		assert.Equal(t, "Clean Code", got.Title)
		assert.Equal(t, "https://covers.example/l.jpg", got.CoverURL)
		assert.Equal(t, "https://openlibrary.org/works/OL1W", got.SourceURL)
		assert.Equal(t, "Room 101", got.Owner)
	})

	t.Run("empty suggested values do not blank the draft", func(t *testing.T) {
		got := ApplySuggestion(draft, Suggestion{Metadata: Metadata{Title: "Only Title"}}, nil)
		assert.Equal(t, "Only Title", got.Title)
		assert.Equal(t, "my notes", got.Summary)
		assert.Nil(t, got.PublicationYear)
	})

	t.Run("draft is not modified", func(t *testing.T) {
		before := draft
		ApplySuggestion(draft, s, nil)
		assert.Equal(t, before, draft)
	})
}

func ptr[T any](v T) *T { return &v }
