// Package enrichment looks up descriptive book metadata by ISBN from an
// ordered list of external sources and merges the result into a draft.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/lehigh-university-libraries/librarian/internal/metrics"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

// ErrInvalidISBN is returned when the identifier handed to Resolve is not a
// well-formed ISBN. No source is queried in that case.
var ErrInvalidISBN = errors.New("invalid ISBN format, expected 10 or 13 digits")

// Metadata is what a source knows about a book. Missing strings are empty.
type Metadata struct {
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	CoverURL        string `json:"cover_url"`
	PublicationYear *int   `json:"publication_year,omitempty"`
	Language        string `json:"language"`
	SourceURL       string `json:"source_url"`
	Authors         string `json:"authors"`
	Publisher       string `json:"publisher"`
}

// Suggestion is a source's metadata tagged with where it came from.
type Suggestion struct {
	Metadata
	ISBN       string `json:"isbn"`
	Provenance string `json:"provenance"`
}

// Result of a lookup. Found is false when no source had the book.
type Result struct {
	Found      bool        `json:"found"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

// Source fetches metadata for a normalized ISBN. It returns nil, nil when
// it has no record for the ISBN.
type Source interface {
	Name() string
	Lookup(ctx context.Context, isbn string) (*Metadata, error)
}

type limitedSource struct {
	Source
	limiter *rate.Limiter
}

// Resolver queries sources in order; the first match wins.
type Resolver struct {
	sources []limitedSource
	group   singleflight.Group
	timeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTimeout bounds each source lookup. Zero disables the bound.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithRate limits requests per second to every source. Non-positive values
// leave sources unlimited.
func WithRate(perSecond float64, burst int) ResolverOption {
	return func(r *Resolver) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		for i := range r.sources {
			r.sources[i].limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewResolver creates a resolver over sources, queried in the given order.
func NewResolver(sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{timeout: 15 * time.Second}
	for _, s := range sources {
		r.sources = append(r.sources, limitedSource{Source: s, limiter: rate.NewLimiter(rate.Inf, 1)})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sources returns the source names in query order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve normalizes and validates isbn, then asks each source in turn.
// A source that errors or has no record is skipped. When no source matches
// the result has Found set to false and the error is nil.
func (r *Resolver) Resolve(ctx context.Context, isbn string) (Result, error) {
	clean := validation.NormalizeISBN(isbn)
	if !validation.ValidISBN(clean) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidISBN, isbn)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Callers of the same ISBN share one lookup, detached from any single
	// caller's cancellation. Each caller stops waiting on its own context.
	ch := r.group.DoChan(clean, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), clean)
	})
	select {
	case <-ctx.Done():
		slog.Debug("Caller stopped waiting for ISBN lookup", "isbn", clean, "error", ctx.Err())
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		if res.Shared {
			slog.Debug("Shared in-flight ISBN lookup", "isbn", clean)
		}
		return res.Val.(Result), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, isbn string) (Result, error) {
	for _, src := range r.sources {
		if err := src.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}

		md, err := r.lookup(ctx, src, isbn)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			slog.Warn("Metadata source failed, trying next", "source", src.Name(), "isbn", isbn, "error", err)
			metrics.EnrichmentLookups.WithLabelValues(src.Name(), "error").Inc()
		case md == nil:
			slog.Debug("Metadata source has no record", "source", src.Name(), "isbn", isbn)
			metrics.EnrichmentLookups.WithLabelValues(src.Name(), "miss").Inc()
		default:
			metrics.EnrichmentLookups.WithLabelValues(src.Name(), "hit").Inc()
			slog.Info("Metadata found", "source", src.Name(), "isbn", isbn, "title", md.Title)
			return Result{
				Found:      true,
				Suggestion: &Suggestion{Metadata: *md, ISBN: isbn, Provenance: src.Name()},
			}, nil
		}
	}
	return Result{Found: false}, nil
}

func (r *Resolver) lookup(ctx context.Context, src Source, isbn string) (*Metadata, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return src.Lookup(ctx, isbn)
}
