package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/librarian/internal/collection"
	"github.com/lehigh-university-libraries/librarian/internal/config"
	"github.com/lehigh-university-libraries/librarian/internal/editing"
	"github.com/lehigh-university-libraries/librarian/internal/enrichment"
	"github.com/lehigh-university-libraries/librarian/internal/persistence"
	"github.com/lehigh-university-libraries/librarian/internal/quotes"
	"github.com/lehigh-university-libraries/librarian/internal/storage"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

// app is everything a command needs, wired from one config.
type app struct {
	cfg      config.Config
	db       *persistence.Database
	books    *collection.Collection
	resolver *enrichment.Resolver
	sessions *editing.Service
	// quotes is nil in standalone mode, where there is nowhere to cache them.
	quotes *quotes.Service
}

// openApp connects to the store and loads the collection.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var remote persistence.Remote
	if !cfg.Database.Standalone {
		db, err := persistence.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		a.db = db
		remote = db
	}

	a.books = collection.New(remote, collection.WithValidator(validation.New(validation.Options{
		StrictISBN: cfg.Validation.StrictISBN,
	})))
	if err := a.books.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	resolver, err := newResolver(ctx, cfg.Enrichment)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.resolver = resolver
	a.sessions = editing.NewService(storage.New(), a.books, resolver)

	if a.db != nil {
		client := quotes.NewClient(cfg.Quotes.APIKey)
		if cfg.Quotes.Endpoint != "" {
			client.Endpoint = cfg.Quotes.Endpoint
		}
		a.quotes = quotes.NewService(a.db, client)
	}

	slog.Debug("Collection ready",
		"standalone", a.books.Standalone(),
		"books", len(a.books.Books()),
		"persons", len(a.books.Persons()),
		"sources", resolver.Sources())
	return a, nil
}

// newResolver builds the metadata sources in configured order.
func newResolver(ctx context.Context, cfg config.Enrichment) (*enrichment.Resolver, error) {
	sources := make([]enrichment.Source, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		switch name {
		case config.SourceOpenLibrary:
			ol := enrichment.NewOpenLibrary()
			if cfg.OpenLibraryURL != "" {
				ol.BaseURL = cfg.OpenLibraryURL
			}
			sources = append(sources, ol)
		case config.SourceGoogleBooks:
			gb, err := enrichment.NewGoogleBooks(ctx, enrichment.GoogleBooksConfig{
				APIKey:   cfg.GoogleBooksAPIKey,
				Endpoint: cfg.GoogleBooksEndpoint,
			})
			if err != nil {
				return nil, err
			}
			sources = append(sources, gb)
		}
	}

	opts := []enrichment.ResolverOption{}
	if cfg.Timeout > 0 {
		opts = append(opts, enrichment.WithTimeout(cfg.Timeout))
	}
	if cfg.RatePerSecond > 0 {
		opts = append(opts, enrichment.WithRate(cfg.RatePerSecond, cfg.Burst))
	}
	return enrichment.NewResolver(sources, opts...), nil
}

func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		slog.Error("Failed to close database", "err", err)
	}
}
