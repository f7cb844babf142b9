package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	books "google.golang.org/api/books/v1"
	"google.golang.org/api/option"
)

// GoogleBooksConfig configures the Google Books source. With no API key the
// public quota applies.
type GoogleBooksConfig struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

// GoogleBooks looks books up through the Google Books volumes API.
type GoogleBooks struct {
	svc *books.Service
}

// NewGoogleBooks creates a Google Books source.
func NewGoogleBooks(ctx context.Context, cfg GoogleBooksConfig) (*GoogleBooks, error) {
	var opts []option.ClientOption
	switch {
	case cfg.HTTPClient != nil:
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	default:
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := books.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Books client: %w", err)
	}
	return &GoogleBooks{svc: svc}, nil
}

func (g *GoogleBooks) Name() string { return "Google Books" }

// Lookup returns the first volume matching the ISBN.
func (g *GoogleBooks) Lookup(ctx context.Context, isbn string) (*Metadata, error) {
	resp, err := g.svc.Volumes.List("isbn:" + isbn).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query Google Books: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].VolumeInfo == nil {
		return nil, nil
	}

	vol := resp.Items[0]
	info := vol.VolumeInfo
	md := &Metadata{
		Title:           strings.TrimSpace(info.Title),
		Summary:         strings.TrimSpace(info.Description),
		PublicationYear: ExtractYear(info.PublishedDate),
		Language:        strings.ToUpper(info.Language),
		SourceURL:       "https://books.google.com/books?id=" + vol.Id,
		Authors:         strings.Join(info.Authors, ", "),
		Publisher:       info.Publisher,
	}
	if links := info.ImageLinks; links != nil {
		md.CoverURL = firstNonEmpty(links.Large, links.Medium, links.Thumbnail, links.SmallThumbnail)
	}
	return md, nil
}
