// Package quotes serves one quote per calendar day, cached in the store and
// fetched from API Ninjas when the day has none yet.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

const DefaultEndpoint = "https://api.api-ninjas.com/v2/randomquotes?categories=philosophy,leadership"

var ErrNoAPIKey = errors.New("API Ninjas key not configured")

// Store persists daily quotes.
type Store interface {
	QuoteForDate(ctx context.Context, date string) (models.Quote, bool, error)
	SaveQuote(ctx context.Context, q models.Quote) (models.Quote, error)
	DeleteQuotesExcept(ctx context.Context, date string) error
}

// Client fetches random quotes from API Ninjas.
type Client struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		Endpoint: DefaultEndpoint,
		APIKey:   apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Random fetches one quote. Date is left empty.
func (c *Client) Random(ctx context.Context) (models.Quote, error) {
	if c.APIKey == "" {
		return models.Quote{}, ErrNoAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Quote{}, fmt.Errorf("API Ninjas returned status %d: %s", resp.StatusCode, string(body))
	}

	var items []struct {
		Quote  string `json:"quote"`
		Work   string `json:"work"`
		Author string `json:"author"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return models.Quote{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(items) == 0 {
		return models.Quote{}, errors.New("API Ninjas returned no quotes")
	}
	return models.Quote{Quote: items[0].Quote, Book: items[0].Work, Author: items[0].Author}, nil
}

// Fetcher returns a random quote.
type Fetcher interface {
	Random(ctx context.Context) (models.Quote, error)
}

type Service struct {
	store   Store
	fetcher Fetcher
	now     func() time.Time
}

func NewService(store Store, fetcher Fetcher) *Service {
	return &Service{store: store, fetcher: fetcher, now: time.Now}
}

// Today returns today's quote, fetching and saving one if needed. Quotes
// from other days are removed afterwards; a failure there is only logged.
func (s *Service) Today(ctx context.Context) (models.Quote, error) {
	today := s.now().UTC().Format(time.DateOnly)

	q, ok, err := s.store.QuoteForDate(ctx, today)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to read daily quote: %w", err)
	}
	if ok {
		slog.Debug("Using cached daily quote", "date", today)
		return q, nil
	}

	q, err = s.fetcher.Random(ctx)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to fetch daily quote: %w", err)
	}
	q.Date = today
	saved, err := s.store.SaveQuote(ctx, q)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to save daily quote: %w", err)
	}

	if err := s.store.DeleteQuotesExcept(ctx, today); err != nil {
		slog.Error("Failed to delete old quotes", "error", err)
	}
	return saved, nil
}
