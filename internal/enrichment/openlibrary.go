package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenLibrary looks books up through the Open Library books and works APIs.
type OpenLibrary struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewOpenLibrary creates an Open Library source against openlibrary.org.
func NewOpenLibrary() *OpenLibrary {
	return &OpenLibrary{
		BaseURL: "https://openlibrary.org",
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (o *OpenLibrary) Name() string { return "Open Library" }

// textValue decodes fields that Open Library returns either as a plain
// string or as {"type": "/type/text", "value": "..."}.
type textValue string

func (t *textValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = textValue(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = textValue(obj.Value)
	return nil
}

type openLibraryBook struct {
	Key         string `json:"key"`
	Title       string `json:"title"`
	PublishDate string `json:"publish_date"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
	Languages []struct {
		Key string `json:"key"`
	} `json:"languages"`
	Works []struct {
		Key string `json:"key"`
	} `json:"works"`
	Excerpts []struct {
		Text string `json:"text"`
	} `json:"excerpts"`
	Notes textValue `json:"notes"`
}

// Lookup fetches the edition record and, when it links a work, the work's
// description.
func (o *OpenLibrary) Lookup(ctx context.Context, isbn string) (*Metadata, error) {
	bibKey := "ISBN:" + isbn
	endpoint := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data", o.BaseURL, url.QueryEscape(bibKey))

	var resp map[string]openLibraryBook
	if err := o.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to query Open Library books API: %w", err)
	}
	book, ok := resp[bibKey]
	if !ok {
		return nil, nil
	}

	md := &Metadata{
		Title:           strings.TrimSpace(book.Title),
		PublicationYear: ExtractYear(book.PublishDate),
		CoverURL:        firstNonEmpty(book.Cover.Large, book.Cover.Medium, book.Cover.Small),
	}

	var description string
	if len(book.Works) > 0 && book.Works[0].Key != "" {
		workKey := book.Works[0].Key
		md.SourceURL = o.BaseURL + workKey
		description = o.workDescription(ctx, workKey)
	}
	if description == "" && len(book.Excerpts) > 0 {
		description = strings.TrimSpace(book.Excerpts[0].Text)
	}
	if description == "" {
		description = strings.TrimSpace(string(book.Notes))
	}
	md.Summary = description

	if md.SourceURL == "" {
		if book.Key != "" {
			md.SourceURL = o.BaseURL + book.Key
		} else {
			md.SourceURL = o.BaseURL + "/isbn/" + isbn
		}
	}

	if len(book.Languages) > 0 {
		key := book.Languages[0].Key
		md.Language = strings.ToUpper(key[strings.LastIndex(key, "/")+1:])
	}

	names := make([]string, 0, len(book.Authors))
	for _, a := range book.Authors {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	md.Authors = strings.Join(names, ", ")
	if len(book.Publishers) > 0 {
		md.Publisher = book.Publishers[0].Name
	}

	return md, nil
}

// workDescription returns the description of a work, or "" when it cannot
// be fetched. A failure here does not fail the lookup.
func (o *OpenLibrary) workDescription(ctx context.Context, workKey string) string {
	var work struct {
		Description textValue `json:"description"`
	}
	if err := o.getJSON(ctx, o.BaseURL+workKey+".json", &work); err != nil {
		slog.Warn("Failed to fetch work description", "work", workKey, "error", err)
		return ""
	}
	return strings.TrimSpace(string(work.Description))
}

func (o *OpenLibrary) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
