// Package config loads librarian settings from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/librarian/internal/auth"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "librarian.yaml"

const (
	SourceOpenLibrary = "openlibrary"
	SourceGoogleBooks = "googlebooks"
)

type Config struct {
	Database   Database       `yaml:"database"`
	Server     Server         `yaml:"server"`
	Log        Log            `yaml:"log"`
	Validation Validation     `yaml:"validation"`
	Enrichment Enrichment     `yaml:"enrichment"`
	Quotes     Quotes         `yaml:"quotes"`
	Search     Search         `yaml:"search"`
	Users      []auth.Account `yaml:"users"`
}

type Database struct {
	Path string `yaml:"path"`
	// Standalone keeps everything in memory and assigns ids locally.
	Standalone bool `yaml:"standalone"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Validation struct {
	StrictISBN bool `yaml:"strict_isbn"`
}

type Enrichment struct {
	Sources             []string      `yaml:"sources"`
	Timeout             time.Duration `yaml:"timeout"`
	RatePerSecond       float64       `yaml:"rate_per_second"`
	Burst               int           `yaml:"burst"`
	OpenLibraryURL      string        `yaml:"open_library_url"`
	GoogleBooksAPIKey   string        `yaml:"google_books_api_key"`
	GoogleBooksEndpoint string        `yaml:"google_books_endpoint"`
}

type Quotes struct {
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

type Search struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: Database{Path: "librarian.db"},
		Server:   Server{Addr: ":8888"},
		Log:      Log{Level: "info"},
		Enrichment: Enrichment{
			Sources:        []string{SourceOpenLibrary, SourceGoogleBooks},
			Timeout:        15 * time.Second,
			RatePerSecond:  1,
			Burst:          2,
			OpenLibraryURL: "https://openlibrary.org",
		},
		Search: Search{Debounce: 300 * time.Millisecond},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is an error only when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	case errors.Is(err, fs.ErrNotExist) && !required:
		slog.Debug("No config file, using defaults", "path", path)
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Database.Path, "LIBRARIAN_DB")
	setString(&c.Server.Addr, "LIBRARIAN_ADDR")
	setString(&c.Log.Level, "LIBRARIAN_LOG_LEVEL")
	setString(&c.Enrichment.GoogleBooksAPIKey, "GOOGLE_BOOKS_API_KEY")
	setString(&c.Quotes.APIKey, "API_NINJAS_KEY")

	if v := getenv("LIBRARIAN_STANDALONE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LIBRARIAN_STANDALONE %q: %w", v, err)
		}
		c.Database.Standalone = b
	}
	return nil
}

// Validate checks settings that would otherwise fail later.
func (c Config) Validate() error {
	if !c.Database.Standalone && c.Database.Path == "" {
		return errors.New("database.path is required unless database.standalone is set")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	for _, s := range c.Enrichment.Sources {
		switch s {
		case SourceOpenLibrary, SourceGoogleBooks:
		default:
			return fmt.Errorf("unknown enrichment source %q", s)
		}
	}
	if c.Enrichment.Timeout < 0 || c.Search.Debounce < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
