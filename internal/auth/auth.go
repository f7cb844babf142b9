// Package auth gates access to the HTTP API. It only answers whether a
// request belongs to a signed-in librarian; the collection never sees it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// User is an authenticated librarian.
type User struct {
	Email string `json:"email"`
}

// Provider authenticates a user by email and password.
type Provider interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
}

// Account is a configured user with a bcrypt password hash.
type Account struct {
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"`
}

// StaticProvider checks credentials against a fixed list of accounts.
type StaticProvider struct {
	hashes map[string][]byte
}

func NewStaticProvider(accounts []Account) (*StaticProvider, error) {
	p := &StaticProvider{hashes: make(map[string][]byte, len(accounts))}
	for _, a := range accounts {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" {
			return nil, fmt.Errorf("account with empty email")
		}
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return nil, fmt.Errorf("account %s: invalid password hash: %w", email, err)
		}
		p.hashes[email] = []byte(a.PasswordHash)
	}
	return p, nil
}

// Enabled reports whether any account is configured.
func (p *StaticProvider) Enabled() bool { return len(p.hashes) > 0 }

func (p *StaticProvider) Authenticate(_ context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, ok := p.hashes[email]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return User{Email: email}, nil
}

// HashPassword returns a bcrypt hash suitable for an Account.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

type ctxKey struct{}

// FromContext returns the user stored by Middleware.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}

// Middleware requires HTTP basic credentials accepted by provider.
func Middleware(provider Provider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="librarian"`)
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		user, err := provider.Authenticate(r.Context(), email, password)
		if err != nil {
			slog.Warn("Rejected login", "email", email, "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="librarian"`)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}
