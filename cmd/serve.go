package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/librarian/internal/auth"
	"github.com/lehigh-university-libraries/librarian/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the librarian HTTP API.

Books, persons, loans, ISBN lookups and edit sessions are served as JSON under
/api/. Prometheus metrics are served on /metrics. When users are configured,
every /api/ request needs HTTP basic credentials.`,
		Example: `  # Start server on default address :8888
  librarian serve

  # Start server on custom address
  librarian serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.cfg.Server.Addr = addr
			}

			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var provider auth.Provider
			users, err := auth.NewStaticProvider(opts.cfg.Users)
			if err != nil {
				return err
			}
			if users.Enabled() {
				provider = users
			} else {
				slog.Warn("No users configured, API is unauthenticated")
			}

			var quoteSource handlers.QuoteSource
			if a.quotes != nil {
				quoteSource = a.quotes
			}
			handler := handlers.New(a.books, a.sessions, a.resolver, quoteSource)

			server := &http.Server{
				Addr:              opts.cfg.Server.Addr,
				Handler:           handler.Routes(provider),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Librarian API available", "addr", server.Addr, "standalone", a.books.Standalone())
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8888", "Address to listen on")

	return cmd
}
