package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/librarian/internal/config"
)

// rootOptions carries the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	verbose    bool
	format     string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "librarian",
		Short: "Manage a small library: books, borrowers, and loans",
		Long: `Librarian keeps a catalogue of books and the people who borrow them.

Books can be enriched with metadata from Open Library and Google Books by ISBN.
The same collection is available from the command line and over an HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(opts.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if opts.verbose {
				cfg.Log.Level = "debug"
			}
			level, err := config.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "Path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", formatTable, "Output format (table, json, yaml)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newBooksCmd(opts))
	cmd.AddCommand(newPersonsCmd(opts))
	cmd.AddCommand(newISBNCmd(opts))
	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newExportCmd(opts))
	cmd.AddCommand(newQuoteCmd(opts))
	cmd.AddCommand(newHashPasswordCmd())

	return cmd
}
