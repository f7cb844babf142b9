package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/librarian/internal/dataset"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import books from a parquet, jsonl or json file",
		Long: `Adds every record in the file as a new, available book. Records that fail
validation are reported and skipped.`,
		Example: `  librarian import books.parquet
  librarian import books.jsonl --limit 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := dataset.NewLoader(args[0]).Load(limit)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}

			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := dataset.Import(cmd.Context(), a.books, records)
			if done, perr := printStructured(cmd.OutOrStdout(), opts.format, summary); done {
				if perr != nil {
					return perr
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d records\n", summary.Imported, len(records))
			for _, f := range summary.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  record %d (%s): %s\n", f.Index, f.Title, f.Error)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Import at most this many records (0 for all)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var loans bool

	cmd := &cobra.Command{
		Use:   "export <file.parquet>",
		Short: "Export books or loan history as parquet",
		Example: `  librarian export books.parquet
  librarian export loans.parquet --loans`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".parquet") {
				return fmt.Errorf("export path must end in .parquet: %s", path)
			}

			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()

			what, n := "books", 0
			if loans {
				history := a.books.Loans(0)
				what, n = "loans", len(history)
				err = dataset.WriteLoans(f, history)
			} else {
				books := a.books.Books()
				n = len(books)
				err = dataset.WriteBooks(f, books)
			}
			if err != nil {
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s to %s\n", n, what, path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&loans, "loans", false, "Export the borrowing history instead of books")
	return cmd
}
