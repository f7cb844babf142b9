package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newISBNCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isbn",
		Short: "Look up book metadata",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <isbn>...",
		Short: "Look up metadata for one or more ISBNs",
		Long: `Queries the configured sources in order and prints the first match for
each ISBN. Nothing is saved.`,
		Example: `  librarian isbn lookup 978-0-261-10334-4
  librarian isbn lookup 0261103342 9780547928227 --format yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := newResolver(cmd.Context(), opts.cfg.Enrichment)
			if err != nil {
				return err
			}

			type lookup struct {
				ISBN   string `json:"isbn" yaml:"isbn"`
				Found  bool   `json:"found" yaml:"found"`
				Source string `json:"source,omitempty" yaml:"source,omitempty"`
				Title  string `json:"title,omitempty" yaml:"title,omitempty"`
				Year   *int   `json:"publication_year,omitempty" yaml:"publication_year,omitempty"`
				Lang   string `json:"language,omitempty" yaml:"language,omitempty"`
				Cover  string `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
				URL    string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
				Error  string `json:"error,omitempty" yaml:"error,omitempty"`
			}
			results := make([]lookup, len(args))

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(4)
			for i, isbn := range args {
				g.Go(func() error {
					res, err := resolver.Resolve(ctx, isbn)
					results[i] = lookup{ISBN: isbn, Found: res.Found}
					if err != nil {
						results[i].Error = err.Error()
						return nil
					}
					if s := res.Suggestion; s != nil {
						results[i].ISBN = s.ISBN
						results[i].Source = s.Provenance
						results[i].Title = s.Title
						results[i].Year = s.PublicationYear
						results[i].Lang = s.Language
						results[i].Cover = s.CoverURL
						results[i].URL = s.SourceURL
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if done, err := printStructured(out, opts.format, results); done {
				return err
			}
			for _, r := range results {
				switch {
				case r.Error != "":
					fmt.Fprintf(out, "%s: %s\n", r.ISBN, r.Error)
				case !r.Found:
					fmt.Fprintf(out, "%s: not found\n", r.ISBN)
				default:
					year := ""
					if r.Year != nil {
						year = fmt.Sprintf(" (%d)", *r.Year)
					}
					fmt.Fprintf(out, "%s: %s%s [%s] via %s\n", r.ISBN, r.Title, year, r.Lang, r.Source)
				}
			}
			return nil
		},
	})

	return cmd
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quote",
		Short: "Print the quote of the day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.quotes == nil {
				return fmt.Errorf("quotes need a database, not available in standalone mode")
			}
			q, err := a.quotes.Today(cmd.Context())
			if err != nil {
				return err
			}
			if done, err := printStructured(cmd.OutOrStdout(), opts.format, q); done {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q\n  - %s, %s\n", q.Quote, q.Author, q.Book)
			return nil
		},
	}
}
