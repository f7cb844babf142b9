package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lehigh-university-libraries/librarian/internal/editing"
	"github.com/lehigh-university-libraries/librarian/internal/models"
	"github.com/lehigh-university-libraries/librarian/internal/search"
)

func newBooksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "books",
		Aliases: []string{"book"},
		Short:   "List, edit, lend and return books",
	}

	cmd.AddCommand(newBooksListCmd(opts))
	cmd.AddCommand(newBooksShowCmd(opts))
	cmd.AddCommand(newBooksAddCmd(opts))
	cmd.AddCommand(newBooksUpdateCmd(opts))
	cmd.AddCommand(newBooksDeleteCmd(opts))
	cmd.AddCommand(newBorrowCmd(opts))
	cmd.AddCommand(newReturnCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))

	return cmd
}

// listFlags are shared by list and search.
type listFlags struct {
	status string
	sort   string
	desc   bool
}

func (f *listFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.status, "status", search.StatusAll, "Filter by status (all, available, borrowed)")
	fs.StringVar(&f.sort, "sort", "", "Sort by column (title, status, owner)")
	fs.BoolVar(&f.desc, "desc", false, "Sort descending")
}

func (f *listFlags) parse() (string, search.SortKey, error) {
	status, err := search.ParseStatus(f.status)
	if err != nil {
		return "", "", err
	}
	key, err := search.ParseSortKey(f.sort)
	if err != nil {
		return "", "", err
	}
	return status, key, nil
}

func newBooksListCmd(opts *rootOptions) *cobra.Command {
	var (
		lf    listFlags
		query string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books, newest first",
		Example: `  # Books currently out on loan, sorted by title
  librarian books list --status borrowed --sort title

  # Books whose title, ISBN or borrower matches
  librarian books list --query tolkien`,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, key, err := lf.parse()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			snap := a.books.Snapshot()
			books := search.Sort(search.Filter(snap.Books, snap, search.Criteria{Query: query, Status: status}), key, lf.desc)
			return printBooks(cmd.OutOrStdout(), opts.format, books, snap)
		},
	}

	lf.register(cmd.Flags())
	cmd.Flags().StringVarP(&query, "query", "q", "", "Match title, ISBN or borrower name")
	return cmd
}

func newBooksShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			book, ok := a.books.Book(id)
			if !ok {
				return fmt.Errorf("book %d not found", id)
			}
			return printBook(cmd.OutOrStdout(), opts.format, book, a.books.Snapshot())
		},
	}
}

// bookFlags holds the descriptive fields a user can set on the command line.
type bookFlags struct {
	title, summary, coverURL, language, isbn, owner, sourceURL string
	year                                                       int
}

func (f *bookFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "Title")
	fs.StringVar(&f.summary, "summary", "", "Summary")
	fs.StringVar(&f.coverURL, "cover-url", "", "Cover image URL")
	fs.StringVar(&f.language, "language", "", "Language")
	fs.StringVar(&f.isbn, "isbn", "", "ISBN-10 or ISBN-13")
	fs.StringVar(&f.owner, "owner", "", "Owner")
	fs.StringVar(&f.sourceURL, "source-url", "", "Catalogue page URL")
	fs.IntVar(&f.year, "year", 0, "Publication year (0 clears it on update)")
}

// patch returns only the fields whose flags were given.
func (f *bookFlags) patch(fs *pflag.FlagSet) models.BookPatch {
	var p models.BookPatch
	str := func(name string, v string) *string {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}
	p.Title = str("title", f.title)
	p.Summary = str("summary", f.summary)
	p.CoverURL = str("cover-url", f.coverURL)
	p.Language = str("language", f.language)
	p.ISBN = str("isbn", f.isbn)
	p.Owner = str("owner", f.owner)
	p.SourceURL = str("source-url", f.sourceURL)
	if fs.Changed("year") {
		if f.year == 0 {
			p.ClearYear = true
		} else {
			y := f.year
			p.PublicationYear = &y
		}
	}
	return p
}

func newBooksAddCmd(opts *rootOptions) *cobra.Command {
	var (
		bf    bookFlags
		fetch bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book",
		Long: `Add a book to the collection.

With --fetch the ISBN is looked up first and the result fills every field not
given on the command line.`,
		Example: `  # Add a book by hand
  librarian books add --title "The Hobbit" --owner "Main library"

  # Fill in the rest from Open Library or Google Books
  librarian books add --isbn 9780261103344 --owner "Main library" --fetch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.sessions.Open(nil, "")
			if err != nil {
				return err
			}
			defer func() { _ = a.sessions.Close(session.ID) }()

			if _, err := a.sessions.Edit(session.ID, bf.patch(cmd.Flags())); err != nil {
				return err
			}
			if fetch {
				if err := fetchInto(cmd, a, session.ID, editing.TriggerAuto); err != nil {
					return err
				}
			}

			book, err := a.sessions.Commit(cmd.Context(), session.ID)
			if err != nil {
				return err
			}
			return printBook(cmd.OutOrStdout(), opts.format, book, a.books.Snapshot())
		},
	}

	bf.register(cmd.Flags())
	cmd.Flags().BoolVar(&fetch, "fetch", false, "Look up the ISBN and fill in missing fields")
	return cmd
}

func newBooksUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		bf      bookFlags
		refetch bool
	)

	cmd := &cobra.Command{
		Use:   "update <book-id>",
		Short: "Change the descriptive fields of a book",
		Long: `Change the descriptive fields of a book. Only the flags given are changed.

With --refetch the book's ISBN is looked up again and the result replaces
every fetched field except owner; flags given on the command line still win.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.sessions.Open(&id, "")
			if err != nil {
				return err
			}
			defer func() { _ = a.sessions.Close(session.ID) }()

			if refetch {
				if err := fetchInto(cmd, a, session.ID, editing.TriggerExplicit); err != nil {
					return err
				}
			}
			if _, err := a.sessions.Edit(session.ID, bf.patch(cmd.Flags())); err != nil {
				return err
			}

			book, err := a.sessions.Commit(cmd.Context(), session.ID)
			if err != nil {
				return err
			}
			return printBook(cmd.OutOrStdout(), opts.format, book, a.books.Snapshot())
		},
	}

	bf.register(cmd.Flags())
	cmd.Flags().BoolVar(&refetch, "refetch", false, "Look up the ISBN again and replace fetched fields")
	return cmd
}

func fetchInto(cmd *cobra.Command, a *app, sessionID string, trigger editing.Trigger) error {
	session, outcome, err := a.sessions.Fetch(cmd.Context(), sessionID, trigger)
	if err != nil {
		return err
	}
	switch {
	case outcome.Skipped:
	case !outcome.Result.Found:
		fmt.Fprintf(cmd.ErrOrStderr(), "No metadata found for ISBN %s\n", session.Draft.ISBN)
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "Metadata from %s\n", session.Provenance)
		if session.Suggestion != nil && len(session.Suggestion.Skipped) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Kept your values for: %v\n", session.Suggestion.Skipped)
		}
	}
	return nil
}

func newBooksDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <book-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a book that is not on loan",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.books.RemoveBook(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted book %d\n", id)
			return nil
		},
	}
}

func newBorrowCmd(opts *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "borrow <book-id> <person-id>",
		Short: "Lend a book to a person",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseID(args[0])
			if err != nil {
				return err
			}
			personID, err := parseID(args[1])
			if err != nil {
				return err
			}
			when := time.Now()
			if date != "" {
				if when, err = time.Parse(time.DateOnly, date); err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
				}
			}

			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			book, err := a.books.Borrow(cmd.Context(), bookID, personID, when)
			if err != nil {
				return err
			}
			return printBook(cmd.OutOrStdout(), opts.format, book, a.books.Snapshot())
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Borrow date (YYYY-MM-DD), defaults to today")
	return cmd
}

func newReturnCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "return <book-id>",
		Short: "Mark a borrowed book as returned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			book, err := a.books.ReturnBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printBook(cmd.OutOrStdout(), opts.format, book, a.books.Snapshot())
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history [book-id]",
		Short: "Show borrowing history, for one book or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				var err error
				if id, err = parseID(args[0]); err != nil {
					return err
				}
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return printLoans(cmd.OutOrStdout(), opts.format, a.books.Loans(id), a.books.Snapshot())
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var lf listFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search books interactively",
		Long: `Reads queries from standard input, one per line, and prints the matching
books once typing pauses. An empty line shows every book. End with Ctrl+D.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, key, err := lf.parse()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			debouncer := search.NewDebouncer(opts.cfg.Search.Debounce, func(query string) {
				snap := a.books.Snapshot()
				books := search.Sort(search.Filter(snap.Books, snap, search.Criteria{Query: query, Status: status}), key, lf.desc)
				fmt.Fprintf(out, "\n%d match(es) for %q\n", len(books), query)
				if err := printBooks(out, opts.format, books, snap); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
			defer debouncer.Stop()

			scanner := bufio.NewScanner(cmd.InOrStdin())
			if cmd.InOrStdin() == os.Stdin {
				fmt.Fprintln(cmd.ErrOrStderr(), "Type to search, Ctrl+D to quit")
			}
			for scanner.Scan() {
				select {
				case <-cmd.Context().Done():
					return nil
				default:
				}
				debouncer.Update(strings.TrimSpace(scanner.Text()))
			}
			debouncer.Flush()
			return scanner.Err()
		},
	}

	lf.register(cmd.Flags())
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
