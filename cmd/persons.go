package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

func newPersonsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "persons",
		Aliases: []string{"person", "people"},
		Short:   "Manage borrowers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List persons by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return printPersons(cmd.OutOrStdout(), opts.format, a.books.Persons(), a.books.Snapshot())
		},
	})

	var in models.PersonInput
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a person",
		Example: `  librarian persons add --name "Ada Lovelace" --email ada@example.org --department Mathematics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			person, err := a.books.AddPerson(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printPersons(cmd.OutOrStdout(), opts.format, []models.Person{person}, a.books.Snapshot())
		},
	}
	add.Flags().StringVar(&in.Name, "name", "", "Full name (required)")
	add.Flags().StringVar(&in.Email, "email", "", "Email address")
	add.Flags().StringVar(&in.Department, "department", "", "Department")
	cmd.AddCommand(add)

	var upd models.PersonInput
	update := &cobra.Command{
		Use:   "update <person-id>",
		Short: "Change a person. Only the flags given are changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch models.PersonPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &upd.Name
			}
			if cmd.Flags().Changed("email") {
				patch.Email = &upd.Email
			}
			if cmd.Flags().Changed("department") {
				patch.Department = &upd.Department
			}

			a, err := openApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			person, err := a.books.UpdatePerson(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			return printPersons(cmd.OutOrStdout(), opts.format, []models.Person{person}, a.books.Snapshot())
		},
	}
	update.Flags().StringVar(&upd.Name, "name", "", "Full name")
	update.Flags().StringVar(&upd.Email, "email", "", "Email address")
	update.Flags().StringVar(&upd.Department, "department", "", "Department")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <person-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a person with no books on loan",
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

			if err := a.books.RemovePerson(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted person %d\n", id)
			return nil
		},
	})

	return cmd
}
