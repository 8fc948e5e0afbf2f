package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidedesk/guidedesk/internal/api"
	desk "github.com/guidedesk/guidedesk/internal/app"
)

func newGuidesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guides",
		Short: "List and edit guides",
	}
	cmd.AddCommand(newGuidesListCmd(opts), newGuideAddCmd(opts), newGuideDeleteCmd(opts))
	return cmd
}

var guideHeader = []string{"ID", "Name", "Phone", "Email", "Languages"}

func newGuidesListCmd(opts *rootOptions) *cobra.Command {
	var refresh, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List guides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, func(d *desk.Deps) error {
				if _, err := requireSession(d); err != nil {
					return err
				}
				res := d.Tours.Guides(cmd.Context(), refresh)
				if note := sourceNote(res); note != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), note)
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), res.Data)
				}
				return renderTable(cmd.OutOrStdout(), guideHeader, guideRows(res.Data))
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newGuideAddCmd(opts *rootOptions) *cobra.Command {
	var (
		in        api.NewGuide
		languages string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Languages = api.ParseLanguages(languages)
			if err := in.Validate(); err != nil {
				return err
			}
			return withDeps(opts, func(d *desk.Deps) error {
				if _, err := requireSession(d); err != nil {
					return err
				}
				guide, err := d.Tours.AddGuide(cmd.Context(), in)
				if err != nil {
					return err
				}
				return renderTable(cmd.OutOrStdout(), guideHeader, guideRows([]api.Guide{guide}))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "full name (required)")
	f.StringVar(&in.Phone, "phone", "", "phone number (required)")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&languages, "languages", "", "comma separated languages")
	f.StringVar(&in.Bio, "bio", "", "short biography")
	f.StringVar(&in.PhotoURL, "photo-url", "", "portrait URL")
	return cmd
}

func newGuideDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a guide; their tours become unassigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(opts, func(d *desk.Deps) error {
				if _, err := requireSession(d); err != nil {
					return err
				}
				if err := d.Tours.DeleteGuide(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted guide %d\n", id)
				return nil
			})
		},
	}
}
