package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guidedesk/guidedesk/internal/api"
	desk "github.com/guidedesk/guidedesk/internal/app"
)

func newToursCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tours",
		Short: "List and edit tours",
	}
	cmd.AddCommand(
		newToursListCmd(opts),
		newTourFlagCmd(opts, "paid", "Mark a tour paid, or unpaid with --unset", func(d *desk.Deps, cmd *cobra.Command, id int64, on bool) (api.Tour, error) {
			return d.Tours.UpdateTourPaidStatus(cmd.Context(), id, on)
		}),
		newTourFlagCmd(opts, "cancel", "Cancel a tour, or restore it with --unset", func(d *desk.Deps, cmd *cobra.Command, id int64, on bool) (api.Tour, error) {
			return d.Tours.UpdateTourCancelledStatus(cmd.Context(), id, on)
		}),
		newTourDeleteCmd(opts),
		newTourAddCmd(opts),
	)
	return cmd
}

var tourHeader = []string{"ID", "Date", "Time", "Title", "Guide", "Status"}

func newToursListCmd(opts *rootOptions) *cobra.Command {
	var (
		refresh bool
		all     bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, func(d *desk.Deps) error {
				if _, err := requireSession(d); err != nil {
					return err
				}
				res := d.Tours.Tours(cmd.Context(), refresh)
				if note := sourceNote(res); note != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), note)
				}
				list := res.Data
				if !all {
					list = activeTours(list)
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				return renderTable(cmd.OutOrStdout(), tourHeader, tourRows(list))
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached listing")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include cancelled tours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func activeTours(list []api.Tour) []api.Tour {
	out := make([]api.Tour, 0, len(list))
	for _, t := range list {
		if !bool(t.Cancelled) {
			out = append(out, t)
		}
	}
	return out
}

type tourFlagFunc func(d *desk.Deps, cmd *cobra.Command, id int64, on bool) (api.Tour, error)

func newTourFlagCmd(opts *rootOptions, use, short string, apply tourFlagFunc) *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
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
				tour, err := apply(d, cmd, id, !unset)
				if err != nil {
					return err
				}
				return renderTable(cmd.OutOrStdout(), tourHeader, tourRows([]api.Tour{tour}))
			})
		},
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "clear the flag instead of setting it")
	return cmd
}

func newTourDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a tour",
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
				if err := d.Tours.DeleteTour(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted tour %d\n", id)
				return nil
			})
		},
	}
}

func newTourAddCmd(opts *rootOptions) *cobra.Command {
	var (
		in        api.NewTour
		paid      bool
		cancelled bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a tour",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("paid") {
				in.Paid = &paid
			}
			if cmd.Flags().Changed("cancelled") {
				in.Cancelled = &cancelled
			}
			if err := in.Validate(); err != nil {
				return err
			}
			return withDeps(opts, func(d *desk.Deps) error {
				if _, err := requireSession(d); err != nil {
					return err
				}
				tour, err := d.Tours.AddTour(cmd.Context(), in)
				if err != nil {
					return err
				}
				return renderTable(cmd.OutOrStdout(), tourHeader, tourRows([]api.Tour{tour}))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "tour title (required)")
	f.StringVar(&in.Date, "date", "", "date as YYYY-MM-DD (required)")
	f.StringVar(&in.Time, "time", "", "start time as HH:MM (required)")
	f.Int64Var(&in.GuideID, "guide", 0, "guide ID (required)")
	f.StringVar(&in.Duration, "duration", "", "free-form duration, e.g. 2h")
	f.StringVar(&in.Description, "description", "", "notes")
	f.BoolVar(&paid, "paid", false, "mark paid")
	f.BoolVar(&cancelled, "cancelled", false, "mark cancelled")
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
