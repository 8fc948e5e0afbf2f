package app

import (
	"fmt"

	"github.com/spf13/cobra"

	desk "github.com/guidedesk/guidedesk/internal/app"
	"github.com/guidedesk/guidedesk/internal/events"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import Bokun bookings now (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDeps(opts, func(d *desk.Deps) error {
				e, err := desk.SyncNow(cmd.Context(), d)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch e.Kind {
				case events.SyncCompleted:
					fmt.Fprintf(out, "Synced %d of %d bookings\n", e.SyncedCount, e.TotalCount)
				case events.SyncSkipped:
					fmt.Fprintf(out, "Sync skipped: %s\n", e.Reason)
				default:
					fmt.Fprintln(out, e.String())
				}
				return nil
			})
		},
	}
}

func newAgentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run scheduled syncs without the UI (admin)",
		Long: `Run the sync orchestrator headless. Syncs follow the [sync] table of the
config file, which is reloaded on change. Send SIGUSR1 for a manual sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentOpts := opts.app()
			agentOpts.Console = true
			return desk.RunAgent(cmd.Context(), agentOpts)
		},
	}
}
