// Package app wires the guidedesk command line.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	desk "github.com/guidedesk/guidedesk/internal/app"
)

// Build metadata, set with -ldflags "-X".
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// rootOptions are the persistent flags shared by the client commands.
type rootOptions struct {
	configPath string
	prefsPath  string
	apiURL     string
	logLevel   string
	poll       time.Duration
}

func (o *rootOptions) app() desk.Options {
	return desk.Options{
		ConfigPath: o.configPath,
		PrefsPath:  o.prefsPath,
		APIURL:     o.apiURL,
		LogLevel:   o.logLevel,
		PollEvery:  o.poll,
	}
}

// NewRootCmd builds the command tree. Without a subcommand it opens the TUI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "guidedesk",
		Short: "Tour back-office client",
		Long: `guidedesk manages scheduled tours and guides against the guidedesk API.

Run without a subcommand to open the terminal UI. Administrators also run the
Bokun sync from here, either interactively or with the headless agent.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return desk.Run(cmd.Context(), opts.app())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/guidedesk/config.toml)")
	flags.StringVar(&opts.prefsPath, "prefs", "", "UI preferences file (default ~/.config/guidedesk/prefs.toml)")
	flags.StringVar(&opts.apiURL, "api-url", "", "API base URL, overrides api_url")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error, overrides log_level")
	root.Flags().DurationVar(&opts.poll, "poll", 0, "listing refresh interval (default from config)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newSyncCmd(opts),
		newAgentCmd(opts),
		newToursCmd(opts),
		newGuidesCmd(opts),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func currentVersion() versionInfo {
	return versionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeVersion(cmd.OutOrStdout(), currentVersion(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "output format (json)")
	return cmd
}

func writeVersion(w io.Writer, info versionInfo, format string) error {
	switch format {
	case "json":
		return printJSON(w, info)
	case "":
		line := "guidedesk " + info.Version
		if info.Commit != "" {
			line += " (" + info.Commit + ")"
		}
		_, err := fmt.Fprintf(w, "%s %s %s\n", line, info.GoVersion, info.Platform)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
