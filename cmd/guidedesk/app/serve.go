package app

import (
	"github.com/spf13/cobra"

	"github.com/guidedesk/guidedesk/internal/logging"
	"github.com/guidedesk/guidedesk/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		envFile  string
		addr     string
		logLevel string
		jsonLogs bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the guidedesk API server",
		Long: `Run the REST API, the websocket change feed and the Bokun importer.

Settings come from the environment, optionally primed from --env-file:
PORT, CORS_ORIGIN, JWT_SECRET, JWT_TTL_HOURS, ADMIN_USERNAME, ADMIN_PASSWORD,
SEED_FILE, DB_DRIVER, DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME,
BOKUN_ACCESS_KEY, BOKUN_SECRET_KEY, BOKUN_BASE_URL, BOKUN_TIMEZONE,
BOKUN_LOOKBACK_DAYS, BOKUN_LOOKAHEAD_DAYS and BOKUN_DEFAULT_GUIDE_ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig(envFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			log, err := logging.New(logging.Options{Level: logLevel, Console: !jsonLogs})
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return server.ListenAndServe(cmd.Context(), cfg, log.Named("server"))
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded when present")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "log JSON instead of console lines")
	return cmd
}
