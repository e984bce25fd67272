package cli

import (
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags. Empty values defer to the config
// file and STRIKE_AB_* environment variables.
type rootOptions struct {
	configPath string
	dbPath     string
	driver     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "strike-ab",
		Short: "Strike AB - deterministic A/B testing engine",
		Long: `Strike AB assigns visitors to experiment variants deterministically,
records conversions, and tells you when a variant has won.

Define experiments in YAML, activate them, and either call the HTTP API
from your pages ('strike-ab serve') or instrument manually with
'assign' and 'convert'.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./strike-ab.yaml)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (sqlite) or connection URL (postgres)")
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "store driver: sqlite, postgres or memory")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newCreateCmd(opts),
		newListCmd(opts),
		newStatusCmd(opts, statusActivate),
		newStatusCmd(opts, statusPause),
		newStatusCmd(opts, statusResume),
		newStatusCmd(opts, statusComplete),
		newAssignCmd(opts),
		newConvertCmd(opts),
		newResultsCmd(opts),
		newExportCmd(opts),
		newServeCmd(opts),
		newTokenCmd(opts),
	)

	return cmd
}

func Execute() error {
	return newRootCmd().Execute()
}
