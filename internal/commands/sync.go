package commands

import (
	"github.com/spf13/cobra"
)

// syncCmd runs a single synchronization pass and exits.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass",
	Long: `Run one full import-then-export pass and exit.

The pass imports remote catalog changes since the last checkpoint, then
exports locally changed products back. A second engine instance holding
the shared lock makes this a no-op.

Examples:
  product-connect sync                 # One pass with default settings
  product-connect sync --verbose      # One pass with debug logging`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	application, log, err := buildApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Stop(); err != nil {
			log.WithError(err).Error("Application shutdown error")
		}
	}()

	return application.RunOnce(cmd.Context())
}
