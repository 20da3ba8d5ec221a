package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/logger"
)

// migrateCmd applies the local store schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the local database schema",
	Long: `Create or update the local database schema.

Every table is created with IF NOT EXISTS, so the command is safe to run
against an existing database. Run this before the first serve or sync.

Examples:
  product-connect migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	st, err := store.New(&cfg.MySQL, cfg.GetMySQLDSN(), log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("Schema applied")
	return nil
}
