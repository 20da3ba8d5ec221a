package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var staleCutoff string

// staleCmd reports stocked remote products with no sales since a cutoff.
var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Report stocked products unsold since a cutoff date",
	Long: `Scan the remote store for products that still carry stock but have
not appeared in any order line item since the cutoff date, and print
their ids.

Examples:
  product-connect stale --since 2025-01-01   # Unsold since new year`,
	RunE: runStale,
}

func init() {
	rootCmd.AddCommand(staleCmd)

	staleCmd.Flags().StringVar(&staleCutoff, "since", "", "Cutoff date (YYYY-MM-DD), required")
	staleCmd.MarkFlagRequired("since")
}

func runStale(cmd *cobra.Command, args []string) error {
	cutoff, err := time.Parse("2006-01-02", staleCutoff)
	if err != nil {
		return fmt.Errorf("invalid cutoff date %q, expected YYYY-MM-DD: %w", staleCutoff, err)
	}

	application, log, err := buildApp()
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Stop(); err != nil {
			log.WithError(err).Error("Application shutdown error")
		}
	}()

	ids, err := application.FindStaleProducts(cmd.Context(), cutoff)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d stale product(s)\n", len(ids))
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
