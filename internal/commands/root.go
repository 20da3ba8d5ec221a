package commands

import (
	"github.com/spf13/cobra"
)

var (
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "product-connect",
	Short: "Bidirectional Shopify catalog synchronization engine",
	Long: `A catalog synchronization engine that keeps a local product database
and a Shopify store in agreement in both directions.

Features:
• Cost-aware GraphQL rate limiting against the remote leaky bucket
• Retrying executor with error-class-specific backoff
• Cursor pagination over arbitrarily large catalogs
• Timestamp-based conflict resolution between local and remote edits
• Batched transactional writes with periodic commits
• NATS-mirrored operator notifications with rate limiting`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
