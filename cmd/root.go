// Package cmd defines the CLI commands for the leadscout executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagVerbose bool
	flagDevLog  bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscout",
		Short: "Discovers business contact pages from search results",
		Long: `leadscout takes a delimited file of business records, searches the web
for each one, scores candidate pages against the record's address and
keywords, and writes the discovered website, phone number and email
address back out, one row per input row.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&flagDevLog, "dev-log", false, "human-readable console logs")
	cmd.AddCommand(newRunCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
