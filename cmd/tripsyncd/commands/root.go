// Package commands implements the tripsyncd CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// Global flags.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tripsyncd",
	Short: "tripsyncd - offline coordination and retry-sync daemon",
	Long: `tripsyncd watches device connectivity, maintains a manual offline
override, and drains a queue of deferred sync work with exponential backoff
once the device is allowed back online.

Use "tripsyncd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: defaults + TRIPSYNC_* env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("tripsyncd %s (commit: %s)\n", Version, Commit)
	},
}
