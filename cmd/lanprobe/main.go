// Lanprobe discovers hosts and services on the local network.
//
// It speaks multicast DNS (including DNS-SD service browsing), SSDP and
// UPnP, reconciles the answers into typed records and presents them on
// the terminal, as machine-readable output, or as a WebSocket event
// feed.
//
// Usage:
//
//	lanprobe [command] [flags]
//
// Running without arguments launches the interactive browser.
// See 'lanprobe --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/lanprobe/internal/logging"
	"github.com/muurk/lanprobe/internal/version"
)

func main() {
	if err := logging.InitializeFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lanprobe",
	Short: "Local network service discovery",
	Long: `Lanprobe locates hosts and services on the local network using
multicast DNS, SSDP and UPnP device descriptions.

If no command is specified, the interactive browser will launch.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the browser when no subcommand provided
		return runBrowse(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lanprobe %s (commit: %s)\n", version.Version, version.Commit)
	},
}
