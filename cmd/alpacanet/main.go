// Alpacanet discovers Alpaca instrument servers on the local network and
// keeps a registry of the units and remote devices they report.
//
// It answers Alpaca discovery requests on UDP port 32227, periodically
// broadcasts its own requests, polls every unit that replies for its
// configured devices, and optionally records sightings to sqlite and
// serves the registry over HTTP and websocket.
//
// Usage:
//
//	alpacanet [command] [flags]
//
// See 'alpacanet --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/alpacanet/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "alpacanet",
	Short: "Alpaca discovery and device registry",
	Long: `Discover Alpaca instrument servers on the local network.

alpacanet answers Alpaca discovery requests, broadcasts its own, and polls
every unit that replies for the devices it serves (cameras, focusers,
mounts, domes and so on). Units can also be listed by hand in an endpoints
file for networks where broadcasts do not reach.

Settings are read from the config file (see 'alpacanet config init') and
can be overridden with flags.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides ALPACANET_LOG_LEVEL")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", version.Product, version.Full())
	},
}
