// Package main is the entry point for the pulsedeck CLI.
//
// PulseDeck can be used either as a library (SDK) or through this binary,
// which signs in to a monitoring backend, lists what it knows and follows
// the live channels.
//
// Usage:
//
//	pulsedeck login -u admin            # Sign in and remember the session
//	pulsedeck services                  # List monitored services
//	pulsedeck watch -c pulsedeck.yaml   # Follow live updates until Ctrl+C
//	pulsedeck validate -c config.yaml   # Validate configuration
//	pulsedeck version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsedeck/config"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsedeck",
	Short: "A terminal client for the service monitoring backend",
	Long: `PulseDeck is a client for a service monitoring backend.

It signs in with a username and password, keeps the session on disk,
lists services, events and resource metrics, and follows the backend's
live channels with automatic reconnects.

Quick start:
  1. Run: pulsedeck login -u admin
  2. Run: pulsedeck services
  3. Run: pulsedeck watch

Without a config file the backend is read from PULSEDECK_API_BASE and
PULSEDECK_WS_BASE, falling back to http://localhost:8000.`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsedeck binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pulsedeck %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (optional)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the file named by --config, or the defaults when the
// flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
