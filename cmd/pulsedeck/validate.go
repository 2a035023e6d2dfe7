package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsedeck"
	"github.com/jpalmerr/pulsedeck/config"
)

// validateCmd validates a config file without contacting the backend.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PulseDeck configuration file without contacting the backend.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsedeck validate -c config.yaml
  pulsedeck validate --config /etc/pulsedeck/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return errors.New(`required flag(s) "config" not set`)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	mirror := "disabled"
	if cfg.ListenPort > 0 {
		mirror = fmt.Sprintf("http://localhost:%d", cfg.ListenPort)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  API base:  %s\n", cfg.APIBase)
	fmt.Fprintf(out, "  WS base:   %s\n", cfg.WSBase)
	fmt.Fprintf(out, "  Channels:  %s\n", strings.Join(cfg.Channels, ", "))
	fmt.Fprintf(out, "  Reconnect: %d attempts\n", cfg.Reconnect.Attempts())
	fmt.Fprintf(out, "  Storage:   %s\n", cfg.Storage.Driver)
	fmt.Fprintf(out, "  Mirror:    %s\n", mirror)
	fmt.Fprintf(out, "  Refresh:   %s\n", refreshSummary(cfg))

	return nil
}

// refreshSummary lists every query with its effective interval.
func refreshSummary(cfg *config.Config) string {
	names := pulsedeck.Queries()
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		d, _ := pulsedeck.DefaultRefreshInterval(name)
		if custom, ok := cfg.Refresh[name]; ok {
			d = custom.Duration()
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, d))
	}
	return strings.Join(parts, " ")
}
