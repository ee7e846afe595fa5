package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ttinbox/inboxd/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate an inboxd configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  inboxd validate -c config.yaml
  inboxd validate --config /etc/inboxd/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	canvas := "disabled"
	if cfg.Canvas.Enabled() {
		if n := len(cfg.Canvas.CourseIDs); n > 0 {
			canvas = fmt.Sprintf("%d configured courses", n)
		} else {
			canvas = "course discovery"
		}
	}
	storeKind := "memory"
	if cfg.Database != nil {
		storeKind = fmt.Sprintf("postgres (%s:%d/%s)", cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)
	}
	ladder := len(cfg.Escalation.Offsets)
	if ladder == 0 {
		ladder = 4 // default 72h, 24h, 6h, 1h
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Tick interval: %s\n", cfg.TickInterval.Duration())
	fmt.Printf("  Canvas:        %s\n", canvas)
	fmt.Printf("  Store:         %s\n", storeKind)
	fmt.Printf("  Escalation:    %d rungs\n", ladder)

	return nil
}
