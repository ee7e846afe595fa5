// Package main is the entry point for the inboxd CLI.
//
// Inboxd can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	inboxd serve -c config.yaml               # Start the reminder pipeline
//	inboxd validate -c config.yaml            # Validate configuration
//	inboxd migrate -c config.yaml migrations  # Apply database migrations
//	inboxd version                            # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
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
	Use:   "inboxd",
	Short: "An escalating assignment-reminder service",
	Long: `Inboxd polls Canvas for upcoming assignments, schedules a ladder of
reminders per deadline, and delivers them over SMS with increasing
urgency. Acknowledging a reminder halts its remaining escalation.

Quick start:
  1. Create a config file (inboxd.yaml)
  2. Run: inboxd serve -c inboxd.yaml
  3. POST one-off reminders to http://localhost:8080/send-reminder

Example config:
  default_phone: "+15557654321"
  canvas:
    base_url: https://canvas.example.edu
    token: ${CANVAS_TOKEN}
  sms:
    url: https://sms.example.com
    token: ${SMS_TOKEN}
    from: "+15550001111"`,
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
	Long:  `Print the version, commit hash, and build date of this inboxd binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inboxd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
