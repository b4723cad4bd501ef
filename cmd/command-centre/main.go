// Package main is the command-centre binary: the admin API and scheduler
// (serve) plus one-shot operator commands for migrations, gate runs, pause
// checks, calendar refreshes and API key hashing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Global flags
var (
	jsonOutput bool
	inMemory   bool
)

var rootCmd = &cobra.Command{
	Use:   "command-centre",
	Short: "Calendar, gates and lifecycle authority for 90-day cohorts",
	Long: `command-centre runs the cohort program: it keeps each cohort's calendar,
evaluates the day 1/30/60/90 gates, pauses disengaged participants and
decides graduation. Configuration comes from the environment (and .env).

Examples:
  command-centre serve                      # API + scheduler
  command-centre migrate up                 # Apply schema migrations
  command-centre gates run --cohort c-2026a # Evaluate one cohort now
  command-centre pauses run                 # One pause escalation sweep
  command-centre apikey hash s3cret         # Hash an admin API key`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "in-memory", false, "Use the in-memory store instead of PostgreSQL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(gatesCmd)
	rootCmd.AddCommand(pausesCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(apikeyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		stop()
		os.Exit(1)
	}
}

// printResult writes v as indented JSON with --json, or calls human otherwise.
func printResult(cmd *cobra.Command, v any, human func()) error {
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}
