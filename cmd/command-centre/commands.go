package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/command-centre/internal/application/command"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/command-centre/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

var migrateYes bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.InMemory {
			return errors.New("migrations need DATABASE_URL, not the in-memory store")
		}
		return migrateUp(cfg.Database.URL, log)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !migrateYes {
			return errors.New("refusing to roll back without --yes")
		}
		return withMigrator(func(m *postgres.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(func(m *postgres.Migrator) error {
			status, err := m.Status()
			if err != nil {
				return err
			}
			return printResult(cmd, status, func() {
				out := cmd.OutOrStdout()
				switch {
				case status.Empty:
					fmt.Fprintln(out, "no migrations applied")
				case status.Dirty:
					fmt.Fprintf(out, "version %d (dirty: a migration failed halfway, fix and force)\n", status.Version)
				default:
					fmt.Fprintf(out, "version %d\n", status.Version)
				}
			})
		})
	},
}

func withMigrator(fn func(*postgres.Migrator) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.InMemory {
		return errors.New("migrations need DATABASE_URL, not the in-memory store")
	}
	m, err := postgres.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

// ══════════════════════════════════════════════════════════════════════════════
// GATES
// ══════════════════════════════════════════════════════════════════════════════

var gatesCohort string

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Gate enforcement",
}

var gatesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate due gates now",
	Long: `Evaluate due gates now. Without --cohort every scheduled active cohort
is swept, exactly like the daily job. Evaluations already recorded are
never repeated, but a transition they owe that never happened is re-applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var summaries []command.GateRunSummary
			if gatesCohort != "" {
				s, err := a.gateRunner.ExecuteNow(ctx, gatesCohort)
				if err != nil {
					return err
				}
				summaries = append(summaries, s)
			} else {
				var err error
				if summaries, err = a.gateRunner.RunDaily(ctx); err != nil {
					return err
				}
			}
			return printResult(cmd, summaries, func() {
				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "no active cohorts")
				}
				for _, s := range summaries {
					gt := string(s.GateType)
					if gt == "" {
						gt = "no gate due"
					}
					fmt.Fprintf(out, "%s day %d %s: passed=%d failed=%d intervention=%d skipped=%d recovered=%d\n",
						s.CohortID, s.Day, gt, s.Passed, s.Failed, s.Intervention, s.Skipped, s.Recovered)
					for _, e := range s.Errors {
						fmt.Fprintf(out, "  error: %s\n", e)
					}
				}
			})
		})
	},
}

// ══════════════════════════════════════════════════════════════════════════════
// PAUSES
// ══════════════════════════════════════════════════════════════════════════════

var pausesCmd = &cobra.Command{
	Use:   "pauses",
	Short: "Pause escalation",
}

var pausesRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pause escalation sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if !a.cfg.Features.PauseEscalation {
				return errors.New("pause escalation is disabled (FEATURE_PAUSE_ESCALATION=false)")
			}
			s, err := a.pauses.Run(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, s, func() {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "checked=%d paused=%d (momentum=%d inactivity=%d stale_gate=%d)\n",
					s.Checked, s.Paused(), s.PausedMomentum, s.PausedInactivity, s.PausedStaleGate)
				for _, e := range s.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
			})
		})
	},
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

var calendarCohort string

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Calendar engine",
}

var calendarRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute program day and phase",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var results []command.RefreshResult
			if calendarCohort != "" {
				r, err := a.refresher.RefreshCohort(ctx, calendarCohort)
				if err != nil {
					return err
				}
				results = append(results, r)
			} else {
				var err error
				if results, err = a.refresher.RefreshAll(ctx); err != nil {
					return err
				}
			}
			return printResult(cmd, results, func() {
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.Skipped != "" {
						fmt.Fprintf(out, "%s skipped: %s\n", r.CohortID, r.Skipped)
						continue
					}
					fmt.Fprintf(out, "%s day %d %s updated=%t\n", r.CohortID, r.Day, r.Phase, r.Updated)
				}
			})
		})
	},
}

// ══════════════════════════════════════════════════════════════════════════════
// API KEYS
// ══════════════════════════════════════════════════════════════════════════════

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Admin API keys",
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash [key]",
	Short: "Print the bcrypt hash to list in HTTP_API_KEY_HASHES",
	Long: `Print the bcrypt hash of an admin API key. With no argument the key is
read from the first line of stdin, which keeps it out of shell history.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key from stdin: %w", err)
			}
			key = strings.TrimSpace(line)
		}
		if key == "" {
			return errors.New("empty key")
		}
		hash, err := handlers.HashAPIKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().BoolVar(&migrateYes, "yes", false, "Confirm the rollback")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)

	gatesRunCmd.Flags().StringVar(&gatesCohort, "cohort", "", "Evaluate a single cohort, ignoring FEATURE_EXCLUDED_COHORTS")
	gatesCmd.AddCommand(gatesRunCmd)

	pausesCmd.AddCommand(pausesRunCmd)

	calendarRefreshCmd.Flags().StringVar(&calendarCohort, "cohort", "", "Refresh a single cohort")
	calendarCmd.AddCommand(calendarRefreshCmd)

	apikeyCmd.AddCommand(apikeyHashCmd)
}

// withApp builds the application, runs fn and shuts everything down.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return fn(ctx, a)
}
