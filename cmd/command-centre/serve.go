package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/command-centre/internal/infrastructure/scheduler"
	"github.com/alem-hub/command-centre/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/alem-hub/command-centre/internal/interface/http"
)

var (
	serveNoScheduler bool
	serveNoHTTP      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin API and the scheduler",
	Long: `Run the admin API and the scheduler until SIGINT or SIGTERM.

The scheduler refreshes every cohort calendar and then evaluates due gates
once a day, and runs pause escalation on its own interval.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Serve the API only")
	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "Run the scheduler only")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if serveNoScheduler && serveNoHTTP {
		return fmt.Errorf("--no-scheduler and --no-http leave nothing to run")
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	cfg, log := a.cfg, a.log

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Scheduler.Enabled && !serveNoScheduler {
		sched, err := newScheduler(a)
		if err != nil {
			a.close(context.Background())
			return err
		}
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		log.Info("scheduler disabled")
	}

	if !serveNoHTTP {
		httpCfg := httpapi.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
		httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
		httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
		httpCfg.Version = cfg.App.Version

		server := httpapi.NewServer(httpCfg, a.httpDependencies())
		g.Go(func() error { return server.Run(gctx, cfg.App.ShutdownTimeout) })
	}

	log.Info("command centre is running", "http", !serveNoHTTP, "scheduler", cfg.Scheduler.Enabled && !serveNoScheduler)

	err = g.Wait()
	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	a.close(shutdownCtx)

	if err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// newScheduler registers the daily cycle and the pause check.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	cfg := a.cfg
	loc := cfg.App.Location()

	sched := scheduler.NewScheduler(scheduler.Config{
		Logger:            a.log,
		Timezone:          loc,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		Recorder:          a.metrics,
	})

	daily, err := scheduler.DailyAt(cfg.Scheduler.DailyHour, cfg.Scheduler.DailyMinute, loc)
	if err != nil {
		return nil, err
	}
	if err := sched.Register(jobs.NewDailyCycleJob(a.refresher, a.gateRunner, a.log), daily); err != nil {
		return nil, err
	}

	pauseJob := jobs.NewPauseCheckJob(a.pauses, func() bool { return cfg.Features.PauseEscalation }, a.log)
	if err := sched.Register(pauseJob, scheduler.NewIntervalSchedule(cfg.Scheduler.PauseCheckInterval)); err != nil {
		return nil, err
	}
	return sched, nil
}
