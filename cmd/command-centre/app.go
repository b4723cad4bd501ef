package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alem-hub/command-centre/config"
	"github.com/alem-hub/command-centre/internal/application/command"
	"github.com/alem-hub/command-centre/internal/application/eventhandler"
	"github.com/alem-hub/command-centre/internal/application/query"
	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/internal/infrastructure/messaging"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/command-centre/internal/infrastructure/telemetry"
	httpapi "github.com/alem-hub/command-centre/internal/interface/http"
	"github.com/alem-hub/command-centre/internal/interface/http/handlers"
	"github.com/alem-hub/command-centre/pkg/circuitbreaker"
	"github.com/alem-hub/command-centre/pkg/logger"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// calendarInvalidationTimeout bounds the cache delete done per CohortRefreshed event.
const calendarInvalidationTimeout = 5 * time.Second

// participantStore is what both persistence backends provide for participants.
type participantStore interface {
	participant.Repository
	participant.StateStore
}

// app is the assembled process: stores, services and the handles needed to
// shut them down in reverse order.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *telemetry.Metrics
	bus     *messaging.InMemoryEventBus
	health  *handlers.CompositeHealthChecker

	cohorts      cohort.Repository
	participants participantStore
	gates        gate.Repository
	decisions    audit.Repository
	signals      signals.Readers

	authority  *command.Authority
	graduation *command.GraduationAuthority
	gateRunner *command.GateRunner
	pauses     *command.PauseEscalation
	refresher  *command.CalendarRefresher
	resolver   *command.ResolveInterventionHandler
	gateTally  *eventhandler.OnGateEvaluatedHandler

	cohortQueries      *query.CohortQueries
	gateQueries        *query.GateQueries
	participantQueries *query.ParticipantQueries

	closers []func(context.Context) error
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if inMemory {
		if err := os.Setenv("DATABASE_IN_MEMORY", "true"); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Setup(logger.Options{
		Output:  os.Stderr,
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.ParseFormat(cfg.Observability.LogFormat),
		Service: cfg.App.Name,
		Version: cfg.App.Version,
	})
	return cfg, log, nil
}

// buildApp wires every component. On error everything opened so far is closed.
func buildApp(ctx context.Context) (_ *app, err error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	log.Info("starting command centre",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
		"features", cfg.Features.All(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Telemetry
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Enabled:     cfg.Observability.MetricsEnabled,
		Interval:    cfg.Observability.MetricsInterval,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTelemetry)

	a.metrics, err = telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		return nil, err
	}

	a.health = handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// Persistence
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	// Interface-typed so that a disabled cache stays a true nil.
	var (
		calendarCache command.CalendarCache
		invalidator   eventhandler.CalendarInvalidator
		readCache     query.CalendarCache
		lock          command.RunLocker
		feeds         []shared.EventHandler
	)
	if cache := a.openRedis(ctx); cache != nil {
		if cfg.Features.CalendarCache {
			cc := redis.NewCalendarCache(cache, 0)
			calendarCache, invalidator, readCache = cc, cc, cc
			a.health.AddOptionalCheck("calendar_cache", func(context.Context) error {
				cb := cc.Breaker()
				if st := cb.State(); st != circuitbreaker.StateClosed {
					return fmt.Errorf("circuit %s, %d consecutive failures", st, cb.Counts().ConsecutiveFailures)
				}
				return nil
			})
		}
		if cfg.Features.RunLock {
			lock = redis.NewRunLock(cache, cfg.Scheduler.LockTTL)
		}
		feeds = append(feeds, messaging.NewRedisFeed(cache.Client(), "", log).Handle)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Event bus
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = true
	busCfg.Logger = log
	a.bus = messaging.NewInMemoryEventBus(busCfg)
	a.closers = append(a.closers, func(context.Context) error {
		log.Info("closing event bus")
		return a.bus.Close()
	})

	a.gateTally = eventhandler.NewOnGateEvaluatedHandler(log)
	if err := eventhandler.Register(a.bus, eventhandler.Set{
		Journal:         eventhandler.NewJournal(log),
		CohortRefreshed: eventhandler.NewOnCohortRefreshedHandler(invalidator, calendarInvalidationTimeout, log),
		GateEvaluated:   a.gateTally,
		Feeds:           feeds,
	}); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Policy
	// ─────────────────────────────────────────────────────────────────────────
	schedule, err := cfg.Policy.Schedule()
	if err != nil {
		return nil, fmt.Errorf("program policy: %w", err)
	}
	pause := cfg.Policy.Pause

	// ─────────────────────────────────────────────────────────────────────────
	// Application services
	// ─────────────────────────────────────────────────────────────────────────
	clock := timeutil.SystemClock{}

	a.authority = command.NewAuthority(a.participants, a.bus, a.metrics, clock, log)
	a.graduation = command.NewGraduationAuthority(command.GraduationDeps{
		Participants:  a.participants,
		Cohorts:       a.cohorts,
		Gates:         a.gates,
		Income:        a.signals.Income,
		Authority:     a.authority,
		Events:        a.bus,
		Clock:         clock,
		Logger:        log,
		MinProgramDay: cfg.Policy.Graduation.MinProgramDay,
	})
	a.gateRunner = command.NewGateRunner(command.GateRunnerDeps{
		Cohorts:      a.cohorts,
		Participants: a.participants,
		Gates:        a.gates,
		Signals:      a.signals,
		Authority:    a.authority,
		Concluder:    a.graduation,
		Schedule:     schedule,
		Thresholds:   cfg.Policy.GateThresholds(),
		Lock:         lock,
		Scheduled:    cfg.Features.CohortScheduled,
		Events:       a.bus,
		Metrics:      a.metrics,
		Clock:        clock,
		Logger:       log,
	})
	a.pauses = command.NewPauseEscalation(command.PauseEscalationDeps{
		Participants: a.participants,
		Gates:        a.gates,
		Signals:      a.signals,
		Authority:    a.authority,
		Thresholds: command.PauseThresholds{
			MomentumWindow:         pause.MomentumWindow(),
			MomentumThreshold:      pause.MomentumThreshold,
			InactivityWindow:       pause.InactivityWindow(),
			StaleInterventionAfter: pause.StaleInterventionAfter(),
		},
		Scheduled: cfg.Features.CohortScheduled,
		Metrics:   a.metrics,
		Clock:     clock,
		Logger:    log,
	})
	a.refresher = command.NewCalendarRefresher(a.cohorts, schedule, calendarCache, a.bus, clock, log)
	a.resolver = command.NewResolveInterventionHandler(a.gates, a.bus, clock, log)

	a.cohortQueries = query.NewCohortQueries(a.cohorts, schedule, readCache, clock, log)
	a.gateQueries = query.NewGateQueries(a.cohorts, a.gates)
	a.participantQueries = query.NewParticipantQueries(a.participants, a.gates, a.decisions, clock)

	return a, nil
}

// openStore connects PostgreSQL, or the in-memory store in development.
func (a *app) openStore(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	if cfg.Database.InMemory {
		log.Warn("using the in-memory store; state is lost on exit")
		store := memory.NewStore()
		a.cohorts = store.Cohorts()
		a.participants = store.Participants()
		a.gates = store.Gates()
		a.decisions = store.Audit()
		a.signals = store.Signals().Readers()
		a.health.AddCheck("store", func(context.Context) error { return store.Ping() })
		return nil
	}

	log.Info("connecting to database")
	settings := postgres.DefaultPoolSettings()
	if cfg.Database.MaxOpenConns > 0 {
		settings.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		settings.MinConns = int32(cfg.Database.MaxIdleConns)
	}
	settings.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	settings.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, settings)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		log.Info("closing database connection")
		conn.Close()
		return nil
	})
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, log); err != nil {
			return err
		}
	}

	a.cohorts = postgres.NewCohortRepository(conn)
	a.participants = postgres.NewParticipantRepository(conn)
	a.gates = postgres.NewGateRepository(conn)
	a.decisions = postgres.NewAuditRepository(conn)
	a.signals = postgres.NewSignalReader(conn).Readers()
	a.health.AddCheck("postgres", handlers.NewPingCheck(conn))

	log.Info("database connection established")
	return nil
}

// openRedis connects Redis when enabled. Failure is not fatal: the process
// runs without cache and lock, and the database still enforces uniqueness.
func (a *app) openRedis(ctx context.Context) *redis.Cache {
	cfg, log := a.cfg, a.log
	if cfg.Redis.Disabled || !(cfg.Features.CalendarCache || cfg.Features.RunLock) {
		return nil
	}

	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		log.Warn("failed to connect to Redis, cache and run lock disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, func(context.Context) error { return cache.Close() })
	a.health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	log.Info("Redis connection established", "addr", rc.Addr())
	return cache
}

// httpDependencies assembles the admin API dependencies.
func (a *app) httpDependencies() httpapi.Dependencies {
	deps := httpapi.Dependencies{
		Cohorts:       a.cohortQueries,
		Gates:         a.gateQueries,
		Participants:  a.participantQueries,
		GateRunner:    a.gateRunner,
		Refresher:     a.refresher,
		Pauses:        a.pauses,
		Graduation:    a.graduation,
		HealthChecker: a.health,
		Logger:        a.log,
	}
	if a.cfg.Features.InterventionResolution {
		deps.Resolver = a.resolver
	}

	auth, err := handlers.NewAPIKeyAuth(a.cfg.HTTP.APIKeyHashes)
	if err != nil {
		a.log.Warn("admin API keys not configured, write endpoints will reject every request", "error", err)
	} else {
		deps.Auth = auth
	}
	return deps
}

// close runs the closers in reverse order and logs the failures.
func (a *app) close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Error("shutdown errors", "error", err)
	}
}

// migrateUp applies pending migrations.
func migrateUp(databaseURL string, log *slog.Logger) error {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	status, err := m.Status()
	if err != nil {
		return err
	}
	log.Info("database schema is up to date", "version", status.Version)
	return nil
}
