/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, scheduler startup, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Initialize SQLite store (ledger, requests, chains, work logs)
  3. Register policy presets for the configured region
  4. Wire the domain services (ledger, workflow, accrual, comp-off)
  5. Start the cron scheduler and HTTP server

CONFIGURATION (environment variables):
  SERVER_PORT   HTTP port (default: 8080)
  DB_PATH       SQLite database path (default: ./data/leave.db)
                Use ":memory:" for an in-memory database
  REGION        Policy region for presets (default: IN)
  LOG_LEVEL     zerolog level (default: info)
  ACCRUAL_CRON  Monthly accrual schedule (default: "0 2 1 * *")
  YEAR_END_CRON Year-end transition schedule (default: "0 3 1 1 *")
  EXPIRY_CRON   Comp-off expiry sweep schedule (default: "0 4 * * *")

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler and wait for running jobs
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Batch job scheduling
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/compoff"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	// Store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer store.Close()

	// Policies: region presets now, overridable via POST /api/policies.
	policies := policy.NewMemoryStore()
	policy.DefaultSet(policies, cfg.Region)

	// Holiday calendar, loaded from the store at startup.
	holidays, err := store.Holidays(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load holidays")
	}
	holidayCal := &calendar.FixedCalendar{Holidays: holidays}

	// Domain services
	sink := &notify.LogSink{Log: log}
	led := ledger.NewLedger(store)
	workflow := approval.NewWorkflow(store, store, led, policies, store, sink, log)
	approvals := approval.NewService(workflow, holidayCal)
	accruals := accrual.NewEngine(led, policies, store, store, log)
	compOff := compoff.NewService(led, store, store, approvals, policies, store, sink, log)
	// Terminal decisions on comp-off leave requests reconcile the redemption.
	workflow.AddResolutionHook(compOff)

	handler := &api.Handler{
		Ledger:    led,
		Approvals: approvals,
		Accruals:  accruals,
		CompOff:   compOff,
		Policies:  policies,
		Dir:       store,
		Chains:    store,
		Requests:  store,
		WorkLogs:  store,
		Factory:   factory.NewPolicyFactory(),
		Log:       log,
	}

	scheduler := api.NewScheduler(accruals, compOff, api.SchedulerConfig{
		AccrualCron: cfg.AccrualCron,
		YearEndCron: cfg.YearEndCron,
		ExpiryCron:  cfg.ExpiryCron,
	}, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
