/*
scheduler.go - Cron-driven batch scheduler

PURPOSE:
  Drives the periodic batch jobs: monthly accrual, annual allocation,
  year-end carry-forward, and the comp-off expiry sweep. Every job is
  idempotent at the ledger level, so an overlapping manual trigger via
  /api/admin cannot double-credit.

DESIGN:
  - robfig/cron with standard 5-field expressions from config
  - Jobs derive their period from the fire time: the monthly job accrues
    for the month it fires in, the year-end job closes the prior year
  - Failures are logged and retried on the next tick, never fatal

SEE ALSO:
  - handlers.go: manual /api/admin triggers for the same batches
  - accrual/engine.go: the batch implementations
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/compoff"
)

// SchedulerConfig carries the cron expressions for each batch job.
type SchedulerConfig struct {
	AccrualCron string // monthly accrual, e.g. "0 2 1 * *"
	YearEndCron string // year-end transition, e.g. "0 3 1 1 *"
	ExpiryCron  string // comp-off expiry sweep, e.g. "0 4 * * *"
}

// Scheduler owns the cron runner for the batch jobs.
type Scheduler struct {
	Accruals *accrual.Engine
	CompOff  *compoff.Service
	Config   SchedulerConfig
	Log      zerolog.Logger

	cron *cron.Cron
}

// NewScheduler creates a scheduler; call Start to begin ticking.
func NewScheduler(accruals *accrual.Engine, compOff *compoff.Service, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Accruals: accruals,
		CompOff:  compOff,
		Config:   cfg,
		Log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the jobs and begins the cron loop. Invalid expressions
// are reported so a config typo cannot silently disable a job.
func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.Config.AccrualCron, s.runAccrual); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.Config.YearEndCron, s.runYearEnd); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.Config.ExpiryCron, s.runExpiry); err != nil {
		return err
	}

	s.cron.Start()
	s.Log.Info().
		Str("accrual", s.Config.AccrualCron).
		Str("year_end", s.Config.YearEndCron).
		Str("expiry", s.Config.ExpiryCron).
		Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.Log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runAccrual() {
	now := time.Now()
	ctx := context.Background()

	result, err := s.Accruals.RunMonthlyAccrual(ctx, now.Year(), now.Month())
	if err != nil {
		s.Log.Error().Err(err).Msg("monthly accrual batch failed")
		return
	}
	s.Log.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("monthly accrual batch done")

	// Annual lump policies get their grant alongside the January run.
	if now.Month() == time.January {
		if _, err := s.Accruals.RunAnnualAllocation(ctx, now.Year()); err != nil {
			s.Log.Error().Err(err).Msg("annual allocation batch failed")
		}
	}
}

func (s *Scheduler) runYearEnd() {
	// Fires just after new year; close out the year that ended.
	year := time.Now().Year() - 1

	result, err := s.Accruals.RunYearEndCarryForward(context.Background(), year)
	if err != nil {
		s.Log.Error().Err(err).Int("year", year).Msg("year-end transition failed")
		return
	}
	s.Log.Info().
		Int("year", year).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("year-end transition done")
}

func (s *Scheduler) runExpiry() {
	result, err := s.CompOff.RunExpiry(context.Background(), calendar.Today())
	if err != nil {
		s.Log.Error().Err(err).Msg("comp-off expiry sweep failed")
		return
	}
	if result.Expired > 0 || result.Failed > 0 {
		s.Log.Info().
			Int("examined", result.Examined).
			Int("expired", result.Expired).
			Int("failed", result.Failed).
			Msg("comp-off expiry sweep done")
	}
}
