// Package scheduler wires the daily re-crawl, weekly full re-crawl,
// retry sweep and health-tick jobs onto cron triggers, with
// single-instance-per-trigger semantics: a job's next firing is skipped
// entirely while its previous run is still in flight.
package scheduler

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/legaldocml-crawler/internal/crawl"
	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
	worker "github.com/lueurxax/legaldocml-crawler/internal/workerloop"
)

// Config controls which jobs run and on what cadence.
type Config struct {
	Enabled     bool
	DaysBack    int
	DailyCron   string
	WeeklyCron  string
	RetryCron   string
}

func (c Config) daysBack() int {
	if c.DaysBack <= 0 {
		return 7
	}

	return c.DaysBack
}

const (
	defaultDailyCron = "0 6 * * *"
	defaultWeeklyCron = "0 2 * * 0"
	defaultRetryCron  = "0 */6 * * *"

	dailyInterDateDelay  = 5 * time.Second
	weeklyInterDateDelay = 10 * time.Second
	weeklyLookbackDays   = 30

	jobDaily  = "daily"
	jobWeekly = "weekly"
	jobRetry  = "retry"

	resultSuccess = "success"
	resultError   = "error"
)

// Scheduler drives the cron-triggered jobs against one crawl.Orchestrator.
type Scheduler struct {
	cron   *cron.Cron
	orch   *crawl.Orchestrator
	cfg    Config
	logger *zerolog.Logger

	dailyRunning  atomic.Bool
	weeklyRunning atomic.Bool
	retryRunning  atomic.Bool
}

// New builds a Scheduler. It does not start any job until Start is
// called.
func New(orch *crawl.Orchestrator, cfg Config, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		orch:   orch,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers and starts every enabled job. It is a no-op if
// cfg.Enabled is false.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		if s.logger != nil {
			s.logger.Info().Msg("scheduler disabled, no jobs registered")
		}

		return nil
	}

	dailyCron := s.cfg.DailyCron
	if dailyCron == "" {
		dailyCron = defaultDailyCron
	}

	weeklyCron := s.cfg.WeeklyCron
	if weeklyCron == "" {
		weeklyCron = defaultWeeklyCron
	}

	retryCron := s.cfg.RetryCron
	if retryCron == "" {
		retryCron = defaultRetryCron
	}

	if _, err := s.cron.AddFunc(dailyCron, func() { s.runDaily(ctx) }); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(weeklyCron, func() { s.runWeekly(ctx) }); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(retryCron, func() { s.runRetrySweep(ctx) }); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc("0 * * * *", func() { s.runHealthTick() }); err != nil {
		return err
	}

	s.cron.Start()

	if s.logger != nil {
		s.logger.Info().
			Str("daily", dailyCron).Str("weekly", weeklyCron).Str("retry", retryCron).
			Msg("scheduler started")
	}

	return nil
}

// Stop halts the cron driver and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDaily(ctx context.Context) {
	if !s.dailyRunning.CompareAndSwap(false, true) {
		observability.ScheduledJobSkippedReentrant.WithLabelValues(jobDaily).Inc()
		s.log().Warn().Msg("daily crawl still running, skipping this trigger")
		return
	}
	defer s.dailyRunning.Store(false)
	defer worker.RecoverPanic(s.log(), "scheduler daily crawl")

	s.crawlLastNDays(ctx, s.cfg.daysBack(), false, dailyInterDateDelay)
	observability.ScheduledJobRuns.WithLabelValues(jobDaily, resultSuccess).Inc()
}

func (s *Scheduler) runWeekly(ctx context.Context) {
	if !s.weeklyRunning.CompareAndSwap(false, true) {
		observability.ScheduledJobSkippedReentrant.WithLabelValues(jobWeekly).Inc()
		s.log().Warn().Msg("weekly crawl still running, skipping this trigger")
		return
	}
	defer s.weeklyRunning.Store(false)
	defer worker.RecoverPanic(s.log(), "scheduler weekly crawl")

	s.crawlLastNDays(ctx, weeklyLookbackDays, true, weeklyInterDateDelay)
	observability.ScheduledJobRuns.WithLabelValues(jobWeekly, resultSuccess).Inc()
}

func (s *Scheduler) crawlLastNDays(ctx context.Context, days int, forceUpdate bool, delay time.Duration) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)

	for i := days - 1; i >= 0; i-- {
		date := yesterday.AddDate(0, 0, -i)

		if _, err := s.orch.Crawl(ctx, date, forceUpdate); err != nil {
			s.log().Error().Err(err).Time("date", date).Msg("scheduled crawl failed for date")
		}

		if err := worker.Wait(ctx, delay); err != nil {
			return
		}
	}
}

func (s *Scheduler) runRetrySweep(ctx context.Context) {
	if !s.retryRunning.CompareAndSwap(false, true) {
		observability.ScheduledJobSkippedReentrant.WithLabelValues(jobRetry).Inc()
		s.log().Warn().Msg("retry sweep still running, skipping this trigger")
		return
	}
	defer s.retryRunning.Store(false)
	defer worker.RecoverPanic(s.log(), "scheduler retry sweep")

	succeeded, err := s.orch.RetryFailed(ctx)
	if err != nil {
		observability.ScheduledJobRuns.WithLabelValues(jobRetry, resultError).Inc()
		s.log().Error().Err(err).Msg("retry sweep failed")
		return
	}

	observability.ScheduledJobRuns.WithLabelValues(jobRetry, resultSuccess).Inc()
	observability.RetrySweepSucceeded.Add(float64(succeeded))

	s.log().Info().Int("succeeded", succeeded).Msg("retry sweep completed")
}

func (s *Scheduler) runHealthTick() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.log().Info().
		Uint64("allocMB", mem.Alloc/1024/1024).
		Int("goroutines", runtime.NumGoroutine()).
		Msg("health tick")
}

func (s *Scheduler) log() *zerolog.Logger {
	if s.logger != nil {
		return s.logger
	}

	nop := zerolog.Nop()

	return &nop
}
