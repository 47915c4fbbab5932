package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/legaldocml-crawler/internal/crawl"
	observability "github.com/lueurxax/legaldocml-crawler/internal/health"
	"github.com/lueurxax/legaldocml-crawler/internal/sitemap"
	worker "github.com/lueurxax/legaldocml-crawler/internal/workerloop"
)

// ErrAtCapacity is returned by Start when maxConcurrentOperations
// campaigns are already running.
var ErrAtCapacity = errors.New("bulk: max concurrent operations reached")

// ErrNotFound is returned by Pause/Resume/Cancel when the operationId is
// unknown or already terminal.
var ErrNotFound = errors.New("bulk: operation not found or not active")

const pauseCheckInterval = 500 * time.Millisecond

const (
	defaultProgressUpdateInterval = 5 * time.Second
	defaultDiscoveryTimeoutHours  = 1
)

type runningOp struct {
	cancel          context.CancelFunc
	pauseRequested  atomic.Bool
	cancelRequested atomic.Bool
}

// CoordinatorConfig bundles instance-wide bulk campaign defaults: the
// concurrency ceiling, the per-campaign pacing defaults applied whenever a
// Start caller leaves the corresponding Config field unset, and how often
// a running campaign's progress is flushed to storage.
type CoordinatorConfig struct {
	MaxConcurrentOperations       int
	DefaultRateLimitMs            int
	DefaultMaxConcurrentDownloads int
	ProgressUpdateIntervalMs      int
}

// Coordinator runs and tracks bulk crawl campaigns.
type Coordinator struct {
	repo      Repository
	orch      *crawl.Orchestrator
	discovery *sitemap.Discovery
	logger    *zerolog.Logger

	maxConcurrentOperations int
	defaults                CoordinatorConfig
	progressUpdateInterval  time.Duration

	mu     sync.Mutex
	active map[string]*runningOp
}

// NewCoordinator builds a Coordinator bounded to cfg.MaxConcurrentOperations
// simultaneous campaigns.
func NewCoordinator(repo Repository, orch *crawl.Orchestrator, discovery *sitemap.Discovery, cfg CoordinatorConfig, logger *zerolog.Logger) *Coordinator {
	if cfg.MaxConcurrentOperations <= 0 {
		cfg.MaxConcurrentOperations = 1
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	interval := time.Duration(cfg.ProgressUpdateIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = defaultProgressUpdateInterval
	}

	return &Coordinator{
		repo:                    repo,
		orch:                    orch,
		discovery:               discovery,
		maxConcurrentOperations: cfg.MaxConcurrentOperations,
		defaults:                cfg,
		progressUpdateInterval:  interval,
		active:                  make(map[string]*runningOp),
		logger:                  logger,
	}
}

// applyDefaults fills any unset pacing field of cfg with the Coordinator's
// instance-wide defaults, so a Start caller only needs to override what it
// actually cares about.
func (c *Coordinator) applyDefaults(cfg Config) Config {
	if cfg.RateLimitMs <= 0 {
		cfg.RateLimitMs = c.defaults.DefaultRateLimitMs
	}

	if cfg.MaxConcurrentDownloads <= 0 {
		cfg.MaxConcurrentDownloads = c.defaults.DefaultMaxConcurrentDownloads
	}

	if cfg.DiscoveryTimeoutHours <= 0 {
		cfg.DiscoveryTimeoutHours = defaultDiscoveryTimeoutHours
	}

	return cfg
}

// Start launches a new campaign (full-history discovery when kind is
// KindFull, discovery over rangeStart..rangeEnd otherwise) and returns its
// operationId immediately; the campaign itself runs in the background.
func (c *Coordinator) Start(ctx context.Context, kind Kind, rangeStart, rangeEnd time.Time, cfg Config) (string, error) {
	c.mu.Lock()

	if len(c.active) >= c.maxConcurrentOperations {
		c.mu.Unlock()
		return "", ErrAtCapacity
	}

	c.mu.Unlock()

	progress := &Progress{
		Status:     StatusInitializing,
		Kind:       kind,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Config:     c.applyDefaults(cfg),
	}
	observability.BulkCampaignStateTransitions.WithLabelValues(string(progress.Status)).Inc()

	if err := c.repo.Create(ctx, progress); err != nil {
		return "", fmt.Errorf("create progress record: %w", err)
	}

	c.attach(progress)

	return progress.OperationID, nil
}

// attach registers progress as a running campaign and spawns its run
// goroutine, initializing the in-memory control latches from whatever was
// already persisted on the row (zero values for a freshly Created one).
func (c *Coordinator) attach(progress *Progress) {
	runCtx, cancel := context.WithCancel(context.Background())
	op := &runningOp{cancel: cancel}
	op.pauseRequested.Store(progress.PauseRequested)
	op.cancelRequested.Store(progress.CancelRequested)

	c.mu.Lock()
	c.active[progress.OperationID] = op
	c.mu.Unlock()

	observability.BulkCampaignsActive.Inc()

	go c.run(runCtx, progress, op)
}

// ReattachAll is meant to be called once at startup: it loads every
// non-terminal campaign row and resumes it, so a PAUSED or in-flight
// campaign from before a restart keeps running (or stays paused) instead
// of sitting orphaned with no goroutine able to act on Pause/Resume/Cancel.
func (c *Coordinator) ReattachAll(ctx context.Context) (int, error) {
	rows, err := c.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active campaigns: %w", err)
	}

	for _, progress := range rows {
		c.attach(progress)
	}

	return len(rows), nil
}

// Pause requests that a running campaign pause at the next inter-date
// boundary. The latch is persisted immediately so it survives a restart
// even if the campaign has not been reattached yet.
func (c *Coordinator) Pause(ctx context.Context, operationID string) error {
	if op := c.lookup(operationID); op != nil {
		op.pauseRequested.Store(true)
		return c.repo.SaveControlFlags(ctx, operationID, true, op.cancelRequested.Load())
	}

	return c.persistControlFlag(ctx, operationID, boolPtr(true), nil)
}

// Resume clears a pause latch, allowing a paused campaign to continue.
func (c *Coordinator) Resume(ctx context.Context, operationID string) error {
	if op := c.lookup(operationID); op != nil {
		op.pauseRequested.Store(false)
		return c.repo.SaveControlFlags(ctx, operationID, false, op.cancelRequested.Load())
	}

	return c.persistControlFlag(ctx, operationID, boolPtr(false), nil)
}

// Cancel requests that a running campaign stop at the next checkpoint.
func (c *Coordinator) Cancel(ctx context.Context, operationID string) error {
	if op := c.lookup(operationID); op != nil {
		op.cancelRequested.Store(true)
		return c.repo.SaveControlFlags(ctx, operationID, op.pauseRequested.Load(), true)
	}

	return c.persistControlFlag(ctx, operationID, nil, boolPtr(true))
}

// persistControlFlag handles Pause/Resume/Cancel calls that target a
// non-terminal campaign not currently attached to this process (i.e. it
// is waiting on a ReattachAll after a restart): it writes the latch
// straight to the persisted row so the next reattach picks it up.
func (c *Coordinator) persistControlFlag(ctx context.Context, operationID string, pause, cancel *bool) error {
	progress, err := c.repo.Get(ctx, operationID)
	if err != nil {
		return err
	}

	if progress == nil || progress.Status.terminal() {
		return ErrNotFound
	}

	if pause != nil {
		progress.PauseRequested = *pause
	}

	if cancel != nil {
		progress.CancelRequested = *cancel
	}

	return c.repo.SaveControlFlags(ctx, operationID, progress.PauseRequested, progress.CancelRequested)
}

func boolPtr(b bool) *bool { return &b }

func (c *Coordinator) lookup(operationID string) *runningOp {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active[operationID]
}

func (c *Coordinator) finish(operationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.active[operationID]; ok {
		op.cancel()
		delete(c.active, operationID)
		observability.BulkCampaignsActive.Dec()
		observability.BulkCampaignRate.DeleteLabelValues(operationID)
	}
}

// Get returns the persisted state of one campaign.
func (c *Coordinator) Get(ctx context.Context, operationID string) (*Progress, error) {
	return c.repo.Get(ctx, operationID)
}

// ListActive returns every non-terminal campaign.
func (c *Coordinator) ListActive(ctx context.Context) ([]*Progress, error) {
	return c.repo.ListActive(ctx)
}

// CleanupOld deletes COMPLETED/CANCELLED campaigns whose completedAt is
// older than days.
func (c *Coordinator) CleanupOld(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return c.repo.DeleteOlderThan(ctx, []Status{StatusCompleted, StatusCancelled}, cutoff)
}

// ReapStuck force-fails any DISCOVERING/CRAWLING campaign whose
// startedAt predates the threshold, e.g. after a crash left it orphaned.
func (c *Coordinator) ReapStuck(ctx context.Context, hours int) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	stuck, err := c.repo.ListByStatus(ctx, StatusDiscovering, StatusCrawling)
	if err != nil {
		return 0, err
	}

	reaped := 0

	for _, p := range stuck {
		if p.StartedAt.After(cutoff) {
			continue
		}

		setStatus(p, StatusFailed)
		p.ErrorMessage = StuckErrorMessage
		p.CompletedAt = time.Now().UTC()

		if err := c.repo.Save(ctx, p); err != nil {
			if c.logger != nil {
				c.logger.Error().Err(err).Str("operationId", p.OperationID).Msg("failed to persist reaped campaign")
			}

			continue
		}

		c.finish(p.OperationID)
		reaped++
	}

	return reaped, nil
}

func (c *Coordinator) run(ctx context.Context, progress *Progress, op *runningOp) {
	defer c.finish(progress.OperationID)
	defer worker.RecoverPanic(c.logger, "bulk campaign run: "+progress.OperationID)

	discovered, err := c.discoverDates(ctx, progress)
	if err != nil {
		c.fail(ctx, progress, err)
		return
	}

	dates := remainingDates(discovered, progress.ProcessedDates, progress.FailedDates)

	progress.EstimatedTotalDocuments = int64(len(discovered))
	setStatus(progress, StatusCrawling)
	c.persist(ctx, progress)

	lastPersist := time.Now()

	for _, date := range dates {
		if op.cancelRequested.Load() {
			c.cancelCampaign(ctx, progress)
			return
		}

		if op.pauseRequested.Load() {
			if !c.waitWhilePaused(ctx, progress, op) {
				return
			}
		}

		progress.CurrentDateCursor = date

		result, err := c.orch.Crawl(ctx, date, false)
		if err != nil {
			if c.logger != nil {
				c.logger.Error().Err(err).Time("date", date).Msg("crawl failed for date")
			}

			progress.DocumentsFailed++
			progress.FailedDates = append(progress.FailedDates, date)
		} else {
			progress.DocumentsProcessed += int64(len(result.NewDocs) + len(result.UpdatedDocs))
			progress.DocumentsFailed += int64(len(result.FailedDocs))
			progress.ProcessedDates = append(progress.ProcessedDates, date)
		}

		progress.recomputeRate()
		observability.BulkCampaignRate.WithLabelValues(progress.OperationID).Set(progress.RatePerMinute)

		if time.Since(lastPersist) >= c.progressUpdateInterval {
			c.persist(ctx, progress)
			lastPersist = time.Now()
		}

		if op.cancelRequested.Load() {
			c.cancelCampaign(ctx, progress)
			return
		}

		_ = worker.Wait(ctx, time.Duration(progress.Config.RateLimitMs)*time.Millisecond)
	}

	setStatus(progress, StatusCompleted)
	progress.CompletedAt = time.Now().UTC()
	c.persist(ctx, progress)
}

// remainingDates filters already-handled dates out of a freshly discovered
// date list, so a reattached campaign resumes instead of reprocessing
// dates it already recorded as processed or failed.
func remainingDates(discovered, processed, failed []time.Time) []time.Time {
	if len(processed) == 0 && len(failed) == 0 {
		return discovered
	}

	done := make(map[time.Time]bool, len(processed)+len(failed))
	for _, d := range processed {
		done[d] = true
	}

	for _, d := range failed {
		done[d] = true
	}

	out := make([]time.Time, 0, len(discovered))

	for _, d := range discovered {
		if !done[d] {
			out = append(out, d)
		}
	}

	return out
}

// waitWhilePaused blocks until the pause latch clears or cancel fires,
// returning false if the caller should stop the campaign entirely.
func (c *Coordinator) waitWhilePaused(ctx context.Context, progress *Progress, op *runningOp) bool {
	setStatus(progress, StatusPaused)
	c.persist(ctx, progress)

	for op.pauseRequested.Load() {
		if op.cancelRequested.Load() {
			c.cancelCampaign(ctx, progress)
			return false
		}

		if err := worker.Wait(ctx, pauseCheckInterval); err != nil {
			return false
		}
	}

	setStatus(progress, StatusResuming)
	c.persist(ctx, progress)
	setStatus(progress, StatusCrawling)
	c.persist(ctx, progress)

	return true
}

func (c *Coordinator) cancelCampaign(ctx context.Context, progress *Progress) {
	setStatus(progress, StatusCancelled)
	progress.CompletedAt = time.Now().UTC()
	c.persist(ctx, progress)
}

func (c *Coordinator) fail(ctx context.Context, progress *Progress, err error) {
	setStatus(progress, StatusFailed)
	progress.ErrorMessage = err.Error()
	progress.CompletedAt = time.Now().UTC()
	c.persist(ctx, progress)
}

func setStatus(progress *Progress, status Status) {
	progress.Status = status
	observability.BulkCampaignStateTransitions.WithLabelValues(string(status)).Inc()
}

func (c *Coordinator) persist(ctx context.Context, progress *Progress) {
	if err := c.repo.Save(ctx, progress); err != nil && c.logger != nil {
		c.logger.Error().Err(err).Str("operationId", progress.OperationID).Msg("failed to persist campaign progress")
	}
}

func (c *Coordinator) discoverDates(ctx context.Context, progress *Progress) ([]time.Time, error) {
	setStatus(progress, StatusDiscovering)
	c.persist(ctx, progress)

	if progress.Kind == KindFull {
		result := c.discovery.DiscoverFull(ctx)
		return result.Available, nil
	}

	result := c.discovery.DiscoverRange(ctx, progress.RangeStart, progress.RangeEnd)

	return result.Available, nil
}
