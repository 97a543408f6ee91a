package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/vitrine/internal/store"
)

// SchedulerConfig configures startup staggering and the staleness check.
type SchedulerConfig struct {
	// StaleThreshold is how old a category's last scrape may be before it
	// counts as stale. Default: 24 hours.
	StaleThreshold time.Duration
	// StaleBatchSize caps how many categories one stale-refresh job covers.
	// Default: 10.
	StaleBatchSize int
	// StaleStartDelay delays the first stale-refresh after startup so the
	// navigation refresh lands first. Default: 30 seconds.
	StaleStartDelay time.Duration
	// FullScanStartDelay delays the startup full scan so narrower
	// high-value refreshes run first. Default: 10 minutes.
	FullScanStartDelay time.Duration
	// StaleCheckInterval is the cadence of the periodic staleness check.
	// Default: 1 hour.
	StaleCheckInterval time.Duration
}

func (c *SchedulerConfig) defaults() {
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 24 * time.Hour
	}
	if c.StaleBatchSize <= 0 {
		c.StaleBatchSize = 10
	}
	if c.StaleStartDelay <= 0 {
		c.StaleStartDelay = 30 * time.Second
	}
	if c.FullScanStartDelay <= 0 {
		c.FullScanStartDelay = 10 * time.Minute
	}
	if c.StaleCheckInterval <= 0 {
		c.StaleCheckInterval = time.Hour
	}
}

// Scheduler enqueues maintenance jobs: on startup, on interactive
// side-effects (fan-out after a live click), and on staleness detection.
// Staggering is expressed as queue delays, never wall-clock sleeps.
type Scheduler struct {
	queue  *Queue
	store  *store.Store
	cfg    SchedulerConfig
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(queue *Queue, st *store.Store, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{queue: queue, store: st, cfg: cfg, logger: logger}
}

// Bootstrap enqueues the startup sequence: navigation refresh immediately,
// a stale-category batch shortly after, and a full catalog scan much later.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	if _, err := s.queue.Submit(ctx, &Job{
		Kind:        KindRefreshNavigation,
		Priority:    PriorityHigh,
		TriggeredBy: TriggerSystem,
	}, 0); err != nil {
		return err
	}

	if _, err := s.queue.Submit(ctx, &Job{
		Kind:        KindRefreshStale,
		Priority:    PriorityMedium,
		TriggeredBy: TriggerSystem,
	}, s.cfg.StaleStartDelay); err != nil {
		return err
	}

	if _, err := s.queue.Submit(ctx, &Job{
		Kind:        KindFullScan,
		Priority:    PriorityLow,
		TriggeredBy: TriggerSystem,
	}, s.cfg.FullScanStartDelay); err != nil {
		return err
	}

	s.logger.Info("jobs: startup sequence enqueued",
		"stale_delay", s.cfg.StaleStartDelay, "full_scan_delay", s.cfg.FullScanStartDelay)
	return nil
}

// EnqueueCategoryRefresh enqueues a single-category refresh. User-triggered
// refreshes land on the foreground queue at high priority regardless of
// staleness; everything else is background.
func (s *Scheduler) EnqueueCategoryRefresh(ctx context.Context, slug, url string, triggeredBy string, priority int) error {
	job := &Job{
		Kind:        KindRefreshCategory,
		TargetURL:   url,
		Priority:    Priority(priority),
		TriggeredBy: Trigger(triggeredBy),
		Metadata:    map[string]any{"categorySlug": slug},
	}

	if cat, err := s.store.GetCategory(ctx, slug); err == nil && cat != nil && cat.LastScrapedAt != nil {
		job.Metadata["lastScraped"] = *cat.LastScrapedAt
	}

	_, err := s.queue.Submit(ctx, job, 0)
	return err
}

// Run performs the periodic staleness check. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkStale(ctx)
		}
	}
}

// checkStale enqueues a stale-refresh when stale categories exist and no
// stale-refresh is already pending or running.
func (s *Scheduler) checkStale(ctx context.Context) {
	stale, err := s.store.StaleCategories(ctx, s.cfg.StaleThreshold, 1)
	if err != nil {
		s.logger.Error("jobs: staleness check", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	active, err := s.queue.HasActive(ctx, KindRefreshStale)
	if err != nil {
		s.logger.Error("jobs: staleness check", "error", err)
		return
	}
	if active {
		return
	}

	if _, err := s.queue.Submit(ctx, &Job{
		Kind:        KindRefreshStale,
		Priority:    PriorityMedium,
		TriggeredBy: TriggerScheduler,
	}, 0); err != nil {
		s.logger.Error("jobs: enqueue stale refresh", "error", err)
		return
	}
	s.logger.Info("jobs: stale refresh enqueued", "trigger", TriggerScheduler)
}
