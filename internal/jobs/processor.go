package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vitrine/internal/scrape"
	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// ProcessorConfig configures job execution.
type ProcessorConfig struct {
	// EntryURL is the page the navigation refresh reads the menu from.
	EntryURL string
	// PageSize bounds how many products one category scrape extracts.
	// Default: 40.
	PageSize int
	// StaleThreshold and StaleBatchSize mirror the scheduler's settings;
	// the stale-refresh handler fetches its own batch at execution time.
	StaleThreshold time.Duration
	StaleBatchSize int
	// StalePacing is the delay between categories inside a stale-refresh.
	// Default: 2 seconds.
	StalePacing time.Duration
	// FullScanPacing is the delay between categories inside a full scan.
	// Longer than StalePacing: lower urgency, stronger politeness. Default: 10s.
	FullScanPacing time.Duration
}

func (c *ProcessorConfig) defaults() {
	if c.PageSize <= 0 {
		c.PageSize = 40
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 24 * time.Hour
	}
	if c.StaleBatchSize <= 0 {
		c.StaleBatchSize = 10
	}
	if c.StalePacing <= 0 {
		c.StalePacing = 2 * time.Second
	}
	if c.FullScanPacing <= 0 {
		c.FullScanPacing = 10 * time.Second
	}
}

// Processor executes scraping jobs against a job-owned automation resource.
// It never touches interactive sessions' resources.
type Processor struct {
	store  *store.Store
	launch session.Launcher
	nav    scrape.Navigation
	cat    scrape.Category
	cfg    ProcessorConfig
	logger *slog.Logger

	// sleep is swapped out in tests so pacing needs no real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a Processor.
func NewProcessor(st *store.Store, launch session.Launcher, nav scrape.Navigation, cat scrape.Category, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:  st,
		launch: launch,
		nav:    nav,
		cat:    cat,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Register installs all handlers on the two workers.
func (p *Processor) Register(foreground, background *Worker) {
	foreground.Register(KindRefreshCategory, p.HandleRefreshCategory)
	background.Register(KindRefreshCategory, p.HandleRefreshCategory)
	background.Register(KindRefreshNavigation, p.HandleRefreshNavigation)
	background.Register(KindRefreshStale, p.HandleRefreshStale)
	background.Register(KindFullScan, p.HandleFullScan)
}

// HandleRefreshNavigation scrapes the site navigation and upserts the
// category catalog. A scrape failure fails the whole job; individual
// category save failures are logged and skipped.
func (p *Processor) HandleRefreshNavigation(ctx context.Context, job *Job) error {
	res, err := p.launch(ctx)
	if err != nil {
		return fmt.Errorf("jobs: navigation refresh: %w", err)
	}
	defer p.release(res)

	if p.cfg.EntryURL != "" {
		if err := res.Navigate(ctx, p.cfg.EntryURL); err != nil {
			return fmt.Errorf("jobs: navigation refresh: %w", err)
		}
	}

	cats, err := p.nav.Menu(ctx, res)
	if err != nil {
		return fmt.Errorf("jobs: navigation refresh: %w", err)
	}

	saved := 0
	for i := range cats {
		if err := p.store.UpsertCategory(ctx, &cats[i]); err != nil {
			p.logger.Warn("jobs: save category", "slug", cats[i].Slug, "error", err)
			continue
		}
		saved++
	}

	p.logger.Info("jobs: navigation refreshed", "categories", saved)
	return nil
}

// HandleRefreshCategory scrapes one category listing and persists it.
// Scrape errors propagate so the job is recorded failed.
func (p *Processor) HandleRefreshCategory(ctx context.Context, job *Job) error {
	slug, _ := job.Metadata["categorySlug"].(string)
	if slug == "" {
		return fmt.Errorf("jobs: refresh-category %s: missing category slug", job.ID)
	}

	url := job.TargetURL
	if url == "" {
		cat, err := p.store.GetCategory(ctx, slug)
		if err != nil {
			return fmt.Errorf("jobs: refresh-category %s: %w", slug, err)
		}
		if cat == nil {
			return fmt.Errorf("jobs: refresh-category %s: unknown category", slug)
		}
		url = cat.URL
	}

	res, err := p.launch(ctx)
	if err != nil {
		return fmt.Errorf("jobs: refresh-category %s: %w", slug, err)
	}
	defer p.release(res)

	return p.refreshCategory(ctx, res, slug, url)
}

// HandleRefreshStale refreshes a batch of the stalest categories
// sequentially with a pacing delay between each. One category's failure
// never fails the batch.
func (p *Processor) HandleRefreshStale(ctx context.Context, job *Job) error {
	stale, err := p.store.StaleCategories(ctx, p.cfg.StaleThreshold, p.cfg.StaleBatchSize)
	if err != nil {
		return fmt.Errorf("jobs: stale refresh: %w", err)
	}
	if len(stale) == 0 {
		p.logger.Info("jobs: no stale categories")
		return nil
	}
	return p.scanCategories(ctx, stale, p.cfg.StalePacing, "stale refresh")
}

// HandleFullScan walks the entire catalog with a longer pacing delay.
func (p *Processor) HandleFullScan(ctx context.Context, job *Job) error {
	cats, err := p.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("jobs: full scan: %w", err)
	}
	if len(cats) == 0 {
		p.logger.Info("jobs: full scan found empty catalog")
		return nil
	}
	return p.scanCategories(ctx, cats, p.cfg.FullScanPacing, "full scan")
}

// scanCategories refreshes each category in turn, continue-on-error, with
// pacing between items. The batch shares one automation resource.
func (p *Processor) scanCategories(ctx context.Context, cats []*store.Category, pacing time.Duration, what string) error {
	res, err := p.launch(ctx)
	if err != nil {
		return fmt.Errorf("jobs: %s: %w", what, err)
	}
	defer p.release(res)

	failed := 0
	for i, cat := range cats {
		if i > 0 {
			if err := p.sleep(ctx, pacing); err != nil {
				return err
			}
		}
		if err := p.refreshCategory(ctx, res, cat.Slug, cat.URL); err != nil {
			p.logger.Warn("jobs: category failed during scan",
				"what", what, "slug", cat.Slug, "error", err)
			failed++
		}
	}

	p.logger.Info("jobs: scan finished", "what", what,
		"categories", len(cats), "failed", failed)
	return nil
}

// refreshCategory navigates to a category and persists the extracted page.
// Per-product save failures are logged and skipped.
func (p *Processor) refreshCategory(ctx context.Context, res session.Resource, slug, url string) error {
	if err := res.Navigate(ctx, url); err != nil {
		return fmt.Errorf("navigate %s: %w", slug, err)
	}

	products, _, err := p.cat.Products(ctx, res, slug, p.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", slug, err)
	}

	saved := 0
	for i := range products {
		if err := p.store.UpsertProduct(ctx, &products[i]); err != nil {
			p.logger.Warn("jobs: save product", "source_id", products[i].SourceID, "error", err)
			continue
		}
		saved++
	}

	if err := p.store.MarkCategoryScraped(ctx, slug); err != nil {
		return fmt.Errorf("mark scraped %s: %w", slug, err)
	}

	p.logger.Debug("jobs: category refreshed", "slug", slug, "products", saved)
	return nil
}

func (p *Processor) release(res session.Resource) {
	if err := res.Close(); err != nil {
		p.logger.Warn("jobs: release resource", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
