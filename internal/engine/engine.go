package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/vitrine/internal/jobs"
	"github.com/hazyhaar/vitrine/internal/scrape"
	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// ResultStatus classifies the outcome of one intent.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusPartial ResultStatus = "partial"
	StatusFailed  ResultStatus = "failed"
)

// Result is the uniform shape every intent returns. Failures are captured
// here rather than returned as errors; the only error an intent operation
// returns is session.ErrNoSession.
type Result struct {
	Products     []store.Product `json:"products,omitempty"`
	Status       ResultStatus    `json:"status"`
	Message      string          `json:"message"`
	TotalScraped int             `json:"totalScraped"`
	HasMore      bool            `json:"hasMore"`
}

// Enqueuer is the slice of the background scheduler the engine needs to
// prime the cache for likely-next categories.
type Enqueuer interface {
	EnqueueCategoryRefresh(ctx context.Context, slug, url, triggeredBy string, priority int) error
}

// Config tunes the interactive path.
type Config struct {
	// CacheThreshold is the cached-set size the gate asks for on click,
	// and the size at or above which a cache hit reports hasMore.
	CacheThreshold int
	// PageSize bounds how many products one live extraction returns.
	PageSize int
	// FanoutCap bounds how many sibling categories get a background
	// refresh after a successful live click.
	FanoutCap int
}

func (c *Config) defaults() {
	if c.CacheThreshold <= 0 {
		c.CacheThreshold = 120
	}
	if c.PageSize <= 0 {
		c.PageSize = 40
	}
	if c.FanoutCap <= 0 {
		c.FanoutCap = 10
	}
}

// Engine executes the four client intents against a session's automation
// resource, consulting the cache gate before any live category scrape.
type Engine struct {
	registry *session.Registry
	store    *store.Store
	gate     *CacheGate
	cat      scrape.Category
	det      scrape.Detail
	enq      Enqueuer
	cfg      Config
	logger   *slog.Logger
}

// New creates an Engine. enq may be nil, which disables fan-out.
func New(reg *session.Registry, st *store.Store, gate *CacheGate, cat scrape.Category, det scrape.Detail, enq Enqueuer, cfg Config, logger *slog.Logger) *Engine {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: reg,
		store:    st,
		gate:     gate,
		cat:      cat,
		det:      det,
		enq:      enq,
		cfg:      cfg,
		logger:   logger,
	}
}

// Hover reveals a navigation sub-menu on the session's page. Partial when
// the target does not exist on the page. Never touches persisted data.
func (e *Engine) Hover(ctx context.Context, sessionID, target string) (*Result, error) {
	sess, err := e.acquire(sessionID)
	if err != nil {
		return nil, err
	}

	var found bool
	err = sess.Do(func() error {
		var herr error
		found, herr = sess.Resource.Hover(ctx, target)
		return herr
	})
	if err != nil {
		return failed(sess, fmt.Sprintf("hover %s: %v", target, err)), nil
	}
	if !found {
		return &Result{
			Status:       StatusPartial,
			Message:      fmt.Sprintf("navigation target %s not found", target),
			TotalScraped: sess.ProductsScraped(),
		}, nil
	}
	return &Result{
		Status:       StatusSuccess,
		Message:      "menu revealed",
		TotalScraped: sess.ProductsScraped(),
	}, nil
}

// Click serves the category from cache when the gate allows it, otherwise
// performs the live navigation, extracts an initial page, persists it, and
// fans out background refreshes for sibling categories.
func (e *Engine) Click(ctx context.Context, sessionID, target, categorySlug, navigationSlug string) (*Result, error) {
	sess, err := e.acquire(sessionID)
	if err != nil {
		return nil, err
	}

	if categorySlug != "" {
		cached, serve, gerr := e.gate.ShouldServeCache(ctx, categorySlug, e.cfg.CacheThreshold)
		if gerr != nil {
			e.logger.Warn("engine: cache gate", "category", categorySlug, "error", gerr)
		} else if serve {
			sess.RecordNavigation("", categorySlug, 0)
			return &Result{
				Products:     cached,
				Status:       StatusSuccess,
				Message:      fmt.Sprintf("served %d cached products for %s", len(cached), categorySlug),
				TotalScraped: sess.ProductsScraped(),
				HasMore:      len(cached) >= e.cfg.CacheThreshold,
			}, nil
		}
	}

	var (
		products []store.Product
		hasMore  bool
	)
	err = sess.Do(func() error {
		if navigationSlug != "" {
			if _, herr := sess.Resource.Hover(ctx, navigationSlug); herr != nil {
				e.logger.Debug("engine: pre-click hover", "target", navigationSlug, "error", herr)
			}
		}
		if cerr := sess.Resource.Click(ctx, target); cerr != nil {
			return fmt.Errorf("click %s: %w", target, cerr)
		}
		var serr error
		products, hasMore, serr = e.cat.Products(ctx, sess.Resource, categorySlug, e.cfg.PageSize)
		if serr != nil {
			return fmt.Errorf("%w: %v", scrape.ErrExtraction, serr)
		}
		return nil
	})
	if err != nil {
		return failed(sess, err.Error()), nil
	}

	saved := e.persistProducts(ctx, categorySlug, sess.Resource.CurrentURL(), products)
	sess.RecordNavigation(sess.Resource.CurrentURL(), categorySlug, saved)
	e.persistActivity(ctx, sess)

	if saved > 0 && categorySlug != "" {
		e.fanout(ctx, categorySlug)
	}

	if len(products) > 0 && saved == 0 {
		return &Result{
			Products:     products,
			Status:       StatusPartial,
			Message:      fmt.Sprintf("extracted %d products from %s but persisted none", len(products), categorySlug),
			TotalScraped: sess.ProductsScraped(),
			HasMore:      hasMore,
		}, nil
	}

	return &Result{
		Products:     products,
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("scraped %d products from %s", saved, categorySlug),
		TotalScraped: sess.ProductsScraped(),
		HasMore:      hasMore,
	}, nil
}

// Paginate triggers the page's load-more affordance. When the affordance is
// absent the result is partial with hasMore=false, not an error.
func (e *Engine) Paginate(ctx context.Context, sessionID, target, categorySlug string) (*Result, error) {
	sess, err := e.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	if categorySlug == "" {
		categorySlug = sess.ActiveCategory()
	}

	var (
		triggered bool
		products  []store.Product
		hasMore   bool
	)
	err = sess.Do(func() error {
		var terr error
		triggered, terr = sess.Resource.TriggerLoadMore(ctx, target)
		if terr != nil {
			return fmt.Errorf("load more: %w", terr)
		}
		if !triggered {
			return nil
		}
		var serr error
		products, hasMore, serr = e.cat.Products(ctx, sess.Resource, categorySlug, e.cfg.PageSize)
		if serr != nil {
			return fmt.Errorf("%w: %v", scrape.ErrExtraction, serr)
		}
		return nil
	})
	if err != nil {
		return failed(sess, err.Error()), nil
	}
	if !triggered {
		return &Result{
			Status:       StatusPartial,
			Message:      "no further pages available",
			TotalScraped: sess.ProductsScraped(),
			HasMore:      false,
		}, nil
	}

	saved := e.persistProducts(ctx, categorySlug, sess.Resource.CurrentURL(), products)
	sess.RecordNavigation(sess.Resource.CurrentURL(), categorySlug, saved)
	e.persistActivity(ctx, sess)

	if len(products) > 0 && saved == 0 {
		return &Result{
			Products:     products,
			Status:       StatusPartial,
			Message:      fmt.Sprintf("extracted %d more products but persisted none", len(products)),
			TotalScraped: sess.ProductsScraped(),
			HasMore:      hasMore,
		}, nil
	}

	return &Result{
		Products:     products,
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("loaded %d more products", saved),
		TotalScraped: sess.ProductsScraped(),
		HasMore:      hasMore,
	}, nil
}

// GetDetails returns the persisted product detail when present, otherwise
// drives the session to the product's canonical URL and extracts it live.
func (e *Engine) GetDetails(ctx context.Context, sessionID, sourceID string) (*Result, error) {
	sess, err := e.acquire(sessionID)
	if err != nil {
		return nil, err
	}

	known, err := e.store.GetProduct(ctx, sourceID)
	if err != nil {
		return failed(sess, fmt.Sprintf("lookup %s: %v", sourceID, err)), nil
	}
	if known == nil {
		return failed(sess, fmt.Sprintf("unknown product %s", sourceID)), nil
	}
	if known.HasDetail() {
		return &Result{
			Products:     []store.Product{*known},
			Status:       StatusSuccess,
			Message:      "served cached detail",
			TotalScraped: sess.ProductsScraped(),
		}, nil
	}

	var detail *store.Product
	err = sess.Do(func() error {
		if known.SourceURL == "" {
			return fmt.Errorf("product %s has no canonical url", sourceID)
		}
		if nerr := sess.Resource.Navigate(ctx, known.SourceURL); nerr != nil {
			return fmt.Errorf("navigate %s: %w", known.SourceURL, nerr)
		}
		var derr error
		detail, derr = e.det.Product(ctx, sess.Resource, sourceID)
		if derr != nil {
			return fmt.Errorf("%w: %v", scrape.ErrExtraction, derr)
		}
		return nil
	})
	if err != nil {
		return failed(sess, err.Error()), nil
	}

	detail.CategorySlug = known.CategorySlug
	if detail.SourceURL == "" {
		detail.SourceURL = known.SourceURL
	}
	if err := e.store.SaveProductDetail(ctx, detail); err != nil {
		e.logger.Warn("engine: save detail", "source_id", sourceID, "error", err)
	}
	sess.RecordNavigation(sess.Resource.CurrentURL(), "", 0)

	return &Result{
		Products:     []store.Product{*detail},
		Status:       StatusSuccess,
		Message:      "detail scraped",
		TotalScraped: sess.ProductsScraped(),
	}, nil
}

// acquire resolves the session and refreshes its activity timestamp.
func (e *Engine) acquire(sessionID string) (*session.Session, error) {
	sess, err := e.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if terr := e.registry.Touch(sessionID); terr != nil {
		return nil, terr
	}
	return sess, nil
}

// persistActivity mirrors the session's counters into its persisted record.
// Best-effort; the in-memory registry stays authoritative.
func (e *Engine) persistActivity(ctx context.Context, sess *session.Session) {
	if err := e.store.UpdateSessionActivity(ctx, sess.ID, sess.CurrentURL(), sess.ProductsScraped()); err != nil {
		e.logger.Warn("engine: persist session activity", "session_id", sess.ID, "error", err)
	}
}

// ensureCategory inserts a minimal catalog row when the slug has never been
// seen, so product rows have something to reference. Existing rows are left
// untouched; the navigation refresh owns their names and menu placement.
func (e *Engine) ensureCategory(ctx context.Context, slug, url string) {
	known, err := e.store.GetCategory(ctx, slug)
	if err != nil {
		e.logger.Warn("engine: category lookup", "category", slug, "error", err)
		return
	}
	if known != nil {
		return
	}
	if err := e.store.UpsertCategory(ctx, &store.Category{Slug: slug, Name: slug, URL: url}); err != nil {
		e.logger.Warn("engine: create category", "category", slug, "error", err)
	}
}

// persistProducts upserts each product, continue-on-error, and stamps the
// category's freshness when anything was saved. The category row is created
// first when it does not exist yet; a live click can land on a category the
// catalog has never recorded.
func (e *Engine) persistProducts(ctx context.Context, categorySlug, pageURL string, products []store.Product) int {
	if categorySlug != "" && len(products) > 0 {
		e.ensureCategory(ctx, categorySlug, pageURL)
	}
	saved := 0
	for i := range products {
		if products[i].CategorySlug == "" {
			products[i].CategorySlug = categorySlug
		}
		if err := e.store.UpsertProduct(ctx, &products[i]); err != nil {
			e.logger.Warn("engine: save product", "source_id", products[i].SourceID, "error", err)
			continue
		}
		saved++
	}
	if saved > 0 && categorySlug != "" {
		if err := e.store.MarkCategoryScraped(ctx, categorySlug); err != nil {
			e.logger.Warn("engine: mark scraped", "category", categorySlug, "error", err)
		}
	}
	return saved
}

// fanout enqueues low-priority background refreshes for a bounded set of
// categories other than the one just scraped. Best-effort.
func (e *Engine) fanout(ctx context.Context, activeSlug string) {
	if e.enq == nil {
		return
	}
	cats, err := e.store.ListCategories(ctx)
	if err != nil {
		e.logger.Warn("engine: fan-out listing", "error", err)
		return
	}

	queued := 0
	for _, cat := range cats {
		if cat.Slug == activeSlug {
			continue
		}
		if queued >= e.cfg.FanoutCap {
			break
		}
		if err := e.enq.EnqueueCategoryRefresh(ctx, cat.Slug, cat.URL,
			string(jobs.TriggerSystem), int(jobs.PriorityLow)); err != nil {
			e.logger.Warn("engine: fan-out enqueue", "category", cat.Slug, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		e.logger.Debug("engine: fan-out queued", "active", activeSlug, "categories", queued)
	}
}

func failed(sess *session.Session, msg string) *Result {
	return &Result{
		Status:       StatusFailed,
		Message:      msg,
		TotalScraped: sess.ProductsScraped(),
	}
}
