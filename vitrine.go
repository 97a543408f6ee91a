// Package vitrine serves a live, site-mirroring browsing experience: each
// client connection owns one headless-browser session it drives through
// hover/click/paginate/get-details intents, while a background scheduler
// keeps the persisted catalog fresh without competing with interactive work.
package vitrine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/vitrine/dbopen"
	"github.com/hazyhaar/vitrine/internal/browser"
	"github.com/hazyhaar/vitrine/internal/engine"
	"github.com/hazyhaar/vitrine/internal/gateway"
	"github.com/hazyhaar/vitrine/internal/jobs"
	"github.com/hazyhaar/vitrine/internal/scrape"
	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// Service wires the full stack: store, session registry, interaction
// engine, websocket gateway, and the two job workers.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	store     *store.Store
	registry  *session.Registry
	queue     *jobs.Queue
	scheduler *jobs.Scheduler
	fg        *jobs.Worker
	bg        *jobs.Worker
	router    chi.Router
}

// New builds a Service from the configuration. The database is opened and
// migrated here; Run starts the long-lived loops.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.applyDefaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EntryURL == "" {
		return nil, fmt.Errorf("vitrine: entry_url is required")
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("vitrine: open database: %w", err)
	}
	st := store.New(db)

	launch := func(ctx context.Context) (session.Resource, error) {
		h, lerr := browser.Launch(ctx, browser.Config{
			EntryURL:         cfg.EntryURL,
			NavTimeout:       cfg.Browser.NavTimeout,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Headless:         cfg.Browser.Headless,
			Logger:           logger,
		})
		if lerr != nil {
			return nil, lerr
		}
		return h, nil
	}

	registry := session.NewRegistry(launch, st, session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
	}, logger)

	nav := scrape.NewNavScraper(cfg.Selectors, logger)
	cat := scrape.NewCategoryScraper(cfg.Selectors, logger)
	det := scrape.NewDetailScraper(cfg.Selectors, logger)

	queue := jobs.NewQueue(db)
	scheduler := jobs.NewScheduler(queue, st, jobs.SchedulerConfig{
		StaleThreshold:     cfg.Jobs.StaleThreshold,
		StaleBatchSize:     cfg.Jobs.StaleBatchSize,
		StaleCheckInterval: cfg.Jobs.StaleCheckInterval,
		StaleStartDelay:    cfg.Jobs.StaleStartDelay,
		FullScanStartDelay: cfg.Jobs.FullScanStartDelay,
	}, logger)

	eng := engine.New(registry, st, engine.NewCacheGate(st), cat, det, scheduler, engine.Config{
		CacheThreshold: cfg.Cache.Threshold,
		PageSize:       cfg.Cache.PageSize,
		FanoutCap:      cfg.Cache.FanoutCap,
	}, logger)

	processor := jobs.NewProcessor(st, launch, nav, cat, jobs.ProcessorConfig{
		EntryURL:       cfg.EntryURL,
		PageSize:       cfg.Cache.PageSize,
		StaleThreshold: cfg.Jobs.StaleThreshold,
		StaleBatchSize: cfg.Jobs.StaleBatchSize,
		StalePacing:    cfg.Jobs.StalePacing,
		FullScanPacing: cfg.Jobs.FullScanPacing,
	}, logger)

	fg := jobs.NewWorker(queue, jobs.QueueForeground, logger)
	bg := jobs.NewWorker(queue, jobs.QueueBackground, logger)
	processor.Register(fg, bg)

	gw := gateway.New(registry, eng, logger)

	s := &Service{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		registry:  registry,
		queue:     queue,
		scheduler: scheduler,
		fg:        fg,
		bg:        bg,
	}
	s.router = s.routes(gw)
	return s, nil
}

func (s *Service) routes(gw *gateway.Gateway) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", gw.ServeHTTP)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	return r
}

// Handler exposes the HTTP surface, mostly for tests.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run starts the workers, the scheduler, the idle sweep, and the HTTP
// server, then blocks until ctx is cancelled. Shutdown closes every open
// session and the database.
func (s *Service) Run(ctx context.Context) error {
	if err := s.scheduler.Bootstrap(ctx); err != nil {
		return fmt.Errorf("vitrine: bootstrap: %w", err)
	}

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.fg.Run(gctx); return nil })
	g.Go(func() error { s.bg.Run(gctx); return nil })
	g.Go(func() error { s.scheduler.Run(gctx); return nil })
	g.Go(func() error { s.registry.Run(gctx); return nil })
	g.Go(func() error {
		s.logger.Info("vitrine: listening", "addr", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.registry.CloseAll(closeCtx)

	if dberr := s.store.DB.Close(); dberr != nil {
		err = errors.Join(err, dberr)
	}
	return err
}

func (s *Service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStats reports live session and catalog counts.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := s.store.CountCategories(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	products, err := s.store.CountAllProducts(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pendingJobs, err := s.queue.PendingCount(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions":     s.registry.Len(),
		"categories":   categories,
		"products":     products,
		"pending_jobs": pendingJobs,
	})
}
