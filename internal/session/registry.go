package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNoSession is returned when an operation references a session that has
// expired, never existed, or was already terminated.
var ErrNoSession = errors.New("session: no active session")

// ErrInitFailed wraps failures to acquire an automation resource. Fatal to
// the connection attempt; no partial session is left behind.
var ErrInitFailed = errors.New("session: initialization failed")

// Launcher acquires a new automation resource for a session.
type Launcher func(ctx context.Context) (Resource, error)

// RecordStore persists lightweight session records for observability.
// Failures are logged, never propagated.
type RecordStore interface {
	InsertSessionRecord(ctx context.Context, sessionID, currentURL string) error
	UpdateSessionActivity(ctx context.Context, sessionID, currentURL string, productsScraped int) error
	UpdateSessionStatus(ctx context.Context, sessionID, status string) error
}

// Config configures the registry.
type Config struct {
	// IdleTimeout is how long a session may go without an intent before the
	// sweep closes it. Default: 30 minutes.
	IdleTimeout time.Duration
	// SweepInterval is the cadence of the idle sweep. Default: 5 minutes.
	SweepInterval time.Duration
}

func (c *Config) defaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
}

// Registry maps session ids to live sessions. It is the only shared mutable
// structure on the interactive path; all access goes through the mutex.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	launch  Launcher
	records RecordStore
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a Registry. records may be nil to skip persistence.
func NewRegistry(launch Launcher, records RecordStore, cfg Config, logger *slog.Logger) *Registry {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		launch:   launch,
		records:  records,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Open acquires an automation resource and registers a new session under id.
// On failure no registry entry and no session record are created.
func (r *Registry) Open(ctx context.Context, id string) (*Session, error) {
	res, err := r.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	s := &Session{
		ID:           id,
		Resource:     res,
		currentURL:   res.CurrentURL(),
		lastActivity: r.now(),
		status:       StatusActive,
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		res.Close()
		return nil, fmt.Errorf("%w: duplicate session id %s", ErrInitFailed, id)
	}
	r.sessions[id] = s
	r.mu.Unlock()

	if r.records != nil {
		if err := r.records.InsertSessionRecord(ctx, id, s.currentURL); err != nil {
			r.logger.Warn("session: persist record", "session_id", id, "error", err)
		}
	}

	r.logger.Info("session: opened", "session_id", id, "url", s.currentURL)
	return s, nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Touch updates the session's last-activity timestamp.
func (r *Registry) Touch(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.Touch(r.now())
	return nil
}

// Close terminates a session and releases its resource. Idempotent: the
// second call observes the entry already absent and returns nil. The entry
// is removed under the lock before the resource is released, so a concurrent
// sweep and an explicit close can never double-free.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}

	s.setStatus(StatusTerminated)
	if err := s.Resource.Close(); err != nil {
		r.logger.Warn("session: release resource", "session_id", id, "error", err)
	}

	if r.records != nil {
		if err := r.records.UpdateSessionStatus(ctx, id, StatusTerminated.String()); err != nil {
			r.logger.Warn("session: persist terminated", "session_id", id, "error", err)
		}
	}

	r.logger.Info("session: closed", "session_id", id)
	return nil
}

// Sweep closes every session idle for longer than the configured timeout.
// An expired session passes through the idle state before it is terminated,
// and both transitions reach the record store.
func (r *Registry) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.RLock()
	var expired []*Session
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range expired {
		s.setStatus(StatusIdle)
		if r.records != nil {
			if err := r.records.UpdateSessionStatus(ctx, s.ID, StatusIdle.String()); err != nil {
				r.logger.Warn("session: persist idle", "session_id", s.ID, "error", err)
			}
		}
		r.logger.Info("session: idle timeout", "session_id", s.ID)
		if err := r.Close(ctx, s.ID); err != nil {
			r.logger.Warn("session: sweep close", "session_id", s.ID, "error", err)
		}
	}
}

// Run runs the idle sweep on a ticker. Blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CloseAll closes every open session concurrently. One session's cleanup
// failure does not prevent the others from being attempted.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := r.Close(ctx, id); err != nil {
				r.logger.Warn("session: shutdown close", "session_id", id, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
