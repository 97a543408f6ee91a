// Package session owns the registry of live automation sessions: one entry
// per client connection, each holding an exclusively-owned browser resource.
package session

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a session.
type Status int

const (
	StatusActive Status = iota
	StatusIdle
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusIdle:
		return "idle"
	case StatusTerminated:
		return "terminated"
	}
	return "unknown"
}

// Resource is the automation handle owned by a session. browser.Handle is
// the production implementation; tests substitute instrumented fakes.
type Resource interface {
	Navigate(ctx context.Context, url string) error
	Hover(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	TriggerLoadMore(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context) (string, error)
	CurrentURL() string
	Close() error
}

// Session is one client's live automation context. The resource is owned by
// this entry and never aliased elsewhere; Do serializes intent execution.
type Session struct {
	ID       string
	Resource Resource

	mu                 sync.Mutex // guards the fields below
	currentURL         string
	activeCategorySlug string
	productsScraped    int
	lastActivity       time.Time
	status             Status

	intentMu sync.Mutex // held for the duration of one intent
}

// Do runs fn while holding the session's intent lock, so no two intents
// ever execute concurrently against the same automation resource.
func (s *Session) Do(fn func() error) error {
	s.intentMu.Lock()
	defer s.intentMu.Unlock()
	return fn()
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentURL returns the session's recorded URL.
func (s *Session) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// ActiveCategory returns the slug the session last navigated to, if any.
func (s *Session) ActiveCategory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCategorySlug
}

// ProductsScraped returns the running counter of products extracted in this
// session.
func (s *Session) ProductsScraped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productsScraped
}

// RecordNavigation updates the session after a successful category visit.
func (s *Session) RecordNavigation(url, categorySlug string, scraped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if url != "" {
		s.currentURL = url
	}
	if categorySlug != "" {
		s.activeCategorySlug = categorySlug
	}
	s.productsScraped += scraped
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
