package engine

import (
	"context"
	"fmt"

	"github.com/hazyhaar/vitrine/internal/store"
)

// CacheGate decides whether persisted products may substitute for a live
// scrape. The policy is deliberately weak: any non-empty cached set beats a
// guaranteed live round-trip. Freshness is a separate concern handled by the
// background staleness scan.
type CacheGate struct {
	store *store.Store
}

// NewCacheGate creates a gate over the shared store.
func NewCacheGate(st *store.Store) *CacheGate {
	return &CacheGate{store: st}
}

// ShouldServeCache looks up the category and, if it exists, fetches up to
// minCount persisted products ordered most-recently-scraped first. serve is
// true iff at least one product came back. Read-only.
func (g *CacheGate) ShouldServeCache(ctx context.Context, categorySlug string, minCount int) ([]store.Product, bool, error) {
	cat, err := g.store.GetCategory(ctx, categorySlug)
	if err != nil {
		return nil, false, fmt.Errorf("engine: cache gate %s: %w", categorySlug, err)
	}
	if cat == nil {
		return nil, false, nil
	}

	products, err := g.store.RecentProducts(ctx, categorySlug, minCount)
	if err != nil {
		return nil, false, fmt.Errorf("engine: cache gate %s: %w", categorySlug, err)
	}
	return products, len(products) > 0, nil
}
