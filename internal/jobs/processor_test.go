package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// stubResource records navigations and counts releases.
type stubResource struct {
	navigated []string
	closed    atomic.Int32
}

func (r *stubResource) Navigate(_ context.Context, url string) error {
	r.navigated = append(r.navigated, url)
	return nil
}

func (r *stubResource) Hover(context.Context, string) (bool, error)           { return false, nil }
func (r *stubResource) Click(context.Context, string) error                   { return nil }
func (r *stubResource) TriggerLoadMore(context.Context, string) (bool, error) { return false, nil }
func (r *stubResource) HTML(context.Context) (string, error)                  { return "", nil }
func (r *stubResource) CurrentURL() string                                    { return "" }
func (r *stubResource) Close() error                                          { r.closed.Add(1); return nil }

type stubNav struct {
	cats []store.Category
	err  error
}

func (n *stubNav) Menu(context.Context, session.Resource) ([]store.Category, error) {
	return n.cats, n.err
}

// stubCat fails extraction for any slug listed in failSlugs.
type stubCat struct {
	products  map[string][]store.Product
	failSlugs map[string]bool
	scraped   []string
}

func (c *stubCat) Products(_ context.Context, _ session.Resource, slug string, _ int) ([]store.Product, bool, error) {
	c.scraped = append(c.scraped, slug)
	if c.failSlugs[slug] {
		return nil, false, fmt.Errorf("extract %s: markup changed", slug)
	}
	return c.products[slug], false, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCategories(t *testing.T, st *store.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		cat := &store.Category{
			Slug: fmt.Sprintf("cat-%d", i),
			Name: fmt.Sprintf("Category %d", i),
			URL:  fmt.Sprintf("https://shop.test/cat-%d", i),
		}
		if err := st.UpsertCategory(ctx, cat); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHandleRefreshStaleContinuesOnError(t *testing.T) {
	// WHAT: With 5 stale categories and #3 failing extraction, the other
	// 4 are still refreshed and the job itself succeeds.
	// WHY: One broken category page must not block catalog-wide freshness.
	db := openTestDB(t)
	st := store.New(db)
	ctx := context.Background()
	seedCategories(t, st, 5)

	res := &stubResource{}
	cat := &stubCat{
		products: map[string][]store.Product{
			"cat-1": {{SourceID: "p1", CategorySlug: "cat-1", Title: "One"}},
		},
		failSlugs: map[string]bool{"cat-3": true},
	}
	p := NewProcessor(st, func(context.Context) (session.Resource, error) {
		return res, nil
	}, &stubNav{}, cat, ProcessorConfig{StaleBatchSize: 10}, discard())
	p.sleep = func(context.Context, time.Duration) error { return nil }

	if err := p.HandleRefreshStale(ctx, &Job{Kind: KindRefreshStale}); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if len(cat.scraped) != 5 {
		t.Fatalf("scraped %d categories, want 5: %v", len(cat.scraped), cat.scraped)
	}
	for i := 1; i <= 5; i++ {
		slug := fmt.Sprintf("cat-%d", i)
		got, err := st.GetCategory(ctx, slug)
		if err != nil {
			t.Fatal(err)
		}
		if slug == "cat-3" {
			if got.LastScrapedAt != nil {
				t.Errorf("%s: failed category marked scraped", slug)
			}
			continue
		}
		if got.LastScrapedAt == nil {
			t.Errorf("%s: not marked scraped", slug)
		}
	}
	if res.closed.Load() != 1 {
		t.Fatalf("resource closed %d times, want 1", res.closed.Load())
	}
}

func TestScanPacingBetweenCategories(t *testing.T) {
	// WHAT: Pacing sleeps happen between batch items, not before the
	// first or after the last.
	db := openTestDB(t)
	st := store.New(db)
	seedCategories(t, st, 3)

	slept := 0
	p := NewProcessor(st, func(context.Context) (session.Resource, error) {
		return &stubResource{}, nil
	}, &stubNav{}, &stubCat{}, ProcessorConfig{FullScanPacing: 10 * time.Second}, discard())
	p.sleep = func(_ context.Context, d time.Duration) error {
		if d != 10*time.Second {
			t.Errorf("pacing: got %v, want 10s", d)
		}
		slept++
		return nil
	}

	if err := p.HandleFullScan(context.Background(), &Job{Kind: KindFullScan}); err != nil {
		t.Fatal(err)
	}
	if slept != 2 {
		t.Fatalf("slept %d times for 3 categories, want 2", slept)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	// WHAT: Context cancellation between items aborts the batch.
	db := openTestDB(t)
	st := store.New(db)
	seedCategories(t, st, 3)

	cat := &stubCat{}
	p := NewProcessor(st, func(context.Context) (session.Resource, error) {
		return &stubResource{}, nil
	}, &stubNav{}, cat, ProcessorConfig{}, discard())
	p.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	err := p.HandleFullScan(context.Background(), &Job{Kind: KindFullScan})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(cat.scraped) != 1 {
		t.Fatalf("scraped %d categories after cancel, want 1", len(cat.scraped))
	}
}

func TestHandleRefreshNavigationUpserts(t *testing.T) {
	// WHAT: A navigation refresh lands scraped categories in the store.
	db := openTestDB(t)
	st := store.New(db)
	ctx := context.Background()

	nav := &stubNav{cats: []store.Category{
		{Slug: "shoes", Name: "Shoes", URL: "https://shop.test/shoes"},
		{Slug: "hats", Name: "Hats", URL: "https://shop.test/hats"},
	}}
	res := &stubResource{}
	p := NewProcessor(st, func(context.Context) (session.Resource, error) {
		return res, nil
	}, nav, &stubCat{}, ProcessorConfig{EntryURL: "https://shop.test/"}, discard())

	if err := p.HandleRefreshNavigation(ctx, &Job{Kind: KindRefreshNavigation}); err != nil {
		t.Fatal(err)
	}

	n, err := st.CountCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("categories: got %d, want 2", n)
	}
	if len(res.navigated) != 1 || res.navigated[0] != "https://shop.test/" {
		t.Fatalf("navigated: %v", res.navigated)
	}
}

func TestHandleRefreshCategoryMissingSlug(t *testing.T) {
	db := openTestDB(t)
	p := NewProcessor(store.New(db), func(context.Context) (session.Resource, error) {
		return &stubResource{}, nil
	}, &stubNav{}, &stubCat{}, ProcessorConfig{}, discard())

	err := p.HandleRefreshCategory(context.Background(), &Job{ID: "job_x", Kind: KindRefreshCategory})
	if err == nil || !strings.Contains(err.Error(), "missing category slug") {
		t.Fatalf("got %v, want missing slug error", err)
	}
}

func TestHandleRefreshCategoryURLFromStore(t *testing.T) {
	// WHAT: When the job carries no target URL, the stored category URL
	// is used.
	db := openTestDB(t)
	st := store.New(db)
	ctx := context.Background()
	seedCategories(t, st, 1)

	res := &stubResource{}
	cat := &stubCat{}
	p := NewProcessor(st, func(context.Context) (session.Resource, error) {
		return res, nil
	}, &stubNav{}, cat, ProcessorConfig{}, discard())

	job := &Job{Kind: KindRefreshCategory, Metadata: map[string]any{"categorySlug": "cat-1"}}
	if err := p.HandleRefreshCategory(ctx, job); err != nil {
		t.Fatal(err)
	}
	if len(res.navigated) != 1 || res.navigated[0] != "https://shop.test/cat-1" {
		t.Fatalf("navigated: %v", res.navigated)
	}
}
