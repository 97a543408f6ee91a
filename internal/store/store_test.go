package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func ms(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

func TestUpsertProductIdempotent(t *testing.T) {
	// WHAT: Saving the same product twice updates the same row.
	// WHY: Interactive and background paths write without cross-path locking;
	// upsert by natural key is the enforced discipline.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	if err := s.UpsertCategory(ctx, &Category{Slug: "fiction-books", Name: "Fiction", URL: "https://shop.example/fiction"}); err != nil {
		t.Fatalf("upsert category: %v", err)
	}

	p := &Product{SourceID: "p-1", CategorySlug: "fiction-books", Title: "First", Price: "9.99", Currency: "EUR"}
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	p2 := &Product{SourceID: "p-1", CategorySlug: "fiction-books", Title: "First (updated)", Price: "8.99", Currency: "EUR"}
	if err := s.UpsertProduct(ctx, p2); err != nil {
		t.Fatalf("upsert product again: %v", err)
	}

	count, err := s.CountProducts(ctx, "fiction-books")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("product count: got %d, want 1", count)
	}

	got, err := s.GetProduct(ctx, "p-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "First (updated)" || got.Price != "8.99" {
		t.Fatalf("product not updated: %+v", got)
	}

	if err := s.RecountProducts(ctx, "fiction-books"); err != nil {
		t.Fatal(err)
	}
	cat, err := s.GetCategory(ctx, "fiction-books")
	if err != nil {
		t.Fatal(err)
	}
	if cat.ProductCount != 1 {
		t.Fatalf("product_count: got %d, want 1", cat.ProductCount)
	}
}

func TestUpsertProductKeepsDetail(t *testing.T) {
	// WHAT: A listing refresh does not erase an already-scraped detail.
	// WHY: Background refreshes run concurrently with detail fetches.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	s.UpsertCategory(ctx, &Category{Slug: "c", Name: "C", URL: "u"})
	s.UpsertProduct(ctx, &Product{SourceID: "p-1", CategorySlug: "c", Title: "T"})

	p, _ := s.GetProduct(ctx, "p-1")
	p.Description = "long description"
	if err := s.SaveProductDetail(ctx, p); err != nil {
		t.Fatal(err)
	}

	// Listing refresh upserts the same product without detail fields.
	s.UpsertProduct(ctx, &Product{SourceID: "p-1", CategorySlug: "c", Title: "T2"})

	got, _ := s.GetProduct(ctx, "p-1")
	if got.Description != "long description" {
		t.Fatalf("description lost on upsert: %q", got.Description)
	}
	if !got.HasDetail() {
		t.Fatal("detail_scraped_at lost on upsert")
	}
	if got.Title != "T2" {
		t.Fatalf("title: got %q, want T2", got.Title)
	}
}

func TestStaleCategories(t *testing.T) {
	// WHAT: Staleness selection honors the threshold and orders oldest-first
	// with never-scraped categories treated as oldest.
	// WHY: The background scheduler refreshes the most neglected categories first.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	now := time.Now()
	cats := []*Category{
		{Slug: "never", Name: "n", URL: "u"},
		{Slug: "fresh-10h", Name: "n", URL: "u", LastScrapedAt: ms(now.Add(-10 * time.Hour))},
		{Slug: "stale-30h", Name: "n", URL: "u", LastScrapedAt: ms(now.Add(-30 * time.Hour))},
		{Slug: "stale-25h", Name: "n", URL: "u", LastScrapedAt: ms(now.Add(-25 * time.Hour))},
	}
	for _, c := range cats {
		if err := s.UpsertCategory(ctx, c); err != nil {
			t.Fatal(err)
		}
		// UpsertCategory preserves existing timestamps on conflict; set them directly.
		if _, err := db.Exec(`UPDATE categories SET last_scraped_at = ? WHERE slug = ?`, c.LastScrapedAt, c.Slug); err != nil {
			t.Fatal(err)
		}
	}

	stale, err := s.StaleCategories(ctx, 24*time.Hour, 10)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"never", "stale-30h", "stale-25h"}
	if len(stale) != len(want) {
		t.Fatalf("stale count: got %d, want %d", len(stale), len(want))
	}
	for i, w := range want {
		if stale[i].Slug != w {
			t.Errorf("stale[%d]: got %q, want %q", i, stale[i].Slug, w)
		}
	}
}

func TestStaleCategoriesLimit(t *testing.T) {
	// WHAT: The batch size cap is applied.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	for _, slug := range []string{"a", "b", "c"} {
		s.UpsertCategory(ctx, &Category{Slug: slug, Name: slug, URL: "u"})
	}

	stale, err := s.StaleCategories(ctx, 24*time.Hour, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 2 {
		t.Fatalf("stale count: got %d, want 2", len(stale))
	}
}

func TestRecentProductsOrder(t *testing.T) {
	// WHAT: RecentProducts returns most-recently-scraped first, capped.
	// WHY: The cache gate serves a bounded, freshest-first view.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	s.UpsertCategory(ctx, &Category{Slug: "c", Name: "C", URL: "u"})
	base := time.Now().UnixMilli()
	for i, id := range []string{"old", "mid", "new"} {
		s.UpsertProduct(ctx, &Product{
			SourceID: id, CategorySlug: "c", Title: id,
			LastScrapedAt: base + int64(i*1000),
		})
	}

	got, err := s.RecentProducts(ctx, "c", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].SourceID != "new" || got[1].SourceID != "mid" {
		t.Fatalf("order: got %q, %q", got[0].SourceID, got[1].SourceID)
	}
}

func TestGetUnknown(t *testing.T) {
	// WHAT: Absent rows come back as nil, nil, not an error.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	cat, err := s.GetCategory(ctx, "missing")
	if err != nil || cat != nil {
		t.Fatalf("get missing category: got %v, %v", cat, err)
	}
	p, err := s.GetProduct(ctx, "missing")
	if err != nil || p != nil {
		t.Fatalf("get missing product: got %v, %v", p, err)
	}
	r, err := s.GetSessionRecord(ctx, "missing")
	if err != nil || r != nil {
		t.Fatalf("get missing session: got %v, %v", r, err)
	}
}

func TestSessionRecordLifecycle(t *testing.T) {
	// WHAT: Session records move active → terminated with activity updates.
	db := openTestDB(t)
	ctx := context.Background()
	s := New(db)

	if err := s.InsertSessionRecord(ctx, "sess_1", "https://shop.example"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSessionActivity(ctx, "sess_1", "https://shop.example/fiction", 40); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSessionStatus(ctx, "sess_1", "terminated"); err != nil {
		t.Fatal(err)
	}

	r, err := s.GetSessionRecord(ctx, "sess_1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != "terminated" {
		t.Fatalf("status: got %q, want terminated", r.Status)
	}
	if r.ProductsScraped != 40 {
		t.Fatalf("products_scraped: got %d, want 40", r.ProductsScraped)
	}
	if r.CurrentURL != "https://shop.example/fiction" {
		t.Fatalf("current_url: got %q", r.CurrentURL)
	}
}
