package vitrine

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testService(t *testing.T) *Service {
	t.Helper()
	cfg := &Config{
		EntryURL: "https://shop.test/",
		DBPath:   filepath.Join(t.TempDir(), "vitrine.db"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { s.store.DB.Close() })
	return s
}

func TestNewRequiresEntryURL(t *testing.T) {
	// WHAT: A service without a site entry point is a configuration
	// error, caught at construction.
	_, err := New(&Config{DBPath: filepath.Join(t.TempDir(), "v.db")}, nil)
	if err == nil {
		t.Fatal("want error for missing entry_url")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.IdleTimeout != 30*time.Minute {
		t.Errorf("idle timeout: %v", cfg.Session.IdleTimeout)
	}
	if cfg.Session.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval: %v", cfg.Session.SweepInterval)
	}
	if cfg.Jobs.StaleThreshold != 24*time.Hour {
		t.Errorf("stale threshold: %v", cfg.Jobs.StaleThreshold)
	}
	if cfg.Jobs.StaleBatchSize != 10 {
		t.Errorf("stale batch size: %d", cfg.Jobs.StaleBatchSize)
	}
	if cfg.Cache.Threshold != 120 {
		t.Errorf("cache threshold: %d", cfg.Cache.Threshold)
	}
	if cfg.Cache.PageSize != 40 {
		t.Errorf("page size: %d", cfg.Cache.PageSize)
	}
	if cfg.Cache.FanoutCap != 10 {
		t.Errorf("fan-out cap: %d", cfg.Cache.FanoutCap)
	}
	if cfg.Jobs.StalePacing >= cfg.Jobs.FullScanPacing {
		t.Errorf("full-scan pacing %v should exceed stale pacing %v",
			cfg.Jobs.FullScanPacing, cfg.Jobs.StalePacing)
	}
}

func TestLoadConfigFile(t *testing.T) {
	// WHAT: YAML values override defaults; everything unset falls back.
	path := filepath.Join(t.TempDir(), "vitrine.yaml")
	raw := `
entry_url: https://books.test/
listen_addr: ":9090"
cache:
  threshold: 50
  page_size: 20
selectors:
  product_card: ".book-tile"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EntryURL != "https://books.test/" {
		t.Errorf("entry url: %q", cfg.EntryURL)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("listen addr: %q", cfg.ListenAddr)
	}
	if cfg.Cache.Threshold != 50 {
		t.Errorf("threshold: %d", cfg.Cache.Threshold)
	}
	if cfg.Cache.PageSize != 20 {
		t.Errorf("page size: %d", cfg.Cache.PageSize)
	}
	if cfg.Selectors.ProductCard != ".book-tile" {
		t.Errorf("product card: %q", cfg.Selectors.ProductCard)
	}
	if cfg.Session.SweepInterval != 5*time.Minute {
		t.Errorf("sweep interval default lost: %v", cfg.Session.SweepInterval)
	}
}

func TestHealthzAndStats(t *testing.T) {
	// WHAT: The HTTP surface answers health and catalog stats without any
	// browser involvement.
	s := testService(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != 200 {
		t.Fatalf("stats: %d", rec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"sessions", "categories", "products", "pending_jobs"} {
		if _, ok := stats[key]; !ok {
			t.Errorf("stats missing %q: %v", key, stats)
		}
	}
}
