package vitrine

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/vitrine/internal/scrape"
)

// Config is the top-level service configuration.
type Config struct {
	// ListenAddr is the HTTP listen address for the websocket endpoint.
	ListenAddr string `yaml:"listen_addr"`
	// DBPath is the SQLite database file. Empty means ./vitrine.db.
	DBPath string `yaml:"db_path"`
	// EntryURL is the mirrored site's entry point. Every new session and
	// every navigation refresh starts here.
	EntryURL string `yaml:"entry_url"`

	Browser   BrowserConfig    `yaml:"browser"`
	Session   SessionConfig    `yaml:"session"`
	Cache     CacheConfig      `yaml:"cache"`
	Jobs      JobsConfig       `yaml:"jobs"`
	Selectors scrape.Selectors `yaml:"selectors"`
}

// BrowserConfig controls Chrome lifecycle for session and job resources.
type BrowserConfig struct {
	Headless         *bool         `yaml:"headless"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// SessionConfig controls session reclamation.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CacheConfig tunes the interactive cache-before-scrape path.
type CacheConfig struct {
	// Threshold is the cached-set size the gate asks for on click.
	Threshold int `yaml:"threshold"`
	// PageSize bounds one live extraction.
	PageSize int `yaml:"page_size"`
	// FanoutCap bounds sibling-category refreshes after a live click.
	FanoutCap int `yaml:"fanout_cap"`
}

// JobsConfig tunes the background maintenance path.
type JobsConfig struct {
	StaleThreshold     time.Duration `yaml:"stale_threshold"`
	StaleBatchSize     int           `yaml:"stale_batch_size"`
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`
	StaleStartDelay    time.Duration `yaml:"stale_start_delay"`
	FullScanStartDelay time.Duration `yaml:"full_scan_start_delay"`
	StalePacing        time.Duration `yaml:"stale_pacing"`
	FullScanPacing     time.Duration `yaml:"full_scan_pacing"`
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "vitrine.db"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = 5 * time.Minute
	}
	if c.Cache.Threshold <= 0 {
		c.Cache.Threshold = 120
	}
	if c.Cache.PageSize <= 0 {
		c.Cache.PageSize = 40
	}
	if c.Cache.FanoutCap <= 0 {
		c.Cache.FanoutCap = 10
	}
	if c.Jobs.StaleThreshold <= 0 {
		c.Jobs.StaleThreshold = 24 * time.Hour
	}
	if c.Jobs.StaleBatchSize <= 0 {
		c.Jobs.StaleBatchSize = 10
	}
	if c.Jobs.StaleCheckInterval <= 0 {
		c.Jobs.StaleCheckInterval = time.Hour
	}
	if c.Jobs.StaleStartDelay <= 0 {
		c.Jobs.StaleStartDelay = 30 * time.Second
	}
	if c.Jobs.FullScanStartDelay <= 0 {
		c.Jobs.FullScanStartDelay = 10 * time.Minute
	}
	if c.Jobs.StalePacing <= 0 {
		c.Jobs.StalePacing = 2 * time.Second
	}
	if c.Jobs.FullScanPacing <= 0 {
		c.Jobs.FullScanPacing = 10 * time.Second
	}
}
