// Command vitrine serves live, site-mirroring browsing sessions over
// websocket, backed by per-session headless Chrome and a background
// catalog-freshness scheduler.
//
// Usage:
//
//	vitrine -config vitrine.yaml
//	vitrine -entry-url https://shop.example/ -listen :8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/vitrine"
)

func main() {
	configPath := flag.String("config", "", "path to vitrine.yaml config file")
	entryURL := flag.String("entry-url", "", "site entry point (overrides config)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *entryURL, *listenAddr, *dbPath); err != nil {
		logger.Error("vitrine: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, entryURL, listenAddr, dbPath string) error {
	cfg := vitrine.DefaultConfig()
	if configPath != "" {
		loaded, err := vitrine.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if entryURL != "" {
		cfg.EntryURL = entryURL
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	svc, err := vitrine.New(cfg, logger)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}
