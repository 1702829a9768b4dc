package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/farewatch/backend/internal/config"
	"github.com/farewatch/backend/internal/monitor"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
	"github.com/farewatch/backend/internal/scraper"
	"github.com/farewatch/backend/internal/scraper/browser"
)

// checker runs a single monitoring pass over every stored alert and
// exits. Useful from cron or for a manual check outside the API server.
func main() {
	timeout := flag.Duration("timeout", 30*time.Minute, "Timeout for the complete pass")
	dryRun := flag.Bool("dry-run", false, "Fetch and record prices but log notifications instead of sending them")
	flag.Parse()

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	pool, err := browser.NewPool(browser.Config{
		MaxSessions: cfg.MaxSessions,
		Headless:    cfg.BrowserHeadless,
		Proxy:       cfg.Proxy,
		PageTimeout: cfg.PageTimeout,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: start browser pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	alertRepo := repository.NewAlertRepository(db)
	fetcher := scraper.NewFetcher(pool, scraper.DefaultFetcherConfig(), logger)

	var dispatcher notify.Dispatcher = notify.NewWebhookDispatcher(nil, logger)
	if *dryRun {
		logger.Info("Dry run: notifications will be logged, not sent")
		dispatcher = notify.NewLogDispatcher(logger)
	}

	mon := monitor.New(alertRepo, fetcher, dispatcher, monitor.Config{BaseURL: cfg.BaseURL}, logger)

	start := time.Now()
	result, err := mon.RunPass(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d alerts in %.1fs: %d expired, %d dropped, %d unavailable, %d failed\n",
		result.Checked, time.Since(start).Seconds(),
		result.Expired, result.Dropped, result.Unavailable, result.Failed)
}
