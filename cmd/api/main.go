package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/farewatch/backend/internal/config"
	"github.com/farewatch/backend/internal/handler"
	"github.com/farewatch/backend/internal/monitor"
	"github.com/farewatch/backend/internal/notify"
	"github.com/farewatch/backend/internal/repository"
	"github.com/farewatch/backend/internal/scheduler"
	"github.com/farewatch/backend/internal/scraper"
	"github.com/farewatch/backend/internal/scraper/browser"
	"github.com/farewatch/backend/internal/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	alertRepo := repository.NewAlertRepository(db)

	// Browser session pool shared by every fare fetch
	pool, err := browser.NewPool(browser.Config{
		MaxSessions: cfg.MaxSessions,
		Headless:    cfg.BrowserHeadless,
		Proxy:       cfg.Proxy,
		PageTimeout: cfg.PageTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to start browser pool: %v", err)
	}
	defer pool.Close()

	fetcher := scraper.NewFetcher(pool, scraper.DefaultFetcherConfig(), logger)
	dispatcher := notify.NewWebhookDispatcher(nil, logger)

	mon := monitor.New(alertRepo, fetcher, dispatcher, monitor.Config{BaseURL: cfg.BaseURL}, logger)
	alertService := service.NewAlertService(alertRepo, dispatcher, mon, logger)
	alertHandler := handler.NewAlertHandler(alertService)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Alerts
	r.Get("/api/alerts", alertHandler.List)
	r.Post("/api/alerts", alertHandler.Create)
	r.Get("/api/alerts/{id}", alertHandler.Get)
	r.Put("/api/alerts/{id}", alertHandler.Update)
	r.Delete("/api/alerts/{id}", alertHandler.Delete)
	r.Get("/api/alerts/{id}/change-price", alertHandler.ChangePrice)

	// Initialize and start the checker scheduler
	var checkScheduler *scheduler.Scheduler
	if cfg.CheckerEnabled {
		schedCfg := scheduler.Config{
			Schedule: cfg.CheckSchedule,
			Timeout:  cfg.CheckTimeout,
			Enabled:  cfg.CheckerEnabled,
		}
		checkScheduler = scheduler.New(schedCfg, mon, logger)
		if err := checkScheduler.Start(); err != nil {
			logger.Error("Failed to start check scheduler", slog.String("error", err.Error()))
		} else {
			logger.Info("Check scheduler started",
				slog.String("schedule", cfg.CheckSchedule),
				slog.Duration("timeout", cfg.CheckTimeout),
			)
		}
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		// Stop scheduler first so no pass starts mid-shutdown
		if checkScheduler != nil {
			ctx := checkScheduler.Stop()
			<-ctx.Done()
			logger.Info("Scheduler stopped")
		}

		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("Server shutdown error", slog.String("error", err.Error()))
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("Server failed: %v", err)
	}
}
