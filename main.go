package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pricecompare/config"
	"pricecompare/database"
	"pricecompare/handlers"
	"pricecompare/middleware"
	"pricecompare/pipeline"
	"pricecompare/relevance"
	"pricecompare/repository"
	"pricecompare/scheduler"
	"pricecompare/scraper"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.HasDatabase() {
		var err error
		db, err = database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", "err", err)
		}
		defer db.Close()

		if err := database.CreateTables(ctx, db); err != nil {
			logger.Fatal("failed to create tables", "err", err)
		}
		logger.Info("database ready")
	}

	store := newStore(cfg, db, logger)

	var history repository.HistoryRepository = repository.NewMemoryHistory(0)
	if db != nil {
		history = repository.NewPostgresHistory(db)
	}

	browser, err := scraper.NewBrowser(scraper.BrowserOptions{
		Headless: cfg.Headless,
		Bin:      cfg.ChromiumPath,
	}, logger.WithPrefix("browser"))
	if err != nil {
		logger.Fatal("failed to start browser", "err", err)
	}
	defer browser.Close()

	scrapeOpts := scraper.DefaultOptions()
	scrapeOpts.MaxAttempts = cfg.ScrapeMaxAttempts
	scrapeOpts.Timeout = cfg.ScrapeTimeout
	extractors := scraper.NewExtractors(browser, scrapeOpts, logger.WithPrefix("scraper"))

	comparator := pipeline.NewComparator(pipeline.Config{
		SourceMinRelevance:    cfg.SourceMinRelevance,
		AggregateMinRelevance: cfg.AggregateMinRelevance,
		FallbackSize:          cfg.FallbackSize,
		TopN:                  cfg.TopN,
		MaxParallel:           cfg.MaxParallelSources,
	}, extractors, relevance.NewScorer(), store, history, logger.WithPrefix("pipeline"))

	taskManager := scheduler.NewTaskManager(comparator.Compare, cfg.TaskWorkers, cfg.SearchTimeout, logger.WithPrefix("tasks"))
	defer taskManager.Stop()

	svc := handlers.Services{
		Searcher: comparator,
		Tasks:    taskManager,
		History:  history,
	}

	if db != nil {
		watches := repository.NewWatchRepository(db)
		checker := scheduler.NewWatchChecker(cfg.WatchSchedule, watches, comparator.Compare, cfg.SearchTimeout, logger.WithPrefix("watches"))
		if err := checker.Start(); err != nil {
			logger.Fatal("failed to start watch checker", "err", err)
		}
		defer checker.Stop()

		svc.Watches = watches
		svc.Checker = checker
	} else {
		logger.Info("DATABASE_URL not set, watches disabled")
	}

	h := handlers.NewHandlers(svc, logger.WithPrefix("http"))

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(logger.WithPrefix("http")))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerSecond))
	r.Use(middleware.APIKeyMiddleware(cfg.APIKeys))
	h.Register(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "store", cfg.StoreBackend, "sources", comparator.Sources())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
	}
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "pricecompare",
	})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("invalid LOG_LEVEL, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func newStore(cfg *config.Config, db *sql.DB, logger *log.Logger) repository.ResultStore {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return repository.NewPostgresStore(db, logger.WithPrefix("store"))
	case config.StoreMemory:
		return repository.NewMemoryStore()
	default:
		return repository.NewFileStore(cfg.ResultsDir, logger.WithPrefix("store"))
	}
}
