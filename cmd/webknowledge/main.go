// Package main wires together the webknowledge ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sdavenport/webknowledge/internal/api"
	"github.com/sdavenport/webknowledge/internal/clock/system"
	"github.com/sdavenport/webknowledge/internal/config"
	"github.com/sdavenport/webknowledge/internal/crawler"
	"github.com/sdavenport/webknowledge/internal/id/uuid"
	"github.com/sdavenport/webknowledge/internal/index/memoryengine"
	"github.com/sdavenport/webknowledge/internal/ingest"
	"github.com/sdavenport/webknowledge/internal/links"
	"github.com/sdavenport/webknowledge/internal/logging"
	"github.com/sdavenport/webknowledge/internal/orchestrator"
	"github.com/sdavenport/webknowledge/internal/progress"
	"github.com/sdavenport/webknowledge/internal/progress/sinks"
	"github.com/sdavenport/webknowledge/internal/retry"
	"github.com/sdavenport/webknowledge/internal/scheduler"
	memoryStorage "github.com/sdavenport/webknowledge/internal/storage/memory"
	"github.com/sdavenport/webknowledge/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var store ingest.StatusStore
	switch cfg.DB.Provider {
	case config.ProviderPostgres:
		pgStore, pool, err := postgres.NewStatusStore(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pool.Close()
		store = pgStore
	default:
		store = memoryStorage.NewStatusStore()
	}

	transport := retry.New(nil, logger.Named("retry"))
	transport.MaxAttempts = cfg.HTTP.MaxRetries

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")),
		promSink,
	)

	fetcher := crawler.NewHTTPFetcher(crawler.FetcherConfig{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, transport, logger.Named("fetcher"))
	crawl := crawler.New(fetcher, links.New(), logger.Named("crawler"))

	engine := memoryengine.New(memoryengine.Config{
		BaseURL: cfg.Index.BaseURL,
		APIKey:  cfg.Index.APIKey,
		Timeout: cfg.HTTPTimeout(),
	}, transport, logger.Named("index"))

	sched := scheduler.New(store, crawl, idGen, clock, hub, scheduler.Config{
		TickInterval: cfg.CrawlInterval(),
		MaxDepth:     cfg.Crawler.MaxDepth,
	}, logger.Named("scheduler"))

	orch := orchestrator.New(store, engine, clock, hub, orchestrator.Config{
		TickInterval:    cfg.SweepInterval(),
		RecrawlInterval: cfg.RecrawlAge(),
		PollInterval:    cfg.PollInterval(),
		PollTimeout:     cfg.PollTimeout(),
	}, logger.Named("orchestrator"))

	metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	apiServer := api.NewServer(sched, store, engine, metrics, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("scheduler started")
		sched.Run(ctx)
	}()

	go func() {
		logger.Info("orchestrator started")
		orch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("event hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
