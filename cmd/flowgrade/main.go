// Command flowgrade runs the options-flow grading service: it ingests trade
// prints from the configured feed, keeps market state refreshed, and serves
// the classified, graded working set over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowgrade/flowgrade/internal/config"
	"github.com/flowgrade/flowgrade/internal/engine"
	"github.com/flowgrade/flowgrade/internal/feed"
	"github.com/flowgrade/flowgrade/internal/grader"
	"github.com/flowgrade/flowgrade/internal/marketstate"
	"github.com/flowgrade/flowgrade/internal/poller"
	"github.com/flowgrade/flowgrade/internal/provider"
	"github.com/flowgrade/flowgrade/internal/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := logrus.New()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting flowgrade service")

	client := provider.NewClientWithBaseURL(cfg.Provider.APIKey, cfg.Provider.Sandbox, cfg.Provider.BaseURL).
		WithTimeout(cfg.RequestTimeout())
	breaker := provider.NewCircuitBreakerProvider(client)

	store := marketstate.NewStore()
	ps := cfg.PollerSettings()
	pol := poller.New(breaker, store, poller.Config{
		PriceBatchSize:    ps.PriceBatchSize,
		OptionBatchSize:   ps.OptionBatchSize,
		HistoryBatchSize:  ps.HistoryBatchSize,
		Stagger:           ps.Stagger,
		BatchPause:        ps.BatchPause,
		RefreshInterval:   ps.RefreshInterval,
		RequestsPerSecond: ps.RequestsPerSecond,
		Burst:             ps.Burst,
	}, logger)

	eng := engine.New(breaker, store, pol, grader.New(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	prints, err := feed.ReadFile(cfg.Feed.Path, feed.Format(cfg.Feed.Format), logger)
	if err != nil {
		logger.Fatalf("Failed to read trade feed: %v", err)
	}
	eng.Ingest(ctx, prints)

	// Periodic refresh of the tracked universe; the first cycle runs
	// immediately inside Start.
	pol.Start(ctx)

	srv := server.NewServer(server.Config{
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, eng, breaker, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.WithError(err).Error("API server failed")
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping service")
	}

	cancel()
	pol.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API server shutdown failed")
	}

	logger.Info("Service stopped")
}
