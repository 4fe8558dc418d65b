package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"despesas/internal/backend"
	"despesas/internal/cache"
	"despesas/internal/catalog"
	"despesas/internal/cli"
	"despesas/internal/config"
	"despesas/internal/feed"
	apphttp "despesas/internal/http"
	"despesas/internal/log"
	"despesas/internal/metrics"
	"despesas/internal/services"
)

const cacheSweepInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	hub := feed.NewHub(be.Repository, logger, feed.WithRecorder(m))

	opts := []services.Option{services.WithNotifier(hub), services.WithRecorder(m)}
	if be.Publisher != nil {
		opts = append(opts, services.WithPublisher(be.Publisher))
	}
	// Close releases the repository and the publisher together.
	svc := services.NewExpenseService(be.Repository, logger, opts...)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Closing expense service", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		APIToken:           cfg.APIToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		DashboardCacheSize: cfg.DashboardCacheSize,
		Location:           loc,
	}, apphttp.Deps{
		Expenses: svc,
		Feed:     hub,
		Catalog:  cat,
		Metrics:  m,
		Logger:   logger,
		Ready:    be.Ready,
	})

	caches := cache.NewManager(logger)
	caches.Register(srv.DashboardCache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return caches.Run(gctx, cacheSweepInterval) })
	g.Go(func() error {
		logger.Info("Starting despesas server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
