// Command subsyncd keeps local subscription records in sync with the billing
// provider. It receives provider webhooks, completes checkouts and answers
// subscription queries over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/requestid"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("subsyncd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	svc, err := buildServices(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer svc.close()

	router := newRouter(routerDeps{
		engine:           svc.engine,
		dispatchers:      svc.dispatchers,
		metrics:          svc.metrics,
		gatherer:         svc.registry,
		checks:           svc.checks,
		readinessTimeout: cfg.ReadinessTimeout,
		log:              log,
	})

	server := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log.With(logger.Component("http"))),
		httpserver.WithStopHook(svc.close),
	)

	log.InfoContext(ctx, "starting subsyncd",
		slog.String("store", cfg.StoreDriver),
		logger.Provider(cfg.Provider),
		slog.String("lock", cfg.LockBackend),
	)
	return server.Run(ctx, router)
}
