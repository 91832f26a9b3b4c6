package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/subsync/pkg/config"
	"github.com/dmitrymomot/subsync/pkg/email"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/metrics"
	"github.com/dmitrymomot/subsync/pkg/mongo"
	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/redis"
	"github.com/dmitrymomot/subsync/pkg/subscription"
	"github.com/dmitrymomot/subsync/pkg/subscription/mongostore"
	"github.com/dmitrymomot/subsync/pkg/subscription/pgstore"
	"github.com/dmitrymomot/subsync/pkg/subscription/redislock"
)

// services is the fully wired application. close releases every client
// in reverse order of creation, once.
type services struct {
	engine      *subscription.Engine
	dispatchers map[string]*subscription.Dispatcher
	metrics     *metrics.Collector
	registry    *prometheus.Registry
	checks      []httpserver.Check
	closers     []func()
	closeOnce   sync.Once
}

func (s *services) onClose(fn func()) {
	s.closers = append(s.closers, fn)
}

func (s *services) close() {
	s.closeOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	})
}

type storage struct {
	store subscription.Store
	users subscription.UserDirectory
	plans subscription.PlanCatalog
}

func buildServices(ctx context.Context, cfg appConfig, log *slog.Logger) (_ *services, err error) {
	s := &services{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewCollector(s.registry)

	st, err := openStorage(ctx, cfg, s, log)
	if err != nil {
		return nil, err
	}

	provider, parser, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	opts := []subscription.EngineOption{
		subscription.WithLogger(log.With(logger.Component("engine"))),
		subscription.WithProviderTimeout(cfg.ProviderTimeout),
		subscription.WithMetrics(s.metrics),
	}

	if cfg.LockBackend == lockRedis {
		locker, err := openRedisLocker(ctx, cfg, s, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, subscription.WithLocker(locker))
	}

	if cfg.Notifications {
		notifier, err := newNotifier(cfg, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, subscription.WithNotifier(notifier))
	}

	s.engine = subscription.NewEngine(st.store, st.users, st.plans, provider, opts...)
	s.dispatchers = map[string]*subscription.Dispatcher{
		cfg.Provider: subscription.NewDispatcher(parser, s.engine,
			log.With(logger.Component("webhooks"), logger.Provider(cfg.Provider))),
	}

	return s, nil
}

func openStorage(ctx context.Context, cfg appConfig, s *services, log *slog.Logger) (storage, error) {
	switch cfg.StoreDriver {
	case storePostgres:
		return openPostgres(ctx, cfg, s, log)
	case storeMongo:
		return openMongo(ctx, cfg, s, log)
	default:
		return openMemory(cfg, log)
	}
}

func openPostgres(ctx context.Context, cfg appConfig, s *services, log *slog.Logger) (storage, error) {
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return storage{}, err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return storage{}, err
	}
	s.onClose(pool.Close)
	s.checks = append(s.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})

	if err := pg.Migrate(ctx, pool, pgCfg, pgstore.Migrations, log); err != nil {
		return storage{}, err
	}

	plans := pgstore.NewPlans(pool)
	if cfg.PlansFile != "" {
		seed, err := readPlansFile(cfg.PlansFile)
		if err != nil {
			return storage{}, err
		}
		if err := plans.Upsert(ctx, seed...); err != nil {
			return storage{}, err
		}
		log.InfoContext(ctx, "plan catalog seeded", slog.Int("plans", len(seed)))
	}

	return storage{
		store: pgstore.NewStore(pool),
		users: pgstore.NewUsers(pool),
		plans: subscription.NewCachedResolver(plans, cfg.PlanCacheSize, cfg.PlanCacheTTL),
	}, nil
}

func openMongo(ctx context.Context, cfg appConfig, s *services, log *slog.Logger) (storage, error) {
	var mongoCfg mongo.Config
	if err := config.Load(&mongoCfg); err != nil {
		return storage{}, err
	}

	client, err := mongo.New(ctx, mongoCfg)
	if err != nil {
		return storage{}, err
	}
	s.onClose(func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error("failed to disconnect from mongodb", logger.Error(err))
		}
	})
	s.checks = append(s.checks, httpserver.Check{Name: "mongodb", Probe: mongo.Healthcheck(client)})

	db := client.Database(mongoCfg.Database)
	store, err := mongostore.New(ctx, db)
	if err != nil {
		return storage{}, err
	}
	users, err := mongostore.NewUsers(ctx, db)
	if err != nil {
		return storage{}, err
	}
	catalog, err := openCatalogFile(cfg.PlansFile)
	if err != nil {
		return storage{}, err
	}

	return storage{store: store, users: users, plans: catalog}, nil
}

// openMemory keeps everything in process. Records are lost on restart.
func openMemory(cfg appConfig, log *slog.Logger) (storage, error) {
	catalog, err := openCatalogFile(cfg.PlansFile)
	if err != nil {
		return storage{}, err
	}

	users := make([]subscription.User, 0, len(cfg.SeedUsers))
	for _, addr := range cfg.SeedUsers {
		if addr = strings.TrimSpace(addr); addr != "" {
			users = append(users, subscription.User{ID: uuid.New(), Email: addr})
		}
	}
	log.Warn("using in-memory store", slog.Int("seed_users", len(users)))

	return storage{
		store: subscription.NewMemoryStore(),
		users: subscription.NewMemoryUsers(users...),
		plans: catalog,
	}, nil
}

func openRedisLocker(ctx context.Context, cfg appConfig, s *services, log *slog.Logger) (*redislock.Locker, error) {
	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, err
	}

	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, err
	}
	s.onClose(func() {
		if err := client.Close(); err != nil {
			log.Error("failed to close redis client", logger.Error(err))
		}
	})
	s.checks = append(s.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client)})

	return redislock.New(client,
		redislock.WithTTL(cfg.LockTTL),
		redislock.WithErrorHandler(func(key string, err error) {
			log.Warn("subscription lock release failed",
				logger.ExternalSubscriptionID(key),
				logger.Error(err),
			)
		}),
	), nil
}

// providerClient is what both billing providers implement.
type providerClient interface {
	subscription.Provider
	subscription.WebhookParser
}

func newProvider(name string) (subscription.Provider, subscription.WebhookParser, error) {
	var (
		client providerClient
		err    error
	)
	switch name {
	case providerPaddle:
		var paddleCfg subscription.PaddleConfig
		if err = config.Load(&paddleCfg); err != nil {
			return nil, nil, err
		}
		client, err = subscription.NewPaddleProvider(paddleCfg)
	default:
		var stripeCfg subscription.StripeConfig
		if err = config.Load(&stripeCfg); err != nil {
			return nil, nil, err
		}
		client, err = subscription.NewStripeProvider(stripeCfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s provider: %w", name, err)
	}
	return client, client, nil
}

func newNotifier(cfg appConfig, log *slog.Logger) (subscription.Notifier, error) {
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, err
	}
	sender, err := email.NewSender(emailCfg)
	if err != nil {
		return nil, err
	}
	if !emailCfg.UsesPostmark() {
		log.Info("postmark not configured, writing emails to disk", slog.String("dir", emailCfg.DevOutputDir))
	}
	return subscription.NewEmailNotifier(sender, cfg.Name, log.With(logger.Component("notifier"))), nil
}

func readPlansFile(path string) ([]subscription.Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plans file: %w", err)
	}
	defer f.Close()
	return subscription.LoadPlansYAML(f)
}

func openCatalogFile(path string) (subscription.PlanCatalog, error) {
	plans, err := readPlansFile(path)
	if err != nil {
		return nil, err
	}
	return subscription.NewInMemCatalog(plans...), nil
}
