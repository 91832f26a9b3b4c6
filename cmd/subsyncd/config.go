package main

import (
	"errors"
	"fmt"
	"time"
)

const (
	storePostgres = "postgres"
	storeMongo    = "mongo"
	storeMemory   = "memory"

	providerStripe = "stripe"
	providerPaddle = "paddle"

	lockMemory = "memory"
	lockRedis  = "redis"
)

var (
	errUnknownStoreDriver = errors.New("unknown store driver")
	errUnknownProvider    = errors.New("unknown billing provider")
	errUnknownLockBackend = errors.New("unknown lock backend")
	errPlansFileRequired  = errors.New("plans file is required for this store driver")
)

// appConfig holds service-level settings. Component settings live next to
// their packages (pg.Config, redis.Config and so on).
type appConfig struct {
	Env              string        `env:"APP_ENV" envDefault:"development"`
	Name             string        `env:"APP_NAME" envDefault:"subsync"`
	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"postgres"`
	PlansFile        string        `env:"PLANS_FILE"`
	SeedUsers        []string      `env:"SEED_USERS" envSeparator:","`
	Provider         string        `env:"PROVIDER" envDefault:"stripe"`
	ProviderTimeout  time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	LockBackend      string        `env:"LOCK_BACKEND" envDefault:"memory"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	PlanCacheSize    int           `env:"PLAN_CACHE_SIZE" envDefault:"128"`
	PlanCacheTTL     time.Duration `env:"PLAN_CACHE_TTL" envDefault:"5m"`
	ReadinessTimeout time.Duration `env:"READINESS_TIMEOUT" envDefault:"2s"`
	Notifications    bool          `env:"NOTIFICATIONS_ENABLED" envDefault:"true"`
}

func (c appConfig) validate() error {
	switch c.StoreDriver {
	case storePostgres:
	case storeMongo, storeMemory:
		// Only the postgres driver persists the plan catalog.
		if c.PlansFile == "" {
			return fmt.Errorf("%w: %s", errPlansFileRequired, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStoreDriver, c.StoreDriver)
	}

	switch c.Provider {
	case providerStripe, providerPaddle:
	default:
		return fmt.Errorf("%w: %q", errUnknownProvider, c.Provider)
	}

	switch c.LockBackend {
	case lockMemory, lockRedis:
	default:
		return fmt.Errorf("%w: %q", errUnknownLockBackend, c.LockBackend)
	}

	return nil
}

// signatureHeader is the request header each provider signs deliveries with.
func signatureHeader(provider string) string {
	if provider == providerPaddle {
		return "Paddle-Signature"
	}
	return "Stripe-Signature"
}
