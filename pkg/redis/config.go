package redis

import "time"

// Config is read from REDIS_* variables. Redis backs the distributed
// subscription lock, so it is only loaded when LOCK_BACKEND=redis.
type Config struct {
	// ConnectionURL uses the redis:// or rediss:// scheme, e.g. "redis://:secret@localhost:6379/0".
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}
