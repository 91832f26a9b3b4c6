package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrReleaseFailed is reported to the error handler when a lock could not be released.
var ErrReleaseFailed = errors.New("redislock: failed to release lock")

// releaseScript deletes the key only if it still holds our token, so an expired
// lock that another instance re-acquired is never removed by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements subscription.Locker with SET NX PX, valid across instances
// sharing one Redis.
type Locker struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	backoff time.Duration
	onError func(key string, err error)
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL sets how long a lock survives a crashed holder. It must exceed the
// slowest expected reconciliation, provider timeout included.
func WithTTL(ttl time.Duration) Option {
	if ttl <= 0 {
		panic("redislock: ttl must be > 0")
	}
	return func(l *Locker) { l.ttl = ttl }
}

// WithBackoff sets the pause between acquisition attempts.
func WithBackoff(d time.Duration) Option {
	if d <= 0 {
		panic("redislock: backoff must be > 0")
	}
	return func(l *Locker) { l.backoff = d }
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithErrorHandler receives release failures, which cannot be returned to the caller.
func WithErrorHandler(fn func(key string, err error)) Option {
	return func(l *Locker) {
		if fn != nil {
			l.onError = fn
		}
	}
}

// New creates a Locker. Panics if client is nil.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	if client == nil {
		panic("redislock: redis client is required")
	}
	l := &Locker{
		client:  client,
		prefix:  "subsync:lock:",
		ttl:     30 * time.Second,
		backoff: 50 * time.Millisecond,
		onError: func(string, error) {},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(ctx, key, redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
}

func (l *Locker) releaser(ctx context.Context, key, redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		// Release even if the caller's context is already canceled.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.onError(key, errors.Join(ErrReleaseFailed, err))
		}
	}
}
