package subscription

import (
	"log/slog"
	"time"
)

// EngineOption configures an Engine instance.
type EngineOption func(*Engine)

// WithLocker replaces the in-process keyed mutex, e.g. with a Redis lock
// when several instances receive webhooks for the same subscription.
func WithLocker(l Locker) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithLogger sets the engine logger. Nil loggers are ignored.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithProviderTimeout bounds every provider call. On expiry the event fails as retryable.
// Panics on non-positive durations to surface misconfiguration at startup.
func WithProviderTimeout(d time.Duration) EngineOption {
	if d <= 0 {
		panic("subscription: provider timeout must be > 0")
	}
	return func(e *Engine) { e.providerTimeout = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNotifier registers a notifier that is called after a record is created.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithMetrics registers a recorder for engine outcomes.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}
