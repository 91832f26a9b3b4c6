package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultProbeTimeout bounds a Healthcheck probe whose context has no deadline.
const DefaultProbeTimeout = 2 * time.Second

// Healthcheck returns a readiness probe that pings the pool. A failure reports
// how many pool connections were checked out, which tells an exhausted pool
// apart from an unreachable server.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
			defer cancel()
		}
		if err := pool.Ping(ctx); err != nil {
			stat := pool.Stat()
			return errors.Join(ErrHealthcheckFailed,
				fmt.Errorf("%d of %d connections acquired: %w", stat.AcquiredConns(), stat.MaxConns(), err))
		}
		return nil
	}
}
