package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultProbeTimeout bounds a Healthcheck probe whose context has no deadline.
const DefaultProbeTimeout = 2 * time.Second

// Healthcheck returns a readiness probe that pings the primary. Subscription
// writes run in transactions, so a replica set without a reachable primary
// is reported as not ready.
func Healthcheck(client *mongo.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultProbeTimeout)
			defer cancel()
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
