// Package pgstore persists subscriptions, users and plans in PostgreSQL through pgx.
//
// Store.Create runs the insert and the cancellation of superseded records in a single
// transaction; the unique index on external_subscription_id backs the one-record-per-
// provider-subscription guarantee. The schema ships as embedded goose migrations:
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
//	    return err
//	}
//	store := pgstore.NewStore(pool)
//	users := pgstore.NewUsers(pool)
//	plans := subscription.NewCachedResolver(pgstore.NewPlans(pool), 64)
package pgstore
