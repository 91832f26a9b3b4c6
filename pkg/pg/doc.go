// Package pg bootstraps PostgreSQL access on pgx/v5 for the subscription stores.
//
// Connect opens a *pgxpool.Pool from Config and retries while the server comes
// up. Migrate applies embedded goose migrations, so the binary needs no SQL
// files on disk, and logs the resulting schema version. WithTx runs a callback
// inside a transaction and rolls back on error or panic. Healthcheck returns a
// readiness probe for pkg/httpserver.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations, log); err != nil {
//	    return err
//	}
//
// IsDuplicateKeyError and IsNotFoundError let stores map driver errors onto
// their own sentinels.
package pg
