// Package mongo connects to MongoDB with environment-driven settings and startup retries.
//
//	client, err := mongo.New(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(context.Background())
//
//	store, err := mongostore.New(ctx, client.Database(cfg.Database))
//
// Healthcheck returns a probe for readiness endpoints. IsDuplicateKeyError and
// IsNotFoundError classify driver errors so stores can map them onto their own sentinels.
package mongo
