// Package redis connects to Redis with environment-driven settings and startup retries.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	locker := redislock.New(client, redislock.WithTTL(30*time.Second))
//
// Healthcheck returns a probe for readiness endpoints. Connection failures are
// joined with ErrRedisNotReady or ErrFailedToParseRedisConnString so callers can
// branch with errors.Is.
package redis
