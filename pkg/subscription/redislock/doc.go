// Package redislock provides a subscription.Locker backed by Redis, for deployments
// where several instances receive webhooks for the same subscription.
//
//	engine := subscription.NewEngine(store, users, plans, provider,
//	    subscription.WithLocker(redislock.New(client, redislock.WithTTL(time.Minute))),
//	)
//
// Locks expire after the TTL so a crashed holder cannot block a key forever.
// Releasing checks ownership with a token, so a holder whose lock already expired
// does not delete a lock that another instance has acquired since.
package redislock
