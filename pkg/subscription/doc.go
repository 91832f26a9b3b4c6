// Package subscription keeps a local record of paid subscriptions in sync with an external
// billing provider (Stripe or Paddle).
//
// Two inputs feed the same reconciliation logic: asynchronous provider webhooks and a
// synchronous checkout completion call made right after a purchase. Either may arrive
// first, and webhooks may be redelivered or reordered. The Engine absorbs this so that:
//
//   - each provider subscription maps to exactly one local record,
//   - a user ends up with at most one ACTIVE record,
//   - the plan is fixed when the record is created,
//   - UpdatedAt never moves backwards.
//
// # Architecture
//
//   - Engine: Apply (webhook events) and CompleteCheckout (post-purchase call), plus
//     read-side queries and user-initiated cancellation
//   - Dispatcher: verifies a delivery through a WebhookParser and routes the Envelope
//   - Provider: fetches subscriptions and customer emails from the billing provider
//   - Store: persists records; Create is atomic with the cancellation of superseded records
//   - UserDirectory / PlanResolver: read-only lookups of users by email and plans by price
//   - Locker: serializes writes per external subscription id
//
// StripeProvider and PaddleProvider implement both Provider and WebhookParser.
// NewMemoryStore, NewMemoryUsers and NewInMemCatalog back tests and single-node setups;
// the pgstore and mongostore subpackages provide durable stores.
//
// # Usage
//
//	engine := subscription.NewEngine(store, users, catalog, provider,
//	    subscription.WithLogger(log),
//	    subscription.WithProviderTimeout(10*time.Second),
//	)
//	dispatcher := subscription.NewDispatcher(provider, engine, log)
//
//	if err := dispatcher.HandleWebhook(ctx, payload, signature); err != nil {
//	    if subscription.IsRetryable(err) {
//	        // respond 5xx so the provider redelivers
//	    }
//	}
//
// # Error Handling
//
// Failures that may succeed on redelivery (user not yet created, provider timeout,
// storage errors) are wrapped so IsRetryable reports true. Everything else, such as
// an unknown plan, is permanent and should be acknowledged.
//
// The checkout path treats an unknown user as permanent and rejects purchases
// for users who already hold an ACTIVE subscription with ErrAlreadyActive.
package subscription
