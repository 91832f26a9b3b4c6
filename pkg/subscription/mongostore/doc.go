// Package mongostore persists subscriptions and looks up users in MongoDB.
//
// A unique index on external_subscription_id backs the one-record-per-provider-subscription
// guarantee. Store.Create inserts the new record and cancels superseded ones inside a
// multi-document transaction, which requires a replica set deployment.
package mongostore
