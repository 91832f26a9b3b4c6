package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store persists subscription records.
// Implementations must enforce uniqueness of ExternalSubscriptionID as the last line of
// defense for the one-record-per-provider-subscription guarantee.
type Store interface {
	// GetByExternalID returns ErrSubscriptionNotFound if no record exists.
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)

	// ListActiveByUser returns every ACTIVE record for the user, most recently updated first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)

	// ListByUser returns the full history for the user, most recently updated first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)

	// Create inserts sub and moves every superseded record that is still ACTIVE to
	// CANCELED with the superseded record's UpdatedAt, in one atomic step: either all
	// writes land or none do. Records that already left ACTIVE are not touched.
	// Returns ErrDuplicateExternalID when a record with the same external id exists.
	Create(ctx context.Context, sub *Subscription, superseded []*Subscription) error

	// Update overwrites status, period and UpdatedAt of an existing record.
	// Returns ErrSubscriptionNotFound if the record is gone.
	Update(ctx context.Context, sub *Subscription) error
}

// UserDirectory resolves local users by the email the provider knows them by.
type UserDirectory interface {
	// FindByEmail returns ErrUserNotFound if no user owns the email.
	FindByEmail(ctx context.Context, email string) (User, error)
}
