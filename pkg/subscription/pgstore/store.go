package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

const subscriptionColumns = `id, user_id, plan_id, external_subscription_id, status,
	current_period_start, current_period_end, created_at, updated_at`

// Store implements subscription.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store. Panics if pool is nil.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Store{pool: pool}
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE external_subscription_id = $1`,
		externalID)

	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get subscription %s: %w", externalID, err)
	}
	return sub, nil
}

func (s *Store) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*subscription.Subscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions
		WHERE user_id = $1 AND status = $2
		ORDER BY updated_at DESC, external_subscription_id`,
		userID, string(subscription.StatusActive))
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]*subscription.Subscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionColumns+` FROM user_subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC, external_subscription_id`,
		userID)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list subscriptions: %w", err)
	}
	defer rows.Close()

	result := make([]*subscription.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan subscription: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: list subscriptions: %w", err)
	}
	return result, nil
}

// Create inserts sub and cancels the superseded records in one transaction.
// The unique index on external_subscription_id turns a concurrent insert into
// subscription.ErrDuplicateExternalID.
func (s *Store) Create(ctx context.Context, sub *subscription.Subscription, superseded []*subscription.Subscription) error {
	err := pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, old := range superseded {
			if _, err := tx.Exec(ctx,
				`UPDATE user_subscriptions
				SET status = $1, updated_at = GREATEST(updated_at, $2)
				WHERE id = $3 AND status = $4`,
				string(subscription.StatusCanceled), old.UpdatedAt, old.ID, string(subscription.StatusActive),
			); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO user_subscriptions (`+subscriptionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			sub.ID, sub.UserID, sub.PlanID, sub.ExternalSubscriptionID, string(sub.Status),
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
		)
		return err
	})
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(subscription.ErrDuplicateExternalID, err)
	}
	if err != nil {
		return fmt.Errorf("pgstore: create subscription %s: %w", sub.ExternalSubscriptionID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, sub *subscription.Subscription) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3, updated_at = $4
		WHERE id = $5`,
		string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("pgstore: update subscription %s: %w", sub.ExternalSubscriptionID, err)
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub         subscription.Subscription
		status      string
		periodStart *time.Time
		periodEnd   *time.Time
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.ExternalSubscriptionID, &status,
		&periodStart, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(status)
	sub.CurrentPeriodStart = utcPtr(periodStart)
	sub.CurrentPeriodEnd = utcPtr(periodEnd)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
