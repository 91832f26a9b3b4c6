package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	mongox "github.com/dmitrymomot/subsync/pkg/mongo"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// SubscriptionsCollection is the collection holding subscription records.
const SubscriptionsCollection = "user_subscriptions"

type subscriptionDoc struct {
	ID                     string     `bson:"_id"`
	UserID                 string     `bson:"user_id"`
	PlanID                 int64      `bson:"plan_id"`
	ExternalSubscriptionID string     `bson:"external_subscription_id"`
	Status                 string     `bson:"status"`
	CurrentPeriodStart     *time.Time `bson:"current_period_start"`
	CurrentPeriodEnd       *time.Time `bson:"current_period_end"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func toDoc(sub *subscription.Subscription) subscriptionDoc {
	return subscriptionDoc{
		ID:                     sub.ID.String(),
		UserID:                 sub.UserID.String(),
		PlanID:                 sub.PlanID,
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		Status:                 string(sub.Status),
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
	}
}

func (d subscriptionDoc) toSubscription() (*subscription.Subscription, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: invalid subscription id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("mongostore: invalid user id %q: %w", d.UserID, err)
	}
	return &subscription.Subscription{
		ID:                     id,
		UserID:                 userID,
		PlanID:                 d.PlanID,
		ExternalSubscriptionID: d.ExternalSubscriptionID,
		Status:                 subscription.Status(d.Status),
		CurrentPeriodStart:     utcPtr(d.CurrentPeriodStart),
		CurrentPeriodEnd:       utcPtr(d.CurrentPeriodEnd),
		CreatedAt:              d.CreatedAt.UTC(),
		UpdatedAt:              d.UpdatedAt.UTC(),
	}, nil
}

// Store implements subscription.Store on MongoDB. Create uses a multi-document
// transaction, so the deployment must be a replica set.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New creates the store and ensures its indexes exist.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	if db == nil {
		panic("mongostore: database is required")
	}
	coll := db.Collection(SubscriptionsCollection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_subscription_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mongostore: create indexes: %w", err)
	}

	return &Store{client: db.Client(), coll: coll}, nil
}

func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*subscription.Subscription, error) {
	var doc subscriptionDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "external_subscription_id", Value: externalID}}).Decode(&doc)
	if mongox.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get subscription %s: %w", externalID, err)
	}
	return doc.toSubscription()
}

func (s *Store) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*subscription.Subscription, error) {
	return s.list(ctx, bson.D{
		{Key: "user_id", Value: userID.String()},
		{Key: "status", Value: string(subscription.StatusActive)},
	})
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]*subscription.Subscription, error) {
	return s.list(ctx, bson.D{{Key: "user_id", Value: userID.String()}})
}

func (s *Store) list(ctx context.Context, filter bson.D) ([]*subscription.Subscription, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{
		{Key: "updated_at", Value: -1},
		{Key: "external_subscription_id", Value: 1},
	}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list subscriptions: %w", err)
	}

	var docs []subscriptionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(docs))
	for _, doc := range docs {
		sub, err := doc.toSubscription()
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

// Create inserts sub and cancels the superseded records inside one transaction.
func (s *Store) Create(ctx context.Context, sub *subscription.Subscription, superseded []*subscription.Subscription) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongostore: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, err := s.coll.InsertOne(ctx, toDoc(sub)); err != nil {
			return nil, err
		}
		for _, old := range superseded {
			if _, err := s.coll.UpdateOne(ctx,
				bson.D{
					{Key: "_id", Value: old.ID.String()},
					{Key: "status", Value: string(subscription.StatusActive)},
				},
				bson.D{
					{Key: "$set", Value: bson.D{{Key: "status", Value: string(subscription.StatusCanceled)}}},
					{Key: "$max", Value: bson.D{{Key: "updated_at", Value: old.UpdatedAt}}},
				},
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if mongox.IsDuplicateKeyError(err) {
		return errors.Join(subscription.ErrDuplicateExternalID, err)
	}
	if err != nil {
		return fmt.Errorf("mongostore: create subscription %s: %w", sub.ExternalSubscriptionID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: sub.ID.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(sub.Status)},
			{Key: "current_period_start", Value: sub.CurrentPeriodStart},
			{Key: "current_period_end", Value: sub.CurrentPeriodEnd},
			{Key: "updated_at", Value: sub.UpdatedAt},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongostore: update subscription %s: %w", sub.ExternalSubscriptionID, err)
	}
	if res.MatchedCount == 0 {
		return subscription.ErrSubscriptionNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
