package mongostore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	mongox "github.com/dmitrymomot/subsync/pkg/mongo"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// UsersCollection is the collection the user directory reads from.
const UsersCollection = "users"

type userDoc struct {
	ID         string `bson:"_id"`
	Email      string `bson:"email"`
	EmailLower string `bson:"email_lower"`
}

// Users implements subscription.UserDirectory on MongoDB.
type Users struct {
	coll *mongo.Collection
}

// NewUsers creates the directory and ensures the email index exists.
func NewUsers(ctx context.Context, db *mongo.Database) (*Users, error) {
	if db == nil {
		panic("mongostore: database is required")
	}
	coll := db.Collection(UsersCollection)

	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email_lower", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("mongostore: create user index: %w", err)
	}
	return &Users{coll: coll}, nil
}

func (u *Users) FindByEmail(ctx context.Context, email string) (subscription.User, error) {
	var doc userDoc
	err := u.coll.FindOne(ctx, bson.D{
		{Key: "email_lower", Value: strings.ToLower(strings.TrimSpace(email))},
	}).Decode(&doc)
	if mongox.IsNotFoundError(err) {
		return subscription.User{}, subscription.ErrUserNotFound
	}
	if err != nil {
		return subscription.User{}, fmt.Errorf("mongostore: find user: %w", err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return subscription.User{}, fmt.Errorf("mongostore: invalid user id %q: %w", doc.ID, err)
	}
	return subscription.User{ID: id, Email: doc.Email}, nil
}
