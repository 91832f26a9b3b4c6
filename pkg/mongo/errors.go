package mongo

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed      = errors.New("mongo healthcheck failed")
)

// IsDuplicateKeyError reports unique index violations (E11000).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsDuplicateKeyError(err)
}

// IsNotFoundError reports a FindOne that matched no document.
func IsNotFoundError(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
