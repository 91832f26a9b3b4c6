package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subsync/pkg/pg"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Users implements subscription.UserDirectory over the users table.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates a Users directory. Panics if pool is nil.
func NewUsers(pool *pgxpool.Pool) *Users {
	if pool == nil {
		panic("pgstore: pool is required")
	}
	return &Users{pool: pool}
}

// FindByEmail matches emails case-insensitively, backed by the lower(email) index.
func (u *Users) FindByEmail(ctx context.Context, email string) (subscription.User, error) {
	var user subscription.User
	err := u.pool.QueryRow(ctx,
		`SELECT id, email FROM users WHERE lower(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&user.ID, &user.Email)
	if pg.IsNotFoundError(err) {
		return subscription.User{}, subscription.ErrUserNotFound
	}
	if err != nil {
		return subscription.User{}, fmt.Errorf("pgstore: find user: %w", err)
	}
	return user, nil
}
