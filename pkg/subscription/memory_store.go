package subscription

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*Subscription
	byExternal map[string]uuid.UUID
}

// NewMemoryStore returns a Store kept in process memory.
// It enforces external id uniqueness like a database unique index would
// and stores deep copies so callers can't mutate its state.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:       make(map[uuid.UUID]*Subscription),
		byExternal: make(map[string]uuid.UUID),
	}
}

func (s *memoryStore) GetByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *memoryStore) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]*Subscription, error) {
	return s.list(userID, func(sub *Subscription) bool { return sub.IsActive() }), nil
}

func (s *memoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*Subscription, error) {
	return s.list(userID, func(*Subscription) bool { return true }), nil
}

func (s *memoryStore) list(userID uuid.UUID, keep func(*Subscription) bool) []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Subscription, 0)
	for _, sub := range s.byID {
		if sub.UserID == userID && keep(sub) {
			result = append(result, sub.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *Subscription) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ExternalSubscriptionID, b.ExternalSubscriptionID)
	})
	return result
}

func (s *memoryStore) Create(_ context.Context, sub *Subscription, superseded []*Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before the first write so the call stays all-or-nothing.
	if _, exists := s.byExternal[sub.ExternalSubscriptionID]; exists {
		return ErrDuplicateExternalID
	}
	for _, old := range superseded {
		if _, ok := s.byID[old.ID]; !ok {
			return ErrSubscriptionNotFound
		}
	}

	for _, old := range superseded {
		cur := s.byID[old.ID]
		if !cur.IsActive() {
			continue
		}
		cur.Status = StatusCanceled
		if old.UpdatedAt.After(cur.UpdatedAt) {
			cur.UpdatedAt = old.UpdatedAt
		}
	}
	s.byID[sub.ID] = sub.Clone()
	s.byExternal[sub.ExternalSubscriptionID] = sub.ID
	return nil
}

func (s *memoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	s.byID[sub.ID] = sub.Clone()
	return nil
}

type memoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]User
}

// NewMemoryUsers returns a UserDirectory over the given users.
// Emails are matched case-insensitively.
func NewMemoryUsers(users ...User) UserDirectory {
	d := &memoryUsers{byEmail: make(map[string]User, len(users))}
	for _, u := range users {
		d.byEmail[strings.ToLower(u.Email)] = u
	}
	return d
}

func (d *memoryUsers) FindByEmail(_ context.Context, email string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
