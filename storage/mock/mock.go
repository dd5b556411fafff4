// Package mock provides configurable storage implementations for tests.
// Each operation can be forced to fail, which is how handler tests exercise
// the unknown-error paths.
package mock

import (
	"context"

	"github.com/semu/auth-server/storage"
)

// Store wraps an inner ClientStore and GrantStore and lets tests force
// individual operations to fail.
type Store struct {
	Clients storage.ClientStore
	Grants  storage.GrantStore

	GetClientErr    error
	CreateGrantErr  error
	GetGrantErr     error
	DeleteGrantErr  error
	ConsumeGrantErr error
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New wraps the given stores. Both may point at the same value.
func New(clients storage.ClientStore, grants storage.GrantStore) *Store {
	return &Store{Clients: clients, Grants: grants}
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if s.GetClientErr != nil {
		return nil, s.GetClientErr
	}
	return s.Clients.GetClient(ctx, clientID)
}

func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (*storage.Grant, error) {
	if s.CreateGrantErr != nil {
		return nil, s.CreateGrantErr
	}
	return s.Grants.CreateGrant(ctx, grant)
}

func (s *Store) GetGrant(ctx context.Context, id string) (*storage.Grant, error) {
	if s.GetGrantErr != nil {
		return nil, s.GetGrantErr
	}
	return s.Grants.GetGrant(ctx, id)
}

func (s *Store) DeleteGrant(ctx context.Context, id string) error {
	if s.DeleteGrantErr != nil {
		return s.DeleteGrantErr
	}
	return s.Grants.DeleteGrant(ctx, id)
}

func (s *Store) ConsumeGrant(ctx context.Context, id, clientID, secret string) (*storage.Grant, error) {
	if s.ConsumeGrantErr != nil {
		return nil, s.ConsumeGrantErr
	}
	return s.Grants.ConsumeGrant(ctx, id, clientID, secret)
}
