package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/semu/auth-server/storage"
)

// grantJSON is the wire format for grants stored in Valkey.
// IssuedAt is stored as Unix seconds so the Lua consume script can do the
// lifetime arithmetic server-side.
type grantJSON struct {
	ID       string `json:"id"`
	Secret   string `json:"secret"`
	ClientID string `json:"client_id"`
	UserID   string `json:"user_id"`
	IssuedAt int64  `json:"issued_at"`
}

func toGrantJSON(g *storage.Grant) *grantJSON {
	return &grantJSON{
		ID:       g.ID,
		Secret:   g.Secret,
		ClientID: g.ClientID,
		UserID:   g.UserID,
		IssuedAt: g.IssuedAt.Unix(),
	}
}

func fromGrantJSON(j *grantJSON) *storage.Grant {
	return &storage.Grant{
		ID:       j.ID,
		Secret:   j.Secret,
		ClientID: j.ClientID,
		UserID:   j.UserID,
		IssuedAt: time.Unix(j.IssuedAt, 0),
	}
}

// ============================================================
// GrantStore Implementation
// ============================================================

// CreateGrant stores a new authorization grant. The store assigns the grant
// ID. IssuedAt is set to the current time unless the caller already set it.
// The key carries a server-side TTL so stale grants are evicted even if
// never redeemed.
func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (*storage.Grant, error) {
	if grant == nil {
		return nil, fmt.Errorf("grant cannot be nil")
	}
	if grant.ClientID == "" {
		return nil, fmt.Errorf("grant client ID cannot be empty")
	}
	if grant.Secret == "" {
		return nil, fmt.Errorf("grant secret cannot be empty")
	}

	g := *grant
	g.ID = uuid.NewString()
	if g.IssuedAt.IsZero() {
		g.IssuedAt = time.Now()
	}

	data, err := json.Marshal(toGrantJSON(&g))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grant: %w", err)
	}

	// Key TTL is the remaining lifetime. Back-dated grants that are already
	// stale still get a minimal TTL so the consume script can report EXPIRED
	// rather than NOT_FOUND.
	ttl := s.grantTTL - time.Since(g.IssuedAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	key := s.grantKey(g.ID)

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return nil, fmt.Errorf("failed to save grant: %w", err)
	}

	s.logger.Debug("Created grant",
		"grant_id_prefix", safeTruncate(g.ID, grantIDLogLength),
		"client_id", g.ClientID,
		"user_id", g.UserID)

	return &g, nil
}

// GetGrant retrieves a grant by ID without consuming it.
// NOTE: For redemption, use ConsumeGrant instead; it is atomic.
func (s *Store) GetGrant(ctx context.Context, id string) (*storage.Grant, error) {
	key := s.grantKey(id)

	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	var j grantJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}

	return fromGrantJSON(&j), nil
}

// DeleteGrant removes a grant by ID. Deleting a grant that does not exist
// is not an error.
func (s *Store) DeleteGrant(ctx context.Context, id string) error {
	key := s.grantKey(id)

	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	s.logger.Debug("Deleted grant",
		"grant_id_prefix", safeTruncate(id, grantIDLogLength))
	return nil
}

// ConsumeGrant atomically validates and deletes a grant via a Lua script.
// Of any number of concurrent redemption attempts for the same grant,
// exactly one succeeds; the rest observe ErrGrantNotFound.
func (s *Store) ConsumeGrant(ctx context.Context, id, clientID, secret string) (*storage.Grant, error) {
	key := s.grantKey(id)

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaAtomicConsumeGrant).
			Numkeys(1).
			Key(key).
			Arg(fmt.Sprintf("%d", time.Now().Unix())).
			Arg(fmt.Sprintf("%d", int64(s.grantTTL.Seconds()))).
			Arg(clientID).
			Arg(secret).
			Build(),
	).ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to execute atomic grant consume: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return nil, storage.ErrGrantNotFound
	case "EXPIRED":
		return nil, storage.ErrGrantExpired
	case "MISMATCH":
		return nil, storage.ErrGrantMismatch
	}

	var j grantJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse grant: %w", err)
	}

	s.logger.Debug("Consumed grant",
		"grant_id_prefix", safeTruncate(id, grantIDLogLength),
		"client_id", clientID)

	return fromGrantJSON(&j), nil
}
