package storage

import (
	"context"
	"errors"
	"time"
)

// GrantTTL is the freshness window for authorization grants. A grant issued
// at time T is redeemable for T <= now < T+GrantTTL; at the boundary or later
// redemption fails with ErrGrantExpired.
const GrantTTL = 60 * time.Second

// Sentinel errors returned by storage implementations. Callers use errors.Is
// to distinguish redemption rejections (reported to the client as
// invalid_grant) from infrastructure failures (reported as server errors).
var (
	// ErrClientNotFound indicates that no client with the given ID exists
	ErrClientNotFound = errors.New("client not found")

	// ErrGrantNotFound indicates that no grant with the given ID exists,
	// including grants that have already been consumed
	ErrGrantNotFound = errors.New("grant not found")

	// ErrGrantExpired indicates the grant exists but is outside the
	// freshness window
	ErrGrantExpired = errors.New("grant expired")

	// ErrGrantMismatch indicates the grant exists but its client binding or
	// secret does not match the redemption attempt
	ErrGrantMismatch = errors.New("grant does not match redemption request")
)

// IsGrantRejection reports whether err is one of the redemption rejection
// sentinels. Rejections are expected protocol outcomes, not server errors.
func IsGrantRejection(err error) bool {
	return errors.Is(err, ErrGrantNotFound) ||
		errors.Is(err, ErrGrantExpired) ||
		errors.Is(err, ErrGrantMismatch)
}

// Client represents a registered OAuth client. Client records are read-only
// to the server core: the redirect URI is fixed at registration time and
// request-supplied values are only ever compared against it.
type Client struct {
	ID          string
	Secret      string
	RedirectURI string
	Name        string
}

// Grant is the server-side record backing a single-use authorization code.
// The wire code handed to the user agent is the concatenation of ID and
// Secret (see the root package); neither field ever leaves the server alone.
//
// Lifecycle: created once by the grant issuer, then either consumed exactly
// once by ConsumeGrant or left to expire. Grants are never updated in place.
type Grant struct {
	// ID is the store-assigned unique identifier
	ID string

	// Secret is the high-entropy random component generated by the server
	// core (never by the store)
	Secret string

	// ClientID is the client this grant was issued to
	ClientID string

	// UserID is the authenticated end user who approved the grant
	UserID string

	// IssuedAt is the creation timestamp; it anchors the freshness window
	IssuedAt time.Time
}

// ClientStore defines the lookup interface for registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// GetClient retrieves a client by ID. Returns ErrClientNotFound if no
	// such client exists.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// GrantStore defines the interface for persisting authorization grants.
// All methods accept context.Context for tracing and cancellation.
type GrantStore interface {
	// CreateGrant persists a new grant and assigns its ID. The returned
	// grant carries the assigned ID; the input is not modified.
	CreateGrant(ctx context.Context, grant *Grant) (*Grant, error)

	// GetGrant retrieves a grant by ID without consuming it. Returns
	// ErrGrantNotFound if no such grant exists.
	GetGrant(ctx context.Context, id string) (*Grant, error)

	// DeleteGrant removes a grant. Deleting an absent grant is not an error.
	DeleteGrant(ctx context.Context, id string) error

	// ConsumeGrant atomically validates and deletes a grant. As one unit it
	// verifies that the grant exists, is within the freshness window, was
	// issued to clientID, and that secret matches the stored secret; only
	// then is the grant deleted and returned.
	//
	// SECURITY: This operation MUST be atomic with respect to concurrent
	// redemption attempts - exactly one concurrent caller presenting the
	// same code may succeed; all others receive ErrGrantNotFound. A
	// separate read-then-delete sequence is vulnerable to double
	// redemption.
	ConsumeGrant(ctx context.Context, id, clientID, secret string) (*Grant, error)
}
