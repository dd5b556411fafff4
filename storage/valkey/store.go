package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/semu/auth-server/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "auth:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// grantIDLogLength is the number of characters to include when logging
	// grant IDs. Enough uniqueness for debugging without exposing full IDs.
	grantIDLogLength = 8
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "auth:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// GrantTTL overrides the default grant lifetime. Mainly useful in tests.
	GrantTTL time.Duration
}

// Store is a Valkey-backed implementation of storage.ClientStore and
// storage.GrantStore.
type Store struct {
	client   valkeygo.Client
	prefix   string
	grantTTL time.Duration
	logger   *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	grantTTL := cfg.GrantTTL
	if grantTTL <= 0 {
		grantTTL = storage.GrantTTL
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:   client,
		prefix:   prefix,
		grantTTL: grantTTL,
		logger:   logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// grantKey returns the key for a grant: {prefix}grant:{grantID}
func (s *Store) grantKey(grantID string) string {
	return fmt.Sprintf("%sgrant:%s", s.prefix, grantID)
}

// isNilError reports whether err is the Valkey nil reply (key not found)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// safeTruncate safely truncates a string to n characters
func safeTruncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================

// luaAtomicConsumeGrant atomically validates and deletes a grant. Running
// the checks and the delete as a single script guarantees that only ONE
// concurrent redemption of a given grant can succeed.
//
// KEYS[1] = grant key (e.g., "auth:grant:abc123")
// ARGV[1] = current Unix timestamp in seconds
// ARGV[2] = grant lifetime in seconds
// ARGV[3] = redeeming client ID
// ARGV[4] = grant secret presented by the client
//
// Returns:
//   - Grant JSON if the grant was valid and has been deleted
//   - "NOT_FOUND" if the key doesn't exist (never issued, already redeemed,
//     or evicted by the key TTL)
//   - "EXPIRED" if the grant reached or passed its lifetime (also deletes it)
//   - "MISMATCH" if the client ID or secret doesn't match (grant is kept)
const luaAtomicConsumeGrant = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local grant = cjson.decode(data)

-- A grant is redeemable strictly within its lifetime
local now = tonumber(ARGV[1])
local issuedAt = tonumber(grant.issued_at)
if now - issuedAt >= tonumber(ARGV[2]) then
    redis.call('DEL', KEYS[1])
    return 'EXPIRED'
end

if grant.client_id ~= ARGV[3] or grant.secret ~= ARGV[4] then
    return 'MISMATCH'
end

redis.call('DEL', KEYS[1])
return data
`
