// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/semu/auth-server/instrumentation"
	"github.com/semu/auth-server/storage"
)

// Store is an in-memory implementation of storage.ClientStore and
// storage.GrantStore. All operations are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client
	grants  map[string]*storage.Grant

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	grantsCountAtomic  atomic.Int64
	clientsCountAtomic atomic.Int64

	// Cleanup
	grantTTL        time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute) and the default grant lifetime.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute
// is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		grants:          make(map[string]*storage.Grant),
		grantTTL:        storage.GrantTTL,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.grantsCountAtomic.Store(int64(len(s.grants)))
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.mu.Unlock()

	if inst != nil {
		// Register storage size callbacks using the atomic counters so metric
		// collection never contends with the store lock
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.grantsCountAtomic.Load() },
			func() int64 { return s.clientsCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient registers a client application. Clients are provisioned out of
// band, so this is not part of storage.ClientStore; callers use it during
// setup and in tests.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ID]

	c := *client
	s.clients[client.ID] = &c

	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = storage.ErrClientNotFound
		return nil, err
	}

	c := *client
	return &c, nil
}

// ============================================================
// GrantStore Implementation
// ============================================================

// CreateGrant stores a new authorization grant. The store assigns the grant
// ID. IssuedAt is set to the current time unless the caller already set it.
func (s *Store) CreateGrant(ctx context.Context, grant *storage.Grant) (*storage.Grant, error) {
	ctx, span := s.startStorageSpan(ctx, "create_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "create_grant", err, startTime)
	}()

	if grant == nil {
		err = fmt.Errorf("grant cannot be nil")
		return nil, err
	}
	if grant.ClientID == "" {
		err = fmt.Errorf("grant client ID cannot be empty")
		return nil, err
	}
	if grant.Secret == "" {
		err = fmt.Errorf("grant secret cannot be empty")
		return nil, err
	}

	g := *grant
	g.ID = uuid.NewString()
	if g.IssuedAt.IsZero() {
		g.IssuedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[g.ID] = &g
	s.grantsCountAtomic.Add(1)

	s.logger.Debug("Created grant",
		"grant_id", g.ID,
		"client_id", g.ClientID,
		"user_id", g.UserID)

	stored := g
	return &stored, nil
}

// GetGrant retrieves a grant by ID without consuming it
func (s *Store) GetGrant(ctx context.Context, id string) (*storage.Grant, error) {
	ctx, span := s.startStorageSpan(ctx, "get_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_grant", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok {
		err = storage.ErrGrantNotFound
		return nil, err
	}

	g := *grant
	return &g, nil
}

// DeleteGrant removes a grant by ID. Deleting a grant that does not exist
// is not an error.
func (s *Store) DeleteGrant(ctx context.Context, id string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_grant", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[id]; ok {
		delete(s.grants, id)
		s.grantsCountAtomic.Add(-1)
	}

	return nil
}

// ConsumeGrant atomically validates and deletes a grant. The grant must
// exist, must still be within its lifetime, must belong to clientID, and the
// supplied secret must match. Validation and deletion happen under a single
// write lock, so at most one concurrent caller can redeem a given grant.
func (s *Store) ConsumeGrant(ctx context.Context, id, clientID, secret string) (*storage.Grant, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_grant")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_grant", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[id]
	if !ok {
		err = storage.ErrGrantNotFound
		return nil, err
	}

	// A grant is redeemable strictly within its lifetime: at exactly the
	// TTL boundary it is already expired.
	if time.Since(grant.IssuedAt) >= s.grantTTL {
		delete(s.grants, id)
		s.grantsCountAtomic.Add(-1)
		err = storage.ErrGrantExpired
		return nil, err
	}

	clientMatch := subtle.ConstantTimeCompare([]byte(grant.ClientID), []byte(clientID))
	secretMatch := subtle.ConstantTimeCompare([]byte(grant.Secret), []byte(secret))
	if clientMatch != 1 || secretMatch != 1 {
		err = storage.ErrGrantMismatch
		return nil, err
	}

	delete(s.grants, id)
	s.grantsCountAtomic.Add(-1)

	s.logger.Debug("Consumed grant",
		"grant_id", grant.ID,
		"client_id", grant.ClientID,
		"user_id", grant.UserID)

	g := *grant
	return &g, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired grants
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, grant := range s.grants {
		if now.Sub(grant.IssuedAt) >= s.grantTTL {
			delete(s.grants, id)
			removed++
		}
	}

	if removed > 0 {
		s.grantsCountAtomic.Add(int64(-removed))
		s.logger.Debug("Cleaned up expired grants", "count", removed)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a span for a storage operation (nil-safe)
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics and span status for a storage operation
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
