package valkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/semu/auth-server/storage"
)

const (
	testClientID = "test-client"
	testUserID   = "test-user"
	testSecret   = "test-grant-secret"
)

// testStore creates a test store connected to a local Valkey instance.
// Tests will be skipped if the server at VALKEY_TEST_ADDR (default
// localhost:6379) is not reachable. Each test gets a unique prefix to
// ensure isolation.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("authtest:%s:", t.Name())

	store, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	cleanupTestKeys(t, store)
	return store
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()

	ctx := context.Background()
	pattern := s.prefix + "*"

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

func testGrant() *storage.Grant {
	return &storage.Grant{
		Secret:   testSecret,
		ClientID: testClientID,
		UserID:   testUserID,
	}
}

// ============================================================
// Config Tests
// ============================================================

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Error("New() without address should return error")
	}
}

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveAndGetClient(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	client := &storage.Client{
		ID:          testClientID,
		Secret:      "client-secret",
		RedirectURI: "https://app.example.com/callback",
		Name:        "Test App",
	}

	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, testClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.Secret != client.Secret || got.RedirectURI != client.RedirectURI {
		t.Errorf("GetClient() = %+v, want %+v", got, client)
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetClient(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_DeleteClient(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	client := &storage.Client{ID: testClientID, Secret: "s", RedirectURI: "https://example.com/cb"}
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	if err := store.DeleteClient(ctx, testClientID); err != nil {
		t.Fatalf("DeleteClient() error = %v", err)
	}

	if _, err := store.GetClient(ctx, testClientID); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() after delete error = %v, want ErrClientNotFound", err)
	}
}

// ============================================================
// GrantStore Tests
// ============================================================

func TestStore_CreateAndGetGrant(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}
	if created.ID == "" {
		t.Error("CreateGrant() did not assign an ID")
	}

	got, err := store.GetGrant(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetGrant() error = %v", err)
	}
	if got.ClientID != testClientID || got.UserID != testUserID || got.Secret != testSecret {
		t.Errorf("GetGrant() = %+v", got)
	}
}

func TestStore_ConsumeGrant(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	got, err := store.ConsumeGrant(ctx, created.ID, testClientID, testSecret)
	if err != nil {
		t.Fatalf("ConsumeGrant() error = %v", err)
	}
	if got.UserID != testUserID {
		t.Errorf("UserID = %q, want %q", got.UserID, testUserID)
	}

	// Grant is single use
	_, err = store.ConsumeGrant(ctx, created.ID, testClientID, testSecret)
	if !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("second ConsumeGrant() error = %v, want ErrGrantNotFound", err)
	}
}

func TestStore_ConsumeGrant_Mismatch(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	if _, err := store.ConsumeGrant(ctx, created.ID, "other-client", testSecret); !errors.Is(err, storage.ErrGrantMismatch) {
		t.Errorf("ConsumeGrant() wrong client error = %v, want ErrGrantMismatch", err)
	}
	if _, err := store.ConsumeGrant(ctx, created.ID, testClientID, "wrong-secret"); !errors.Is(err, storage.ErrGrantMismatch) {
		t.Errorf("ConsumeGrant() wrong secret error = %v, want ErrGrantMismatch", err)
	}

	// A mismatched attempt does not consume the grant
	if _, err := store.ConsumeGrant(ctx, created.ID, testClientID, testSecret); err != nil {
		t.Errorf("ConsumeGrant() after mismatches error = %v", err)
	}
}

func TestStore_ConsumeGrant_Expired(t *testing.T) {
	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	// Short lifetime so the test does not wait the full grant window
	store, err := New(Config{
		Address:   addr,
		KeyPrefix: fmt.Sprintf("authtest:%s:", t.Name()),
		GrantTTL:  time.Second,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})

	ctx := context.Background()
	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	_, err = store.ConsumeGrant(ctx, created.ID, testClientID, testSecret)
	// The key TTL may evict the grant before the script observes it, so
	// either rejection is acceptable here.
	if !errors.Is(err, storage.ErrGrantExpired) && !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("ConsumeGrant() error = %v, want ErrGrantExpired or ErrGrantNotFound", err)
	}
}

func TestStore_ConsumeGrant_Concurrent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	successes := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeGrant(ctx, created.ID, testClientID, testSecret); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("concurrent ConsumeGrant() succeeded %d times, want exactly 1", count)
	}
}

func TestStore_DeleteGrant(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	created, err := store.CreateGrant(ctx, testGrant())
	if err != nil {
		t.Fatalf("CreateGrant() error = %v", err)
	}

	if err := store.DeleteGrant(ctx, created.ID); err != nil {
		t.Fatalf("DeleteGrant() error = %v", err)
	}

	if _, err := store.GetGrant(ctx, created.ID); !errors.Is(err, storage.ErrGrantNotFound) {
		t.Errorf("GetGrant() after delete error = %v, want ErrGrantNotFound", err)
	}
}
