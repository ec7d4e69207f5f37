// Package idempotency rejects replays of mutating requests.
//
// The first request presenting a key claims it and proceeds; every later
// request with the same key is rejected with IDEMPOTENCY_CONFLICT. There is
// no cached-response replay. Claims must be atomic insert-if-absent so two
// concurrent requests with the same key cannot both succeed.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// KeyStore records claimed keys.
type KeyStore interface {
	// ClaimKey inserts key if absent. It returns false when the key already
	// exists. Implementations must make the check and insert one atomic step.
	ClaimKey(ctx context.Context, key string, at time.Time) (bool, error)
}

// Guard enforces single use of idempotency keys.
type Guard struct {
	store KeyStore
	now   func() time.Time
}

// NewGuard creates a Guard over store. now may be nil.
func NewGuard(store KeyStore, now func() time.Time) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Guard{store: store, now: now}
}

// Check claims key. An empty key is not enforced.
func (g *Guard) Check(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	claimed, err := g.store.ClaimKey(ctx, key, g.now())
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		return content.NewIdempotencyConflict(key)
	}
	return nil
}

// MemoryKeyStore is an in-process KeyStore.
//
// Thread-safety: ClaimKey is serialized by a mutex.
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryKeyStore creates an empty store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]time.Time)}
}

// ClaimKey inserts key if absent.
func (m *MemoryKeyStore) ClaimKey(_ context.Context, key string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = at
	return true, nil
}
