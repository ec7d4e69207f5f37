package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/content"
)

func TestGuard_SecondUseConflicts(t *testing.T) {
	g := NewGuard(NewMemoryKeyStore(), nil)
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "req-1"))
	err := g.Check(ctx, "req-1")
	require.Error(t, err)
	assert.True(t, content.IsIdempotencyConflict(err))

	require.NoError(t, g.Check(ctx, "req-2"))
}

func TestGuard_EmptyKeyNotEnforced(t *testing.T) {
	g := NewGuard(NewMemoryKeyStore(), nil)
	require.NoError(t, g.Check(context.Background(), ""))
	require.NoError(t, g.Check(context.Background(), "  "))
}

type failingStore struct{}

func (failingStore) ClaimKey(context.Context, string, time.Time) (bool, error) {
	return false, errors.New("locked")
}

func TestGuard_StoreError(t *testing.T) {
	err := NewGuard(failingStore{}, nil).Check(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, content.IsIdempotencyConflict(err))
}

func TestMemoryKeyStore_ConcurrentClaims(t *testing.T) {
	s := NewMemoryKeyStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimKey(context.Background(), "same", time.Now())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryKeyStore_DistinctKeys(t *testing.T) {
	s := NewMemoryKeyStore()
	for i := 0; i < 3; i++ {
		ok, err := s.ClaimKey(context.Background(), fmt.Sprintf("k%d", i), time.Now())
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
