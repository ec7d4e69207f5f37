package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/content"
)

var _ content.IDGenerator = (*SequenceGenerator)(nil)

func TestStepClock_Advances(t *testing.T) {
	c := NewStepClock(time.Time{}, 0)

	assert.Equal(t, DefaultEpoch, c.Now())
	assert.Equal(t, DefaultEpoch.Add(time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, DefaultEpoch.Add(2*time.Second+time.Minute), c.Peek())

	c.Reset()
	assert.Equal(t, DefaultEpoch, c.Now())
}

func TestStepClock_ConcurrentCallsAreDistinct(t *testing.T) {
	c := NewStepClock(time.Time{}, time.Millisecond)

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := c.Now()
			mu.Lock()
			seen[t] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("wf")
	require.Equal(t, "wf-1", g.Generate())
	require.Equal(t, "wf-2", g.Generate())

	assert.Equal(t, "id-1", NewSequenceGenerator("").Generate())
}
