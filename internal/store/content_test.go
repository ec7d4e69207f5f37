package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/content"
)

func TestAppendEvents_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v1 := createTestContent(t, s, "c1", "Article", content.Data{"Name": "Version 1"})
	_, err := content.Commit(ctx, s, v1, []content.Envelope{
		{ContentID: "c1", Version: 2, OccurredAt: testTime, Event: content.Updated{ID: "c1", Data: content.Data{"Name": "Version 2", "Updated": true}, UpdatedBy: "u2"}},
		{ContentID: "c1", Version: 3, OccurredAt: testTime, Event: content.StatusChanged{ID: "c1", NewStatus: content.StatusPublished, UpdatedBy: "u2"}},
	})
	require.NoError(t, err)

	envs, err := s.LoadEvents(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, envs, 3)
	assert.Equal(t, content.EventCreated, envs[0].Type())
	assert.Equal(t, content.EventUpdated, envs[1].Type())
	assert.Equal(t, content.EventStatusChanged, envs[2].Type())
	assert.Equal(t, testTime, envs[1].OccurredAt)
	assert.Equal(t, "u2", envs[2].Actor())

	state, err := content.Replay(envs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.Version)
	assert.Equal(t, content.StatusPublished, state.Status)
	assert.Equal(t, true, state.Data["Updated"])
}

func TestLoadEvents_MissingStreamIsEmpty(t *testing.T) {
	envs, err := createTestStore(t).LoadEvents(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, envs)
	assert.Empty(t, envs)
}

func TestAppendEvents_VersionConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	v1 := createTestContent(t, s, "c1", "Article", content.Data{})

	next := content.Envelope{ContentID: "c1", Version: 2, OccurredAt: testTime, Event: content.Updated{ID: "c1", Data: content.Data{"a": "x"}}}
	_, err := content.Commit(ctx, s, v1, []content.Envelope{next})
	require.NoError(t, err)

	_, err = content.Commit(ctx, s, v1, []content.Envelope{next})
	require.Error(t, err)
	assert.True(t, content.IsVersionConflict(err))

	envs, err := s.LoadEvents(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}

func TestAppendEvents_ConcurrentWritersOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	v1 := createTestContent(t, s, "c1", "Article", content.Data{})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = content.Commit(ctx, s, v1, []content.Envelope{{
				ContentID: "c1", Version: 2, OccurredAt: testTime,
				Event: content.Updated{ID: "c1", Data: content.Data{"writer": float64(i)}},
			}})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, content.IsVersionConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestSampleAndListContent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sample, err := s.SampleContent(ctx, "Article")
	require.NoError(t, err)
	assert.Nil(t, sample)

	createTestContent(t, s, "b", "Article", content.Data{"Title": "B", "Views": float64(3)})
	createTestContent(t, s, "a", "Article", content.Data{"Title": "A"})
	createTestContent(t, s, "p", "Page", content.Data{})

	sample, err = s.SampleContent(ctx, "Article")
	require.NoError(t, err)
	require.NotNil(t, sample)
	assert.Equal(t, "Article", sample.ContentType)

	list, err := s.ListContent(ctx, "Article")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, float64(3), list[1].Data["Views"])
}

func TestListContent_ExcludesDeleted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c := createTestContent(t, s, "a", "Article", content.Data{})

	_, err := content.Commit(ctx, s, c, []content.Envelope{{ContentID: "a", Version: 2, OccurredAt: testTime, Event: content.Deleted{ID: "a"}}})
	require.NoError(t, err)

	list, err := s.ListContent(ctx, "Article")
	require.NoError(t, err)
	assert.Empty(t, list)

	sample, err := s.SampleContent(ctx, "Article")
	require.NoError(t, err)
	assert.Nil(t, sample)
}
