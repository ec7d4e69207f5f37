package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingStream(t *testing.T) {
	_, _, err := Load(context.Background(), NewMemoryEventStore(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCommit_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEventStore()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := Commit(ctx, s, nil, []Envelope{{
		ContentID: "c1", Version: 1, OccurredAt: ts,
		Event: Created{ID: "c1", ContentType: "Article", Data: Data{"Name": "v1"}, Status: StatusDraft, CreatedBy: "u1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)

	updated, err := Commit(ctx, s, created, []Envelope{
		{ContentID: "c1", Version: 2, OccurredAt: ts, Event: Updated{ID: "c1", Data: Data{"Name": "v2"}, UpdatedBy: "u1"}},
		{ContentID: "c1", Version: 3, OccurredAt: ts, Event: StatusChanged{ID: "c1", NewStatus: StatusPublished, UpdatedBy: "u1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
	assert.Equal(t, StatusPublished, s.State("c1").Status)

	loaded, envs, err := Load(ctx, s, "c1")
	require.NoError(t, err)
	assert.Len(t, envs, 3)
	assert.Equal(t, updated, loaded)
}

func TestCommit_StalePriorConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEventStore()

	v1, err := Commit(ctx, s, nil, []Envelope{{
		ContentID: "c1", Version: 1,
		Event: Created{ID: "c1", ContentType: "Article", Data: Data{}, Status: StatusDraft},
	}})
	require.NoError(t, err)

	_, err = Commit(ctx, s, v1, []Envelope{{ContentID: "c1", Version: 2, Event: Updated{ID: "c1", Data: Data{"a": 1.0}}}})
	require.NoError(t, err)

	_, err = Commit(ctx, s, v1, []Envelope{{ContentID: "c1", Version: 2, Event: Updated{ID: "c1", Data: Data{"a": 2.0}}}})
	require.Error(t, err)
	assert.True(t, IsVersionConflict(err))
	assert.Contains(t, err.Error(), "modified by another user")

	envs, err := s.LoadEvents(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, envs, 2, "conflicting append must store nothing")
}

func TestLoad_DeletedIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryEventStore()
	v1, err := Commit(ctx, s, nil, []Envelope{{
		ContentID: "c1", Version: 1,
		Event: Created{ID: "c1", ContentType: "Article", Data: Data{}, Status: StatusDraft},
	}})
	require.NoError(t, err)
	_, err = Commit(ctx, s, v1, []Envelope{{ContentID: "c1", Version: 2, Event: Deleted{ID: "c1"}}})
	require.NoError(t, err)

	_, envs, err := Load(ctx, s, "c1")
	assert.True(t, IsNotFound(err))
	assert.Len(t, envs, 2)
}
