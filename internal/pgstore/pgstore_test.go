package pgstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/idempotency"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/sensitivity"
	"github.com/roach88/contentflow/internal/workflow"
)

var testTime = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("contentflow"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	s, err := Open(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Applying the schema twice is harmless.
	require.NoError(t, s.Migrate(ctx))

	t.Run("Append and replay", func(t *testing.T) {
		v1, err := content.Commit(ctx, s, nil, []content.Envelope{{
			ContentID: "c1", Version: 1, OccurredAt: testTime,
			Event: content.Created{ID: "c1", ContentType: "Article", Data: content.Data{"Name": "v1"},
				Status: content.StatusDraft, Sensitivity: content.SensitivityPublic, CreatedBy: "u1"},
		}})
		require.NoError(t, err)

		_, err = content.Commit(ctx, s, v1, []content.Envelope{{
			ContentID: "c1", Version: 2, OccurredAt: testTime,
			Event: content.Updated{ID: "c1", Data: content.Data{"Name": "v2"}, UpdatedBy: "u2"},
		}})
		require.NoError(t, err)

		envs, err := s.LoadEvents(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, envs, 2)
		assert.Equal(t, testTime, envs[0].OccurredAt)

		state, err := content.Replay(envs)
		require.NoError(t, err)
		assert.Equal(t, int64(2), state.Version)
		assert.Equal(t, "v2", state.Data["Name"])

		sample, err := s.SampleContent(ctx, "Article")
		require.NoError(t, err)
		require.NotNil(t, sample)
		assert.Equal(t, "c1", sample.ID)

		list, err := s.ListContent(ctx, "Article")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("Stale writer conflicts", func(t *testing.T) {
		v1, err := content.Commit(ctx, s, nil, []content.Envelope{{
			ContentID: "c2", Version: 1, OccurredAt: testTime,
			Event: content.Created{ID: "c2", ContentType: "Article", Data: content.Data{},
				Status: content.StatusDraft, Sensitivity: content.SensitivityPublic},
		}})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 6)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = content.Commit(ctx, s, v1, []content.Envelope{{
					ContentID: "c2", Version: 2, OccurredAt: testTime,
					Event: content.Updated{ID: "c2", Data: content.Data{"writer": float64(i)}},
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
	})

	t.Run("Workflows keep creation order", func(t *testing.T) {
		for _, id := range []string{"wf-b", "wf-a"} {
			require.NoError(t, s.SaveWorkflow(ctx, workflow.Definition{
				ID: id, Name: id, TriggerContentType: "Registration", TriggerEvent: workflow.EventCreated,
				Actions:   []action.Spec{{Type: "Email", Parameters: map[string]string{"To": "a@b.c"}}},
				CreatedAt: testTime,
			}))
		}
		require.NoError(t, s.SaveWorkflow(ctx, workflow.Definition{
			ID: "wf-b", Name: "renamed", TriggerContentType: "Registration", TriggerEvent: workflow.EventCreated,
			CreatedAt: testTime,
		}))

		defs, err := s.WorkflowsFor(ctx, "Registration", workflow.EventCreated)
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, "wf-b", defs[0].ID)
		assert.Equal(t, "renamed", defs[0].Name)
		assert.Equal(t, "wf-a", defs[1].ID)

		require.NoError(t, s.DeleteWorkflow(ctx, "wf-a"))
		_, err = s.GetWorkflow(ctx, "wf-a")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Executions", func(t *testing.T) {
		exec := workflow.Execution{
			ID: "x1", WorkflowID: "wf-b", ContentID: "c1", Event: workflow.EventCreated, Matched: true,
			StartedAt: testTime, FinishedAt: testTime,
			Results: []action.Result{{Type: "Email", Success: true}},
		}
		require.NoError(t, s.RecordExecution(ctx, exec))
		require.NoError(t, s.RecordExecution(ctx, exec))

		got, err := s.ListExecutions(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Succeeded())
	})

	t.Run("Roles and users", func(t *testing.T) {
		role := permission.Role{ID: "r-editor", Name: "Editor", Permissions: []permission.ContentTypePermission{{
			ContentTypeSlug: "Article",
			Read:            permission.Rule{Enabled: true},
			Update:          permission.Rule{Enabled: true},
		}}}
		require.NoError(t, s.SaveRole(ctx, role))
		require.NoError(t, s.SaveUser(ctx, permission.User{ID: "u1", RoleIDs: []string{"r-missing", "r-editor"}}))

		user, err := s.GetUser(ctx, "u1")
		require.NoError(t, err)
		roles, err := s.GetRoles(ctx, user.RoleIDs)
		require.NoError(t, err)
		require.Len(t, roles, 1)
		assert.Equal(t, role, roles[0])

		_, err = s.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Idempotency keys", func(t *testing.T) {
		guard := idempotency.NewGuard(s, func() time.Time { return testTime })
		require.NoError(t, guard.Check(ctx, "k1"))
		err := guard.Check(ctx, "k1")
		assert.True(t, content.IsIdempotencyConflict(err))
	})

	t.Run("Field policies", func(t *testing.T) {
		require.NoError(t, s.SaveFieldPolicy(ctx, sensitivity.FieldPolicy{
			ContentType: "Patient", FieldName: "SSN", Action: sensitivity.ActionMask, AllowedRoles: []string{"Doctor"},
		}))
		policies, err := s.FieldPolicies(ctx, "Patient")
		require.NoError(t, err)
		require.Len(t, policies, 1)
		assert.Equal(t, []string{"Doctor"}, policies[0].AllowedRoles)
	})
}
