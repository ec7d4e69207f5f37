package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/workflow"
)

func testWorkflow(id, contentType string, event workflow.TriggerEvent) workflow.Definition {
	return workflow.Definition{
		ID:                 id,
		Name:               "wf " + id,
		TriggerContentType: contentType,
		TriggerEvent:       event,
		Conditions:         map[string]any{"Priority": "High"},
		Actions: []action.Spec{
			{Type: "Email", Parameters: map[string]string{"To": "a@example.com", "Subject": "{{id}}", "Body": "b"}},
		},
		CreatedAt: testTime,
	}
}

func TestSaveWorkflow_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	def := testWorkflow("w1", "Ticket", workflow.EventCreated)

	require.NoError(t, s.SaveWorkflow(ctx, def))

	got, err := s.GetWorkflow(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, def, got)
}

func TestGetWorkflow_NotFound(t *testing.T) {
	_, err := createTestStore(t).GetWorkflow(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWorkflowsFor_CreationOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Ids deliberately sort opposite to insertion order.
	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow(id, "Ticket", workflow.EventCreated)))
	}
	require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("other", "Ticket", workflow.EventUpdated)))

	// Re-saving keeps position.
	updated := testWorkflow("z", "Ticket", workflow.EventCreated)
	updated.Name = "renamed"
	updated.CreatedAt = testTime.Add(time.Hour)
	require.NoError(t, s.SaveWorkflow(ctx, updated))

	defs, err := s.WorkflowsFor(ctx, "Ticket", workflow.EventCreated)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"z", "m", "a"}, []string{defs[0].ID, defs[1].ID, defs[2].ID})
	assert.Equal(t, "renamed", defs[0].Name)
	assert.Equal(t, testTime, defs[0].CreatedAt)

	all, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestDeleteWorkflow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("w1", "Ticket", workflow.EventCreated)))

	require.NoError(t, s.DeleteWorkflow(ctx, "w1"))
	assert.ErrorIs(t, s.DeleteWorkflow(ctx, "w1"), repository.ErrNotFound)

	defs, err := s.WorkflowsFor(ctx, "Ticket", workflow.EventCreated)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestSaveWorkflow_RequiresID(t *testing.T) {
	err := createTestStore(t).SaveWorkflow(context.Background(), workflow.Definition{Name: "x"})
	assert.Error(t, err)
}

func TestRecordExecution_ListByContent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	exec := workflow.Execution{
		ID: "x1", WorkflowID: "w1", WorkflowName: "wf", ContentID: "c1", ContentType: "Ticket",
		Event: workflow.EventCreated, Matched: true, StartedAt: testTime, FinishedAt: testTime,
		Results: []action.Result{
			{Type: "Conditional", Success: true, Nested: []action.Result{{Type: "Email", Code: action.CodeExecutionFailed, Message: "relay down"}}},
		},
	}
	require.NoError(t, s.RecordExecution(ctx, exec))
	require.NoError(t, s.RecordExecution(ctx, exec), "duplicate ids are ignored")
	require.NoError(t, s.RecordExecution(ctx, workflow.Execution{ID: "x2", WorkflowID: "w1", ContentID: "c2", StartedAt: testTime, FinishedAt: testTime}))

	got, err := s.ListExecutions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, exec, got[0])
	assert.False(t, got[0].Succeeded())

	var succeeded bool
	require.NoError(t, s.db.QueryRow(`SELECT succeeded FROM workflow_executions WHERE id = 'x1'`).Scan(&succeeded))
	assert.False(t, succeeded)

	all, err := s.ListExecutions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
