package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/workflow"
)

// SaveWorkflow inserts or replaces a definition by id. A replaced
// definition keeps its original creation time and position.
func (s *Store) SaveWorkflow(ctx context.Context, def workflow.Definition) error {
	if def.ID == "" {
		return errors.New("save workflow: empty id")
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, trigger_content_type, trigger_event, definition, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trigger_content_type = excluded.trigger_content_type,
			trigger_event = excluded.trigger_event,
			definition = excluded.definition
	`, def.ID, def.Name, def.TriggerContentType, string(def.TriggerEvent), string(doc), formatTime(def.CreatedAt))
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns the definition with id.
// Returns repository.ErrNotFound if it does not exist.
func (s *Store) GetWorkflow(ctx context.Context, id string) (workflow.Definition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT definition, created_at FROM workflows WHERE id = ?`, id)
	def, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Definition{}, fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return def, err
}

// ListWorkflows returns every definition in creation order.
func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Definition, error) {
	return s.queryWorkflows(ctx, `SELECT definition, created_at FROM workflows ORDER BY seq ASC`)
}

// WorkflowsFor returns the definitions triggered by (contentType, event) in
// creation order.
func (s *Store) WorkflowsFor(ctx context.Context, contentType string, event workflow.TriggerEvent) ([]workflow.Definition, error) {
	return s.queryWorkflows(ctx, `
		SELECT definition, created_at FROM workflows
		WHERE trigger_content_type = ? AND trigger_event = ?
		ORDER BY seq ASC
	`, contentType, string(event))
}

// DeleteWorkflow removes a definition. Execution records are kept.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) queryWorkflows(ctx context.Context, query string, args ...any) ([]workflow.Definition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	defs := []workflow.Definition{}
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return defs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (workflow.Definition, error) {
	var doc, createdAt string
	if err := row.Scan(&doc, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return workflow.Definition{}, err
		}
		return workflow.Definition{}, fmt.Errorf("scan workflow: %w", err)
	}
	var def workflow.Definition
	if err := json.Unmarshal([]byte(doc), &def); err != nil {
		return workflow.Definition{}, fmt.Errorf("decode workflow: %w", err)
	}
	at, err := parseTime(createdAt)
	if err != nil {
		return workflow.Definition{}, err
	}
	def.CreatedAt = at
	return def, nil
}

// RecordExecution stores an execution record.
func (s *Store) RecordExecution(ctx context.Context, exec workflow.Execution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions
		(id, workflow_id, content_id, event, succeeded, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, exec.ID, exec.WorkflowID, exec.ContentID, string(exec.Event), exec.Succeeded(),
		formatTime(exec.StartedAt), formatTime(exec.FinishedAt), string(doc))
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutions returns the execution records of contentID in the order
// they were recorded. An empty contentID lists every record.
func (s *Store) ListExecutions(ctx context.Context, contentID string) ([]workflow.Execution, error) {
	query := `SELECT record FROM workflow_executions ORDER BY seq ASC`
	var args []any
	if contentID != "" {
		query = `SELECT record FROM workflow_executions WHERE content_id = ? ORDER BY seq ASC`
		args = append(args, contentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	out := []workflow.Execution{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		var exec workflow.Execution
		if err := json.Unmarshal([]byte(doc), &exec); err != nil {
			return nil, fmt.Errorf("decode execution: %w", err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}
