// Package pgstore is the PostgreSQL implementation of the repository
// contracts. It mirrors the SQLite store table for table; JSON columns are
// JSONB and timestamps are TIMESTAMPTZ.
//
// Stream appends check the current version inside a transaction and rely on
// UNIQUE(content_id, version) to reject a concurrent writer that passed the
// same check.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/sensitivity"
	"github.com/roach88/contentflow/internal/workflow"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

var _ repository.Repository = (*Store)(nil)

// Store is a PostgreSQL-backed repository.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The schema is not applied.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// AppendEvents appends envs if the stream of id is at version expected and
// replaces the stored state, in one transaction.
func (s *Store) AppendEvents(ctx context.Context, id string, expected int64, envs []content.Envelope, state *content.Content) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("append events: marshal state: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append events: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int64
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM content_events WHERE content_id = $1`, id,
	).Scan(&current); err != nil {
		return fmt.Errorf("append events: read version: %w", err)
	}
	if current != expected {
		return content.NewVersionConflict(id, expected, current)
	}

	for _, env := range envs {
		payload, err := content.MarshalEvent(env.Event)
		if err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO content_events (content_id, version, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, env.Version, string(env.Type()), payload, env.OccurredAt)
		if err != nil {
			if isUniqueViolation(err) {
				return content.NewVersionConflict(id, expected, env.Version)
			}
			return fmt.Errorf("append events: insert v%d: %w", env.Version, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO contents (id, content_type, version, deleted, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content_type = EXCLUDED.content_type,
			version = EXCLUDED.version,
			deleted = EXCLUDED.deleted,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`, id, state.ContentType, state.Version, state.Deleted, doc, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("append events: write state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return content.NewVersionConflict(id, expected, current)
		}
		return fmt.Errorf("append events: commit: %w", err)
	}
	return nil
}

// LoadEvents returns the stream of id ordered by version.
func (s *Store) LoadEvents(ctx context.Context, id string) ([]content.Envelope, error) {
	rows, err := s.db.Query(ctx, `
		SELECT version, event_type, payload, occurred_at
		FROM content_events
		WHERE content_id = $1
		ORDER BY version ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	envs := []content.Envelope{}
	for rows.Next() {
		var (
			version    int64
			eventType  string
			payload    []byte
			occurredAt time.Time
		)
		if err := rows.Scan(&version, &eventType, &payload, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := content.UnmarshalEvent(content.EventType(eventType), payload)
		if err != nil {
			return nil, fmt.Errorf("event %s@%d: %w", id, version, err)
		}
		envs = append(envs, content.Envelope{ContentID: id, Version: version, Event: ev, OccurredAt: occurredAt.UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return envs, nil
}

// SampleContent returns the most recently updated live item of contentType.
func (s *Store) SampleContent(ctx context.Context, contentType string) (*content.Content, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `
		SELECT document FROM contents
		WHERE content_type = $1 AND NOT deleted
		ORDER BY updated_at DESC, id ASC
		LIMIT 1
	`, contentType).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample content: %w", err)
	}
	return decodeContent(doc)
}

// ListContent returns live items of contentType ordered by id.
func (s *Store) ListContent(ctx context.Context, contentType string) ([]*content.Content, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document FROM contents
		WHERE content_type = $1 AND NOT deleted
		ORDER BY id COLLATE "C" ASC
	`, contentType)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	out := []*content.Content{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		c, err := decodeContent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveWorkflow inserts or replaces a definition, keeping its position.
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
	_, err = s.db.Exec(ctx, `
		INSERT INTO workflows (id, name, trigger_content_type, trigger_event, definition, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger_content_type = EXCLUDED.trigger_content_type,
			trigger_event = EXCLUDED.trigger_event,
			definition = EXCLUDED.definition
	`, def.ID, def.Name, def.TriggerContentType, string(def.TriggerEvent), doc, def.CreatedAt)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns the definition with id, or repository.ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, id string) (workflow.Definition, error) {
	defs, err := s.queryWorkflows(ctx, `SELECT definition, created_at FROM workflows WHERE id = $1`, id)
	if err != nil {
		return workflow.Definition{}, err
	}
	if len(defs) == 0 {
		return workflow.Definition{}, fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return defs[0], nil
}

// ListWorkflows returns every definition in creation order.
func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Definition, error) {
	return s.queryWorkflows(ctx, `SELECT definition, created_at FROM workflows ORDER BY seq ASC`)
}

// WorkflowsFor returns the definitions for (contentType, event) in creation order.
func (s *Store) WorkflowsFor(ctx context.Context, contentType string, event workflow.TriggerEvent) ([]workflow.Definition, error) {
	return s.queryWorkflows(ctx, `
		SELECT definition, created_at FROM workflows
		WHERE trigger_content_type = $1 AND trigger_event = $2
		ORDER BY seq ASC
	`, contentType, string(event))
}

// DeleteWorkflow removes a definition, or returns repository.ErrNotFound.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) queryWorkflows(ctx context.Context, query string, args ...any) ([]workflow.Definition, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	defs := []workflow.Definition{}
	for rows.Next() {
		var doc []byte
		var createdAt time.Time
		if err := rows.Scan(&doc, &createdAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		var def workflow.Definition
		if err := json.Unmarshal(doc, &def); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		def.CreatedAt = createdAt.UTC()
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return defs, nil
}

// RecordExecution stores an execution record. Duplicate ids are ignored.
func (s *Store) RecordExecution(ctx context.Context, exec workflow.Execution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO workflow_executions
		(id, workflow_id, content_id, event, succeeded, started_at, finished_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, exec.ID, exec.WorkflowID, exec.ContentID, string(exec.Event), exec.Succeeded(), exec.StartedAt, exec.FinishedAt, doc)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutions returns records for contentID (all when empty) in
// recording order.
func (s *Store) ListExecutions(ctx context.Context, contentID string) ([]workflow.Execution, error) {
	query := `SELECT record FROM workflow_executions ORDER BY seq ASC`
	var args []any
	if contentID != "" {
		query = `SELECT record FROM workflow_executions WHERE content_id = $1 ORDER BY seq ASC`
		args = append(args, contentID)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	out := []workflow.Execution{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		var exec workflow.Execution
		if err := json.Unmarshal(doc, &exec); err != nil {
			return nil, fmt.Errorf("decode execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// SaveRole inserts or replaces a role.
func (s *Store) SaveRole(ctx context.Context, role permission.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO roles (id, name, permissions) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, permissions = EXCLUDED.permissions
	`, role.ID, role.Name, perms)
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	return nil
}

// GetRoles returns roles in the order of ids, skipping unknown ids.
func (s *Store) GetRoles(ctx context.Context, ids []string) ([]permission.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, permissions FROM roles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]permission.Role, len(ids))
	for rows.Next() {
		var role permission.Role
		var perms []byte
		if err := rows.Scan(&role.ID, &role.Name, &perms); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", role.ID, err)
		}
		byID[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	roles := make([]permission.Role, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// ListRoles returns every role ordered by id.
func (s *Store) ListRoles(ctx context.Context) ([]permission.Role, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, permissions FROM roles ORDER BY id COLLATE "C" ASC`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []permission.Role{}
	for rows.Next() {
		var role permission.Role
		var perms []byte
		if err := rows.Scan(&role.ID, &role.Name, &perms); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", role.ID, err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// SaveUser inserts or replaces a user.
func (s *Store) SaveUser(ctx context.Context, user permission.User) error {
	ids := user.RoleIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO users (id, role_ids) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role_ids = EXCLUDED.role_ids
	`, user.ID, raw)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUser returns the user with id, or repository.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (permission.User, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT role_ids FROM users WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return permission.User{}, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return permission.User{}, fmt.Errorf("get user: %w", err)
	}
	user := permission.User{ID: id}
	if err := json.Unmarshal(raw, &user.RoleIDs); err != nil {
		return permission.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return user, nil
}

// ClaimKey records an idempotency key if absent, in a single statement.
func (s *Store) ClaimKey(ctx context.Context, key string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO idempotency_keys (key, created_at) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, at)
	if err != nil {
		return false, fmt.Errorf("claim key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SaveFieldPolicy inserts or replaces a field policy.
func (s *Store) SaveFieldPolicy(ctx context.Context, p sensitivity.FieldPolicy) error {
	if !p.Action.Valid() {
		return fmt.Errorf("save field policy: unknown action %q", p.Action)
	}
	roles := p.AllowedRoles
	if roles == nil {
		roles = []string{}
	}
	raw, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("save field policy: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO field_policies (content_type, field_name, action, placeholder, allowed_roles)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_type, field_name) DO UPDATE SET
			action = EXCLUDED.action,
			placeholder = EXCLUDED.placeholder,
			allowed_roles = EXCLUDED.allowed_roles
	`, p.ContentType, p.FieldName, string(p.Action), p.Placeholder, raw)
	if err != nil {
		return fmt.Errorf("save field policy: %w", err)
	}
	return nil
}

// FieldPolicies returns the policies of contentType ordered by field name.
func (s *Store) FieldPolicies(ctx context.Context, contentType string) ([]sensitivity.FieldPolicy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT field_name, action, placeholder, allowed_roles
		FROM field_policies
		WHERE content_type = $1
		ORDER BY field_name COLLATE "C" ASC
	`, contentType)
	if err != nil {
		return nil, fmt.Errorf("query field policies: %w", err)
	}
	defer rows.Close()

	out := []sensitivity.FieldPolicy{}
	for rows.Next() {
		p := sensitivity.FieldPolicy{ContentType: contentType}
		var action string
		var roles []byte
		if err := rows.Scan(&p.FieldName, &action, &p.Placeholder, &roles); err != nil {
			return nil, fmt.Errorf("scan field policy: %w", err)
		}
		p.Action = sensitivity.FieldAction(action)
		if err := json.Unmarshal(roles, &p.AllowedRoles); err != nil {
			return nil, fmt.Errorf("decode field policy %s.%s: %w", contentType, p.FieldName, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodeContent(doc []byte) (*content.Content, error) {
	var c content.Content
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if c.Data == nil {
		c.Data = content.Data{}
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
