package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/contentflow/internal/content"
)

// AppendEvents appends envs to the stream of id if its current version is
// expected, and replaces the stored state with state. Both happen in one
// transaction; on a version mismatch nothing is written.
func (s *Store) AppendEvents(ctx context.Context, id string, expected int64, envs []content.Envelope, state *content.Content) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("append events: marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: begin: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM content_events WHERE content_id = ?`, id,
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO content_events (content_id, version, event_type, payload, occurred_at)
			VALUES (?, ?, ?, ?, ?)
		`, id, env.Version, string(env.Type()), string(payload), formatTime(env.OccurredAt))
		if err != nil {
			if isUniqueViolation(err) {
				return content.NewVersionConflict(id, expected, env.Version)
			}
			return fmt.Errorf("append events: insert v%d: %w", env.Version, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contents (id, content_type, version, deleted, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			version = excluded.version,
			deleted = excluded.deleted,
			document = excluded.document,
			updated_at = excluded.updated_at
	`, id, state.ContentType, state.Version, state.Deleted, string(doc), formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("append events: write state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append events: commit: %w", err)
	}
	return nil
}

// LoadEvents returns the stream of id ordered by version.
//
// Returns an empty slice (not nil) if the stream does not exist.
func (s *Store) LoadEvents(ctx context.Context, id string) ([]content.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, event_type, payload, occurred_at
		FROM content_events
		WHERE content_id = ?
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
			payload    string
			occurredAt string
		)
		if err := rows.Scan(&version, &eventType, &payload, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := content.UnmarshalEvent(content.EventType(eventType), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("event %s@%d: %w", id, version, err)
		}
		at, err := parseTime(occurredAt)
		if err != nil {
			return nil, err
		}
		envs = append(envs, content.Envelope{ContentID: id, Version: version, Event: ev, OccurredAt: at})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return envs, nil
}

// SampleContent returns the most recently updated live item of contentType,
// or nil if there is none.
func (s *Store) SampleContent(ctx context.Context, contentType string) (*content.Content, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM contents
		WHERE content_type = ? AND deleted = 0
		ORDER BY updated_at DESC, id ASC
		LIMIT 1
	`, contentType).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sample content: %w", err)
	}
	return decodeContent(doc)
}

// ListContent returns live items of contentType ordered by id.
//
// Returns an empty slice (not nil) if none exist.
func (s *Store) ListContent(ctx context.Context, contentType string) ([]*content.Content, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM contents
		WHERE content_type = ? AND deleted = 0
		ORDER BY id COLLATE BINARY ASC
	`, contentType)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	out := []*content.Content{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		c, err := decodeContent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content: %w", err)
	}
	return out, nil
}

func decodeContent(doc string) (*content.Content, error) {
	var c content.Content
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if c.Data == nil {
		c.Data = content.Data{}
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
