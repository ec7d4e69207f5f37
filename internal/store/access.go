package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/sensitivity"
)

// SaveRole inserts or replaces a role by id.
func (s *Store) SaveRole(ctx context.Context, role permission.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, permissions) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, permissions = excluded.permissions
	`, role.ID, role.Name, string(perms))
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	return nil
}

// GetRoles returns the roles with the given ids, in the order of ids.
// Unknown ids are skipped.
func (s *Store) GetRoles(ctx context.Context, ids []string) ([]permission.Role, error) {
	roles := make([]permission.Role, 0, len(ids))
	for _, id := range ids {
		var name, perms string
		err := s.db.QueryRowContext(ctx, `SELECT name, permissions FROM roles WHERE id = ?`, id).Scan(&name, &perms)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get role %s: %w", id, err)
		}
		role := permission.Role{ID: id, Name: name}
		if err := json.Unmarshal([]byte(perms), &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", id, err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// ListRoles returns every role ordered by id.
func (s *Store) ListRoles(ctx context.Context) ([]permission.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, permissions FROM roles ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []permission.Role{}
	for rows.Next() {
		var role permission.Role
		var perms string
		if err := rows.Scan(&role.ID, &role.Name, &perms); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if err := json.Unmarshal([]byte(perms), &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode role %s: %w", role.ID, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// SaveUser inserts or replaces a user by id.
func (s *Store) SaveUser(ctx context.Context, user permission.User) error {
	ids := user.RoleIDs
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, role_ids) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET role_ids = excluded.role_ids
	`, user.ID, string(raw))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// GetUser returns the user with id.
// Returns repository.ErrNotFound if it does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (permission.User, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT role_ids FROM users WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return permission.User{}, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return permission.User{}, fmt.Errorf("get user: %w", err)
	}
	user := permission.User{ID: id}
	if err := json.Unmarshal([]byte(raw), &user.RoleIDs); err != nil {
		return permission.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return user, nil
}

// ClaimKey records an idempotency key if it is not already present.
// Uses ON CONFLICT DO NOTHING so the check and insert are a single statement.
func (s *Store) ClaimKey(ctx context.Context, key string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, created_at) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, formatTime(at))
	if err != nil {
		return false, fmt.Errorf("claim key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim key: %w", err)
	}
	return n == 1, nil
}

// SaveFieldPolicy inserts or replaces the policy for (content type, field).
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_policies (content_type, field_name, action, placeholder, allowed_roles)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_type, field_name) DO UPDATE SET
			action = excluded.action,
			placeholder = excluded.placeholder,
			allowed_roles = excluded.allowed_roles
	`, p.ContentType, p.FieldName, string(p.Action), p.Placeholder, string(raw))
	if err != nil {
		return fmt.Errorf("save field policy: %w", err)
	}
	return nil
}

// FieldPolicies returns the policies of contentType ordered by field name.
func (s *Store) FieldPolicies(ctx context.Context, contentType string) ([]sensitivity.FieldPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_name, action, placeholder, allowed_roles
		FROM field_policies
		WHERE content_type = ?
		ORDER BY field_name COLLATE BINARY ASC
	`, contentType)
	if err != nil {
		return nil, fmt.Errorf("query field policies: %w", err)
	}
	defer rows.Close()

	out := []sensitivity.FieldPolicy{}
	for rows.Next() {
		p := sensitivity.FieldPolicy{ContentType: contentType}
		var action, roles string
		if err := rows.Scan(&p.FieldName, &action, &p.Placeholder, &roles); err != nil {
			return nil, fmt.Errorf("scan field policy: %w", err)
		}
		p.Action = sensitivity.FieldAction(action)
		if err := json.Unmarshal([]byte(roles), &p.AllowedRoles); err != nil {
			return nil, fmt.Errorf("decode field policy %s.%s: %w", contentType, p.FieldName, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field policies: %w", err)
	}
	return out, nil
}
