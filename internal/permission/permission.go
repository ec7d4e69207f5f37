// Package permission decides whether a user may perform an action on a
// content type.
//
// Roles carry one ContentTypePermission per content type they address, with a
// rule per action. When a user holds several roles, every rule that addresses
// the requested (content type, action) must allow it: a permissive role can
// never override a restrictive one. A user whose roles do not address the
// pair at all is denied.
package permission

import (
	"context"
	"fmt"

	"github.com/roach88/contentflow/internal/condition"
	"github.com/roach88/contentflow/internal/content"
)

// Action is one of the four content operations a rule can govern.
type Action string

const (
	ActionCreate Action = "Create"
	ActionRead   Action = "Read"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// ParseAction converts a string to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Rule governs one action on one content type.
type Rule struct {
	Enabled    bool          `json:"enabled" yaml:"enabled"`
	Conditions condition.Set `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ContentTypePermission holds a role's rules for a single content type.
type ContentTypePermission struct {
	ContentTypeSlug string `json:"content_type_slug" yaml:"content_type_slug"`
	Create          Rule   `json:"create" yaml:"create"`
	Read            Rule   `json:"read" yaml:"read"`
	Update          Rule   `json:"update" yaml:"update"`
	Delete          Rule   `json:"delete" yaml:"delete"`
}

// RuleFor returns the rule governing a.
func (p ContentTypePermission) RuleFor(a Action) (Rule, bool) {
	switch a {
	case ActionCreate:
		return p.Create, true
	case ActionRead:
		return p.Read, true
	case ActionUpdate:
		return p.Update, true
	case ActionDelete:
		return p.Delete, true
	}
	return Rule{}, false
}

// Role is a named bundle of content type permissions.
type Role struct {
	ID          string                  `json:"id" yaml:"id"`
	Name        string                  `json:"name" yaml:"name"`
	Permissions []ContentTypePermission `json:"permissions" yaml:"permissions"`
}

// User is an acting principal.
type User struct {
	ID      string   `json:"id" yaml:"id"`
	RoleIDs []string `json:"role_ids" yaml:"role_ids"`
}

// Directory loads roles by id. Ids with no role are skipped.
type Directory interface {
	GetRoles(ctx context.Context, ids []string) ([]Role, error)
}

// Checker is the capability shared by Resolver and CachingResolver.
type Checker interface {
	CanPerformAction(ctx context.Context, user User, contentType string, action Action, c *content.Content) (bool, error)
}

// DefaultPrivilegedRole is the role name that bypasses rule evaluation.
const DefaultPrivilegedRole = "Admin"

// Resolver evaluates role rules with most-restrictive-wins aggregation.
type Resolver struct {
	dir        Directory
	privileged string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrivilegedRole sets the role name that always allows.
// An empty name disables the bypass.
func WithPrivilegedRole(name string) Option {
	return func(r *Resolver) {
		r.privileged = name
	}
}

// NewResolver creates a Resolver backed by dir.
func NewResolver(dir Directory, opts ...Option) *Resolver {
	r := &Resolver{dir: dir, privileged: DefaultPrivilegedRole}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CanPerformAction reports whether user may perform action on contentType.
//
// When c is non-nil, rule conditions are evaluated against c.Data; rules with
// conditions are not evaluated at all when c is nil.
func (r *Resolver) CanPerformAction(ctx context.Context, user User, contentType string, action Action, c *content.Content) (bool, error) {
	if len(user.RoleIDs) == 0 {
		return false, nil
	}

	roles, err := r.dir.GetRoles(ctx, user.RoleIDs)
	if err != nil {
		return false, fmt.Errorf("load roles for %s: %w", user.ID, err)
	}

	var rules []Rule
	for _, role := range roles {
		if r.privileged != "" && role.Name == r.privileged {
			return true, nil
		}
		for _, p := range role.Permissions {
			if p.ContentTypeSlug != contentType {
				continue
			}
			if rule, ok := p.RuleFor(action); ok {
				rules = append(rules, rule)
			}
		}
	}

	if len(rules) == 0 {
		return false, nil
	}

	for _, rule := range rules {
		if !rule.Enabled {
			return false, nil
		}
		if c != nil && len(rule.Conditions) > 0 {
			if !condition.Evaluate(rule.Conditions, c.Data, user.ID) {
				return false, nil
			}
		}
	}
	return true, nil
}
