// Package sensitivity redacts content on the read path according to the
// item's classification and per-field policies.
package sensitivity

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/contentflow/internal/content"
)

// FieldAction is what a policy does to a field the caller may not see.
type FieldAction string

const (
	ActionMask   FieldAction = "Mask"
	ActionRemove FieldAction = "Remove"
)

// Valid reports whether a is a known field action.
func (a FieldAction) Valid() bool {
	return a == ActionMask || a == ActionRemove
}

// FieldPolicy restricts one field of one content type.
type FieldPolicy struct {
	ContentType  string      `json:"content_type" yaml:"content_type"`
	FieldName    string      `json:"field_name" yaml:"field_name"`
	Action       FieldAction `json:"action" yaml:"action"`
	Placeholder  string      `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	AllowedRoles []string    `json:"allowed_roles,omitempty" yaml:"allowed_roles,omitempty"`
}

// PolicySource lists the field policies of a content type.
type PolicySource interface {
	FieldPolicies(ctx context.Context, contentType string) ([]FieldPolicy, error)
}

const (
	DefaultHiddenContentType = "[hidden]"
	DefaultPlaceholder       = "***"
)

// Filter applies sensitivity rules for a caller's role names.
type Filter struct {
	policies    PolicySource
	privileged  []string
	hiddenType  string
	placeholder string
}

// Option configures a Filter.
type Option func(*Filter)

// WithPrivilegedRoles sets the role names that bypass filtering.
func WithPrivilegedRoles(names ...string) Option {
	return func(f *Filter) {
		f.privileged = names
	}
}

// WithHiddenContentType sets the content type reported for hidden items.
func WithHiddenContentType(s string) Option {
	return func(f *Filter) {
		f.hiddenType = s
	}
}

// WithPlaceholder sets the mask used when a policy has none.
func WithPlaceholder(s string) Option {
	return func(f *Filter) {
		f.placeholder = s
	}
}

// NewFilter creates a Filter. src may be nil when no field policies exist.
func NewFilter(src PolicySource, opts ...Option) *Filter {
	f := &Filter{
		policies:    src,
		privileged:  []string{"Admin"},
		hiddenType:  DefaultHiddenContentType,
		placeholder: DefaultPlaceholder,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Apply returns the view of c that a caller holding roles may see.
// c is never modified.
func (f *Filter) Apply(ctx context.Context, c *content.Content, roles []string) (*content.Content, error) {
	if c == nil {
		return nil, nil
	}
	out := c.Clone()
	if f.isPrivileged(roles) {
		return out, nil
	}

	if c.Sensitivity == content.SensitivityHidden {
		out.Data = content.Data{}
		out.ContentType = f.hiddenType
		return out, nil
	}

	var policies []FieldPolicy
	if f.policies != nil {
		var err error
		policies, err = f.policies.FieldPolicies(ctx, c.ContentType)
		if err != nil {
			return nil, fmt.Errorf("load field policies for %s: %w", c.ContentType, err)
		}
	}

	if c.Sensitivity == content.SensitivitySensitive && len(policies) == 0 {
		out.Data = content.Data{}
		return out, nil
	}

	for _, p := range policies {
		if _, ok := out.Data[p.FieldName]; !ok {
			continue
		}
		if hasAny(roles, p.AllowedRoles) {
			continue
		}
		switch p.Action {
		case ActionRemove:
			delete(out.Data, p.FieldName)
		default:
			ph := p.Placeholder
			if ph == "" {
				ph = f.placeholder
			}
			out.Data[p.FieldName] = ph
		}
	}
	return out, nil
}

func (f *Filter) isPrivileged(roles []string) bool {
	return hasAny(roles, f.privileged)
}

func hasAny(roles, allowed []string) bool {
	for _, r := range roles {
		if slices.Contains(allowed, r) {
			return true
		}
	}
	return false
}
