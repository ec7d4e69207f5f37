// Package service orchestrates content mutations and reads.
//
// A mutation runs, in order: the idempotency check, the permission check,
// schema validation, the version precondition, the atomic append of the
// resulting events, and finally the workflow engine. Workflow failures are
// logged and recorded in execution logs but never returned to the caller.
//
// Reads check the Read rule against the stored content and then pass the
// item through the sensitivity filter for the caller's roles.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/idempotency"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/repository"
	"github.com/roach88/contentflow/internal/sensitivity"
	"github.com/roach88/contentflow/internal/workflow"
)

// SchemaValidator checks a data map against the schema of a content type.
// Implemented by *schema.Validator.
type SchemaValidator interface {
	Validate(contentType string, data content.Data) error
}

// Service is the entry point for every content operation.
type Service struct {
	repo      repository.Repository
	engine    *workflow.Engine
	checker   permission.Checker
	validator SchemaValidator
	guard     *idempotency.Guard
	filter    *sensitivity.Filter
	ids       content.IDGenerator
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithChecker replaces the permission checker. The default is an uncached
// permission.Resolver over the repository.
func WithChecker(c permission.Checker) Option {
	return func(s *Service) {
		s.checker = c
	}
}

// WithValidator sets the schema validator. Without one, any data is accepted.
func WithValidator(v SchemaValidator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithFilter replaces the sensitivity filter.
func WithFilter(f *sensitivity.Filter) Option {
	return func(s *Service) {
		s.filter = f
	}
}

// WithIDGenerator sets the generator for content and workflow ids.
func WithIDGenerator(g content.IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithClock sets the time source for event timestamps and idempotency keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a service over repo. engine receives every committed
// mutation and should read its definitions from the same repository.
func New(repo repository.Repository, engine *workflow.Engine, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		engine: engine,
		ids:    content.UUIDv7Generator{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.checker == nil {
		s.checker = permission.NewResolver(repo)
	}
	if s.filter == nil {
		s.filter = sensitivity.NewFilter(repo)
	}
	s.guard = idempotency.NewGuard(repo, s.now)
	return s
}

// Engine returns the workflow engine mutations are dispatched to.
func (s *Service) Engine() *workflow.Engine {
	return s.engine
}

// principal is an acting user with its roles loaded.
type principal struct {
	user  permission.User
	roles []permission.Role
}

func (p principal) roleNames() []string {
	names := make([]string, len(p.roles))
	for i, r := range p.roles {
		names[i] = r.Name
	}
	return names
}

// resolveUser loads userID. An unknown user acts with no roles, which the
// resolver denies for every action.
func (s *Service) resolveUser(ctx context.Context, userID string) (principal, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return principal{user: permission.User{ID: userID}}, nil
	}
	if err != nil {
		return principal{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	roles, err := s.repo.GetRoles(ctx, user.RoleIDs)
	if err != nil {
		return principal{}, fmt.Errorf("load roles of %s: %w", userID, err)
	}
	return principal{user: user, roles: roles}, nil
}

func (s *Service) authorize(ctx context.Context, p principal, contentType string, action permission.Action, c *content.Content) error {
	allowed, err := s.checker.CanPerformAction(ctx, p.user, contentType, action, c)
	if err != nil {
		return fmt.Errorf("check %s permission: %w", action, err)
	}
	if !allowed {
		return content.NewPermissionDenied(p.user.ID, contentType, string(action))
	}
	return nil
}

func (s *Service) validate(contentType string, data content.Data) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(contentType, data)
}
