// Package repository defines the persistence contracts shared by the SQLite
// and PostgreSQL backends.
package repository

import (
	"context"
	"errors"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/idempotency"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/sensitivity"
	"github.com/roach88/contentflow/internal/template"
	"github.com/roach88/contentflow/internal/workflow"
)

// ErrNotFound is returned when a workflow, user or role does not exist.
// Missing content streams are reported as content NOT_FOUND errors instead.
var ErrNotFound = errors.New("repository: not found")

// ContentStore persists event streams and the latest state of each item.
type ContentStore interface {
	content.EventStore
	template.Sampler

	// ListContent returns live items of a content type ordered by id.
	ListContent(ctx context.Context, contentType string) ([]*content.Content, error)
}

// WorkflowStore persists workflow definitions and execution records.
// WorkflowsFor returns definitions in creation order; re-saving a
// definition keeps its position.
type WorkflowStore interface {
	workflow.Source
	workflow.Recorder

	SaveWorkflow(ctx context.Context, def workflow.Definition) error
	GetWorkflow(ctx context.Context, id string) (workflow.Definition, error)
	ListWorkflows(ctx context.Context) ([]workflow.Definition, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListExecutions(ctx context.Context, contentID string) ([]workflow.Execution, error)
}

// AccessStore persists roles and users.
type AccessStore interface {
	permission.Directory

	SaveRole(ctx context.Context, role permission.Role) error
	ListRoles(ctx context.Context) ([]permission.Role, error)
	SaveUser(ctx context.Context, user permission.User) error
	GetUser(ctx context.Context, id string) (permission.User, error)
}

// PolicyStore persists field-level sensitivity policies.
type PolicyStore interface {
	sensitivity.PolicySource

	SaveFieldPolicy(ctx context.Context, p sensitivity.FieldPolicy) error
}

// Repository is everything the content service needs from storage.
type Repository interface {
	ContentStore
	WorkflowStore
	AccessStore
	PolicyStore
	idempotency.KeyStore

	Close() error
}
