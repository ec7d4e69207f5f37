package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/template"
	"github.com/roach88/contentflow/internal/workflow"
)

// InvalidWorkflowError reports every problem found in a definition.
type InvalidWorkflowError struct {
	WorkflowID string
	Errors     []workflow.ValidationError
}

func (e *InvalidWorkflowError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("workflow %q is invalid: %s", e.WorkflowID, strings.Join(msgs, "; "))
}

// ValidateWorkflow checks def against the registry without saving it.
func (s *Service) ValidateWorkflow(def workflow.Definition) []workflow.ValidationError {
	return workflow.Validate(def, s.engine.Registry())
}

// SaveWorkflow validates and stores def, assigning an id when it has none.
// Re-saving an existing id keeps its position in the match order.
func (s *Service) SaveWorkflow(ctx context.Context, def workflow.Definition) (workflow.Definition, error) {
	if errs := s.ValidateWorkflow(def); len(errs) > 0 {
		return workflow.Definition{}, &InvalidWorkflowError{WorkflowID: def.ID, Errors: errs}
	}
	if def.ID == "" {
		def.ID = s.ids.Generate()
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = s.now()
	}
	if err := s.repo.SaveWorkflow(ctx, def); err != nil {
		return workflow.Definition{}, err
	}
	return s.repo.GetWorkflow(ctx, def.ID)
}

// GetWorkflow returns a stored definition.
func (s *Service) GetWorkflow(ctx context.Context, id string) (workflow.Definition, error) {
	return s.repo.GetWorkflow(ctx, id)
}

// ListWorkflows returns every stored definition in match order.
func (s *Service) ListWorkflows(ctx context.Context) ([]workflow.Definition, error) {
	return s.repo.ListWorkflows(ctx)
}

// DeleteWorkflow removes a stored definition.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return s.repo.DeleteWorkflow(ctx, id)
}

// DryRun executes def against sample without effects. A nil sample is
// replaced by a stored item of the trigger content type, if there is one.
func (s *Service) DryRun(ctx context.Context, def workflow.Definition, sample *content.Content) (workflow.Execution, error) {
	if errs := s.ValidateWorkflow(def); len(errs) > 0 {
		return workflow.Execution{}, &InvalidWorkflowError{WorkflowID: def.ID, Errors: errs}
	}
	if sample == nil {
		stored, err := s.repo.SampleContent(ctx, def.TriggerContentType)
		if err != nil {
			return workflow.Execution{}, err
		}
		sample = stored
	}
	return s.engine.DryRun(ctx, def, sample), nil
}

// Executions returns the recorded workflow runs for contentID, or all of
// them when contentID is empty.
func (s *Service) Executions(ctx context.Context, contentID string) ([]workflow.Execution, error) {
	return s.repo.ListExecutions(ctx, contentID)
}

// Actions returns the metadata of every registered action type.
func (s *Service) Actions() []action.Metadata {
	return s.engine.Registry().Catalog()
}

// Variables returns the template variables available for contentType.
func (s *Service) Variables(ctx context.Context, contentType string) ([]template.Variable, error) {
	return template.NewResolver(s.repo).Variables(ctx, contentType)
}
