package service

import (
	"context"
	"log/slog"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/permission"
	"github.com/roach88/contentflow/internal/workflow"
)

// CreateRequest creates a content item.
type CreateRequest struct {
	UserID         string
	ContentType    string
	Data           content.Data
	Status         content.Status      // empty means Draft
	Sensitivity    content.Sensitivity // empty means Public
	IdempotencyKey string
}

// UpdateRequest replaces the data of an item and optionally its status.
type UpdateRequest struct {
	UserID string
	ID     string
	Data   content.Data
	// Status is left unchanged when empty.
	Status content.Status
	// ExpectedVersion is the version the caller last read. Zero skips the
	// check; the append itself is still guarded against concurrent writers.
	ExpectedVersion int64
	IdempotencyKey  string
}

// RollbackRequest restores the data an item had at TargetVersion.
type RollbackRequest struct {
	UserID         string
	ID             string
	TargetVersion  int64
	IdempotencyKey string
}

// DeleteRequest tombstones an item.
type DeleteRequest struct {
	UserID         string
	ID             string
	IdempotencyKey string
}

// Create appends a Created event for a new item and runs the Created
// workflows, followed by the Published workflows when it starts out published.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*content.Content, error) {
	if err := s.guard.Check(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	}
	p, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, req.ContentType, permission.ActionCreate, nil); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = content.StatusDraft
	}
	sens := req.Sensitivity
	if sens == "" {
		sens = content.SensitivityPublic
	}
	if err := checkEnums(req.ContentType, status, sens); err != nil {
		return nil, err
	}
	data := req.Data
	if data == nil {
		data = content.Data{}
	}
	if err := s.validate(req.ContentType, data); err != nil {
		return nil, err
	}

	id := s.ids.Generate()
	state, err := content.Commit(ctx, s.repo, nil, []content.Envelope{{
		ContentID:  id,
		Version:    1,
		OccurredAt: s.now(),
		Event: content.Created{
			ID:          id,
			ContentType: req.ContentType,
			Data:        data.Clone(),
			Status:      status,
			Sensitivity: sens,
			CreatedBy:   req.UserID,
		},
	}})
	if err != nil {
		return nil, err
	}

	slog.Info("content created",
		"content_id", id,
		"content_type", state.ContentType,
		"user_id", req.UserID,
	)

	published := state.Status == content.StatusPublished
	s.trigger(ctx, workflow.EventCreated, state)
	if published {
		s.trigger(ctx, workflow.EventPublished, state)
	}
	return state, nil
}

// Update replaces the data of an item. It appends Updated and, only when the
// status changes, StatusChanged after it. A transition into Published also
// runs the Published workflows after the Updated ones.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*content.Content, error) {
	if err := s.guard.Check(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	}
	p, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	current, _, err := content.Load(ctx, s.repo, req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, current.ContentType, permission.ActionUpdate, current); err != nil {
		return nil, err
	}
	return s.update(ctx, current, req.UserID, req.Data, req.Status, req.ExpectedVersion)
}

// Rollback appends a new version whose data equals the data at
// TargetVersion. History is never rewritten and the status is unchanged.
func (s *Service) Rollback(ctx context.Context, req RollbackRequest) (*content.Content, error) {
	if err := s.guard.Check(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	}
	p, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	current, envs, err := content.Load(ctx, s.repo, req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, current.ContentType, permission.ActionUpdate, current); err != nil {
		return nil, err
	}
	target, err := content.ReplayTo(envs, req.TargetVersion)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, &content.Error{
			Code:      content.ErrCodeNotFound,
			Message:   "version not found",
			ContentID: req.ID,
		}
	}

	slog.Info("rolling back content",
		"content_id", req.ID,
		"from_version", current.Version,
		"to_version", req.TargetVersion,
		"user_id", req.UserID,
	)
	return s.update(ctx, current, req.UserID, target.Data, "", current.Version)
}

func (s *Service) update(ctx context.Context, current *content.Content, userID string, data content.Data, status content.Status, expected int64) (*content.Content, error) {
	if expected != 0 && expected != current.Version {
		return nil, content.NewVersionConflict(current.ID, expected, current.Version)
	}
	if status == "" {
		status = current.Status
	}
	if err := checkEnums(current.ContentType, status, current.Sensitivity); err != nil {
		return nil, err
	}
	if data == nil {
		data = content.Data{}
	}
	if err := s.validate(current.ContentType, data); err != nil {
		return nil, err
	}

	at := s.now()
	envs := []content.Envelope{{
		ContentID:  current.ID,
		Version:    current.Version + 1,
		OccurredAt: at,
		Event:      content.Updated{ID: current.ID, Data: data.Clone(), UpdatedBy: userID},
	}}
	if status != current.Status {
		envs = append(envs, content.Envelope{
			ContentID:  current.ID,
			Version:    current.Version + 2,
			OccurredAt: at,
			Event:      content.StatusChanged{ID: current.ID, NewStatus: status, UpdatedBy: userID},
		})
	}

	state, err := content.Commit(ctx, s.repo, current, envs)
	if err != nil {
		return nil, err
	}

	slog.Info("content updated",
		"content_id", state.ID,
		"version", state.Version,
		"events", len(envs),
		"user_id", userID,
	)

	published := current.Status != content.StatusPublished && state.Status == content.StatusPublished
	s.trigger(ctx, workflow.EventUpdated, state)
	if published {
		s.trigger(ctx, workflow.EventPublished, state)
	}
	return state, nil
}

// Delete appends a Deleted event and runs the Deleted workflows against the
// last live state. Later reads and updates of the item fail with NOT_FOUND.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) error {
	if err := s.guard.Check(ctx, req.IdempotencyKey); err != nil {
		return err
	}
	p, err := s.resolveUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	current, _, err := content.Load(ctx, s.repo, req.ID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, p, current.ContentType, permission.ActionDelete, current); err != nil {
		return err
	}

	_, err = content.Commit(ctx, s.repo, current, []content.Envelope{{
		ContentID:  current.ID,
		Version:    current.Version + 1,
		OccurredAt: s.now(),
		Event:      content.Deleted{ID: current.ID, DeletedBy: req.UserID},
	}})
	if err != nil {
		return err
	}

	slog.Info("content deleted", "content_id", current.ID, "user_id", req.UserID)
	s.trigger(ctx, workflow.EventDeleted, current)
	return nil
}

// Get returns the current state of id as the caller may see it.
func (s *Service) Get(ctx context.Context, userID, id string) (*content.Content, error) {
	p, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, _, err := content.Load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, p, current)
}

// GetVersion returns id as it was at version.
func (s *Service) GetVersion(ctx context.Context, userID, id string, version int64) (*content.Content, error) {
	p, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, envs, err := content.Load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	past, err := content.ReplayTo(envs, version)
	if err != nil {
		return nil, err
	}
	if past == nil {
		return nil, &content.Error{Code: content.ErrCodeNotFound, Message: "version not found", ContentID: id}
	}
	return s.present(ctx, p, past)
}

// History returns the event stream of id. It requires the Read rule on the
// current state.
func (s *Service) History(ctx context.Context, userID, id string) ([]content.Envelope, error) {
	p, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	current, envs, err := content.Load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, current.ContentType, permission.ActionRead, current); err != nil {
		return nil, err
	}
	return envs, nil
}

// List returns the live items of contentType the caller may read, filtered
// for its roles. Items whose Read conditions fail are omitted.
func (s *Service) List(ctx context.Context, userID, contentType string) ([]*content.Content, error) {
	p, err := s.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, p, contentType, permission.ActionRead, nil); err != nil {
		return nil, err
	}
	items, err := s.repo.ListContent(ctx, contentType)
	if err != nil {
		return nil, err
	}

	out := make([]*content.Content, 0, len(items))
	for _, c := range items {
		view, err := s.present(ctx, p, c)
		if content.IsPermissionDenied(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) present(ctx context.Context, p principal, c *content.Content) (*content.Content, error) {
	if err := s.authorize(ctx, p, c.ContentType, permission.ActionRead, c); err != nil {
		return nil, err
	}
	return s.filter.Apply(ctx, c, p.roleNames())
}

// trigger runs the workflows for event. Failures never reach the caller.
func (s *Service) trigger(ctx context.Context, event workflow.TriggerEvent, c *content.Content) {
	if s.engine == nil {
		return
	}
	execs, err := s.engine.ProcessEvent(ctx, c.ContentType, event, c)
	if err != nil {
		slog.Error("workflow dispatch failed",
			"content_id", c.ID,
			"event", event,
			"error", err,
		)
		return
	}
	for _, exec := range execs {
		if !exec.Succeeded() {
			slog.Warn("workflow completed with failures",
				"workflow_id", exec.WorkflowID,
				"content_id", c.ID,
				"event", event,
			)
		}
	}
}

func checkEnums(contentType string, status content.Status, sens content.Sensitivity) error {
	var fields []content.FieldError
	if !status.Valid() {
		fields = append(fields, content.FieldError{Field: "status", Message: "unknown status " + string(status)})
	}
	if !sens.Valid() {
		fields = append(fields, content.FieldError{Field: "sensitivity", Message: "unknown sensitivity " + string(sens)})
	}
	if len(fields) > 0 {
		return content.NewValidationFailed(contentType, fields)
	}
	return nil
}
