package content

import "fmt"

// Apply returns the state that results from applying env to prior.
//
// prior is never modified. A Created event requires a nil prior; every other
// event requires a live (non-deleted) prior whose version is exactly one
// below the envelope's.
func Apply(prior *Content, env Envelope) (*Content, error) {
	if env.Event == nil {
		return nil, fmt.Errorf("apply: envelope %s@%d has no event", env.ContentID, env.Version)
	}

	if created, ok := env.Event.(Created); ok {
		if prior != nil {
			return nil, fmt.Errorf("apply: %s already exists", created.ID)
		}
		if env.Version != 1 {
			return nil, fmt.Errorf("apply: ContentCreated must be version 1, got %d", env.Version)
		}
		sens := created.Sensitivity
		if sens == "" {
			sens = SensitivityPublic
		}
		return &Content{
			ID:             created.ID,
			ContentType:    created.ContentType,
			Data:           created.Data.Clone(),
			Status:         created.Status,
			Sensitivity:    sens,
			CreatedAt:      env.OccurredAt,
			UpdatedAt:      env.OccurredAt,
			LastModifiedBy: created.CreatedBy,
			Version:        env.Version,
		}, nil
	}

	if prior == nil {
		return nil, fmt.Errorf("apply: %s on empty stream %s", env.Type(), env.ContentID)
	}
	if prior.Deleted {
		return nil, fmt.Errorf("apply: %s on deleted content %s", env.Type(), prior.ID)
	}
	if env.Version != prior.Version+1 {
		return nil, fmt.Errorf("apply: %s version %d does not follow %d", env.Type(), env.Version, prior.Version)
	}

	next := prior.Clone()
	next.Version = env.Version
	next.UpdatedAt = env.OccurredAt

	switch ev := env.Event.(type) {
	case Updated:
		next.Data = ev.Data.Clone()
		next.LastModifiedBy = ev.UpdatedBy
	case StatusChanged:
		next.Status = ev.NewStatus
		next.LastModifiedBy = ev.UpdatedBy
	case Deleted:
		next.Deleted = true
		next.LastModifiedBy = ev.DeletedBy
	default:
		return nil, fmt.Errorf("apply: unsupported event %T", env.Event)
	}
	return next, nil
}

// Replay folds a complete stream into its current state.
// An empty stream yields (nil, nil).
func Replay(envs []Envelope) (*Content, error) {
	var state *Content
	for _, env := range envs {
		next, err := Apply(state, env)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// ReplayTo folds the stream up to and including version.
// Returns nil if the stream does not reach that version.
func ReplayTo(envs []Envelope, version int64) (*Content, error) {
	if version < 1 {
		return nil, nil
	}
	var state *Content
	for _, env := range envs {
		if env.Version > version {
			break
		}
		next, err := Apply(state, env)
		if err != nil {
			return nil, err
		}
		state = next
	}
	if state == nil || state.Version != version {
		return nil, nil
	}
	return state, nil
}
