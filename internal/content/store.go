package content

import "context"

// EventStore is the persistence contract for content streams.
//
// AppendEvents must be atomic: either every envelope is stored together with
// the resulting state, or nothing is. When the stream's current version is
// not expected, it returns a VERSION_CONFLICT *Error and stores nothing.
type EventStore interface {
	LoadEvents(ctx context.Context, id string) ([]Envelope, error)
	AppendEvents(ctx context.Context, id string, expected int64, envs []Envelope, state *Content) error
}

// Load replays the stream for id. A missing or deleted stream is NOT_FOUND.
func Load(ctx context.Context, s EventStore, id string) (*Content, []Envelope, error) {
	envs, err := s.LoadEvents(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if len(envs) == 0 {
		return nil, nil, NewNotFound(id)
	}
	state, err := Replay(envs)
	if err != nil {
		return nil, nil, err
	}
	if state == nil || state.Deleted {
		return nil, envs, NewNotFound(id)
	}
	return state, envs, nil
}

// Commit applies envs on top of prior and appends them with prior's version
// as the precondition. It returns the resulting state.
func Commit(ctx context.Context, s EventStore, prior *Content, envs []Envelope) (*Content, error) {
	var expected int64
	if prior != nil {
		expected = prior.Version
	}
	state := prior
	for _, env := range envs {
		next, err := Apply(state, env)
		if err != nil {
			return nil, err
		}
		state = next
	}
	if state == nil {
		return nil, nil
	}
	if err := s.AppendEvents(ctx, state.ID, expected, envs, state); err != nil {
		return nil, err
	}
	return state, nil
}
