package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/contentflow/internal/action"
)

// TriggerEvent is the content event a definition listens for.
type TriggerEvent string

const (
	EventCreated   TriggerEvent = "Created"
	EventUpdated   TriggerEvent = "Updated"
	EventDeleted   TriggerEvent = "Deleted"
	EventPublished TriggerEvent = "Published"
)

// Valid reports whether e is a known trigger event.
func (e TriggerEvent) Valid() bool {
	switch e {
	case EventCreated, EventUpdated, EventDeleted, EventPublished:
		return true
	}
	return false
}

// ParseTriggerEvent converts a string to a TriggerEvent.
func ParseTriggerEvent(s string) (TriggerEvent, error) {
	e := TriggerEvent(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown trigger event %q", s)
	}
	return e, nil
}

// Definition is a stored workflow.
type Definition struct {
	ID                 string         `json:"id" yaml:"id,omitempty"`
	Name               string         `json:"name" yaml:"name"`
	TriggerContentType string         `json:"trigger_content_type" yaml:"trigger_content_type"`
	TriggerEvent       TriggerEvent   `json:"trigger_event" yaml:"trigger_event"`
	Conditions         map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Actions            []action.Spec  `json:"actions" yaml:"actions"`
	CreatedAt          time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Source returns the definitions triggered by (contentType, event), in the
// order they must run.
type Source interface {
	WorkflowsFor(ctx context.Context, contentType string, event TriggerEvent) ([]Definition, error)
}

// Recorder persists execution records.
type Recorder interface {
	RecordExecution(ctx context.Context, exec Execution) error
}

// Execution is the log of one definition run against one content event.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	ContentID    string          `json:"content_id"`
	ContentType  string          `json:"content_type"`
	Event        TriggerEvent    `json:"event"`
	DryRun       bool            `json:"dry_run,omitempty"`
	Matched      bool            `json:"matched"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Results      []action.Result `json:"results"`
}

// Succeeded reports whether no action (or nested action) failed.
func (x Execution) Succeeded() bool {
	for _, r := range x.Results {
		if r.Failed() {
			return false
		}
	}
	return true
}
