package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/condition"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/template"
)

// MaxNestingDepth bounds how deeply composite actions may dispatch children.
// Top-level actions are at depth 0; children run at most at this depth.
const MaxNestingDepth = 8

// canDispatch reports whether an action at depth may run children.
func canDispatch(depth int) bool {
	return depth < MaxNestingDepth
}

// Engine runs workflow definitions for content events.
type Engine struct {
	source   Source
	registry *action.Registry
	recorder Recorder
	ids      content.IDGenerator
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder persists every execution through r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithIDGenerator sets the generator for execution ids.
func WithIDGenerator(g content.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the time source for execution timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine reading definitions from source and
// dispatching through registry.
func NewEngine(source Source, registry *action.Registry, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		registry: registry,
		ids:      content.UUIDv7Generator{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the action registry the engine dispatches through.
func (e *Engine) Registry() *action.Registry {
	return e.registry
}

// ProcessEvent runs every definition matching (contentType, event) against c.
//
// Only a failure to load definitions is returned as an error. Action
// failures are recorded in the returned executions. c may be modified by
// write actions that target it.
func (e *Engine) ProcessEvent(ctx context.Context, contentType string, event TriggerEvent, c *content.Content) ([]Execution, error) {
	defs, err := e.source.WorkflowsFor(ctx, contentType, event)
	if err != nil {
		return nil, fmt.Errorf("load workflows for %s/%s: %w", contentType, event, err)
	}

	var execs []Execution
	for _, def := range defs {
		if !Matches(def, c) {
			slog.Debug("workflow conditions not met",
				"workflow_id", def.ID,
				"content_id", c.ID,
			)
			continue
		}
		exec := e.execute(ctx, def, event, c, false)
		execs = append(execs, exec)

		if e.recorder != nil {
			if err := e.recorder.RecordExecution(ctx, exec); err != nil {
				slog.Error("failed to record workflow execution",
					"workflow_id", def.ID,
					"content_id", c.ID,
					"error", err,
				)
			}
		}
	}
	return execs, nil
}

// DryRun runs def against sample without side effects. def need not be
// saved. The returned execution has Matched=false and no results when the
// definition's conditions do not hold for sample.
func (e *Engine) DryRun(ctx context.Context, def Definition, sample *content.Content) Execution {
	c := sample.Clone()
	if c == nil {
		c = &content.Content{Data: content.Data{}}
	}
	if c.ContentType == "" {
		c.ContentType = def.TriggerContentType
	}
	if !Matches(def, c) {
		now := e.now()
		return Execution{
			ID:           e.ids.Generate(),
			WorkflowID:   def.ID,
			WorkflowName: def.Name,
			ContentID:    c.ID,
			ContentType:  c.ContentType,
			Event:        def.TriggerEvent,
			DryRun:       true,
			StartedAt:    now,
			FinishedAt:   now,
			Results:      []action.Result{},
		}
	}
	return e.execute(ctx, def, def.TriggerEvent, c, true)
}

func (e *Engine) execute(ctx context.Context, def Definition, event TriggerEvent, c *content.Content, dryRun bool) Execution {
	exec := Execution{
		ID:           e.ids.Generate(),
		WorkflowID:   def.ID,
		WorkflowName: def.Name,
		ContentID:    c.ID,
		ContentType:  c.ContentType,
		Event:        event,
		DryRun:       dryRun,
		Matched:      true,
		StartedAt:    e.now(),
	}

	slog.Info("workflow triggered",
		"workflow_id", def.ID,
		"workflow", def.Name,
		"content_id", c.ID,
		"event", event,
		"dry_run", dryRun,
	)

	exec.Results = e.run(ctx, def.ID, def.Actions, c, dryRun, 0)
	exec.FinishedAt = e.now()

	slog.Info("workflow finished",
		"workflow_id", def.ID,
		"content_id", c.ID,
		"success", exec.Succeeded(),
		"duration", exec.FinishedAt.Sub(exec.StartedAt),
	)
	return exec
}

// run executes specs in order. Each action gets exactly one result.
func (e *Engine) run(ctx context.Context, workflowID string, specs []action.Spec, c *content.Content, dryRun bool, depth int) []action.Result {
	results := make([]action.Result, 0, len(specs))
	for _, spec := range specs {
		results = append(results, e.runOne(ctx, workflowID, spec, c, dryRun, depth))
	}
	return results
}

func (e *Engine) runOne(ctx context.Context, workflowID string, spec action.Spec, c *content.Content, dryRun bool, depth int) action.Result {
	start := e.now()
	res := action.Result{Type: spec.Type}

	if err := ctx.Err(); err != nil {
		res.Code = action.CodeCancelled
		res.Message = err.Error()
		return res
	}

	h, ok := e.registry.Lookup(spec.Type)
	if !ok {
		slog.Warn("unknown action type, skipping",
			"workflow_id", workflowID,
			"content_id", c.ID,
			"action", spec.Type,
		)
		res.Skipped = true
		res.Code = action.CodeUnknownActionType
		res.Message = fmt.Sprintf("no handler registered for %q", spec.Type)
		res.Parameters = spec.Parameters
		return res
	}

	meta := h.Metadata()
	res.Type = meta.Type
	res.Parameters = template.ResolveAll(spec.Parameters, c, meta.Deferred...)

	if dryRun && meta.Effect != action.EffectNone {
		res.Skipped = true
		res.Code = action.CodeDryRunSkipped
		res.Message = fmt.Sprintf("skipped (dry-run, %s effect)", meta.Effect)
		return res
	}

	var dispatch action.DispatchFunc
	if canDispatch(depth) {
		dispatch = func(ctx context.Context, children []action.Spec, c *content.Content) []action.Result {
			return e.run(ctx, workflowID, children, c, dryRun, depth+1)
		}
	}
	inv := action.NewInvocation(res.Parameters, c, dispatch)

	err := invoke(ctx, h, inv)
	res.Duration = e.now().Sub(start)
	res.Nested = inv.Nested()
	res.Message = inv.Message()

	if err != nil {
		res.Code = action.CodeExecutionFailed
		res.Message = err.Error()
		slog.Error("workflow action failed",
			"workflow_id", workflowID,
			"content_id", c.ID,
			"action", res.Type,
			"parameters", res.Parameters,
			"duration", res.Duration,
			"error", err,
		)
		return res
	}

	res.Success = true
	slog.Info("workflow action executed",
		"workflow_id", workflowID,
		"content_id", c.ID,
		"action", res.Type,
		"parameters", res.Parameters,
		"duration", res.Duration,
	)
	return res
}

// invoke calls h, converting a panic into an error.
func invoke(ctx context.Context, h action.Handler, inv *action.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Execute(ctx, inv)
}

// Matches reports whether every condition of def holds for c. Conditions
// compare the formatted data value with the formatted literal; a missing
// field never matches.
func Matches(def Definition, c *content.Content) bool {
	for field, want := range def.Conditions {
		got, ok := c.Data.Lookup(field)
		if !ok {
			return false
		}
		if condition.Normalize(content.FormatValue(got)) != condition.Normalize(content.FormatValue(want)) {
			return false
		}
	}
	return true
}
