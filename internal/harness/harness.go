package harness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/schema"
	"github.com/roach88/contentflow/internal/service"
	"github.com/roach88/contentflow/internal/store"
	"github.com/roach88/contentflow/internal/testutil"
	"github.com/roach88/contentflow/internal/workflow"
)

// outcomeError is the outcome of a failure that carries no content error code.
const outcomeError = "ERROR"

// Harness is the test execution engine.
// It runs scenarios with a step clock and sequential ids.
type Harness struct {
	svc     *service.Service
	outbox  *outbox
	pending []workflow.Execution
	aliases map[string]string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Save seed, schemas and workflows
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions
// 5. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario.Schemas)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.runStep(ctx, i, step, result)
	}
	for k, v := range h.aliases {
		result.Aliases[k] = v
	}

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		Aliases: h.aliases,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(st *store.Store, schemas map[string]string) (*Harness, error) {
	clock := testutil.NewStepClock(testutil.DefaultEpoch, 0)
	box := &outbox{}
	h := &Harness{
		outbox:  box,
		aliases: make(map[string]string),
	}

	registry := action.NewDefaultRegistry(action.Dependencies{
		Mailer:     box,
		SMS:        box,
		HTTPClient: &http.Client{Transport: box},
		Store:      st,
		IDs:        testutil.NewSequenceGenerator("task"),
		Now:        clock.Now,
	})
	engine := workflow.NewEngine(st, registry,
		workflow.WithRecorder(recorder{next: st, h: h}),
		workflow.WithIDGenerator(testutil.NewSequenceGenerator("exec")),
		workflow.WithClock(clock.Now),
	)

	opts := []service.Option{
		service.WithIDGenerator(testutil.NewSequenceGenerator("content")),
		service.WithClock(clock.Now),
	}
	if len(schemas) > 0 {
		v := schema.NewValidator()
		types := make([]string, 0, len(schemas))
		for t := range schemas {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			if err := v.Register(t, schemas[t]); err != nil {
				return nil, err
			}
		}
		opts = append(opts, service.WithValidator(v))
	}
	h.svc = service.New(st, engine, opts...)
	return h, nil
}

// setup saves the seed and the workflows. Setup must succeed.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	if err := h.svc.ApplySeed(ctx, scenario.Seed); err != nil {
		return err
	}
	for i, def := range scenario.Workflows {
		if def.ID == "" {
			return fmt.Errorf("workflows[%d]: id is required", i)
		}
		if _, err := h.svc.SaveWorkflow(ctx, def); err != nil {
			return fmt.Errorf("workflows[%d]: %w", i, err)
		}
	}
	return nil
}

// runStep executes one flow step, appends its trace events and checks its
// expectation. Step failures are recorded in result, never returned.
func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) {
	id := h.resolve(step.ID)
	count := -1
	var c *content.Content
	var err error

	switch step.Op {
	case OpCreate:
		c, err = h.svc.Create(ctx, service.CreateRequest{
			UserID:         step.User,
			ContentType:    step.ContentType,
			Data:           content.Data(step.Data),
			Status:         content.Status(step.Status),
			Sensitivity:    content.Sensitivity(step.Sensitivity),
			IdempotencyKey: step.IdempotencyKey,
		})
		if err == nil && step.As != "" {
			h.aliases[step.As] = c.ID
		}
	case OpUpdate:
		c, err = h.svc.Update(ctx, service.UpdateRequest{
			UserID:          step.User,
			ID:              id,
			Data:            content.Data(step.Data),
			Status:          content.Status(step.Status),
			ExpectedVersion: step.Version,
			IdempotencyKey:  step.IdempotencyKey,
		})
	case OpRollback:
		c, err = h.svc.Rollback(ctx, service.RollbackRequest{
			UserID:         step.User,
			ID:             id,
			TargetVersion:  step.Version,
			IdempotencyKey: step.IdempotencyKey,
		})
	case OpDelete:
		err = h.svc.Delete(ctx, service.DeleteRequest{
			UserID:         step.User,
			ID:             id,
			IdempotencyKey: step.IdempotencyKey,
		})
	case OpGet:
		c, err = h.svc.Get(ctx, step.User, id)
	case OpGetVersion:
		c, err = h.svc.GetVersion(ctx, step.User, id, step.Version)
	case OpHistory:
		var envs []content.Envelope
		envs, err = h.svc.History(ctx, step.User, id)
		count = len(envs)
	case OpList:
		var items []*content.Content
		items, err = h.svc.List(ctx, step.User, step.ContentType)
		count = len(items)
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}

	event := TraceEvent{
		Type:      EventOperation,
		Name:      step.Op,
		ContentID: id,
		Outcome:   OutcomeOK,
	}
	if c != nil {
		event.ContentID = c.ID
		event.Version = c.Version
		event.Status = string(c.Status)
	}
	if err != nil {
		event.Outcome = outcomeOf(err)
	}
	result.Trace = append(result.Trace, event)
	h.flush(result)

	checkStep(index, step, c, count, err, result)
}

// flush moves the executions and messages produced by the last step into
// the trace: actions first, then messages.
func (h *Harness) flush(result *Result) {
	for _, exec := range h.pending {
		for _, r := range exec.Results {
			appendAction(result, exec, r)
		}
	}
	h.pending = nil
	result.Trace = append(result.Trace, h.outbox.drain()...)
}

func appendAction(result *Result, exec workflow.Execution, r action.Result) {
	outcome := OutcomeOK
	if !r.Success {
		outcome = r.Code
	}
	result.Trace = append(result.Trace, TraceEvent{
		Type:      EventAction,
		Name:      r.Type,
		ContentID: exec.ContentID,
		Workflow:  exec.WorkflowID,
		Outcome:   outcome,
		Params:    r.Parameters,
	})
	for _, n := range r.Nested {
		appendAction(result, exec, n)
	}
}

// resolve maps $alias references to content ids.
func (h *Harness) resolve(ref string) string {
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		return h.aliases[name]
	}
	return ref
}

func outcomeOf(err error) string {
	if code := content.CodeOf(err); code != "" {
		return string(code)
	}
	return outcomeError
}

// checkStep compares the outcome of a step with its expect clause.
func checkStep(index int, step Step, c *content.Content, count int, err error, result *Result) {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	prefix := fmt.Sprintf("flow[%d] %s", index, step.Op)

	if exp.Error != "" {
		if err == nil {
			result.AddError(fmt.Sprintf("%s: expected error %s, got success", prefix, exp.Error))
		} else if got := outcomeOf(err); got != exp.Error {
			result.AddError(fmt.Sprintf("%s: expected error %s, got %s (%v)", prefix, exp.Error, got, err))
		}
		return
	}
	if err != nil {
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
		return
	}

	needsContent := exp.Version != 0 || exp.Status != "" || exp.Data != nil || len(exp.Absent) > 0
	if needsContent && c == nil {
		result.AddError(fmt.Sprintf("%s: no content returned", prefix))
		return
	}
	if exp.Version != 0 && c.Version != exp.Version {
		result.AddError(fmt.Sprintf("%s: expected version %d, got %d", prefix, exp.Version, c.Version))
	}
	if exp.Status != "" && string(c.Status) != exp.Status {
		result.AddError(fmt.Sprintf("%s: expected status %s, got %s", prefix, exp.Status, c.Status))
	}
	if exp.Data != nil && !matchData(c.Data, exp.Data) {
		result.AddError(fmt.Sprintf("%s: expected data %v, got %v", prefix, exp.Data, c.Data))
	}
	for _, field := range exp.Absent {
		if _, ok := c.Data[field]; ok {
			result.AddError(fmt.Sprintf("%s: expected field %s to be absent", prefix, field))
		}
	}
	if exp.Count != nil && count != *exp.Count {
		result.AddError(fmt.Sprintf("%s: expected %d items, got %d", prefix, *exp.Count, count))
	}
}

// recorder captures executions for the trace before persisting them.
type recorder struct {
	next workflow.Recorder
	h    *Harness
}

func (r recorder) RecordExecution(ctx context.Context, exec workflow.Execution) error {
	r.h.pending = append(r.h.pending, exec)
	return r.next.RecordExecution(ctx, exec)
}

// outbox stands in for every notifier. Emails and SMS are accepted. Webhook
// calls never leave the process: they are answered 200, or 500 when the URL
// path ends in /fail.
type outbox struct {
	messages []TraceEvent
}

func (o *outbox) Send(_ context.Context, msg action.EmailMessage) error {
	params := map[string]string{
		"To":      strings.Join(msg.To, ", "),
		"Subject": msg.Subject,
		"Body":    msg.Body,
	}
	if msg.From != "" {
		params["From"] = msg.From
	}
	o.add("email", OutcomeOK, params)
	return nil
}

func (o *outbox) SendSMS(_ context.Context, to, message string) error {
	o.add("sms", OutcomeOK, map[string]string{"To": to, "Message": message})
	return nil
}

func (o *outbox) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		req.Body.Close()
	}
	status := http.StatusOK
	if strings.HasSuffix(req.URL.Path, "/fail") {
		status = http.StatusInternalServerError
	}
	o.add("webhook", fmt.Sprint(status), map[string]string{
		"Method": req.Method,
		"Url":    req.URL.String(),
	})
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func (o *outbox) add(channel, outcome string, params map[string]string) {
	o.messages = append(o.messages, TraceEvent{
		Type:    EventMessage,
		Name:    channel,
		Outcome: outcome,
		Params:  params,
	})
}

func (o *outbox) drain() []TraceEvent {
	out := o.messages
	o.messages = nil
	return out
}
