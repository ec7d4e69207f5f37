// Package action defines workflow action handlers and the registry that
// dispatches them by type tag.
//
// A handler declares static Metadata (description, parameters, example and
// side-effect class) and implements Execute. Handlers report failure by
// returning an error; the workflow engine turns that into a Result and moves
// on to the next action.
package action

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// Effect classifies what a handler touches outside the workflow run.
type Effect string

const (
	// EffectNone handlers only inspect content and dispatch other actions.
	EffectNone Effect = "none"
	// EffectNotify handlers deliver messages to external systems.
	EffectNotify Effect = "notify"
	// EffectWrite handlers persist content directly.
	EffectWrite Effect = "write"
)

// SystemActor is recorded as the author of events written by actions.
const SystemActor = "system:workflow"

// Metadata is the static description of a handler, used for discovery and
// validation.
type Metadata struct {
	Type               string            `json:"type"`
	Description        string            `json:"description"`
	RequiredParameters []string          `json:"required_parameters"`
	OptionalParameters []string          `json:"optional_parameters"`
	Example            map[string]string `json:"example"`
	Effect             Effect            `json:"effect"`

	// Deferred parameters are passed to the handler without template
	// resolution.
	Deferred []string `json:"deferred,omitempty"`
}

// Handler executes one kind of action.
type Handler interface {
	Metadata() Metadata
	Execute(ctx context.Context, inv *Invocation) error
}

// Spec is one configured action: a type tag and its template parameters.
type Spec struct {
	Type       string            `json:"type" yaml:"type"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Result codes for actions that did not succeed.
const (
	CodeUnknownActionType = "UNKNOWN_ACTION_TYPE"
	CodeExecutionFailed   = "ACTION_EXECUTION_FAILED"
	CodeDryRunSkipped     = "DRY_RUN_SKIPPED"
	CodeCancelled         = "CANCELLED"
)

// Result records the outcome of one action.
type Result struct {
	Type       string            `json:"type"`
	Success    bool              `json:"success"`
	Skipped    bool              `json:"skipped,omitempty"`
	Code       string            `json:"code,omitempty"`
	Message    string            `json:"message,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Duration   time.Duration     `json:"duration"`
	Nested     []Result          `json:"nested,omitempty"`
}

// Failed reports whether r or any nested result failed.
func (r Result) Failed() bool {
	if !r.Success && !r.Skipped {
		return true
	}
	for _, n := range r.Nested {
		if n.Failed() {
			return true
		}
	}
	return false
}

// DispatchFunc runs child actions against c and returns their results.
type DispatchFunc func(ctx context.Context, specs []Spec, c *content.Content) []Result

// ErrNoDispatcher is returned by Dispatch when the invocation cannot run children.
var ErrNoDispatcher = errors.New("action: invocation has no dispatcher")

// Invocation carries the resolved parameters and triggering content into a
// handler.
type Invocation struct {
	Parameters map[string]string
	Content    *content.Content

	dispatch DispatchFunc
	nested   []Result
	message  string
}

// NewInvocation creates an invocation. dispatch may be nil when the handler
// never runs children.
func NewInvocation(params map[string]string, c *content.Content, dispatch DispatchFunc) *Invocation {
	if params == nil {
		params = map[string]string{}
	}
	return &Invocation{Parameters: params, Content: c, dispatch: dispatch}
}

// Param returns a parameter by name. An exact key wins; otherwise the first
// case-insensitive match is used.
func (inv *Invocation) Param(name string) string {
	v, _ := inv.Lookup(name)
	return v
}

// Lookup is Param with a presence flag.
func (inv *Invocation) Lookup(name string) (string, bool) {
	return lookupParam(inv.Parameters, name)
}

// Dispatch runs specs through the engine that invoked this handler.
func (inv *Invocation) Dispatch(ctx context.Context, specs []Spec) error {
	if inv.dispatch == nil {
		return ErrNoDispatcher
	}
	inv.nested = append(inv.nested, inv.dispatch(ctx, specs, inv.Content)...)
	return nil
}

// Nested returns results of children dispatched so far.
func (inv *Invocation) Nested() []Result {
	return inv.nested
}

// SetMessage attaches a human-readable outcome to the result.
func (inv *Invocation) SetMessage(msg string) {
	inv.message = msg
}

// Message returns the text set by SetMessage.
func (inv *Invocation) Message() string {
	return inv.message
}

func lookupParam(params map[string]string, name string) (string, bool) {
	if v, ok := params[name]; ok {
		return v, true
	}
	for k, v := range params {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// HasParam reports whether params carries name, ignoring case.
func HasParam(params map[string]string, name string) bool {
	_, ok := lookupParam(params, name)
	return ok
}
