package harness

// Trace event kinds.
const (
	EventOperation = "operation"
	EventAction    = "action"
	EventMessage   = "message"
)

// OutcomeOK is the outcome of a successful operation or action.
const OutcomeOK = "ok"

// TraceEvent is one entry of a scenario trace.
//
// Operation events record a flow step and its outcome. Action events record
// one workflow action result; nested results follow their parent. Message
// events record an email or SMS handed to a notifier.
type TraceEvent struct {
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	ContentID string            `json:"content_id,omitempty"`
	Version   int64             `json:"version,omitempty"`
	Status    string            `json:"status,omitempty"`
	Workflow  string            `json:"workflow,omitempty"`
	Outcome   string            `json:"outcome"`
	Params    map[string]string `json:"params,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step matched its expectation and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains operations, actions and messages in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Aliases maps each bound alias to the content id it names.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Aliases: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Actions returns the action events of the trace.
func (r *Result) Actions() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventAction {
			out = append(out, e)
		}
	}
	return out
}
