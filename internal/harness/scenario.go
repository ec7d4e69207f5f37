package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/contentflow/internal/service"
	"github.com/roach88/contentflow/internal/workflow"
)

// Scenario defines a content conformance scenario.
// Scenarios drive the content service through a flow of operations and
// assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed holds the roles, users and field policies saved before the flow.
	Seed service.Seed `yaml:"seed"`

	// Schemas maps a content type to its CUE schema source.
	Schemas map[string]string `yaml:"schemas,omitempty"`

	// Workflows are saved in order before the flow runs.
	Workflows []workflow.Definition `yaml:"workflows,omitempty"`

	// Flow contains the content operations to run, with expected outcomes.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one content operation in the flow.
type Step struct {
	// Op is one of create, update, rollback, delete, get, get_version,
	// history and list.
	Op string `yaml:"op"`

	// User is the acting user id.
	User string `yaml:"user"`

	// ContentType is used by create and list.
	ContentType string `yaml:"content_type,omitempty"`

	// ID is a content id, or $alias for an id bound earlier with As.
	ID string `yaml:"id,omitempty"`

	// As binds the id of the content a create step produced.
	As string `yaml:"as,omitempty"`

	Data        map[string]any `yaml:"data,omitempty"`
	Status      string         `yaml:"status,omitempty"`
	Sensitivity string         `yaml:"sensitivity,omitempty"`

	// Version is the expected version for update (zero skips the check) and
	// the target version for rollback and get_version.
	Version int64 `yaml:"version,omitempty"`

	IdempotencyKey string `yaml:"idempotency_key,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed and nothing else is checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the expected content error code (e.g. "VERSION_CONFLICT").
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	Version int64  `yaml:"version,omitempty"`
	Status  string `yaml:"status,omitempty"`

	// Data is a subset match against the returned content's data.
	Data map[string]any `yaml:"data,omitempty"`

	// Absent lists data fields that must not be present (removed fields).
	Absent []string `yaml:"absent,omitempty"`

	// Count is the expected number of items returned by history or list.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action ran with matching parameters
	// - "trace_order": actions ran in order
	// - "trace_count": an action ran exactly N times
	// - "final_state": stored content matches expected fields
	Type string `yaml:"type"`

	// Action is the action type (used by trace_contains and trace_count).
	Action string `yaml:"action,omitempty"`

	// Params are the expected resolved parameters (used by trace_contains).
	// Subset match - only specified parameters are validated.
	Params map[string]string `yaml:"params,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Content is the content id or $alias (used by final_state).
	Content string `yaml:"content,omitempty"`

	// Expect contains expected fields (used by final_state): version,
	// status, deleted, content_type, and data as a subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpRollback   = "rollback"
	OpDelete     = "delete"
	OpGet        = "get"
	OpGetVersion = "get_version"
	OpHistory    = "history"
	OpList       = "list"
)

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, def := range s.Workflows {
		if def.ID == "" {
			return fmt.Errorf("workflows[%d]: id is required", i)
		}
	}

	aliases := make(map[string]bool)
	for i, step := range s.Flow {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
		if step.As != "" {
			aliases[step.As] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, aliases); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step, aliases map[string]bool) error {
	if step.User == "" {
		return fmt.Errorf("flow[%d]: user is required", index)
	}

	switch step.Op {
	case OpCreate:
		if step.ContentType == "" {
			return fmt.Errorf("flow[%d]: content_type is required for create", index)
		}
	case OpList:
		if step.ContentType == "" {
			return fmt.Errorf("flow[%d]: content_type is required for list", index)
		}
	case OpUpdate, OpDelete, OpGet, OpHistory:
		if step.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, step.Op)
		}
	case OpRollback, OpGetVersion:
		if step.ID == "" {
			return fmt.Errorf("flow[%d]: id is required for %s", index, step.Op)
		}
		if step.Version <= 0 {
			return fmt.Errorf("flow[%d]: version must be positive for %s", index, step.Op)
		}
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}

	if step.As != "" && step.Op != OpCreate {
		return fmt.Errorf("flow[%d]: as is only valid on create", index)
	}
	if err := checkRef(step.ID, aliases); err != nil {
		return fmt.Errorf("flow[%d]: %w", index, err)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Content == "" {
			return fmt.Errorf("assertions[%d]: content is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if err := checkRef(a.Content, aliases); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// checkRef rejects $alias references to aliases not bound earlier.
func checkRef(ref string, aliases map[string]bool) error {
	if name, ok := strings.CutPrefix(ref, "$"); ok && !aliases[name] {
		return fmt.Errorf("unknown alias %q", ref)
	}
	return nil
}
