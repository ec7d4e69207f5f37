package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/contentflow/internal/content"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s %v\n", i+1, event.Type, event.Name, event.Outcome, event.Params)
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an action matching the
// specified type and parameters (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventAction && event.Name == assertion.Action && matchParams(event.Params, assertion.Params) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with params %v", assertion.Action, assertion.Params),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
// A repeated action type matches its next occurrence.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, want := range assertion.Actions {
		found := false
		for pos < len(trace) {
			event := trace[pos]
			pos++
			if event.Type == EventAction && event.Name == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual:   fmt.Sprintf("no %s after the preceding actions", want),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventAction && event.Name == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState replays the stored stream of the content and compares
// the expected fields. Deleted streams are replayed too so "deleted: true"
// can be asserted.
func assertFinalState(ctx context.Context, st content.EventStore, id string, assertion Assertion) error {
	envs, err := st.LoadEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("final_state: load %s: %w", id, err)
	}
	state, err := content.Replay(envs)
	if err != nil {
		return fmt.Errorf("final_state: replay %s: %w", id, err)
	}
	if state == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("content %s", assertion.Content),
			Actual:   "no events stored",
		}
	}

	actual := map[string]any{
		"version":      state.Version,
		"status":       string(state.Status),
		"sensitivity":  string(state.Sensitivity),
		"content_type": state.ContentType,
		"deleted":      state.Deleted,
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := assertion.Expect[key]
		if key == "data" {
			wantData, ok := want.(map[string]any)
			if !ok {
				return fmt.Errorf("final_state: data must be a mapping, got %T", want)
			}
			if !matchData(state.Data, wantData) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s data %v", assertion.Content, wantData),
					Actual:   fmt.Sprintf("%v", state.Data),
				}
			}
			continue
		}
		got, ok := actual[key]
		if !ok {
			return fmt.Errorf("final_state: unknown field %q", key)
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s = %v", assertion.Content, key, want),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

// matchParams checks if actual params contain all expected params (subset match).
// Extra keys in actual are ignored.
func matchParams(actual, expected map[string]string) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// matchData checks if actual data contains all expected fields (subset match).
// Values compare by their JSON form, so YAML integers match stored numbers.
func matchData(actual content.Data, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values for equality.
// Handles nested maps and slices and numeric type differences.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

// normalize round-trips v through JSON.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   content.EventStore
	Ctx     context.Context
	Aliases map[string]string
}

func (a *AssertionContext) resolve(ref string) string {
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		return a.Aliases[name]
	}
	return ref
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.resolve(assertion.Content), assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
