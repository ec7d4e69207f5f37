package action

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/contentflow/internal/condition"
	"github.com/roach88/contentflow/internal/template"
)

// Comparison is a parsed Conditional expression: Left Op "Right".
type Comparison struct {
	Left  string
	Op    string
	Right string
}

var comparisonPattern = regexp.MustCompile(`^\s*(.+?)\s*(==|!=)\s*"(.*)"\s*$`)

// ParseComparison parses `variable == "literal"` or `variable != "literal"`.
func ParseComparison(expr string) (Comparison, error) {
	m := comparisonPattern.FindStringSubmatch(expr)
	if m == nil {
		return Comparison{}, fmt.Errorf("invalid condition %q: want `variable == \"literal\"` or `variable != \"literal\"`", expr)
	}
	return Comparison{Left: m[1], Op: m[2], Right: m[3]}, nil
}

// Holds evaluates the comparison. Quotes around the left side are dropped
// before its template tokens are resolved against inv's content, so resolved
// values are compared as they are and never parsed.
func (c Comparison) Holds(inv *Invocation) bool {
	left := strings.Trim(c.Left, `"`)
	if strings.Contains(left, "{{") {
		left = template.Resolve(left, inv.Content)
	}
	eq := condition.Normalize(left) == condition.Normalize(c.Right)
	if c.Op == "!=" {
		return !eq
	}
	return eq
}

// ParseSpecs decodes a JSON list of child actions. Blank input is an empty list.
func ParseSpecs(raw string) ([]Spec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var specs []Spec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("parse action list: %w", err)
	}
	for i, s := range specs {
		if s.Type == "" {
			return nil, fmt.Errorf("parse action list: item %d has no type", i)
		}
	}
	return specs, nil
}

// ConditionalHandler dispatches ThenActions or ElseActions depending on a
// single comparison.
type ConditionalHandler struct{}

func (h *ConditionalHandler) Metadata() Metadata {
	return Metadata{
		Type:               "Conditional",
		Description:        "Runs ThenActions when Condition holds, otherwise ElseActions. Both are JSON lists of actions; a missing branch does nothing.",
		RequiredParameters: []string{"Condition"},
		OptionalParameters: []string{"ThenActions", "ElseActions"},
		Example: map[string]string{
			"Condition":   `{{data.Priority}} == "High"`,
			"ThenActions": `[{"type":"Email","parameters":{"To":"oncall@example.com","Subject":"High priority {{id}}","Body":"{{data.Title}}"}}]`,
		},
		Effect:   EffectNone,
		Deferred: []string{"Condition", "ThenActions", "ElseActions"},
	}
}

func (h *ConditionalHandler) Execute(ctx context.Context, inv *Invocation) error {
	cmp, err := ParseComparison(inv.Param("Condition"))
	if err != nil {
		return err
	}

	branch := "ElseActions"
	if cmp.Holds(inv) {
		branch = "ThenActions"
	}
	specs, err := ParseSpecs(inv.Param(branch))
	if err != nil {
		return fmt.Errorf("%s: %w", branch, err)
	}
	if len(specs) == 0 {
		inv.SetMessage(branch + ": nothing to run")
		return nil
	}
	if err := inv.Dispatch(ctx, specs); err != nil {
		return err
	}
	inv.SetMessage(fmt.Sprintf("%s: ran %d action(s)", branch, len(specs)))
	return nil
}
