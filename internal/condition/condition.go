// Package condition evaluates data-driven permission conditions against a
// content item's data map.
//
// A condition set maps a field name to one or more operator/value pairs:
//
//	{"OwnerId": {"_eq": "$CURRENT_USER"}, "Region": {"_in": ["EU", "UK"]}}
//
// Every pair must hold for the set to pass. A field missing from the data
// fails the whole set.
package condition

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/contentflow/internal/content"
)

// CurrentUser is replaced by the acting user's id before comparison.
const CurrentUser = "$CURRENT_USER"

// Operator names a comparison.
type Operator string

const (
	OpEq  Operator = "_eq"
	OpNe  Operator = "_ne"
	OpIn  Operator = "_in"
	OpNin Operator = "_nin"
)

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNe, OpIn, OpNin:
		return true
	}
	return false
}

// Set is field -> operator -> expected value.
type Set map[string]map[string]any

// Evaluate reports whether every condition in conds holds against data.
// An empty set always holds. Unknown operators never hold.
func Evaluate(conds Set, data map[string]any, userID string) bool {
	for field, ops := range conds {
		actual, ok := data[field]
		if !ok {
			return false
		}
		for op, expected := range ops {
			if !evaluateOne(Operator(op), actual, expected, userID) {
				return false
			}
		}
	}
	return true
}

func evaluateOne(op Operator, actual, expected any, userID string) bool {
	switch op {
	case OpEq:
		return equal(actual, expected, userID)
	case OpNe:
		return !equal(actual, expected, userID)
	case OpIn:
		return member(actual, expected, userID)
	case OpNin:
		if _, ok := asList(expected); !ok {
			return false
		}
		return !member(actual, expected, userID)
	default:
		return false
	}
}

func equal(actual, expected any, userID string) bool {
	return Normalize(content.FormatValue(actual)) == expand(expected, userID)
}

// member requires expected to be a list; anything else is a failed check.
func member(actual, expected any, userID string) bool {
	list, ok := asList(expected)
	if !ok {
		return false
	}
	want := Normalize(content.FormatValue(actual))
	for _, e := range list {
		if expand(e, userID) == want {
			return true
		}
	}
	return false
}

// asList accepts decoded JSON/YAML lists and string slices built in Go.
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func expand(expected any, userID string) string {
	s := content.FormatValue(expected)
	if strings.Contains(s, CurrentUser) {
		s = strings.ReplaceAll(s, CurrentUser, userID)
	}
	return Normalize(s)
}

// Normalize puts s in Unicode NFC so that composed and decomposed spellings
// of the same text compare equal.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
