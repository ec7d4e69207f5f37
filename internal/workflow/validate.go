package workflow

import (
	"fmt"
	"strings"

	"github.com/roach88/contentflow/internal/action"
)

// Validation error codes (E200-E299)
const (
	ErrMissingName        = "E200" // name is required
	ErrMissingContentType = "E201" // trigger content type is required
	ErrInvalidTrigger     = "E202" // unknown trigger event
	ErrNoActions          = "E203" // at least one action required
	ErrUnknownActionType  = "E204" // no handler registered for type
	ErrMissingParameter   = "E205" // required parameter absent
	ErrInvalidCondition   = "E206" // Conditional expression does not parse
	ErrInvalidActionList  = "E207" // ThenActions/ElseActions is not a JSON action list
	ErrNestingTooDeep     = "E208" // composite actions nested beyond MaxNestingDepth
)

// ValidationError is one problem found in a definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks def against the registry without saving or running it.
// Returns all errors found (does not fail-fast).
func Validate(def Definition, registry *action.Registry) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "name is required", Code: ErrMissingName})
	}
	if strings.TrimSpace(def.TriggerContentType) == "" {
		errs = append(errs, ValidationError{Field: "trigger_content_type", Message: "trigger content type is required", Code: ErrMissingContentType})
	}
	if !def.TriggerEvent.Valid() {
		errs = append(errs, ValidationError{
			Field:   "trigger_event",
			Message: fmt.Sprintf("unknown trigger event %q (want Created, Updated, Deleted or Published)", def.TriggerEvent),
			Code:    ErrInvalidTrigger,
		})
	}
	if len(def.Actions) == 0 {
		errs = append(errs, ValidationError{Field: "actions", Message: "at least one action is required", Code: ErrNoActions})
	}

	errs = append(errs, validateActions("actions", def.Actions, registry, 0)...)
	return errs
}

func validateActions(path string, specs []action.Spec, registry *action.Registry, depth int) []ValidationError {
	var errs []ValidationError
	for i, spec := range specs {
		field := fmt.Sprintf("%s[%d]", path, i)
		h, ok := registry.Lookup(spec.Type)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown action type %q", spec.Type),
				Code:    ErrUnknownActionType,
			})
			continue
		}

		meta := h.Metadata()
		for _, p := range meta.RequiredParameters {
			if !action.HasParam(spec.Parameters, p) {
				errs = append(errs, ValidationError{
					Field:   field + ".parameters." + p,
					Message: fmt.Sprintf("%s requires parameter %s", meta.Type, p),
					Code:    ErrMissingParameter,
				})
			}
		}

		if _, composite := h.(*action.ConditionalHandler); composite {
			errs = append(errs, validateConditional(field, spec, registry, depth)...)
		}
	}
	return errs
}

func validateConditional(field string, spec action.Spec, registry *action.Registry, depth int) []ValidationError {
	var errs []ValidationError
	inv := action.NewInvocation(spec.Parameters, nil, nil)

	if expr, ok := inv.Lookup("Condition"); ok {
		if _, err := action.ParseComparison(expr); err != nil {
			errs = append(errs, ValidationError{Field: field + ".parameters.Condition", Message: err.Error(), Code: ErrInvalidCondition})
		}
	}

	for _, branch := range []string{"ThenActions", "ElseActions"} {
		children, err := action.ParseSpecs(inv.Param(branch))
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".parameters." + branch, Message: err.Error(), Code: ErrInvalidActionList})
			continue
		}
		if len(children) > 0 && !canDispatch(depth) {
			errs = append(errs, ValidationError{
				Field:   field + "." + branch,
				Message: fmt.Sprintf("actions nested deeper than %d levels", MaxNestingDepth),
				Code:    ErrNestingTooDeep,
			})
			continue
		}
		errs = append(errs, validateActions(field+"."+branch, children, registry, depth+1)...)
	}
	return errs
}
