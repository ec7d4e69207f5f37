// Package template resolves {{...}} variables in workflow action parameters.
//
// Five system variables are always known: {{id}}, {{contentType}},
// {{status}}, {{createdAt}} and {{updatedAt}}. Data fields are addressed as
// {{data.Field}} (dotted paths reach nested maps). Tokens that do not resolve
// against the content are left verbatim.
package template

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/roach88/contentflow/internal/content"
)

// Variable kinds.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
)

// Variable sources.
const (
	SourceSystem = "system"
	SourceData   = "data"
)

// DataPrefix marks a data field reference inside a token.
const DataPrefix = "data."

// Variable describes one token available to workflow authors.
type Variable struct {
	Name        string `json:"name"`
	Token       string `json:"token"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

var systemVariables = []Variable{
	{Name: "id", Token: "{{id}}", Type: TypeString, Description: "Content id", Source: SourceSystem},
	{Name: "contentType", Token: "{{contentType}}", Type: TypeString, Description: "Content type slug", Source: SourceSystem},
	{Name: "status", Token: "{{status}}", Type: TypeString, Description: "Publication status", Source: SourceSystem},
	{Name: "createdAt", Token: "{{createdAt}}", Type: TypeDatetime, Description: "Creation time (RFC 3339)", Source: SourceSystem},
	{Name: "updatedAt", Token: "{{updatedAt}}", Type: TypeDatetime, Description: "Last update time (RFC 3339)", Source: SourceSystem},
}

// SystemVariables returns the fixed system catalog.
func SystemVariables() []Variable {
	return append([]Variable(nil), systemVariables...)
}

// Sampler returns one existing item of a content type, or nil when there is none.
type Sampler interface {
	SampleContent(ctx context.Context, contentType string) (*content.Content, error)
}

// Resolver builds variable catalogs and substitutes tokens.
// The zero value resolves tokens but has no data catalog.
type Resolver struct {
	sampler Sampler
}

// NewResolver creates a Resolver that samples stored content through s.
func NewResolver(s Sampler) *Resolver {
	return &Resolver{sampler: s}
}

// Variables returns the system variables followed by one variable per
// top-level data field of a sampled item of contentType, sorted by name.
func (r *Resolver) Variables(ctx context.Context, contentType string) ([]Variable, error) {
	vars := SystemVariables()
	if r == nil || r.sampler == nil {
		return vars, nil
	}

	sample, err := r.sampler.SampleContent(ctx, contentType)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", contentType, err)
	}
	if sample == nil {
		return vars, nil
	}

	names := make([]string, 0, len(sample.Data))
	for k := range sample.Data {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		vars = append(vars, Variable{
			Name:        DataPrefix + name,
			Token:       "{{" + DataPrefix + name + "}}",
			Type:        InferType(sample.Data[name]),
			Description: fmt.Sprintf("%s field %s", contentType, name),
			Source:      SourceData,
		})
	}
	return vars, nil
}

// InferType classifies a runtime data value.
func InferType(v any) string {
	switch val := v.(type) {
	case float64, float32, int, int32, int64, uint64:
		return TypeNumber
	case bool:
		return TypeBoolean
	case time.Time:
		return TypeDatetime
	case string:
		if _, err := time.Parse(time.RFC3339, val); err == nil {
			return TypeDatetime
		}
		return TypeString
	default:
		return TypeString
	}
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Resolve substitutes every known token in tmpl with the value it names on c.
//
// All tokens are located in tmpl before any substitution, so values that
// themselves contain braces are never expanded and the result does not
// depend on token order. A nil c leaves tmpl unchanged.
func Resolve(tmpl string, c *content.Content) string {
	if c == nil || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := tokenPattern.FindStringSubmatch(tok)[1]
		v, ok := Lookup(name, c)
		if !ok {
			return tok
		}
		return v
	})
}

// ResolveAll resolves every value of params. Keys listed in skip are copied
// unresolved.
func ResolveAll(params map[string]string, c *content.Content, skip ...string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if containsFold(skip, k) {
			out[k] = v
			continue
		}
		out[k] = Resolve(v, c)
	}
	return out
}

// Lookup returns the string value of a variable name (without braces).
func Lookup(name string, c *content.Content) (string, bool) {
	switch name {
	case "id":
		return c.ID, true
	case "contentType":
		return c.ContentType, true
	case "status":
		return string(c.Status), true
	case "createdAt":
		return formatTime(c.CreatedAt), true
	case "updatedAt":
		return formatTime(c.UpdatedAt), true
	}

	path, ok := strings.CutPrefix(name, DataPrefix)
	if !ok || path == "" {
		return "", false
	}
	v, ok := c.Data.Lookup(path)
	if !ok {
		return "", false
	}
	return content.FormatValue(v), true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if strings.EqualFold(e, s) {
			return true
		}
	}
	return false
}
