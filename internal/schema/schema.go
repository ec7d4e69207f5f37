// Package schema validates content data against per-type CUE schemas.
//
// A schema is a CUE value unified with the JSON form of the data. Fields the
// schema requires but the data lacks are reported as incomplete. Content
// types with no registered schema accept any data.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/contentflow/internal/content"
)

// RootField is the top-level CUE field holding one schema per content type.
const RootField = "contentTypes"

// Validator holds the schemas of known content types.
//
// Thread-safety: all methods are safe for concurrent use; validations are
// serialized.
type Validator struct {
	mu    sync.RWMutex
	ctx   *cue.Context
	types map[string]cue.Value
}

// NewValidator creates a Validator with no schemas.
func NewValidator() *Validator {
	return &Validator{ctx: cuecontext.New(), types: make(map[string]cue.Value)}
}

// Register compiles src as the schema for contentType, replacing any
// previous schema.
func (v *Validator) Register(contentType, src string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.CompileString(src, cue.Filename(contentType+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("compile schema %s: %w", contentType, err)
	}
	v.types[contentType] = val
	return nil
}

// LoadDir loads the CUE package in dir and registers every field of its
// contentTypes struct. It returns the number of schemas registered.
func (v *Validator) LoadDir(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return 0, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return 0, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	root := v.ctx.BuildInstance(inst)
	if err := root.Err(); err != nil {
		return 0, fmt.Errorf("building CUE value: %w", err)
	}

	types := root.LookupPath(cue.ParsePath(RootField))
	if !types.Exists() {
		return 0, fmt.Errorf("%s: no %s field", dir, RootField)
	}
	iter, err := types.Fields()
	if err != nil {
		return 0, fmt.Errorf("iterating %s: %w", RootField, err)
	}
	n := 0
	for iter.Next() {
		v.types[iter.Selector().Unquoted()] = iter.Value()
		n++
	}
	return n, nil
}

// ContentTypes returns the names of registered schemas, sorted.
func (v *Validator) ContentTypes() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.types))
	for k := range v.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks data against the schema of contentType. A mismatch is
// returned as a VALIDATION_FAILED *content.Error with one entry per field.
func (v *Validator) Validate(contentType string, data content.Data) error {
	// cue.Context is not safe for concurrent compilation.
	v.mu.Lock()
	defer v.mu.Unlock()

	schema, ok := v.types[contentType]
	if !ok {
		return nil
	}

	if data == nil {
		data = content.Data{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return content.NewValidationFailed(contentType, []content.FieldError{{Message: err.Error()}})
	}
	doc := v.ctx.CompileBytes(raw, cue.Filename("data.json"))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("compile data: %w", err)
	}

	if err := schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return content.NewValidationFailed(contentType, fieldErrors(err))
	}
	return nil
}

func fieldErrors(err error) []content.FieldError {
	seen := make(map[content.FieldError]bool)
	var out []content.FieldError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		fe := content.FieldError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if seen[fe] {
			continue
		}
		seen[fe] = true
		out = append(out, fe)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
