package action

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps type tags to handlers. Tags are matched case-insensitively.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under its Metadata().Type.
// Returns an error if the type is empty or already registered.
func (r *Registry) Register(h Handler) error {
	t := h.Metadata().Type
	if t == "" {
		return fmt.Errorf("register %T: empty action type", h)
	}
	key := strings.ToLower(t)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("register %s: action type already registered", t)
	}
	r.handlers[key] = h
	return nil
}

// MustRegister is Register that panics on error, for startup wiring.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for a type tag.
func (r *Registry) Lookup(actionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(actionType)]
	return h, ok
}

// Catalog returns the metadata of every handler, sorted by type.
func (r *Registry) Catalog() []Metadata {
	r.mu.RLock()
	out := make([]Metadata, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Metadata())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	cat := r.Catalog()
	out := make([]string, len(cat))
	for i, m := range cat {
		out[i] = m.Type
	}
	return out
}
