package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator returns prefix-1, prefix-2, ... in call order.
//
// Unlike content.FixedGenerator, which replays a fixed list, it never runs
// out, which suits tests that create an unknown number of items.
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator. An empty prefix means "id".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
