package session

import (
	"fmt"
	"sync/atomic"
)

// Generator produces listening-session IDs scoped to one manager.
type Generator struct {
	prefix  string
	counter uint64
}

// NewGenerator returns a generator whose IDs start with prefix.
func NewGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// Next returns the next ID, e.g. "mgr-1-session-3".
func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-session-%d", g.prefix, n)
}
