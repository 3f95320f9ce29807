package codegen

import (
	"sync"

	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/object"
)

// Counting is a Generator that records how many times each module name was
// compiled before delegating to the wrapped generator.
type Counting struct {
	inner  Generator
	counts map[string]int
	mu     sync.Mutex
}

// NewCounting wraps g.
func NewCounting(g Generator) *Counting {
	return &Counting{inner: g, counts: make(map[string]int)}
}

// Compile implements Generator.
func (c *Counting) Compile(m *ir.Module, t Target) (*object.Object, error) {
	if m != nil {
		c.mu.Lock()
		c.counts[m.Name]++
		c.mu.Unlock()
	}
	return c.inner.Compile(m, t)
}

// Count returns how many times the module named name was compiled.
func (c *Counting) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Total returns the number of Compile calls.
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Counts returns a snapshot of all counts.
func (c *Counting) Counts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
