package orc

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/ir"
)

// ModuleHandle identifies a module added to a layer. Handles are only
// meaningful to the layer that issued them; zero is never issued.
type ModuleHandle uint64

// CompileLayer compiles a module eagerly when it is added: code generation
// then linking, each exactly once per Add.
type CompileLayer struct {
	gen     codegen.Generator
	linker  ObjectLinker
	modules map[ModuleHandle]*LinkedObject
	target  codegen.Target
	order   []ModuleHandle
	next    ModuleHandle
	mu      sync.RWMutex
}

// NewCompileLayer creates a compile layer.
func NewCompileLayer(gen codegen.Generator, linker ObjectLinker, target codegen.Target) *CompileLayer {
	return &CompileLayer{
		gen:     gen,
		linker:  linker,
		target:  target,
		modules: make(map[ModuleHandle]*LinkedObject),
	}
}

// Target returns the code generation target.
func (cl *CompileLayer) Target() codegen.Target {
	return cl.target
}

// Add compiles and links m. Undefined symbols are bound through r.
func (cl *CompileLayer) Add(ctx context.Context, m *ir.Module, r Resolver) (ModuleHandle, error) {
	obj, err := cl.gen.Compile(m, cl.target)
	if err != nil {
		if !errors.Is(err, errors.PhaseCompile, errors.KindCompileFailure) {
			err = errors.CompileFailure(m.Name, "", err)
		}
		return 0, err
	}

	linked, err := cl.linker.Link(ctx, obj, r)
	if err != nil {
		if errors.KindOf(err) == "" {
			err = errors.Wrap(errors.PhaseLink, errors.KindInstantiation, err, "link "+m.Name)
		}
		return 0, err
	}

	cl.mu.Lock()
	cl.next++
	h := cl.next
	cl.modules[h] = linked
	cl.order = append(cl.order, h)
	cl.mu.Unlock()

	Logger().Debug("module emitted",
		zap.String("module", m.Name),
		zap.Int("symbols", len(linked.Symbols())))
	return h, nil
}

// FindSymbol searches every module in the order they were added.
func (cl *CompileLayer) FindSymbol(name string, exportedOnly bool) (Symbol, bool) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	for _, h := range cl.order {
		if s, ok := cl.modules[h].FindSymbol(name, exportedOnly); ok {
			return s, true
		}
	}
	return Symbol{}, false
}

// FindSymbolIn searches the module h only.
func (cl *CompileLayer) FindSymbolIn(h ModuleHandle, name string, exportedOnly bool) (Symbol, bool) {
	cl.mu.RLock()
	lo, ok := cl.modules[h]
	cl.mu.RUnlock()
	if !ok {
		return Symbol{}, false
	}
	return lo.FindSymbol(name, exportedOnly)
}

// Linked returns the linked object for h.
func (cl *CompileLayer) Linked(h ModuleHandle) (*LinkedObject, bool) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	lo, ok := cl.modules[h]
	return lo, ok
}
