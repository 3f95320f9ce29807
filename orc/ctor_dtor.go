package orc

import (
	"context"

	"github.com/google/btree"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/ir"
)

// SymbolMaterializer is the layer a CtorDtorRunner resolves through.
type SymbolMaterializer interface {
	Materialize(ctx context.Context, h ModuleHandle, name string) (TargetAddress, error)
}

type structorEntry struct {
	name     string
	priority int
	seq      int
}

// CtorDtorRunner runs a module's constructor or destructor list: every named
// function is materialized in the module it belongs to and called with no
// arguments. Constructors run by ascending priority, ties in declaration
// order. Destructors run in exactly the reverse order.
type CtorDtorRunner struct {
	names  []string
	handle ModuleHandle
}

// NewCtorDtorRunner orders a constructor list and mangles its names for
// target.
func NewCtorDtorRunner(list []ir.Structor, target codegen.Target, h ModuleHandle) *CtorDtorRunner {
	return newRunner(list, target, h, false)
}

// NewDtorRunner orders a destructor list, last registered first.
func NewDtorRunner(list []ir.Structor, target codegen.Target, h ModuleHandle) *CtorDtorRunner {
	return newRunner(list, target, h, true)
}

func newRunner(list []ir.Structor, target codegen.Target, h ModuleHandle, reverse bool) *CtorDtorRunner {
	tree := btree.NewG(8, func(a, b structorEntry) bool {
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.seq < b.seq
	})
	for i, s := range list {
		tree.ReplaceOrInsert(structorEntry{name: target.Mangle(s.Function), priority: s.Priority, seq: i})
	}

	r := &CtorDtorRunner{handle: h, names: make([]string, 0, tree.Len())}
	collect := func(e structorEntry) bool {
		r.names = append(r.names, e.name)
		return true
	}
	if reverse {
		tree.Descend(collect)
	} else {
		tree.Ascend(collect)
	}
	return r
}

// Names returns the mangled function names in run order.
func (r *CtorDtorRunner) Names() []string {
	return append([]string(nil), r.names...)
}

// Handle returns the module the runner resolves in.
func (r *CtorDtorRunner) Handle() ModuleHandle {
	return r.handle
}

// Len returns the number of entries.
func (r *CtorDtorRunner) Len() int {
	return len(r.names)
}

// RunViaLayer runs every entry and stops at the first failure.
func (r *CtorDtorRunner) RunViaLayer(ctx context.Context, layer SymbolMaterializer, space *AddressSpace) error {
	for _, name := range r.names {
		if err := r.run(ctx, layer, space, name); err != nil {
			return err
		}
	}
	return nil
}

// RunAllViaLayer runs every entry regardless of failures and returns all of
// them combined.
func (r *CtorDtorRunner) RunAllViaLayer(ctx context.Context, layer SymbolMaterializer, space *AddressSpace) error {
	var errs error
	for _, name := range r.names {
		errs = multierr.Append(errs, r.run(ctx, layer, space, name))
	}
	return errs
}

func (r *CtorDtorRunner) run(ctx context.Context, layer SymbolMaterializer, space *AddressSpace, name string) error {
	addr, err := layer.Materialize(ctx, r.handle, name)
	if err != nil {
		return err
	}
	Logger().Debug("running structor", zap.String("symbol", name), zap.Stringer("address", addr))
	_, err = space.Call(ctx, addr)
	return err
}
