package orc

import (
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/ir"
)

// dataPartitionSuffix names the partition holding a logical module's globals.
const dataPartitionSuffix = "/.data"

func partitionName(module, fn string) string {
	return module + "/" + fn
}

// moduleSet looks up declarations across the modules of one logical module,
// preferring the module that refers to them.
type moduleSet []*ir.Module

func (ms moduleSet) function(home *ir.Module, name string) *ir.Function {
	if f := home.Function(name); f != nil {
		return f
	}
	for _, m := range ms {
		if f := m.Function(name); f != nil {
			return f
		}
	}
	return nil
}

func (ms moduleSet) global(home *ir.Module, name string) *ir.Global {
	if g := home.Global(name); g != nil {
		return g
	}
	for _, m := range ms {
		if g := m.Global(name); g != nil {
			return g
		}
	}
	return nil
}

// partition returns a module holding the body of fn, defined in home, plus
// declarations of every function and global the body refers to. Names the
// set does not know are left undeclared; code generation reports them.
func (ms moduleSet) partition(home *ir.Module, fn *ir.Function) *ir.Module {
	p := ir.NewModule(partitionName(home.Name, fn.Name))

	def := *fn
	p.AddFunction(&def)

	refs := ir.Referenced(fn.Body)
	for _, name := range refs.Functions {
		if name == fn.Name {
			continue
		}
		if callee := ms.function(home, name); callee != nil {
			p.AddFunction(callee.Declaration())
		}
	}
	for _, name := range refs.Globals {
		if g := ms.global(home, name); g != nil {
			p.AddGlobal(g.Declaration())
		}
	}
	return p
}

// globals returns the global definitions of the set that win linkage, in
// declaration order. A strong definition replaces a weak one; two strong
// definitions of one name are an error.
func (ms moduleSet) globals() ([]*ir.Global, error) {
	var order []string
	defs := make(map[string]*ir.Global)
	for _, m := range ms {
		for _, g := range m.Globals {
			if g.Extern {
				continue
			}
			prev, dup := defs[g.Name]
			switch {
			case !dup:
				order = append(order, g.Name)
			case g.Linkage == ir.Weak:
				continue
			case prev.Linkage != ir.Weak:
				return nil, errors.New(errors.PhaseSubmit, errors.KindInvalidInput).
					Module(m.Name).
					Symbol(g.Name).
					Detail("global defined twice in module set").
					Build()
			}
			defs[g.Name] = g
		}
	}
	out := make([]*ir.Global, len(order))
	for i, name := range order {
		out[i] = defs[name]
	}
	return out, nil
}

// dataPartition returns a module defining globals, or nil when there are
// none.
func dataPartition(name string, globals []*ir.Global) *ir.Module {
	if len(globals) == 0 {
		return nil
	}
	p := ir.NewModule(name + dataPartitionSuffix)
	for _, g := range globals {
		def := *g
		p.AddGlobal(&def)
	}
	return p
}
