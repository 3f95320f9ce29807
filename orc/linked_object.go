package orc

import (
	"context"

	"github.com/wippyai/lazyjit/object"
)

// ObjectLinker turns relocatable objects into executable code. Undefined
// references are bound through the resolver.
type ObjectLinker interface {
	Link(ctx context.Context, obj *object.Object, r Resolver) (*LinkedObject, error)
}

// LinkedObject is the symbol table of a linked object.
type LinkedObject struct {
	symbols  map[string]Symbol
	Module   string
	Instance string
	order    []string
}

// NewLinkedObject builds the symbol table for the given symbols.
func NewLinkedObject(module, instance string, syms []Symbol) *LinkedObject {
	lo := &LinkedObject{
		Module:   module,
		Instance: instance,
		symbols:  make(map[string]Symbol, len(syms)),
	}
	for _, s := range syms {
		if _, dup := lo.symbols[s.Name()]; !dup {
			lo.order = append(lo.order, s.Name())
		}
		lo.symbols[s.Name()] = s
	}
	return lo
}

// FindSymbol looks up name. With exportedOnly, symbols without FlagExported
// are skipped.
func (lo *LinkedObject) FindSymbol(name string, exportedOnly bool) (Symbol, bool) {
	s, ok := lo.symbols[name]
	if !ok || (exportedOnly && !s.IsExported()) {
		return Symbol{}, false
	}
	return s, true
}

// Symbols returns every symbol in definition order.
func (lo *LinkedObject) Symbols() []Symbol {
	out := make([]Symbol, 0, len(lo.order))
	for _, n := range lo.order {
		out = append(out, lo.symbols[n])
	}
	return out
}
