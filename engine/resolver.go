package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/orc"
)

// fallbackResolver binds the undefined symbols of every module the engine
// adds. First match wins:
//
//  1. exported symbols of the compile-on-demand layer, as stubs, so linking
//     never forces compilation
//  2. runtime overrides
//  3. the host process symbol table, looked up by unmangled name
type fallbackResolver struct {
	cod       *orc.CompileOnDemandLayer
	overrides *orc.RuntimeOverrides
	host      *host.SymbolTable
	space     *orc.AddressSpace
	mapped    map[string]orc.Symbol
	log       *zap.Logger
	target    codegen.Target
	mu        sync.Mutex
}

func newFallbackResolver(cod *orc.CompileOnDemandLayer, overrides *orc.RuntimeOverrides, table *host.SymbolTable, space *orc.AddressSpace, target codegen.Target, log *zap.Logger) *fallbackResolver {
	return &fallbackResolver{
		log:       log,
		cod:       cod,
		overrides: overrides,
		host:      table,
		space:     space,
		target:    target,
		mapped:    make(map[string]orc.Symbol),
	}
}

// FindSymbol implements orc.Resolver.
func (r *fallbackResolver) FindSymbol(_ context.Context, name string) (orc.Symbol, bool, error) {
	if s, ok := r.cod.FindSymbol(name, true); ok {
		return s, true, nil
	}
	if s, ok := r.overrides.SearchOverrides(name); ok {
		return s, true, nil
	}
	if s, ok := r.hostSymbol(name); ok {
		return s, true, nil
	}
	return orc.Symbol{}, false, nil
}

// hostSymbol maps a host function into the address space on first use.
func (r *fallbackResolver) hostSymbol(name string) (orc.Symbol, bool) {
	plain, ok := r.target.Demangle(name)
	if !ok {
		return orc.Symbol{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.mapped[name]; ok {
		return s, true
	}
	fn, ok := r.host.Lookup(plain)
	if !ok {
		return orc.Symbol{}, false
	}
	addr := r.space.MapFunc(name, orc.EntryHost, fn.Call)
	s := orc.NewSymbol(name, addr, orc.FlagExported|orc.FlagCallable)
	r.mapped[name] = s
	r.log.Debug("host symbol mapped", zap.String("symbol", name), zap.Stringer("address", addr))
	return s, true
}
