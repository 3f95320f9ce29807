package orc

import (
	"context"
	"sync"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/ir"
)

type lazyModule struct {
	err       error
	module    *ir.Module
	resolver  Resolver
	names     map[string]SymbolFlags
	namesOnce sync.Once
	emitMu    sync.Mutex
	base      ModuleHandle
	emitted   bool
}

// LazyEmittingLayer defers compilation of a module until one of its symbols'
// addresses is requested.
//
// Add only records the module. Searches build the module's symbol name table
// on first use, from its definitions, and return symbols whose address
// getter emits the whole module through the compile layer. Each module is
// emitted at most once: concurrent getters wait for the first emission and
// its outcome, error included, is reused.
type LazyEmittingLayer struct {
	base    ObjectLayer
	modules map[ModuleHandle]*lazyModule
	order   []ModuleHandle
	next    ModuleHandle
	mu      sync.RWMutex
}

// NewLazyEmittingLayer creates a layer on top of base.
func NewLazyEmittingLayer(base ObjectLayer) *LazyEmittingLayer {
	return &LazyEmittingLayer{base: base, modules: make(map[ModuleHandle]*lazyModule)}
}

// Target returns the target of the underlying layer.
func (l *LazyEmittingLayer) Target() codegen.Target {
	return l.base.Target()
}

// Add records m for later emission.
func (l *LazyEmittingLayer) Add(m *ir.Module, r Resolver) ModuleHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	h := l.next
	l.modules[h] = &lazyModule{module: m, resolver: r}
	l.order = append(l.order, h)
	return h
}

// Remove forgets h. Code already emitted for it stays linked.
func (l *LazyEmittingLayer) Remove(h ModuleHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.modules[h]; !ok {
		return
	}
	delete(l.modules, h)
	for i, o := range l.order {
		if o == h {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *LazyEmittingLayer) get(h ModuleHandle) (*lazyModule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lm, ok := l.modules[h]
	return lm, ok
}

// Emit forces emission of h.
func (l *LazyEmittingLayer) Emit(ctx context.Context, h ModuleHandle) error {
	lm, ok := l.get(h)
	if !ok {
		return errUnknownHandle(h)
	}
	_, err := l.emit(ctx, lm)
	return err
}

// Emitted reports whether h has been emitted successfully.
func (l *LazyEmittingLayer) Emitted(h ModuleHandle) bool {
	lm, ok := l.get(h)
	if !ok {
		return false
	}
	lm.emitMu.Lock()
	defer lm.emitMu.Unlock()
	return lm.emitted && lm.err == nil
}

func (l *LazyEmittingLayer) emit(ctx context.Context, lm *lazyModule) (ModuleHandle, error) {
	lm.emitMu.Lock()
	defer lm.emitMu.Unlock()
	if !lm.emitted {
		lm.emitted = true
		lm.base, lm.err = l.base.Add(ctx, lm.module, lm.resolver)
	}
	return lm.base, lm.err
}

func (lm *lazyModule) symbolNames(target codegen.Target) map[string]SymbolFlags {
	lm.namesOnce.Do(func() {
		lm.names = make(map[string]SymbolFlags)
		for _, f := range lm.module.Functions {
			if !f.IsDeclaration() {
				lm.names[target.Mangle(f.Name)] = linkageFlags(f.Linkage) | FlagCallable
			}
		}
		for _, g := range lm.module.Globals {
			if !g.Extern {
				lm.names[target.Mangle(g.Name)] = linkageFlags(g.Linkage) | FlagData
			}
		}
	})
	return lm.names
}

func linkageFlags(l ir.Linkage) SymbolFlags {
	switch l {
	case ir.Internal:
		return 0
	case ir.Weak:
		return FlagExported | FlagWeak
	}
	return FlagExported
}

func (l *LazyEmittingLayer) find(lm *lazyModule, name string, exportedOnly bool) (Symbol, bool) {
	flags, ok := lm.symbolNames(l.base.Target())[name]
	if !ok || (exportedOnly && flags&FlagExported == 0) {
		return Symbol{}, false
	}
	return LazySymbol(name, flags, func(ctx context.Context) (TargetAddress, error) {
		h, err := l.emit(ctx, lm)
		if err != nil {
			return 0, err
		}
		sym, ok := l.base.FindSymbolIn(h, name, false)
		if !ok {
			return 0, errSymbolMissing(lm.module.Name, name)
		}
		return sym.Address(ctx)
	}), true
}

// FindSymbol searches every module in the order they were added, without
// emitting anything.
func (l *LazyEmittingLayer) FindSymbol(name string, exportedOnly bool) (Symbol, bool) {
	l.mu.RLock()
	mods := make([]*lazyModule, len(l.order))
	for i, h := range l.order {
		mods[i] = l.modules[h]
	}
	l.mu.RUnlock()

	for _, lm := range mods {
		if s, ok := l.find(lm, name, exportedOnly); ok {
			return s, true
		}
	}
	return Symbol{}, false
}

// FindSymbolIn searches the module h only, without emitting it.
func (l *LazyEmittingLayer) FindSymbolIn(h ModuleHandle, name string, exportedOnly bool) (Symbol, bool) {
	lm, ok := l.get(h)
	if !ok {
		return Symbol{}, false
	}
	return l.find(lm, name, exportedOnly)
}
