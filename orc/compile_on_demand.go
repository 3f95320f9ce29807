package orc

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/ir"
)

type stubDef struct {
	home  *ir.Module
	fn    *ir.Function
	flags SymbolFlags
}

// logicalModule is one AddModuleSet submission.
type logicalModule struct {
	err         error
	fallback    Resolver
	stubs       *IndirectStubs
	defs        map[string]stubDef
	order       []string
	trampolines map[string]TargetAddress
	name        string
	modules     moduleSet
	data        ModuleHandle
	handle      ModuleHandle
	mu          sync.RWMutex
}

func (lm *logicalModule) failure() error {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.err
}

// poison records the first compile failure of the module.
func (lm *logicalModule) poison(err error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.err == nil {
		lm.err = err
	}
}

// CompileOnDemandStats reports layer activity.
type CompileOnDemandStats struct {
	Callbacks  CallbackStats
	Modules    int // logical modules added
	Failed     int // logical modules poisoned by a compile failure
	Stubs      int // stubs created
	Fired      int // stubs rewritten to compiled code
	Partitions int // partitions emitted, data partitions included
}

// CompileOnDemandLayer splits each module into one partition per function
// and compiles a partition only when its function is first called.
//
// Every defined function is represented by an indirect stub whose pointer
// starts at a compile callback trampoline. Calling the stub fires the
// trampoline, which emits the function's partition through the lazy emitting
// layer and points the stub at the compiled code. Globals are emitted
// eagerly, as one data partition per logical module, when the module is
// added.
type CompileOnDemandLayer struct {
	base       EmittingLayer
	callbacks  *CallbackManager
	space      *AddressSpace
	modules    map[ModuleHandle]*logicalModule
	order      []ModuleHandle
	next       ModuleHandle
	stubs      atomic.Int64
	fired      atomic.Int64
	partitions atomic.Int64
	mu         sync.RWMutex
}

// NewCompileOnDemandLayer creates a layer emitting through base. Stubs and
// trampolines are mapped into space.
func NewCompileOnDemandLayer(base EmittingLayer, callbacks *CallbackManager, space *AddressSpace) *CompileOnDemandLayer {
	return &CompileOnDemandLayer{
		base:      base,
		callbacks: callbacks,
		space:     space,
		modules:   make(map[ModuleHandle]*logicalModule),
	}
}

// AddModuleSet adds mods as one logical module. Symbols the set does not
// define are resolved through r. The layer keeps the modules; callers must
// not modify them afterwards.
func (cod *CompileOnDemandLayer) AddModuleSet(ctx context.Context, mods []*ir.Module, r Resolver) (ModuleHandle, error) {
	if len(mods) == 0 {
		return 0, errors.InvalidInput(errors.PhaseSubmit, "empty module set")
	}
	if r == nil {
		r = NullResolver
	}

	names := make([]string, len(mods))
	for i, m := range mods {
		if m == nil {
			return 0, errors.InvalidInput(errors.PhaseSubmit, "nil module in set")
		}
		names[i] = m.Name
	}

	lm := &logicalModule{
		name:        strings.Join(names, "+"),
		modules:     moduleSet(mods),
		fallback:    r,
		stubs:       NewIndirectStubs(cod.space),
		defs:        make(map[string]stubDef),
		trampolines: make(map[string]TargetAddress),
	}

	target := cod.base.Target()
	for _, m := range mods {
		for _, f := range m.Functions {
			if f.IsDeclaration() {
				continue
			}
			name := target.Mangle(f.Name)
			flags := linkageFlags(f.Linkage) | FlagCallable
			if prev, dup := lm.defs[name]; dup {
				switch {
				case flags&FlagWeak != 0:
					continue
				case prev.flags&FlagWeak == 0:
					return 0, errors.New(errors.PhaseSubmit, errors.KindInvalidInput).
						Module(m.Name).
						Symbol(f.Name).
						Detail("function defined twice in module set").
						Build()
				}
			}
			if _, dup := lm.defs[name]; !dup {
				lm.order = append(lm.order, name)
			}
			lm.defs[name] = stubDef{home: m, fn: f, flags: flags}
		}
	}

	globals, err := lm.modules.globals()
	if err != nil {
		return 0, err
	}

	for _, name := range lm.order {
		def := lm.defs[name]
		tramp, err := cod.callbacks.GetCompileCallback(name, cod.compileAction(lm, name, def))
		if err != nil {
			cod.release(lm)
			return 0, err
		}
		lm.trampolines[name] = tramp
		if _, err := lm.stubs.CreateStub(name, tramp, def.flags); err != nil {
			cod.release(lm)
			return 0, err
		}
	}

	if data := dataPartition(lm.name, globals); data != nil {
		lm.data = cod.base.Add(data, cod.partitionResolver(lm))
		if err := cod.base.Emit(ctx, lm.data); err != nil {
			cod.release(lm)
			return 0, err
		}
		cod.partitions.Add(1)
		Logger().Debug("data partition emitted",
			zap.String("module", lm.name),
			zap.Int("globals", len(data.Globals)))
	}

	cod.mu.Lock()
	cod.next++
	lm.handle = cod.next
	cod.modules[lm.handle] = lm
	cod.order = append(cod.order, lm.handle)
	cod.mu.Unlock()
	cod.stubs.Add(int64(len(lm.order)))

	Logger().Debug("module set added",
		zap.String("module", lm.name),
		zap.Uint64("handle", uint64(lm.handle)),
		zap.Int("stubs", len(lm.defs)))
	return lm.handle, nil
}

// release undoes a submission that failed before the module was
// registered. None of its trampolines can have fired.
func (cod *CompileOnDemandLayer) release(lm *logicalModule) {
	for name, tramp := range lm.trampolines {
		if err := cod.callbacks.Release(tramp); err != nil {
			Logger().Warn("trampoline not released", zap.String("symbol", name), zap.Error(err))
		}
	}
	lm.stubs.Release()
	if lm.data != 0 {
		cod.base.Remove(lm.data)
		lm.data = 0
	}
}

// compileAction emits the partition of one function and points its stub at
// the result.
func (cod *CompileOnDemandLayer) compileAction(lm *logicalModule, name string, def stubDef) CompileAction {
	return func(ctx context.Context) (TargetAddress, error) {
		if err := lm.failure(); err != nil {
			return 0, errors.ModuleFailed(lm.name, err)
		}

		part := lm.modules.partition(def.home, def.fn)
		h := cod.base.Add(part, cod.partitionResolver(lm))
		if err := cod.base.Emit(ctx, h); err != nil {
			lm.poison(err)
			Logger().Warn("partition failed",
				zap.String("module", lm.name),
				zap.String("partition", part.Name),
				zap.Error(err))
			return 0, err
		}
		cod.partitions.Add(1)

		sym, ok := cod.base.FindSymbolIn(h, name, false)
		if !ok {
			err := errSymbolMissing(part.Name, name)
			lm.poison(err)
			return 0, err
		}
		addr, err := sym.Address(ctx)
		if err != nil {
			lm.poison(err)
			return 0, err
		}
		if err := lm.stubs.UpdatePointer(name, addr); err != nil {
			return 0, err
		}
		cod.fired.Add(1)
		Logger().Debug("partition emitted",
			zap.String("module", lm.name),
			zap.String("partition", part.Name),
			zap.Stringer("address", addr))
		return addr, nil
	}
}

// partitionResolver sees the logical module's own symbols first, internal
// ones included, then the module's fallback resolver.
func (cod *CompileOnDemandLayer) partitionResolver(lm *logicalModule) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (Symbol, bool, error) {
		if s, ok := cod.findIn(lm, name, false); ok {
			return s, true, nil
		}
		return lm.fallback.FindSymbol(ctx, name)
	})
}

func (cod *CompileOnDemandLayer) findIn(lm *logicalModule, name string, exportedOnly bool) (Symbol, bool) {
	if s, ok := lm.stubs.FindStub(name, exportedOnly); ok {
		return s, true
	}
	if lm.data != 0 {
		return cod.base.FindSymbolIn(lm.data, name, exportedOnly)
	}
	return Symbol{}, false
}

func (cod *CompileOnDemandLayer) get(h ModuleHandle) (*logicalModule, bool) {
	cod.mu.RLock()
	defer cod.mu.RUnlock()
	lm, ok := cod.modules[h]
	return lm, ok
}

// FindSymbol searches every healthy logical module, in the order they were
// added, without compiling anything. Functions resolve to their stubs. A
// strong definition is preferred over a weak one found earlier.
func (cod *CompileOnDemandLayer) FindSymbol(name string, exportedOnly bool) (Symbol, bool) {
	cod.mu.RLock()
	mods := make([]*logicalModule, len(cod.order))
	for i, h := range cod.order {
		mods[i] = cod.modules[h]
	}
	cod.mu.RUnlock()

	var weak Symbol
	found := false
	for _, lm := range mods {
		if lm.failure() != nil {
			continue
		}
		s, ok := cod.findIn(lm, name, exportedOnly)
		if !ok {
			continue
		}
		if !s.IsWeak() {
			return s, true
		}
		if !found {
			weak, found = s, true
		}
	}
	return weak, found
}

// FindSymbolIn searches the logical module h only, without compiling
// anything.
func (cod *CompileOnDemandLayer) FindSymbolIn(h ModuleHandle, name string, exportedOnly bool) (Symbol, bool) {
	lm, ok := cod.get(h)
	if !ok || lm.failure() != nil {
		return Symbol{}, false
	}
	return cod.findIn(lm, name, exportedOnly)
}

// Materialize returns the final address of name in h, compiling its
// partition first when its stub has not fired yet.
func (cod *CompileOnDemandLayer) Materialize(ctx context.Context, h ModuleHandle, name string) (TargetAddress, error) {
	lm, ok := cod.get(h)
	if !ok {
		return 0, errUnknownHandle(h)
	}
	if err := lm.failure(); err != nil {
		return 0, errors.ModuleFailed(lm.name, err)
	}

	if ptr, ok := lm.stubs.FindPointer(name); ok {
		if ptr != lm.trampolines[name] {
			return ptr, nil
		}
		addr, err := cod.callbacks.Resolve(ctx, ptr)
		if err != nil {
			if failed := lm.failure(); failed != nil {
				return 0, errors.ModuleFailed(lm.name, failed)
			}
			return 0, err
		}
		return addr, nil
	}

	if lm.data != 0 {
		if s, ok := cod.base.FindSymbolIn(lm.data, name, false); ok {
			return s.Address(ctx)
		}
	}
	return 0, errors.New(errors.PhaseLookup, errors.KindNotFound).
		Module(lm.name).
		Symbol(name).
		Detail("symbol not defined").
		Build()
}

// Failure returns the error that poisoned h, or nil.
func (cod *CompileOnDemandLayer) Failure(h ModuleHandle) error {
	lm, ok := cod.get(h)
	if !ok {
		return errUnknownHandle(h)
	}
	return lm.failure()
}

// Poison marks h failed with err, as a compile failure would. The first
// failure recorded wins.
func (cod *CompileOnDemandLayer) Poison(h ModuleHandle, err error) {
	if lm, ok := cod.get(h); ok && err != nil {
		lm.poison(err)
	}
}

// Handles returns the handles of every logical module, in add order.
func (cod *CompileOnDemandLayer) Handles() []ModuleHandle {
	cod.mu.RLock()
	defer cod.mu.RUnlock()
	return append([]ModuleHandle(nil), cod.order...)
}

// ModuleName returns the name of the logical module h.
func (cod *CompileOnDemandLayer) ModuleName(h ModuleHandle) (string, bool) {
	lm, ok := cod.get(h)
	if !ok {
		return "", false
	}
	return lm.name, true
}

// Stats reports layer activity.
func (cod *CompileOnDemandLayer) Stats() CompileOnDemandStats {
	cod.mu.RLock()
	st := CompileOnDemandStats{Modules: len(cod.modules)}
	for _, lm := range cod.modules {
		if lm.failure() != nil {
			st.Failed++
		}
	}
	cod.mu.RUnlock()

	st.Stubs = int(cod.stubs.Load())
	st.Fired = int(cod.fired.Load())
	st.Partitions = int(cod.partitions.Load())
	st.Callbacks = cod.callbacks.Stats()
	return st
}
