package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/linker"
	"github.com/wippyai/lazyjit/orc"
)

// Engine is a lazy JIT: modules are added as IR and each function is
// compiled the first time it is called.
//
// Engine is safe for concurrent use, except that Close must not run
// concurrently with AddModule.
type Engine struct {
	runtime   wazero.Runtime
	cache     wazero.CompilationCache
	space     *orc.AddressSpace
	cod       *orc.CompileOnDemandLayer
	overrides *orc.RuntimeOverrides
	resolver  *fallbackResolver
	log       *zap.Logger
	session   string
	handles   []orc.ModuleHandle
	dtors     []*orc.CtorDtorRunner
	target    codegen.Target
	mu        sync.Mutex
	closed    bool
}

// New creates an engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	rc, cache, err := cfg.runtimeConfig()
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	gen := cfg.Generator
	if gen == nil {
		gen = codegen.New()
	}
	table := cfg.Host
	if table == nil {
		table = host.Process(nil)
	}

	session := uuid.Must(uuid.NewV7()).String()
	rt := wazero.NewRuntimeWithConfig(ctx, rc)
	space := orc.NewAddressSpace()

	compile := orc.NewCompileLayer(gen, linker.New(rt, space, linker.Options{Session: session}), cfg.Target)
	lazy := orc.NewLazyEmittingLayer(compile)
	cod := orc.NewCompileOnDemandLayer(lazy, orc.NewCallbackManager(space, cfg.TrampolinesPerBlock), space)
	overrides := orc.NewRuntimeOverrides(space, cfg.Target)

	e := &Engine{
		runtime:   rt,
		cache:     cache,
		space:     space,
		cod:       cod,
		overrides: overrides,
		resolver:  newFallbackResolver(cod, overrides, table, space, cfg.Target, log),
		log:       log.With(zap.String("session", session)),
		session:   session,
		target:    cfg.Target,
	}
	e.log.Debug("engine created",
		zap.String("backend", string(cfg.Backend)),
		zap.String("target", cfg.Target.Name))
	return e, nil
}

// Session returns the engine's unique session id.
func (e *Engine) Session() string {
	return e.session
}

// Target returns the engine's target description.
func (e *Engine) Target() codegen.Target {
	return e.target
}

func (e *Engine) checkOpen(phase errors.Phase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.Closed(phase)
	}
	return nil
}

// AddModule adds m and runs its constructors. Functions are compiled when
// first called, or earlier when a constructor calls them. The engine takes
// ownership of m.
//
// If a constructor fails the module is marked failed, its destructors are
// never run, and the error is returned.
func (e *Engine) AddModule(ctx context.Context, m *ir.Module) (orc.ModuleHandle, error) {
	return e.AddModuleSet(ctx, m)
}

// AddModuleSet adds several modules as one unit. Functions defined in any of
// them, internal ones included, are visible to all of them.
func (e *Engine) AddModuleSet(ctx context.Context, mods ...*ir.Module) (orc.ModuleHandle, error) {
	if err := e.checkOpen(errors.PhaseSubmit); err != nil {
		return 0, err
	}
	for _, m := range mods {
		if m == nil || m.Name == "" {
			return 0, errors.InvalidInput(errors.PhaseSubmit, "module must have a name")
		}
	}

	h, err := e.cod.AddModuleSet(ctx, mods, e.resolver)
	if err != nil {
		return 0, err
	}
	name, _ := e.cod.ModuleName(h)
	log := e.log.With(zap.String("module", name))

	var ctors, dtors []ir.Structor
	for _, m := range mods {
		ctors = append(ctors, m.Ctors...)
		dtors = append(dtors, m.Dtors...)
	}

	runner := orc.NewCtorDtorRunner(ctors, e.target, h)
	if err := runner.RunViaLayer(ctx, e.cod, e.space); err != nil {
		e.cod.Poison(h, err)
		log.Warn("constructor failed", zap.Error(err))
		return 0, errors.New(errors.PhaseRun, errors.KindModuleFailed).
			Module(name).
			Detail("constructor failed").
			Cause(err).
			Build()
	}
	log.Debug("module added", zap.Int("constructors", runner.Len()))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles = append(e.handles, h)
	if len(dtors) > 0 {
		e.dtors = append(e.dtors, orc.NewDtorRunner(dtors, e.target, h))
	}
	return h, nil
}

// Handles returns the handles of every module added, in order.
func (e *Engine) Handles() []orc.ModuleHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]orc.ModuleHandle(nil), e.handles...)
}

// FindSymbol looks name up across every module without compiling it. A
// function that was never called resolves to its stub, which compiles the
// function on first call.
func (e *Engine) FindSymbol(_ context.Context, name string) (orc.Symbol, bool, error) {
	if err := e.checkOpen(errors.PhaseLookup); err != nil {
		return orc.Symbol{}, false, err
	}
	s, ok := e.cod.FindSymbol(e.target.Mangle(name), true)
	return s, ok, nil
}

// FindSymbolIn looks name up in module h and returns its final address,
// compiling it first if needed. A name h does not export is reported as
// absent; a compile failure is an error.
func (e *Engine) FindSymbolIn(ctx context.Context, h orc.ModuleHandle, name string) (orc.Symbol, bool, error) {
	if err := e.checkOpen(errors.PhaseLookup); err != nil {
		return orc.Symbol{}, false, err
	}
	mod, ok := e.cod.ModuleName(h)
	if !ok {
		return orc.Symbol{}, false, errors.NotFound(errors.PhaseLookup, "module", fmt.Sprint(uint64(h)))
	}
	if failed := e.cod.Failure(h); failed != nil {
		return orc.Symbol{}, false, errors.ModuleFailed(mod, failed)
	}

	mangled := e.target.Mangle(name)
	sym, ok := e.cod.FindSymbolIn(h, mangled, true)
	if !ok {
		return orc.Symbol{}, false, nil
	}
	addr, err := e.cod.Materialize(ctx, h, mangled)
	if err != nil {
		return orc.Symbol{}, false, err
	}
	return orc.NewSymbol(mangled, addr, sym.Flags()), true, nil
}

// Call calls the function at addr with raw argument words.
func (e *Engine) Call(ctx context.Context, addr orc.TargetAddress, args ...uint64) ([]uint64, error) {
	if err := e.checkOpen(errors.PhaseRun); err != nil {
		return nil, err
	}
	return e.space.Call(ctx, addr, args...)
}

// ReadGlobal loads the global at addr.
func (e *Engine) ReadGlobal(addr orc.TargetAddress) (uint64, error) {
	if err := e.checkOpen(errors.PhaseRun); err != nil {
		return 0, err
	}
	return e.space.Read(addr)
}

// WriteGlobal stores v into the global at addr.
func (e *Engine) WriteGlobal(addr orc.TargetAddress, v uint64) error {
	if err := e.checkOpen(errors.PhaseRun); err != nil {
		return err
	}
	return e.space.Write(addr, v)
}

// Regions lists every mapped address range.
func (e *Engine) Regions() []*orc.Region {
	return e.space.Regions()
}

// Stats reports compile-on-demand activity.
func (e *Engine) Stats() orc.CompileOnDemandStats {
	return e.cod.Stats()
}

// Close tears the engine down: destructors registered at run time first,
// most recent first, then each module's destructors in reverse order of
// addition. Every destructor runs even if others fail; all failures are
// returned. Closing twice is a no-op.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	dtors := e.dtors
	e.dtors = nil
	e.mu.Unlock()

	var errs error
	if err := e.overrides.RunDestructors(ctx); err != nil {
		errs = multierr.Append(errs, teardownError("runtime destructors", err))
	}
	for i := len(dtors) - 1; i >= 0; i-- {
		r := dtors[i]
		if err := r.RunAllViaLayer(ctx, e.cod, e.space); err != nil {
			name, _ := e.cod.ModuleName(r.Handle())
			errs = multierr.Append(errs, teardownError(name, err))
		}
	}

	errs = multierr.Append(errs, e.runtime.Close(ctx))
	if e.cache != nil {
		errs = multierr.Append(errs, e.cache.Close(ctx))
	}

	if errs != nil {
		e.log.Warn("engine closed with errors", zap.Error(errs))
	} else {
		e.log.Debug("engine closed")
	}
	return errs
}

func teardownError(module string, err error) error {
	return errors.New(errors.PhaseTeardown, errors.KindModuleFailed).
		Module(module).
		Detail("destructors failed").
		Cause(err).
		Build()
}
