package orc

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/codegen"
)

// Names intercepted by RuntimeOverrides, before mangling.
const (
	CXAAtExit = "__cxa_atexit"
	DSOHandle = "__dso_handle"
)

type atexitEntry struct {
	fn  TargetAddress
	arg uint64
	dso uint64
}

// RuntimeOverrides supplies the runtime symbols JIT'd code must not take
// from the host process: __cxa_atexit records destructors with the engine
// instead of the process, and __dso_handle gives this engine its own handle.
type RuntimeOverrides struct {
	space   *AddressSpace
	symbols map[string]Symbol
	dtors   []atexitEntry
	mu      sync.Mutex
}

// NewRuntimeOverrides maps the override symbols into space, named for
// target.
func NewRuntimeOverrides(space *AddressSpace, target codegen.Target) *RuntimeOverrides {
	ro := &RuntimeOverrides{space: space, symbols: make(map[string]Symbol)}

	atexit := target.Mangle(CXAAtExit)
	addr := space.MapFunc(atexit, EntryHost, func(_ context.Context, args []uint64) ([]uint64, error) {
		if len(args) != 3 {
			return nil, errArity(atexit, 3, len(args))
		}
		ro.register(TargetAddress(args[0]), args[1], args[2])
		return []uint64{0}, nil
	})
	ro.symbols[atexit] = NewSymbol(atexit, addr, FlagExported|FlagCallable)

	dso := target.Mangle(DSOHandle)
	cell := &WordCell{}
	daddr := space.MapCell(dso, cell)
	cell.Set(uint64(daddr))
	ro.symbols[dso] = NewSymbol(dso, daddr, FlagExported|FlagData)
	return ro
}

func (ro *RuntimeOverrides) register(fn TargetAddress, arg, dso uint64) {
	ro.mu.Lock()
	ro.dtors = append(ro.dtors, atexitEntry{fn: fn, arg: arg, dso: dso})
	ro.mu.Unlock()
	Logger().Debug("destructor registered", zap.Stringer("function", fn), zap.Uint64("arg", arg))
}

// SearchOverrides returns the override for a mangled name.
func (ro *RuntimeOverrides) SearchOverrides(name string) (Symbol, bool) {
	s, ok := ro.symbols[name]
	return s, ok
}

// FindSymbol makes RuntimeOverrides a Resolver.
func (ro *RuntimeOverrides) FindSymbol(_ context.Context, name string) (Symbol, bool, error) {
	s, ok := ro.SearchOverrides(name)
	return s, ok, nil
}

// Pending returns the number of registered destructors that have not run.
func (ro *RuntimeOverrides) Pending() int {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return len(ro.dtors)
}

// RunDestructors runs registered destructors, most recent first, each
// exactly once. Every destructor runs even when an earlier one fails;
// failures are returned combined. Destructors registered while running are
// run as well.
func (ro *RuntimeOverrides) RunDestructors(ctx context.Context) error {
	var errs error
	for {
		ro.mu.Lock()
		if len(ro.dtors) == 0 {
			ro.mu.Unlock()
			return errs
		}
		e := ro.dtors[len(ro.dtors)-1]
		ro.dtors = ro.dtors[:len(ro.dtors)-1]
		ro.mu.Unlock()

		Logger().Debug("running destructor", zap.Stringer("function", e.fn))
		if _, err := ro.space.Call(ctx, e.fn, e.arg); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
}
