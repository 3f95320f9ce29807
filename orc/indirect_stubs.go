package orc

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/errors"
)

type stub struct {
	name    string
	addr    TargetAddress
	initial TargetAddress
	ptr     atomic.Uint64
	flags   SymbolFlags
}

// IndirectStubs manages named indirect stubs. A stub is a fixed address
// that forwards every call to the address held in its pointer; the pointer
// starts at a trampoline and is rewritten once, to the compiled code.
type IndirectStubs struct {
	space *AddressSpace
	stubs map[string]*stub
	mu    sync.RWMutex
}

// NewIndirectStubs creates an empty stub set.
func NewIndirectStubs(space *AddressSpace) *IndirectStubs {
	return &IndirectStubs{space: space, stubs: make(map[string]*stub)}
}

// CreateStub creates a stub named name whose pointer holds initial.
func (is *IndirectStubs) CreateStub(name string, initial TargetAddress, flags SymbolFlags) (TargetAddress, error) {
	is.mu.Lock()
	defer is.mu.Unlock()
	if _, dup := is.stubs[name]; dup {
		return 0, errors.New(errors.PhaseSubmit, errors.KindInvalidInput).
			Symbol(name).
			Detail("stub already exists").
			Build()
	}
	s := &stub{name: name, initial: initial, flags: flags | FlagCallable}
	s.ptr.Store(uint64(initial))
	s.addr = is.space.MapFunc(name, EntryStub, func(ctx context.Context, args []uint64) ([]uint64, error) {
		return is.space.Call(ctx, TargetAddress(s.ptr.Load()), args...)
	})
	is.stubs[name] = s
	Logger().Debug("stub created",
		zap.String("symbol", name),
		zap.Stringer("stub", s.addr),
		zap.Stringer("initial", initial))
	return s.addr, nil
}

// FindStub returns the stub for name as a symbol whose address is the stub
// itself. With exportedOnly, stubs without FlagExported are skipped.
func (is *IndirectStubs) FindStub(name string, exportedOnly bool) (Symbol, bool) {
	is.mu.RLock()
	s, ok := is.stubs[name]
	is.mu.RUnlock()
	if !ok || (exportedOnly && s.flags&FlagExported == 0) {
		return Symbol{}, false
	}
	return NewSymbol(name, s.addr, s.flags), true
}

// FindPointer returns the current target of the stub for name.
func (is *IndirectStubs) FindPointer(name string) (TargetAddress, bool) {
	is.mu.RLock()
	s, ok := is.stubs[name]
	is.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return TargetAddress(s.ptr.Load()), true
}

// UpdatePointer rewrites the stub for name to addr. A stub is rewritten at
// most once; a second rewrite is reported as a duplicate fire.
func (is *IndirectStubs) UpdatePointer(name string, addr TargetAddress) error {
	is.mu.RLock()
	s, ok := is.stubs[name]
	is.mu.RUnlock()
	if !ok {
		return errors.NotFound(errors.PhaseRun, "stub", name)
	}
	if !s.ptr.CompareAndSwap(uint64(s.initial), uint64(addr)) {
		return errors.DuplicateFire(name)
	}
	Logger().Debug("stub updated", zap.String("symbol", name), zap.Stringer("target", addr))
	return nil
}

// Release unmaps every stub and empties the set.
func (is *IndirectStubs) Release() {
	is.mu.Lock()
	defer is.mu.Unlock()
	for name, s := range is.stubs {
		is.space.Unmap(s.addr)
		delete(is.stubs, name)
	}
}

// Len returns the number of stubs.
func (is *IndirectStubs) Len() int {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return len(is.stubs)
}
