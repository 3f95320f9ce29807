package orc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/lazyjit/errors"
)

// DefaultTrampolinesPerBlock is the trampoline pool growth step.
const DefaultTrampolinesPerBlock = 64

// CompileAction produces the final address behind a compile callback.
type CompileAction func(ctx context.Context) (TargetAddress, error)

// slot states
const (
	slotFree uint32 = iota
	slotPending
	slotCompiling
	slotResolved
	slotFailed
)

type callbackSlot struct {
	err    error
	action CompileAction
	done   chan struct{}
	name   string
	addr   TargetAddress
	state  atomic.Uint32
}

// CallbackStats reports trampoline pool usage.
type CallbackStats struct {
	Reserved int // trampolines allocated
	Assigned int // trampolines handed out
	Fired    int // actions run
	Failed   int // actions that returned an error
}

// CallbackManager hands out trampoline addresses that run a compile action
// the first time control reaches them. The pool grows in blocks; a
// trampoline's action runs at most once and its result is memoized, so
// concurrent and later calls all land on the same final address.
type CallbackManager struct {
	space    *AddressSpace
	blocks   [][]*callbackSlot
	bases    []TargetAddress
	free     []int // released slot indices, reused first
	perBlock int
	next     int
	fired    atomic.Int64
	failed   atomic.Int64
	mu       sync.Mutex
}

// NewCallbackManager creates a manager that reserves trampolines in blocks
// of perBlock (DefaultTrampolinesPerBlock when perBlock <= 0).
func NewCallbackManager(space *AddressSpace, perBlock int) *CallbackManager {
	if perBlock <= 0 {
		perBlock = DefaultTrampolinesPerBlock
	}
	return &CallbackManager{space: space, perBlock: perBlock}
}

// GetCompileCallback reserves a trampoline that runs action when called.
func (cm *CallbackManager) GetCompileCallback(name string, action CompileAction) (TargetAddress, error) {
	if action == nil {
		return 0, errors.New(errors.PhaseSubmit, errors.KindInvalidInput).
			Symbol(name).
			Detail("compile callback without an action").
			Build()
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	var idx int
	if n := len(cm.free); n > 0 {
		idx = cm.free[n-1]
		cm.free = cm.free[:n-1]
	} else {
		if cm.next == len(cm.blocks)*cm.perBlock {
			cm.grow()
		}
		idx = cm.next
		cm.next++
	}
	b, i := idx/cm.perBlock, idx%cm.perBlock

	s := cm.blocks[b][i]
	s.name = name
	s.action = action
	s.done = make(chan struct{})
	s.state.Store(slotPending)

	addr := cm.bases[b] + TargetAddress(i)*SlotSize
	Logger().Debug("compile callback reserved", zap.String("symbol", name), zap.Stringer("trampoline", addr))
	return addr, nil
}

// Release returns the trampoline at addr to the pool. Only a trampoline
// that has not fired can be released.
func (cm *CallbackManager) Release(addr TargetAddress) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	idx, err := cm.indexAt(addr)
	if err != nil {
		return err
	}
	s := cm.blocks[idx/cm.perBlock][idx%cm.perBlock]
	if !s.state.CompareAndSwap(slotPending, slotFree) {
		return errors.New(errors.PhaseSubmit, errors.KindInvalidInput).
			Symbol(s.name).
			Detail("trampoline %s already fired", addr).
			Build()
	}
	s.action = nil
	s.name = ""
	cm.free = append(cm.free, idx)
	return nil
}

// grow reserves a new block. Called with mu held.
func (cm *CallbackManager) grow() {
	block := make([]*callbackSlot, cm.perBlock)
	for i := range block {
		block[i] = &callbackSlot{}
	}
	idx := len(cm.blocks)
	cm.blocks = append(cm.blocks, block)
	base := cm.space.MapBlock(fmt.Sprintf("trampolines#%d", idx), EntryTrampoline, cm.perBlock,
		func(ctx context.Context, slot int, args []uint64) ([]uint64, error) {
			return cm.trampoline(ctx, block[slot], args)
		})
	cm.bases = append(cm.bases, base)
}

func (cm *CallbackManager) trampoline(ctx context.Context, s *callbackSlot, args []uint64) ([]uint64, error) {
	addr, err := cm.resolve(ctx, s)
	if err != nil {
		return nil, err
	}
	return cm.space.Call(ctx, addr, args...)
}

// Resolve runs the action behind trampoline addr, or waits for the run in
// progress, and returns the final address.
func (cm *CallbackManager) Resolve(ctx context.Context, addr TargetAddress) (TargetAddress, error) {
	s, err := cm.slotAt(addr)
	if err != nil {
		return 0, err
	}
	return cm.resolve(ctx, s)
}

func (cm *CallbackManager) slotAt(addr TargetAddress) (*callbackSlot, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	idx, err := cm.indexAt(addr)
	if err != nil {
		return nil, err
	}
	return cm.blocks[idx/cm.perBlock][idx%cm.perBlock], nil
}

// indexAt maps a handed out trampoline address to its slot index. Called
// with mu held.
func (cm *CallbackManager) indexAt(addr TargetAddress) (int, error) {
	for b, base := range cm.bases {
		if addr < base || addr >= base+TargetAddress(cm.perBlock)*SlotSize {
			continue
		}
		idx := b*cm.perBlock + int((addr-base)/SlotSize)
		if idx >= cm.next {
			break
		}
		return idx, nil
	}
	return 0, errors.New(errors.PhaseRun, errors.KindNotFound).
		Detail("no compile callback at %s", addr).
		Build()
}

func (cm *CallbackManager) resolve(ctx context.Context, s *callbackSlot) (TargetAddress, error) {
	for {
		switch s.state.Load() {
		case slotResolved:
			return s.addr, nil
		case slotFailed:
			return 0, s.err
		case slotFree:
			return 0, errors.New(errors.PhaseRun, errors.KindNotFound).
				Detail("trampoline called while unassigned").
				Build()
		case slotPending:
			if s.state.CompareAndSwap(slotPending, slotCompiling) {
				return cm.fire(ctx, s)
			}
		case slotCompiling:
			select {
			case <-s.done:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
}

// fire runs the action. Only the goroutine that won the pending to
// compiling transition gets here.
func (cm *CallbackManager) fire(ctx context.Context, s *callbackSlot) (TargetAddress, error) {
	cm.fired.Add(1)
	log := Logger().With(zap.String("symbol", s.name))
	log.Debug("compile callback fired")

	addr, err := runAction(ctx, s.name, s.action)
	if err != nil {
		cm.failed.Add(1)
		s.err = err
		s.state.Store(slotFailed)
		log.Debug("compile callback failed", zap.Error(err))
	} else {
		s.addr = addr
		s.state.Store(slotResolved)
		log.Debug("compile callback resolved", zap.Stringer("address", addr))
	}
	s.action = nil
	close(s.done)
	return addr, err
}

// runAction converts a panicking action into an error so waiters are always
// released.
func runAction(ctx context.Context, name string, action CompileAction) (addr TargetAddress, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseCompile, errors.KindCompileFailure).
				Symbol(name).
				Detail("compile action panicked: %v", r).
				Build()
		}
	}()
	return action(ctx)
}

// Stats reports pool usage.
func (cm *CallbackManager) Stats() CallbackStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return CallbackStats{
		Reserved: len(cm.blocks) * cm.perBlock,
		Assigned: cm.next - len(cm.free),
		Fired:    int(cm.fired.Load()),
		Failed:   int(cm.failed.Load()),
	}
}
