package orc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lazyjit/errors"
)

// EntryKind says what an address refers to.
type EntryKind uint8

const (
	EntryFunc       EntryKind = iota // compiled function
	EntryStub                        // indirect stub
	EntryTrampoline                  // compile callback trampoline
	EntryHost                        // host process function
	EntryData                        // data cell
)

func (k EntryKind) String() string {
	switch k {
	case EntryFunc:
		return "func"
	case EntryStub:
		return "stub"
	case EntryTrampoline:
		return "trampoline"
	case EntryHost:
		return "host"
	case EntryData:
		return "data"
	}
	return "unknown"
}

// CallFunc is the behavior behind a callable address. slot is the offset of
// the called address within its region.
type CallFunc func(ctx context.Context, slot int, args []uint64) ([]uint64, error)

// Cell is a word of data at a data address.
type Cell interface {
	Get() uint64
	Set(v uint64)
}

// Region describes a mapped address range.
type Region struct {
	call     CallFunc
	cell     Cell
	Name     string
	Instance string // wasm module instance owning the data, if any
	Export   string // export name within Instance
	Base     TargetAddress
	Slots    int
	Kind     EntryKind
}

// Contains reports whether addr falls inside r.
func (r *Region) Contains(addr TargetAddress) bool {
	return addr >= r.Base && addr < r.Base+TargetAddress(r.Slots)*SlotSize
}

// SlotSize is the distance between consecutive addresses.
const SlotSize = 16

// baseAddress is the first address handed out.
const baseAddress TargetAddress = 0x10000

// AddressSpace maps target addresses to code and data. Regions are kept in
// an ordered tree so any address inside a multi-slot region (a trampoline
// block) finds its region. Safe for concurrent use.
type AddressSpace struct {
	tree *btree.BTreeG[*Region]
	next TargetAddress
	mu   sync.RWMutex
}

// NewAddressSpace creates an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{
		tree: btree.NewG(8, func(a, b *Region) bool { return a.Base < b.Base }),
		next: baseAddress,
	}
}

func (as *AddressSpace) insert(r *Region) TargetAddress {
	if r.Slots < 1 {
		r.Slots = 1
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	r.Base = as.next
	as.next += TargetAddress(r.Slots) * SlotSize
	as.tree.ReplaceOrInsert(r)
	return r.Base
}

// MapFunc maps a single callable address.
func (as *AddressSpace) MapFunc(name string, kind EntryKind, call func(ctx context.Context, args []uint64) ([]uint64, error)) TargetAddress {
	return as.insert(&Region{
		Name: name,
		Kind: kind,
		call: func(ctx context.Context, _ int, args []uint64) ([]uint64, error) {
			return call(ctx, args)
		},
	})
}

// MapWasmFunc maps the exported function name of a wasm module instance.
// Each call resolves a fresh api.Function so that calls may nest and run
// concurrently.
func (as *AddressSpace) MapWasmFunc(name string, mod api.Module, export string) TargetAddress {
	return as.insert(&Region{
		Name:     name,
		Kind:     EntryFunc,
		Instance: mod.Name(),
		Export:   export,
		call: func(ctx context.Context, _ int, args []uint64) ([]uint64, error) {
			fn := mod.ExportedFunction(export)
			if fn == nil {
				return nil, errors.NotFound(errors.PhaseRun, "function export", export)
			}
			return fn.Call(ctx, args...)
		},
	})
}

// MapBlock maps slots consecutive callable addresses served by call and
// returns the first one.
func (as *AddressSpace) MapBlock(name string, kind EntryKind, slots int, call CallFunc) TargetAddress {
	return as.insert(&Region{Name: name, Kind: kind, Slots: slots, call: call})
}

// MapGlobal maps an exported global of a wasm module instance.
func (as *AddressSpace) MapGlobal(name string, mod api.Module, export string) (TargetAddress, error) {
	g := mod.ExportedGlobal(export)
	if g == nil {
		return 0, errors.NotFound(errors.PhaseLink, "global export", export)
	}
	return as.insert(&Region{
		Name:     name,
		Kind:     EntryData,
		Instance: mod.Name(),
		Export:   export,
		cell:     globalCell{g},
	}), nil
}

// MapCell maps a data cell that is not backed by a wasm global.
func (as *AddressSpace) MapCell(name string, cell Cell) TargetAddress {
	return as.insert(&Region{Name: name, Kind: EntryData, cell: cell})
}

// Unmap removes the region starting at addr. Its addresses are not reused.
func (as *AddressSpace) Unmap(addr TargetAddress) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	_, ok := as.tree.Delete(&Region{Base: addr})
	return ok
}

// Lookup returns the region containing addr.
func (as *AddressSpace) Lookup(addr TargetAddress) (*Region, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	var found *Region
	as.tree.DescendLessOrEqual(&Region{Base: addr}, func(r *Region) bool {
		found = r
		return false
	})
	if found == nil || !found.Contains(addr) {
		return nil, false
	}
	return found, true
}

// Call transfers control to addr.
func (as *AddressSpace) Call(ctx context.Context, addr TargetAddress, args ...uint64) ([]uint64, error) {
	r, ok := as.Lookup(addr)
	if !ok {
		return nil, errors.New(errors.PhaseRun, errors.KindNotFound).
			Detail("no code mapped at %s", addr).Build()
	}
	if r.call == nil {
		return nil, errors.New(errors.PhaseRun, errors.KindTypeMismatch).
			Symbol(r.Name).Detail("%s is a %s address, not callable", addr, r.Kind).Build()
	}
	slot := int((addr - r.Base) / SlotSize)
	return r.call(ctx, slot, args)
}

// Read loads the word at a data address.
func (as *AddressSpace) Read(addr TargetAddress) (uint64, error) {
	cell, err := as.cellAt(addr)
	if err != nil {
		return 0, err
	}
	return cell.Get(), nil
}

// Write stores a word at a data address.
func (as *AddressSpace) Write(addr TargetAddress, v uint64) error {
	cell, err := as.cellAt(addr)
	if err != nil {
		return err
	}
	cell.Set(v)
	return nil
}

func (as *AddressSpace) cellAt(addr TargetAddress) (Cell, error) {
	r, ok := as.Lookup(addr)
	if !ok || r.Base != addr {
		return nil, errors.New(errors.PhaseRun, errors.KindNotFound).
			Detail("no data mapped at %s", addr).Build()
	}
	if r.cell == nil {
		return nil, errors.New(errors.PhaseRun, errors.KindTypeMismatch).
			Symbol(r.Name).Detail("%s is a %s address, not data", addr, r.Kind).Build()
	}
	return r.cell, nil
}

// Regions returns all mapped regions in address order.
func (as *AddressSpace) Regions() []*Region {
	as.mu.RLock()
	defer as.mu.RUnlock()
	out := make([]*Region, 0, as.tree.Len())
	as.tree.Ascend(func(r *Region) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the number of mapped regions.
func (as *AddressSpace) Len() int {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.tree.Len()
}

type globalCell struct {
	g api.Global
}

func (c globalCell) Get() uint64 { return c.g.Get() }

func (c globalCell) Set(v uint64) {
	if mg, ok := c.g.(api.MutableGlobal); ok {
		mg.Set(v)
	}
}

// WordCell is a Cell held in Go memory.
type WordCell struct {
	v atomic.Uint64
}

func (c *WordCell) Get() uint64  { return c.v.Load() }
func (c *WordCell) Set(v uint64) { c.v.Store(v) }

// String describes the region for diagnostics.
func (r *Region) String() string {
	if r.Slots > 1 {
		return fmt.Sprintf("%s %s [%s, +%d)", r.Kind, r.Name, r.Base, r.Slots)
	}
	return fmt.Sprintf("%s %s @%s", r.Kind, r.Name, r.Base)
}
