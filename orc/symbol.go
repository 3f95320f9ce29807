package orc

import (
	"context"
	"fmt"
	"strings"
)

// TargetAddress is the address of executable code or data in an
// AddressSpace. Zero is never a valid address.
type TargetAddress uint64

func (a TargetAddress) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// SymbolFlags describe a symbol's visibility and kind.
type SymbolFlags uint8

const (
	FlagExported SymbolFlags = 1 << iota
	FlagWeak
	FlagCallable
	FlagData
)

func (f SymbolFlags) String() string {
	var parts []string
	for _, p := range []struct {
		flag SymbolFlags
		name string
	}{
		{FlagExported, "exported"},
		{FlagWeak, "weak"},
		{FlagCallable, "callable"},
		{FlagData, "data"},
	} {
		if f&p.flag != 0 {
			parts = append(parts, p.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Materializer produces a symbol's address on demand.
type Materializer func(ctx context.Context) (TargetAddress, error)

// Symbol is a named definition. Its address is either known or produced by
// a materializer the first time Address is called; the materializer decides
// whether repeated calls are cached.
type Symbol struct {
	materialize Materializer
	name        string
	addr        TargetAddress
	flags       SymbolFlags
}

// NewSymbol returns a symbol with a known address.
func NewSymbol(name string, addr TargetAddress, flags SymbolFlags) Symbol {
	return Symbol{name: name, addr: addr, flags: flags}
}

// LazySymbol returns a symbol whose address is produced by m.
func LazySymbol(name string, flags SymbolFlags, m Materializer) Symbol {
	return Symbol{name: name, flags: flags, materialize: m}
}

func (s Symbol) Name() string         { return s.name }
func (s Symbol) Flags() SymbolFlags   { return s.flags }
func (s Symbol) IsExported() bool     { return s.flags&FlagExported != 0 }
func (s Symbol) IsWeak() bool         { return s.flags&FlagWeak != 0 }
func (s Symbol) IsCallable() bool     { return s.flags&FlagCallable != 0 }
func (s Symbol) IsData() bool         { return s.flags&FlagData != 0 }
func (s Symbol) IsMaterialized() bool { return s.materialize == nil }

// Address returns the symbol's address, materializing it if needed.
func (s Symbol) Address(ctx context.Context) (TargetAddress, error) {
	if s.materialize == nil {
		return s.addr, nil
	}
	return s.materialize(ctx)
}

// Resolver finds symbols by name. A missing symbol is reported as
// (Symbol{}, false, nil); errors are reserved for failed lookups.
type Resolver interface {
	FindSymbol(ctx context.Context, name string) (Symbol, bool, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (Symbol, bool, error)

// FindSymbol implements Resolver.
func (f ResolverFunc) FindSymbol(ctx context.Context, name string) (Symbol, bool, error) {
	return f(ctx, name)
}

// NullResolver resolves nothing.
var NullResolver Resolver = ResolverFunc(func(context.Context, string) (Symbol, bool, error) {
	return Symbol{}, false, nil
})

// ChainResolvers searches each resolver in order and returns the first hit.
func ChainResolvers(rs ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (Symbol, bool, error) {
		for _, r := range rs {
			if r == nil {
				continue
			}
			sym, ok, err := r.FindSymbol(ctx, name)
			if err != nil || ok {
				return sym, ok, err
			}
		}
		return Symbol{}, false, nil
	})
}
