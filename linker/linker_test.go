package linker

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/object"
	"github.com/wippyai/lazyjit/orc"
)

type fixture struct {
	ctx    context.Context
	space  *orc.AddressSpace
	linker *Linker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { rt.Close(ctx) })
	space := orc.NewAddressSpace()
	return &fixture{ctx: ctx, space: space, linker: New(rt, space, Options{Session: "test"})}
}

func (f *fixture) compile(t *testing.T, m *ir.Module) *object.Object {
	t.Helper()
	obj, err := codegen.New().Compile(m, codegen.Target{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return obj
}

func (f *fixture) link(t *testing.T, m *ir.Module, r orc.Resolver) *orc.LinkedObject {
	t.Helper()
	lo, err := f.linker.Link(f.ctx, f.compile(t, m), r)
	if err != nil {
		t.Fatalf("Link(%s): %v", m.Name, err)
	}
	return lo
}

func (f *fixture) call(t *testing.T, lo *orc.LinkedObject, name string, args ...uint64) uint64 {
	t.Helper()
	sym, ok := lo.FindSymbol(name, false)
	if !ok {
		t.Fatalf("symbol %q not found", name)
	}
	addr, err := sym.Address(f.ctx)
	if err != nil {
		t.Fatalf("Address(%s): %v", name, err)
	}
	res, err := f.space.Call(f.ctx, addr, args...)
	if err != nil {
		t.Fatalf("Call(%s): %v", name, err)
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

// tableResolver resolves from a fixed symbol map.
func tableResolver(syms map[string]orc.Symbol) orc.Resolver {
	return orc.ResolverFunc(func(_ context.Context, name string) (orc.Symbol, bool, error) {
		s, ok := syms[name]
		return s, ok, nil
	})
}

func addTenModule() *ir.Module {
	m := ir.NewModule("user")
	m.AddFunction(&ir.Function{Name: "ten", Result: ir.I32})
	m.AddFunction(&ir.Function{
		Name:   "addTen",
		Params: []ir.Type{ir.I32},
		Result: ir.I32,
		Body:   ir.Add(ir.Arg(0), ir.Call("ten")),
	})
	return m
}

func TestLink_NoImports(t *testing.T) {
	f := newFixture(t)
	m := ir.NewModule("lib")
	m.AddFunction(&ir.Function{Name: "ten", Result: ir.I32, Body: ir.ConstI32(10)})
	lo := f.link(t, m, nil)

	if got := f.call(t, lo, "ten"); got != 10 {
		t.Errorf("ten() = %d", got)
	}
	sym, _ := lo.FindSymbol("ten", true)
	if !sym.IsCallable() || !sym.IsExported() || sym.IsData() {
		t.Errorf("flags = %v", sym.Flags())
	}
	if lo.Module != "lib" || lo.Instance == "" {
		t.Errorf("linked object = %+v", lo)
	}
}

func TestLink_ResolvesThroughAddressSpace(t *testing.T) {
	f := newFixture(t)
	tenAddr := f.space.MapFunc("ten", orc.EntryHost, func(context.Context, []uint64) ([]uint64, error) {
		return []uint64{10}, nil
	})
	lo := f.link(t, addTenModule(), tableResolver(map[string]orc.Symbol{
		"ten": orc.NewSymbol("ten", tenAddr, orc.FlagExported|orc.FlagCallable),
	}))

	if got := api.DecodeI32(f.call(t, lo, "addTen", api.EncodeI32(5))); got != 15 {
		t.Errorf("addTen(5) = %d, want 15", got)
	}
}

func TestLink_CrossObjectCall(t *testing.T) {
	f := newFixture(t)
	lib := ir.NewModule("lib")
	lib.AddFunction(&ir.Function{Name: "ten", Result: ir.I32, Body: ir.ConstI32(10)})
	libObj := f.link(t, lib, nil)

	resolver := orc.ResolverFunc(func(_ context.Context, name string) (orc.Symbol, bool, error) {
		s, ok := libObj.FindSymbol(name, true)
		return s, ok, nil
	})
	user := f.link(t, addTenModule(), resolver)
	if got := api.DecodeI32(f.call(t, user, "addTen", api.EncodeI32(-3))); got != 7 {
		t.Errorf("addTen(-3) = %d, want 7", got)
	}
}

func TestLink_LazySymbolNotForced(t *testing.T) {
	f := newFixture(t)
	var materialized atomic.Int32
	tenAddr := f.space.MapFunc("ten", orc.EntryHost, func(context.Context, []uint64) ([]uint64, error) {
		return []uint64{10}, nil
	})
	lazy := orc.LazySymbol("ten", orc.FlagExported|orc.FlagCallable, func(context.Context) (orc.TargetAddress, error) {
		materialized.Add(1)
		return tenAddr, nil
	})

	lo := f.link(t, addTenModule(), tableResolver(map[string]orc.Symbol{"ten": lazy}))
	if materialized.Load() != 0 {
		t.Fatal("linking materialized a lazy symbol")
	}
	f.call(t, lo, "addTen", 1)
	if materialized.Load() != 1 {
		t.Errorf("materialized %d times after first call", materialized.Load())
	}
}

func TestLink_Unresolved(t *testing.T) {
	f := newFixture(t)
	m := ir.NewModule("user")
	m.AddFunction(&ir.Function{Name: "a", Result: ir.I32})
	m.AddFunction(&ir.Function{Name: "b", Result: ir.I32})
	m.AddFunction(&ir.Function{
		Name:   "both",
		Result: ir.I32,
		Body:   ir.Add(ir.Call("a"), ir.Call("b")),
	})

	_, err := f.linker.Link(f.ctx, f.compile(t, m), nil)
	if !errors.Is(err, errors.PhaseLink, errors.KindUnresolvedSymbol) {
		t.Fatalf("error = %v, want unresolved symbol", err)
	}
	var e *errors.Error
	if !asError(err, &e) || !reflect.DeepEqual(e.Symbols, []string{"a", "b"}) {
		t.Errorf("unresolved symbols = %v", e)
	}
}

func TestLink_ResolverError(t *testing.T) {
	f := newFixture(t)
	boom := fmt.Errorf("boom")
	r := orc.ResolverFunc(func(context.Context, string) (orc.Symbol, bool, error) {
		return orc.Symbol{}, false, boom
	})
	_, err := f.linker.Link(f.ctx, f.compile(t, addTenModule()), r)
	if err == nil || !errorsIsCause(err, boom) {
		t.Fatalf("error = %v, want wrapped resolver error", err)
	}
}

func TestLink_SharedGlobals(t *testing.T) {
	f := newFixture(t)
	data := ir.NewModule("data")
	data.AddGlobal(&ir.Global{Name: "counter", Type: ir.I64, Init: 5})
	dataObj := f.link(t, data, nil)

	user := ir.NewModule("user")
	user.AddGlobal(&ir.Global{Name: "counter", Type: ir.I64, Extern: true})
	user.AddFunction(&ir.Function{
		Name:   "bump",
		Result: ir.I64,
		Body: ir.Seq(
			ir.GlobalSet("counter", ir.Add(ir.GlobalGet("counter"), ir.ConstI64(1))),
			ir.GlobalGet("counter"),
		),
	})
	userObj := f.link(t, user, orc.ResolverFunc(func(_ context.Context, name string) (orc.Symbol, bool, error) {
		s, ok := dataObj.FindSymbol(name, true)
		return s, ok, nil
	}))

	if got := f.call(t, userObj, "bump"); got != 6 {
		t.Errorf("bump() = %d, want 6", got)
	}

	sym, _ := dataObj.FindSymbol("counter", true)
	if !sym.IsData() {
		t.Errorf("counter flags = %v", sym.Flags())
	}
	addr, _ := sym.Address(f.ctx)
	if v, err := f.space.Read(addr); err != nil || v != 6 {
		t.Errorf("Read(counter) = %d, %v", v, err)
	}
	if err := f.space.Write(addr, 100); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := f.call(t, userObj, "bump"); got != 101 {
		t.Errorf("bump() after write = %d, want 101", got)
	}
}

func TestLink_GlobalImportFromHostRejected(t *testing.T) {
	f := newFixture(t)
	cell := f.space.MapCell("counter", &orc.WordCell{})
	user := ir.NewModule("user")
	user.AddGlobal(&ir.Global{Name: "counter", Type: ir.I64, Extern: true})
	user.AddFunction(&ir.Function{Name: "get", Result: ir.I64, Body: ir.GlobalGet("counter")})

	_, err := f.linker.Link(f.ctx, f.compile(t, user), tableResolver(map[string]orc.Symbol{
		"counter": orc.NewSymbol("counter", cell, orc.FlagExported|orc.FlagData),
	}))
	if !errors.Is(err, errors.PhaseLink, errors.KindUnsupported) {
		t.Fatalf("error = %v, want unsupported", err)
	}
}

func TestLink_RelocationsAndAddresses(t *testing.T) {
	f := newFixture(t)
	extAddr := f.space.MapFunc("ext", orc.EntryHost, func(context.Context, []uint64) ([]uint64, error) {
		return nil, nil
	})

	m := ir.NewModule("relocs")
	m.AddFunction(&ir.Function{Name: "ten", Result: ir.I32, Body: ir.ConstI32(10)})
	m.AddGlobal(&ir.Global{Name: "localPtr", Type: ir.I64, InitSymbol: "ten"})
	m.AddGlobal(&ir.Global{Name: "extPtr", Type: ir.I64, InitSymbol: "ext"})
	m.AddFunction(&ir.Function{Name: "addrTen", Result: ir.I64, Body: ir.AddrOf("ten")})
	m.AddFunction(&ir.Function{Name: "addrExt", Result: ir.I64, Body: ir.AddrOf("ext")})

	lo := f.link(t, m, tableResolver(map[string]orc.Symbol{
		"ext": orc.NewSymbol("ext", extAddr, orc.FlagExported|orc.FlagCallable),
	}))

	tenSym, _ := lo.FindSymbol("ten", true)
	tenAddr, _ := tenSym.Address(f.ctx)

	read := func(name string) uint64 {
		s, ok := lo.FindSymbol(name, true)
		if !ok {
			t.Fatalf("%s not found", name)
		}
		addr, _ := s.Address(f.ctx)
		v, err := f.space.Read(addr)
		if err != nil {
			t.Fatalf("Read(%s): %v", name, err)
		}
		return v
	}

	if got := read("localPtr"); got != uint64(tenAddr) {
		t.Errorf("localPtr = %#x, want %#x", got, tenAddr)
	}
	if got := read("extPtr"); got != uint64(extAddr) {
		t.Errorf("extPtr = %#x, want %#x", got, extAddr)
	}
	if got := f.call(t, lo, "addrTen"); got != uint64(tenAddr) {
		t.Errorf("addrTen() = %#x, want %#x", got, tenAddr)
	}
	if got := f.call(t, lo, "addrExt"); got != uint64(extAddr) {
		t.Errorf("addrExt() = %#x, want %#x", got, extAddr)
	}

	// A function pointer read from data is callable.
	res, err := f.space.Call(f.ctx, orc.TargetAddress(read("localPtr")))
	if err != nil || res[0] != 10 {
		t.Errorf("call through localPtr = %v, %v", res, err)
	}
}

func TestLink_InternalSymbols(t *testing.T) {
	f := newFixture(t)
	m := ir.NewModule("lib")
	m.AddFunction(&ir.Function{Name: "helper", Result: ir.I32, Body: ir.ConstI32(1), Linkage: ir.Internal})
	m.AddFunction(&ir.Function{Name: "api", Result: ir.I32, Body: ir.Call("helper")})
	lo := f.link(t, m, nil)

	if _, ok := lo.FindSymbol("helper", true); ok {
		t.Error("internal symbol visible to exported-only lookup")
	}
	if _, ok := lo.FindSymbol("helper", false); !ok {
		t.Error("internal symbol missing from full lookup")
	}
	if got := f.call(t, lo, "api"); got != 1 {
		t.Errorf("api() = %d", got)
	}
	if n := len(lo.Symbols()); n != 2 {
		t.Errorf("got %d symbols", n)
	}
}

func TestLink_CalleeErrorPropagates(t *testing.T) {
	f := newFixture(t)
	boom := fmt.Errorf("host failure")
	tenAddr := f.space.MapFunc("ten", orc.EntryHost, func(context.Context, []uint64) ([]uint64, error) {
		return nil, boom
	})
	lo := f.link(t, addTenModule(), tableResolver(map[string]orc.Symbol{
		"ten": orc.NewSymbol("ten", tenAddr, orc.FlagExported|orc.FlagCallable),
	}))

	sym, _ := lo.FindSymbol("addTen", true)
	addr, _ := sym.Address(f.ctx)
	if _, err := f.space.Call(f.ctx, addr, 1); !errorsIsCause(err, boom) {
		t.Fatalf("error = %v, want host failure", err)
	}

	// The instance stays usable after a failed call.
	if _, err := f.space.Call(f.ctx, addr, 1); !errorsIsCause(err, boom) {
		t.Fatalf("second call error = %v", err)
	}
}

func TestLink_UniqueInstanceNames(t *testing.T) {
	f := newFixture(t)
	m := ir.NewModule("same")
	m.AddFunction(&ir.Function{Name: "f", Result: ir.I32, Body: ir.ConstI32(1)})
	a := f.link(t, m, nil)
	b := f.link(t, m, nil)
	if a.Instance == b.Instance {
		t.Errorf("instances share name %q", a.Instance)
	}
}
