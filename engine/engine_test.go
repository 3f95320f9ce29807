package engine

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lazyjit/codegen"
	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/host"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/orc"
)

// recorder is a host function appending its argument to a log.
type recorder struct {
	log []int32
	mu  sync.Mutex
}

func (r *recorder) record(x int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, x)
}

func (r *recorder) entries() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.log...)
}

type testEngine struct {
	*Engine
	ctx     context.Context
	counter *codegen.Counting
	rec     *recorder
}

func newTestEngine(t *testing.T, target codegen.Target) *testEngine {
	t.Helper()
	ctx := context.Background()
	rec := &recorder{}
	table := host.Process(nil)
	table.MustRegister("record", rec.record)
	table.MustRegister("abs", func(x int32) int32 { return -1 })

	counter := codegen.NewCounting(codegen.New())
	cfg := DefaultConfig()
	cfg.Target = target
	cfg.Backend = BackendInterpreter
	cfg.Generator = counter
	cfg.Host = table

	e, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close(ctx) })
	return &testEngine{Engine: e, ctx: ctx, counter: counter, rec: rec}
}

func (te *testEngine) add(t *testing.T, m *ir.Module) orc.ModuleHandle {
	t.Helper()
	h, err := te.AddModule(te.ctx, m)
	if err != nil {
		t.Fatalf("AddModule(%s): %v", m.Name, err)
	}
	return h
}

func (te *testEngine) lookup(t *testing.T, h orc.ModuleHandle, name string) orc.TargetAddress {
	t.Helper()
	sym, ok, err := te.FindSymbolIn(te.ctx, h, name)
	if err != nil || !ok {
		t.Fatalf("FindSymbolIn(%s) = %v, %v", name, ok, err)
	}
	addr, _ := sym.Address(te.ctx)
	return addr
}

func (te *testEngine) call(t *testing.T, addr orc.TargetAddress, args ...uint64) uint64 {
	t.Helper()
	res, err := te.Call(te.ctx, addr, args...)
	if err != nil {
		t.Fatalf("Call(%s): %v", addr, err)
	}
	if len(res) == 0 {
		return 0
	}
	return res[0]
}

func addTenModule() *ir.Module {
	m := ir.NewModule("user")
	m.AddFunction(&ir.Function{Name: "ten", Result: ir.I32, Body: ir.ConstI32(10)})
	m.AddFunction(&ir.Function{
		Name:   "addTen",
		Params: []ir.Type{ir.I32},
		Result: ir.I32,
		Body:   ir.Add(ir.Arg(0), ir.Call("ten")),
	})
	return m
}

// recordModule defines a destructor that records id.
func recordModule(name string, id int32) *ir.Module {
	m := ir.NewModule(name)
	m.AddFunction(&ir.Function{Name: "record", Params: []ir.Type{ir.I32}})
	m.AddFunction(&ir.Function{Name: name + "_fini", Body: ir.Call("record", ir.ConstI32(id))})
	m.AddDtor(name+"_fini", ir.DefaultPriority)
	return m
}

func TestEngine_AddTen(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	h := te.add(t, addTenModule())

	if te.counter.Total() != 0 {
		t.Fatalf("AddModule compiled eagerly: %v", te.counter.Counts())
	}

	addr := te.lookup(t, h, "addTen")
	if got := api.DecodeI32(te.call(t, addr, api.EncodeI32(5))); got != 15 {
		t.Errorf("addTen(5) = %d", got)
	}
	want := map[string]int{"user/addTen": 1, "user/ten": 1}
	if got := te.counter.Counts(); !reflect.DeepEqual(got, want) {
		t.Errorf("compile counts = %v, want %v", got, want)
	}

	for i := 0; i < 3; i++ {
		if again := te.lookup(t, h, "addTen"); again != addr {
			t.Errorf("lookup %d returned %s, first returned %s", i, again, addr)
		}
		te.call(t, addr, 1)
	}
	if got := te.counter.Counts(); !reflect.DeepEqual(got, want) {
		t.Errorf("compile counts after repeated use = %v", got)
	}
}

func TestEngine_FindSymbolDoesNotCompile(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	te.add(t, addTenModule())

	sym, ok, err := te.FindSymbol(te.ctx, "addTen")
	if err != nil || !ok {
		t.Fatalf("FindSymbol = %v, %v", ok, err)
	}
	if te.counter.Total() != 0 {
		t.Fatalf("FindSymbol compiled: %v", te.counter.Counts())
	}

	addr, _ := sym.Address(te.ctx)
	if got := api.DecodeI32(te.call(t, addr, api.EncodeI32(1))); got != 11 {
		t.Errorf("addTen(1) through stub = %d", got)
	}
	if te.counter.Total() != 2 {
		t.Errorf("counts = %v", te.counter.Counts())
	}
}

func TestEngine_ConstructorBeforeReturn(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	m := ir.NewModule("ctor")
	m.AddGlobal(&ir.Global{Name: "sentinel", Type: ir.I32})
	m.AddFunction(&ir.Function{Name: "init", Body: ir.GlobalSet("sentinel", ir.ConstI32(42))})
	m.AddFunction(&ir.Function{Name: "late", Body: ir.GlobalSet("sentinel", ir.ConstI32(7))})
	m.AddCtor("late", 200)
	m.AddCtor("init", 100)
	te.add(t, m)

	sym, ok, _ := te.FindSymbol(te.ctx, "sentinel")
	if !ok {
		t.Fatal("sentinel not found")
	}
	addr, _ := sym.Address(te.ctx)
	v, err := te.ReadGlobal(addr)
	if err != nil {
		t.Fatalf("ReadGlobal: %v", err)
	}
	if v != 7 {
		t.Errorf("sentinel = %d, want 7 (init at priority 100, then late at 200)", v)
	}

	if err := te.WriteGlobal(addr, 1); err != nil {
		t.Fatalf("WriteGlobal: %v", err)
	}
	if v, _ := te.ReadGlobal(addr); v != 1 {
		t.Errorf("sentinel after write = %d", v)
	}
}

func TestEngine_TeardownOrder(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	te.add(t, recordModule("A", 1))
	te.add(t, recordModule("B", 2))

	atexit := ir.NewModule("C")
	atexit.AddFunction(&ir.Function{Name: "__cxa_atexit", Params: []ir.Type{ir.I64, ir.I64, ir.I64}, Result: ir.I32})
	atexit.AddFunction(&ir.Function{Name: "record", Params: []ir.Type{ir.I32}})
	atexit.AddFunction(&ir.Function{
		Name:   "cleanup",
		Params: []ir.Type{ir.I64},
		Body:   ir.Call("record", ir.Wrap(ir.Arg(0))),
	})
	atexit.AddFunction(&ir.Function{
		Name:   "setup",
		Result: ir.I32,
		Body:   ir.Call("__cxa_atexit", ir.AddrOf("cleanup"), ir.ConstI64(7), ir.AddrOf("__dso_handle")),
	})
	atexit.AddCtor("setup", ir.DefaultPriority)
	te.add(t, atexit)

	if got := te.rec.entries(); len(got) != 0 {
		t.Fatalf("destructors ran early: %v", got)
	}
	if err := te.Close(te.ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := []int32{7, 2, 1}; !reflect.DeepEqual(te.rec.entries(), want) {
		t.Errorf("teardown log = %v, want %v", te.rec.entries(), want)
	}
}

func TestEngine_DestructorsWithinModuleReverse(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	m := ir.NewModule("m")
	m.AddFunction(&ir.Function{Name: "record", Params: []ir.Type{ir.I32}})
	m.AddFunction(&ir.Function{Name: "d1", Body: ir.Call("record", ir.ConstI32(1))})
	m.AddFunction(&ir.Function{Name: "d2", Body: ir.Call("record", ir.ConstI32(2))})
	m.AddDtor("d1", ir.DefaultPriority)
	m.AddDtor("d2", ir.DefaultPriority)
	te.add(t, m)

	if err := te.Close(te.ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if want := []int32{2, 1}; !reflect.DeepEqual(te.rec.entries(), want) {
		t.Errorf("teardown log = %v, want %v", te.rec.entries(), want)
	}
}

func TestEngine_DataFailureLeavesNoStubs(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	m := addTenModule()
	m.AddGlobal(&ir.Global{Name: "ptr", Type: ir.I64, InitSymbol: "nowhere"})

	_, err := te.AddModule(te.ctx, m)
	if !errors.Is(err, errors.PhaseLink, errors.KindUnresolvedSymbol) {
		t.Fatalf("AddModule error = %v", err)
	}
	if st := te.Stats(); st.Modules != 0 || st.Stubs != 0 || st.Callbacks.Assigned != 0 {
		t.Errorf("stats after failed add = %+v", st)
	}
	if len(te.Handles()) != 0 {
		t.Errorf("handles = %v", te.Handles())
	}
	if _, ok, _ := te.FindSymbol(te.ctx, "addTen"); ok {
		t.Error("failed module still satisfies lookups")
	}

	h := te.add(t, addTenModule())
	if got := api.DecodeI32(te.call(t, te.lookup(t, h, "addTen"), api.EncodeI32(5))); got != 15 {
		t.Errorf("addTen(5) = %d", got)
	}
	if st := te.Stats(); st.Modules != 1 || st.Stubs != 2 || st.Callbacks.Assigned != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEngine_ResolutionPrecedence(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})

	lib := ir.NewModule("lib")
	lib.AddFunction(&ir.Function{Name: "abs", Params: []ir.Type{ir.I32}, Result: ir.I32, Body: ir.ConstI32(99)})
	te.add(t, lib)

	app := ir.NewModule("app")
	app.AddFunction(&ir.Function{Name: "abs", Params: []ir.Type{ir.I32}, Result: ir.I32})
	app.AddFunction(&ir.Function{Name: "labs", Params: []ir.Type{ir.I64}, Result: ir.I64})
	app.AddFunction(&ir.Function{
		Name:   "useAbs",
		Result: ir.I32,
		Body:   ir.Call("abs", ir.ConstI32(-5)),
	})
	app.AddFunction(&ir.Function{
		Name:   "useLabs",
		Result: ir.I64,
		Body:   ir.Call("labs", ir.ConstI64(-5)),
	})
	h := te.add(t, app)

	if got := api.DecodeI32(te.call(t, te.lookup(t, h, "useAbs"))); got != 99 {
		t.Errorf("useAbs() = %d, want the module definition", got)
	}
	if got := int64(te.call(t, te.lookup(t, h, "useLabs"))); got != 5 {
		t.Errorf("useLabs() = %d, want the host definition", got)
	}
}

func TestEngine_MangledTarget(t *testing.T) {
	te := newTestEngine(t, codegen.Target{Name: "darwin", GlobalPrefix: "_"})
	m := ir.NewModule("m")
	m.AddFunction(&ir.Function{Name: "labs", Params: []ir.Type{ir.I64}, Result: ir.I64})
	m.AddFunction(&ir.Function{Name: "f", Result: ir.I64, Body: ir.Call("labs", ir.ConstI64(-3))})
	h := te.add(t, m)

	sym, ok, _ := te.FindSymbol(te.ctx, "f")
	if !ok || sym.Name() != "_f" {
		t.Fatalf("FindSymbol(f) = %q, %v", sym.Name(), ok)
	}
	if got := te.call(t, te.lookup(t, h, "f")); got != 3 {
		t.Errorf("f() = %d", got)
	}
}

func TestEngine_LookupMiss(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	h := te.add(t, addTenModule())

	if _, ok, err := te.FindSymbol(te.ctx, "nowhere"); ok || err != nil {
		t.Errorf("FindSymbol(nowhere) = %v, %v", ok, err)
	}
	if _, ok, err := te.FindSymbolIn(te.ctx, h, "nowhere"); ok || err != nil {
		t.Errorf("FindSymbolIn(nowhere) = %v, %v", ok, err)
	}
	if _, _, err := te.FindSymbolIn(te.ctx, h+100, "addTen"); !errors.Is(err, errors.PhaseLookup, errors.KindNotFound) {
		t.Errorf("FindSymbolIn(unknown handle) error = %v", err)
	}

	if got := api.DecodeI32(te.call(t, te.lookup(t, h, "addTen"), api.EncodeI32(0))); got != 10 {
		t.Errorf("engine unusable after a miss: addTen(0) = %d", got)
	}
}

func TestEngine_UnresolvedAtCall(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	m := ir.NewModule("m")
	m.AddFunction(&ir.Function{Name: "undefinedEverywhere", Result: ir.I32})
	m.AddFunction(&ir.Function{Name: "f", Result: ir.I32, Body: ir.Call("undefinedEverywhere")})
	h := te.add(t, m)

	_, _, err := te.FindSymbolIn(te.ctx, h, "f")
	if !errors.Is(err, errors.PhaseLink, errors.KindUnresolvedSymbol) {
		t.Fatalf("FindSymbolIn(f) error = %v", err)
	}
	_, _, err = te.FindSymbolIn(te.ctx, h, "f")
	if !errors.Is(err, errors.PhaseLookup, errors.KindModuleFailed) {
		t.Errorf("second FindSymbolIn error = %v", err)
	}

	other := te.add(t, addTenModule())
	if te.lookup(t, other, "addTen") == 0 {
		t.Error("engine unusable after a failed module")
	}
}

func TestEngine_ConstructorFailure(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	m := recordModule("bad", 1)
	m.AddFunction(&ir.Function{Name: "missing"})
	m.AddFunction(&ir.Function{Name: "init", Body: ir.Call("missing")})
	m.AddCtor("init", ir.DefaultPriority)

	_, err := te.AddModule(te.ctx, m)
	if !errors.Is(err, errors.PhaseRun, errors.KindModuleFailed) {
		t.Fatalf("AddModule error = %v", err)
	}
	if !errors.Is(err, errors.PhaseLink, errors.KindUnresolvedSymbol) {
		t.Errorf("error does not carry the cause: %v", err)
	}
	if len(te.Handles()) != 0 {
		t.Errorf("handles = %v", te.Handles())
	}
	if _, ok, _ := te.FindSymbol(te.ctx, "bad_fini"); ok {
		t.Error("failed module still satisfies lookups")
	}

	if err := te.Close(te.ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := te.rec.entries(); len(got) != 0 {
		t.Errorf("destructors of a failed module ran: %v", got)
	}
}

func TestEngine_Closed(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	h := te.add(t, addTenModule())
	addr := te.lookup(t, h, "addTen")

	if err := te.Close(te.ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := te.Close(te.ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := te.AddModule(te.ctx, addTenModule()); !errors.Is(err, errors.PhaseSubmit, errors.KindClosed) {
		t.Errorf("AddModule error = %v", err)
	}
	if _, _, err := te.FindSymbol(te.ctx, "addTen"); !errors.Is(err, errors.PhaseLookup, errors.KindClosed) {
		t.Errorf("FindSymbol error = %v", err)
	}
	if _, err := te.Call(te.ctx, addr, 1); !errors.Is(err, errors.PhaseRun, errors.KindClosed) {
		t.Errorf("Call error = %v", err)
	}
	if _, err := te.ReadGlobal(addr); !errors.Is(err, errors.PhaseRun, errors.KindClosed) {
		t.Errorf("ReadGlobal error = %v", err)
	}
}

func TestEngine_InvalidModule(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	if _, err := te.AddModule(te.ctx, nil); !errors.Is(err, errors.PhaseSubmit, errors.KindInvalidInput) {
		t.Errorf("nil module error = %v", err)
	}
	if _, err := te.AddModule(te.ctx, ir.NewModule("")); !errors.Is(err, errors.PhaseSubmit, errors.KindInvalidInput) {
		t.Errorf("unnamed module error = %v", err)
	}
}

func TestEngine_ConcurrentFirstCalls(t *testing.T) {
	te := newTestEngine(t, codegen.Target{})
	h := te.add(t, addTenModule())
	sym, _, _ := te.FindSymbol(te.ctx, "addTen")
	stub, _ := sym.Address(te.ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := te.Call(te.ctx, stub, api.EncodeI32(int32(i)))
			if err != nil {
				errs <- err
				return
			}
			if got := api.DecodeI32(res[0]); got != int32(i)+10 {
				errs <- errors.InvalidInput(errors.PhaseRun, "wrong result")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if n := te.counter.Count("user/addTen"); n != 1 {
		t.Errorf("addTen compiled %d times", n)
	}
	te.lookup(t, h, "ten")
	if n := te.counter.Count("user/ten"); n != 1 {
		t.Errorf("ten compiled %d times", n)
	}
}
