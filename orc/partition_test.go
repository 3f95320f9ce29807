package orc

import (
	"testing"

	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/ir"
)

func TestPartition(t *testing.T) {
	m := ir.NewModule("m")
	m.AddGlobal(&ir.Global{Name: "counter", Type: ir.I32, Init: 3})
	m.AddFunction(&ir.Function{Name: "ext", Params: []ir.Type{ir.I32}, Result: ir.I32})
	m.AddFunction(&ir.Function{Name: "helper", Result: ir.I32, Body: ir.ConstI32(1), Linkage: ir.Internal})
	fact := m.AddFunction(&ir.Function{
		Name:    "fact",
		Params:  []ir.Type{ir.I32},
		Result:  ir.I32,
		Linkage: ir.Weak,
		Body: ir.If(ir.Eqz(ir.Arg(0)),
			ir.Call("helper"),
			ir.Mul(ir.Arg(0), ir.Call("fact", ir.Sub(ir.Arg(0), ir.Call("ext", ir.GlobalGet("counter")))))),
	})
	m.AddFunction(&ir.Function{Name: "unused", Result: ir.I32, Body: ir.ConstI32(0)})

	p := moduleSet{m}.partition(m, fact)

	if p.Name != "m/fact" {
		t.Errorf("Name = %q", p.Name)
	}
	if len(p.Functions) != 3 {
		t.Fatalf("got %d functions", len(p.Functions))
	}
	if f := p.Function("fact"); f == nil || f.IsDeclaration() || f.Linkage != ir.Weak {
		t.Errorf("fact = %+v", f)
	}
	for _, name := range []string{"ext", "helper"} {
		f := p.Function(name)
		if f == nil || !f.IsDeclaration() {
			t.Errorf("%s = %+v, want a declaration", name, f)
		}
	}
	if p.Function("unused") != nil {
		t.Error("unreferenced function included")
	}
	if g := p.Global("counter"); g == nil || !g.Extern {
		t.Errorf("counter = %+v, want extern", g)
	}
	if m.Function("helper").IsDeclaration() {
		t.Error("partitioning modified the source module")
	}
}

func TestPartition_AcrossSet(t *testing.T) {
	a := ir.NewModule("a")
	b := ir.NewModule("b")
	b.AddFunction(&ir.Function{Name: "inB", Params: []ir.Type{ir.I64}, Result: ir.I64, Body: ir.Arg(0)})
	b.AddGlobal(&ir.Global{Name: "shared", Type: ir.I64})
	user := a.AddFunction(&ir.Function{
		Name:   "user",
		Result: ir.I64,
		Body:   ir.Call("inB", ir.GlobalGet("shared")),
	})

	p := moduleSet{a, b}.partition(a, user)
	if f := p.Function("inB"); f == nil || !f.IsDeclaration() || f.Result != ir.I64 {
		t.Errorf("inB = %+v", f)
	}
	if g := p.Global("shared"); g == nil || !g.Extern || g.Type != ir.I64 {
		t.Errorf("shared = %+v", g)
	}
}

func TestDataPartition(t *testing.T) {
	a := ir.NewModule("a")
	a.AddGlobal(&ir.Global{Name: "x", Type: ir.I32, Init: 1})
	a.AddGlobal(&ir.Global{Name: "y", Type: ir.I64, Extern: true})
	b := ir.NewModule("b")
	b.AddGlobal(&ir.Global{Name: "y", Type: ir.I64, InitSymbol: "x"})

	globals, err := moduleSet{a, b}.globals()
	if err != nil {
		t.Fatal(err)
	}
	p := dataPartition("a+b", globals)
	if p == nil || p.Name != "a+b/.data" {
		t.Fatalf("data partition = %+v", p)
	}
	if len(p.Globals) != 2 || p.Globals[0].Name != "x" || p.Globals[1].InitSymbol != "x" {
		t.Errorf("globals = %+v", p.Globals)
	}
	if len(p.Functions) != 0 {
		t.Errorf("functions = %+v", p.Functions)
	}

	empty := ir.NewModule("e")
	empty.AddFunction(&ir.Function{Name: "f", Body: ir.ConstI32(0)})
	globals, err = moduleSet{empty}.globals()
	if err != nil {
		t.Fatal(err)
	}
	if p := dataPartition("e", globals); p != nil {
		t.Errorf("data partition for a module without globals = %+v", p)
	}
}

func TestModuleSetGlobals_Linkage(t *testing.T) {
	global := func(linkage ir.Linkage, init int64) *ir.Global {
		return &ir.Global{Name: "g", Type: ir.I32, Init: init, Linkage: linkage}
	}
	tests := []struct {
		name    string
		a, b    *ir.Global
		want    int64
		wantErr bool
	}{
		{"weak then strong", global(ir.Weak, 1), global(ir.External, 2), 2, false},
		{"strong then weak", global(ir.External, 1), global(ir.Weak, 2), 1, false},
		{"weak then weak", global(ir.Weak, 1), global(ir.Weak, 2), 1, false},
		{"strong then strong", global(ir.External, 1), global(ir.External, 2), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ir.NewModule("a")
			a.AddGlobal(tt.a)
			b := ir.NewModule("b")
			b.AddGlobal(tt.b)

			globals, err := moduleSet{a, b}.globals()
			if tt.wantErr {
				if !errors.Is(err, errors.PhaseSubmit, errors.KindInvalidInput) {
					t.Fatalf("err = %v, want submit/invalid_input", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(globals) != 1 || globals[0].Init != tt.want {
				t.Errorf("globals = %+v, want one g with init %d", globals, tt.want)
			}
		})
	}
}
