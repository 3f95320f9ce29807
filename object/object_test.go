package object

import (
	"reflect"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

func TestObject_Undefined(t *testing.T) {
	o := &Object{
		Module: "m",
		Symbols: []Symbol{
			{Name: "f", Kind: KindFunc},
			{Name: "table", Kind: KindData, ValType: api.ValueTypeI64},
		},
		Imports: []Import{
			{Symbol: "g", Field: "g", Kind: ImportFunc},
			{Symbol: "f", Field: "&f", Kind: ImportAddress},
			{Symbol: "counter", Field: "counter", Kind: ImportGlobal},
			{Symbol: "g", Field: "&g", Kind: ImportAddress},
		},
		Relocations: []Relocation{
			{Global: "table", Symbol: "h"},
			{Global: "table", Symbol: "f"},
		},
	}

	got := o.Undefined()
	want := []string{"g", "counter", "h"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Undefined() = %v, want %v", got, want)
	}
}

func TestObject_Symbol(t *testing.T) {
	o := &Object{Symbols: []Symbol{{Name: "f"}}}
	if _, ok := o.Symbol("f"); !ok {
		t.Error("Symbol(f) not found")
	}
	if _, ok := o.Symbol("g"); ok {
		t.Error("Symbol(g) should be absent")
	}
}

func TestSignature_String(t *testing.T) {
	s := Signature{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI64}, Results: []api.ValueType{api.ValueTypeI32}}
	if got := s.String(); got != "[i32 i64] -> [i32]" {
		t.Errorf("String() = %q", got)
	}
}
