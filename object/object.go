// Package object defines the relocatable object format produced by the code
// generator and consumed by the linker.
//
// An object is a WebAssembly binary whose undefined references are imports
// from the placeholder module PlaceholderModule, plus the tables the linker
// needs to bind them: the defined symbols, the imports in import-section
// order, and the data relocations to apply after instantiation.
package object

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// PlaceholderModule is the import module name of every undefined reference
// until the linker rewrites it.
const PlaceholderModule = "env"

// AddressPrefix marks an import that yields the address of a symbol rather
// than the symbol itself.
const AddressPrefix = "&"

// Kind distinguishes callable symbols from data symbols.
type Kind uint8

const (
	KindFunc Kind = iota
	KindData
)

func (k Kind) String() string {
	if k == KindData {
		return "data"
	}
	return "func"
}

// Signature is the wasm-level type of a function symbol.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) String() string {
	return fmt.Sprintf("%v -> %v", valueTypeNames(s.Params), valueTypeNames(s.Results))
}

func valueTypeNames(ts []api.ValueType) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

// Symbol is a definition exported by the object under its own name.
type Symbol struct {
	Name      string
	Signature Signature     // KindFunc
	ValType   api.ValueType // KindData
	Kind      Kind
	Exported  bool // visible outside the defining module
	Weak      bool
}

// ImportKind says how the linker binds an import.
type ImportKind uint8

const (
	// ImportFunc is a call to an undefined function.
	ImportFunc ImportKind = iota
	// ImportGlobal is an access to an undefined data symbol.
	ImportGlobal
	// ImportAddress yields the address of a symbol as an i64.
	ImportAddress
)

func (k ImportKind) String() string {
	switch k {
	case ImportGlobal:
		return "global"
	case ImportAddress:
		return "address"
	default:
		return "func"
	}
}

// Import is an undefined reference, in import-section order. Field is the
// wasm import name; Symbol is the symbol it refers to.
type Import struct {
	Symbol    string
	Field     string
	Signature Signature     // ImportFunc
	ValType   api.ValueType // ImportGlobal
	Kind      ImportKind
}

// Relocation asks the linker to store the address of Symbol into the data
// symbol Global once the object is instantiated.
type Relocation struct {
	Global string
	Symbol string
}

// Object is a relocatable object for one module.
type Object struct {
	Module      string
	Wasm        []byte
	Symbols     []Symbol
	Imports     []Import
	Relocations []Relocation
}

// Symbol returns the defined symbol named name.
func (o *Object) Symbol(name string) (Symbol, bool) {
	for _, s := range o.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Undefined returns the distinct symbol names the object's imports and
// relocations refer to that it does not define itself, in first-use order.
func (o *Object) Undefined() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		if _, ok := o.Symbol(name); !ok {
			names = append(names, name)
		}
	}
	for _, imp := range o.Imports {
		add(imp.Symbol)
	}
	for _, r := range o.Relocations {
		add(r.Symbol)
	}
	return names
}
