package codegen

import (
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lazyjit/errors"
	"github.com/wippyai/lazyjit/internal/wasmbin"
	"github.com/wippyai/lazyjit/ir"
	"github.com/wippyai/lazyjit/object"
)

// Generator turns an IR module into a relocatable object.
type Generator interface {
	Compile(m *ir.Module, t Target) (*object.Object, error)
}

// WasmGenerator is the default Generator.
type WasmGenerator struct{}

// New returns the default generator.
func New() *WasmGenerator {
	return &WasmGenerator{}
}

// Compile implements Generator.
func (g *WasmGenerator) Compile(m *ir.Module, t Target) (*object.Object, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseCompile, "nil module")
	}
	mc := &moduleCompiler{
		m:         m,
		target:    t,
		b:         wasmbin.NewBuilder(),
		funcs:     make(map[string]*ir.Function),
		globals:   make(map[string]*ir.Global),
		funcIdx:   make(map[string]uint32),
		globalIdx: make(map[string]uint32),
		addrIdx:   make(map[string]uint32),
	}
	return mc.compile()
}

type moduleCompiler struct {
	m         *ir.Module
	b         *wasmbin.Builder
	funcs     map[string]*ir.Function
	globals   map[string]*ir.Global
	funcIdx   map[string]uint32
	globalIdx map[string]uint32
	addrIdx   map[string]uint32
	obj       *object.Object
	target    Target
}

func (mc *moduleCompiler) fail(symbol string, format string, args ...any) error {
	return errors.CompileFailure(mc.m.Name, symbol, fmt.Errorf(format, args...))
}

func (mc *moduleCompiler) compile() (*object.Object, error) {
	mc.obj = &object.Object{Module: mc.m.Name}

	if err := mc.index(); err != nil {
		return nil, err
	}
	if err := mc.declareImports(); err != nil {
		return nil, err
	}
	if err := mc.defineGlobals(); err != nil {
		return nil, err
	}
	if err := mc.defineFunctions(); err != nil {
		return nil, err
	}

	mc.obj.Wasm = mc.b.Build()
	return mc.obj, nil
}

func (mc *moduleCompiler) index() error {
	for _, f := range mc.m.Functions {
		if f.Name == "" {
			return mc.fail("", "function without a name")
		}
		if _, dup := mc.funcs[f.Name]; dup {
			return mc.fail(f.Name, "duplicate function %q", f.Name)
		}
		for _, p := range f.Params {
			if p == ir.Void {
				return mc.fail(f.Name, "void parameter")
			}
		}
		mc.funcs[f.Name] = f
	}
	for _, g := range mc.m.Globals {
		if g.Name == "" {
			return mc.fail("", "global without a name")
		}
		if _, dup := mc.globals[g.Name]; dup {
			return mc.fail(g.Name, "duplicate global %q", g.Name)
		}
		if _, clash := mc.funcs[g.Name]; clash {
			return mc.fail(g.Name, "%q is defined as both function and global", g.Name)
		}
		if g.Type != ir.I32 && g.Type != ir.I64 {
			return mc.fail(g.Name, "global has type %s", g.Type)
		}
		mc.globals[g.Name] = g
	}
	return nil
}

// declareImports emits imports for every undefined reference of the defined
// functions: called declarations, extern globals and address-of operands.
func (mc *moduleCompiler) declareImports() error {
	calls := make(map[string]struct{})
	globals := make(map[string]struct{})
	addrs := make(map[string]struct{})

	for _, f := range mc.m.Functions {
		if f.IsDeclaration() {
			continue
		}
		refs := ir.Referenced(f.Body)
		for _, name := range refs.Functions {
			callee, ok := mc.funcs[name]
			if !ok {
				return mc.fail(f.Name, "call to undeclared function %q", name)
			}
			if callee.IsDeclaration() {
				calls[name] = struct{}{}
			}
		}
		for _, name := range refs.Globals {
			g, ok := mc.globals[name]
			if !ok {
				return mc.fail(f.Name, "reference to undeclared global %q", name)
			}
			if g.Extern {
				globals[name] = struct{}{}
			}
		}
		for _, name := range refs.Addresses {
			addrs[name] = struct{}{}
		}
	}

	for _, name := range sortedNames(calls) {
		f := mc.funcs[name]
		sig := signature(f)
		sym := mc.target.Mangle(name)
		mc.funcIdx[name] = mc.b.ImportFunc(object.PlaceholderModule, sym, wasmbin.FuncType(sig))
		mc.obj.Imports = append(mc.obj.Imports, object.Import{
			Symbol: sym, Field: sym, Kind: object.ImportFunc, Signature: sig,
		})
	}

	addrSig := object.Signature{Results: []api.ValueType{api.ValueTypeI64}}
	for _, name := range sortedNames(addrs) {
		sym := mc.target.Mangle(name)
		field := object.AddressPrefix + sym
		mc.addrIdx[name] = mc.b.ImportFunc(object.PlaceholderModule, field, wasmbin.FuncType(addrSig))
		mc.obj.Imports = append(mc.obj.Imports, object.Import{
			Symbol: sym, Field: field, Kind: object.ImportAddress, Signature: addrSig,
		})
	}

	for _, name := range sortedNames(globals) {
		g := mc.globals[name]
		sym := mc.target.Mangle(name)
		vt := valueType(g.Type)
		mc.globalIdx[name] = mc.b.ImportGlobal(object.PlaceholderModule, sym, vt, true)
		mc.obj.Imports = append(mc.obj.Imports, object.Import{
			Symbol: sym, Field: sym, Kind: object.ImportGlobal, ValType: vt,
		})
	}
	return nil
}

func (mc *moduleCompiler) defineGlobals() error {
	for _, g := range mc.m.Globals {
		if g.Extern {
			continue
		}
		sym := mc.target.Mangle(g.Name)
		vt := valueType(g.Type)
		idx := mc.b.AddGlobal(vt, true, g.Init)
		mc.globalIdx[g.Name] = idx
		mc.b.ExportGlobal(sym, idx)
		mc.obj.Symbols = append(mc.obj.Symbols, object.Symbol{
			Name:     sym,
			Kind:     object.KindData,
			ValType:  vt,
			Exported: g.Linkage != ir.Internal,
			Weak:     g.Linkage == ir.Weak,
		})
		if g.InitSymbol != "" {
			if g.Type != ir.I64 {
				return mc.fail(g.Name, "address initializer needs an i64 global")
			}
			mc.obj.Relocations = append(mc.obj.Relocations, object.Relocation{
				Global: sym,
				Symbol: mc.target.Mangle(g.InitSymbol),
			})
		}
	}
	return nil
}

func (mc *moduleCompiler) defineFunctions() error {
	next := mc.b.NextFuncIndex()
	var defs []*ir.Function
	for _, f := range mc.m.Functions {
		if f.IsDeclaration() {
			continue
		}
		mc.funcIdx[f.Name] = next
		next++
		defs = append(defs, f)
	}

	for _, f := range defs {
		fc := newFuncCompiler(mc, f)
		body, err := fc.compile()
		if err != nil {
			return err
		}
		sig := signature(f)
		locals := make([]api.ValueType, len(f.Locals))
		for i, l := range f.Locals {
			if l == ir.Void {
				return mc.fail(f.Name, "void local %d", i)
			}
			locals[i] = valueType(l)
		}
		idx := mc.b.AddFunc(wasmbin.FuncType(sig), locals, body)
		sym := mc.target.Mangle(f.Name)
		mc.b.ExportFunc(sym, idx)
		mc.obj.Symbols = append(mc.obj.Symbols, object.Symbol{
			Name:      sym,
			Kind:      object.KindFunc,
			Signature: sig,
			Exported:  f.Linkage != ir.Internal,
			Weak:      f.Linkage == ir.Weak,
		})
	}
	return nil
}

func signature(f *ir.Function) object.Signature {
	var sig object.Signature
	for _, p := range f.Params {
		sig.Params = append(sig.Params, valueType(p))
	}
	if f.Result != ir.Void {
		sig.Results = []api.ValueType{valueType(f.Result)}
	}
	return sig
}

func valueType(t ir.Type) api.ValueType {
	if t == ir.I64 {
		return api.ValueTypeI64
	}
	return api.ValueTypeI32
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
