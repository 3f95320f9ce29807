package wasmbin

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Magic and version header of every module.
var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// FuncType is a function signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (t FuncType) key() string {
	var b strings.Builder
	for _, p := range t.Params {
		b.WriteByte(ValType(p))
	}
	b.WriteByte(':')
	for _, r := range t.Results {
		b.WriteByte(ValType(r))
	}
	return b.String()
}

func (t FuncType) String() string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, v := range ts {
			s[i] = api.ValueTypeName(v)
		}
		return strings.Join(s, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(t.Params), names(t.Results))
}

type funcDef struct {
	locals []api.ValueType
	body   []byte
	typ    uint32
}

type globalDef struct {
	init    int64
	valType api.ValueType
	mutable bool
}

type exportDef struct {
	name string
	kind byte
	idx  uint32
}

// Builder assembles a module from imports, definitions and exports.
type Builder struct {
	typeIdx       map[string]uint32
	types         []FuncType
	imports       []Import
	funcs         []funcDef
	globals       []globalDef
	exports       []exportDef
	numFuncImport uint32
	numGlobImport uint32
	defined       bool
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{typeIdx: make(map[string]uint32)}
}

func (b *Builder) typeIndex(t FuncType) uint32 {
	k := t.key()
	if idx, ok := b.typeIdx[k]; ok {
		return idx
	}
	idx := uint32(len(b.types))
	b.types = append(b.types, t)
	b.typeIdx[k] = idx
	return idx
}

func (b *Builder) mustImport() {
	if b.defined {
		panic("wasmbin: import declared after a definition")
	}
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, t FuncType) uint32 {
	b.mustImport()
	b.imports = append(b.imports, Import{
		Module:   module,
		Name:     name,
		Kind:     KindFunc,
		FuncType: t,
		typeIdx:  b.typeIndex(t),
	})
	idx := b.numFuncImport
	b.numFuncImport++
	return idx
}

// ImportGlobal declares a global import and returns its global index.
func (b *Builder) ImportGlobal(module, name string, t api.ValueType, mutable bool) uint32 {
	b.mustImport()
	b.imports = append(b.imports, Import{
		Module:  module,
		Name:    name,
		Kind:    KindGlobal,
		ValType: t,
		Mutable: mutable,
	})
	idx := b.numGlobImport
	b.numGlobImport++
	return idx
}

// AddFunc defines a function and returns its function index. body must end
// with OpEnd.
func (b *Builder) AddFunc(t FuncType, locals []api.ValueType, body []byte) uint32 {
	b.defined = true
	b.funcs = append(b.funcs, funcDef{typ: b.typeIndex(t), locals: locals, body: body})
	return b.numFuncImport + uint32(len(b.funcs)-1)
}

// NextFuncIndex returns the index the next AddFunc call will return.
func (b *Builder) NextFuncIndex() uint32 {
	return b.numFuncImport + uint32(len(b.funcs))
}

// AddGlobal defines a global with a constant initializer and returns its
// global index.
func (b *Builder) AddGlobal(t api.ValueType, mutable bool, init int64) uint32 {
	b.defined = true
	b.globals = append(b.globals, globalDef{valType: t, mutable: mutable, init: init})
	return b.numGlobImport + uint32(len(b.globals)-1)
}

// ExportFunc exports function idx under name.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.exports = append(b.exports, exportDef{name: name, kind: KindFunc, idx: idx})
}

// ExportGlobal exports global idx under name.
func (b *Builder) ExportGlobal(name string, idx uint32) {
	b.exports = append(b.exports, exportDef{name: name, kind: KindGlobal, idx: idx})
}

// Build generates the module bytes.
func (b *Builder) Build() []byte {
	wasm := append([]byte(nil), header...)

	if len(b.types) > 0 {
		wasm = appendSection(wasm, SectionType, b.buildTypeSection())
	}
	if len(b.imports) > 0 {
		wasm = appendSection(wasm, SectionImport, b.buildImportSection())
	}
	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, SectionFunction, b.buildFuncSection())
	}
	if len(b.globals) > 0 {
		wasm = appendSection(wasm, SectionGlobal, b.buildGlobalSection())
	}
	if len(b.exports) > 0 {
		wasm = appendSection(wasm, SectionExport, b.buildExportSection())
	}
	if len(b.funcs) > 0 {
		wasm = appendSection(wasm, SectionCode, b.buildCodeSection())
	}
	return wasm
}

func appendSection(wasm []byte, id byte, section []byte) []byte {
	wasm = append(wasm, id)
	wasm = AppendULEB128(wasm, uint32(len(section)))
	return append(wasm, section...)
}

func appendName(dst []byte, name string) []byte {
	dst = AppendULEB128(dst, uint32(len(name)))
	return append(dst, name...)
}

func (b *Builder) buildTypeSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.types)))
	for _, t := range b.types {
		section = append(section, 0x60)
		section = AppendULEB128(section, uint32(len(t.Params)))
		for _, p := range t.Params {
			section = append(section, ValType(p))
		}
		section = AppendULEB128(section, uint32(len(t.Results)))
		for _, r := range t.Results {
			section = append(section, ValType(r))
		}
	}
	return section
}

func (b *Builder) buildImportSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.imports)))
	for _, imp := range b.imports {
		section = appendName(section, imp.Module)
		section = appendName(section, imp.Name)
		section = append(section, imp.Kind)
		switch imp.Kind {
		case KindFunc:
			section = AppendULEB128(section, imp.typeIdx)
		case KindGlobal:
			section = append(section, ValType(imp.ValType), mutability(imp.Mutable))
		}
	}
	return section
}

func (b *Builder) buildFuncSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.funcs)))
	for _, f := range b.funcs {
		section = AppendULEB128(section, f.typ)
	}
	return section
}

func (b *Builder) buildGlobalSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.globals)))
	for _, g := range b.globals {
		section = append(section, ValType(g.valType), mutability(g.mutable))
		if g.valType == api.ValueTypeI64 {
			section = append(section, OpI64Const)
			section = AppendSLEB128(section, g.init)
		} else {
			section = append(section, OpI32Const)
			section = AppendSLEB128(section, int32(g.init))
		}
		section = append(section, OpEnd)
	}
	return section
}

func (b *Builder) buildExportSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.exports)))
	for _, e := range b.exports {
		section = appendName(section, e.name)
		section = append(section, e.kind)
		section = AppendULEB128(section, e.idx)
	}
	return section
}

func (b *Builder) buildCodeSection() []byte {
	section := AppendULEB128(nil, uint32(len(b.funcs)))
	for _, f := range b.funcs {
		body := appendLocals(nil, f.locals)
		body = append(body, f.body...)
		section = AppendULEB128(section, uint32(len(body)))
		section = append(section, body...)
	}
	return section
}

// appendLocals run-length encodes local declarations.
func appendLocals(dst []byte, locals []api.ValueType) []byte {
	type run struct {
		t api.ValueType
		n uint32
	}
	var runs []run
	for _, l := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{t: l, n: 1})
	}
	dst = AppendULEB128(dst, uint32(len(runs)))
	for _, r := range runs {
		dst = AppendULEB128(dst, r.n)
		dst = append(dst, ValType(r.t))
	}
	return dst
}

func mutability(mutable bool) byte {
	if mutable {
		return 0x01
	}
	return 0x00
}
