package wasmbin

import (
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

var errUnexpectedEOF = errors.New("unexpected end of module")

// Import is one entry of a module's import section.
type Import struct {
	Module   string
	Name     string
	FuncType FuncType // KindFunc only
	ValType  api.ValueType
	Kind     byte
	Mutable  bool
	typeIdx  uint32
}

// Export is one entry of a module's export section.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	v, n, err := DecodeULEB128(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", errUnexpectedEOF
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) limits() error {
	flags, err := r.byte()
	if err != nil {
		return err
	}
	if _, err := r.u32(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := r.u32(); err != nil {
			return err
		}
	}
	return nil
}

type section struct {
	body []byte
	id   byte
	// offset of the section id byte within the module
	start int
	end   int
}

func sections(wasm []byte) ([]section, error) {
	if len(wasm) < len(header) || string(wasm[:4]) != string(header[:4]) {
		return nil, errors.New("not a wasm module")
	}
	var out []section
	r := &reader{data: wasm, pos: len(header)}
	for r.pos < len(wasm) {
		start := r.pos
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		end := r.pos + int(size)
		if end > len(wasm) {
			return nil, fmt.Errorf("section %d: %w", id, errUnexpectedEOF)
		}
		out = append(out, section{id: id, body: wasm[r.pos:end], start: start, end: end})
		r.pos = end
	}
	return out, nil
}

func parseTypes(body []byte) ([]FuncType, error) {
	r := &reader{data: body}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.byte()
		if err != nil {
			return nil, err
		}
		if form != 0x60 {
			return nil, fmt.Errorf("type %d: unexpected form 0x%x", i, form)
		}
		var t FuncType
		for _, dst := range []*[]api.ValueType{&t.Params, &t.Results} {
			n, err := r.u32()
			if err != nil {
				return nil, err
			}
			for j := uint32(0); j < n; j++ {
				b, err := r.byte()
				if err != nil {
					return nil, err
				}
				vt, ok := ParseValType(b)
				if !ok {
					return nil, fmt.Errorf("type %d: unknown value type 0x%x", i, b)
				}
				*dst = append(*dst, vt)
			}
		}
		types = append(types, t)
	}
	return types, nil
}

func parseImports(body []byte, types []FuncType) ([]Import, error) {
	r := &reader{data: body}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	imports := make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.name(); err != nil {
			return nil, err
		}
		if imp.Name, err = r.name(); err != nil {
			return nil, err
		}
		if imp.Kind, err = r.byte(); err != nil {
			return nil, err
		}
		switch imp.Kind {
		case KindFunc:
			if imp.typeIdx, err = r.u32(); err != nil {
				return nil, err
			}
			if int(imp.typeIdx) >= len(types) {
				return nil, fmt.Errorf("import %s.%s: type index %d out of range", imp.Module, imp.Name, imp.typeIdx)
			}
			imp.FuncType = types[imp.typeIdx]
		case KindTable:
			if _, err := r.byte(); err != nil {
				return nil, err
			}
			if err := r.limits(); err != nil {
				return nil, err
			}
		case KindMemory:
			if err := r.limits(); err != nil {
				return nil, err
			}
		case KindGlobal:
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			imp.ValType, _ = ParseValType(b)
			m, err := r.byte()
			if err != nil {
				return nil, err
			}
			imp.Mutable = m == 0x01
		default:
			return nil, fmt.Errorf("import %s.%s: unknown kind 0x%x", imp.Module, imp.Name, imp.Kind)
		}
		imports = append(imports, imp)
	}
	return imports, nil
}

// Imports lists the import section of wasm.
func Imports(wasm []byte) ([]Import, error) {
	secs, err := sections(wasm)
	if err != nil {
		return nil, err
	}
	var types []FuncType
	for _, s := range secs {
		switch s.id {
		case SectionType:
			if types, err = parseTypes(s.body); err != nil {
				return nil, fmt.Errorf("type section: %w", err)
			}
		case SectionImport:
			imports, err := parseImports(s.body, types)
			if err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
			return imports, nil
		}
	}
	return nil, nil
}

// Exports lists the export section of wasm.
func Exports(wasm []byte) ([]Export, error) {
	secs, err := sections(wasm)
	if err != nil {
		return nil, err
	}
	for _, s := range secs {
		if s.id != SectionExport {
			continue
		}
		r := &reader{data: s.body}
		count, err := r.u32()
		if err != nil {
			return nil, err
		}
		exports := make([]Export, 0, count)
		for i := uint32(0); i < count; i++ {
			var e Export
			if e.Name, err = r.name(); err != nil {
				return nil, err
			}
			if e.Kind, err = r.byte(); err != nil {
				return nil, err
			}
			if e.Index, err = r.u32(); err != nil {
				return nil, err
			}
			exports = append(exports, e)
		}
		return exports, nil
	}
	return nil, nil
}
