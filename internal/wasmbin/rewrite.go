package wasmbin

import "fmt"

// RewriteImportModules returns a copy of wasm whose import module names are
// replaced by rename. Returning imp.Module keeps an import unchanged. Modules
// without an import section are returned as is.
func RewriteImportModules(wasm []byte, rename func(Import) string) ([]byte, error) {
	secs, err := sections(wasm)
	if err != nil {
		return nil, err
	}

	var types []FuncType
	for _, s := range secs {
		if s.id == SectionType {
			if types, err = parseTypes(s.body); err != nil {
				return nil, fmt.Errorf("type section: %w", err)
			}
		}
		if s.id != SectionImport {
			continue
		}

		imports, err := parseImports(s.body, types)
		if err != nil {
			return nil, fmt.Errorf("import section: %w", err)
		}
		rewritten, err := rewriteImportSection(s.body, imports, rename)
		if err != nil {
			return nil, err
		}

		result := make([]byte, 0, len(wasm)+len(rewritten)-len(s.body))
		result = append(result, wasm[:s.start]...)
		result = appendSection(result, SectionImport, rewritten)
		result = append(result, wasm[s.end:]...)
		return result, nil
	}
	return wasm, nil
}

// rewriteImportSection re-encodes each entry, copying everything after the
// module name verbatim.
func rewriteImportSection(body []byte, imports []Import, rename func(Import) string) ([]byte, error) {
	r := &reader{data: body}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, len(body)+16)
	result = AppendULEB128(result, count)

	for i := uint32(0); i < count; i++ {
		if _, err := r.name(); err != nil {
			return nil, err
		}
		restStart := r.pos
		if _, err := r.name(); err != nil {
			return nil, err
		}
		kind, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindFunc:
			_, err = r.u32()
		case KindTable:
			if _, err = r.byte(); err == nil {
				err = r.limits()
			}
		case KindMemory:
			err = r.limits()
		case KindGlobal:
			r.pos += 2
			if r.pos > len(body) {
				err = errUnexpectedEOF
			}
		}
		if err != nil {
			return nil, err
		}

		result = appendName(result, rename(imports[i]))
		result = append(result, body[restStart:r.pos]...)
	}
	return result, nil
}
