package ir

import (
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Module files encode a Module as YAML:
//
//	name: demo
//	functions:
//	  - name: ten
//	    result: i32
//	    body: {i32: 10}
//	  - name: addTen
//	    params: [i32]
//	    result: i32
//	    body:
//	      add: [{arg: 0}, {call: ten}]
//	globals:
//	  - {name: counter, type: i32, init: 0}
//	ctors:
//	  - {function: init, priority: 100}
//
// Expressions are single-key mappings. A bare integer is an i32 constant.

type moduleFile struct {
	Debug     *debugFile     `yaml:"debug"`
	Name      string         `yaml:"name"`
	Functions []functionFile `yaml:"functions"`
	Globals   []globalFile   `yaml:"globals"`
	Ctors     []structorFile `yaml:"ctors"`
	Dtors     []structorFile `yaml:"dtors"`
}

type functionFile struct {
	Body    yaml.Node `yaml:"body"`
	Name    string    `yaml:"name"`
	Result  string    `yaml:"result"`
	Linkage string    `yaml:"linkage"`
	Params  []string  `yaml:"params"`
	Locals  []string  `yaml:"locals"`
}

type globalFile struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Linkage    string `yaml:"linkage"`
	InitSymbol string `yaml:"init_symbol"`
	Init       int64  `yaml:"init"`
	Extern     bool   `yaml:"extern"`
}

type structorFile struct {
	Priority *int   `yaml:"priority"`
	Function string `yaml:"function"`
}

type debugFile struct {
	Types        []typeFile        `yaml:"types"`
	CompileUnits []compileUnitFile `yaml:"compile_units"`
}

type typeFile struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Tag        string   `yaml:"tag"`
	Encoding   string   `yaml:"encoding"`
	Identifier string   `yaml:"identifier"`
	BaseType   string   `yaml:"base"`
	File       string   `yaml:"file"`
	Directory  string   `yaml:"directory"`
	Elements   []string `yaml:"elements"`
	Size       uint64   `yaml:"size"`
	Line       uint32   `yaml:"line"`
}

type compileUnitFile struct {
	Language      string         `yaml:"language"`
	File          string         `yaml:"file"`
	Directory     string         `yaml:"directory"`
	Producer      string         `yaml:"producer"`
	Subprograms   []variableFile `yaml:"subprograms"`
	Globals       []variableFile `yaml:"globals"`
	RetainedTypes []string       `yaml:"retained_types"`
	EnumTypes     []string       `yaml:"enum_types"`
}

type variableFile struct {
	Name        string `yaml:"name"`
	LinkageName string `yaml:"linkage_name"`
	File        string `yaml:"file"`
	Directory   string `yaml:"directory"`
	Type        string `yaml:"type"`
	Line        uint32 `yaml:"line"`
}

// DecodeYAML reads one module from r.
func DecodeYAML(r io.Reader) (*Module, error) {
	var f moduleFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	return f.build()
}

// UnmarshalYAML decodes a module from data.
func UnmarshalYAML(data []byte) (*Module, error) {
	var f moduleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	return f.build()
}

func (f *moduleFile) build() (*Module, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("module has no name")
	}
	m := NewModule(f.Name)

	for _, ff := range f.Functions {
		fn, err := ff.build()
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", ff.Name, err)
		}
		m.AddFunction(fn)
	}

	for _, gf := range f.Globals {
		t, ok := ParseType(gf.Type)
		if !ok || t == Void {
			return nil, fmt.Errorf("global %q: invalid type %q", gf.Name, gf.Type)
		}
		linkage, err := parseLinkage(gf.Linkage)
		if err != nil {
			return nil, fmt.Errorf("global %q: %w", gf.Name, err)
		}
		m.AddGlobal(&Global{
			Name:       gf.Name,
			Type:       t,
			Init:       gf.Init,
			InitSymbol: gf.InitSymbol,
			Extern:     gf.Extern,
			Linkage:    linkage,
		})
	}

	for _, s := range f.Ctors {
		m.Ctors = append(m.Ctors, s.build())
	}
	for _, s := range f.Dtors {
		m.Dtors = append(m.Dtors, s.build())
	}

	if f.Debug != nil {
		di, err := f.Debug.build()
		if err != nil {
			return nil, fmt.Errorf("debug info: %w", err)
		}
		m.Debug = di
		attachDebugInfo(m)
	}

	return m, nil
}

func (s structorFile) build() Structor {
	p := DefaultPriority
	if s.Priority != nil {
		p = *s.Priority
	}
	return Structor{Function: s.Function, Priority: p}
}

func (ff *functionFile) build() (*Function, error) {
	fn := &Function{Name: ff.Name}

	var err error
	if fn.Params, err = parseTypes(ff.Params); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if fn.Locals, err = parseTypes(ff.Locals); err != nil {
		return nil, fmt.Errorf("locals: %w", err)
	}
	result, ok := ParseType(ff.Result)
	if !ok {
		return nil, fmt.Errorf("invalid result type %q", ff.Result)
	}
	fn.Result = result
	if fn.Linkage, err = parseLinkage(ff.Linkage); err != nil {
		return nil, err
	}

	if fn.Body, err = decodeExpr(&ff.Body); err != nil {
		return nil, err
	}
	return fn, nil
}

func parseTypes(names []string) ([]Type, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]Type, len(names))
	for i, n := range names {
		t, ok := ParseType(n)
		if !ok || t == Void {
			return nil, fmt.Errorf("invalid type %q", n)
		}
		types[i] = t
	}
	return types, nil
}

func parseLinkage(s string) (Linkage, error) {
	switch s {
	case "", "external":
		return External, nil
	case "internal":
		return Internal, nil
	case "weak":
		return Weak, nil
	}
	return External, fmt.Errorf("invalid linkage %q", s)
}

var binaryOpsByName = func() map[string]BinaryOp {
	ops := make(map[string]BinaryOp, len(binaryOpNames))
	for op, name := range binaryOpNames {
		ops[name] = BinaryOp(op)
	}
	return ops
}()

func isNull(n *yaml.Node) bool {
	return n == nil || n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func decodeExpr(n *yaml.Node) (Expr, error) {
	if isNull(n) {
		return nil, nil
	}

	if n.Kind == yaml.ScalarNode {
		v, err := strconv.ParseInt(n.Value, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: bare scalar %q is not an i32 constant", n.Line, n.Value)
		}
		return ConstI32(int32(v)), nil
	}

	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, fmt.Errorf("line %d: expression must be a single-key mapping", n.Line)
	}

	key := n.Content[0].Value
	val := n.Content[1]

	switch key {
	case "i32":
		var v int32
		if err := val.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: i32: %w", val.Line, err)
		}
		return ConstI32(v), nil

	case "i64":
		var v int64
		if err := val.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: i64: %w", val.Line, err)
		}
		return ConstI64(v), nil

	case "arg", "local":
		var i uint32
		if err := val.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", val.Line, key, err)
		}
		return Arg(i), nil

	case "set":
		var s struct {
			Value yaml.Node `yaml:"value"`
			Index uint32    `yaml:"index"`
		}
		if err := val.Decode(&s); err != nil {
			return nil, fmt.Errorf("line %d: set: %w", val.Line, err)
		}
		v, err := decodeExpr(&s.Value)
		if err != nil {
			return nil, err
		}
		return Set(s.Index, v), nil

	case "call":
		if val.Kind == yaml.ScalarNode {
			return Call(val.Value), nil
		}
		var c struct {
			Name string      `yaml:"name"`
			Args []yaml.Node `yaml:"args"`
		}
		if err := val.Decode(&c); err != nil {
			return nil, fmt.Errorf("line %d: call: %w", val.Line, err)
		}
		args, err := decodeExprs(c.Args)
		if err != nil {
			return nil, err
		}
		return Call(c.Name, args...), nil

	case "global.get":
		return GlobalGet(val.Value), nil

	case "global.set":
		var s struct {
			Value yaml.Node `yaml:"value"`
			Name  string    `yaml:"name"`
		}
		if err := val.Decode(&s); err != nil {
			return nil, fmt.Errorf("line %d: global.set: %w", val.Line, err)
		}
		v, err := decodeExpr(&s.Value)
		if err != nil {
			return nil, err
		}
		return GlobalSet(s.Name, v), nil

	case "addr":
		return AddrOf(val.Value), nil

	case "if":
		var s struct {
			Cond yaml.Node `yaml:"cond"`
			Then yaml.Node `yaml:"then"`
			Else yaml.Node `yaml:"else"`
		}
		if err := val.Decode(&s); err != nil {
			return nil, fmt.Errorf("line %d: if: %w", val.Line, err)
		}
		parts, err := decodeExprs([]yaml.Node{s.Cond, s.Then, s.Else})
		if err != nil {
			return nil, err
		}
		return If(parts[0], parts[1], parts[2]), nil

	case "seq":
		if val.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: seq needs a list", val.Line)
		}
		body, err := decodeNodes(val.Content)
		if err != nil {
			return nil, err
		}
		return Seq(body...), nil

	case "return":
		v, err := decodeExpr(val)
		if err != nil {
			return nil, err
		}
		return Return(v), nil

	case "unreachable":
		return Unreachable(), nil

	case "eqz", "extend", "wrap":
		x, err := decodeExpr(val)
		if err != nil {
			return nil, err
		}
		switch key {
		case "eqz":
			return Eqz(x), nil
		case "extend":
			return Extend(x), nil
		default:
			return Wrap(x), nil
		}
	}

	op, ok := binaryOpsByName[key]
	if !ok {
		return nil, fmt.Errorf("line %d: unknown expression %q", n.Line, key)
	}
	if val.Kind != yaml.SequenceNode || len(val.Content) != 2 {
		return nil, fmt.Errorf("line %d: %s needs exactly two operands", val.Line, key)
	}
	ops, err := decodeNodes(val.Content)
	if err != nil {
		return nil, err
	}
	return Binary(op, ops[0], ops[1]), nil
}

func decodeExprs(nodes []yaml.Node) ([]Expr, error) {
	exprs := make([]Expr, len(nodes))
	for i := range nodes {
		e, err := decodeExpr(&nodes[i])
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return exprs, nil
}

func decodeNodes(nodes []*yaml.Node) ([]Expr, error) {
	exprs := make([]Expr, len(nodes))
	for i, n := range nodes {
		e, err := decodeExpr(n)
		if err != nil {
			return nil, err
		}
		exprs[i] = e
	}
	return exprs, nil
}

var (
	languagesByName = map[string]uint16{
		"c89":     LangC89,
		"c":       LangC,
		"c++":     LangCPlusPlus,
		"c99":     LangC99,
		"c11":     LangC11,
		"c++11":   LangCPlusPlus11,
		"objc":    LangObjC,
		"objc++":  LangObjCPlus,
		"go":      LangGo,
		"rust":    LangRust,
		"fortran": LangFortran90,
		"pascal":  LangPascal83,
	}

	tagsByName = map[string]uint16{
		"array_type":       TagArrayType,
		"class_type":       TagClassType,
		"enumeration_type": TagEnumerationType,
		"member":           TagMember,
		"pointer_type":     TagPointerType,
		"reference_type":   TagReferenceType,
		"structure_type":   TagStructureType,
		"subroutine_type":  TagSubroutineType,
		"typedef":          TagTypedef,
		"union_type":       TagUnionType,
		"base_type":        TagBaseType,
		"const_type":       TagConstType,
		"enumerator":       TagEnumerator,
		"volatile_type":    TagVolatileType,
	}

	encodingsByName = map[string]uint16{
		"address":       EncodingAddress,
		"boolean":       EncodingBoolean,
		"float":         EncodingFloat,
		"signed":        EncodingSigned,
		"signed_char":   EncodingSignedChar,
		"unsigned":      EncodingUnsigned,
		"unsigned_char": EncodingUnsignedChar,
		"UTF":           EncodingUTF,
	}
)

// lookupCode resolves a symbolic name, or a numeric code for values the
// table does not name.
func lookupCode(table map[string]uint16, s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	if v, ok := table[s]; ok {
		return v, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown code %q", s)
	}
	return uint16(v), nil
}

func (d *debugFile) build() (*DebugInfo, error) {
	types := make(map[string]*DIType, len(d.Types))
	for _, tf := range d.Types {
		id := tf.ID
		if id == "" {
			id = tf.Name
		}
		if id == "" {
			return nil, fmt.Errorf("type without id or name")
		}
		tag, err := lookupCode(tagsByName, tf.Tag)
		if err != nil {
			return nil, fmt.Errorf("type %q tag: %w", id, err)
		}
		enc, err := lookupCode(encodingsByName, tf.Encoding)
		if err != nil {
			return nil, fmt.Errorf("type %q encoding: %w", id, err)
		}
		types[id] = &DIType{
			Name:       tf.Name,
			Tag:        tag,
			Encoding:   enc,
			Identifier: tf.Identifier,
			File:       DIFile{Filename: tf.File, Directory: tf.Directory},
			Line:       tf.Line,
			SizeInBits: tf.Size,
		}
	}

	ref := func(id string) (*DIType, error) {
		if id == "" {
			return nil, nil
		}
		t, ok := types[id]
		if !ok {
			return nil, fmt.Errorf("unknown type reference %q", id)
		}
		return t, nil
	}

	// Second pass: references may point forward.
	for _, tf := range d.Types {
		id := tf.ID
		if id == "" {
			id = tf.Name
		}
		t := types[id]
		var err error
		if t.BaseType, err = ref(tf.BaseType); err != nil {
			return nil, err
		}
		for _, e := range tf.Elements {
			et, err := ref(e)
			if err != nil {
				return nil, err
			}
			t.Elements = append(t.Elements, et)
		}
	}

	di := &DebugInfo{}
	for _, cf := range d.CompileUnits {
		lang, err := lookupCode(languagesByName, cf.Language)
		if err != nil {
			return nil, fmt.Errorf("compile unit %q language: %w", cf.File, err)
		}
		cu := &DICompileUnit{
			Language: lang,
			File:     DIFile{Filename: cf.File, Directory: cf.Directory},
			Producer: cf.Producer,
		}
		for _, sf := range cf.Subprograms {
			t, err := ref(sf.Type)
			if err != nil {
				return nil, err
			}
			cu.Subprograms = append(cu.Subprograms, &DISubprogram{
				Name:        sf.Name,
				LinkageName: sf.LinkageName,
				File:        DIFile{Filename: sf.File, Directory: sf.Directory},
				Line:        sf.Line,
				Type:        t,
			})
		}
		for _, gf := range cf.Globals {
			t, err := ref(gf.Type)
			if err != nil {
				return nil, err
			}
			cu.Globals = append(cu.Globals, &DIGlobalVariable{
				Name:        gf.Name,
				LinkageName: gf.LinkageName,
				File:        DIFile{Filename: gf.File, Directory: gf.Directory},
				Line:        gf.Line,
				Type:        t,
			})
		}
		for _, id := range cf.RetainedTypes {
			t, err := ref(id)
			if err != nil {
				return nil, err
			}
			cu.RetainedTypes = append(cu.RetainedTypes, t)
		}
		for _, id := range cf.EnumTypes {
			t, err := ref(id)
			if err != nil {
				return nil, err
			}
			cu.EnumTypes = append(cu.EnumTypes, t)
		}
		di.CompileUnits = append(di.CompileUnits, cu)
	}
	return di, nil
}

// attachDebugInfo links functions and globals to the compile-unit entries
// that describe them, matching linkage name first and then source name.
func attachDebugInfo(m *Module) {
	for _, cu := range m.Debug.CompileUnits {
		for _, sp := range cu.Subprograms {
			if f := m.Function(symbolName(sp.LinkageName, sp.Name)); f != nil && f.Debug == nil {
				f.Debug = sp
			}
		}
		for _, gv := range cu.Globals {
			if g := m.Global(symbolName(gv.LinkageName, gv.Name)); g != nil && g.Debug == nil {
				g.Debug = gv
			}
		}
	}
}

func symbolName(linkage, name string) string {
	if linkage != "" {
		return linkage
	}
	return name
}
