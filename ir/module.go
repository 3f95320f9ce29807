package ir

import "sort"

// Type is the value type of an expression, parameter, local or global.
type Type uint8

const (
	Void Type = iota
	I32
	I64
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return "unknown"
	}
}

// ParseType maps "i32", "i64" and "void" (or "") to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "", "void":
		return Void, true
	case "i32":
		return I32, true
	case "i64":
		return I64, true
	}
	return Void, false
}

// Linkage controls the visibility of a definition outside its module.
type Linkage uint8

const (
	// External definitions are exported to every module in the engine.
	External Linkage = iota
	// Internal definitions are visible only inside their own module.
	Internal
	// Weak definitions are exported and flagged weak.
	Weak
)

func (l Linkage) String() string {
	switch l {
	case Internal:
		return "internal"
	case Weak:
		return "weak"
	default:
		return "external"
	}
}

// Function is a function definition, or a declaration when Body is nil.
type Function struct {
	Body    Expr
	Debug   *DISubprogram
	Name    string
	Params  []Type
	Locals  []Type
	Result  Type
	Linkage Linkage
}

// IsDeclaration reports whether f only declares a signature.
func (f *Function) IsDeclaration() bool {
	return f.Body == nil
}

// Declaration returns a body-less copy of f carrying the same signature.
func (f *Function) Declaration() *Function {
	return &Function{
		Name:   f.Name,
		Params: append([]Type(nil), f.Params...),
		Result: f.Result,
	}
}

// Global is a single integer data cell.
//
// A defined global is initialized with Init, or with the address of
// InitSymbol when that is set. Extern globals are declarations resolved at
// link time.
type Global struct {
	Debug      *DIGlobalVariable
	Name       string
	InitSymbol string
	Init       int64
	Type       Type
	Linkage    Linkage
	Extern     bool
}

// Declaration returns an extern copy of g.
func (g *Global) Declaration() *Global {
	return &Global{Name: g.Name, Type: g.Type, Extern: true}
}

// Structor is an entry of a module's constructor or destructor list.
type Structor struct {
	Function string
	Priority int
}

// DefaultPriority is the priority given to structors that do not set one.
const DefaultPriority = 65535

// Module is a translation unit.
type Module struct {
	Debug     *DebugInfo
	Name      string
	Functions []*Function
	Globals   []*Global
	Ctors     []Structor
	Dtors     []Structor
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// AddFunction appends f and returns it.
func (m *Module) AddFunction(f *Function) *Function {
	m.Functions = append(m.Functions, f)
	return f
}

// AddGlobal appends g and returns it.
func (m *Module) AddGlobal(g *Global) *Global {
	m.Globals = append(m.Globals, g)
	return g
}

// AddCtor appends a constructor entry.
func (m *Module) AddCtor(fn string, priority int) {
	m.Ctors = append(m.Ctors, Structor{Function: fn, Priority: priority})
}

// AddDtor appends a destructor entry.
func (m *Module) AddDtor(fn string, priority int) {
	m.Dtors = append(m.Dtors, Structor{Function: fn, Priority: priority})
}

// Function returns the function named name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Global returns the global named name, or nil.
func (m *Module) Global(name string) *Global {
	for _, g := range m.Globals {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Definitions returns the names of every function and global defined (not
// merely declared) in m, in declaration order.
func (m *Module) Definitions() []string {
	var names []string
	for _, f := range m.Functions {
		if !f.IsDeclaration() {
			names = append(names, f.Name)
		}
	}
	for _, g := range m.Globals {
		if !g.Extern {
			names = append(names, g.Name)
		}
	}
	return names
}

// Clone returns a structural copy of m. Expression trees and debug metadata
// are shared.
func (m *Module) Clone() *Module {
	c := &Module{
		Name:  m.Name,
		Debug: m.Debug,
		Ctors: append([]Structor(nil), m.Ctors...),
		Dtors: append([]Structor(nil), m.Dtors...),
	}
	for _, f := range m.Functions {
		fc := *f
		fc.Params = append([]Type(nil), f.Params...)
		fc.Locals = append([]Type(nil), f.Locals...)
		c.Functions = append(c.Functions, &fc)
	}
	for _, g := range m.Globals {
		gc := *g
		c.Globals = append(c.Globals, &gc)
	}
	return c
}

// Refs lists the symbols an expression tree refers to.
type Refs struct {
	Functions []string // call targets
	Globals   []string // global.get / global.set operands
	Addresses []string // address-of operands
}

// Referenced walks body and returns the sorted, de-duplicated symbol names it
// refers to.
func Referenced(body Expr) Refs {
	funcs := make(map[string]struct{})
	globals := make(map[string]struct{})
	addrs := make(map[string]struct{})

	Walk(body, func(e Expr) {
		switch n := e.(type) {
		case *CallExpr:
			funcs[n.Callee] = struct{}{}
		case *GlobalGetExpr:
			globals[n.Name] = struct{}{}
		case *GlobalSetExpr:
			globals[n.Name] = struct{}{}
		case *AddrOfExpr:
			addrs[n.Symbol] = struct{}{}
		}
	})

	return Refs{
		Functions: sortedKeys(funcs),
		Globals:   sortedKeys(globals),
		Addresses: sortedKeys(addrs),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
