package debuginfo

import "github.com/wippyai/lazyjit/ir"

// Finder collects the debug metadata nodes of modules. Each node is
// recorded once, in the order it is first reached.
type Finder struct {
	seen        map[any]struct{}
	units       []*ir.DICompileUnit
	subprograms []*ir.DISubprogram
	globals     []*ir.DIGlobalVariable
	types       []*ir.DIType
}

// NewFinder creates an empty Finder.
func NewFinder() *Finder {
	return &Finder{seen: make(map[any]struct{})}
}

// Reset forgets everything collected so far.
func (f *Finder) Reset() {
	*f = Finder{seen: make(map[any]struct{})}
}

func (f *Finder) mark(node any) bool {
	if _, dup := f.seen[node]; dup {
		return false
	}
	f.seen[node] = struct{}{}
	return true
}

// ProcessModule collects every node reachable from m: its compile units,
// then debug metadata attached to its functions and globals.
func (f *Finder) ProcessModule(m *ir.Module) {
	if m.Debug != nil {
		for _, cu := range m.Debug.CompileUnits {
			f.processCompileUnit(cu)
		}
	}
	for _, fn := range m.Functions {
		if fn.Debug != nil {
			f.processSubprogram(fn.Debug)
		}
	}
	for _, g := range m.Globals {
		if g.Debug != nil {
			f.processGlobal(g.Debug)
		}
	}
}

func (f *Finder) processCompileUnit(cu *ir.DICompileUnit) {
	if cu == nil || !f.mark(cu) {
		return
	}
	f.units = append(f.units, cu)
	for _, g := range cu.Globals {
		f.processGlobal(g)
	}
	for _, t := range cu.EnumTypes {
		f.processType(t)
	}
	for _, t := range cu.RetainedTypes {
		f.processType(t)
	}
	for _, sp := range cu.Subprograms {
		f.processSubprogram(sp)
	}
}

func (f *Finder) processSubprogram(sp *ir.DISubprogram) {
	if sp == nil || !f.mark(sp) {
		return
	}
	f.subprograms = append(f.subprograms, sp)
	f.processType(sp.Type)
}

func (f *Finder) processGlobal(g *ir.DIGlobalVariable) {
	if g == nil || !f.mark(g) {
		return
	}
	f.globals = append(f.globals, g)
	f.processType(g.Type)
}

// processType records t, then its base type and elements, depth first.
func (f *Finder) processType(t *ir.DIType) {
	if t == nil || !f.mark(t) {
		return
	}
	f.types = append(f.types, t)
	f.processType(t.BaseType)
	if t.IsComposite() {
		for _, e := range t.Elements {
			f.processType(e)
		}
	}
}

// CompileUnits returns the collected compile units.
func (f *Finder) CompileUnits() []*ir.DICompileUnit { return f.units }

// Subprograms returns the collected subprograms.
func (f *Finder) Subprograms() []*ir.DISubprogram { return f.subprograms }

// GlobalVariables returns the collected global variables.
func (f *Finder) GlobalVariables() []*ir.DIGlobalVariable { return f.globals }

// Types returns the collected types.
func (f *Finder) Types() []*ir.DIType { return f.types }
