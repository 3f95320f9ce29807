package codegen

import (
	"fmt"

	"github.com/wippyai/lazyjit/internal/wasmbin"
	"github.com/wippyai/lazyjit/ir"
)

// vtype is the type of an expression during lowering. never marks
// expressions that do not complete normally (return, unreachable); it is
// compatible with every other type.
type vtype uint8

const (
	tVoid vtype = iota
	tI32
	tI64
	tNever
)

func (t vtype) String() string {
	switch t {
	case tI32:
		return "i32"
	case tI64:
		return "i64"
	case tNever:
		return "never"
	}
	return "void"
}

func fromIR(t ir.Type) vtype {
	switch t {
	case ir.I32:
		return tI32
	case ir.I64:
		return tI64
	}
	return tVoid
}

func (t vtype) hasValue() bool {
	return t == tI32 || t == tI64
}

func (t vtype) blockType() byte {
	switch t {
	case tI32:
		return wasmbin.BlockI32
	case tI64:
		return wasmbin.BlockI64
	}
	return wasmbin.BlockVoid
}

// unify returns the common type of a and b, treating never as a wildcard.
func unify(a, b vtype) (vtype, bool) {
	switch {
	case a == b:
		return a, true
	case a == tNever:
		return b, true
	case b == tNever:
		return a, true
	}
	return tVoid, false
}

var binaryOpcodes = map[ir.BinaryOp][2]byte{
	ir.OpAdd:  {wasmbin.OpI32Add, wasmbin.OpI64Add},
	ir.OpSub:  {wasmbin.OpI32Sub, wasmbin.OpI64Sub},
	ir.OpMul:  {wasmbin.OpI32Mul, wasmbin.OpI64Mul},
	ir.OpDivS: {wasmbin.OpI32DivS, wasmbin.OpI64DivS},
	ir.OpRemS: {wasmbin.OpI32RemS, wasmbin.OpI64RemS},
	ir.OpAnd:  {wasmbin.OpI32And, wasmbin.OpI64And},
	ir.OpOr:   {wasmbin.OpI32Or, wasmbin.OpI64Or},
	ir.OpXor:  {wasmbin.OpI32Xor, wasmbin.OpI64Xor},
	ir.OpShl:  {wasmbin.OpI32Shl, wasmbin.OpI64Shl},
	ir.OpShrS: {wasmbin.OpI32ShrS, wasmbin.OpI64ShrS},
	ir.OpShrU: {wasmbin.OpI32ShrU, wasmbin.OpI64ShrU},
	ir.OpEq:   {wasmbin.OpI32Eq, wasmbin.OpI64Eq},
	ir.OpNe:   {wasmbin.OpI32Ne, wasmbin.OpI64Ne},
	ir.OpLtS:  {wasmbin.OpI32LtS, wasmbin.OpI64LtS},
	ir.OpLeS:  {wasmbin.OpI32LeS, wasmbin.OpI64LeS},
	ir.OpGtS:  {wasmbin.OpI32GtS, wasmbin.OpI64GtS},
	ir.OpGeS:  {wasmbin.OpI32GeS, wasmbin.OpI64GeS},
}

type funcCompiler struct {
	mc     *moduleCompiler
	fn     *ir.Function
	locals []ir.Type
	types  map[ir.Expr]vtype
	code   wasmbin.Code
}

func newFuncCompiler(mc *moduleCompiler, fn *ir.Function) *funcCompiler {
	locals := make([]ir.Type, 0, len(fn.Params)+len(fn.Locals))
	locals = append(locals, fn.Params...)
	locals = append(locals, fn.Locals...)
	return &funcCompiler{
		mc:     mc,
		fn:     fn,
		locals: locals,
		types:  make(map[ir.Expr]vtype),
	}
}

func (fc *funcCompiler) fail(format string, args ...any) error {
	return fc.mc.fail(fc.fn.Name, format, args...)
}

func (fc *funcCompiler) compile() ([]byte, error) {
	want := fromIR(fc.fn.Result)
	got, err := fc.typeOf(fc.fn.Body)
	if err != nil {
		return nil, err
	}

	if want == tVoid {
		if err := fc.emitDiscard(fc.fn.Body); err != nil {
			return nil, err
		}
	} else {
		if _, ok := unify(want, got); !ok {
			return nil, fc.fail("body produces %s, function returns %s", got, want)
		}
		if err := fc.emit(fc.fn.Body); err != nil {
			return nil, err
		}
	}
	fc.code.End()
	return fc.code.Bytes(), nil
}

func (fc *funcCompiler) localType(idx uint32) (vtype, error) {
	if int(idx) >= len(fc.locals) {
		return tVoid, fc.fail("local %d out of range (%d locals)", idx, len(fc.locals))
	}
	return fromIR(fc.locals[idx]), nil
}

// typeOf checks e and returns its type. Results are memoized per node.
func (fc *funcCompiler) typeOf(e ir.Expr) (vtype, error) {
	if e == nil {
		return tVoid, nil
	}
	if t, ok := fc.types[e]; ok {
		return t, nil
	}
	t, err := fc.check(e)
	if err != nil {
		return tVoid, err
	}
	fc.types[e] = t
	return t, nil
}

func (fc *funcCompiler) check(e ir.Expr) (vtype, error) {
	switch n := e.(type) {
	case *ir.ConstExpr:
		t := fromIR(n.Type)
		if !t.hasValue() {
			return tVoid, fc.fail("constant of type %s", n.Type)
		}
		return t, nil

	case *ir.GetExpr:
		return fc.localType(n.Index)

	case *ir.SetExpr:
		lt, err := fc.localType(n.Index)
		if err != nil {
			return tVoid, err
		}
		if err := fc.expect(n.Value, lt, "local %d", n.Index); err != nil {
			return tVoid, err
		}
		return tVoid, nil

	case *ir.BinaryExpr:
		xt, err := fc.typeOf(n.X)
		if err != nil {
			return tVoid, err
		}
		yt, err := fc.typeOf(n.Y)
		if err != nil {
			return tVoid, err
		}
		t, ok := unify(xt, yt)
		if !ok || (!t.hasValue() && t != tNever) {
			return tVoid, fc.fail("%s operands have types %s and %s", n.Op, xt, yt)
		}
		if _, ok := binaryOpcodes[n.Op]; !ok {
			return tVoid, fc.fail("unknown binary operator %d", n.Op)
		}
		if n.Op.IsComparison() {
			return tI32, nil
		}
		return t, nil

	case *ir.UnaryExpr:
		xt, err := fc.typeOf(n.X)
		if err != nil {
			return tVoid, err
		}
		switch n.Op {
		case ir.OpEqz:
			if !xt.hasValue() && xt != tNever {
				return tVoid, fc.fail("eqz operand has type %s", xt)
			}
			return tI32, nil
		case ir.OpExtendS:
			if _, ok := unify(xt, tI32); !ok {
				return tVoid, fc.fail("extend operand has type %s", xt)
			}
			return tI64, nil
		case ir.OpWrap:
			if _, ok := unify(xt, tI64); !ok {
				return tVoid, fc.fail("wrap operand has type %s", xt)
			}
			return tI32, nil
		}
		return tVoid, fc.fail("unknown unary operator %d", n.Op)

	case *ir.CallExpr:
		callee, ok := fc.mc.funcs[n.Callee]
		if !ok {
			return tVoid, fc.fail("call to undeclared function %q", n.Callee)
		}
		if len(n.Args) != len(callee.Params) {
			return tVoid, fc.fail("call to %q with %d arguments, want %d", n.Callee, len(n.Args), len(callee.Params))
		}
		for i, a := range n.Args {
			if err := fc.expect(a, fromIR(callee.Params[i]), "argument %d of %q", i, n.Callee); err != nil {
				return tVoid, err
			}
		}
		return fromIR(callee.Result), nil

	case *ir.GlobalGetExpr:
		g, ok := fc.mc.globals[n.Name]
		if !ok {
			return tVoid, fc.fail("reference to undeclared global %q", n.Name)
		}
		return fromIR(g.Type), nil

	case *ir.GlobalSetExpr:
		g, ok := fc.mc.globals[n.Name]
		if !ok {
			return tVoid, fc.fail("reference to undeclared global %q", n.Name)
		}
		if err := fc.expect(n.Value, fromIR(g.Type), "global %q", n.Name); err != nil {
			return tVoid, err
		}
		return tVoid, nil

	case *ir.AddrOfExpr:
		if n.Symbol == "" {
			return tVoid, fc.fail("address of empty symbol name")
		}
		return tI64, nil

	case *ir.IfExpr:
		ct, err := fc.typeOf(n.Cond)
		if err != nil {
			return tVoid, err
		}
		if !ct.hasValue() && ct != tNever {
			return tVoid, fc.fail("condition has type %s", ct)
		}
		tt, err := fc.typeOf(n.Then)
		if err != nil {
			return tVoid, err
		}
		if n.Else == nil {
			return tVoid, nil
		}
		et, err := fc.typeOf(n.Else)
		if err != nil {
			return tVoid, err
		}
		if t, ok := unify(tt, et); ok {
			return t, nil
		}
		return tVoid, nil

	case *ir.SeqExpr:
		t := tVoid
		for _, s := range n.Body {
			st, err := fc.typeOf(s)
			if err != nil {
				return tVoid, err
			}
			t = st
		}
		return t, nil

	case *ir.ReturnExpr:
		want := fromIR(fc.fn.Result)
		if n.Value == nil {
			if want != tVoid {
				return tVoid, fc.fail("return without a value in function returning %s", want)
			}
			return tNever, nil
		}
		if want == tVoid {
			return tVoid, fc.fail("return with a value in void function")
		}
		if err := fc.expect(n.Value, want, "return value"); err != nil {
			return tVoid, err
		}
		return tNever, nil

	case *ir.UnreachableExpr:
		return tNever, nil
	}
	return tVoid, fc.fail("unsupported expression %T", e)
}

func (fc *funcCompiler) expect(e ir.Expr, want vtype, what string, args ...any) error {
	got, err := fc.typeOf(e)
	if err != nil {
		return err
	}
	if _, ok := unify(got, want); !ok {
		return fc.fail("%s: have %s, want %s", fmt.Sprintf(what, args...), got, want)
	}
	return nil
}

// emitDiscard emits e and drops its value, if any.
func (fc *funcCompiler) emitDiscard(e ir.Expr) error {
	if err := fc.emit(e); err != nil {
		return err
	}
	if fc.types[e].hasValue() {
		fc.code.Drop()
	}
	return nil
}

// emitAs emits e for a context expecting want, dropping a value the context
// does not consume.
func (fc *funcCompiler) emitAs(e ir.Expr, want vtype) error {
	if want.hasValue() {
		return fc.emit(e)
	}
	return fc.emitDiscard(e)
}

func (fc *funcCompiler) emit(e ir.Expr) error {
	if e == nil {
		return nil
	}
	c := &fc.code

	switch n := e.(type) {
	case *ir.ConstExpr:
		if n.Type == ir.I64 {
			c.I64Const(n.Value)
		} else {
			c.I32Const(int32(n.Value))
		}

	case *ir.GetExpr:
		c.LocalGet(n.Index)

	case *ir.SetExpr:
		if err := fc.emit(n.Value); err != nil {
			return err
		}
		c.LocalSet(n.Index)

	case *ir.BinaryExpr:
		if err := fc.emit(n.X); err != nil {
			return err
		}
		if err := fc.emit(n.Y); err != nil {
			return err
		}
		t, _ := unify(fc.types[n.X], fc.types[n.Y])
		ops := binaryOpcodes[n.Op]
		if t == tI64 {
			c.Op(ops[1])
		} else {
			c.Op(ops[0])
		}

	case *ir.UnaryExpr:
		if err := fc.emit(n.X); err != nil {
			return err
		}
		switch n.Op {
		case ir.OpEqz:
			if fc.types[n.X] == tI64 {
				c.Op(wasmbin.OpI64Eqz)
			} else {
				c.Op(wasmbin.OpI32Eqz)
			}
		case ir.OpExtendS:
			c.Op(wasmbin.OpI64ExtendI32S)
		case ir.OpWrap:
			c.Op(wasmbin.OpI32WrapI64)
		}

	case *ir.CallExpr:
		for _, a := range n.Args {
			if err := fc.emit(a); err != nil {
				return err
			}
		}
		c.Call(fc.mc.funcIdx[n.Callee])

	case *ir.GlobalGetExpr:
		c.GlobalGet(fc.mc.globalIdx[n.Name])

	case *ir.GlobalSetExpr:
		if err := fc.emit(n.Value); err != nil {
			return err
		}
		c.GlobalSet(fc.mc.globalIdx[n.Name])

	case *ir.AddrOfExpr:
		c.Call(fc.mc.addrIdx[n.Symbol])

	case *ir.IfExpr:
		t := fc.types[n]
		if err := fc.emit(n.Cond); err != nil {
			return err
		}
		if fc.types[n.Cond] == tI64 {
			// i64 truth value to i32
			c.Op(wasmbin.OpI64Eqz).Op(wasmbin.OpI32Eqz)
		}
		c.If(t.blockType())
		if err := fc.emitAs(n.Then, t); err != nil {
			return err
		}
		if n.Else != nil {
			c.Else()
			if err := fc.emitAs(n.Else, t); err != nil {
				return err
			}
		}
		c.End()
		if t == tNever {
			c.Unreachable()
		}

	case *ir.SeqExpr:
		for i, s := range n.Body {
			if i == len(n.Body)-1 {
				return fc.emit(s)
			}
			if err := fc.emitDiscard(s); err != nil {
				return err
			}
		}

	case *ir.ReturnExpr:
		if err := fc.emit(n.Value); err != nil {
			return err
		}
		c.Return()

	case *ir.UnreachableExpr:
		c.Unreachable()
	}
	return nil
}
