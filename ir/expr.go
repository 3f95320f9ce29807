package ir

// Expr is a node of a function body.
type Expr interface {
	isExpr()
}

// BinaryOp is an arithmetic, bitwise or comparison operator. Both operands
// have the same type; comparisons produce i32.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDivS
	OpRemS
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShrS
	OpShrU
	OpEq
	OpNe
	OpLtS
	OpLeS
	OpGtS
	OpGeS
)

var binaryOpNames = [...]string{
	OpAdd:  "add",
	OpSub:  "sub",
	OpMul:  "mul",
	OpDivS: "div_s",
	OpRemS: "rem_s",
	OpAnd:  "and",
	OpOr:   "or",
	OpXor:  "xor",
	OpShl:  "shl",
	OpShrS: "shr_s",
	OpShrU: "shr_u",
	OpEq:   "eq",
	OpNe:   "ne",
	OpLtS:  "lt_s",
	OpLeS:  "le_s",
	OpGtS:  "gt_s",
	OpGeS:  "ge_s",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "unknown"
}

// IsComparison reports whether op produces an i32 truth value.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq
}

// UnaryOp is a single-operand operator.
type UnaryOp uint8

const (
	OpEqz     UnaryOp = iota // x == 0, produces i32
	OpExtendS                // i32 -> i64, sign extending
	OpWrap                   // i64 -> i32
)

func (op UnaryOp) String() string {
	switch op {
	case OpEqz:
		return "eqz"
	case OpExtendS:
		return "extend"
	case OpWrap:
		return "wrap"
	}
	return "unknown"
}

// ConstExpr is an integer constant.
type ConstExpr struct {
	Value int64
	Type  Type
}

// GetExpr reads a parameter or local. Parameters come first in the index
// space, followed by Function.Locals.
type GetExpr struct {
	Index uint32
}

// SetExpr writes a parameter or local. It produces no value.
type SetExpr struct {
	Value Expr
	Index uint32
}

// BinaryExpr applies Op to X and Y.
type BinaryExpr struct {
	X  Expr
	Y  Expr
	Op BinaryOp
}

// UnaryExpr applies Op to X.
type UnaryExpr struct {
	X  Expr
	Op UnaryOp
}

// CallExpr calls a function by symbol name.
type CallExpr struct {
	Callee string
	Args   []Expr
}

// GlobalGetExpr reads a global by symbol name.
type GlobalGetExpr struct {
	Name string
}

// GlobalSetExpr writes a global by symbol name. It produces no value.
type GlobalSetExpr struct {
	Value Expr
	Name  string
}

// AddrOfExpr produces the i64 address of a function or data symbol.
type AddrOfExpr struct {
	Symbol string
}

// IfExpr evaluates Then when Cond is non-zero, Else otherwise. It produces a
// value only when both branches exist and produce the same type.
type IfExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// SeqExpr evaluates Body in order and produces the value of the last
// element. Values of earlier elements are discarded.
type SeqExpr struct {
	Body []Expr
}

// ReturnExpr leaves the function, with Value when the function has a result.
type ReturnExpr struct {
	Value Expr
}

// UnreachableExpr traps.
type UnreachableExpr struct{}

func (*ConstExpr) isExpr()       {}
func (*GetExpr) isExpr()         {}
func (*SetExpr) isExpr()         {}
func (*BinaryExpr) isExpr()      {}
func (*UnaryExpr) isExpr()       {}
func (*CallExpr) isExpr()        {}
func (*GlobalGetExpr) isExpr()   {}
func (*GlobalSetExpr) isExpr()   {}
func (*AddrOfExpr) isExpr()      {}
func (*IfExpr) isExpr()          {}
func (*SeqExpr) isExpr()         {}
func (*ReturnExpr) isExpr()      {}
func (*UnreachableExpr) isExpr() {}

// Walk calls fn for e and every expression beneath it, parents first.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *SetExpr:
		Walk(n.Value, fn)
	case *BinaryExpr:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case *UnaryExpr:
		Walk(n.X, fn)
	case *CallExpr:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *GlobalSetExpr:
		Walk(n.Value, fn)
	case *IfExpr:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *SeqExpr:
		for _, s := range n.Body {
			Walk(s, fn)
		}
	case *ReturnExpr:
		Walk(n.Value, fn)
	}
}

// Builders

func ConstI32(v int32) Expr { return &ConstExpr{Type: I32, Value: int64(v)} }
func ConstI64(v int64) Expr { return &ConstExpr{Type: I64, Value: v} }

// Arg reads parameter or local i.
func Arg(i uint32) Expr { return &GetExpr{Index: i} }

// Set writes parameter or local i.
func Set(i uint32, v Expr) Expr { return &SetExpr{Index: i, Value: v} }

func Binary(op BinaryOp, x, y Expr) Expr { return &BinaryExpr{Op: op, X: x, Y: y} }

func Add(x, y Expr) Expr { return Binary(OpAdd, x, y) }
func Sub(x, y Expr) Expr { return Binary(OpSub, x, y) }
func Mul(x, y Expr) Expr { return Binary(OpMul, x, y) }
func Eq(x, y Expr) Expr  { return Binary(OpEq, x, y) }
func LtS(x, y Expr) Expr { return Binary(OpLtS, x, y) }
func LeS(x, y Expr) Expr { return Binary(OpLeS, x, y) }
func GtS(x, y Expr) Expr { return Binary(OpGtS, x, y) }

func Eqz(x Expr) Expr    { return &UnaryExpr{Op: OpEqz, X: x} }
func Extend(x Expr) Expr { return &UnaryExpr{Op: OpExtendS, X: x} }
func Wrap(x Expr) Expr   { return &UnaryExpr{Op: OpWrap, X: x} }

// Call calls callee with args.
func Call(callee string, args ...Expr) Expr { return &CallExpr{Callee: callee, Args: args} }

func GlobalGet(name string) Expr         { return &GlobalGetExpr{Name: name} }
func GlobalSet(name string, v Expr) Expr { return &GlobalSetExpr{Name: name, Value: v} }

// AddrOf produces the address of symbol.
func AddrOf(symbol string) Expr { return &AddrOfExpr{Symbol: symbol} }

// If builds a conditional; elseExpr may be nil.
func If(cond, then, elseExpr Expr) Expr { return &IfExpr{Cond: cond, Then: then, Else: elseExpr} }

// Seq evaluates body in order.
func Seq(body ...Expr) Expr { return &SeqExpr{Body: body} }

// Return leaves the function; v may be nil.
func Return(v Expr) Expr { return &ReturnExpr{Value: v} }

func Unreachable() Expr { return &UnreachableExpr{} }
