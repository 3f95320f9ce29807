package wasmbin

// Code accumulates the instruction stream of one function body.
type Code struct {
	buf []byte
}

// Op appends a bare opcode.
func (c *Code) Op(op byte) *Code {
	c.buf = append(c.buf, op)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf = append(c.buf, OpI32Const)
	c.buf = AppendSLEB128(c.buf, v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = append(c.buf, OpI64Const)
	c.buf = AppendSLEB128(c.buf, v)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code  { return c.indexed(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) *Code  { return c.indexed(OpLocalSet, idx) }
func (c *Code) GlobalGet(idx uint32) *Code { return c.indexed(OpGlobalGet, idx) }
func (c *Code) GlobalSet(idx uint32) *Code { return c.indexed(OpGlobalSet, idx) }
func (c *Code) Call(idx uint32) *Code      { return c.indexed(OpCall, idx) }

// If opens a conditional with the given block type.
func (c *Code) If(blockType byte) *Code {
	c.buf = append(c.buf, OpIf, blockType)
	return c
}

func (c *Code) Else() *Code        { return c.Op(OpElse) }
func (c *Code) End() *Code         { return c.Op(OpEnd) }
func (c *Code) Drop() *Code        { return c.Op(OpDrop) }
func (c *Code) Return() *Code      { return c.Op(OpReturn) }
func (c *Code) Unreachable() *Code { return c.Op(OpUnreachable) }

func (c *Code) indexed(op byte, idx uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, idx)
	return c
}

// Len returns the number of bytes emitted so far.
func (c *Code) Len() int {
	return len(c.buf)
}

// Bytes returns the instruction stream.
func (c *Code) Bytes() []byte {
	return c.buf
}
