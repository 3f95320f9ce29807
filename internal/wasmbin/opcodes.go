package wasmbin

// Opcodes emitted by the code generator.
const (
	OpUnreachable byte = 0x00
	OpBlock       byte = 0x02
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0b
	OpBr          byte = 0x0c
	OpBrIf        byte = 0x0d
	OpReturn      byte = 0x0f
	OpCall        byte = 0x10
	OpDrop        byte = 0x1a

	OpLocalGet  byte = 0x20
	OpLocalSet  byte = 0x21
	OpLocalTee  byte = 0x22
	OpGlobalGet byte = 0x23
	OpGlobalSet byte = 0x24

	OpI32Const byte = 0x41
	OpI64Const byte = 0x42

	OpI32Eqz byte = 0x45
	OpI32Eq  byte = 0x46
	OpI32Ne  byte = 0x47
	OpI32LtS byte = 0x48
	OpI32GtS byte = 0x4a
	OpI32LeS byte = 0x4c
	OpI32GeS byte = 0x4e

	OpI64Eqz byte = 0x50
	OpI64Eq  byte = 0x51
	OpI64Ne  byte = 0x52
	OpI64LtS byte = 0x53
	OpI64GtS byte = 0x55
	OpI64LeS byte = 0x57
	OpI64GeS byte = 0x59

	OpI32Add  byte = 0x6a
	OpI32Sub  byte = 0x6b
	OpI32Mul  byte = 0x6c
	OpI32DivS byte = 0x6d
	OpI32RemS byte = 0x6f
	OpI32And  byte = 0x71
	OpI32Or   byte = 0x72
	OpI32Xor  byte = 0x73
	OpI32Shl  byte = 0x74
	OpI32ShrS byte = 0x75
	OpI32ShrU byte = 0x76

	OpI64Add  byte = 0x7c
	OpI64Sub  byte = 0x7d
	OpI64Mul  byte = 0x7e
	OpI64DivS byte = 0x7f
	OpI64RemS byte = 0x81
	OpI64And  byte = 0x83
	OpI64Or   byte = 0x84
	OpI64Xor  byte = 0x85
	OpI64Shl  byte = 0x86
	OpI64ShrS byte = 0x87
	OpI64ShrU byte = 0x88

	OpI32WrapI64    byte = 0xa7
	OpI64ExtendI32S byte = 0xac
)

// Block types.
const (
	BlockVoid byte = 0x40
	BlockI32  byte = 0x7f
	BlockI64  byte = 0x7e
)

// Section IDs.
const (
	SectionType     byte = 0x01
	SectionImport   byte = 0x02
	SectionFunction byte = 0x03
	SectionGlobal   byte = 0x06
	SectionExport   byte = 0x07
	SectionCode     byte = 0x0a
)

// External kinds of imports and exports.
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)
