package ir

// DWARF language codes used by compile units.
const (
	LangC89         uint16 = 0x0001
	LangC           uint16 = 0x0002
	LangCPlusPlus   uint16 = 0x0004
	LangFortran77   uint16 = 0x0007
	LangFortran90   uint16 = 0x0008
	LangPascal83    uint16 = 0x0009
	LangC99         uint16 = 0x000c
	LangObjC        uint16 = 0x0010
	LangObjCPlus    uint16 = 0x0011
	LangGo          uint16 = 0x0016
	LangCPlusPlus11 uint16 = 0x001a
	LangRust        uint16 = 0x001c
	LangC11         uint16 = 0x001d
)

// DWARF type tags.
const (
	TagArrayType       uint16 = 0x01
	TagClassType       uint16 = 0x02
	TagEnumerationType uint16 = 0x04
	TagMember          uint16 = 0x0d
	TagPointerType     uint16 = 0x0f
	TagReferenceType   uint16 = 0x10
	TagStructureType   uint16 = 0x13
	TagSubroutineType  uint16 = 0x15
	TagTypedef         uint16 = 0x16
	TagUnionType       uint16 = 0x17
	TagBaseType        uint16 = 0x24
	TagConstType       uint16 = 0x26
	TagEnumerator      uint16 = 0x28
	TagVolatileType    uint16 = 0x35
)

// DWARF base type encodings.
const (
	EncodingAddress      uint16 = 0x01
	EncodingBoolean      uint16 = 0x02
	EncodingFloat        uint16 = 0x04
	EncodingSigned       uint16 = 0x05
	EncodingSignedChar   uint16 = 0x06
	EncodingUnsigned     uint16 = 0x07
	EncodingUnsignedChar uint16 = 0x08
	EncodingUTF          uint16 = 0x10
)

// DebugInfo is the root of a module's debug metadata graph.
type DebugInfo struct {
	CompileUnits []*DICompileUnit
}

// DIFile names a source file.
type DIFile struct {
	Filename  string
	Directory string
}

// DICompileUnit describes one source translation unit.
type DICompileUnit struct {
	File          DIFile
	Producer      string
	Subprograms   []*DISubprogram
	Globals       []*DIGlobalVariable
	RetainedTypes []*DIType
	EnumTypes     []*DIType
	Language      uint16
}

// DISubprogram describes a source-level function.
type DISubprogram struct {
	Type        *DIType
	File        DIFile
	Name        string
	LinkageName string
	Line        uint32
}

// DIGlobalVariable describes a source-level global.
type DIGlobalVariable struct {
	Type        *DIType
	File        DIFile
	Name        string
	LinkageName string
	Line        uint32
}

// DIType describes a source-level type. Basic types carry an Encoding;
// composite types may carry an Identifier and Elements; derived types point
// at BaseType.
type DIType struct {
	BaseType   *DIType
	File       DIFile
	Name       string
	Identifier string
	Elements   []*DIType
	SizeInBits uint64
	Line       uint32
	Tag        uint16
	Encoding   uint16
}

// IsBasic reports whether t is a base type.
func (t *DIType) IsBasic() bool {
	return t.Tag == TagBaseType
}

// IsComposite reports whether t aggregates element types.
func (t *DIType) IsComposite() bool {
	switch t.Tag {
	case TagArrayType, TagClassType, TagEnumerationType, TagStructureType,
		TagSubroutineType, TagUnionType:
		return true
	}
	return false
}
