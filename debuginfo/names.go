package debuginfo

var languageNames = map[uint16]string{
	0x0001: "DW_LANG_C89",
	0x0002: "DW_LANG_C",
	0x0003: "DW_LANG_Ada83",
	0x0004: "DW_LANG_C_plus_plus",
	0x0005: "DW_LANG_Cobol74",
	0x0006: "DW_LANG_Cobol85",
	0x0007: "DW_LANG_Fortran77",
	0x0008: "DW_LANG_Fortran90",
	0x0009: "DW_LANG_Pascal83",
	0x000a: "DW_LANG_Modula2",
	0x000b: "DW_LANG_Java",
	0x000c: "DW_LANG_C99",
	0x000d: "DW_LANG_Ada95",
	0x000e: "DW_LANG_Fortran95",
	0x000f: "DW_LANG_PLI",
	0x0010: "DW_LANG_ObjC",
	0x0011: "DW_LANG_ObjC_plus_plus",
	0x0012: "DW_LANG_UPC",
	0x0013: "DW_LANG_D",
	0x0014: "DW_LANG_Python",
	0x0015: "DW_LANG_OpenCL",
	0x0016: "DW_LANG_Go",
	0x0017: "DW_LANG_Modula3",
	0x0018: "DW_LANG_Haskell",
	0x0019: "DW_LANG_C_plus_plus_03",
	0x001a: "DW_LANG_C_plus_plus_11",
	0x001b: "DW_LANG_OCaml",
	0x001c: "DW_LANG_Rust",
	0x001d: "DW_LANG_C11",
	0x001e: "DW_LANG_Swift",
	0x001f: "DW_LANG_Julia",
	0x0020: "DW_LANG_Dylan",
	0x0021: "DW_LANG_C_plus_plus_14",
	0x0022: "DW_LANG_Fortran03",
	0x0023: "DW_LANG_Fortran08",
}

var tagNames = map[uint16]string{
	0x01: "DW_TAG_array_type",
	0x02: "DW_TAG_class_type",
	0x03: "DW_TAG_entry_point",
	0x04: "DW_TAG_enumeration_type",
	0x05: "DW_TAG_formal_parameter",
	0x08: "DW_TAG_imported_declaration",
	0x0a: "DW_TAG_label",
	0x0b: "DW_TAG_lexical_block",
	0x0d: "DW_TAG_member",
	0x0f: "DW_TAG_pointer_type",
	0x10: "DW_TAG_reference_type",
	0x11: "DW_TAG_compile_unit",
	0x12: "DW_TAG_string_type",
	0x13: "DW_TAG_structure_type",
	0x15: "DW_TAG_subroutine_type",
	0x16: "DW_TAG_typedef",
	0x17: "DW_TAG_union_type",
	0x18: "DW_TAG_unspecified_parameters",
	0x19: "DW_TAG_variant",
	0x1c: "DW_TAG_inheritance",
	0x1d: "DW_TAG_inlined_subroutine",
	0x1e: "DW_TAG_module",
	0x1f: "DW_TAG_ptr_to_member_type",
	0x21: "DW_TAG_subrange_type",
	0x24: "DW_TAG_base_type",
	0x26: "DW_TAG_const_type",
	0x27: "DW_TAG_constant",
	0x28: "DW_TAG_enumerator",
	0x2e: "DW_TAG_subprogram",
	0x2f: "DW_TAG_template_type_parameter",
	0x30: "DW_TAG_template_value_parameter",
	0x34: "DW_TAG_variable",
	0x35: "DW_TAG_volatile_type",
	0x37: "DW_TAG_restrict_type",
	0x39: "DW_TAG_namespace",
	0x3b: "DW_TAG_unspecified_type",
	0x42: "DW_TAG_rvalue_reference_type",
}

var encodingNames = map[uint16]string{
	0x01: "DW_ATE_address",
	0x02: "DW_ATE_boolean",
	0x03: "DW_ATE_complex_float",
	0x04: "DW_ATE_float",
	0x05: "DW_ATE_signed",
	0x06: "DW_ATE_signed_char",
	0x07: "DW_ATE_unsigned",
	0x08: "DW_ATE_unsigned_char",
	0x09: "DW_ATE_imaginary_float",
	0x0a: "DW_ATE_packed_decimal",
	0x0b: "DW_ATE_numeric_string",
	0x0c: "DW_ATE_edited",
	0x0d: "DW_ATE_signed_fixed",
	0x0e: "DW_ATE_unsigned_fixed",
	0x0f: "DW_ATE_decimal_float",
	0x10: "DW_ATE_UTF",
}

// LanguageString returns the DWARF name of a source language code.
func LanguageString(code uint16) (string, bool) {
	s, ok := languageNames[code]
	return s, ok
}

// TagString returns the DWARF name of a tag.
func TagString(tag uint16) (string, bool) {
	s, ok := tagNames[tag]
	return s, ok
}

// EncodingString returns the DWARF name of a base type encoding.
func EncodingString(enc uint16) (string, bool) {
	s, ok := encodingNames[enc]
	return s, ok
}
