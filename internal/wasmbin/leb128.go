package wasmbin

import (
	"errors"

	"github.com/tetratelabs/wazero/api"
)

var errOverflow = errors.New("leb128: value overflows 32 bits")

// AppendULEB128 appends v in unsigned LEB128 format.
func AppendULEB128(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// AppendSLEB128 appends v in signed LEB128 format.
func AppendSLEB128[T int32 | int64](dst []byte, v T) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// DecodeULEB128 decodes an unsigned LEB128 value and returns it with the
// number of bytes consumed.
func DecodeULEB128(data []byte) (uint32, int, error) {
	var result uint32
	var shift uint32
	for i, b := range data {
		if shift == 28 && b&0x70 != 0 {
			return 0, 0, errOverflow
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift > 28 {
			return 0, 0, errOverflow
		}
	}
	return 0, 0, errUnexpectedEOF
}

// ValType converts a wazero value type to its binary encoding.
func ValType(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

// ParseValType converts a binary value type to wazero's representation.
func ParseValType(b byte) (api.ValueType, bool) {
	switch b {
	case 0x7f:
		return api.ValueTypeI32, true
	case 0x7e:
		return api.ValueTypeI64, true
	case 0x7d:
		return api.ValueTypeF32, true
	case 0x7c:
		return api.ValueTypeF64, true
	}
	return 0, false
}
