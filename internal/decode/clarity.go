package decode

import (
	"encoding/binary"
	"fmt"
)

// ClarityType is the tag byte of the chain's binary value format (spec
// section 4.1).
type ClarityType byte

const (
	ClarityInt ClarityType = iota
	ClarityUInt
	ClarityBuffer
	ClarityBoolTrue
	ClarityBoolFalse
	ClarityPrincipal
	ClarityResponseOK
	ClarityResponseErr
	ClarityOptionalNone
	ClarityOptionalSome
	ClarityList
	ClarityTuple
	ClarityStringASCII
	ClarityStringUTF8
)

// ClarityValue is a recursive decoded value from the tagged binary format.
type ClarityValue struct {
	Type ClarityType

	UInt    [16]byte // big-endian u128
	Int     [16]byte // big-endian i128, two's complement
	Buffer  []byte
	Str     string
	Principal string

	List  []ClarityValue
	Tuple map[string]ClarityValue

	// Optional / Response
	Inner *ClarityValue
}

// AsUint64 returns the low 8 bytes of a UInt value as a uint64, which is
// sufficient for every spec field that stores Clarity uints (amounts,
// heights). It errors for any other type.
func (v ClarityValue) AsUint64() (uint64, error) {
	if v.Type != ClarityUInt {
		return 0, fmt.Errorf("decode: value is not a uint (type %d)", v.Type)
	}
	return binary.BigEndian.Uint64(v.UInt[8:16]), nil
}

// AsString returns the decoded ASCII/UTF8 string content.
func (v ClarityValue) AsString() (string, error) {
	if v.Type != ClarityStringASCII && v.Type != ClarityStringUTF8 {
		return "", fmt.Errorf("decode: value is not a string (type %d)", v.Type)
	}
	return v.Str, nil
}

// Field returns a named field of a tuple value, or false if absent or the
// value is not a tuple.
func (v ClarityValue) Field(name string) (ClarityValue, bool) {
	if v.Type != ClarityTuple {
		return ClarityValue{}, false
	}
	f, ok := v.Tuple[name]
	return f, ok
}

// ErrClarityTruncated is returned by DecodeClarityValue when the buffer ends
// mid-value.
var ErrClarityTruncated = fmt.Errorf("decode: clarity value truncated")

// DecodeClarityValue parses one tagged Clarity value from buf, returning the
// value and the number of bytes consumed.
func DecodeClarityValue(buf []byte) (ClarityValue, int, error) {
	if len(buf) < 1 {
		return ClarityValue{}, 0, ErrClarityTruncated
	}
	tag := ClarityType(buf[0])
	rest := buf[1:]

	switch tag {
	case ClarityInt, ClarityUInt:
		if len(rest) < 16 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		v := ClarityValue{Type: tag}
		if tag == ClarityUInt {
			copy(v.UInt[:], rest[:16])
		} else {
			copy(v.Int[:], rest[:16])
		}
		return v, 17, nil

	case ClarityBoolTrue, ClarityBoolFalse:
		return ClarityValue{Type: tag}, 1, nil

	case ClarityBuffer:
		if len(rest) < 4 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		n := int(binary.BigEndian.Uint32(rest[:4]))
		if len(rest) < 4+n {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		buf2 := make([]byte, n)
		copy(buf2, rest[4:4+n])
		return ClarityValue{Type: tag, Buffer: buf2}, 1 + 4 + n, nil

	case ClarityStringASCII, ClarityStringUTF8:
		if len(rest) < 4 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		n := int(binary.BigEndian.Uint32(rest[:4]))
		if len(rest) < 4+n {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		return ClarityValue{Type: tag, Str: string(rest[4 : 4+n])}, 1 + 4 + n, nil

	case ClarityPrincipal:
		if len(rest) < 4 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		n := int(binary.BigEndian.Uint32(rest[:4]))
		if len(rest) < 4+n {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		return ClarityValue{Type: tag, Principal: string(rest[4 : 4+n])}, 1 + 4 + n, nil

	case ClarityOptionalNone:
		return ClarityValue{Type: tag}, 1, nil

	case ClarityOptionalSome, ClarityResponseOK, ClarityResponseErr:
		inner, n, err := DecodeClarityValue(rest)
		if err != nil {
			return ClarityValue{}, 0, err
		}
		return ClarityValue{Type: tag, Inner: &inner}, 1 + n, nil

	case ClarityList:
		if len(rest) < 4 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		count := int(binary.BigEndian.Uint32(rest[:4]))
		off := 4
		items := make([]ClarityValue, 0, count)
		for i := 0; i < count; i++ {
			item, n, err := DecodeClarityValue(rest[off:])
			if err != nil {
				return ClarityValue{}, 0, err
			}
			items = append(items, item)
			off += n
		}
		return ClarityValue{Type: tag, List: items}, 1 + off, nil

	case ClarityTuple:
		if len(rest) < 4 {
			return ClarityValue{}, 0, ErrClarityTruncated
		}
		count := int(binary.BigEndian.Uint32(rest[:4]))
		off := 4
		fields := make(map[string]ClarityValue, count)
		for i := 0; i < count; i++ {
			if len(rest[off:]) < 1 {
				return ClarityValue{}, 0, ErrClarityTruncated
			}
			nameLen := int(rest[off])
			off++
			if len(rest[off:]) < nameLen {
				return ClarityValue{}, 0, ErrClarityTruncated
			}
			name := string(rest[off : off+nameLen])
			off += nameLen
			val, n, err := DecodeClarityValue(rest[off:])
			if err != nil {
				return ClarityValue{}, 0, err
			}
			fields[name] = val
			off += n
		}
		return ClarityValue{Type: tag, Tuple: fields}, 1 + off, nil

	default:
		return ClarityValue{}, 0, fmt.Errorf("decode: unknown clarity type tag %d", tag)
	}
}
