package field

import (
	"encoding/binary"
	"fmt"
	"math"
)

func numericByteLen(k Kind) int {
	switch k {
	case Int32, UInt32:
		return 4
	case Int64, F64:
		return 8
	default:
		return 0
	}
}

func byteLenFromValue(spec Spec, v any) (int, error) {
	switch spec.Kind {
	case Int32, UInt32, Int64, F64:
		return numericByteLen(spec.Kind), nil
	case DecimalKind:
		return decimalByteLen(spec, v)
	case DateTimeKind:
		return 8, nil
	case LanguageSetKind:
		return languageSetByteLen(v)
	case ObjectIdKind:
		return 16, nil
	case StringKind:
		return stringByteLen(spec, v)
	default:
		return 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}

func byteLenFromBuffer(spec Spec, buf []byte) (int, error) {
	switch spec.Kind {
	case Int32, UInt32, Int64, F64:
		return numericByteLen(spec.Kind), nil
	case DecimalKind:
		if len(buf) < 1 {
			return 0, fmt.Errorf("field: decimal length byte truncated")
		}
		return 1 + int(buf[0]), nil
	case DateTimeKind:
		return 8, nil
	case LanguageSetKind:
		if len(buf) < 2 {
			return 0, fmt.Errorf("field: language set length prefix truncated")
		}
		return 2 + int(binary.LittleEndian.Uint16(buf[:2])), nil
	case ObjectIdKind:
		return 16, nil
	case StringKind:
		return stringByteLenFromBuffer(spec, buf)
	default:
		return 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}

// dumpNumeric encodes fixed-width numerics using an order-preserving
// transform (sign/mantissa bias) so that a plain unsigned byte compare of
// two dumps matches numeric order, letting the entry comparator (C2) avoid
// decoding fields it is only ordering, not projecting.
func dumpNumeric(spec Spec, v any, buf []byte) (int, error) {
	n := numericByteLen(spec.Kind)
	if len(buf) < padWords(n) {
		return 0, fmt.Errorf("field: buffer too small for %v", spec.Kind)
	}
	switch spec.Kind {
	case Int32:
		i, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint32(buf, uint32(int32(i))^0x80000000)
	case UInt32:
		i, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint32(buf, uint32(i))
	case Int64:
		i, err := asInt64(v)
		if err != nil {
			return 0, err
		}
		binary.BigEndian.PutUint64(buf, uint64(i)^0x8000000000000000)
	case F64:
		f, err := asFloat64(v)
		if err != nil {
			return 0, err
		}
		bits := math.Float64bits(f)
		if f < 0 || (bits>>63) == 1 {
			bits = ^bits
		} else {
			bits |= 0x8000000000000000
		}
		binary.BigEndian.PutUint64(buf, bits)
	}
	clearPad(buf, n)
	return padWords(n), nil
}

func loadNumeric(spec Spec, buf []byte) (any, int, error) {
	n := numericByteLen(spec.Kind)
	if len(buf) < n {
		return nil, 0, fmt.Errorf("field: buffer too small for %v", spec.Kind)
	}
	switch spec.Kind {
	case Int32:
		u := binary.BigEndian.Uint32(buf) ^ 0x80000000
		return int32(u), padWords(n), nil
	case UInt32:
		return binary.BigEndian.Uint32(buf), padWords(n), nil
	case Int64:
		u := binary.BigEndian.Uint64(buf) ^ 0x8000000000000000
		return int64(u), padWords(n), nil
	case F64:
		bits := binary.BigEndian.Uint64(buf)
		if bits>>63 == 1 {
			bits &^= 0x8000000000000000
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), padWords(n), nil
	default:
		return nil, 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}

func compareNumeric(spec Spec, a, b []byte) (int, error) {
	n := numericByteLen(spec.Kind)
	if len(a) < n || len(b) < n {
		return 0, fmt.Errorf("field: buffer too small for %v", spec.Kind)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func clearPad(buf []byte, n int) {
	for i := n; i < padWords(n); i++ {
		buf[i] = 0
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("field: cannot convert %T to integer", v)
	}
}

func asFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("field: cannot convert %T to float", v)
	}
}
