package field

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

var ucs2Encoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeCharString maps every non-ASCII rune to byte 0x80, the canonical
// CharString dump rule: the codec never needs a full charset table, only a
// stable collating placeholder for anything outside 7-bit ASCII.
func encodeCharString(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7f {
			out = append(out, 0x80)
		} else {
			out = append(out, byte(r))
		}
	}
	return out
}

func encodeUnicodeString(s string) ([]byte, error) {
	b, err := ucs2Encoding.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("field: cannot encode UCS-2 string: %w", err)
	}
	return b, nil
}

func decodeUnicodeString(b []byte) (string, error) {
	out, err := ucs2Encoding.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("field: cannot decode UCS-2 string: %w", err)
	}
	return string(out), nil
}

func encodedStringBytes(spec Spec, s string) ([]byte, error) {
	if spec.Encoding == UCS2 {
		return encodeUnicodeString(s)
	}
	return encodeCharString(s), nil
}

func unitWidth(spec Spec) int {
	if spec.Encoding == UCS2 {
		return 2
	}
	return 1
}

func padByte(spec Spec) []byte {
	if spec.Encoding == UCS2 {
		return []byte{0x20, 0x00} // U+0020, little-endian
	}
	return []byte{0x20}
}

func asStringValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field: cannot convert %T to string", v)
	}
	return s, nil
}

func stringByteLen(spec Spec, v any) (int, error) {
	s, err := asStringValue(v)
	if err != nil {
		return 0, err
	}
	encoded, err := encodedStringBytes(spec, s)
	if err != nil {
		return 0, err
	}
	if spec.Fixed {
		width := spec.MaxLength * unitWidth(spec)
		if len(encoded) > width {
			return 0, fmt.Errorf("field: value exceeds fixed string width %d", spec.MaxLength)
		}
		return width, nil
	}
	maxBytes := spec.MaxLength * unitWidth(spec)
	if maxBytes > 0 && len(encoded) > maxBytes {
		return 0, fmt.Errorf("field: value exceeds variable string max length %d", spec.MaxLength)
	}
	return 2 + len(encoded), nil
}

func stringByteLenFromBuffer(spec Spec, buf []byte) (int, error) {
	if spec.Fixed {
		return spec.MaxLength * unitWidth(spec), nil
	}
	if len(buf) < 2 {
		return 0, fmt.Errorf("field: string length prefix truncated")
	}
	return 2 + int(binary.LittleEndian.Uint16(buf[:2])), nil
}

func dumpString(spec Spec, v any, buf []byte) (int, error) {
	s, err := asStringValue(v)
	if err != nil {
		return 0, err
	}
	encoded, err := encodedStringBytes(spec, s)
	if err != nil {
		return 0, err
	}
	if spec.Fixed {
		width := spec.MaxLength * unitWidth(spec)
		if len(encoded) > width {
			return 0, fmt.Errorf("field: value exceeds fixed string width %d", spec.MaxLength)
		}
		if len(buf) < padWords(width) {
			return 0, fmt.Errorf("field: buffer too small for fixed string")
		}
		copy(buf, encoded)
		pad := padByte(spec)
		for off := len(encoded); off < width; off += len(pad) {
			copy(buf[off:], pad)
		}
		clearPad(buf, width)
		return padWords(width), nil
	}
	total := 2 + len(encoded)
	if len(buf) < padWords(total) {
		return 0, fmt.Errorf("field: buffer too small for variable string")
	}
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(encoded)))
	copy(buf[2:], encoded)
	clearPad(buf, total)
	return padWords(total), nil
}

func decodeStringPayload(spec Spec, payload []byte) (string, error) {
	if spec.Encoding == UCS2 {
		return decodeUnicodeString(payload)
	}
	return string(payload), nil
}

func loadString(spec Spec, buf []byte) (any, int, error) {
	if spec.Fixed {
		width := spec.MaxLength * unitWidth(spec)
		if len(buf) < width {
			return nil, 0, fmt.Errorf("field: buffer too small for fixed string")
		}
		s, err := decodeStringPayload(spec, buf[:width])
		if err != nil {
			return nil, 0, err
		}
		return s, padWords(width), nil
	}
	if len(buf) < 2 {
		return nil, 0, fmt.Errorf("field: string length prefix truncated")
	}
	n := int(binary.LittleEndian.Uint16(buf[:2]))
	total := 2 + n
	if len(buf) < total {
		return nil, 0, fmt.Errorf("field: string payload truncated")
	}
	s, err := decodeStringPayload(spec, buf[2:total])
	if err != nil {
		return nil, 0, err
	}
	return s, padWords(total), nil
}

// compareString implements the PAD-SPACE/NO-PAD comparison rules: PAD-SPACE
// virtually extends the shorter operand with U+0020 before comparing;
// NO-PAD is pure lexicographic order with length as the final tie-break.
func compareString(spec Spec, a, b []byte) (int, error) {
	va, _, err := loadString(spec, a)
	if err != nil {
		return 0, err
	}
	vb, _, err := loadString(spec, b)
	if err != nil {
		return 0, err
	}
	sa, sb := []rune(va.(string)), []rune(vb.(string))
	switch spec.EffectiveCollation() {
	case PadSpace:
		n := len(sa)
		if len(sb) > n {
			n = len(sb)
		}
		for i := 0; i < n; i++ {
			ra, rb := rune(' '), rune(' ')
			if i < len(sa) {
				ra = sa[i]
			}
			if i < len(sb) {
				rb = sb[i]
			}
			if ra != rb {
				if ra < rb {
					return -1, nil
				}
				return 1, nil
			}
		}
		return 0, nil
	default: // NoPad
		n := len(sa)
		if len(sb) < n {
			n = len(sb)
		}
		for i := 0; i < n; i++ {
			if sa[i] != sb[i] {
				if sa[i] < sb[i] {
					return -1, nil
				}
				return 1, nil
			}
		}
		switch {
		case len(sa) < len(sb):
			return -1, nil
		case len(sa) > len(sb):
			return 1, nil
		default:
			return 0, nil
		}
	}
}
