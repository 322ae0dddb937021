package field

import (
	"encoding/binary"
	"fmt"
	"time"
)

// dumpDateTime encodes a timestamp as UnixNano, bias-shifted the same way
// Int64 is so that a byte compare of two dumps matches chronological order.
func dumpDateTime(spec Spec, v any, buf []byte) (int, error) {
	t, err := asTime(v)
	if err != nil {
		return 0, err
	}
	if len(buf) < 8 {
		return 0, fmt.Errorf("field: buffer too small for DateTime")
	}
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano())^0x8000000000000000)
	return 8, nil
}

func loadDateTime(spec Spec, buf []byte) (any, int, error) {
	if len(buf) < 8 {
		return nil, 0, fmt.Errorf("field: buffer too small for DateTime")
	}
	u := binary.BigEndian.Uint64(buf) ^ 0x8000000000000000
	return time.Unix(0, int64(u)).UTC(), 8, nil
}

func compareDateTime(spec Spec, a, b []byte) (int, error) {
	if len(a) < 8 || len(b) < 8 {
		return 0, fmt.Errorf("field: buffer too small for DateTime")
	}
	for i := 0; i < 8; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(0, t).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("field: cannot convert %T to DateTime", v)
	}
}
