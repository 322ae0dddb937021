package field

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ngina/bplusindex/internal/scalar"
)

func dumpObjectID(spec Spec, v any, buf []byte) (int, error) {
	u, err := asObjectID(v)
	if err != nil {
		return 0, err
	}
	if len(buf) < scalar.ObjectIDSize {
		return 0, fmt.Errorf("field: buffer too small for ObjectId")
	}
	copy(buf, scalar.ObjectIDToBytes(u))
	return scalar.ObjectIDSize, nil
}

func loadObjectID(spec Spec, buf []byte) (any, int, error) {
	u, err := scalar.ObjectIDFromBytes(buf[:scalar.ObjectIDSize])
	if err != nil {
		return nil, 0, err
	}
	return u, scalar.ObjectIDSize, nil
}

func compareObjectID(spec Spec, a, b []byte) (int, error) {
	ua, err := scalar.ObjectIDFromBytes(a[:scalar.ObjectIDSize])
	if err != nil {
		return 0, err
	}
	ub, err := scalar.ObjectIDFromBytes(b[:scalar.ObjectIDSize])
	if err != nil {
		return 0, err
	}
	return scalar.CompareObjectID(ua, ub), nil
}

func asObjectID(v any) (uuid.UUID, error) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return scalar.ParseObjectID(t)
	case []byte:
		return scalar.ObjectIDFromBytes(t)
	default:
		return uuid.UUID{}, fmt.Errorf("field: cannot convert %T to ObjectId", v)
	}
}
