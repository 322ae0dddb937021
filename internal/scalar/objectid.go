package scalar

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectIDSize is the on-disk width of an ObjectId field value.
const ObjectIDSize = 16

// ParseObjectID parses a UUID string into its 16-byte ObjectId representation.
func ParseObjectID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// ObjectIDToBytes returns the 16-byte representation of an ObjectId value.
func ObjectIDToBytes(u uuid.UUID) []byte {
	return u[:]
}

// ObjectIDFromBytes reconstructs an ObjectId from its 16-byte on-disk form.
func ObjectIDFromBytes(b []byte) (uuid.UUID, error) {
	if len(b) != ObjectIDSize {
		return uuid.UUID{}, fmt.Errorf("object id: expected %d bytes, got %d", ObjectIDSize, len(b))
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

// CompareObjectID orders two ObjectId values by their raw byte representation,
// the same unsigned lexicographic order the typed-field comparator (C2) uses
// for every fixed-width field type.
func CompareObjectID(a, b uuid.UUID) int {
	for i := 0; i < ObjectIDSize; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewObjectID generates a new random (v4) ObjectId, used by test fixtures
// and by file drivers that assign a rowid when the caller doesn't supply one.
func NewObjectID() uuid.UUID {
	return uuid.New()
}
