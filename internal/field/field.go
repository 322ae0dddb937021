// Package field implements the typed-field codec: fixed and variable-width
// encoders/decoders for every scalar type an entry can carry, with
// 32-bit-word-aligned dumps and size probes that don't require materializing
// a value.
package field

import "fmt"

// WordSize is the alignment unit every dump is padded to.
const WordSize = 4

// Kind identifies a field's logical SQL type.
type Kind int

const (
	Int32 Kind = iota
	UInt32
	Int64
	F64
	DecimalKind
	DateTimeKind
	LanguageSetKind
	ObjectIdKind
	StringKind
)

func (k Kind) String() string {
	switch k {
	case Int32:
		return "Int32"
	case UInt32:
		return "UInt32"
	case Int64:
		return "Int64"
	case F64:
		return "F64"
	case DecimalKind:
		return "Decimal"
	case DateTimeKind:
		return "DateTime"
	case LanguageSetKind:
		return "LanguageSet"
	case ObjectIdKind:
		return "ObjectId"
	case StringKind:
		return "String"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Encoding distinguishes a string field's on-disk character form.
type Encoding int

const (
	UTF8 Encoding = iota
	UCS2
)

// Collation distinguishes a string field's comparison rule.
type Collation int

const (
	// CollationImplicit inherits the field's declared default (PadSpace for
	// fixed-width CharString/UnicodeString, NoPad otherwise).
	CollationImplicit Collation = iota
	PadSpace
	NoPad
)

// Spec fully describes one field's wire representation.
type Spec struct {
	Kind      Kind
	Fixed     bool // only meaningful for StringKind
	MaxLength int  // byte (UTF8) or code-unit (UCS2) budget; ignored otherwise
	Encoding  Encoding
	Collation Collation
	Precision int // DecimalKind
	Scale     int // DecimalKind
}

// Normalizer is an optional hook a caller may attach to a CharString or
// UnicodeString spec so that insert/search paths run values through a
// Unicode normalization routine before dump/compare. Normalization itself
// is an external collaborator's concern; this interface is only the wiring
// point the persisted Normalized/NormalizingMethod file-id keys describe.
type Normalizer interface {
	Normalize(s string) string
}

// EffectiveCollation resolves CollationImplicit to the concrete rule the
// spec's kind/fixedness imply.
func (s Spec) EffectiveCollation() Collation {
	if s.Collation != CollationImplicit {
		return s.Collation
	}
	if s.Kind == StringKind && s.Fixed {
		return PadSpace
	}
	return NoPad
}

func padWords(n int) int {
	if n%WordSize == 0 {
		return n
	}
	return n + (WordSize - n%WordSize)
}

// SizeFromValue returns the word-aligned dump size of v under spec, without
// writing anything.
func SizeFromValue(spec Spec, v any) (int, error) {
	n, err := byteLenFromValue(spec, v)
	if err != nil {
		return 0, err
	}
	return padWords(n) / WordSize, nil
}

// SizeFromBuffer probes the word-aligned dump size of the value encoded at
// the start of buf, without decoding it.
func SizeFromBuffer(spec Spec, buf []byte) (int, error) {
	n, err := byteLenFromBuffer(spec, buf)
	if err != nil {
		return 0, err
	}
	return padWords(n) / WordSize, nil
}

// Dump encodes v into buf (which must be at least SizeFromValue(spec,v)*WordSize
// long) and returns the number of bytes written (word-aligned).
func Dump(spec Spec, v any, buf []byte) (int, error) {
	switch spec.Kind {
	case Int32, UInt32, Int64, F64:
		return dumpNumeric(spec, v, buf)
	case DecimalKind:
		return dumpDecimal(spec, v, buf)
	case DateTimeKind:
		return dumpDateTime(spec, v, buf)
	case LanguageSetKind:
		return dumpLanguageSet(spec, v, buf)
	case ObjectIdKind:
		return dumpObjectID(spec, v, buf)
	case StringKind:
		return dumpString(spec, v, buf)
	default:
		return 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}

// Load decodes one value of the given spec from the start of buf and
// returns it along with the number of bytes consumed (word-aligned).
func Load(spec Spec, buf []byte) (any, int, error) {
	switch spec.Kind {
	case Int32, UInt32, Int64, F64:
		return loadNumeric(spec, buf)
	case DecimalKind:
		return loadDecimal(spec, buf)
	case DateTimeKind:
		return loadDateTime(spec, buf)
	case LanguageSetKind:
		return loadLanguageSet(spec, buf)
	case ObjectIdKind:
		return loadObjectID(spec, buf)
	case StringKind:
		return loadString(spec, buf)
	default:
		return nil, 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}

// Compare orders two dumped values of the same spec. It operates directly on
// the encoded bytes so the entry comparator never needs to materialize a
// Go value to order two entries.
func Compare(spec Spec, a, b []byte) (int, error) {
	switch spec.Kind {
	case Int32, UInt32, Int64, F64:
		return compareNumeric(spec, a, b)
	case DecimalKind:
		return compareDecimal(spec, a, b)
	case DateTimeKind:
		return compareDateTime(spec, a, b)
	case LanguageSetKind:
		return compareLanguageSet(spec, a, b)
	case ObjectIdKind:
		return compareObjectID(spec, a, b)
	case StringKind:
		return compareString(spec, a, b)
	default:
		return 0, fmt.Errorf("field: unsupported kind %v", spec.Kind)
	}
}
