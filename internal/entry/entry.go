// Package entry implements the entry model (C3): it binds a tree-flavor
// schema (Array.Data, Array.NullData, Array.NullArray, B-tree, Bitmap) to
// the typed-field codec, producing the packed leaf/node byte layouts the
// page object (C4) and tree object (C5) operate on.
package entry

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ngina/bplusindex/internal/field"
)

// ErrNullabilityViolation is returned by PackLeaf when a field outside the
// schema's null-bitmap range (or any field at all, when the schema has no
// header) is given a nil value: there is no byte position that can record
// an absent value for it.
var ErrNullabilityViolation = errors.New("entry: non-null field given a null value")

// Flavor identifies one of the five entry-schemas the three index types are
// built from (the Array index has three sub-tree flavors).
type Flavor int

const (
	ArrayData Flavor = iota
	ArrayNullData
	ArrayNullArray
	BTreeFlavor
	BitmapFlavor
)

func (f Flavor) String() string {
	switch f {
	case ArrayData:
		return "Array.Data"
	case ArrayNullData:
		return "Array.NullData"
	case ArrayNullArray:
		return "Array.NullArray"
	case BTreeFlavor:
		return "B-tree"
	case BitmapFlavor:
		return "Bitmap"
	default:
		return fmt.Sprintf("Flavor(%d)", int(f))
	}
}

// ChildPIDSpec is the field.Spec used to encode a node entry's trailing
// child-page-id slot: an unsigned 32-bit word, matching the pager's PageID
// representation without this package importing the pager.
var ChildPIDSpec = field.Spec{Kind: field.UInt32}

// HeaderWordSize is the width of the optional delete-flag/null-bitmap
// header word prefixing a B-tree entry.
const HeaderWordSize = 4

// MaxBitmapFields is the largest number of leading fields a null-bitmap
// header can track (one bit per field, packed into the header word).
const MaxBitmapFields = 8

// Schema describes one flavor's leaf/node field layout.
type Schema struct {
	Flavor Flavor
	// LeafFields holds every field dumped into a leaf entry, in order.
	LeafFields []field.Spec
	// NodeKeyFields is the number of leading LeafFields that also form a
	// node entry's key prefix: the full leaf field list for the Array and
	// B-tree flavors, only the key field for the Bitmap flavor (§4.3's
	// table).
	NodeKeyFields int
	// HasHeader is true only for the B-tree flavor's optional header.
	HasHeader bool
	// BitmapFields is the number of leading LeafFields eligible for the
	// null-bitmap (<= MaxBitmapFields); 0 when HasHeader is false.
	BitmapFields int
	// UniqueKeyFields is the number of leading LeafFields that make up the
	// user-declared key a unique index enforces distinctness over,
	// excluding any trailing rowid/tie-breaker field. Zero means the
	// flavor has no such constraint of its own (Array and Bitmap leaves
	// are already naturally distinct by rowid).
	UniqueKeyFields int
	// TopNull is the B-tree flavor's null-ordering trait (file-id key
	// TopNull, §6): true sorts null keys before every non-null key, false
	// sorts them after. Consumed by internal/indexfile's search cursor to
	// decide whether a NULL-equality scan can stop once it passes the
	// contiguous run of null keys.
	TopNull bool
}

// NewArrayDataSchema builds the Array.Data sub-tree schema: (key, rowid,
// array_index), no header.
func NewArrayDataSchema(key field.Spec, rowid field.Spec, arrayIndex field.Spec) Schema {
	return Schema{
		Flavor:        ArrayData,
		LeafFields:    []field.Spec{key, rowid, arrayIndex},
		NodeKeyFields: 3,
	}
}

// NewArrayNullDataSchema builds the Array.NullData sub-tree schema: (rowid,
// array_index), no header.
func NewArrayNullDataSchema(rowid, arrayIndex field.Spec) Schema {
	return Schema{
		Flavor:        ArrayNullData,
		LeafFields:    []field.Spec{rowid, arrayIndex},
		NodeKeyFields: 2,
	}
}

// NewArrayNullArraySchema builds the Array.NullArray sub-tree schema:
// (rowid), no header.
func NewArrayNullArraySchema(rowid field.Spec) Schema {
	return Schema{
		Flavor:        ArrayNullArray,
		LeafFields:    []field.Spec{rowid},
		NodeKeyFields: 1,
	}
}

// NewBTreeSchema builds a multi-column B-tree schema: (k1...kn, rowid),
// with an optional one-word header carrying a null-bitmap over the first
// min(len(keys)+1, MaxBitmapFields) leaf fields (the keys, then rowid).
func NewBTreeSchema(keys []field.Spec, rowid field.Spec, withHeader bool, topNull bool) Schema {
	fields := append(append([]field.Spec(nil), keys...), rowid)
	bitmapFields := 0
	if withHeader {
		bitmapFields = len(fields)
		if bitmapFields > MaxBitmapFields {
			bitmapFields = MaxBitmapFields
		}
	}
	return Schema{
		Flavor:          BTreeFlavor,
		LeafFields:      fields,
		NodeKeyFields:   len(fields),
		HasHeader:       withHeader,
		BitmapFields:    bitmapFields,
		UniqueKeyFields: len(keys),
		TopNull:         topNull,
	}
}

// NewBitmapSchema builds the Bitmap flavor's leaf schema: (key, chain_pid);
// node entries use just the key as their prefix.
func NewBitmapSchema(key field.Spec) Schema {
	return Schema{
		Flavor:        BitmapFlavor,
		LeafFields:    []field.Spec{key, ChildPIDSpec},
		NodeKeyFields: 1,
	}
}

// Header is the decoded form of a B-tree entry's optional header word.
type Header struct {
	Deleted  bool
	NullBits uint8 // bit i set means LeafFields[i] is NULL and absent from the payload
}

func encodeHeader(h Header) [HeaderWordSize]byte {
	var word uint32
	if h.Deleted {
		word |= 1
	}
	word |= uint32(h.NullBits) << 1
	var buf [HeaderWordSize]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	return buf
}

func decodeHeader(buf []byte) Header {
	word := binary.LittleEndian.Uint32(buf[:HeaderWordSize])
	return Header{
		Deleted:  word&1 != 0,
		NullBits: uint8((word >> 1) & 0xff),
	}
}

// IsNull reports whether the i-th leaf field is absent under h.
func (h Header) IsNull(i int) bool {
	if i >= MaxBitmapFields {
		return false
	}
	return h.NullBits&(1<<uint(i)) != 0
}

// WithNull returns a copy of h with the i-th field's null bit set or cleared.
func (h Header) WithNull(i int, null bool) Header {
	if i >= MaxBitmapFields {
		return h
	}
	if null {
		h.NullBits |= 1 << uint(i)
	} else {
		h.NullBits &^= 1 << uint(i)
	}
	return h
}

// PackLeaf dumps values (len(values) == len(schema.LeafFields)) into a
// packed leaf entry, consulting header for which fields to omit when the
// schema carries a null-bitmap header. A nil value at a bitmap-tracked
// position is equivalent to passing header.IsNull(i) == true for that
// field.
func PackLeaf(schema Schema, header Header, values []any) ([]byte, error) {
	if len(values) != len(schema.LeafFields) {
		return nil, fmt.Errorf("entry: %s expects %d fields, got %d", schema.Flavor, len(schema.LeafFields), len(values))
	}
	var out []byte
	if schema.HasHeader {
		for i := 0; i < schema.BitmapFields && i < len(values); i++ {
			if values[i] == nil {
				header = header.WithNull(i, true)
			}
		}
		hdrBytes := encodeHeader(header)
		out = append(out, hdrBytes[:]...)
	}
	for i, spec := range schema.LeafFields {
		if schema.HasHeader && i < schema.BitmapFields && header.IsNull(i) {
			continue
		}
		if values[i] == nil {
			return nil, fmt.Errorf("entry: field %d: %w", i, ErrNullabilityViolation)
		}
		words, err := field.SizeFromValue(spec, values[i])
		if err != nil {
			return nil, fmt.Errorf("entry: field %d: %w", i, err)
		}
		buf := make([]byte, words*field.WordSize)
		if _, err := field.Dump(spec, values[i], buf); err != nil {
			return nil, fmt.Errorf("entry: field %d: %w", i, err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// PackFields dumps values against specs with no header and no null
// handling — the packer a search probe key uses to encode a leading
// prefix of a schema's key fields (fewer than the full leaf, and never
// nullable, since a probe key only ever targets live comparison bytes).
func PackFields(specs []field.Spec, values []any) ([]byte, error) {
	if len(values) != len(specs) {
		return nil, fmt.Errorf("entry: expected %d field values, got %d", len(specs), len(values))
	}
	var out []byte
	for i, spec := range specs {
		words, err := field.SizeFromValue(spec, values[i])
		if err != nil {
			return nil, fmt.Errorf("entry: field %d: %w", i, err)
		}
		buf := make([]byte, words*field.WordSize)
		if _, err := field.Dump(spec, values[i], buf); err != nil {
			return nil, fmt.Errorf("entry: field %d: %w", i, err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// UnpackLeaf reverses PackLeaf, returning the decoded header (zero value
// when schema.HasHeader is false), the field values (nil for bitmap-absent
// fields), and the number of bytes consumed.
func UnpackLeaf(schema Schema, buf []byte) (Header, []any, int, error) {
	off := 0
	var header Header
	if schema.HasHeader {
		if len(buf) < HeaderWordSize {
			return Header{}, nil, 0, fmt.Errorf("entry: header truncated")
		}
		header = decodeHeader(buf)
		off += HeaderWordSize
	}
	values := make([]any, len(schema.LeafFields))
	for i, spec := range schema.LeafFields {
		if schema.HasHeader && i < schema.BitmapFields && header.IsNull(i) {
			values[i] = nil
			continue
		}
		v, n, err := field.Load(spec, buf[off:])
		if err != nil {
			return Header{}, nil, 0, fmt.Errorf("entry: field %d: %w", i, err)
		}
		values[i] = v
		off += n
	}
	return header, values, off, nil
}

// Size returns the exact byte length of the entry encoded at the start of
// buf, without fully decoding it (used by the page object to advance its
// entry-pointer vector).
func Size(schema Schema, buf []byte) (int, error) {
	off := 0
	if schema.HasHeader {
		if len(buf) < HeaderWordSize {
			return 0, fmt.Errorf("entry: header truncated")
		}
		header := decodeHeader(buf)
		off += HeaderWordSize
		for i, spec := range schema.LeafFields {
			if i < schema.BitmapFields && header.IsNull(i) {
				continue
			}
			words, err := field.SizeFromBuffer(spec, buf[off:])
			if err != nil {
				return 0, err
			}
			off += words * field.WordSize
		}
		return off, nil
	}
	for _, spec := range schema.LeafFields {
		words, err := field.SizeFromBuffer(spec, buf[off:])
		if err != nil {
			return 0, err
		}
		off += words * field.WordSize
	}
	return off, nil
}

// KeyPrefixLen returns the byte length of the node-key prefix (the first
// schema.NodeKeyFields fields) within a leaf-shaped entry buf, skipping any
// header the same way Size does.
func KeyPrefixLen(schema Schema, buf []byte) (int, error) {
	off := 0
	var header Header
	if schema.HasHeader {
		if len(buf) < HeaderWordSize {
			return 0, fmt.Errorf("entry: header truncated")
		}
		header = decodeHeader(buf)
		off += HeaderWordSize
	}
	for i := 0; i < schema.NodeKeyFields; i++ {
		spec := schema.LeafFields[i]
		if schema.HasHeader && i < schema.BitmapFields && header.IsNull(i) {
			continue
		}
		words, err := field.SizeFromBuffer(spec, buf[off:])
		if err != nil {
			return 0, err
		}
		off += words * field.WordSize
	}
	return off, nil
}

// LeafKeyBytes returns just the field bytes of the node-key prefix within a
// leaf-shaped entry buf — KeyPrefixLen minus any header bytes it counted —
// suitable for comparison against another entry's LeafKeyBytes or a raw
// probe key packed from the same key-field vector.
func LeafKeyBytes(schema Schema, buf []byte) ([]byte, error) {
	full, err := KeyPrefixLen(schema, buf)
	if err != nil {
		return nil, err
	}
	start := 0
	if schema.HasHeader {
		start = HeaderWordSize
	}
	return buf[start:full], nil
}

// FieldPrefixBytes returns the field bytes of the first nFields of a
// leaf-shaped entry buf, header stripped — the generalization of
// LeafKeyBytes used to compare just a declared unique-key prefix narrower
// than the full node-key prefix.
func FieldPrefixBytes(schema Schema, buf []byte, nFields int) ([]byte, error) {
	off := 0
	var header Header
	if schema.HasHeader {
		if len(buf) < HeaderWordSize {
			return nil, fmt.Errorf("entry: header truncated")
		}
		header = decodeHeader(buf)
		off += HeaderWordSize
	}
	start := off
	for i := 0; i < nFields; i++ {
		spec := schema.LeafFields[i]
		if schema.HasHeader && i < schema.BitmapFields && header.IsNull(i) {
			continue
		}
		words, err := field.SizeFromBuffer(spec, buf[off:])
		if err != nil {
			return nil, err
		}
		off += words * field.WordSize
	}
	return buf[start:off], nil
}

// FieldBytes returns the dumped bytes of just the i-th leaf field within
// buf, and whether the schema's null-bitmap header marks it absent (in
// which case the returned byte slice is empty). This is the granularity
// the condition compiler's executable Cond operates at: one field's bytes
// at a time, not a whole entry or a whole key prefix.
func FieldBytes(schema Schema, buf []byte, i int) (fieldBuf []byte, isNull bool, err error) {
	off := 0
	var header Header
	if schema.HasHeader {
		if len(buf) < HeaderWordSize {
			return nil, false, fmt.Errorf("entry: header truncated")
		}
		header = decodeHeader(buf)
		off += HeaderWordSize
	}
	for j := 0; j < i; j++ {
		spec := schema.LeafFields[j]
		if schema.HasHeader && j < schema.BitmapFields && header.IsNull(j) {
			continue
		}
		words, err := field.SizeFromBuffer(spec, buf[off:])
		if err != nil {
			return nil, false, err
		}
		off += words * field.WordSize
	}
	if schema.HasHeader && i < schema.BitmapFields && header.IsNull(i) {
		return nil, true, nil
	}
	words, err := field.SizeFromBuffer(schema.LeafFields[i], buf[off:])
	if err != nil {
		return nil, false, err
	}
	return buf[off : off+words*field.WordSize], false, nil
}

// IsDeleted reports the delete flag of a B-tree entry carrying a header; it
// is always false for headerless flavors, which represent deletion by
// physical removal instead of a tombstone bit.
func IsDeleted(schema Schema, buf []byte) bool {
	if !schema.HasHeader || len(buf) < HeaderWordSize {
		return false
	}
	return decodeHeader(buf).Deleted
}

// MakeNodeEntry builds a node entry from a leaf (or another node) entry's
// key prefix plus the child page id the node entry should route to.
func MakeNodeEntry(schema Schema, leafOrNodeEntry []byte, childPID uint32) ([]byte, error) {
	prefixLen, err := KeyPrefixLen(schema, leafOrNodeEntry)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), leafOrNodeEntry[:prefixLen]...)
	pidBuf := make([]byte, field.WordSize)
	if _, err := field.Dump(ChildPIDSpec, childPID, pidBuf); err != nil {
		return nil, err
	}
	return append(out, pidBuf...), nil
}

// MakeNodeEntryFromKey builds a node entry directly from raw key-prefix
// bytes (as returned by LeafKeyBytes or NodeEntryKeyBytes) plus the child
// page id to route to — the form used when a page split or merge computes
// a new separator key without an existing leaf entry at hand.
func MakeNodeEntryFromKey(keyBytes []byte, childPID uint32) ([]byte, error) {
	out := append([]byte(nil), keyBytes...)
	pidBuf := make([]byte, field.WordSize)
	if _, err := field.Dump(ChildPIDSpec, childPID, pidBuf); err != nil {
		return nil, err
	}
	return append(out, pidBuf...), nil
}

// GetPageID extracts the trailing child_pid field from a node entry.
func GetPageID(nodeEntry []byte) (uint32, error) {
	if len(nodeEntry) < field.WordSize {
		return 0, fmt.Errorf("entry: node entry too short for child_pid")
	}
	v, _, err := field.Load(ChildPIDSpec, nodeEntry[len(nodeEntry)-field.WordSize:])
	if err != nil {
		return 0, err
	}
	return v.(uint32), nil
}

// NodeEntryKeyBytes returns just the key-prefix portion of a node entry
// (everything but the trailing child_pid word), for use as a comparator
// operand against another node or leaf entry's key prefix.
func NodeEntryKeyBytes(nodeEntry []byte) []byte {
	if len(nodeEntry) < field.WordSize {
		return nodeEntry
	}
	return nodeEntry[:len(nodeEntry)-field.WordSize]
}
