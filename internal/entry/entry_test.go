package entry

import (
	"errors"
	"testing"

	"github.com/ngina/bplusindex/internal/field"
)

func TestArrayDataRoundTrip(t *testing.T) {
	schema := NewArrayDataSchema(field.Spec{Kind: field.Int32}, field.Spec{Kind: field.UInt32}, field.Spec{Kind: field.UInt32})
	buf, err := PackLeaf(schema, Header{}, []any{int32(42), uint32(7), uint32(2)})
	if err != nil {
		t.Fatal(err)
	}
	n, err := Size(schema, buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("Size = %d, want %d", n, len(buf))
	}
	_, values, consumed, err := UnpackLeaf(schema, buf)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d, want %d", consumed, len(buf))
	}
	if values[0].(int32) != 42 || values[1].(uint32) != 7 || values[2].(uint32) != 2 {
		t.Fatalf("got %v", values)
	}
}

func TestBTreeHeaderNullBitmap(t *testing.T) {
	keys := []field.Spec{{Kind: field.Int32}, {Kind: field.Int32}}
	rowid := field.Spec{Kind: field.UInt32}
	schema := NewBTreeSchema(keys, rowid, true, false)

	buf, err := PackLeaf(schema, Header{}, []any{int32(1), nil, uint32(9)})
	if err != nil {
		t.Fatal(err)
	}
	header, values, consumed, err := UnpackLeaf(schema, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !header.IsNull(1) {
		t.Fatal("expected field 1 to be marked null")
	}
	if values[0].(int32) != 1 || values[1] != nil || values[2].(uint32) != 9 {
		t.Fatalf("got %v", values)
	}
	if consumed != len(buf) {
		t.Fatalf("consumed %d, want %d", consumed, len(buf))
	}
}

func TestDeleteFlag(t *testing.T) {
	keys := []field.Spec{{Kind: field.Int32}}
	rowid := field.Spec{Kind: field.UInt32}
	schema := NewBTreeSchema(keys, rowid, true, false)
	buf, err := PackLeaf(schema, Header{Deleted: true}, []any{int32(5), uint32(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !IsDeleted(schema, buf) {
		t.Fatal("expected delete flag set")
	}
}

func TestNodeEntryRoundTrip(t *testing.T) {
	schema := NewBTreeSchema([]field.Spec{{Kind: field.Int32}}, field.Spec{Kind: field.UInt32}, false, false)
	leaf, err := PackLeaf(schema, Header{}, []any{int32(10), uint32(1)})
	if err != nil {
		t.Fatal(err)
	}
	node, err := MakeNodeEntry(schema, leaf, 77)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := GetPageID(node)
	if err != nil {
		t.Fatal(err)
	}
	if pid != 77 {
		t.Fatalf("got pid %d, want 77", pid)
	}
}

func TestPackLeafRejectsNullWithoutHeader(t *testing.T) {
	schema := NewBTreeSchema([]field.Spec{{Kind: field.Int32}}, field.Spec{Kind: field.UInt32}, false, false)
	_, err := PackLeaf(schema, Header{}, []any{nil, uint32(1)})
	if !errors.Is(err, ErrNullabilityViolation) {
		t.Fatalf("PackLeaf error = %v, want ErrNullabilityViolation", err)
	}
}

func TestPackLeafRejectsNullOutsideBitmapRange(t *testing.T) {
	keys := make([]field.Spec, 9)
	for i := range keys {
		keys[i] = field.Spec{Kind: field.Int32}
	}
	rowid := field.Spec{Kind: field.UInt32}
	schema := NewBTreeSchema(keys, rowid, true, false)
	values := make([]any, 10)
	for i := range values[:9] {
		values[i] = int32(i)
	}
	values[9] = uint32(1)
	// Field 8 is the ninth key field, past MaxBitmapFields (8): it cannot
	// carry a null even though the schema has a header.
	values[8] = nil
	_, err := PackLeaf(schema, Header{}, values)
	if !errors.Is(err, ErrNullabilityViolation) {
		t.Fatalf("PackLeaf error = %v, want ErrNullabilityViolation", err)
	}
}

func TestBitmapSchema(t *testing.T) {
	schema := NewBitmapSchema(field.Spec{Kind: field.Int32})
	buf, err := PackLeaf(schema, Header{}, []any{int32(3), uint32(200)})
	if err != nil {
		t.Fatal(err)
	}
	_, values, _, err := UnpackLeaf(schema, buf)
	if err != nil {
		t.Fatal(err)
	}
	if values[0].(int32) != 3 || values[1].(uint32) != 200 {
		t.Fatalf("got %v", values)
	}
}
