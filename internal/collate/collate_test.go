package collate

import (
	"testing"

	"github.com/ngina/bplusindex/internal/field"
)

func packEntry(t *testing.T, specs []field.Spec, values []any) []byte {
	t.Helper()
	var out []byte
	for i, spec := range specs {
		words, err := field.SizeFromValue(spec, values[i])
		if err != nil {
			t.Fatalf("SizeFromValue: %v", err)
		}
		buf := make([]byte, words*field.WordSize)
		if _, err := field.Dump(spec, values[i], buf); err != nil {
			t.Fatalf("Dump: %v", err)
		}
		out = append(out, buf...)
	}
	return out
}

func TestComparatorOrdersByFirstField(t *testing.T) {
	specs := []field.Spec{{Kind: field.Int32}, {Kind: field.Int32}}
	c := New(specs, false)
	a := packEntry(t, specs, []any{int32(1), int32(99)})
	b := packEntry(t, specs, []any{int32(2), int32(0)})
	cmp, err := c.Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if cmp >= 0 {
		t.Fatalf("expected a < b, got %d", cmp)
	}
}

func TestComparatorPrefixIgnoresTrailingField(t *testing.T) {
	specs := []field.Spec{{Kind: field.Int32}, {Kind: field.Int32}}
	c := New(specs, false)
	a := packEntry(t, specs, []any{int32(5), int32(1)})
	b := packEntry(t, specs, []any{int32(5), int32(2)})
	cmp, err := c.ComparePrefix(a, b, 1)
	if err != nil {
		t.Fatal(err)
	}
	if cmp != 0 {
		t.Fatalf("expected prefix equality, got %d", cmp)
	}
}

func TestUpperBoundCompareUniqueTreatsEqualAsLess(t *testing.T) {
	specs := []field.Spec{{Kind: field.Int32}}
	c := New(specs, true)
	a := packEntry(t, specs, []any{int32(5)})
	b := packEntry(t, specs, []any{int32(5)})
	cmp, err := c.UpperBoundCompare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if cmp != -1 {
		t.Fatalf("expected unique upper-bound supremum rule to yield -1, got %d", cmp)
	}
}
