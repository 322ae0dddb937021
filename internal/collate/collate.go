// Package collate implements the entry comparator (C2): an ordered
// field-type vector turned into a byte-level comparison function over
// packed entry dumps, plus the LIKE pattern matcher the condition compiler
// uses to translate a LIKE predicate into a range scan.
package collate

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/field"
)

// Comparator orders two packed entries field by field, returning the first
// non-equal per-field result. The unique flag only affects upper-bound
// search behavior (see UpperBoundCompare); Compare itself is unaffected.
type Comparator struct {
	Fields []field.Spec
	Unique bool
}

// New constructs a comparator for the given field-type vector.
func New(fields []field.Spec, unique bool) *Comparator {
	return &Comparator{Fields: append([]field.Spec(nil), fields...), Unique: unique}
}

// fieldBytes returns the byte span of the n-th field within buf, starting
// at byte offset off.
func fieldBytes(spec field.Spec, buf []byte, off int) ([]byte, int, error) {
	words, err := field.SizeFromBuffer(spec, buf[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("collate: field size probe: %w", err)
	}
	n := words * field.WordSize
	if off+n > len(buf) {
		return nil, 0, fmt.Errorf("collate: entry truncated at field boundary")
	}
	return buf[off : off+n], n, nil
}

// Compare walks c.Fields in order over two packed entries and returns the
// first non-equal per-field comparison, or 0 if every field is equal.
func (c *Comparator) Compare(a, b []byte) (int, error) {
	offA, offB := 0, 0
	for _, spec := range c.Fields {
		fa, na, err := fieldBytes(spec, a, offA)
		if err != nil {
			return 0, err
		}
		fb, nb, err := fieldBytes(spec, b, offB)
		if err != nil {
			return 0, err
		}
		cmp, err := field.Compare(spec, fa, fb)
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
		offA += na
		offB += nb
	}
	return 0, nil
}

// ComparePrefix compares only the leading n fields of c.Fields — the
// key-only comparator variant used for fetch estimation and non-unique
// lookup, where trailing disambiguating fields (rowid, array_index) should
// not participate in the ordering decision.
func (c *Comparator) ComparePrefix(a, b []byte, n int) (int, error) {
	if n > len(c.Fields) {
		n = len(c.Fields)
	}
	offA, offB := 0, 0
	for i := 0; i < n; i++ {
		spec := c.Fields[i]
		fa, na, err := fieldBytes(spec, a, offA)
		if err != nil {
			return 0, err
		}
		fb, nb, err := fieldBytes(spec, b, offB)
		if err != nil {
			return 0, err
		}
		cmp, err := field.Compare(spec, fa, fb)
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
		offA += na
		offB += nb
	}
	return 0, nil
}

// ComparePartial compares a full key against a probe that may encode only
// a leading subset of c.Fields — the shape a single leading-column search
// condition produces (§4.6/§4.7: a compiled Cond carries one field's
// bytes, not a whole composite node key). Once probe is exhausted, every
// remaining field of full is treated as matching: a full key "ties" a
// probe that only constrains its leading fields. A probe covering every
// field behaves exactly like Compare.
func (c *Comparator) ComparePartial(full, probe []byte) (int, error) {
	offFull, offProbe := 0, 0
	for _, spec := range c.Fields {
		if offProbe >= len(probe) {
			return 0, nil
		}
		ff, nf, err := fieldBytes(spec, full, offFull)
		if err != nil {
			return 0, err
		}
		fp, np, err := fieldBytes(spec, probe, offProbe)
		if err != nil {
			return 0, err
		}
		cmp, err := field.Compare(spec, ff, fp)
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
		offFull += nf
		offProbe += np
	}
	return 0, nil
}

// UpperBoundComparePartial is ComparePartial plus the unique tie-break rule
// UpperBoundCompare applies — the partial-probe counterpart Page.UpperBound
// needs when probe encodes fewer fields than c.Fields.
func (c *Comparator) UpperBoundComparePartial(full, probe []byte) (int, error) {
	cmp, err := c.ComparePartial(full, probe)
	if err != nil {
		return 0, err
	}
	if c.Unique && cmp == 0 {
		return -1, nil
	}
	return cmp, nil
}

// UpperBoundCompare is used by a unique-keyed node's upper-bound search: an
// entry equal to the search key must still be treated as strictly less,
// since a unique index never needs to descend past its one matching child.
// Non-unique comparators fall back to plain Compare.
func (c *Comparator) UpperBoundCompare(a, b []byte) (int, error) {
	cmp, err := c.Compare(a, b)
	if err != nil {
		return 0, err
	}
	if c.Unique && cmp == 0 {
		return -1, nil
	}
	return cmp, nil
}
