package condition

import (
	"fmt"

	"github.com/ngina/bplusindex/internal/collate"
	"github.com/ngina/bplusindex/internal/field"
)

// Cond is one executable condition slot: an operator, the field spec to
// compare under (carrying whichever collation this slot's PAD-SPACE
// rewrite rule calls for — see compile.go), the dumped buffer it compares
// against, and (for Like) the pattern/escape pair.
type Cond struct {
	Op         Op
	Spec       field.Spec
	Buffer     []byte
	IsNull     bool
	Pattern    string
	EscapeChar rune
}

// Satisfies evaluates this condition against a candidate field's raw
// dumped bytes. A field's null-ness isn't carried in its own dumped
// bytes — it's a bit in the entry's header (entry.Header.IsNull) — so
// Satisfies is only ever called with a field that actually has bytes;
// the caller is expected to resolve EqualsToNull/NotNull against the
// header directly for a field the header marks absent, without calling
// Satisfies at all. For an IsNull cond, the mere fact that Satisfies was
// called with real bytes already answers it: the field isn't null.
func (c Cond) Satisfies(candidate []byte) (bool, error) {
	if c.IsNull {
		return c.Op == OpNotEquals, nil
	}
	switch c.Op {
	case OpUndefined:
		return true, nil
	case OpUnknown:
		return false, nil
	case OpLike:
		v, _, err := field.Load(c.Spec, candidate)
		if err != nil {
			return false, err
		}
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("condition: LIKE applied to non-string field")
		}
		return collate.Like(s, c.Pattern, c.EscapeChar)
	default:
		cmp, err := field.Compare(c.Spec, candidate, c.Buffer)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case OpEquals:
			return cmp == 0, nil
		case OpNotEquals:
			return cmp != 0, nil
		case OpGreaterThan:
			return cmp > 0, nil
		case OpGreaterThanEquals:
			return cmp >= 0, nil
		case OpLessThan:
			return cmp < 0, nil
		case OpLessThanEquals:
			return cmp <= 0, nil
		default:
			return false, nil
		}
	}
}

// Plan is the parsed, executable form of one field's compiled condition:
// a lower bound, an upper bound, and zero or more other-conditions
// applied to every candidate entry within [lower, upper].
type Plan struct {
	TreeType string
	Lower    Cond
	Upper    Cond
	Other    []Cond
}

// LowerSatisfies/UpperSatisfies test a candidate against the plan's
// bound conditions; an OpUndefined bound always satisfies.
func (p *Plan) LowerSatisfies(candidate []byte) (bool, error) {
	return p.Lower.Satisfies(candidate)
}

func (p *Plan) UpperSatisfies(candidate []byte) (bool, error) {
	return p.Upper.Satisfies(candidate)
}

// OtherConditions tests every other-condition, short-circuiting false.
func (p *Plan) OtherConditions(candidate []byte) (bool, error) {
	for _, c := range p.Other {
		ok, err := c.Satisfies(candidate)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// IsUnknown reports whether the plan collapsed to an always-empty result
// (either bound explicitly Unknown).
func (p *Plan) IsUnknown() bool {
	return p.Lower.Op == OpUnknown || p.Upper.Op == OpUnknown
}
