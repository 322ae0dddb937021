package field

import (
	"math"
	"math/big"

	"github.com/ngina/bplusindex/internal/scalar"
)

// MatchOp identifies the relational operator a rounded comparison value is
// paired with; Round may rewrite it when the literal comparison value falls
// between two representable buckets of the target type.
type MatchOp int

const (
	OpEquals MatchOp = iota
	OpNotEquals
	OpGreater
	OpGreaterEquals
	OpLess
	OpLessEquals
)

// Round converts an out-of-type-range or fractional comparison value into
// the nearest in-range integer bucket for Int32/Int64/UInt32 fields,
// together with the operator that preserves the original semantics (e.g.
// `x > 3.5` against an Int32 column becomes `x >= 4`). ok is false only for
// an Equals whose value is fractional or outside the type's range (Equals
// against it is then Unknown); every other operator returns ok=true with
// the bucket clamped into range.
func Round(spec Spec, v float64, op MatchOp) (bucket any, adjusted MatchOp, ok bool) {
	switch spec.Kind {
	case Int32:
		return roundInt(v, op, math.MinInt32, math.MaxInt32, func(i int64) any { return int32(i) })
	case Int64:
		return roundInt(v, op, math.MinInt64, math.MaxInt64, func(i int64) any { return i })
	case UInt32:
		return roundInt(v, op, 0, math.MaxUint32, func(i int64) any { return uint32(i) })
	default:
		return v, op, true
	}
}

func roundInt(v float64, op MatchOp, lo, hi int64, wrap func(int64) any) (any, MatchOp, bool) {
	floor := math.Floor(v)
	ceil := math.Ceil(v)
	isInt := floor == ceil
	switch op {
	case OpEquals:
		if !isInt {
			return nil, op, false
		}
		if v < float64(lo) || v > float64(hi) {
			return nil, op, false
		}
		return wrap(int64(v)), op, true
	case OpNotEquals:
		if !isInt {
			return wrap(clampInt(int64(floor), lo, hi)), op, true
		}
		return wrap(clampInt(int64(v), lo, hi)), op, true
	case OpGreater:
		// x > 3.5 against Int32 becomes x >= 4
		if !isInt {
			return wrap(clampInt(int64(ceil), lo, hi)), OpGreaterEquals, true
		}
		return wrap(clampInt(int64(v), lo, hi)), op, true
	case OpGreaterEquals:
		return wrap(clampInt(int64(ceil), lo, hi)), op, true
	case OpLess:
		if !isInt {
			return wrap(clampInt(int64(floor), lo, hi)), OpLessEquals, true
		}
		return wrap(clampInt(int64(v), lo, hi)), op, true
	case OpLessEquals:
		return wrap(clampInt(int64(floor), lo, hi)), op, true
	default:
		return wrap(clampInt(int64(v), lo, hi)), op, true
	}
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundDecimal clamps a decimal comparison operand to the column's (p, s)
// via Decimal::round. Per the documented source quirk, NotEquals rounding
// expands to `>= min`, which is over-broad but still correct; callers
// needing exact `!=` must apply it as a post-filter.
func RoundDecimal(spec Spec, r *big.Rat, op MatchOp) (*big.Rat, MatchOp) {
	rounded := scalar.DecimalRound(r, spec.Scale)
	max := scalar.MaxDecimal(spec.Precision, spec.Scale)
	min := scalar.MinDecimal(spec.Precision, spec.Scale)
	switch op {
	case OpNotEquals:
		return min, OpGreaterEquals
	default:
		if rounded.Cmp(max) > 0 {
			return max, op
		}
		if rounded.Cmp(min) < 0 {
			return min, op
		}
		return rounded, op
	}
}
