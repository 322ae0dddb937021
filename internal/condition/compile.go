package condition

import (
	"fmt"
	"math/big"

	"github.com/ngina/bplusindex/internal/field"
	"github.com/ngina/bplusindex/internal/predicate"
)

// Compile translates a predicate tree restricted to a single field (the
// shape C8's per-column negotiation hands to C7) into the packed
// open-option grammar string of §4.7: '%' tree-type '(' cond cond cond* ')'.
//
// Only the predicate shapes a single scalar field's search parameter can
// carry are accepted here: Equals/NotEquals/GreaterThan[Equals]/
// LessThan[Equals]/Like/EqualsToNull/NotNull/Between, and And nodes
// combining two range legs on that same field (the compiled form of
// Between after a planner has already split it, or a hand-built
// `x > lo AND x < hi`). Or is not supported by this compiler: the file
// driver's per-field condition slot has no way to express "satisfies
// condition set A, or set B" within a single descend, so a planner must
// split a disjunction into separate scans upstream of C7.
func Compile(pred *predicate.Node, spec field.Spec, treeType string) (string, error) {
	return CompileVersioned(pred, spec, treeType, strictVersion)
}

// strictVersion is the persisted schema Version at and above which
// LegacyPadTruncation no longer applies (§9 REDESIGN FLAGS).
const strictVersion = 4

// LegacyPadTruncation reports whether the v3→v4 NO-PAD/PAD-SPACE
// backward-compatibility behavior applies for a persisted schema Version
// (file-id key `Version`, §6): versions before 4 skip the stricter NO-PAD
// other-condition re-filter a PAD-SPACE column's Equals/Greater/Less
// comparisons otherwise add, matching the original engine's looser
// trailing-space handling; Version 4 and later always get strict
// semantics.
func LegacyPadTruncation(version int) bool {
	return version < strictVersion
}

// CompileVersioned is Compile with the persisted schema Version threaded
// through, so a PAD-SPACE field's rewrite rules can honor
// LegacyPadTruncation instead of always compiling the strict form.
func CompileVersioned(pred *predicate.Node, spec field.Spec, treeType string, version int) (string, error) {
	lower, upper, other, err := translate(pred, spec, version)
	if err != nil {
		return "", err
	}
	s := "%" + treeType + "("
	s += encodeCond(lower)
	s += encodeCond(upper)
	for _, c := range other {
		s += encodeCond(c)
	}
	s += ")"
	return s, nil
}

// translate walks pred and produces the lower bound, upper bound, and any
// additional filter conditions a single field's search parameter compiles
// to.
func translate(pred *predicate.Node, spec field.Spec, version int) (lower, upper Cond, other []Cond, err error) {
	if pred == nil {
		return Cond{Op: OpUndefined}, Cond{Op: OpUndefined}, nil, nil
	}

	switch pred.Kind {
	case predicate.And:
		ll, lu, lo, err := translate(pred.Left, spec, version)
		if err != nil {
			return Cond{}, Cond{}, nil, err
		}
		rl, ru, ro, err := translate(pred.Right, spec, version)
		if err != nil {
			return Cond{}, Cond{}, nil, err
		}
		lower = tighterLower(ll, rl)
		upper = tighterUpper(lu, ru)
		other = append(append(other, lo...), ro...)
		return lower, upper, other, nil

	case predicate.Or:
		return Cond{}, Cond{}, nil, fmt.Errorf("condition: Or is not supported by this compiler, split into separate scans upstream")

	case predicate.Between:
		loNode := &predicate.Node{Kind: predicate.GreaterThanEquals, FieldIndex: pred.FieldIndex, Value: pred.Value}
		hiNode := &predicate.Node{Kind: predicate.LessThanEquals, FieldIndex: pred.FieldIndex, Value: pred.Hi}
		return translate(predicate.Conjunction(loNode, hiNode), spec, version)

	case predicate.EqualsToNull:
		c := Cond{Op: OpEquals, Spec: spec, IsNull: true}
		return c, Cond{Op: OpUndefined}, nil, nil

	case predicate.NotNull:
		return Cond{Op: OpUndefined}, Cond{Op: OpUndefined}, []Cond{{Op: OpNotEquals, Spec: spec, IsNull: true}}, nil

	case predicate.Like:
		pattern, ok := pred.Value.(string)
		if !ok {
			return Cond{}, Cond{}, nil, fmt.Errorf("condition: Like predicate value must be a string")
		}
		c := Cond{
			Op:         OpLike,
			Spec:       spec,
			Pattern:    remapLikeEscape(pattern, pred.Escape),
			EscapeChar: canonicalLikeEscape,
		}
		return Cond{Op: OpUndefined}, Cond{Op: OpUndefined}, []Cond{c}, nil

	case predicate.Equals, predicate.NotEquals, predicate.GreaterThan, predicate.GreaterThanEquals,
		predicate.LessThan, predicate.LessThanEquals:
		return translateComparison(pred, spec, version)

	default:
		return Cond{}, Cond{}, nil, fmt.Errorf("condition: unsupported predicate kind %v", pred.Kind)
	}
}

func translateComparison(pred *predicate.Node, spec field.Spec, version int) (lower, upper Cond, other []Cond, err error) {
	op, value, unknown, err := coerce(spec, pred.Kind, pred.Value)
	if err != nil {
		return Cond{}, Cond{}, nil, err
	}
	if unknown {
		return Cond{Op: OpUnknown}, Cond{Op: OpUnknown}, nil, nil
	}

	words, err := field.SizeFromValue(spec, value)
	if err != nil {
		return Cond{}, Cond{}, nil, err
	}
	buf := make([]byte, words*field.WordSize)
	n, err := field.Dump(spec, value, buf)
	if err != nil {
		return Cond{}, Cond{}, nil, err
	}
	buf = buf[:n]

	if spec.Kind == field.DecimalKind && pred.Kind == predicate.NotEquals {
		// RoundDecimal widened != to ">= min"; re-filter the exact operand
		// when the column can hold it (otherwise != holds for every row).
		if r, ok := asRat(pred.Value); ok {
			if exact, _ := field.RoundDecimal(spec, r, field.OpEquals); exact.Cmp(r) == 0 {
				if w, err := field.SizeFromValue(spec, exact); err == nil {
					ne := make([]byte, w*field.WordSize)
					if n, err := field.Dump(spec, exact, ne); err == nil {
						other = append(other, Cond{Op: OpNotEquals, Spec: spec, Buffer: ne[:n]})
					}
				}
			}
		}
	}

	noPadSpec := spec
	noPadSpec.Collation = field.NoPad
	padSpec := spec
	padSpec.Collation = field.PadSpace

	isString := spec.Kind == field.StringKind
	padSpaceField := isString && spec.EffectiveCollation() == field.PadSpace
	// Legacy (pre-v4) schemas never added the stricter NO-PAD re-filter a
	// PAD-SPACE column's comparisons otherwise get; the PAD-SPACE bound
	// alone decided the match, which is what let two values differing
	// only in trailing whitespace compare equal under the old engine
	// (§9 REDESIGN FLAGS, SPEC_FULL.md Section D).
	strictNoPad := padSpaceField && !LegacyPadTruncation(version)

	switch op {
	case OpEquals:
		// PAD-SPACE equality still positions descent using the PAD-SPACE
		// comparator (so a value differing only by trailing spaces is
		// found); strict (non-legacy) schemas additionally re-filter NO-PAD
		// so two values differing only in trailing whitespace aren't
		// conflated once fetched (per §4.7's PAD-SPACE/NO-PAD split).
		lowerSpec, otherSpec := spec, spec
		if padSpaceField {
			lowerSpec = padSpec
			otherSpec = padSpec
			if strictNoPad {
				otherSpec = noPadSpec
			}
		}
		lower = Cond{Op: OpEquals, Spec: lowerSpec, Buffer: buf}
		upper = Cond{Op: OpEquals, Spec: lowerSpec, Buffer: buf}
		other = []Cond{{Op: OpEquals, Spec: otherSpec, Buffer: buf}}
		return lower, upper, other, nil

	case OpNotEquals:
		other = []Cond{{Op: OpNotEquals, Spec: spec, Buffer: buf}}
		return Cond{Op: OpUndefined}, Cond{Op: OpUndefined}, other, nil

	case OpGreaterThan, OpGreaterThanEquals:
		boundSpec := spec
		if padSpaceField {
			boundSpec = padSpec
		}
		lower = Cond{Op: op, Spec: boundSpec, Buffer: buf}
		if strictNoPad {
			other = []Cond{{Op: op, Spec: noPadSpec, Buffer: buf}}
		}
		return lower, Cond{Op: OpUndefined}, other, nil

	case OpLessThan, OpLessThanEquals:
		boundSpec := spec
		if padSpaceField {
			boundSpec = padSpec
		}
		upper = Cond{Op: op, Spec: boundSpec, Buffer: buf}
		if strictNoPad {
			other = []Cond{{Op: op, Spec: noPadSpec, Buffer: buf}}
		}
		return Cond{Op: OpUndefined}, upper, other, nil

	default:
		return Cond{}, Cond{}, nil, fmt.Errorf("condition: unexpected comparison op %v", op)
	}
}

// coerce applies the numeric-field rounding rules of §4.7: a float or
// out-of-range operand against an Int32/Int64/UInt32/Decimal column is
// rounded to the nearest representable bucket, with the operator rewritten
// to preserve the original semantics (`x > 3.5` on an Int32 column becomes
// `x >= 4`). unknown reports an Equals literal that rounds to no
// representable value at all — the condition can never match.
func coerce(spec field.Spec, kind predicate.Kind, value any) (op Op, coerced any, unknown bool, err error) {
	op = kindToOp(kind)

	switch spec.Kind {
	case field.Int32, field.Int64, field.UInt32:
		f, isFloat := asFloat(value)
		if !isFloat {
			return op, value, false, nil
		}
		bucket, adjusted, ok := field.Round(spec, f, opToMatchOp(op))
		if !ok {
			return op, nil, true, nil
		}
		return matchOpToOp(adjusted), bucket, false, nil

	case field.DecimalKind:
		r, isRat := asRat(value)
		if !isRat {
			return op, value, false, nil
		}
		rounded, adjusted := field.RoundDecimal(spec, r, opToMatchOp(op))
		return matchOpToOp(adjusted), rounded, false, nil

	default:
		return op, value, false, nil
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asRat(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case *big.Rat:
		return n, true
	case float64:
		return new(big.Rat).SetFloat64(n), true
	default:
		return nil, false
	}
}

func kindToOp(k predicate.Kind) Op {
	switch k {
	case predicate.Equals:
		return OpEquals
	case predicate.NotEquals:
		return OpNotEquals
	case predicate.GreaterThan:
		return OpGreaterThan
	case predicate.GreaterThanEquals:
		return OpGreaterThanEquals
	case predicate.LessThan:
		return OpLessThan
	case predicate.LessThanEquals:
		return OpLessThanEquals
	default:
		return OpUnknown
	}
}

func opToMatchOp(o Op) field.MatchOp {
	switch o {
	case OpEquals:
		return field.OpEquals
	case OpNotEquals:
		return field.OpNotEquals
	case OpGreaterThan:
		return field.OpGreater
	case OpGreaterThanEquals:
		return field.OpGreaterEquals
	case OpLessThan:
		return field.OpLess
	case OpLessThanEquals:
		return field.OpLessEquals
	default:
		return field.OpEquals
	}
}

func matchOpToOp(m field.MatchOp) Op {
	switch m {
	case field.OpEquals:
		return OpEquals
	case field.OpNotEquals:
		return OpNotEquals
	case field.OpGreater:
		return OpGreaterThan
	case field.OpGreaterEquals:
		return OpGreaterThanEquals
	case field.OpLess:
		return OpLessThan
	case field.OpLessEquals:
		return OpLessThanEquals
	default:
		return OpEquals
	}
}

// tighterLower/tighterUpper combine two bound conditions from an And's two
// legs into the single tighter bound a descend can use; a leg that didn't
// produce a bound (OpUndefined) never wins.
func tighterLower(a, b Cond) Cond {
	if a.Op == OpUndefined {
		return b
	}
	if b.Op == OpUndefined {
		return a
	}
	return tighterOf(a, b, 1)
}

func tighterUpper(a, b Cond) Cond {
	if a.Op == OpUndefined {
		return b
	}
	if b.Op == OpUndefined {
		return a
	}
	return tighterOf(a, b, -1)
}

// tighterOf picks, of two defined bounds, the one further along dir (+1
// for a lower bound, -1 for an upper bound); on equal values the strict
// operator wins.
func tighterOf(a, b Cond, dir int) Cond {
	if a.Op == OpUnknown || a.IsNull {
		return a
	}
	if b.Op == OpUnknown || b.IsNull {
		return b
	}
	cmp, err := field.Compare(a.Spec, a.Buffer, b.Buffer)
	if err == nil && (cmp*dir < 0 || (cmp == 0 && (b.Op == OpGreaterThan || b.Op == OpLessThan))) {
		return b
	}
	return a
}
