// Package scalar holds the scalar-value helpers shared by the typed-field
// codec and the entry comparator: arbitrary-precision decimal arithmetic
// backing the Decimal field type, and the object-id representation backing
// the ObjectId field type.
package scalar

import (
	"fmt"
	"math/big"
)

// DecimalFromAny attempts to convert a value to *big.Rat.
func DecimalFromAny(v any) (*big.Rat, bool) {
	switch t := v.(type) {
	case *big.Rat:
		return t, true
	case big.Rat:
		return &t, true
	case string:
		r := new(big.Rat)
		if _, ok := r.SetString(t); ok {
			return r, true
		}
		return nil, false
	case int:
		return new(big.Rat).SetInt64(int64(t)), true
	case int64:
		return new(big.Rat).SetInt64(t), true
	case float64:
		r := new(big.Rat).SetFloat64(t)
		return r, true
	default:
		return nil, false
	}
}

// DecimalAdd returns the sum of two decimal-like values as *big.Rat.
func DecimalAdd(a, b any) (*big.Rat, error) {
	ra, ok := DecimalFromAny(a)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to decimal", a)
	}
	rb, ok := DecimalFromAny(b)
	if !ok {
		return nil, fmt.Errorf("cannot convert %T to decimal", b)
	}
	return new(big.Rat).Add(new(big.Rat).Set(ra), new(big.Rat).Set(rb)), nil
}

// DecimalToString returns a plain decimal string representation.
func DecimalToString(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.RatString()
}

// AsBigRat returns the value as *big.Rat if it is already a rational type
// (either *big.Rat or big.Rat). Unlike DecimalFromAny this does not coerce
// ints/floats/strings, which matters at the comparator boundary where an
// accidental string-to-number coercion would silently change ordering.
func AsBigRat(v any) (*big.Rat, bool) {
	switch t := v.(type) {
	case *big.Rat:
		return t, true
	case big.Rat:
		return &t, true
	default:
		return nil, false
	}
}

// DecimalRound rounds r to scale decimal places using round-half-away-from-zero,
// the rounding contract the typed-field codec applies when a value's native
// scale exceeds a Decimal(precision, scale) field's declared scale.
func DecimalRound(r *big.Rat, scale int) *big.Rat {
	if r == nil {
		return nil
	}
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow))
	num := scaled.Num()
	den := scaled.Denom()
	half := new(big.Int).Mul(den, big.NewInt(2))
	rem := new(big.Int)
	q, rem := new(big.Int).QuoRem(num, den, rem)
	rem2 := new(big.Int).Mul(rem, big.NewInt(2))
	rem2.Abs(rem2)
	if rem2.Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	_ = half
	result := new(big.Rat).SetFrac(q, pow)
	return result
}

// MaxDecimal returns the largest representable value of a Decimal(precision,
// scale) field: precision-scale nines before the point, scale nines after.
func MaxDecimal(precision, scale int) *big.Rat {
	digits := precision
	if digits <= 0 {
		digits = 1
	}
	nines := new(big.Int)
	ten := big.NewInt(10)
	pow := new(big.Int).Exp(ten, big.NewInt(int64(digits)), nil)
	nines.Sub(pow, big.NewInt(1))
	scalePow := new(big.Int).Exp(ten, big.NewInt(int64(scale)), nil)
	return new(big.Rat).SetFrac(nines, scalePow)
}

// MinDecimal returns the smallest (most negative) representable value of a
// Decimal(precision, scale) field.
func MinDecimal(precision, scale int) *big.Rat {
	max := MaxDecimal(precision, scale)
	return new(big.Rat).Neg(max)
}
