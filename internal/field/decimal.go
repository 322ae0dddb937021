package field

import (
	"fmt"
	"math/big"

	"github.com/ngina/bplusindex/internal/scalar"
)

// decimalByteLen computes the canonical dump length of v rounded to spec's
// scale: one sign byte plus the big-endian magnitude of the scaled mantissa.
func decimalByteLen(spec Spec, v any) (int, error) {
	r, err := decimalValue(spec, v)
	if err != nil {
		return 0, err
	}
	mag := decimalMagnitude(spec, r)
	return 1 + 1 + len(mag.Bytes()), nil // length byte + sign byte + magnitude
}

func decimalValue(spec Spec, v any) (*big.Rat, error) {
	r, ok := scalar.DecimalFromAny(v)
	if !ok {
		return nil, fmt.Errorf("field: cannot convert %T to decimal", v)
	}
	rounded := scalar.DecimalRound(r, spec.Scale)
	max := scalar.MaxDecimal(spec.Precision, spec.Scale)
	min := scalar.MinDecimal(spec.Precision, spec.Scale)
	if rounded.Cmp(max) > 0 || rounded.Cmp(min) < 0 {
		return nil, fmt.Errorf("field: decimal value out of range for decimal(%d,%d)", spec.Precision, spec.Scale)
	}
	return rounded, nil
}

func decimalMagnitude(spec Spec, r *big.Rat) *big.Int {
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(spec.Scale)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(pow))
	mantissa := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return new(big.Int).Abs(mantissa)
}

func dumpDecimal(spec Spec, v any, buf []byte) (int, error) {
	r, err := decimalValue(spec, v)
	if err != nil {
		return 0, err
	}
	mag := decimalMagnitude(spec, r)
	magBytes := mag.Bytes()
	total := 1 + 1 + len(magBytes)
	if len(buf) < padWords(total) {
		return 0, fmt.Errorf("field: buffer too small for decimal")
	}
	buf[0] = byte(1 + len(magBytes))
	if r.Sign() < 0 {
		buf[1] = 0x00
	} else {
		buf[1] = 0x01
	}
	copy(buf[2:], magBytes)
	clearPad(buf, total)
	return padWords(total), nil
}

func loadDecimal(spec Spec, buf []byte) (any, int, error) {
	if len(buf) < 1 {
		return nil, 0, fmt.Errorf("field: decimal length byte truncated")
	}
	payload := int(buf[0])
	total := 1 + payload
	if len(buf) < total {
		return nil, 0, fmt.Errorf("field: decimal payload truncated")
	}
	if payload < 1 {
		return nil, 0, fmt.Errorf("field: decimal payload too short")
	}
	signByte := buf[1]
	mag := new(big.Int).SetBytes(buf[2:total])
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(spec.Scale)), nil)
	mantissa := new(big.Int).Set(mag)
	if signByte == 0x00 {
		mantissa.Neg(mantissa)
	}
	r := new(big.Rat).SetFrac(mantissa, pow)
	return r, padWords(total), nil
}

// compareDecimal decodes both operands; arbitrary-precision magnitudes are
// not fixed-width, so an order-preserving byte transform (as used for the
// native numeric kinds) isn't available here.
func compareDecimal(spec Spec, a, b []byte) (int, error) {
	va, _, err := loadDecimal(spec, a)
	if err != nil {
		return 0, err
	}
	vb, _, err := loadDecimal(spec, b)
	if err != nil {
		return 0, err
	}
	ra := va.(*big.Rat)
	rb := vb.(*big.Rat)
	return ra.Cmp(rb), nil
}
