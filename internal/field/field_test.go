package field

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

func roundTrip(t *testing.T, spec Spec, v any) any {
	t.Helper()
	words, err := SizeFromValue(spec, v)
	if err != nil {
		t.Fatalf("SizeFromValue: %v", err)
	}
	buf := make([]byte, words*WordSize)
	n, err := Dump(spec, v, buf)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if n != words*WordSize {
		t.Fatalf("Dump wrote %d bytes, want %d", n, words*WordSize)
	}
	probed, err := SizeFromBuffer(spec, buf)
	if err != nil {
		t.Fatalf("SizeFromBuffer: %v", err)
	}
	if probed != words {
		t.Fatalf("SizeFromBuffer = %d, want %d", probed, words)
	}
	got, consumed, err := Load(spec, buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if consumed != n {
		t.Fatalf("Load consumed %d, want %d", consumed, n)
	}
	return got
}

func TestInt32RoundTrip(t *testing.T) {
	spec := Spec{Kind: Int32}
	got := roundTrip(t, spec, int32(-42))
	if got.(int32) != -42 {
		t.Fatalf("got %v", got)
	}
}

func TestInt32OrderPreserving(t *testing.T) {
	spec := Spec{Kind: Int32}
	values := []int32{-100, -1, 0, 1, 100, 1 << 20}
	var bufs [][]byte
	for _, v := range values {
		buf := make([]byte, 4)
		if _, err := Dump(spec, v, buf); err != nil {
			t.Fatal(err)
		}
		bufs = append(bufs, buf)
	}
	for i := 1; i < len(bufs); i++ {
		c, err := Compare(spec, bufs[i-1], bufs[i])
		if err != nil {
			t.Fatal(err)
		}
		if c >= 0 {
			t.Fatalf("expected %v < %v, compare=%d", values[i-1], values[i], c)
		}
	}
}

func TestF64OrderPreserving(t *testing.T) {
	spec := Spec{Kind: F64}
	values := []float64{-100.5, -0.001, 0, 0.001, 100.5}
	var bufs [][]byte
	for _, v := range values {
		buf := make([]byte, 8)
		if _, err := Dump(spec, v, buf); err != nil {
			t.Fatal(err)
		}
		bufs = append(bufs, buf)
	}
	for i := 1; i < len(bufs); i++ {
		c, err := Compare(spec, bufs[i-1], bufs[i])
		if err != nil {
			t.Fatal(err)
		}
		if c >= 0 {
			t.Fatalf("expected %v < %v, compare=%d", values[i-1], values[i], c)
		}
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	spec := Spec{Kind: DecimalKind, Precision: 10, Scale: 2}
	r := new(big.Rat).SetFloat64(-123.456)
	got := roundTrip(t, spec, r)
	gotRat := got.(*big.Rat)
	want := new(big.Rat).SetFrac64(-12346, 100)
	if gotRat.Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", gotRat.RatString(), want.RatString())
	}
}

func TestDecimalOutOfRange(t *testing.T) {
	spec := Spec{Kind: DecimalKind, Precision: 3, Scale: 1}
	_, err := SizeFromValue(spec, big.NewRat(99999, 1))
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestDateTimeRoundTrip(t *testing.T) {
	spec := Spec{Kind: DateTimeKind}
	now := time.Unix(1700000000, 123000000).UTC()
	got := roundTrip(t, spec, now)
	if !got.(time.Time).Equal(now) {
		t.Fatalf("got %v, want %v", got, now)
	}
}

func TestObjectIDRoundTrip(t *testing.T) {
	spec := Spec{Kind: ObjectIdKind}
	id := uuid.New()
	got := roundTrip(t, spec, id)
	if got.(uuid.UUID) != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestLanguageSetRoundTrip(t *testing.T) {
	spec := Spec{Kind: LanguageSetKind}
	got := roundTrip(t, spec, []string{"en-US", "fr", "de-DE"})
	tags := got.([]language.Tag)
	if len(tags) != 3 {
		t.Fatalf("got %d tags, want 3", len(tags))
	}
}

func TestFixedCharStringPadSpaceCompare(t *testing.T) {
	spec := Spec{Kind: StringKind, Fixed: true, MaxLength: 6, Collation: PadSpace}
	bufA := make([]byte, 8)
	bufB := make([]byte, 8)
	if _, err := Dump(spec, "abc", bufA); err != nil {
		t.Fatal(err)
	}
	if _, err := Dump(spec, "abc   ", bufB); err != nil {
		t.Fatal(err)
	}
	c, err := Compare(spec, bufA, bufB)
	if err != nil {
		t.Fatal(err)
	}
	if c != 0 {
		t.Fatalf("expected PadSpace equality, got %d", c)
	}
}

func TestVariableStringNoPadCompare(t *testing.T) {
	spec := Spec{Kind: StringKind, Fixed: false, MaxLength: 32, Collation: NoPad}
	words, _ := SizeFromValue(spec, "abc")
	bufA := make([]byte, words*WordSize)
	Dump(spec, "abc", bufA)
	words2, _ := SizeFromValue(spec, "abc ")
	bufB := make([]byte, words2*WordSize)
	Dump(spec, "abc ", bufB)
	c, err := Compare(spec, bufA, bufB)
	if err != nil {
		t.Fatal(err)
	}
	if c >= 0 {
		t.Fatalf("expected NoPad \"abc\" < \"abc \", got %d", c)
	}
}

func TestRoundGreaterFractional(t *testing.T) {
	spec := Spec{Kind: Int32}
	bucket, op, ok := Round(spec, 3.5, OpGreater)
	if !ok {
		t.Fatal("expected ok")
	}
	if bucket.(int32) != 4 || op != OpGreaterEquals {
		t.Fatalf("got bucket=%v op=%v", bucket, op)
	}
}

func TestRoundEqualsFractionalIsUnrepresentable(t *testing.T) {
	spec := Spec{Kind: Int32}
	_, _, ok := Round(spec, 3.5, OpEquals)
	if ok {
		t.Fatal("expected fractional Equals against Int32 to be unrepresentable")
	}
}
