package value

import (
	"math"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	for _, i := range []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32} {
		v := NewInt(i)
		if v.Tag() != TagInt {
			t.Fatalf("NewInt(%d).Tag() = %v, want TagInt", i, v.Tag())
		}
		if got := v.AsInt(); got != i {
			t.Errorf("NewInt(%d).AsInt() = %d", i, got)
		}
	}
}

func TestFloatNeverCollidesWithBoxed(t *testing.T) {
	for _, f := range []float64{0, 1.5, -1.5, math.Inf(1), math.Inf(-1), math.NaN(), -math.NaN()} {
		v := NewFloat(f)
		if v.IsBoxed() {
			t.Fatalf("NewFloat(%v) produced a boxed value: bits=%#x", f, v.Bits())
		}
		if math.IsNaN(f) {
			continue
		}
		if got := v.AsFloat(); got != f && !(math.IsNaN(got) && math.IsNaN(f)) {
			t.Errorf("NewFloat(%v).AsFloat() = %v", f, got)
		}
	}
}

func TestBoolAndUnit(t *testing.T) {
	if !NewBool(true).AsBool() || NewBool(false).AsBool() {
		t.Fatal("bool round trip failed")
	}
	if Unit().Tag() != TagUnit {
		t.Fatal("Unit() did not produce TagUnit")
	}
	if Unit().IsTruthy() {
		t.Fatal("Unit must be falsy")
	}
	if !NewInt(0).IsTruthy() {
		t.Fatal("Int(0) must be truthy, only Unit and false are falsy")
	}
}

func TestHandleRoundTrip(t *testing.T) {
	v := NewHandle(TagList, ObjectId(12345))
	if v.Tag() != TagList {
		t.Fatalf("Tag() = %v, want TagList", v.Tag())
	}
	if v.AsHandle() != ObjectId(12345) {
		t.Errorf("AsHandle() = %v, want 12345", v.AsHandle())
	}
}

func TestTextRendering(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Unit(), "()"},
		{NewInt(42), "42"},
		{NewFloat(3.0), "3"},
		{NewFloat(3.5), "3.5"},
		{NewBool(true), "true"},
	}
	for _, c := range cases {
		if got := c.v.Text(); got != c.want {
			t.Errorf("Text() = %q, want %q", got, c.want)
		}
	}
}
