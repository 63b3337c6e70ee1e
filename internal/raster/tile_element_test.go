package raster

import (
	"math"
	"testing"
)

func int32Spec() Spec {
	return Spec{Name: "count", Type: Int32, MinValue: 0, MaxValue: 100, FillValue: -1}
}

func float32Spec() Spec {
	return Spec{Name: "elevation", Type: Float32, MinValue: -500, MaxValue: 9000, FillValue: math.NaN()}
}

func TestNewTileElementFillsWithFillValue(t *testing.T) {
	te := NewTileElement(int32Spec(), 4, 4)
	for i := range te.Int32s {
		if te.Int32s[i] != -1 {
			t.Fatalf("cell %d = %d, want fill value -1", i, te.Int32s[i])
		}
	}
	if !te.HasFillDataValues() {
		t.Fatalf("freshly created tile element should be all-fill")
	}
}

func TestWriteIntRangeValidation(t *testing.T) {
	te := NewTileElement(int32Spec(), 2, 2)
	if err := te.WriteInt(0, 50); err != nil {
		t.Fatalf("in-range write rejected: %v", err)
	}
	if err := te.WriteInt(1, 101); err == nil {
		t.Fatalf("expected out-of-range write to fail")
	}
	if err := te.WriteInt(2, -1); err != nil {
		t.Fatalf("fill-value write should be exempt from range check: %v", err)
	}
}

func TestWriteFloatNaNPolicy(t *testing.T) {
	te := NewTileElement(float32Spec(), 1, 1)
	if err := te.WriteFloat(0, math.NaN()); err != nil {
		t.Fatalf("NaN write should be accepted when fill value is NaN: %v", err)
	}
	if got := te.ReadFloat(0); !math.IsNaN(got) {
		t.Fatalf("ReadFloat = %v, want NaN", got)
	}

	strict := Spec{Name: "temp", Type: Float32, MinValue: -50, MaxValue: 50, FillValue: -9999}
	te2 := NewTileElement(strict, 1, 1)
	if err := te2.WriteFloat(0, math.NaN()); err == nil {
		t.Fatalf("expected NaN write to be rejected when fill value is not NaN")
	}
}

func TestStandardEncodeDecodeRoundTrip(t *testing.T) {
	for _, spec := range []Spec{int32Spec(), float32Spec(), {Name: "z16", Type: Int16, MinValue: -100, MaxValue: 100, FillValue: 0}} {
		te := NewTileElement(spec, 3, 3)
		if spec.Type == Float32 {
			_ = te.WriteFloat(4, 12.5)
		} else {
			_ = te.WriteInt(4, 7)
		}
		encoded := te.standardEncode()

		decoded := NewTileElement(spec, 3, 3)
		if err := decoded.standardDecode(encoded); err != nil {
			t.Fatalf("%v: standardDecode failed: %v", spec.Type, err)
		}
		if spec.Type == Float32 {
			if decoded.ReadFloat(4) != te.ReadFloat(4) {
				t.Errorf("%v: round trip mismatch: got %v want %v", spec.Type, decoded.ReadFloat(4), te.ReadFloat(4))
			}
		} else {
			if decoded.ReadInt(4) != te.ReadInt(4) {
				t.Errorf("%v: round trip mismatch: got %v want %v", spec.Type, decoded.ReadInt(4), te.ReadInt(4))
			}
		}
	}
}

func TestWriteFloatTruncatesIntoIntElement(t *testing.T) {
	te := NewTileElement(int32Spec(), 1, 1)
	if err := te.WriteFloat(0, 7.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := te.ReadInt(0); got != 7 {
		t.Fatalf("WriteFloat(7.9) into Int32 element = %d, want 7 (truncated toward zero)", got)
	}
}
