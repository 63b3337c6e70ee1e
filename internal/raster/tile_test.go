package raster

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
)

func testSpecs() []Spec {
	return []Spec{
		{Name: "elevation", Type: Int32, MinValue: -1000, MaxValue: 9000, FillValue: -9999},
		{Name: "slope", Type: Float32, MinValue: 0, MaxValue: 90, FillValue: -1},
	}
}

func TestTileEncodeDecodeRoundTripStandard(t *testing.T) {
	tile := NewTile(0, 8, 8, testSpecs())
	if err := tile.Elements[0].WriteInt(10, 250); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tile.Elements[1].WriteFloat(10, 45.5); err != nil {
		t.Fatalf("write: %v", err)
	}

	encoded, err := tile.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := NewTile(0, 8, 8, testSpecs())
	if err := decoded.Decode(encoded, nil); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Elements[0].ReadInt(10) != 250 {
		t.Errorf("elevation[10] = %d, want 250", decoded.Elements[0].ReadInt(10))
	}
	if decoded.Elements[1].ReadFloat(10) != 45.5 {
		t.Errorf("slope[10] = %v, want 45.5", decoded.Elements[1].ReadFloat(10))
	}
}

func TestTileEncodeDecodeRoundTripWithCodecs(t *testing.T) {
	master, err := codec.DefaultMaster()
	if err != nil {
		t.Fatalf("DefaultMaster: %v", err)
	}

	tile := NewTile(1, 16, 16, testSpecs())
	for i := 0; i < 16*16; i++ {
		_ = tile.Elements[0].WriteInt(i, int32(i%50))
		_ = tile.Elements[1].WriteFloat(i, float64(i%90))
	}

	encoded, err := tile.Encode(master)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded := NewTile(1, 16, 16, testSpecs())
	if err := decoded.Decode(encoded, master); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := 0; i < 16*16; i++ {
		if decoded.Elements[0].ReadInt(i) != tile.Elements[0].ReadInt(i) {
			t.Fatalf("elevation[%d] mismatch: got %d want %d", i, decoded.Elements[0].ReadInt(i), tile.Elements[0].ReadInt(i))
		}
		if decoded.Elements[1].ReadFloat(i) != tile.Elements[1].ReadFloat(i) {
			t.Fatalf("slope[%d] mismatch: got %v want %v", i, decoded.Elements[1].ReadFloat(i), tile.Elements[1].ReadFloat(i))
		}
	}
}

func TestIsAllFill(t *testing.T) {
	tile := NewTile(0, 4, 4, testSpecs())
	if !tile.IsAllFill() {
		t.Fatalf("freshly created tile should be all-fill")
	}
	_ = tile.Elements[0].WriteInt(0, 1)
	if tile.IsAllFill() {
		t.Fatalf("tile with one written cell should not be all-fill")
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	tile := NewTile(0, 4, 4, testSpecs())
	encoded, err := tile.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded := NewTile(0, 4, 4, testSpecs())
	if err := decoded.Decode(encoded[:len(encoded)-2], nil); err == nil {
		t.Fatalf("expected truncated payload to fail decoding")
	}
}
