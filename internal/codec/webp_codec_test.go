package codec

import "testing"

func TestWebPCodecIntRoundTrip(t *testing.T) {
	c := WebPCodec{}
	const rows, cols = 16, 16
	values := make([]int32, rows*cols)
	for i := range values {
		values[i] = int32(i % 11) // flat, repetitive plane: compresses well losslessly
	}
	data, ok, err := c.EncodeInts(rows, cols, values)
	if err != nil {
		t.Fatalf("EncodeInts: %v", err)
	}
	if !ok {
		t.Fatalf("expected webp to accept a repetitive 16x16 plane")
	}
	decoded, err := c.DecodeInts(rows, cols, data)
	if err != nil {
		t.Fatalf("DecodeInts: %v", err)
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Fatalf("decoded[%d] = %d, want %d", i, decoded[i], values[i])
		}
	}
}

func TestWebPCodecFloatRoundTrip(t *testing.T) {
	c := WebPCodec{}
	const rows, cols = 16, 16
	values := make([]float32, rows*cols)
	for i := range values {
		values[i] = float32(i % 5)
	}
	data, ok, err := c.EncodeFloats(rows, cols, values)
	if err != nil {
		t.Fatalf("EncodeFloats: %v", err)
	}
	if !ok {
		t.Fatalf("expected webp to accept this plane")
	}
	decoded, err := c.DecodeFloats(rows, cols, data)
	if err != nil {
		t.Fatalf("DecodeFloats: %v", err)
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Fatalf("decoded[%d] = %v, want %v", i, decoded[i], values[i])
		}
	}
}

func TestWebPCodecDeclinesTinyPlane(t *testing.T) {
	c := WebPCodec{}
	// A 1x1 plane has fixed container overhead that dwarfs four raw bytes.
	_, ok, err := c.EncodeInts(1, 1, []int32{7})
	if err != nil {
		t.Fatalf("EncodeInts: %v", err)
	}
	if ok {
		t.Fatalf("expected webp to decline a 1x1 plane")
	}
}

func TestWebPCodecEncodeEmptyPlane(t *testing.T) {
	c := WebPCodec{}
	_, ok, err := c.EncodeInts(0, 0, nil)
	if err != nil {
		t.Fatalf("EncodeInts: %v", err)
	}
	if ok {
		t.Fatalf("expected webp to decline an empty plane")
	}
}
