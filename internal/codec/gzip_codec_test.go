package codec

import "testing"

func TestGzipCodecIntRoundTrip(t *testing.T) {
	c := GzipCodec{}
	values := make([]int32, 64)
	for i := range values {
		values[i] = int32(i % 7)
	}
	data, ok, err := c.EncodeInts(8, 8, values)
	if err != nil {
		t.Fatalf("EncodeInts: %v", err)
	}
	if !ok {
		t.Fatalf("expected gzip to accept a repetitive plane")
	}
	decoded, err := c.DecodeInts(8, 8, data)
	if err != nil {
		t.Fatalf("DecodeInts: %v", err)
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Fatalf("decoded[%d] = %d, want %d", i, decoded[i], values[i])
		}
	}
}

func TestGzipCodecFloatRoundTrip(t *testing.T) {
	c := GzipCodec{}
	values := make([]float32, 64)
	for i := range values {
		values[i] = float32(i) * 1.5
	}
	data, ok, err := c.EncodeFloats(8, 8, values)
	if err != nil {
		t.Fatalf("EncodeFloats: %v", err)
	}
	if !ok {
		t.Fatalf("expected gzip to accept this plane")
	}
	decoded, err := c.DecodeFloats(8, 8, data)
	if err != nil {
		t.Fatalf("DecodeFloats: %v", err)
	}
	for i := range values {
		if decoded[i] != values[i] {
			t.Fatalf("decoded[%d] = %v, want %v", i, decoded[i], values[i])
		}
	}
}

func TestGzipCodecDeclinesIncompressiblePlane(t *testing.T) {
	c := GzipCodec{}
	// A single-sample plane has no redundancy for gzip to exploit and
	// carries fixed overhead (header+trailer), so compressed >= raw.
	_, ok, err := c.EncodeInts(1, 1, []int32{12345})
	if err != nil {
		t.Fatalf("EncodeInts: %v", err)
	}
	if ok {
		t.Fatalf("expected gzip to decline a single-sample plane")
	}
}
