package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/gen2brain/webp"
)

// WebPCodec packs a plane's raw 4-byte little-endian samples one-per-pixel
// into an RGBA image (R,G,B,A = the sample's 4 bytes) and runs it through
// the pure-Go, WASM-hosted libwebp binding in lossless mode. Lossless mode
// is required: anything lossy would corrupt the bit-exact integer/float
// payload.
type WebPCodec struct{}

func (WebPCodec) Name() string { return "webp" }

func (WebPCodec) EncodeInts(nRows, nCols int, values []int32) ([]byte, bool, error) {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(v))
	}
	return encodePlane(nRows, nCols, raw)
}

func (WebPCodec) DecodeInts(nRows, nCols int, data []byte) ([]int32, error) {
	raw, err := decodePlane(nRows, nCols, data)
	if err != nil {
		return nil, err
	}
	n := nRows * nCols
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func (WebPCodec) EncodeFloats(nRows, nCols int, values []float32) ([]byte, bool, error) {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return encodePlane(nRows, nCols, raw)
}

func (WebPCodec) DecodeFloats(nRows, nCols int, data []byte) ([]float32, error) {
	raw, err := decodePlane(nRows, nCols, data)
	if err != nil {
		return nil, err
	}
	n := nRows * nCols
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func encodePlane(nRows, nCols int, raw []byte) ([]byte, bool, error) {
	if nRows == 0 || nCols == 0 {
		return nil, false, nil
	}
	img := &image.NRGBA{
		Pix:    raw,
		Stride: 4 * nCols,
		Rect:   image.Rect(0, 0, nCols, nRows),
	}
	var buf bytes.Buffer
	// Exact keeps RGB bytes intact under fully transparent alpha; without
	// it, libwebp may zero them and corrupt the packed samples.
	if err := webp.Encode(&buf, img, webp.Options{Lossless: true, Exact: true}); err != nil {
		return nil, false, fmt.Errorf("webp codec: encode: %w", err)
	}
	if buf.Len() >= len(raw) {
		return nil, false, nil
	}
	return buf.Bytes(), true, nil
}

func decodePlane(nRows, nCols int, data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("webp codec: decode: %w", err)
	}
	// Both NRGBA and RGBA expose the decoder's raw 4-byte samples in Pix;
	// converting pixel-by-pixel through At/Set would round-trip them
	// through premultiplied alpha and corrupt the packed bytes.
	var pix []byte
	var stride int
	switch m := img.(type) {
	case *image.NRGBA:
		pix, stride = m.Pix, m.Stride
	case *image.RGBA:
		pix, stride = m.Pix, m.Stride
	default:
		return nil, fmt.Errorf("webp codec: unexpected decoded image type %T", img)
	}
	want := 4 * nRows * nCols
	if len(pix) < want {
		return nil, fmt.Errorf("webp codec: decoded plane too short: got %d bytes, want %d", len(pix), want)
	}
	if stride == 4*nCols {
		return pix[:want], nil
	}
	out := make([]byte, want)
	for row := 0; row < nRows; row++ {
		copy(out[row*4*nCols:(row+1)*4*nCols], pix[row*stride:row*stride+4*nCols])
	}
	return out, nil
}
