package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// GzipCodec compresses a plane's raw little-endian bytes with gzip at
// best compression, the same treatment the tile directory gets when it is
// persisted.
type GzipCodec struct{}

func (GzipCodec) Name() string { return "gzip" }

func (GzipCodec) EncodeInts(nRows, nCols int, values []int32) ([]byte, bool, error) {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(v))
	}
	compressed, err := gzipCompress(raw)
	if err != nil {
		return nil, false, err
	}
	if len(compressed) >= len(raw) {
		return nil, false, nil
	}
	return compressed, true, nil
}

func (GzipCodec) DecodeInts(nRows, nCols int, data []byte) ([]int32, error) {
	raw, err := gzipDecompress(data)
	if err != nil {
		return nil, err
	}
	n := nRows * nCols
	if len(raw) < 4*n {
		return nil, fmt.Errorf("gzip codec: short plane: got %d bytes, want %d", len(raw), 4*n)
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func (GzipCodec) EncodeFloats(nRows, nCols int, values []float32) ([]byte, bool, error) {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	compressed, err := gzipCompress(raw)
	if err != nil {
		return nil, false, err
	}
	if len(compressed) >= len(raw) {
		return nil, false, nil
	}
	return compressed, true, nil
}

func (GzipCodec) DecodeFloats(nRows, nCols int, data []byte) ([]float32, error) {
	raw, err := gzipDecompress(data)
	if err != nil {
		return nil, err
	}
	n := nRows * nCols
	if len(raw) < 4*n {
		return nil, fmt.Errorf("gzip codec: short plane: got %d bytes, want %d", len(raw), 4*n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

func gzipCompress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip codec: %w", err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
