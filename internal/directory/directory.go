// Package directory implements the GVRS tile directory: the mapping from
// tile index to file offset, in its two interchangeable on-disk forms
// (compact 32-bit scaled offsets, extended 64-bit offsets).
package directory

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

// Variant distinguishes the two persisted encodings.
type Variant uint8

const (
	Compact  Variant = 0
	Extended Variant = 1
)

// compactLimit is the largest offset (in bytes) a compact directory can
// address: 2^31 words * 8 bytes/word.
const compactLimit = int64(1) << 34

// Directory maps tileIndex -> file offset. The zero value is an empty,
// unpopulated directory. Storage always grows the bounding box of
// populated tiles and is never shrunk.
type Directory struct {
	nRowsOfTiles int
	nColsOfTiles int
	offsets      []int64 // dense, length nRowsOfTiles*nColsOfTiles; 0 = unpopulated

	row0, row1 int // bounding box of populated tiles, in tile-row units
	col0, col1 int
	hasAny     bool
}

// New creates an empty directory for a grid of nRowsOfTiles x nColsOfTiles tiles.
func New(nRowsOfTiles, nColsOfTiles int) *Directory {
	return &Directory{
		nRowsOfTiles: nRowsOfTiles,
		nColsOfTiles: nColsOfTiles,
		offsets:      make([]int64, nRowsOfTiles*nColsOfTiles),
	}
}

func (d *Directory) tileRowCol(idx int) (row, col int) {
	return idx / d.nColsOfTiles, idx % d.nColsOfTiles
}

// Set records idx's file offset and grows the bounding box if needed.
func (d *Directory) Set(idx int, offset int64) {
	d.offsets[idx] = offset
	if offset == 0 {
		return
	}
	row, col := d.tileRowCol(idx)
	if !d.hasAny {
		d.row0, d.row1, d.col0, d.col1 = row, row, col, col
		d.hasAny = true
		return
	}
	if row < d.row0 {
		d.row0 = row
	}
	if row > d.row1 {
		d.row1 = row
	}
	if col < d.col0 {
		d.col0 = col
	}
	if col > d.col1 {
		d.col1 = col
	}
}

// Get returns idx's file offset, or 0 if unpopulated.
func (d *Directory) Get(idx int) int64 {
	if idx < 0 || idx >= len(d.offsets) {
		return 0
	}
	return d.offsets[idx]
}

// Has reports whether idx has a nonzero offset.
func (d *Directory) Has(idx int) bool {
	return d.Get(idx) != 0
}

// Window returns the bounding box of populated tiles as
// [row0,row1] x [col0,col1]; ok is false if the directory is empty.
func (d *Directory) Window() (row0, row1, col0, col1 int, ok bool) {
	return d.row0, d.row1, d.col0, d.col1, d.hasAny
}

// chooseVariant selects compact unless any populated offset exceeds what a
// compact directory can address.
func (d *Directory) chooseVariant() Variant {
	for _, off := range d.offsets {
		if off >= compactLimit {
			return Extended
		}
	}
	return Compact
}

// Persist serializes the directory into a metadata record payload: a
// 1-byte variant tag, the tile-grid shape, the populated window, and one
// uvarint per window cell holding its offset (offset>>3 for Compact;
// 0 = unpopulated), the whole stream gzip-compressed.
func (d *Directory) Persist() []byte {
	return gzipBytes(d.persistRaw())
}

func (d *Directory) persistRaw() []byte {
	variant := d.chooseVariant()
	row0, row1, col0, col1, ok := d.Window()
	if !ok {
		// row1 < row0 signals an empty window; the negative value round-trips
		// through uint64 varint encoding via two's complement on Restore.
		row0, row1, col0, col1 = 0, -1, 0, -1
	}

	buf := make([]byte, 0, 64)
	buf = append(buf, uint8(variant))
	buf = appendVarint(buf, uint64(d.nRowsOfTiles))
	buf = appendVarint(buf, uint64(d.nColsOfTiles))
	buf = appendVarint(buf, uint64(row0))
	buf = appendVarint(buf, uint64(row1))
	buf = appendVarint(buf, uint64(col0))
	buf = appendVarint(buf, uint64(col1))

	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			idx := row*d.nColsOfTiles + col
			off := d.offsets[idx]
			if variant == Compact {
				buf = appendVarint(buf, uint64(off>>3))
			} else {
				buf = appendVarint(buf, uint64(off))
			}
		}
	}
	return buf
}

// Restore reverses Persist. nRowsOfTiles/nColsOfTiles must match the grid
// geometry read from the file header.
func Restore(compressed []byte, nRowsOfTiles, nColsOfTiles int) (*Directory, error) {
	data, err := gunzipBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: directory record: %v", gvrserr.ErrCorruptRecord, err)
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty directory record", gvrserr.ErrCorruptRecord)
	}
	variant := Variant(data[0])
	rest := data[1:]

	nRows, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	nCols, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	if int(nRows) != nRowsOfTiles || int(nCols) != nColsOfTiles {
		return nil, fmt.Errorf("%w: directory grid shape %dx%d does not match header %dx%d", gvrserr.ErrCorruptRecord, nRows, nCols, nRowsOfTiles, nColsOfTiles)
	}

	row0u, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	row1u, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	col0u, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	col1u, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	row0, row1, col0, col1 := int(row0u), int(row1u), int(col0u), int(col1u)

	d := New(nRowsOfTiles, nColsOfTiles)
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			var v uint64
			v, rest, err = readVarint(rest)
			if err != nil {
				return nil, err
			}
			var off int64
			if variant == Compact {
				off = int64(v) << 3
			} else {
				off = int64(v)
			}
			if off != 0 {
				idx := row*nColsOfTiles + col
				d.Set(idx, off)
			}
		}
	}
	return d, nil
}

func appendVarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func gzipBytes(raw []byte) []byte {
	var buf bytes.Buffer
	gw, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	_, _ = gw.Write(raw)
	_ = gw.Close()
	return buf.Bytes()
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	// A record payload carries zero padding after the gzip stream; read
	// only the first member so the padding is not parsed as another one.
	gr.Multistream(false)
	return io.ReadAll(gr)
}

func readVarint(data []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("%w: malformed varint in directory record", gvrserr.ErrCorruptRecord)
	}
	return v, data[n:], nil
}
