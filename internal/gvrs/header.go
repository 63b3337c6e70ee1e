// Package gvrs assembles the lower-level components (gvrsio, record,
// directory, cache, assistant, codec, raster) into the GVRS file: the
// header persistence, the open/close state machine, and the typed
// element facade.
package gvrs

import (
	"encoding/binary"
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/checksum"
	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

const (
	magic        = "gvrs"
	versionMajor = uint8(1)
	versionMinor = uint8(0)

	flagChecksumEnabled uint16 = 1 << 0
)

// FileSpec is the global, persisted description of a GVRS raster: its grid
// and tile geometry, its element list, and its checksum policy. The codec
// table persisted alongside it is held by the header, not here.
type FileSpec struct {
	NRows, NCols       int32
	TileRows, TileCols int32
	Elements           []raster.Spec
	ChecksumsEnabled   bool
}

// NRowsOfTiles returns the tile-grid row count.
func (s FileSpec) NRowsOfTiles() int32 { return s.NRows / s.TileRows }

// NColsOfTiles returns the tile-grid column count.
func (s FileSpec) NColsOfTiles() int32 { return s.NCols / s.TileCols }

// Validate checks the grid/tile geometry and element list constraints.
func (s FileSpec) Validate() error {
	if s.NRows <= 0 || s.NCols <= 0 || s.TileRows <= 0 || s.TileCols <= 0 {
		return fmt.Errorf("%w: grid and tile dimensions must be positive", gvrserr.ErrInvalidSpec)
	}
	if s.NRows%s.TileRows != 0 || s.NCols%s.TileCols != 0 {
		return fmt.Errorf("%w: raster dimensions (%dx%d) must be a multiple of tile dimensions (%dx%d)", gvrserr.ErrInvalidSpec, s.NRows, s.NCols, s.TileRows, s.TileCols)
	}
	if len(s.Elements) == 0 {
		return fmt.Errorf("%w: a raster must declare at least one element", gvrserr.ErrInvalidSpec)
	}
	seen := make(map[string]bool, len(s.Elements))
	for _, e := range s.Elements {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate element name %q", gvrserr.ErrInvalidSpec, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// header is the in-memory parsed form of the fixed-prefix GVRS header plus
// its variable-length sections.
type header struct {
	spec            FileSpec
	codecNames      []string
	directoryOffset int64
}

func serializeHeader(h header, checksums bool) []byte {
	var buf []byte
	buf = append(buf, magic...)
	buf = append(buf, versionMajor, versionMinor)

	var flags uint16
	if checksums {
		flags |= flagChecksumEnabled
	}
	buf = appendU16(buf, flags)

	buf = appendI32(buf, h.spec.NRows)
	buf = appendI32(buf, h.spec.NCols)
	buf = appendI32(buf, h.spec.NRowsOfTiles())
	buf = appendI32(buf, h.spec.NColsOfTiles())
	buf = appendI32(buf, h.spec.TileRows)
	buf = appendI32(buf, h.spec.TileCols)

	buf = appendU16(buf, uint16(len(h.spec.Elements)))
	for _, e := range h.spec.Elements {
		buf = appendElementSpec(buf, e)
	}

	buf = appendU16(buf, uint16(len(h.codecNames)))
	for _, name := range h.codecNames {
		buf = appendU8String(buf, name)
		buf = appendString(buf, "") // encoder class hint: unused by this Go port
		buf = appendString(buf, "") // decoder class hint: unused by this Go port
	}

	buf = appendI64(buf, h.directoryOffset)

	if checksums {
		crc := checksum.Of(buf)
		buf = appendU32(buf, crc)
	}
	// Records must start on an 8-byte boundary, and record sizes are
	// themselves multiples of 8, so padding the header keeps every record
	// offset aligned. The compact directory depends on this: it persists
	// offset>>3, which loses the low bits of any unaligned offset.
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func deserializeHeader(buf []byte) (header, bool, error) {
	var h header
	if len(buf) < 6 {
		return h, false, fmt.Errorf("%w: header too short", gvrserr.ErrUnsupportedFormat)
	}
	if string(buf[0:4]) != magic {
		return h, false, fmt.Errorf("%w: bad magic %q", gvrserr.ErrUnsupportedFormat, buf[0:4])
	}
	if buf[4] != versionMajor {
		return h, false, fmt.Errorf("%w: unsupported major version %d", gvrserr.ErrUnsupportedFormat, buf[4])
	}
	off := 6
	flags := binary.LittleEndian.Uint16(buf[off:])
	off += 2
	checksums := flags&flagChecksumEnabled != 0

	var err error
	h.spec.NRows, off, err = readI32(buf, off)
	if err != nil {
		return h, checksums, err
	}
	h.spec.NCols, off, err = readI32(buf, off)
	if err != nil {
		return h, checksums, err
	}
	_, off, err = readI32(buf, off) // nRowsOfTiles, derived; kept on disk for direct inspection
	if err != nil {
		return h, checksums, err
	}
	_, off, err = readI32(buf, off) // nColsOfTiles
	if err != nil {
		return h, checksums, err
	}
	h.spec.TileRows, off, err = readI32(buf, off)
	if err != nil {
		return h, checksums, err
	}
	h.spec.TileCols, off, err = readI32(buf, off)
	if err != nil {
		return h, checksums, err
	}

	var numElements uint16
	numElements, off, err = readU16(buf, off)
	if err != nil {
		return h, checksums, err
	}
	h.spec.Elements = make([]raster.Spec, numElements)
	for i := range h.spec.Elements {
		h.spec.Elements[i], off, err = readElementSpec(buf, off)
		if err != nil {
			return h, checksums, err
		}
	}

	var numCodecs uint16
	numCodecs, off, err = readU16(buf, off)
	if err != nil {
		return h, checksums, err
	}
	h.codecNames = make([]string, numCodecs)
	for i := range h.codecNames {
		var name string
		name, off, err = readU8String(buf, off)
		if err != nil {
			return h, checksums, err
		}
		h.codecNames[i] = name
		if _, off, err = readString(buf, off); err != nil { // encoder hint, unused
			return h, checksums, err
		}
		if _, off, err = readString(buf, off); err != nil { // decoder hint, unused
			return h, checksums, err
		}
	}

	h.directoryOffset, off, err = readI64(buf, off)
	if err != nil {
		return h, checksums, err
	}

	if checksums {
		if off+4 > len(buf) {
			return h, checksums, fmt.Errorf("%w: header truncated before CRC trailer", gvrserr.ErrCorruptRecord)
		}
		if !checksum.Verify(buf[:off+4]) {
			return h, checksums, fmt.Errorf("%w: header checksum mismatch", gvrserr.ErrCorruptRecord)
		}
	}

	h.spec.ChecksumsEnabled = checksums
	return h, checksums, nil
}

// HeaderSize returns the serialized size of the header for this spec and
// codec table (names included), used to size the BRAF region reserved
// ahead of the first record.
func HeaderSize(spec FileSpec, codecNames []string) int {
	h := header{spec: spec, codecNames: codecNames}
	return len(serializeHeader(h, spec.ChecksumsEnabled))
}

func appendElementSpec(buf []byte, e raster.Spec) []byte {
	buf = append(buf, uint8(e.Type))
	buf = appendU8String(buf, e.Name)
	switch e.Type {
	case raster.Float32, raster.IntCodedFloat32:
		buf = appendF32(buf, float32(e.MinValue))
		buf = appendF32(buf, float32(e.MaxValue))
		buf = appendF32(buf, float32(e.FillValue))
	default:
		buf = appendI32(buf, int32(e.MinValue))
		buf = appendI32(buf, int32(e.MaxValue))
		buf = appendI32(buf, int32(e.FillValue))
	}
	if e.Type == raster.IntCodedFloat32 {
		buf = appendF32(buf, float32(e.Scale))
		buf = appendF32(buf, float32(e.Offset))
	}
	buf = appendString(buf, e.Description)
	buf = appendString(buf, e.Label)
	buf = appendString(buf, e.Units)
	return buf
}

func readElementSpec(buf []byte, off int) (raster.Spec, int, error) {
	var e raster.Spec
	if off >= len(buf) {
		return e, off, fmt.Errorf("%w: truncated element spec", gvrserr.ErrCorruptRecord)
	}
	e.Type = raster.DataType(buf[off])
	off++
	var err error
	e.Name, off, err = readU8String(buf, off)
	if err != nil {
		return e, off, err
	}
	switch e.Type {
	case raster.Float32, raster.IntCodedFloat32:
		var v float32
		v, off, err = readF32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.MinValue = float64(v)
		v, off, err = readF32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.MaxValue = float64(v)
		v, off, err = readF32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.FillValue = float64(v)
	default:
		var v int32
		v, off, err = readI32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.MinValue = float64(v)
		v, off, err = readI32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.MaxValue = float64(v)
		v, off, err = readI32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.FillValue = float64(v)
	}
	if e.Type == raster.IntCodedFloat32 {
		var scale, offset float32
		scale, off, err = readF32(buf, off)
		if err != nil {
			return e, off, err
		}
		offset, off, err = readF32(buf, off)
		if err != nil {
			return e, off, err
		}
		e.Scale = float64(scale)
		e.Offset = float64(offset)
	}
	e.Description, off, err = readString(buf, off)
	if err != nil {
		return e, off, err
	}
	e.Label, off, err = readString(buf, off)
	if err != nil {
		return e, off, err
	}
	e.Units, off, err = readString(buf, off)
	if err != nil {
		return e, off, err
	}
	return e, off, nil
}

// DefaultCodecMaster returns the registry GVRS ships with: gzip then
// webp, in persisted tag order.
func DefaultCodecMaster() (*codec.Master, error) {
	return codec.DefaultMaster()
}
