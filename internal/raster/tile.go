package raster

import (
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

// Tile is the in-memory representation of one tile: one TileElement plane
// per element spec, plus the dirty/index bookkeeping the cache and record
// manager rely on.
type Tile struct {
	TileIndex int
	NRows     int
	NCols     int
	Elements  []*TileElement

	Dirty bool
}

// NewTile allocates a fill-initialized tile for the given element specs.
func NewTile(tileIndex, nRows, nCols int, specs []Spec) *Tile {
	t := &Tile{TileIndex: tileIndex, NRows: nRows, NCols: nCols}
	t.Elements = make([]*TileElement, len(specs))
	for i, s := range specs {
		t.Elements[i] = NewTileElement(s, nRows, nCols)
	}
	return t
}

// IsAllFill reports whether every element plane still holds only fill
// values, meaning the tile must not be persisted.
func (t *Tile) IsAllFill() bool {
	for _, e := range t.Elements {
		if e.HasValidData() {
			return false
		}
	}
	return true
}

// planeHeader byte values: whether a plane is stored standard or compressed.
const (
	planeStandard   = 0
	planeCompressed = 1
)

// Encode serializes every element plane, choosing per-plane between the
// codec's compressed output and the standard uncompressed dump, whichever
// is shorter. A nil master forces the standard layout for every
// plane (a read-only host with no encoders, or tiles written before any
// codec was registered).
func (t *Tile) Encode(master *codec.Master) ([]byte, error) {
	var out []byte
	for _, e := range t.Elements {
		planeBytes, compressed, err := encodePlane(e, master)
		if err != nil {
			return nil, err
		}
		if compressed {
			out = append(out, planeStandard+planeCompressed)
		} else {
			out = append(out, planeStandard)
		}
		out = append(out, planeBytes...)
	}
	return out, nil
}

func encodePlane(e *TileElement, master *codec.Master) (data []byte, compressed bool, err error) {
	standard := e.standardEncode()
	if master == nil {
		return standard, false, nil
	}
	numCodecs := len(master.Names())
	for tag := 0; tag < numCodecs; tag++ {
		c, ok := master.ByTag(uint8(tag))
		if !ok {
			continue
		}
		var payload []byte
		var encOK bool
		if e.Spec.Type == Float32 {
			payload, encOK, err = c.EncodeFloats(e.NRows, e.NCols, e.Float32s)
		} else {
			payload, encOK, err = c.EncodeInts(e.NRows, e.NCols, e.Int32s)
		}
		if err != nil {
			return nil, false, fmt.Errorf("raster: encoding element %q with codec %q: %w", e.Spec.Name, c.Name(), err)
		}
		if !encOK || len(payload)+5 >= len(standard) {
			continue
		}
		framed := make([]byte, 5+len(payload))
		framed[0] = uint8(tag)
		putUint32LE(framed[1:5], uint32(len(payload)))
		copy(framed[5:], payload)
		return framed, true, nil
	}
	return standard, false, nil
}

// Decode parses the encoded payload produced by Encode back into element
// planes. master is required whenever any plane used compression; a nil
// master is only valid if every plane in data is standard-format.
func (t *Tile) Decode(data []byte, master *codec.Master) error {
	off := 0
	for _, e := range t.Elements {
		if off >= len(data) {
			return fmt.Errorf("%w: tile payload truncated before element %q", gvrserr.ErrCorruptRecord, e.Spec.Name)
		}
		flag := data[off]
		off++
		switch flag {
		case planeStandard:
			size := e.StandardSize()
			if off+size > len(data) {
				return fmt.Errorf("%w: standard plane for %q truncated", gvrserr.ErrCorruptRecord, e.Spec.Name)
			}
			if err := e.standardDecode(data[off : off+size]); err != nil {
				return err
			}
			off += size
		case planeStandard + planeCompressed:
			if off+5 > len(data) {
				return fmt.Errorf("%w: compressed plane for %q missing tag/length header", gvrserr.ErrCorruptRecord, e.Spec.Name)
			}
			tag := data[off]
			length := int(getUint32LE(data[off+1 : off+5]))
			off += 5
			if off+length > len(data) {
				return fmt.Errorf("%w: compressed plane for %q truncated", gvrserr.ErrCorruptRecord, e.Spec.Name)
			}
			if err := decodeCompressedPlane(e, master, tag, data[off:off+length]); err != nil {
				return err
			}
			off += length
		default:
			return fmt.Errorf("%w: unrecognized plane header %d for %q", gvrserr.ErrCorruptRecord, flag, e.Spec.Name)
		}
	}
	return nil
}

// decodeCompressedPlane decodes exactly one element's length-framed
// compressed payload.
func decodeCompressedPlane(e *TileElement, master *codec.Master, tag uint8, data []byte) error {
	if master == nil {
		return fmt.Errorf("%w: element %q is compressed but no codec master is available", gvrserr.ErrCodecMissing, e.Spec.Name)
	}
	c, rerr := master.Require(tag)
	if rerr != nil {
		return rerr
	}
	if e.Spec.Type == Float32 {
		values, derr := c.DecodeFloats(e.NRows, e.NCols, data)
		if derr != nil {
			return fmt.Errorf("%w: decoding element %q: %v", gvrserr.ErrCorruptRecord, e.Spec.Name, derr)
		}
		e.Float32s = values
	} else {
		values, derr := c.DecodeInts(e.NRows, e.NCols, data)
		if derr != nil {
			return fmt.Errorf("%w: decoding element %q: %v", gvrserr.ErrCorruptRecord, e.Spec.Name, derr)
		}
		e.Int32s = values
	}
	return nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
