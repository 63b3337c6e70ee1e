package raster

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

// TileElement owns one plane of tileRows*tileCols typed values for a single
// element within a single tile. It knows how to validate writes against the
// element's declared range/fill policy and how to move its plane to and
// from the standard (uncompressed) on-disk layout.
type TileElement struct {
	Spec     Spec
	NRows    int
	NCols    int
	Int32s   []int32   // populated for Int32, Int16 (widened), IntCodedFloat32
	Float32s []float32 // populated for Float32
}

// NewTileElement allocates a fill-initialized plane.
func NewTileElement(spec Spec, nRows, nCols int) *TileElement {
	te := &TileElement{Spec: spec, NRows: nRows, NCols: nCols}
	n := nRows * nCols
	switch spec.Type {
	case Float32:
		te.Float32s = make([]float32, n)
		fv := float32(spec.FillValue)
		for i := range te.Float32s {
			te.Float32s[i] = fv
		}
	default:
		te.Int32s = make([]int32, n)
		var fv int32
		if spec.Type == IntCodedFloat32 {
			fv = spec.ToStoredInt(spec.FillValue)
		} else {
			fv = int32(spec.FillValue)
		}
		for i := range te.Int32s {
			te.Int32s[i] = fv
		}
	}
	return te
}

// StandardSize is the length in bytes of this plane's uncompressed,
// 4-byte-boundary-padded layout.
func (te *TileElement) StandardSize() int {
	n := te.NRows * te.NCols
	size := n * te.Spec.Type.BytesPerSample()
	return pad4(size)
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

// inRange reports whether v satisfies the element's declared range or
// equals its fill value (the fill exception).
func (s Spec) inRange(v float64) bool {
	if v == s.FillValue {
		return true
	}
	return v >= s.MinValue && v <= s.MaxValue
}

// ReadInt returns the cell's value as an int32, widening Int16 naturally.
func (te *TileElement) ReadInt(index int) int32 {
	if te.Spec.Type == Float32 {
		return int32(te.Float32s[index])
	}
	return te.Int32s[index]
}

// ReadFloat returns the cell's value as a float64: the stored value for
// Float32 and integer types, the decoded value for IntCodedFloat32. Fill
// values are returned as stored; no NaN is substituted.
func (te *TileElement) ReadFloat(index int) float64 {
	switch te.Spec.Type {
	case Float32:
		return float64(te.Float32s[index])
	case IntCodedFloat32:
		return te.Spec.FromStoredInt(te.Int32s[index])
	default:
		return float64(te.Int32s[index])
	}
}

// WriteInt validates and stores an integer value.
func (te *TileElement) WriteInt(index int, v int32) error {
	switch te.Spec.Type {
	case Float32:
		return te.WriteFloat(index, float64(v))
	case IntCodedFloat32:
		// An integer write to an IntCodedFloat32 element is interpreted as
		// a direct value (not a stored code): validate then encode.
		return te.WriteFloat(index, float64(v))
	default:
		fv := float64(v)
		if !te.Spec.inRange(fv) {
			return fmt.Errorf("%w: element %q: value %d outside [%v, %v]", gvrserr.ErrValueOutOfRange, te.Spec.Name, v, te.Spec.MinValue, te.Spec.MaxValue)
		}
		te.Int32s[index] = v
		return nil
	}
}

// WriteFloat validates and stores a float value. Writing a float to an int
// element truncates toward zero before range validation.
func (te *TileElement) WriteFloat(index int, v float64) error {
	switch te.Spec.Type {
	case Float32:
		fv32 := float32(v)
		if math.IsNaN(v) {
			if !math.IsNaN(te.Spec.FillValue) {
				return fmt.Errorf("%w: element %q: NaN write rejected, fill value is not NaN", gvrserr.ErrValueOutOfRange, te.Spec.Name)
			}
			te.Float32s[index] = float32(math.NaN())
			return nil
		}
		if !te.Spec.inRange(v) {
			return fmt.Errorf("%w: element %q: value %v outside [%v, %v]", gvrserr.ErrValueOutOfRange, te.Spec.Name, v, te.Spec.MinValue, te.Spec.MaxValue)
		}
		te.Float32s[index] = fv32
		return nil
	case IntCodedFloat32:
		if !te.Spec.inRange(v) {
			return fmt.Errorf("%w: element %q: value %v outside [%v, %v]", gvrserr.ErrValueOutOfRange, te.Spec.Name, v, te.Spec.MinValue, te.Spec.MaxValue)
		}
		te.Int32s[index] = te.Spec.ToStoredInt(v)
		return nil
	default:
		truncated := int32(v) // truncation toward zero, per Go's float->int conversion
		return te.WriteInt(index, truncated)
	}
}

// HasValidData reports whether at least one cell differs from the fill value.
func (te *TileElement) HasValidData() bool {
	return !te.HasFillDataValues()
}

// HasFillDataValues reports whether every cell still holds the fill value.
func (te *TileElement) HasFillDataValues() bool {
	switch te.Spec.Type {
	case Float32:
		fv := float32(te.Spec.FillValue)
		fvIsNaN := math.IsNaN(te.Spec.FillValue)
		for _, v := range te.Float32s {
			if fvIsNaN {
				if !math.IsNaN(float64(v)) {
					return false
				}
				continue
			}
			if v != fv {
				return false
			}
		}
		return true
	default:
		var fv int32
		if te.Spec.Type == IntCodedFloat32 {
			fv = te.Spec.ToStoredInt(te.Spec.FillValue)
		} else {
			fv = int32(te.Spec.FillValue)
		}
		for _, v := range te.Int32s {
			if v != fv {
				return false
			}
		}
		return true
	}
}

// standardEncode dumps the plane as little-endian values padded to a
// 4-byte boundary.
func (te *TileElement) standardEncode() []byte {
	n := te.NRows * te.NCols
	buf := make([]byte, te.StandardSize())
	switch te.Spec.Type {
	case Int16:
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(te.Int32s[i])))
		}
	case Float32:
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(te.Float32s[i]))
		}
	default: // Int32, IntCodedFloat32
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(te.Int32s[i]))
		}
	}
	return buf
}

// standardDecode reverses standardEncode.
func (te *TileElement) standardDecode(buf []byte) error {
	n := te.NRows * te.NCols
	switch te.Spec.Type {
	case Int16:
		if len(buf) < 2*n {
			return fmt.Errorf("%w: short Int16 plane", gvrserr.ErrCorruptRecord)
		}
		te.Int32s = make([]int32, n)
		for i := 0; i < n; i++ {
			te.Int32s[i] = int32(int16(binary.LittleEndian.Uint16(buf[2*i:])))
		}
	case Float32:
		if len(buf) < 4*n {
			return fmt.Errorf("%w: short Float32 plane", gvrserr.ErrCorruptRecord)
		}
		te.Float32s = make([]float32, n)
		for i := 0; i < n; i++ {
			te.Float32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	default:
		if len(buf) < 4*n {
			return fmt.Errorf("%w: short Int32 plane", gvrserr.ErrCorruptRecord)
		}
		te.Int32s = make([]int32, n)
		for i := 0; i < n; i++ {
			te.Int32s[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	}
	return nil
}
