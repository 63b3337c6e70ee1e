package gvrs

import (
	"fmt"
	"math"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

// Element is a typed (row, col) accessor for one element plane across the
// whole raster. It pins the most-recently-touched tile so that a scan along
// a row or column does not repeatedly pay for a cache lookup.
type Element struct {
	file      *File
	specIndex int

	pinnedTile      int // tileIndex, or -1 if nothing pinned
	pinnedTileValue *raster.Tile
}

// Spec returns the element's declarative description.
func (e *Element) Spec() raster.Spec { return e.file.spec.Elements[e.specIndex] }

func (e *Element) resolve(row, col int) (tileIndex, localIndex int, err error) {
	spec := e.file.spec
	if row < 0 || row >= int(spec.NRows) || col < 0 || col >= int(spec.NCols) {
		return 0, 0, fmt.Errorf("%w: (row=%d, col=%d) outside raster bounds (%dx%d)", gvrserr.ErrValueOutOfRange, row, col, spec.NRows, spec.NCols)
	}
	tileRows, tileCols := int(spec.TileRows), int(spec.TileCols)
	tileRow, tileCol := row/tileRows, col/tileCols
	tileIndex = tileRow*int(spec.NColsOfTiles()) + tileCol
	localRow, localCol := row%tileRows, col%tileCols
	localIndex = localRow*tileCols + localCol
	return tileIndex, localIndex, nil
}

func (e *Element) tileFor(row, col int) (*raster.Tile, int, error) {
	tileIndex, localIndex, err := e.resolve(row, col)
	if err != nil {
		return nil, 0, err
	}
	if e.pinnedTile == tileIndex && e.pinnedTileValue != nil && e.file.isPinnable(tileIndex) {
		return e.pinnedTileValue, localIndex, nil
	}
	tile, err := e.file.getTile(tileIndex)
	if err != nil {
		return nil, 0, err
	}
	e.pinnedTile = tileIndex
	e.pinnedTileValue = tile
	return tile, localIndex, nil
}

// ReadInt returns the integer value at (row, col), substituting the
// element's fill value if the owning tile has never been written.
func (e *Element) ReadInt(row, col int) (int32, error) {
	if err := e.file.checkPoisoned(); err != nil {
		return 0, err
	}
	tile, idx, err := e.tileFor(row, col)
	if err != nil {
		return 0, err
	}
	return tile.Elements[e.specIndex].ReadInt(idx), nil
}

// ReadFloat returns the float value at (row, col). Reading an Int32 or
// Int16 element as float substitutes NaN for its fill value; Float32 and
// IntCodedFloat32 elements return their fill value as stored.
func (e *Element) ReadFloat(row, col int) (float64, error) {
	if err := e.file.checkPoisoned(); err != nil {
		return 0, err
	}
	tile, idx, err := e.tileFor(row, col)
	if err != nil {
		return 0, err
	}
	te := tile.Elements[e.specIndex]
	switch te.Spec.Type {
	case raster.Int32, raster.Int16:
		v := te.ReadInt(idx)
		if v == int32(te.Spec.FillValue) {
			return math.NaN(), nil
		}
		return float64(v), nil
	}
	return te.ReadFloat(idx), nil
}

// WriteInt stores v at (row, col). The file must be open for writing.
func (e *Element) WriteInt(row, col int, v int32) error {
	if err := e.file.checkPoisoned(); err != nil {
		return err
	}
	if e.file.mode != ReadWrite {
		return fmt.Errorf("%w: element %q", gvrserr.ErrNotOpenForWriting, e.Spec().Name)
	}
	tile, idx, err := e.tileFor(row, col)
	if err != nil {
		return err
	}
	if err := tile.Elements[e.specIndex].WriteInt(idx, v); err != nil {
		return err
	}
	tile.Dirty = true
	return nil
}

// WriteFloat stores v at (row, col). The file must be open for writing.
func (e *Element) WriteFloat(row, col int, v float64) error {
	if err := e.file.checkPoisoned(); err != nil {
		return err
	}
	if e.file.mode != ReadWrite {
		return fmt.Errorf("%w: element %q", gvrserr.ErrNotOpenForWriting, e.Spec().Name)
	}
	tile, idx, err := e.tileFor(row, col)
	if err != nil {
		return err
	}
	if err := tile.Elements[e.specIndex].WriteFloat(idx, v); err != nil {
		return err
	}
	tile.Dirty = true
	return nil
}
