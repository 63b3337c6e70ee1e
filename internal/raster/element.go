// Package raster implements the typed cell elements that make up a GVRS
// tile: their declared ranges, fill values, and the standard (uncompressed)
// encode/decode format each type shares with the codec layer.
package raster

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

// DataType identifies the storage representation of one element plane.
type DataType uint8

const (
	Int32 DataType = iota
	Int16
	Float32
	IntCodedFloat32
)

func (t DataType) String() string {
	switch t {
	case Int32:
		return "Int32"
	case Int16:
		return "Int16"
	case Float32:
		return "Float32"
	case IntCodedFloat32:
		return "IntCodedFloat32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the standard-format width of one stored sample.
func (t DataType) BytesPerSample() int {
	switch t {
	case Int16:
		return 2
	default:
		return 4
	}
}

const maxNameLength = 32

var nameTailRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidName reports whether name satisfies the element identifier syntax:
// first character a letter, remaining characters letters/digits/underscore,
// at most 32 characters.
func ValidName(name string) bool {
	if len(name) == 0 || len(name) > maxNameLength {
		return false
	}
	if !unicode.IsLetter(rune(name[0])) {
		return false
	}
	return nameTailRE.MatchString(name)
}

// Spec is the persisted, declarative description of one element: its type,
// valid range, fill value, and free-form documentation fields.
type Spec struct {
	Name        string
	Type        DataType
	MinValue    float64
	MaxValue    float64
	FillValue   float64
	Scale       float64 // IntCodedFloat32 only
	Offset      float64 // IntCodedFloat32 only
	Description string
	Label       string
	Units       string
}

// Validate checks the name syntax and IntCodedFloat32 scale requirement.
func (s Spec) Validate() error {
	if !ValidName(s.Name) {
		return fmt.Errorf("%w: element name %q must start with a letter and contain only letters/digits/underscore, <=32 chars", gvrserr.ErrInvalidSpec, s.Name)
	}
	if s.Type == IntCodedFloat32 && s.Scale == 0 {
		return fmt.Errorf("%w: element %q: IntCodedFloat32 requires a nonzero scale", gvrserr.ErrInvalidSpec, s.Name)
	}
	return nil
}

// ToStoredInt converts a value to its IntCodedFloat32 stored representation:
// round(value*scale + offset).
func (s Spec) ToStoredInt(value float64) int32 {
	return int32(roundHalfAwayFromZero(value*s.Scale + s.Offset))
}

// FromStoredInt reverses ToStoredInt.
func (s Spec) FromStoredInt(stored int32) float64 {
	return (float64(stored) - s.Offset) / s.Scale
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
