// Package codec implements the pluggable compressor interface used to
// compress and decompress individual tile element planes, plus the
// CodecMaster registry that dispatches by a per-plane tag byte.
package codec

import (
	"fmt"
	"regexp"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

// Codec is a named, registered compressor for one element plane. Encode may
// decline (returning ok=false) when it judges the standard layout smaller;
// the caller then falls back to an uncompressed dump. A read-only host may
// carry a Codec with no working encoder (EncodeInts/EncodeFloats always
// declining) so long as its decoder is present.
type Codec interface {
	// Name is the registered identifier, <=16 ASCII identifier characters.
	Name() string

	EncodeInts(nRows, nCols int, values []int32) (data []byte, ok bool, err error)
	DecodeInts(nRows, nCols int, data []byte) ([]int32, error)

	EncodeFloats(nRows, nCols int, values []float32) (data []byte, ok bool, err error)
	DecodeFloats(nRows, nCols int, data []byte) ([]float32, error)
}

const maxNameLength = 16

var nameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidName reports whether name satisfies the codec identifier syntax.
func ValidName(name string) bool {
	return len(name) > 0 && len(name) <= maxNameLength && nameRE.MatchString(name)
}

// Master is the ordered codec registry: a codec's tag byte is its position
// in the registration order.
type Master struct {
	byTag  []Codec
	byName map[string]uint8
}

// NewMaster returns an empty registry.
func NewMaster() *Master {
	return &Master{byName: make(map[string]uint8)}
}

// Register appends codec to the registry, assigning it the next tag byte.
func (m *Master) Register(c Codec) error {
	if !ValidName(c.Name()) {
		return fmt.Errorf("%w: codec name %q must be <=16 identifier characters", gvrserr.ErrInvalidSpec, c.Name())
	}
	if _, dup := m.byName[c.Name()]; dup {
		return fmt.Errorf("%w: codec %q already registered", gvrserr.ErrInvalidSpec, c.Name())
	}
	if len(m.byTag) >= 255 {
		return fmt.Errorf("%w: codec registry full", gvrserr.ErrInvalidSpec)
	}
	tag := uint8(len(m.byTag))
	m.byTag = append(m.byTag, c)
	m.byName[c.Name()] = tag
	return nil
}

// Names returns the codecs in tag order, for persisting in the file header.
func (m *Master) Names() []string {
	out := make([]string, len(m.byTag))
	for i, c := range m.byTag {
		out[i] = c.Name()
	}
	return out
}

// ByTag resolves a tag byte to its codec. The second result is false when
// no codec is registered at that tag (CodecMissing for decode purposes).
func (m *Master) ByTag(tag uint8) (Codec, bool) {
	if int(tag) >= len(m.byTag) {
		return nil, false
	}
	return m.byTag[tag], true
}

// ByName resolves a codec by its registered name.
func (m *Master) ByName(name string) (Codec, uint8, bool) {
	tag, ok := m.byName[name]
	if !ok {
		return nil, 0, false
	}
	return m.byTag[tag], tag, true
}

// Require resolves tag to a codec or returns ErrCodecMissing.
func (m *Master) Require(tag uint8) (Codec, error) {
	c, ok := m.ByTag(tag)
	if !ok {
		return nil, fmt.Errorf("%w: no codec registered at tag %d", gvrserr.ErrCodecMissing, tag)
	}
	return c, nil
}
