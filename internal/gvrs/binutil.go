package gvrs

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
)

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendI32(buf []byte, v int32) []byte {
	return appendU32(buf, uint32(v))
}

func appendI64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func appendF32(buf []byte, v float32) []byte {
	return appendU32(buf, math.Float32bits(v))
}

func appendString(buf []byte, s string) []byte {
	buf = appendU16(buf, uint16(len(s)))
	return append(buf, s...)
}

// appendU8String writes a u8-length-prefixed string, the framing used
// for element and codec names.
func appendU8String(buf []byte, s string) []byte {
	return append(append(buf, uint8(len(s))), s...)
}

func readU8String(buf []byte, off int) (string, int, error) {
	if off >= len(buf) {
		return "", off, fmt.Errorf("%w: truncated u8-length string", gvrserr.ErrCorruptRecord)
	}
	n := int(buf[off])
	off++
	if off+n > len(buf) {
		return "", off, fmt.Errorf("%w: truncated u8-length string", gvrserr.ErrCorruptRecord)
	}
	return string(buf[off : off+n]), off + n, nil
}

func readU16(buf []byte, off int) (uint16, int, error) {
	if off+2 > len(buf) {
		return 0, off, fmt.Errorf("%w: truncated u16 field", gvrserr.ErrCorruptRecord)
	}
	return binary.LittleEndian.Uint16(buf[off:]), off + 2, nil
}

func readU32(buf []byte, off int) (uint32, int, error) {
	if off+4 > len(buf) {
		return 0, off, fmt.Errorf("%w: truncated u32 field", gvrserr.ErrCorruptRecord)
	}
	return binary.LittleEndian.Uint32(buf[off:]), off + 4, nil
}

func readI32(buf []byte, off int) (int32, int, error) {
	v, off, err := readU32(buf, off)
	return int32(v), off, err
}

func readI64(buf []byte, off int) (int64, int, error) {
	if off+8 > len(buf) {
		return 0, off, fmt.Errorf("%w: truncated i64 field", gvrserr.ErrCorruptRecord)
	}
	return int64(binary.LittleEndian.Uint64(buf[off:])), off + 8, nil
}

func readF32(buf []byte, off int) (float32, int, error) {
	v, off, err := readU32(buf, off)
	if err != nil {
		return 0, off, err
	}
	return math.Float32frombits(v), off, nil
}

func readString(buf []byte, off int) (string, int, error) {
	n, off, err := readU16(buf, off)
	if err != nil {
		return "", off, err
	}
	if off+int(n) > len(buf) {
		return "", off, fmt.Errorf("%w: truncated string field", gvrserr.ErrCorruptRecord)
	}
	s := string(buf[off : off+int(n)])
	return s, off + int(n), nil
}
