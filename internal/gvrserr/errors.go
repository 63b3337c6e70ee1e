// Package gvrserr defines the sentinel error kinds shared across the GVRS
// storage engine, so callers can use errors.Is regardless of which layer
// produced the failure.
package gvrserr

import "errors"

var (
	// ErrIoError wraps an underlying storage read/write failure.
	ErrIoError = errors.New("gvrs: io error")
	// ErrCorruptRecord indicates invalid record framing or a checksum mismatch.
	ErrCorruptRecord = errors.New("gvrs: corrupt record")
	// ErrUnsupportedFormat indicates a magic or version mismatch.
	ErrUnsupportedFormat = errors.New("gvrs: unsupported format")
	// ErrInvalidSpec indicates an element name, range, or tile shape violates constraints.
	ErrInvalidSpec = errors.New("gvrs: invalid spec")
	// ErrNotOpenForWriting indicates a mutation was attempted on a read-only handle.
	ErrNotOpenForWriting = errors.New("gvrs: not open for writing")
	// ErrValueOutOfRange indicates a write value was rejected by range/NaN policy.
	ErrValueOutOfRange = errors.New("gvrs: value out of range")
	// ErrCodecMissing indicates a required decoder is not registered.
	ErrCodecMissing = errors.New("gvrs: codec missing")
	// ErrPoisoned indicates the file handle refuses further mutations after a fatal error.
	ErrPoisoned = errors.New("gvrs: file poisoned")
)
