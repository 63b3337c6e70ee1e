package gvrs

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sort"

	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/record"
)

// dirMetadataName is the reserved metadata name under which the tile
// directory record is stored; it never appears in the user-facing API.
const dirMetadataName = "GvrsTileDirectory"

// MetadataRef identifies one user metadata record: records share a name
// and are distinguished by recordID.
type MetadataRef struct {
	Name     string
	RecordID int32
}

type metaKey struct {
	name     string
	recordID int32
}

func validateMetadataName(name string) error {
	if len(name) == 0 || len(name) > 255 {
		return fmt.Errorf("%w: metadata name must be 1-255 bytes", gvrserr.ErrInvalidSpec)
	}
	if name == dirMetadataName {
		return fmt.Errorf("%w: metadata name %q is reserved", gvrserr.ErrInvalidSpec, name)
	}
	return nil
}

// metadata record payload framing: u8 name length, name bytes, i32
// recordID, then the (gzip-compressed) content.
func encodeMetadataPayload(name string, recordID int32, content []byte) []byte {
	buf := make([]byte, 0, 1+len(name)+4+len(content))
	buf = appendU8String(buf, name)
	buf = appendI32(buf, recordID)
	return append(buf, content...)
}

func decodeMetadataPayload(payload []byte) (name string, recordID int32, content []byte, err error) {
	name, off, err := readU8String(payload, 0)
	if err != nil {
		return "", 0, nil, err
	}
	recordID, off, err = readI32(payload, off)
	if err != nil {
		return "", 0, nil, err
	}
	return name, recordID, payload[off:], nil
}

func gzipContent(raw []byte) []byte {
	var buf bytes.Buffer
	gw, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	_, _ = gw.Write(raw)
	_ = gw.Close()
	return buf.Bytes()
}

func gunzipContent(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: metadata content: %v", gvrserr.ErrCorruptRecord, err)
	}
	defer gr.Close()
	// The record payload ends in zero padding; stop after the first member.
	gr.Multistream(false)
	return io.ReadAll(gr)
}

// WriteMetadata stores content under (name, recordID), replacing any prior
// record with the same key. Content is gzip-compressed before it is framed
// into a metadata record.
func (f *File) WriteMetadata(name string, recordID int32, content []byte) error {
	if err := f.checkPoisoned(); err != nil {
		return err
	}
	if f.mode != ReadWrite {
		return fmt.Errorf("%w: metadata %q", gvrserr.ErrNotOpenForWriting, name)
	}
	if err := validateMetadataName(name); err != nil {
		return err
	}
	payload := encodeMetadataPayload(name, recordID, gzipContent(content))
	key := metaKey{name: name, recordID: recordID}
	offset, err := f.rec.Rewrite(f.metaIndex[key], record.KindMetadata, payload)
	if err != nil {
		f.poison(-1, err)
		return err
	}
	f.metaIndex[key] = offset
	return nil
}

// ReadMetadata returns the content stored under (name, recordID). ok is
// false if no such record exists.
func (f *File) ReadMetadata(name string, recordID int32) (content []byte, ok bool, err error) {
	if err := f.checkPoisoned(); err != nil {
		return nil, false, err
	}
	offset, exists := f.metaIndex[metaKey{name: name, recordID: recordID}]
	if !exists || name == dirMetadataName {
		return nil, false, nil
	}
	_, payload, err := f.rec.Read(offset)
	if err != nil {
		return nil, false, err
	}
	_, _, compressed, err := decodeMetadataPayload(payload)
	if err != nil {
		return nil, false, err
	}
	content, err = gunzipContent(compressed)
	if err != nil {
		return nil, false, err
	}
	return content, true, nil
}

// DeleteMetadata frees the record stored under (name, recordID). Deleting
// a key that does not exist is a no-op.
func (f *File) DeleteMetadata(name string, recordID int32) error {
	if err := f.checkPoisoned(); err != nil {
		return err
	}
	if f.mode != ReadWrite {
		return fmt.Errorf("%w: metadata %q", gvrserr.ErrNotOpenForWriting, name)
	}
	if err := validateMetadataName(name); err != nil {
		return err
	}
	key := metaKey{name: name, recordID: recordID}
	offset, exists := f.metaIndex[key]
	if !exists {
		return nil
	}
	if err := f.rec.Free(offset); err != nil {
		return err
	}
	delete(f.metaIndex, key)
	return nil
}

// MetadataRefs lists every user metadata record, sorted by name then
// recordID. The reserved tile-directory entry is excluded.
func (f *File) MetadataRefs() []MetadataRef {
	out := make([]MetadataRef, 0, len(f.metaIndex))
	for key := range f.metaIndex {
		if key.name == dirMetadataName {
			continue
		}
		out = append(out, MetadataRef{Name: key.name, RecordID: key.recordID})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].RecordID < out[j].RecordID
	})
	return out
}
