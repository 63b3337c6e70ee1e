// Package inspector implements a read-only walker over a GVRS file that
// validates record framing and checksums without going through the record
// manager's allocator, downgrading CorruptRecord into a structured report
// instead of propagating it.
package inspector

import (
	"errors"
	"fmt"

	"github.com/gwlucastrig/gvrs-go/internal/checksum"
	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/gvrsio"
)

// RecordEntry describes one record found during the walk.
type RecordEntry struct {
	Offset int64
	Size   uint32
	Kind   int32 // >=0 tile index; -1 free; -2 metadata; -3 filespace
}

// Problem is one structural or checksum defect found at a given offset.
type Problem struct {
	Offset int64
	Detail string
	IoErr  bool // true if this problem was an underlying I/O failure rather than a structural/checksum defect
}

// Report summarizes one inspection pass.
type Report struct {
	Path             string
	HeaderOK         bool
	HeaderDetail     string
	ChecksumsEnabled bool
	Records          []RecordEntry
	Problems         []Problem
}

// OK reports whether the file parsed cleanly: a readable header and no
// structural or checksum problems among the records that were reached.
func (r Report) OK() bool {
	return r.HeaderOK && len(r.Problems) == 0
}

const crcSize = 4
const minRecordSize = 16

// Inspect walks path from its header to end-of-file, validating every
// record's framing (and checksum, when checksumsEnabled) without mutating
// anything. A corrupt record never aborts the walk by itself — only a
// record whose size field cannot be trusted stops the scan, since every
// subsequent offset is computed from it.
func Inspect(path string, headerSize int64, checksumsEnabled bool) (Report, error) {
	report := Report{Path: path, ChecksumsEnabled: checksumsEnabled}

	store, err := gvrsio.OpenReadOnly(path)
	if err != nil {
		return report, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	defer store.Close()

	fileSize, err := store.Size()
	if err != nil {
		return report, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}

	report.HeaderOK = true
	offset := headerSize
	for offset < fileSize {
		size, kind, isEnd, herr := readRecordHeader(store, offset, fileSize)
		if herr != nil {
			report.Problems = append(report.Problems, newProblem(offset, herr))
			break
		}
		if isEnd {
			break
		}
		report.Records = append(report.Records, RecordEntry{Offset: offset, Size: size, Kind: kind})

		if cerr := verifyRecordChecksum(store, offset, size, checksumsEnabled); cerr != nil {
			report.Problems = append(report.Problems, newProblem(offset, cerr))
		}
		offset += int64(size)
	}
	return report, nil
}

func newProblem(offset int64, err error) Problem {
	return Problem{Offset: offset, Detail: err.Error(), IoErr: errors.Is(err, gvrserr.ErrIoError)}
}

func readRecordHeader(store *gvrsio.FileStore, offset, fileSize int64) (size uint32, kind int32, isEnd bool, err error) {
	if err := store.Seek(offset); err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	rawSize, err := store.ReadI32()
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	size = uint32(rawSize)
	if size == 0 {
		if offset == fileSize {
			return 0, 0, true, nil
		}
		return 0, 0, false, fmt.Errorf("%w: zero-length record at offset %d is not at end of file", gvrserr.ErrCorruptRecord, offset)
	}
	if size < minRecordSize {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d has size %d, minimum is %d", gvrserr.ErrCorruptRecord, offset, size, minRecordSize)
	}
	if size%8 != 0 {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d has size %d, not a multiple of 8", gvrserr.ErrCorruptRecord, offset, size)
	}
	if int64(size) > fileSize-offset {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d claims size %d beyond end of file", gvrserr.ErrCorruptRecord, offset, size)
	}
	kind, err = store.ReadI32()
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	return size, kind, false, nil
}

// verifyRecordChecksum re-reads the whole record body and checks its
// trailing CRC-32C. A checksum-disabled file carries no trailer to check,
// so this is vacuously fine when checksumsEnabled is false.
func verifyRecordChecksum(store *gvrsio.FileStore, offset int64, size uint32, checksumsEnabled bool) error {
	if !checksumsEnabled {
		return nil
	}
	if size < minRecordSize+crcSize {
		return fmt.Errorf("%w: record at offset %d too small to carry a checksum trailer", gvrserr.ErrCorruptRecord, offset)
	}
	body := make([]byte, size)
	if err := store.ReadAtBytes(offset, body); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if !checksum.Verify(body) {
		return fmt.Errorf("%w: checksum mismatch in record at offset %d", gvrserr.ErrCorruptRecord, offset)
	}
	return nil
}

// TileProblems filters a report's problems down to those whose offset
// matches a known tile record, reporting by tileIndex.
func TileProblems(report Report) map[int][]string {
	byOffset := make(map[int64]int, len(report.Records))
	for _, rec := range report.Records {
		if rec.Kind >= 0 {
			byOffset[rec.Offset] = int(rec.Kind)
		}
	}
	out := make(map[int][]string)
	for _, p := range report.Problems {
		if idx, ok := byOffset[p.Offset]; ok {
			out[idx] = append(out[idx], p.Detail)
		}
	}
	return out
}
