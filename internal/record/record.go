// Package record implements the GVRS record manager: it places
// variable-length, optionally checksummed records in the backing file,
// reuses freed space with a best-fit free list, and enforces record
// framing on read.
package record

import (
	"fmt"
	"sort"

	"github.com/gwlucastrig/gvrs-go/internal/checksum"
	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/gvrsio"
)

// Record kinds.
const (
	KindFree      int32 = -1
	KindMetadata  int32 = -2
	KindFilespace int32 = -3
)

// MinFreeBlockSize is the smallest remainder worth re-inserting into the
// free list as its own block; anything smaller is absorbed as slack.
const MinFreeBlockSize = 16

const headerSize = 8 // u32 recordSize + i32 recordKind
const crcSize = 4

// freeEntry is one node of the free list, kept sorted by size then offset.
type freeEntry struct {
	offset int64
	size   uint32
}

// Manager owns record placement and the free list for one open file.
type Manager struct {
	io         gvrsio.RandomAccessFile
	headerSize int64 // bytes reserved for the GVRS file header, records start after this
	checksums  bool
	free       []freeEntry // sorted ascending by (size, offset)
	fileSize   int64
}

// NewManager creates a record manager for a freshly created file whose
// header occupies headerSize bytes.
func NewManager(f gvrsio.RandomAccessFile, headerSize int64, checksums bool) *Manager {
	return &Manager{io: f, headerSize: headerSize, checksums: checksums, fileSize: headerSize}
}

// SetFileSize informs the manager of the current file size, e.g. after
// opening an existing file and scanning it.
func (m *Manager) SetFileSize(size int64) { m.fileSize = size }

// FileSize returns the manager's view of the current file size.
func (m *Manager) FileSize() int64 { return m.fileSize }

// AddFreeRecord registers an existing free record discovered by scanning
// the file (used when opening an existing file).
func (m *Manager) AddFreeRecord(offset int64, size uint32) {
	m.insertFree(freeEntry{offset: offset, size: size})
}

func roundUp8(n int64) int64 { return (n + 7) &^ 7 }

// recordOverhead returns the number of non-payload bytes a record of this
// manager's checksum policy carries.
func (m *Manager) recordOverhead() int64 {
	if m.checksums {
		return headerSize + crcSize
	}
	return headerSize
}

// minRecordSize is the smallest legal recordSize.
const minRecordSize = 16

// Write allocates space for a new record, writes it, and returns its file
// offset.
func (m *Manager) Write(kind int32, payload []byte) (int64, error) {
	total := roundUp8(int64(len(payload)) + m.recordOverhead())
	if total < minRecordSize {
		total = minRecordSize
	}
	offset, actual, err := m.allocate(uint32(total))
	if err != nil {
		return 0, err
	}
	if err := m.writeAt(offset, actual, kind, payload); err != nil {
		return 0, err
	}
	return offset, nil
}

// Rewrite frees oldOffset (if nonzero) then writes a new record, which may
// land at a different offset because payload size may have changed.
func (m *Manager) Rewrite(oldOffset int64, kind int32, payload []byte) (int64, error) {
	if oldOffset != 0 {
		if err := m.Free(oldOffset); err != nil {
			return 0, err
		}
	}
	return m.Write(kind, payload)
}

// allocate finds or creates a file region of at least `total` bytes and
// returns its offset plus the actual on-disk size the caller must record in
// the record header. Best-fit over the free list; appends at end of file
// when no block fits.
func (m *Manager) allocate(total uint32) (offset int64, actual uint32, err error) {
	idx := sort.Search(len(m.free), func(i int) bool { return m.free[i].size >= total })
	if idx < len(m.free) {
		fe := m.free[idx]
		m.free = append(m.free[:idx], m.free[idx+1:]...)
		remainder := fe.size - total
		if remainder >= MinFreeBlockSize {
			remOffset := fe.offset + int64(total)
			// The remainder needs its own record header on disk: the
			// sequential record scan on reopen lands at remOffset and
			// reads whatever bytes are there as a header.
			if err := m.writeFreeRecord(remOffset, remainder); err != nil {
				return 0, 0, err
			}
			m.insertFree(freeEntry{offset: remOffset, size: remainder})
			return fe.offset, total, nil
		}
		// Slack absorbed: the record physically occupies the whole free
		// block, so its header must claim fe.size, not just `total`, or the
		// absorbed tail becomes unaccounted space on every later free.
		return fe.offset, fe.size, nil
	}
	o := m.fileSize
	m.fileSize += int64(total)
	return o, total, nil
}

func (m *Manager) insertFree(fe freeEntry) {
	fe = m.coalesce(fe)
	idx := sort.Search(len(m.free), func(i int) bool {
		if m.free[i].size != fe.size {
			return m.free[i].size >= fe.size
		}
		return m.free[i].offset >= fe.offset
	})
	m.free = append(m.free, freeEntry{})
	copy(m.free[idx+1:], m.free[idx:])
	m.free[idx] = fe
}

// coalesce merges fe with any free block immediately adjacent to it.
func (m *Manager) coalesce(fe freeEntry) freeEntry {
	for {
		merged := false
		for i, other := range m.free {
			if other.offset+int64(other.size) == fe.offset {
				fe.offset = other.offset
				fe.size += other.size
				m.removeFreeAt(i)
				merged = true
				break
			}
			if fe.offset+int64(fe.size) == other.offset {
				fe.size += other.size
				m.removeFreeAt(i)
				merged = true
				break
			}
		}
		if !merged {
			return fe
		}
	}
}

func (m *Manager) removeFreeAt(i int) {
	m.free = append(m.free[:i], m.free[i+1:]...)
}

// Free marks the record at offset as free, merging with adjacent free
// blocks. The record's own recordSize field tells the manager how large
// the block is.
func (m *Manager) Free(offset int64) error {
	size, _, _, err := m.readHeader(offset)
	if err != nil {
		return err
	}
	if err := m.writeFreeRecord(offset, size); err != nil {
		return err
	}
	m.insertFree(freeEntry{offset: offset, size: size})
	return nil
}

// writeFreeRecord stamps a free-record header over the block at offset,
// leaving the stale payload bytes in place, and refreshes the CRC trailer
// so the block still verifies on a later inspection pass.
func (m *Manager) writeFreeRecord(offset int64, size uint32) error {
	if err := m.io.Seek(offset); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := m.io.WriteI32(int32(size)); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := m.io.WriteI32(KindFree); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if !m.checksums {
		return nil
	}
	body := make([]byte, int(size)-crcSize)
	if err := m.io.ReadAtBytes(offset, body); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	crc := checksum.Of(body)
	if err := m.io.Seek(offset + int64(size) - crcSize); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := m.io.WriteI32(int32(crc)); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	return nil
}

// FreeListTotal returns the sum of all free block sizes. Allocated plus
// free totals account for every byte past the file header.
func (m *Manager) FreeListTotal() int64 {
	var total int64
	for _, fe := range m.free {
		total += int64(fe.size)
	}
	return total
}

func (m *Manager) writeAt(offset int64, total uint32, kind int32, payload []byte) error {
	if err := m.io.Seek(offset); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	// recordSize is unsigned on disk; WriteI32 reinterprets the bit pattern,
	// which round-trips correctly since total never sets the sign bit at
	// supported file sizes (records are capped well under 2 GiB).
	if err := m.io.WriteI32(int32(total)); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := m.io.WriteI32(kind); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := m.io.WriteBytes(payload); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	padding := int(total) - headerSize - len(payload)
	if m.checksums {
		padding -= crcSize
	}
	if padding > 0 {
		if err := m.io.WriteBytes(make([]byte, padding)); err != nil {
			return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
		}
	}
	if m.checksums {
		body := make([]byte, int(total)-crcSize)
		if err := m.io.ReadAtBytes(offset, body); err != nil {
			return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
		}
		crc := checksum.Of(body)
		if err := m.io.Seek(offset + int64(total) - crcSize); err != nil {
			return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
		}
		if err := m.io.WriteI32(int32(crc)); err != nil {
			return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
		}
	}
	return nil
}

// readHeader reads and validates the (recordSize, recordKind) pair at offset.
func (m *Manager) readHeader(offset int64) (size uint32, kind int32, isEnd bool, err error) {
	if err := m.io.Seek(offset); err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	rawSize, err := m.io.ReadI32()
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	size = uint32(rawSize)
	if size == 0 {
		if offset == m.fileSize {
			return 0, 0, true, nil
		}
		return 0, 0, false, fmt.Errorf("%w: zero-length record at offset %d (not end of file)", gvrserr.ErrCorruptRecord, offset)
	}
	if size < 16 {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d has size %d, minimum is 16", gvrserr.ErrCorruptRecord, offset, size)
	}
	if size%8 != 0 {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d has size %d, not a multiple of 8", gvrserr.ErrCorruptRecord, offset, size)
	}
	if int64(size) > m.fileSize-offset {
		return 0, 0, false, fmt.Errorf("%w: record at offset %d claims size %d beyond end of file", gvrserr.ErrCorruptRecord, offset, size)
	}
	kind, err = m.io.ReadI32()
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	return size, kind, false, nil
}

// Read returns the kind and payload bytes of the record at offset,
// verifying the checksum trailer when checksums are enabled. The payload
// is every byte between the header and the trailer, so it includes the
// zero padding Write added to reach a multiple of 8.
func (m *Manager) Read(offset int64) (kind int32, payload []byte, err error) {
	size, kind, isEnd, err := m.readHeader(offset)
	if err != nil {
		return 0, nil, err
	}
	if isEnd {
		return 0, nil, fmt.Errorf("%w: no record at offset %d", gvrserr.ErrCorruptRecord, offset)
	}
	payloadEnd := int64(size)
	if m.checksums {
		payloadEnd -= crcSize
		body := make([]byte, size)
		if err := m.io.ReadAtBytes(offset, body); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
		}
		if !checksum.Verify(body) {
			return 0, nil, fmt.Errorf("%w: checksum mismatch for record at offset %d", gvrserr.ErrCorruptRecord, offset)
		}
		return kind, body[headerSize:payloadEnd], nil
	}
	payload = make([]byte, payloadEnd-headerSize)
	if err := m.io.ReadAtBytes(offset+headerSize, payload); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	return kind, payload, nil
}

// RecordSize returns the on-disk recordSize field at offset, without
// reading the payload. Used by the inspector to walk records.
func (m *Manager) RecordSize(offset int64) (size uint32, kind int32, isEnd bool, err error) {
	return m.readHeader(offset)
}
