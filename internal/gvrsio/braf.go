// Package gvrsio provides the buffered random-access file (BRAF) primitive
// that the record manager reads and writes through. It is the
// one external collaborator the storage engine cannot treat as a pure
// interface: something has to actually turn offsets into bytes.
package gvrsio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// RandomAccessFile is the little-endian, seekable byte store that the rest
// of the engine reads and writes through. A real file and a fake
// (in-memory) store both satisfy it, which keeps record-manager tests
// free of the filesystem.
type RandomAccessFile interface {
	io.Closer

	Seek(offset int64) error
	Tell() (int64, error)
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error

	ReadU8() (uint8, error)
	ReadI16() (int16, error)
	ReadI32() (int32, error)
	ReadI64() (int64, error)
	ReadF32() (float32, error)
	ReadF64() (float64, error)

	WriteU8(v uint8) error
	WriteI16(v int16) error
	WriteI32(v int32) error
	WriteI64(v int64) error
	WriteF32(v float32) error
	WriteF64(v float64) error

	ReadBytes(buf []byte) error
	WriteBytes(buf []byte) error

	ReadAtBytes(offset int64, buf []byte) error
	WriteAtBytes(offset int64, buf []byte) error

	ReadInt32Array(n int) ([]int32, error)
	WriteInt32Array(v []int32) error
	ReadFloat32Array(n int) ([]float32, error)
	WriteFloat32Array(v []float32) error
}

// FileStore is a RandomAccessFile backed by an *os.File. All multi-byte
// values are little-endian on disk regardless of host byte order.
type FileStore struct {
	f *os.File
}

// Open opens path for read/write, creating it if it does not already exist.
func Open(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gvrsio: opening %s: %w", path, err)
	}
	return &FileStore{f: f}, nil
}

// OpenReadOnly opens an existing file for reading only.
func OpenReadOnly(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("gvrsio: opening %s: %w", path, err)
	}
	return &FileStore{f: f}, nil
}

// Create truncates (or creates) path for a fresh read/write store.
func Create(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("gvrsio: creating %s: %w", path, err)
	}
	return &FileStore{f: f}, nil
}

func (s *FileStore) Close() error { return s.f.Close() }

func (s *FileStore) Seek(offset int64) error {
	_, err := s.f.Seek(offset, io.SeekStart)
	return err
}

func (s *FileStore) Tell() (int64, error) {
	return s.f.Seek(0, io.SeekCurrent)
}

func (s *FileStore) Size() (int64, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *FileStore) Truncate(size int64) error {
	return s.f.Truncate(size)
}

func (s *FileStore) Sync() error {
	return s.f.Sync()
}

func (s *FileStore) ReadU8() (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(s.f, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (s *FileStore) ReadI16() (int16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(s.f, buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(buf[:])), nil
}

func (s *FileStore) ReadI32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(s.f, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (s *FileStore) ReadI64() (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(s.f, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (s *FileStore) ReadF32() (float32, error) {
	v, err := s.ReadI32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

func (s *FileStore) ReadF64() (float64, error) {
	v, err := s.ReadI64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

func (s *FileStore) WriteU8(v uint8) error {
	_, err := s.f.Write([]byte{v})
	return err
}

func (s *FileStore) WriteI16(v int16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(v))
	_, err := s.f.Write(buf[:])
	return err
}

func (s *FileStore) WriteI32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := s.f.Write(buf[:])
	return err
}

func (s *FileStore) WriteI64(v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := s.f.Write(buf[:])
	return err
}

func (s *FileStore) WriteF32(v float32) error {
	return s.WriteI32(int32(math.Float32bits(v)))
}

func (s *FileStore) WriteF64(v float64) error {
	return s.WriteI64(int64(math.Float64bits(v)))
}

func (s *FileStore) ReadBytes(buf []byte) error {
	_, err := io.ReadFull(s.f, buf)
	return err
}

func (s *FileStore) WriteBytes(buf []byte) error {
	_, err := s.f.Write(buf)
	return err
}

func (s *FileStore) ReadAtBytes(offset int64, buf []byte) error {
	_, err := s.f.ReadAt(buf, offset)
	return err
}

func (s *FileStore) WriteAtBytes(offset int64, buf []byte) error {
	_, err := s.f.WriteAt(buf, offset)
	return err
}

func (s *FileStore) ReadInt32Array(n int) ([]int32, error) {
	buf := make([]byte, 4*n)
	if err := s.ReadBytes(buf); err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

func (s *FileStore) WriteInt32Array(v []int32) error {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(x))
	}
	return s.WriteBytes(buf)
}

func (s *FileStore) ReadFloat32Array(n int) ([]float32, error) {
	buf := make([]byte, 4*n)
	if err := s.ReadBytes(buf); err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

func (s *FileStore) WriteFloat32Array(v []float32) error {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return s.WriteBytes(buf)
}
