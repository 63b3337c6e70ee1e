package gvrs

import (
	"fmt"
	"sync"

	"github.com/gwlucastrig/gvrs-go/internal/assistant"
	"github.com/gwlucastrig/gvrs-go/internal/cache"
	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/directory"
	"github.com/gwlucastrig/gvrs-go/internal/gvrserr"
	"github.com/gwlucastrig/gvrs-go/internal/gvrsio"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
	"github.com/gwlucastrig/gvrs-go/internal/record"
)

// Mode selects whether a File accepts writes.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Options configures a newly opened or created File.
type Options struct {
	CacheSizeBytes int64 // 0 defaults to CacheSizeMedium
	UseAssistant   bool
	Verbose        bool
}

func (o Options) cacheSize() int64 {
	if o.CacheSizeBytes > 0 {
		return o.CacheSizeBytes
	}
	return cache.CacheSizeMedium
}

// state is the file's position in the open/close lifecycle.
type state int

const (
	stateOpen state = iota
	stateClosing
	stateClosed
)

// File is an open GVRS raster store: the header/spec, the record manager,
// the tile directory, the tile cache, and (optionally) the background
// decompression assistant, all wired together.
type File struct {
	path       string
	mode       Mode
	io         *gvrsio.FileStore
	spec       FileSpec
	master     *codec.Master
	codecNames []string // the header's persisted codec table, fixed at open

	headerSize int64
	rec        *record.Manager
	dir        *directory.Directory
	dirOffset  int64 // 0 until the directory has been persisted at least once

	cache     *cache.Cache
	assistant *assistant.Assistant

	specIndex map[string]int
	metaIndex map[metaKey]int64

	mu        sync.Mutex
	st        state
	poisoned  bool
	poisonErr error
}

// Create makes a new GVRS file at path with the given spec, truncating any
// existing file.
func Create(path string, spec FileSpec, master *codec.Master, opts Options) (*File, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	store, err := gvrsio.Create(path)
	if err != nil {
		return nil, err
	}
	codecNames := master.Names()
	hdr := header{spec: spec, codecNames: codecNames}
	headerBytes := serializeHeader(hdr, spec.ChecksumsEnabled)
	if err := store.WriteBytes(headerBytes); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}

	f := newFile(path, store, ReadWrite, spec, master, int64(len(headerBytes)), opts)
	f.codecNames = codecNames
	f.rec = record.NewManager(store, f.headerSize, spec.ChecksumsEnabled)
	f.dir = directory.New(int(spec.NRowsOfTiles()), int(spec.NColsOfTiles()))
	f.cache = cache.New(f, f.assistant, opts.cacheSize())
	return f, nil
}

// Open opens an existing GVRS file at path.
func Open(path string, mode Mode, master *codec.Master, opts Options) (*File, error) {
	var store *gvrsio.FileStore
	var err error
	if mode == ReadOnly {
		store, err = gvrsio.OpenReadOnly(path)
	} else {
		store, err = gvrsio.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gvrserr.ErrIoError, err)
	}

	size, err := store.Size()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	if err := store.Seek(0); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	// The header's own length isn't known ahead of parsing it, so this reads
	// a generous prefix and lets deserializeHeader report truncation.
	prefixLen := size
	if prefixLen > 1<<16 {
		prefixLen = 1 << 16
	}
	prefix := make([]byte, prefixLen)
	if err := store.ReadBytes(prefix); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	hdr, _, err := deserializeHeader(prefix)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := validateCodecTable(hdr.codecNames, master, mode); err != nil {
		_ = store.Close()
		return nil, err
	}

	f := newFile(path, store, mode, hdr.spec, master, 0, opts)
	f.codecNames = hdr.codecNames
	f.headerSize = int64(HeaderSize(hdr.spec, hdr.codecNames))

	f.rec = record.NewManager(store, f.headerSize, hdr.spec.ChecksumsEnabled)
	f.rec.SetFileSize(size)
	f.dirOffset = hdr.directoryOffset

	nRowsOfTiles := int(hdr.spec.NRowsOfTiles())
	nColsOfTiles := int(hdr.spec.NColsOfTiles())
	if hdr.directoryOffset != 0 {
		_, payload, rerr := f.rec.Read(hdr.directoryOffset)
		if rerr != nil {
			_ = store.Close()
			return nil, rerr
		}
		_, _, content, derr := decodeMetadataPayload(payload)
		if derr != nil {
			_ = store.Close()
			return nil, derr
		}
		dir, derr := directory.Restore(content, nRowsOfTiles, nColsOfTiles)
		if derr != nil {
			_ = store.Close()
			return nil, derr
		}
		f.dir = dir
	} else {
		f.dir = directory.New(nRowsOfTiles, nColsOfTiles)
	}

	if err := f.scanRecords(size); err != nil {
		_ = store.Close()
		return nil, err
	}

	f.cache = cache.New(f, f.assistant, opts.cacheSize())
	return f, nil
}

// validateCodecTable checks that the caller's registry lines up, tag for
// tag, with the codec table persisted in the header. A read-only host may
// carry fewer codecs than the file lists (decoding a tile that needs one of
// the missing tags reports CodecMissing then); a writable host must match
// exactly, since tiles it writes are tagged by registry position and the
// table is rewritten on close.
func validateCodecTable(fileNames []string, master *codec.Master, mode Mode) error {
	registered := master.Names()
	if mode == ReadWrite && len(registered) != len(fileNames) {
		return fmt.Errorf("%w: file lists codecs %v but registry holds %v; writable opens require an identical registry", gvrserr.ErrCodecMissing, fileNames, registered)
	}
	for i, name := range fileNames {
		if i >= len(registered) {
			break
		}
		if registered[i] != name {
			return fmt.Errorf("%w: codec %q persisted at tag %d, but registry has %q there", gvrserr.ErrCodecMissing, name, i, registered[i])
		}
	}
	return nil
}

func newFile(path string, store *gvrsio.FileStore, mode Mode, spec FileSpec, master *codec.Master, headerSize int64, opts Options) *File {
	f := &File{
		path:       path,
		mode:       mode,
		io:         store,
		spec:       spec,
		master:     master,
		headerSize: headerSize,
		specIndex:  make(map[string]int, len(spec.Elements)),
		metaIndex:  make(map[metaKey]int64),
	}
	for i, e := range spec.Elements {
		f.specIndex[e.Name] = i
	}
	if opts.UseAssistant {
		f.assistant = assistant.New(master, f.poison, opts.Verbose)
	}
	return f
}

// scanRecords walks every record from the end of the header to the end of
// the file, registering each KindFree record with the record manager (so
// reopening rebuilds allocator state rather than leaking space) and
// restoring the metadata index from each KindMetadata record.
func (f *File) scanRecords(fileSize int64) error {
	offset := f.headerSize
	for offset < fileSize {
		size, kind, isEnd, err := f.rec.RecordSize(offset)
		if err != nil {
			return err
		}
		if isEnd {
			break
		}
		switch kind {
		case record.KindFree:
			f.rec.AddFreeRecord(offset, size)
		case record.KindMetadata:
			_, payload, rerr := f.rec.Read(offset)
			if rerr != nil {
				return rerr
			}
			name, recordID, _, derr := decodeMetadataPayload(payload)
			if derr != nil {
				return derr
			}
			f.metaIndex[metaKey{name: name, recordID: recordID}] = offset
		}
		offset += int64(size)
	}
	return nil
}

func (f *File) poison(tileIndex int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.poisoned {
		f.poisoned = true
		if tileIndex >= 0 {
			f.poisonErr = fmt.Errorf("gvrs: fatal error on tile %d: %w", tileIndex, err)
		} else {
			f.poisonErr = fmt.Errorf("gvrs: fatal error: %w", err)
		}
	}
}

func (f *File) checkPoisoned() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.poisoned {
		return fmt.Errorf("%w: %v", gvrserr.ErrPoisoned, f.poisonErr)
	}
	return nil
}

// Spec returns the raster's declared geometry and element list.
func (f *File) Spec() FileSpec { return f.spec }

// HeaderSize returns the byte length of this file's on-disk header, i.e.
// the offset where its first record begins.
func (f *File) HeaderSize() int64 { return f.headerSize }

// Element returns a typed accessor for the named element.
func (f *File) Element(name string) (*Element, error) {
	idx, ok := f.specIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: no such element %q", gvrserr.ErrInvalidSpec, name)
	}
	return &Element{file: f, specIndex: idx, pinnedTile: -1}, nil
}

// Prefetch submits tileIndex's raw record payload to the background
// assistant for decoding ahead of need. A no-op if the assistant is
// disabled or the tile has never been written.
func (f *File) Prefetch(tileIndex int) error {
	if f.assistant == nil {
		return nil
	}
	offset := f.dir.Get(tileIndex)
	if offset == 0 {
		return nil
	}
	_, payload, err := f.rec.Read(offset)
	if err != nil {
		return err
	}
	f.assistant.Submit(assistant.Job{
		TileIndex: tileIndex,
		Specs:     f.spec.Elements,
		NRows:     int(f.spec.TileRows),
		NCols:     int(f.spec.TileCols),
		Payload:   payload,
	})
	return nil
}

// isPinnable reports whether tileIndex is still resident in the cache, so
// the element facade can tell a stale pinned reference from a live one.
func (f *File) isPinnable(tileIndex int) bool {
	return f.cache.Contains(tileIndex)
}

// getTile returns the tile for tileIndex, creating and caching a
// fill-initialized tile if it has never been written.
func (f *File) getTile(tileIndex int) (*raster.Tile, error) {
	// A cached tile may hold dirty writes newer than any decode the
	// assistant finished, so the cache is consulted first.
	if f.assistant != nil && !f.cache.Contains(tileIndex) {
		if r, ok := f.assistant.WaitFor(tileIndex); ok {
			if r.Err != nil {
				return nil, r.Err
			}
			if err := f.cache.Put(r.Tile); err != nil {
				return nil, err
			}
			return r.Tile, nil
		}
	}
	tile, ok, err := f.cache.GetOrLoad(tileIndex)
	if err != nil {
		return nil, err
	}
	if ok {
		return tile, nil
	}
	tile = raster.NewTile(tileIndex, int(f.spec.TileRows), int(f.spec.TileCols), f.spec.Elements)
	if err := f.cache.Put(tile); err != nil {
		return nil, err
	}
	return tile, nil
}

// LoadTile implements cache.Loader: a synchronous read-and-decode of
// tileIndex's on-disk record.
func (f *File) LoadTile(tileIndex int) (*raster.Tile, bool, error) {
	offset := f.dir.Get(tileIndex)
	if offset == 0 {
		return nil, false, nil
	}
	_, payload, err := f.rec.Read(offset)
	if err != nil {
		return nil, false, err
	}
	tile := raster.NewTile(tileIndex, int(f.spec.TileRows), int(f.spec.TileCols), f.spec.Elements)
	if err := tile.Decode(payload, f.master); err != nil {
		return nil, false, err
	}
	return tile, true, nil
}

// TileByteSize implements cache.Loader.
func (f *File) TileByteSize() int64 {
	var total int64
	for _, e := range f.spec.Elements {
		total += int64(e.Type.BytesPerSample()) * int64(f.spec.TileRows) * int64(f.spec.TileCols)
	}
	return total
}

// Evict implements cache.Loader: writes back a dirty tile (or frees its
// record if it has decayed to all-fill) and leaves clean tiles untouched.
func (f *File) Evict(tile *raster.Tile) error {
	return f.writeBack(tile)
}

// writeBack persists a dirty tile, or frees its record if it has decayed
// to all-fill. A failure here is unrecoverable for the open handle: the
// file is marked poisoned so subsequent mutations fail fast.
func (f *File) writeBack(tile *raster.Tile) error {
	if !tile.Dirty {
		return nil
	}
	if err := f.writeBackDirty(tile); err != nil {
		f.poison(tile.TileIndex, err)
		return err
	}
	return nil
}

func (f *File) writeBackDirty(tile *raster.Tile) error {
	oldOffset := f.dir.Get(tile.TileIndex)
	if tile.IsAllFill() {
		if oldOffset != 0 {
			if err := f.rec.Free(oldOffset); err != nil {
				return err
			}
			f.dir.Set(tile.TileIndex, 0)
		}
		tile.Dirty = false
		return nil
	}
	payload, err := tile.Encode(f.master)
	if err != nil {
		return err
	}
	newOffset, err := f.rec.Rewrite(oldOffset, int32(tile.TileIndex), payload)
	if err != nil {
		return err
	}
	f.dir.Set(tile.TileIndex, newOffset)
	tile.Dirty = false
	return nil
}

// Flush writes every dirty cached tile and the directory to disk without
// closing the file.
func (f *File) Flush() error {
	if f.mode != ReadWrite {
		return nil
	}
	if f.assistant != nil {
		f.assistant.WaitForCompletion()
	}
	for _, tile := range f.cache.All() {
		if err := f.writeBack(tile); err != nil {
			return err
		}
	}
	return f.persistDirectoryAndHeader()
}

func (f *File) persistDirectoryAndHeader() error {
	payload := encodeMetadataPayload(dirMetadataName, 0, f.dir.Persist())
	newOffset, err := f.rec.Rewrite(f.dirOffset, record.KindMetadata, payload)
	if err != nil {
		return err
	}
	f.dirOffset = newOffset
	f.metaIndex[metaKey{name: dirMetadataName, recordID: 0}] = newOffset

	hdr := header{spec: f.spec, codecNames: f.codecNames, directoryOffset: f.dirOffset}
	headerBytes := serializeHeader(hdr, f.spec.ChecksumsEnabled)
	if err := f.io.WriteAtBytes(0, headerBytes); err != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
	}
	return nil
}

// Close flushes (if open for writing), stops the background assistant, and
// releases the underlying file handle. Close transitions
// Open -> Closing -> Closed; calling it twice is a no-op.
func (f *File) Close() error {
	f.mu.Lock()
	if f.st != stateOpen {
		f.mu.Unlock()
		return nil
	}
	f.st = stateClosing
	f.mu.Unlock()

	var flushErr error
	if f.mode == ReadWrite {
		flushErr = f.Flush()
		if flushErr == nil {
			if err := f.io.Sync(); err != nil {
				flushErr = fmt.Errorf("%w: %v", gvrserr.ErrIoError, err)
			}
		}
	}
	if f.assistant != nil {
		f.assistant.Stop()
	}
	closeErr := f.io.Close()

	f.mu.Lock()
	f.st = stateClosed
	f.mu.Unlock()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", gvrserr.ErrIoError, closeErr)
	}
	return nil
}
