package cache

import (
	"errors"
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/assistant"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

// fakeLoader is a trivial Loader backed by an in-memory map, so cache tests
// don't depend on the record manager or a real file.
type fakeLoader struct {
	tiles       map[int]*raster.Tile
	byteSize    int64
	evicted     []int
	evictErr    error
	loadErrTile int
	loadErr     error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{tiles: make(map[int]*raster.Tile), byteSize: 100, loadErrTile: -1}
}

func (f *fakeLoader) LoadTile(tileIndex int) (*raster.Tile, bool, error) {
	if tileIndex == f.loadErrTile {
		return nil, false, f.loadErr
	}
	t, ok := f.tiles[tileIndex]
	return t, ok, nil
}

func (f *fakeLoader) TileByteSize() int64 { return f.byteSize }

func (f *fakeLoader) Evict(tile *raster.Tile) error {
	f.evicted = append(f.evicted, tile.TileIndex)
	return f.evictErr
}

func testSpecs() []raster.Spec {
	return []raster.Spec{
		{Name: "elevation", Type: raster.Int32, MinValue: -1000, MaxValue: 9000, FillValue: -9999},
	}
}

func TestGetOrLoadMissFallsBackToLoader(t *testing.T) {
	loader := newFakeLoader()
	loader.tiles[1] = raster.NewTile(1, 4, 4, testSpecs())
	c := New(loader, nil, 1000)

	tile, ok, err := c.GetOrLoad(1)
	if err != nil || !ok {
		t.Fatalf("GetOrLoad(1) = (ok=%v, err=%v), want (true, nil)", ok, err)
	}
	if tile.TileIndex != 1 {
		t.Errorf("tile.TileIndex = %d, want 1", tile.TileIndex)
	}
	if !c.Contains(1) {
		t.Errorf("expected cache to contain tile 1 after load")
	}
}

func TestGetOrLoadUnknownTileReportsNotFound(t *testing.T) {
	loader := newFakeLoader()
	c := New(loader, nil, 1000)

	_, ok, err := c.GetOrLoad(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected ok=false for a tile never written")
	}
}

func TestEvictionOrderIsLeastRecentlyUsed(t *testing.T) {
	loader := newFakeLoader()
	loader.byteSize = 1
	c := New(loader, nil, 2) // capacity for 2 tiles

	if err := c.Put(raster.NewTile(1, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(1): %v", err)
	}
	if err := c.Put(raster.NewTile(2, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(2): %v", err)
	}
	// Touch tile 1 so tile 2 becomes the LRU victim.
	if _, _, err := c.GetOrLoad(1); err != nil {
		t.Fatalf("GetOrLoad(1): %v", err)
	}
	if err := c.Put(raster.NewTile(3, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(3): %v", err)
	}

	if len(loader.evicted) != 1 || loader.evicted[0] != 2 {
		t.Fatalf("evicted = %v, want [2]", loader.evicted)
	}
	if c.Contains(2) {
		t.Errorf("tile 2 should have been evicted")
	}
	if !c.Contains(1) || !c.Contains(3) {
		t.Errorf("tiles 1 and 3 should remain cached")
	}
}

func TestEvictPropagatesLoaderError(t *testing.T) {
	loader := newFakeLoader()
	loader.byteSize = 1
	loader.evictErr = errors.New("write-back failed")
	c := New(loader, nil, 1)

	if err := c.Put(raster.NewTile(1, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(1): %v", err)
	}
	if err := c.Put(raster.NewTile(2, 4, 4, testSpecs())); err == nil {
		t.Fatalf("expected Put to propagate the loader's eviction error")
	}
}

func TestRemoveDropsWithoutEviction(t *testing.T) {
	loader := newFakeLoader()
	c := New(loader, nil, 1000)
	if err := c.Put(raster.NewTile(1, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put: %v", err)
	}
	c.Remove(1)
	if c.Contains(1) {
		t.Errorf("expected tile 1 to be gone after Remove")
	}
	if len(loader.evicted) != 0 {
		t.Errorf("Remove should not trigger Evict, got %v", loader.evicted)
	}
}

func TestContainsDoesNotAffectLRUOrder(t *testing.T) {
	loader := newFakeLoader()
	loader.byteSize = 1
	c := New(loader, nil, 2)
	if err := c.Put(raster.NewTile(1, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(1): %v", err)
	}
	if err := c.Put(raster.NewTile(2, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(2): %v", err)
	}
	_ = c.Contains(1) // must not promote tile 1
	if err := c.Put(raster.NewTile(3, 4, 4, testSpecs())); err != nil {
		t.Fatalf("Put(3): %v", err)
	}
	if c.Contains(1) {
		t.Errorf("tile 1 should still be the LRU victim since Contains doesn't promote")
	}
}

// TestDrainedPrefetchNeverReplacesResidentTile pins down the dirty-tile
// coherency rule: a decode the assistant finished before the application
// wrote to the same tile is stale, and must not displace the resident copy.
func TestDrainedPrefetchNeverReplacesResidentTile(t *testing.T) {
	loader := newFakeLoader()
	a := assistant.New(nil, nil, false)
	defer a.Stop()
	c := New(loader, a, 1000)

	stale := raster.NewTile(2, 4, 4, testSpecs())
	if err := stale.Elements[0].WriteInt(0, 1); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	payload, err := stale.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	a.Submit(assistant.Job{TileIndex: 2, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: payload})
	a.WaitForCompletion()

	resident := raster.NewTile(2, 4, 4, testSpecs())
	if err := resident.Elements[0].WriteInt(0, 7); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	resident.Dirty = true
	if err := c.Put(resident); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A miss on another tile drains the assistant's completed results.
	if _, _, err := c.GetOrLoad(3); err != nil {
		t.Fatalf("GetOrLoad(3): %v", err)
	}

	got, ok, err := c.GetOrLoad(2)
	if err != nil || !ok {
		t.Fatalf("GetOrLoad(2) = (ok=%v, err=%v), want (true, nil)", ok, err)
	}
	if got != resident {
		t.Fatalf("the drained stale decode replaced the resident dirty tile")
	}
	if got.Elements[0].ReadInt(0) != 7 {
		t.Errorf("resident value = %d, want 7", got.Elements[0].ReadInt(0))
	}
}
