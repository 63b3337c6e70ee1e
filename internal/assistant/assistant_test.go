package assistant

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

func testSpecs() []raster.Spec {
	return []raster.Spec{
		{Name: "elevation", Type: raster.Int32, MinValue: -1000, MaxValue: 9000, FillValue: -9999},
	}
}

func encodedTile(t *testing.T, tileIndex int) []byte {
	t.Helper()
	tile := raster.NewTile(tileIndex, 4, 4, testSpecs())
	if err := tile.Elements[0].WriteInt(0, 42); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	payload, err := tile.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return payload
}

func TestSubmitWaitForRoundTrip(t *testing.T) {
	a := New(nil, nil, false)
	defer a.Stop()

	payload := encodedTile(t, 3)
	a.Submit(Job{TileIndex: 3, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: payload})

	result, ok := a.WaitFor(3)
	if !ok {
		t.Fatalf("expected WaitFor to report a result for submitted tile 3")
	}
	if result.Err != nil {
		t.Fatalf("unexpected decode error: %v", result.Err)
	}
	if result.Tile.Elements[0].ReadInt(0) != 42 {
		t.Errorf("decoded value = %d, want 42", result.Tile.Elements[0].ReadInt(0))
	}
}

func TestWaitForUnknownTileReturnsFalse(t *testing.T) {
	a := New(nil, nil, false)
	defer a.Stop()

	if _, ok := a.WaitFor(999); ok {
		t.Fatalf("expected WaitFor to report ok=false for a tile that was never submitted")
	}
}

func TestDrainCollectsCompletionsInOrder(t *testing.T) {
	a := New(nil, nil, false)
	defer a.Stop()

	a.Submit(Job{TileIndex: 1, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: encodedTile(t, 1)})
	a.Submit(Job{TileIndex: 2, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: encodedTile(t, 2)})
	a.WaitForCompletion()

	results := a.Drain()
	if len(results) != 2 {
		t.Fatalf("Drain returned %d results, want 2", len(results))
	}
	if results[0].TileIndex != 1 || results[1].TileIndex != 2 {
		t.Errorf("Drain order = [%d, %d], want [1, 2]", results[0].TileIndex, results[1].TileIndex)
	}

	if more := a.Drain(); len(more) != 0 {
		t.Errorf("second Drain returned %d results, want 0", len(more))
	}
}

func TestPoisonCallbackFiresOnCorruptPayload(t *testing.T) {
	var poisoned int = -1
	var poisonErr error
	a := New(nil, func(tileIndex int, err error) {
		poisoned = tileIndex
		poisonErr = err
	}, false)
	defer a.Stop()

	bad := encodedTile(t, 5)
	bad = bad[:len(bad)-2] // truncate to force a decode error
	a.Submit(Job{TileIndex: 5, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: bad})
	a.WaitForCompletion()

	if poisoned != 5 {
		t.Fatalf("poison callback tileIndex = %d, want 5", poisoned)
	}
	if poisonErr == nil {
		t.Errorf("expected a non-nil poison error")
	}
	if _, ok := a.WaitFor(5); ok {
		t.Errorf("a poisoned tile should never produce a successful WaitFor result")
	}
}

func TestStopIsIdempotentAndCooperative(t *testing.T) {
	a := New(nil, nil, false)
	a.Submit(Job{TileIndex: 0, Specs: testSpecs(), NRows: 4, NCols: 4, Payload: encodedTile(t, 0)})
	a.Stop()
	a.Stop() // must not deadlock or panic when called twice
}
