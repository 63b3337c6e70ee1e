package inspector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/gvrs"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

func buildSingleTileFile(t *testing.T, checksums bool) (path string, headerSize int64) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "grid.gvrs")
	master, err := codec.DefaultMaster()
	if err != nil {
		t.Fatalf("DefaultMaster: %v", err)
	}
	spec := gvrs.FileSpec{
		NRows: 4, NCols: 4,
		TileRows: 4, TileCols: 4,
		Elements: []raster.Spec{
			{Name: "elevation", Type: raster.Int32, MinValue: -1000, MaxValue: 9000, FillValue: -9999},
		},
		ChecksumsEnabled: checksums,
	}
	f, err := gvrs.Create(path, spec, master, gvrs.Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	elev, err := f.Element("elevation")
	if err != nil {
		t.Fatalf("Element: %v", err)
	}
	if err := elev.WriteInt(0, 0, 123); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	headerSize = f.HeaderSize()
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path, headerSize
}

func TestInspectCleanFileReportsOK(t *testing.T) {
	path, headerSize := buildSingleTileFile(t, true)
	report, err := Inspect(path, headerSize, true)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected a freshly written file to inspect clean, problems=%v", report.Problems)
	}
	if len(report.Records) == 0 {
		t.Fatalf("expected at least one record (the written tile)")
	}
}

func TestInspectDetectsCorruptedTileAndReportsItsIndex(t *testing.T) {
	path, headerSize := buildSingleTileFile(t, true)

	// Flip a byte inside the first record's payload, well past its 8-byte
	// (size, kind) header, so the checksum trailer catches it.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	corruptAt := headerSize + 12
	if int(corruptAt) >= len(raw) {
		t.Fatalf("test file too small to corrupt at offset %d (len=%d)", corruptAt, len(raw))
	}
	raw[corruptAt] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	report, err := Inspect(path, headerSize, true)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if report.OK() {
		t.Fatalf("expected the corrupted file to report a problem")
	}

	byTile := TileProblems(report)
	if _, ok := byTile[0]; !ok {
		t.Fatalf("expected TileProblems to attribute the defect to tile 0, got %v", byTile)
	}
}

func TestInspectMissingFileReturnsIOError(t *testing.T) {
	_, err := Inspect(filepath.Join(t.TempDir(), "does-not-exist.gvrs"), 0, false)
	if err == nil {
		t.Fatalf("expected Inspect to fail on a missing file")
	}
}

func TestInspectSkipsChecksumVerificationWhenDisabled(t *testing.T) {
	path, headerSize := buildSingleTileFile(t, false)
	report, err := Inspect(path, headerSize, false)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected a checksum-disabled file to report OK, problems=%v", report.Problems)
	}
}
