package gvrs

import (
	"testing"

	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

// The first record starts right after the header, so a header whose raw
// serialization is not a multiple of 8 must be padded or every record
// offset in the file inherits the misalignment (and the compact directory
// drops its low 3 bits).
func TestSerializedHeaderIsEightByteAligned(t *testing.T) {
	cases := []struct {
		name      string
		checksums bool
		elemName  string
	}{
		{"checksums off", false, "elevation"},
		{"checksums on", true, "elevation"},
		{"odd name length, checksums off", false, "z"},
		{"odd name length, checksums on", true, "depth_m"},
	}
	for _, c := range cases {
		spec := FileSpec{
			NRows: 8, NCols: 8,
			TileRows: 4, TileCols: 4,
			Elements: []raster.Spec{
				{Name: c.elemName, Type: raster.Float32, MinValue: -100, MaxValue: 100, FillValue: -1},
			},
			ChecksumsEnabled: c.checksums,
		}
		codecNames := []string{"gzip", "webp"}
		buf := serializeHeader(header{spec: spec, codecNames: codecNames}, c.checksums)
		if len(buf)%8 != 0 {
			t.Errorf("%s: serialized header length %d is not a multiple of 8", c.name, len(buf))
		}
		if hs := HeaderSize(spec, codecNames); hs != len(buf) {
			t.Errorf("%s: HeaderSize = %d, want %d", c.name, hs, len(buf))
		}

		parsed, checksums, err := deserializeHeader(buf)
		if err != nil {
			t.Fatalf("%s: deserializeHeader: %v", c.name, err)
		}
		if checksums != c.checksums {
			t.Errorf("%s: checksums flag = %v, want %v", c.name, checksums, c.checksums)
		}
		if parsed.spec.NRows != spec.NRows || parsed.spec.TileCols != spec.TileCols {
			t.Errorf("%s: geometry did not round-trip: %+v", c.name, parsed.spec)
		}
		if len(parsed.spec.Elements) != 1 || parsed.spec.Elements[0].Name != c.elemName {
			t.Errorf("%s: element list did not round-trip: %+v", c.name, parsed.spec.Elements)
		}
		if len(parsed.codecNames) != 2 || parsed.codecNames[0] != "gzip" || parsed.codecNames[1] != "webp" {
			t.Errorf("%s: codec names did not round-trip: %v", c.name, parsed.codecNames)
		}
	}
}
