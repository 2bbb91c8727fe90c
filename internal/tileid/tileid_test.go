package tileid_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/cipher982/floodmap/internal/tileid"
)

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		id      tileid.ID
		wantErr bool
	}{
		{name: "origin", id: tileid.ID{Z: 0, X: 0, Y: 0}, wantErr: false},
		{name: "max zoom corner", id: tileid.ID{Z: 11, X: (1 << 11) - 1, Y: (1 << 11) - 1}, wantErr: false},
		{name: "zoom too high", id: tileid.ID{Z: 12, X: 0, Y: 0}, wantErr: true},
		{name: "x out of range", id: tileid.ID{Z: 2, X: 4, Y: 0}, wantErr: true},
		{name: "y out of range", id: tileid.ID{Z: 2, X: 0, Y: 4}, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tileid.Validate(tc.id, tileid.MaxZoom)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundsRoundTrip(t *testing.T) {
	for _, id := range []tileid.ID{
		{Z: 0, X: 0, Y: 0},
		{Z: 9, X: 140, Y: 215},
		{Z: 11, X: 1500, Y: 900},
	} {
		b := id.Bounds()
		assert.True(t, b.LonMin < b.LonMax)
		assert.True(t, b.LatMin < b.LatMax)

		centerLon := (b.LonMin + b.LonMax) / 2
		centerLat := (b.LatMin + b.LatMax) / 2
		got := tileid.FromLonLat(centerLon, centerLat, id.Z)
		assert.Equal(t, id, got)
	}
}

func TestWholeGlobeTile(t *testing.T) {
	b := tileid.ID{Z: 0, X: 0, Y: 0}.Bounds()
	assert.Equal(t, -180.0, b.LonMin)
	assert.Equal(t, 180.0, b.LonMax)
	assert.True(t, b.LatMax > 85)
	assert.True(t, b.LatMin < -85)
}

func TestPixelLonLatRoundTrip(t *testing.T) {
	id := tileid.ID{Z: 10, X: 286, Y: 387}
	for _, px := range []int{0, 1, 127, 128, 255} {
		for _, py := range []int{0, 64, 200, 255} {
			lon, lat := tileid.PixelLonLat(id, px, py)
			gotX, gotY := tileid.LonLatToPixel(id, lon, lat)
			assert.Equal(t, px, gotX)
			assert.Equal(t, py, gotY)
		}
	}
}

func TestCoveringCellsNegativeCoords(t *testing.T) {
	b := tileid.Bounds{LonMin: -1.5, LatMin: -1.5, LonMax: -0.5, LatMax: -0.5}
	cells := tileid.CoveringCells(b)
	assert.True(t, len(cells) > 0)
	for _, c := range cells {
		assert.True(t, c.LatFloor <= -1)
		assert.True(t, c.LonFloor <= -1)
	}
}

func TestCoveringCellsSeamResolvesSouthEast(t *testing.T) {
	// A bounds box whose max edges land exactly on integer degree lines
	// must not pull in the northern/eastern neighbor cell.
	b := tileid.Bounds{LonMin: 0, LatMin: 0, LonMax: 1, LatMax: 1}
	cells := tileid.CoveringCells(b)
	assert.Equal(t, []tileid.CellCorner{{LatFloor: 0, LonFloor: 0}}, cells)
}

func TestAntimeridianExtremeXY(t *testing.T) {
	z := uint32(tileid.MaxZoom)
	n := uint32(1) << z
	id := tileid.ID{Z: z, X: n - 1, Y: 0}
	b := id.Bounds()
	assert.True(t, !math.IsNaN(b.LonMax))
	assert.True(t, b.LonMax <= 180.0+1e-9)
}
