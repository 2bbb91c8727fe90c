// Package tileid provides web-Mercator slippy-map tile coordinates and the
// geographic conversions needed to resolve a tile to its covering DEM
// source cells.
package tileid

import (
	"fmt"
	"math"
)

// MaxZoom is the policy maximum zoom level. Tiles above this are the
// client's responsibility to upsample.
const MaxZoom = 11

// TileSize is the pixel width and height of every rendered or encoded tile.
const TileSize = 256

// ID is a web-Mercator slippy-map tile coordinate.
type ID struct {
	Z uint32
	X uint32
	Y uint32
}

// ErrInvalid is returned by Validate for an out-of-range tile.
type ErrInvalid struct {
	ID ID
}

func (e *ErrInvalid) Error() string {
	return fmt.Sprintf("tileid: invalid tile z=%d x=%d y=%d", e.ID.Z, e.ID.X, e.ID.Y)
}

// Validate reports whether id is within the configured zoom policy and has
// x, y coordinates that exist at that zoom.
func Validate(id ID, maxZoom uint32) error {
	if id.Z > maxZoom {
		return &ErrInvalid{ID: id}
	}
	n := uint32(1) << id.Z
	if id.X >= n || id.Y >= n {
		return &ErrInvalid{ID: id}
	}
	return nil
}

// Bounds is a geographic bounding box in degrees.
type Bounds struct {
	LonMin float64
	LatMin float64
	LonMax float64
	LatMax float64
}

// Bounds returns the geographic bounding box of id using the standard
// inverse web-Mercator slippy-map formulas.
func (id ID) Bounds() Bounds {
	n := math.Exp2(float64(id.Z))
	lonMin := float64(id.X)/n*360.0 - 180.0
	lonMax := float64(id.X+1)/n*360.0 - 180.0
	latMax := mercatorLat(float64(id.Y), n)
	latMin := mercatorLat(float64(id.Y+1), n)
	return Bounds{LonMin: lonMin, LatMin: latMin, LonMax: lonMax, LatMax: latMax}
}

func mercatorLat(y, n float64) float64 {
	rad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return rad * 180.0 / math.Pi
}

// FromLonLat returns the tile covering (lon, lat) at the given zoom, using
// the forward web-Mercator projection.
func FromLonLat(lon, lat float64, z uint32) ID {
	n := math.Exp2(float64(z))
	x := (lon + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	y := (1.0 - math.Asinh(math.Tan(latRad))/math.Pi) / 2.0 * n

	xi := int64(math.Floor(x))
	yi := int64(math.Floor(y))
	nMax := int64(n) - 1
	if xi < 0 {
		xi = 0
	} else if xi > nMax {
		xi = nMax
	}
	if yi < 0 {
		yi = 0
	} else if yi > nMax {
		yi = nMax
	}
	return ID{Z: z, X: uint32(xi), Y: uint32(yi)}
}

// PixelLonLat returns the geographic coordinate at the center of the pixel
// (px, py) within id's 256x256 raster.
func PixelLonLat(id ID, px, py int) (lon, lat float64) {
	b := id.Bounds()
	lonSpan := b.LonMax - b.LonMin
	latSpan := b.LatMax - b.LatMin
	lon = b.LonMin + (float64(px)+0.5)/float64(TileSize)*lonSpan
	lat = b.LatMax - (float64(py)+0.5)/float64(TileSize)*latSpan
	return lon, lat
}

// LonLatToPixel returns the in-tile pixel that covers (lon, lat), clamped
// to the tile's 256x256 raster.
func LonLatToPixel(id ID, lon, lat float64) (px, py int) {
	b := id.Bounds()
	lonSpan := b.LonMax - b.LonMin
	latSpan := b.LatMax - b.LatMin
	fx := (lon - b.LonMin) / lonSpan * float64(TileSize)
	fy := (b.LatMax - lat) / latSpan * float64(TileSize)
	px = clampInt(int(math.Floor(fx)), 0, TileSize-1)
	py = clampInt(int(math.Floor(fy)), 0, TileSize-1)
	return px, py
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CellCorner is the integer south-west corner of a 1x1 degree DEM source
// cell, using floor division so negative coordinates resolve correctly.
type CellCorner struct {
	LatFloor int
	LonFloor int
}

// CoveringCells enumerates the integer-degree cell corners that intersect
// bounds. A single point (min == max) lying exactly on a cell boundary
// resolves to the south/east cell, per the seam-tolerance rule.
func CoveringCells(b Bounds) []CellCorner {
	latStart := floorDiv(b.LatMin)
	latEnd := floorDiv(b.LatMax)
	lonStart := floorDiv(b.LonMin)
	lonEnd := floorDiv(b.LonMax)

	// A point on an integer latitude line belongs to the cell south of it
	// (flooring alone would pick the northern one). Integer longitudes
	// already floor to the eastern cell.
	if b.LatMin == b.LatMax && float64(latStart) == b.LatMin {
		latStart--
		latEnd--
	}

	// If the max bound of a non-degenerate box lands exactly on an integer
	// boundary, it does not pull in the zero-width northern/eastern
	// neighbor cell beyond it.
	if float64(latEnd) == b.LatMax && latEnd > latStart {
		latEnd--
	}
	if float64(lonEnd) == b.LonMax && lonEnd > lonStart {
		lonEnd--
	}

	var cells []CellCorner
	for lat := latStart; lat <= latEnd; lat++ {
		for lon := lonStart; lon <= lonEnd; lon++ {
			cells = append(cells, CellCorner{LatFloor: lat, LonFloor: lon})
		}
	}
	return cells
}

func floorDiv(v float64) int {
	return int(math.Floor(v))
}
