// Package loader implements the Elevation Loader: it resolves a web-Mercator
// tile to its covering DEM source cells and assembles a 256x256 int16
// mosaic, propagating NoData and resolving seams to the south/east cell.
package loader

import (
	"context"
	"errors"
	"math"

	"github.com/cipher982/floodmap/internal/source"
	"github.com/cipher982/floodmap/internal/tileid"
)

// Mosaic is a 256x256 elevation raster assembled for one tile, plus whether
// any pixel carries real data.
type Mosaic struct {
	Pixels  []int16 // len == tileid.TileSize*tileid.TileSize, row-major
	HasData bool
}

// Store is the subset of source.Store the loader depends on.
type Store interface {
	Open(ctx context.Context, corner tileid.CellCorner) (*source.Array, error)
}

// Resampling selects how a source array's continuous coordinate maps to a
// pixel value. Wire uint16 payloads must use Nearest, so that point-sampling
// stays deterministic and round-trippable; bilinear is offered only for
// presentation tiles.
type Resampling int

const (
	Nearest Resampling = iota
	Bilinear
)

// Loader assembles Mosaics from a Source Store.
type Loader struct {
	store      Store
	resampling Resampling
}

// Option configures a Loader.
type Option func(*Loader)

// WithResampling overrides the default Nearest resampling. Callers serving
// the wire uint16 payload must not set this to Bilinear.
func WithResampling(r Resampling) Option {
	return func(l *Loader) { l.resampling = r }
}

// New returns a Loader reading cells from store, defaulting to nearest-
// neighbor resampling.
func New(store Store, options ...Option) *Loader {
	l := &Loader{store: store, resampling: Nearest}
	for _, option := range options {
		option(l)
	}
	return l
}

// Load resolves id to its covering source cells and assembles the mosaic.
// Per-pixel cell resolution, not per covering cell, so each output pixel
// independently selects the cell that actually contains it; partial cell
// absence degrades to partial NoData rather than failing the whole tile.
func (l *Loader) Load(ctx context.Context, id tileid.ID) (*Mosaic, error) {
	bounds := id.Bounds()
	corners := tileid.CoveringCells(tileid.Bounds{
		LonMin: bounds.LonMin, LatMin: bounds.LatMin,
		LonMax: bounds.LonMax, LatMax: bounds.LatMax,
	})

	arrays := make(map[tileid.CellCorner]*source.Array, len(corners))
	for _, c := range corners {
		arr, err := l.store.Open(ctx, c)
		if err != nil {
			if errors.Is(err, source.ErrAbsent) {
				continue
			}
			return nil, err
		}
		arrays[c] = arr
	}

	const noData = -32768

	pixels := make([]int16, tileid.TileSize*tileid.TileSize)
	hasData := false

	for py := 0; py < tileid.TileSize; py++ {
		for px := 0; px < tileid.TileSize; px++ {
			lon, lat := tileid.PixelLonLat(id, px, py)
			var v int16
			if l.resampling == Bilinear {
				v = sampleBilinear(arrays, lon, lat)
			} else {
				v = sampleNearest(arrays, lon, lat)
			}
			idx := py*tileid.TileSize + px
			pixels[idx] = v
			if v != noData {
				hasData = true
			}
		}
	}

	return &Mosaic{Pixels: pixels, HasData: hasData}, nil
}

// sampleNearest resolves the source pixel nearest (lon, lat) among the
// covering cells, applying the south/east seam-tie rule through
// tileid.CoveringCells' cell-corner derivation. Returns NoData if no cell
// contains the coordinate or the source pixel is itself NoData.
func sampleNearest(arrays map[tileid.CellCorner]*source.Array, lon, lat float64) int16 {
	corner := cellCornerFor(lon, lat)
	arr, ok := arrays[corner]
	if !ok {
		return -32768
	}
	row, col := nearestRowCol(arr, lon, lat)
	v := arr.At(row, col)
	if v == arr.NoData {
		return -32768
	}
	return v
}

// sampleBilinear blends the four raster cells surrounding (lon, lat),
// rounding to the nearest meter. It returns NoData if no loaded cell
// contains the coordinate or if any of the four corners is itself NoData,
// since averaging across a NoData boundary would fabricate elevation.
// Corners past the cell's edge are clamped to its last row/column; the
// neighboring cell is not consulted. For presentation tiles only; wire
// payloads always use sampleNearest.
func sampleBilinear(arrays map[tileid.CellCorner]*source.Array, lon, lat float64) int16 {
	corner := cellCornerFor(lon, lat)
	arr, ok := arrays[corner]
	if !ok {
		return -32768
	}

	rows, cols := arr.Shape[0], arr.Shape[1]
	lonSpan := arr.Bounds.Right - arr.Bounds.Left
	latSpan := arr.Bounds.Top - arr.Bounds.Bottom

	fx := (lon - arr.Bounds.Left) / lonSpan * float64(cols)
	fy := (arr.Bounds.Top - lat) / latSpan * float64(rows)

	x0 := clamp(int(fx), 0, cols-1)
	y0 := clamp(int(fy), 0, rows-1)
	x1 := clamp(x0+1, 0, cols-1)
	y1 := clamp(y0+1, 0, rows-1)

	v00, v10, v01, v11 := arr.At(y0, x0), arr.At(y0, x1), arr.At(y1, x0), arr.At(y1, x1)
	if v00 == arr.NoData || v10 == arr.NoData || v01 == arr.NoData || v11 == arr.NoData {
		return -32768
	}

	dx := fx - float64(x0)
	dy := fy - float64(y0)
	blended := float64(v00)*(1-dx)*(1-dy) +
		float64(v10)*dx*(1-dy) +
		float64(v01)*(1-dx)*dy +
		float64(v11)*dx*dy
	return int16(math.Round(blended))
}

func cellCornerFor(lon, lat float64) tileid.CellCorner {
	cells := tileid.CoveringCells(tileid.Bounds{
		LonMin: lon, LatMin: lat, LonMax: lon, LatMax: lat,
	})
	if len(cells) == 0 {
		return tileid.CellCorner{}
	}
	return cells[0]
}

// nearestRowCol maps a geographic coordinate to the nearest-neighbor raster
// cell of arr, using its declared bounds and shape as the geotransform.
func nearestRowCol(arr *source.Array, lon, lat float64) (row, col int) {
	rows, cols := arr.Shape[0], arr.Shape[1]
	lonSpan := arr.Bounds.Right - arr.Bounds.Left
	latSpan := arr.Bounds.Top - arr.Bounds.Bottom

	fx := (lon - arr.Bounds.Left) / lonSpan * float64(cols)
	fy := (arr.Bounds.Top - lat) / latSpan * float64(rows)

	col = clamp(int(fx), 0, cols-1)
	row = clamp(int(fy), 0, rows-1)
	return row, col
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
