package loader_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/cipher982/floodmap/internal/loader"
	"github.com/cipher982/floodmap/internal/source"
	"github.com/cipher982/floodmap/internal/tileid"
)

type fakeStore struct {
	cells map[tileid.CellCorner]*source.Array
}

func (f *fakeStore) Open(_ context.Context, corner tileid.CellCorner) (*source.Array, error) {
	arr, ok := f.cells[corner]
	if !ok {
		return nil, source.ErrAbsent
	}
	return arr, nil
}

func flatCell(corner tileid.CellCorner, value int16) *source.Array {
	const n = 16
	data := make([]int16, n*n)
	for i := range data {
		data[i] = value
	}
	return &source.Array{
		Data:  data,
		Shape: [2]int{n, n},
		Bounds: source.Bounds{
			Top:    float64(corner.LatFloor) + 1,
			Bottom: float64(corner.LatFloor),
			Left:   float64(corner.LonFloor),
			Right:  float64(corner.LonFloor) + 1,
		},
		NoData: -32768,
	}
}

func TestLoadSingleCellHighZoom(t *testing.T) {
	corner := tileid.CellCorner{LatFloor: 37, LonFloor: -123}
	store := &fakeStore{cells: map[tileid.CellCorner]*source.Array{
		corner: flatCell(corner, 250),
	}}
	l := loader.New(store)

	id := tileid.FromLonLat(-122.5, 37.5, 11)
	mosaic, err := l.Load(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, tileid.TileSize*tileid.TileSize, len(mosaic.Pixels))
	assert.True(t, mosaic.HasData)
	for _, p := range mosaic.Pixels {
		assert.Equal(t, int16(250), p)
	}
}

func TestLoadAllCellsAbsentIsAllNoData(t *testing.T) {
	store := &fakeStore{cells: map[tileid.CellCorner]*source.Array{}}
	l := loader.New(store)

	id := tileid.ID{Z: 0, X: 0, Y: 0}
	mosaic, err := l.Load(context.Background(), id)
	assert.NoError(t, err)
	assert.False(t, mosaic.HasData)
	for _, p := range mosaic.Pixels {
		assert.Equal(t, int16(-32768), p)
	}
}

func TestLoadPropagatesUnavailableError(t *testing.T) {
	store := &errStore{}
	l := loader.New(store)

	_, err := l.Load(context.Background(), tileid.ID{Z: 0, X: 0, Y: 0})
	assert.Error(t, err)
}

type errStore struct{}

func (errStore) Open(_ context.Context, _ tileid.CellCorner) (*source.Array, error) {
	return nil, &source.ErrUnavailable{Cause: errors.New("disk failure")}
}

func TestLoadBilinearSmoothsWithinCell(t *testing.T) {
	corner := tileid.CellCorner{LatFloor: 10, LonFloor: 10}
	store := &fakeStore{cells: map[tileid.CellCorner]*source.Array{
		corner: flatCell(corner, 100),
	}}
	l := loader.New(store, loader.WithResampling(loader.Bilinear))

	id := tileid.FromLonLat(10.5, 10.5, 11)
	mosaic, err := l.Load(context.Background(), id)
	assert.NoError(t, err)
	assert.True(t, mosaic.HasData)
	for _, p := range mosaic.Pixels {
		assert.Equal(t, int16(100), p)
	}
}

func TestLoadPartialCoverageYieldsPartialNoData(t *testing.T) {
	present := tileid.CellCorner{LatFloor: 0, LonFloor: 0}
	store := &fakeStore{cells: map[tileid.CellCorner]*source.Array{
		present: flatCell(present, 42),
	}}
	l := loader.New(store)

	// zoom 0 covers the whole globe, so most pixels fall outside the one
	// present cell and resolve to NoData.
	mosaic, err := l.Load(context.Background(), tileid.ID{Z: 0, X: 0, Y: 0})
	assert.NoError(t, err)
	assert.True(t, mosaic.HasData)

	var sawNoData, sawData bool
	for _, p := range mosaic.Pixels {
		if p == -32768 {
			sawNoData = true
		} else {
			sawData = true
		}
	}
	assert.True(t, sawNoData)
	assert.True(t, sawData)
}
