package source_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/alecthomas/assert/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/cipher982/floodmap/internal/source"
	"github.com/cipher982/floodmap/internal/tileid"
)

func buildCell(t *testing.T, fsys fstest.MapFS, lat, lon int, data []int16, nodata int16) {
	t.Helper()
	latLetter := "n"
	if lat < 0 {
		latLetter = "s"
		lat = -lat
	}
	lonLetter := "e"
	if lon < 0 {
		lonLetter = "w"
		lon = -lon
	}
	base := latLetter + pad2(lat) + "_" + lonLetter + pad3(lon) + "_1arc_v3"

	raw := make([]byte, len(data)*2)
	for i, v := range data {
		raw[2*i] = byte(uint16(v))
		raw[2*i+1] = byte(uint16(v) >> 8)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	assert.NoError(t, err)
	_, err = enc.Write(raw)
	assert.NoError(t, err)
	assert.NoError(t, enc.Close())

	meta, err := json.Marshal(map[string]any{
		"shape":  [2]int{3601, 3601},
		"bounds": map[string]float64{"top": float64(lat) + 1, "bottom": float64(lat), "left": -float64(lon), "right": -float64(lon) + 1},
		"nodata": nodata,
		"crs":    "EPSG:4326",
	})
	assert.NoError(t, err)

	fsys[base+".zst"] = &fstest.MapFile{Data: buf.Bytes()}
	fsys[base+".json"] = &fstest.MapFile{Data: meta}
}

func pad2(v int) string {
	s := itoa(v)
	for len(s) < 2 {
		s = "0" + s
	}
	return s
}

func pad3(v int) string {
	s := itoa(v)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	digits := ""
	for v > 0 {
		digits = string(rune('0'+v%10)) + digits
		v /= 10
	}
	return digits
}

func TestOpenReturnsDecodedArray(t *testing.T) {
	fsys := fstest.MapFS{}
	data := make([]int16, 3601*3601)
	for i := range data {
		data[i] = int16(i % 100)
	}
	buildCell(t, fsys, 37, -122, data, -32768)

	store, err := source.New(fsys)
	assert.NoError(t, err)

	arr, err := store.Open(context.Background(), tileid.CellCorner{LatFloor: 37, LonFloor: -122})
	assert.NoError(t, err)
	assert.Equal(t, 3601, arr.Shape[0])
	assert.Equal(t, data[0], arr.At(0, 0))
}

func TestOpenMissingCellReturnsErrAbsent(t *testing.T) {
	fsys := fstest.MapFS{}
	store, err := source.New(fsys)
	assert.NoError(t, err)

	_, err = store.Open(context.Background(), tileid.CellCorner{LatFloor: 0, LonFloor: 0})
	assert.True(t, errors.Is(err, source.ErrAbsent))
}

func TestOpenCachesSecondLookup(t *testing.T) {
	fsys := fstest.MapFS{}
	data := make([]int16, 3601*3601)
	buildCell(t, fsys, 1, 1, data, -32768)

	store, err := source.New(fsys)
	assert.NoError(t, err)

	corner := tileid.CellCorner{LatFloor: 1, LonFloor: 1}
	first, err := store.Open(context.Background(), corner)
	assert.NoError(t, err)
	second, err := store.Open(context.Background(), corner)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLegacyVoidCoercedToCanonicalNoData(t *testing.T) {
	fsys := fstest.MapFS{}
	// buildCell declares a 3601x3601 shape, so the data must fill it.
	data := make([]int16, 3601*3601)
	data[0] = -32767
	data[2] = 5
	data[3] = -32767
	buildCell(t, fsys, 2, 2, data, -32767)

	store, err := source.New(fsys)
	assert.NoError(t, err)

	arr, err := store.Open(context.Background(), tileid.CellCorner{LatFloor: 2, LonFloor: 2})
	assert.NoError(t, err)
	assert.Equal(t, int16(-32768), arr.NoData)
}

func TestCorruptSideCarReturnsErrAbsent(t *testing.T) {
	fsys := fstest.MapFS{
		"n05_e005_1arc_v3.json": &fstest.MapFile{Data: []byte("{not json")},
		"n05_e005_1arc_v3.zst":  &fstest.MapFile{Data: []byte{}},
	}
	store, err := source.New(fsys)
	assert.NoError(t, err)

	_, err = store.Open(context.Background(), tileid.CellCorner{LatFloor: 5, LonFloor: 5})
	assert.True(t, errors.Is(err, source.ErrAbsent))
}

func TestShapeMismatchReturnsErrAbsent(t *testing.T) {
	fsys := fstest.MapFS{}
	data := make([]int16, 10)
	buildCell(t, fsys, 9, 9, data, -32768)

	store, err := source.New(fsys)
	assert.NoError(t, err)

	_, err = store.Open(context.Background(), tileid.CellCorner{LatFloor: 9, LonFloor: 9})
	assert.True(t, errors.Is(err, source.ErrAbsent))
}
