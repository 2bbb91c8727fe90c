package codec_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/cipher982/floodmap/internal/codec"
)

func TestEncodeDecodeNoData(t *testing.T) {
	w := codec.Encode(codec.NoDataElevation)
	assert.Equal(t, codec.NoDataWire, w)
	assert.Equal(t, codec.NoDataElevation, codec.Decode(w))
}

func TestEncodeMonotonic(t *testing.T) {
	var prev codec.Wire = 0
	for u := 0; u <= 65534; u += 97 {
		w := codec.Wire(u)
		e := codec.Decode(w)
		got := codec.Encode(e)
		assert.True(t, got >= prev || u == 0)
		prev = got
	}
}

func TestDecodeStrictlyMonotonic(t *testing.T) {
	var prevE float64 = math.Inf(-1)
	for u := 0; u <= 65534; u++ {
		e := codec.DecodeFloat(codec.Wire(u))
		assert.True(t, e > prevE)
		prevE = e
	}
}

func TestRoundTripEncodeDecode(t *testing.T) {
	for u := 0; u <= 65535; u++ {
		w := codec.Wire(u)
		e := codec.Decode(w)
		got := codec.Encode(e)
		assert.Equal(t, w, got)
	}
}

func TestRoundTripDecodeEncodeWithinTolerance(t *testing.T) {
	const tolerance = 0.145
	for _, e := range []codec.Elevation{-500, -250, 0, 100, 500, 1000, 3000, 8999, 9000} {
		w := codec.Encode(e)
		back := codec.DecodeFloat(w)
		assert.True(t, math.Abs(back-float64(e)) <= tolerance)
	}
}

func TestEncodeTileAllNoData(t *testing.T) {
	payload := codec.EncodeTile(nil, false)
	assert.Equal(t, codec.PayloadBytes, len(payload))
	assert.True(t, codec.AllNoData(payload))
}

func TestEncodeTileExactLength(t *testing.T) {
	pixels := make([]int16, 256*256)
	payload := codec.EncodeTile(pixels, true)
	assert.Equal(t, codec.PayloadBytes, len(payload))
}

func TestDecodeTileInvalidLength(t *testing.T) {
	_, err := codec.DecodeTile(make([]byte, 10))
	assert.Error(t, err)
}

func TestDecodeTileRoundTrip(t *testing.T) {
	pixels := make([]int16, 256*256)
	for i := range pixels {
		pixels[i] = int16((i % 9500) - 500)
	}
	payload := codec.EncodeTile(pixels, true)
	wires, err := codec.DecodeTile(payload)
	assert.NoError(t, err)
	assert.Equal(t, 256*256, len(wires))
}
