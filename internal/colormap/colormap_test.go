package colormap_test

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/colormap"
)

func TestQuantizeWaterLevel(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want float64
	}{
		{1.23, 1.2},
		{1.27, 1.3},
		{0, 0},
		{-10, -10},
	} {
		assert.Equal(t, tc.want, colormap.QuantizeWaterLevel(tc.in))
	}
}

func TestTopographicLUTDeterministic(t *testing.T) {
	a := colormap.BuildTopographic()
	b := colormap.BuildTopographic()
	assert.Equal(t, *a, *b)
}

func TestFloodLUTNoDataIsWaterColor(t *testing.T) {
	lut := colormap.BuildFlood(1.0)
	assert.Equal(t, colormap.WaterColor(), lut[codec.NoDataWire])
}

func TestTopographicLUTNoDataIsOceanColor(t *testing.T) {
	lut := colormap.BuildTopographic()
	assert.Equal(t, colormap.OceanColor(), lut[codec.NoDataWire])
}

func TestFloodLUTMemoizableSameQuantum(t *testing.T) {
	a := colormap.BuildFlood(colormap.QuantizeWaterLevel(1.23))
	b := colormap.BuildFlood(colormap.QuantizeWaterLevel(1.23))
	assert.Equal(t, *a, *b)
}

func TestFloodLUTDiffersAcrossQuanta(t *testing.T) {
	a := colormap.BuildFlood(1.2)
	b := colormap.BuildFlood(1.3)
	assert.NotEqual(t, *a, *b)
}

func TestRenderIsPureLUTLookup(t *testing.T) {
	lut := colormap.BuildTopographic()
	wires := []codec.Wire{0, 100, codec.NoDataWire}
	out := colormap.Render(wires, lut)
	assert.Equal(t, len(wires)*4, len(out))
	for i, w := range wires {
		c := lut[w]
		assert.Equal(t, c[:], out[4*i:4*i+4])
	}
}

func TestLegendColorsHasFourBands(t *testing.T) {
	entries := colormap.LegendColors(1.0)
	assert.Equal(t, 4, len(entries))
}
