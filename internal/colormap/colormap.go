// Package colormap builds the 65,536-entry RGBA lookup tables that map a
// uint16 wire elevation value to a display color, in flood-risk and
// topographic modes. LUT construction is a pure function of its key; the
// same (mode, water level quantum) always reproduces byte-identical tables.
package colormap

import (
	"math"

	"github.com/cipher982/floodmap/internal/codec"
)

// Mode selects the colorization scheme.
type Mode int

const (
	ModeFlood Mode = iota
	ModeTopographic
)

// RGBA is a single 8-bit-per-channel color.
type RGBA [4]uint8

var (
	waterColor = RGBA{70, 130, 180, 255} // deep steel blue, used for NoData in flood mode
	oceanColor = RGBA{70, 130, 180, 255} // same hue for below-sea/NoData in topographic mode

	safeColor    = RGBA{76, 175, 80, 120}
	cautionColor = RGBA{255, 193, 7, 160}
	dangerColor  = RGBA{244, 67, 54, 200}
	floodedColor = RGBA{33, 150, 243, 220}
)

// hypsometric stops: (elevation meters, color), used by topographic mode
// after asinh compression.
type stop struct {
	elevation float64
	color     RGBA
}

var hypsometricStops = []stop{
	{0, RGBA{33, 150, 243, 255}},
	{5, RGBA{76, 175, 80, 255}},
	{15, RGBA{139, 195, 74, 255}},
	{30, RGBA{205, 220, 57, 255}},
	{60, RGBA{255, 235, 59, 255}},
	{100, RGBA{255, 193, 7, 255}},
	{150, RGBA{255, 152, 0, 255}},
	{250, RGBA{191, 141, 99, 255}},
	{400, RGBA{141, 110, 99, 255}},
	{700, RGBA{121, 85, 72, 255}},
	{1200, RGBA{158, 158, 158, 255}},
	{2000, RGBA{189, 189, 189, 255}},
	{3000, RGBA{224, 224, 224, 255}},
	{4500, RGBA{240, 240, 240, 255}},
	{6500, RGBA{255, 255, 255, 255}},
}

// LUT is a 65,536-entry RGBA table indexed directly by a codec.Wire value.
type LUT [65536]RGBA

// BuildTopographic builds the parameter-free topographic LUT.
func BuildTopographic() *LUT {
	lut := &LUT{}
	for u := 0; u < 65536; u++ {
		lut[u] = topographicColor(codec.DecodeFloat(codec.Wire(u)))
	}
	return lut
}

const asinhDenom = 6500.0 / 120.0

func compress(e float64) float64 {
	return math.Asinh(e/120) / math.Asinh(asinhDenom)
}

// stopPositions holds each hypsometric stop's asinh-compressed position,
// computed once so interpolation walks evenly regardless of the stops'
// uneven raw-elevation spacing.
var stopPositions = func() []float64 {
	positions := make([]float64, len(hypsometricStops))
	for i, s := range hypsometricStops {
		positions[i] = compress(s.elevation)
	}
	return positions
}()

func topographicColor(e float64) RGBA {
	if math.IsNaN(e) || e < 0 {
		return oceanColor
	}
	clamped := e
	if clamped > 6500 {
		clamped = 6500
	}
	t := compress(clamped)
	return interpolateStops(t)
}

func interpolateStops(t float64) RGBA {
	n := len(hypsometricStops)
	if t <= stopPositions[0] {
		return hypsometricStops[0].color
	}
	if t >= stopPositions[n-1] {
		return hypsometricStops[n-1].color
	}
	for i := 0; i < n-1; i++ {
		if t >= stopPositions[i] && t <= stopPositions[i+1] {
			span := stopPositions[i+1] - stopPositions[i]
			frac := 0.0
			if span > 0 {
				frac = (t - stopPositions[i]) / span
			}
			return blend(hypsometricStops[i].color, hypsometricStops[i+1].color, frac)
		}
	}
	return hypsometricStops[n-1].color
}

func blend(a, b RGBA, t float64) RGBA {
	var out RGBA
	for i := range out {
		out[i] = uint8(float64(a[i])*(1-t) + float64(b[i])*t)
	}
	return out
}

// BuildFlood builds the flood-mode LUT for the given water level in
// meters. Safely memoizable per the water-level quantum.
func BuildFlood(waterLevel float64) *LUT {
	lut := &LUT{}
	for u := 0; u < 65536; u++ {
		lut[u] = floodColor(codec.DecodeFloat(codec.Wire(u)), waterLevel)
	}
	return lut
}

func floodColor(e, waterLevel float64) RGBA {
	if math.IsNaN(e) {
		return waterColor
	}
	r := e - waterLevel
	switch {
	case r >= 5.0:
		return RGBA{0, 0, 0, 0}
	case r >= 2.0:
		t := (5 - r) / 3
		return blend(safeColor, cautionColor, t)
	case r >= 0.5:
		t := (2 - r) / 1.5
		return blend(cautionColor, dangerColor, t)
	case r >= -0.5:
		t := (0.5 - r) / 1.0
		return blend(dangerColor, floodedColor, t)
	default:
		return floodedColor
	}
}

// QuantizeWaterLevel snaps a water level in meters to the 0.1m grid used
// for flood-mode LUT memoization and tile cache keys. Halfway values round
// to the even tenth (1.25 snaps to 1.2).
func QuantizeWaterLevel(waterLevelM float64) float64 {
	return math.RoundToEven(waterLevelM*10) / 10
}

// Render maps a decoded uint16 tile payload to a 256x256 RGBA buffer using
// lut. The output is laid out row-major, 4 bytes per pixel.
func Render(wires []codec.Wire, lut *LUT) []byte {
	out := make([]byte, len(wires)*4)
	for i, w := range wires {
		c := lut[w]
		copy(out[4*i:4*i+4], c[:])
	}
	return out
}

// WaterColor returns the flood-mode NoData/all-water fill color.
func WaterColor() RGBA { return waterColor }

// OceanColor returns the topographic-mode NoData/below-sea fill color.
func OceanColor() RGBA { return oceanColor }

// LegendEntry names one flood-risk band and the color used to render it.
type LegendEntry struct {
	Label string
	Color RGBA
}

// LegendColors returns the four named flood-risk bands and their colors, for
// client legend rendering. The result is the same for every waterLevelM; no
// elevation boundaries are returned.
func LegendColors(waterLevelM float64) []LegendEntry {
	return []LegendEntry{
		{Label: "safe", Color: safeColor},
		{Label: "caution", Color: cautionColor},
		{Label: "danger", Color: dangerColor},
		{Label: "flooded", Color: floodedColor},
	}
}
