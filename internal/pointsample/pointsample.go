// Package pointsample implements the Point-Sample Service: elevation and
// flood-risk lookup at a geographic coordinate, at a fixed sample zoom.
package pointsample

import (
	"context"
	"math"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/engine"
	"github.com/cipher982/floodmap/internal/tileid"
)

// SampleZoom is the fixed zoom level used for point sampling, the finest
// policy zoom, so coordinates resolve to the highest available precision.
const SampleZoom = tileid.MaxZoom

// Uint16Server is the subset of the Tile Engine the point-sample service
// needs: the uint16 payload path.
type Uint16Server interface {
	ServeUint16(ctx context.Context, id tileid.ID, preferences []artifactstore.Encoding) (payload []byte, enc artifactstore.Encoding, source engine.Source, err error)
}

// Service answers point-sample and risk-assessment queries.
type Service struct {
	engine Uint16Server
}

// New returns a Service backed by engine.
func New(engine Uint16Server) *Service {
	return &Service{engine: engine}
}

// Request is a point-sample query.
type Request struct {
	Latitude    float64
	Longitude   float64
	WaterLevelM float64
	IsWaterHint bool
}

// Result is the point-sample / risk-assessment response.
type Result struct {
	ElevationM      *float64
	FloodRiskLevel  string
	RiskDescription string
	WaterLevelM     float64
}

// preferredEncodings asks for identity only: DecodeTile needs the raw
// uint16 bytes, and the precompressed store decodes a stored br/gzip
// variant to identity when identity is the only acceptable encoding.
var preferredEncodings = []artifactstore.Encoding{
	artifactstore.EncodingIdentity,
}

// Sample resolves req to an elevation and flood-risk classification.
func (s *Service) Sample(ctx context.Context, req Request) (*Result, error) {
	id := tileid.FromLonLat(req.Longitude, req.Latitude, SampleZoom)

	payload, _, _, err := s.engine.ServeUint16(ctx, id, preferredEncodings)
	if err != nil {
		return nil, err
	}
	wires, err := codec.DecodeTile(payload)
	if err != nil {
		return nil, err
	}

	px, py := tileid.LonLatToPixel(id, req.Longitude, req.Latitude)
	idx := py*tileid.TileSize + px
	w := wires[idx]

	if w == codec.NoDataWire {
		if req.IsWaterHint {
			return &Result{
				ElevationM:      nil,
				FloodRiskLevel:  "water",
				RiskDescription: "identified as water by caller hint",
				WaterLevelM:     req.WaterLevelM,
			}, nil
		}
		return &Result{
			ElevationM:      nil,
			FloodRiskLevel:  "unknown",
			RiskDescription: "no elevation data at this location",
			WaterLevelM:     req.WaterLevelM,
		}, nil
	}

	elevationM := codec.DecodeFloat(w)
	level, description := classify(elevationM, req.WaterLevelM)
	return &Result{
		ElevationM:      &elevationM,
		FloodRiskLevel:  level,
		RiskDescription: description,
		WaterLevelM:     req.WaterLevelM,
	}, nil
}

func classify(elevationM, waterLevelM float64) (level, description string) {
	r := elevationM - waterLevelM
	switch {
	case math.IsNaN(r):
		return "unknown", "no elevation data at this location"
	case elevationM <= waterLevelM:
		return "very_high", "at or below the current water level"
	case r < 0.5:
		return "high", "less than 0.5m above the current water level"
	case r < 2.0:
		return "moderate", "less than 2m above the current water level"
	case r < 5.0:
		return "low", "less than 5m above the current water level"
	default:
		return "low", "safe"
	}
}
