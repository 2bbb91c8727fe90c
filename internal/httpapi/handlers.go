package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/colormap"
	"github.com/cipher982/floodmap/internal/pointsample"
	"github.com/cipher982/floodmap/internal/tileid"
)

func (s *Server) handleElevationData(w http.ResponseWriter, r *http.Request) {
	id, err := parseTile(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tile coordinate"})
		return
	}

	prefs := acceptedEncodings(r)
	payload, enc, source, err := s.engine.ServeUint16(r.Context(), id, prefs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("X-Tile-Source", string(source))
	if enc != artifactstore.EncodingIdentity {
		w.Header().Set("Content-Encoding", string(enc))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck // client disconnects are not actionable here
}

func (s *Server) handleTopographicPNG(w http.ResponseWriter, r *http.Request) {
	id, err := parseTile(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tile coordinate"})
		return
	}
	s.servePNG(w, r, id, colormap.ModeTopographic, 0)
}

func (s *Server) handleFloodPNG(w http.ResponseWriter, r *http.Request) {
	id, err := parseTile(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tile coordinate"})
		return
	}
	waterLevel, err := strconv.ParseFloat(r.PathValue("water_level"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid water_level"})
		return
	}
	s.servePNG(w, r, id, colormap.ModeFlood, waterLevel)
}

func (s *Server) servePNG(w http.ResponseWriter, r *http.Request, id tileid.ID, mode colormap.Mode, waterLevel float64) {
	png, quantum, source, err := s.engine.ServePNG(r.Context(), id, mode, waterLevel)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Tile-Source", string(source))
	if mode == colormap.ModeFlood {
		w.Header().Set("X-Water-Level", strconv.FormatFloat(quantum, 'f', 1, 64))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(png) //nolint:errcheck // client disconnects are not actionable here
}

type riskRequest struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	WaterLevelM *float64 `json:"water_level_m"`
	IsWaterHint bool     `json:"is_water_hint"`
}

type riskResponse struct {
	ElevationM      *float64 `json:"elevation_m"`
	FloodRiskLevel  string   `json:"flood_risk_level"`
	RiskDescription string   `json:"risk_description"`
	WaterLevelM     float64  `json:"water_level_m"`
}

func (s *Server) handleRiskLocation(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	waterLevel := 0.0
	if req.WaterLevelM != nil {
		waterLevel = *req.WaterLevelM
	}

	result, err := s.samples.Sample(r.Context(), pointsample.Request{
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		WaterLevelM: waterLevel,
		IsWaterHint: req.IsWaterHint,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, riskResponse{
		ElevationM:      result.ElevationM,
		FloodRiskLevel:  result.FloodRiskLevel,
		RiskDescription: result.RiskDescription,
		WaterLevelM:     result.WaterLevelM,
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"max_zoom":            s.maxZoom,
		"tile_size":           tileid.TileSize,
		"water_level_range":   map[string]float64{"min": -10, "max": 1000},
		"elevation_range":     map[string]float64{"min": codec.EMin, "max": codec.EMax},
		"precompressed_ready": s.precompressedConfigured,
	})
}

func (s *Server) handleTilesHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	_, _, _, err := s.engine.ServeUint16(r.Context(), tileid.ID{Z: 0, X: 0, Y: 0}, []artifactstore.Encoding{artifactstore.EncodingIdentity})
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":               status,
		"precompressed_ready":  s.precompressedConfigured,
	})
}

func (s *Server) handleLegend(w http.ResponseWriter, r *http.Request) {
	waterLevel := 0.0
	if v := r.URL.Query().Get("water_level"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			waterLevel = parsed
		}
	}
	entries := colormap.LegendColors(waterLevel)
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	s.logger.Warn("request failed", "error", err, "status", status)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
