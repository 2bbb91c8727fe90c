// Package httpapi wires the Tile Engine and Point-Sample Service to the
// HTTP surface: route parsing, content negotiation, diagnostic headers, and
// error-to-status mapping.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/engine"
	"github.com/cipher982/floodmap/internal/metrics"
	"github.com/cipher982/floodmap/internal/pointsample"
	"github.com/cipher982/floodmap/internal/tileid"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the floodmap HTTP surface: tile routes, the risk
// endpoint, health/readiness, and metrics.
type Server struct {
	httpServer *http.Server
	engine     *engine.Engine
	samples    *pointsample.Service
	metrics    *metrics.Metrics
	logger     *slog.Logger
	maxZoom    uint32
	precompressedConfigured bool
	requestDeadline         time.Duration
}

// Config configures a Server.
type Config struct {
	Addr                    string
	Engine                  *engine.Engine
	Samples                 *pointsample.Service
	Metrics                 *metrics.Metrics
	Logger                  *slog.Logger
	Ready                   ReadinessChecker
	MaxZoom                 uint32
	PrecompressedConfigured bool
	// RequestDeadline bounds each tile/risk request's context. Zero
	// disables the deadline.
	RequestDeadline time.Duration
}

// NewServer builds the tile server's HTTP handler and mux.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine:                  cfg.Engine,
		samples:                 cfg.Samples,
		metrics:                 cfg.Metrics,
		logger:                  cfg.Logger,
		maxZoom:                 cfg.MaxZoom,
		precompressedConfigured: cfg.PrecompressedConfigured,
		requestDeadline:         cfg.RequestDeadline,
	}

	mux.HandleFunc("GET /api/v1/tiles/elevation-data/{z}/{x}/{y}", s.instrument("elevation_data", s.handleElevationData))
	mux.HandleFunc("GET /api/v1/tiles/elevation/{z}/{x}/{y}", s.instrument("elevation_png", s.handleTopographicPNG))
	mux.HandleFunc("GET /api/v1/tiles/flood/{water_level}/{z}/{x}/{y}", s.instrument("flood_png", s.handleFloodPNG))
	mux.HandleFunc("POST /risk/location", s.instrument("risk_location", s.handleRiskLocation))
	mux.HandleFunc("GET /api/v1/tiles/metadata", s.instrument("tiles_metadata", s.handleMetadata))
	mux.HandleFunc("GET /api/v1/tiles/health", s.instrument("tiles_health", s.handleTilesHealth))
	mux.HandleFunc("GET /api/v1/tiles/legend", s.instrument("tiles_legend", s.handleLegend))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(cfg.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// instrument wraps handler with request-duration and count metrics labeled
// by route, recording the status the handler actually wrote, and bounds
// the request's context to requestDeadline so a request that overruns it
// is reported as a timeout rather than left to run unbounded.
func (s *Server) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.requestDeadline > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.requestDeadline)
			defer cancel()
			r = r.WithContext(ctx)
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)
		status := strconv.Itoa(rec.status)
		s.metrics.RequestDuration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
		s.metrics.RequestsTotal.WithLabelValues(route, status).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

// parseTile extracts and validates the {z}/{x}/{y} path parameters shared
// by the tile routes, stripping a trailing file extension from y (e.g.
// "3.u16", "3.png").
func parseTile(r *http.Request) (tileid.ID, error) {
	z, err := strconv.ParseUint(r.PathValue("z"), 10, 32)
	if err != nil {
		return tileid.ID{}, err
	}
	x, err := strconv.ParseUint(r.PathValue("x"), 10, 32)
	if err != nil {
		return tileid.ID{}, err
	}
	yRaw := r.PathValue("y")
	if i := strings.IndexByte(yRaw, '.'); i >= 0 {
		yRaw = yRaw[:i]
	}
	y, err := strconv.ParseUint(yRaw, 10, 32)
	if err != nil {
		return tileid.ID{}, err
	}
	return tileid.ID{Z: uint32(z), X: uint32(x), Y: uint32(y)}, nil
}

// acceptedEncodings parses Accept-Encoding into the store's preference
// order: br, gzip, identity, restricted to what the client actually sent.
func acceptedEncodings(r *http.Request) []artifactstore.Encoding {
	header := r.Header.Get("Accept-Encoding")
	var prefs []artifactstore.Encoding
	if strings.Contains(header, "br") {
		prefs = append(prefs, artifactstore.EncodingBrotli)
	}
	if strings.Contains(header, "gzip") {
		prefs = append(prefs, artifactstore.EncodingGzip)
	}
	prefs = append(prefs, artifactstore.EncodingIdentity)
	return prefs
}

func statusForError(err error) int {
	engErr, ok := err.(*engine.Error)
	if !ok {
		return http.StatusInternalServerError
	}
	switch engErr.Kind {
	case engine.KindInvalidRequest:
		return http.StatusBadRequest
	case engine.KindOverloaded:
		return http.StatusServiceUnavailable
	case engine.KindTimeout:
		return http.StatusGatewayTimeout
	case engine.KindStoreUnavailable:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
