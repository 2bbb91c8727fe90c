// Package engine implements the Tile Engine: the request coordinator that
// serves precompressed artifacts when available, else synthesizes tiles at
// runtime, collapsing concurrent requests for the same key via
// single-flight and bounding in-flight synthesis with a concurrency cap.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/colormap"
	"github.com/cipher982/floodmap/internal/loader"
	"github.com/cipher982/floodmap/internal/tilecache"
	"github.com/cipher982/floodmap/internal/tileid"
)

// Kind classifies an engine-level failure for HTTP status mapping.
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindCoverageMiss
	KindSourceCorrupt
	KindStoreUnavailable
	KindOverloaded
	KindTimeout
	KindInternal
)

// Error is the single error type the engine returns; Kind drives the
// caller's HTTP status mapping.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("engine: %s: %v", e.Message, e.Cause)
	}
	return "engine: " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// checkDeadline reports a Timeout error once ctx's per-request deadline
// (set by the HTTP layer from DEADLINE_MS) has passed. Called after each
// blocking stage of synthesis so a request that overruns its deadline
// during decompression, mosaicking, or PNG encoding is reported as timed
// out rather than silently succeeding late.
func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", Cause: err}
	}
	return nil
}

// Source labels where a response's bytes came from, surfaced via the
// X-Tile-Source diagnostic header.
type Source string

const (
	SourcePrecompressed Source = "precompressed"
	SourceRuntime       Source = "runtime"
	SourceCache         Source = "cache"
)

var (
	singleflightCollapses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "engine", Name: "singleflight_collapses_total",
		Help: "Requests that joined an in-flight leader instead of synthesizing independently.",
	})
	overloaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "engine", Name: "overloaded_total",
		Help: "Requests rejected because the synthesis queue was full.",
	})
	synthesisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "floodmap", Subsystem: "engine", Name: "synthesis_seconds",
		Help:    "Wall time spent synthesizing a tile from source cells.",
		Buckets: prometheus.DefBuckets,
	})
)

// Engine coordinates the precompressed store, the tile cache, and the
// loader/codec/colormap pipeline behind a single-flight and concurrency-cap
// discipline.
type Engine struct {
	loader      *loader.Loader
	artifacts   *artifactstore.Store
	cache       *tilecache.Cache
	maxZoom     uint32
	minWaterM   float64
	maxWaterM   float64

	sem      chan struct{}
	queued   int32
	maxQueue int32

	sfUint16 singleflight.Group
	sfPNG    singleflight.Group

	topoLUT  atomic.Pointer[colormap.LUT]
	floodLUT sync.Map // float64 quantum -> *colormap.LUT
}

// Config holds Engine construction parameters.
type Config struct {
	MaxZoom         uint32
	MinWaterLevelM  float64
	MaxWaterLevelM  float64
	ConcurrencyCap  int
	MaxQueueLength  int
	TileCacheMax    int
}

// New constructs an Engine. artifacts may be nil (no precompressed store
// configured), in which case every request synthesizes at runtime.
func New(ld *loader.Loader, artifacts *artifactstore.Store, cfg Config) (*Engine, error) {
	cache, err := tilecache.New(cfg.TileCacheMax)
	if err != nil {
		return nil, err
	}
	return &Engine{
		loader:    ld,
		artifacts: artifacts,
		cache:     cache,
		maxZoom:   cfg.MaxZoom,
		minWaterM: cfg.MinWaterLevelM,
		maxWaterM: cfg.MaxWaterLevelM,
		sem:       make(chan struct{}, cfg.ConcurrencyCap),
		maxQueue:  int32(cfg.MaxQueueLength),
	}, nil
}

func newInvalid(msg string) *Error { return &Error{Kind: KindInvalidRequest, Message: msg} }

func (e *Engine) validateTile(id tileid.ID) error {
	if err := tileid.Validate(id, e.maxZoom); err != nil {
		return &Error{Kind: KindInvalidRequest, Message: "invalid tile coordinate", Cause: err}
	}
	return nil
}

func (e *Engine) validateWaterLevel(waterLevelM float64) error {
	if waterLevelM < e.minWaterM || waterLevelM > e.maxWaterM {
		return newInvalid(fmt.Sprintf("water level %.2f outside [%.1f, %.1f]", waterLevelM, e.minWaterM, e.maxWaterM))
	}
	return nil
}

// acquire reserves a synthesis slot, respecting the concurrency cap and the
// bounded queue; returns an Overloaded error rather than queueing
// unboundedly, and a Timeout error if ctx is done first.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	default:
	}

	if atomic.AddInt32(&e.queued, 1) > e.maxQueue {
		atomic.AddInt32(&e.queued, -1)
		overloaded.Inc()
		return nil, &Error{Kind: KindOverloaded, Message: "synthesis queue full"}
	}
	defer atomic.AddInt32(&e.queued, -1)

	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, &Error{Kind: KindTimeout, Message: "deadline exceeded waiting for synthesis slot", Cause: ctx.Err()}
	}
}

// ServeUint16 implements the serve_uint16 state machine: validate,
// negotiate precompressed, single-flight, synthesize, respond.
func (e *Engine) ServeUint16(ctx context.Context, id tileid.ID, preferences []artifactstore.Encoding) (payload []byte, enc artifactstore.Encoding, source Source, err error) {
	if err := e.validateTile(id); err != nil {
		return nil, "", "", err
	}

	if e.artifacts != nil {
		raw, used, ok, nerr := e.artifacts.Negotiate(id, preferences)
		if nerr != nil {
			return nil, "", "", &Error{Kind: KindStoreUnavailable, Message: "precompressed store read failed", Cause: nerr}
		}
		if ok {
			if derr := checkDeadline(ctx); derr != nil {
				return nil, "", "", derr
			}
			return raw, used, SourcePrecompressed, nil
		}
	}

	key := fmt.Sprintf("%d/%d/%d", id.Z, id.X, id.Y)
	v, err, shared := e.sfUint16.Do(key, func() (interface{}, error) {
		release, acqErr := e.acquire(ctx)
		if acqErr != nil {
			return nil, acqErr
		}
		defer release()

		start := time.Now()
		mosaic, loadErr := e.loader.Load(ctx, id)
		synthesisDuration.Observe(time.Since(start).Seconds())
		if loadErr != nil {
			return nil, &Error{Kind: KindStoreUnavailable, Message: "source load failed", Cause: loadErr}
		}
		if derr := checkDeadline(ctx); derr != nil {
			return nil, derr
		}
		return codec.EncodeTile(mosaic.Pixels, mosaic.HasData), nil
	})
	if shared {
		singleflightCollapses.Inc()
	}
	if err != nil {
		return nil, "", "", err
	}
	return v.([]byte), artifactstore.EncodingIdentity, SourceRuntime, nil
}

// ServePNG implements the serve_png state machine: validate, cache probe,
// single-flight, synthesize via the uint16 path, colorize, PNG-encode,
// cache insert.
func (e *Engine) ServePNG(ctx context.Context, id tileid.ID, mode colormap.Mode, waterLevelM float64) (png []byte, quantum float64, source Source, err error) {
	if err := e.validateTile(id); err != nil {
		return nil, 0, "", err
	}
	if mode == colormap.ModeFlood {
		if err := e.validateWaterLevel(waterLevelM); err != nil {
			return nil, 0, "", err
		}
	}
	quantum = colormap.QuantizeWaterLevel(waterLevelM)

	cacheKey := tilecache.Key{Mode: mode, WaterLevelQuantum: quantum, Tile: id}
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached, quantum, SourceCache, nil
	}

	key := fmt.Sprintf("%d/%d/%d/%d/%.1f", mode, id.Z, id.X, id.Y, quantum)
	v, err, shared := e.sfPNG.Do(key, func() (interface{}, error) {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return pngOutcome{payload: cached, source: SourceCache}, nil
		}

		wirePayload, _, src, uerr := e.ServeUint16(ctx, id, []artifactstore.Encoding{artifactstore.EncodingIdentity})
		if uerr != nil {
			return nil, uerr
		}
		wires, derr := codec.DecodeTile(wirePayload)
		if derr != nil {
			return nil, &Error{Kind: KindInternal, Message: "wire payload decode failed", Cause: derr}
		}

		var rgba []byte
		if codec.AllNoData(wirePayload) {
			rgba = fillColor(noDataColor(mode))
		} else {
			lut := e.lutFor(mode, quantum)
			rgba = colormap.Render(wires, lut)
		}

		encoded, perr := encodePNG(rgba)
		if perr != nil {
			return nil, &Error{Kind: KindInternal, Message: "png encode failed", Cause: perr}
		}
		if derr := checkDeadline(ctx); derr != nil {
			return nil, derr
		}

		e.cache.Put(cacheKey, encoded)
		return pngOutcome{payload: encoded, source: src}, nil
	})
	if shared {
		singleflightCollapses.Inc()
	}
	if err != nil {
		return nil, quantum, "", err
	}
	outcome := v.(pngOutcome)
	return outcome.payload, quantum, outcome.source, nil
}

// pngOutcome carries a synthesized PNG alongside where its bytes actually
// came from, so a single-flight leader's X-Tile-Source reflects the real
// upstream (precompressed store, runtime synthesis, or a cache hit raced
// in from another goroutine) rather than a hardcoded label.
type pngOutcome struct {
	payload []byte
	source  Source
}

func noDataColor(mode colormap.Mode) colormap.RGBA {
	if mode == colormap.ModeFlood {
		return colormap.WaterColor()
	}
	return colormap.OceanColor()
}

func fillColor(c colormap.RGBA) []byte {
	out := make([]byte, tileid.TileSize*tileid.TileSize*4)
	for i := 0; i < len(out); i += 4 {
		copy(out[i:i+4], c[:])
	}
	return out
}

// lutFor returns the LUT for (mode, quantum), building and memoizing it if
// necessary. The topographic LUT is parameter-free and held behind an
// atomic pointer; flood LUTs are memoized per water-level quantum.
func (e *Engine) lutFor(mode colormap.Mode, quantum float64) *colormap.LUT {
	if mode == colormap.ModeTopographic {
		if lut := e.topoLUT.Load(); lut != nil {
			return lut
		}
		lut := colormap.BuildTopographic()
		e.topoLUT.Store(lut)
		return lut
	}

	if v, ok := e.floodLUT.Load(quantum); ok {
		return v.(*colormap.LUT)
	}
	lut := colormap.BuildFlood(quantum)
	actual, _ := e.floodLUT.LoadOrStore(quantum, lut)
	return actual.(*colormap.LUT)
}

// encodePNG encodes a 256x256 RGBA buffer with BestSpeed compression: PNG is
// a compatibility format here, not the primary wire format.
func encodePNG(rgba []byte) ([]byte, error) {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: tileid.TileSize * 4,
		Rect:   image.Rect(0, 0, tileid.TileSize, tileid.TileSize),
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
