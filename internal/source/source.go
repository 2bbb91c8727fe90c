// Package source provides the read-only DEM Source Store: a mapping from
// 1x1 degree geographic cells to decompressed int16 elevation arrays, backed
// by Zstandard-compressed files with JSON side-car metadata.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cipher982/floodmap/internal/tileid"
)

// legacyVoid is a void sentinel some older DEM tiles used in place of the
// canonical NoData value; it is coerced to NoData on load.
const legacyVoid int16 = -32767

// canonicalNoData is the sentinel emitted by Store regardless of what a
// source file's side-car declares, unless the side-car gives an explicit,
// different value (respected as-is).
const canonicalNoData int16 = -32768

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "source", Name: "cache_hits_total",
		Help: "Decompressed source array cache hits.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "source", Name: "cache_misses_total",
		Help: "Decompressed source array cache misses.",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "source", Name: "cache_evictions_total",
		Help: "Decompressed source array cache evictions.",
	})
	corruptCells = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "source", Name: "corrupt_cells_total",
		Help: "Source cells treated as absent due to corruption.",
	})
	absentCells = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "floodmap", Subsystem: "source", Name: "absent_cells_total",
		Help: "Source cell lookups that found no file on disk.",
	})
)

// Bounds is the geographic bounding box of a source cell, in degrees.
type Bounds struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

type sideCar struct {
	Shape  [2]int  `json:"shape"`
	Bounds Bounds  `json:"bounds"`
	NoData int16   `json:"nodata"`
	CRS    string  `json:"crs"`
}

// Array is a decompressed source cell: its int16 raster plus the metadata
// needed to index into it.
type Array struct {
	Data   []int16
	Shape  [2]int
	Bounds Bounds
	NoData int16
}

// At returns the value at (row, col), or NoData if out of range.
func (a *Array) At(row, col int) int16 {
	if row < 0 || row >= a.Shape[0] || col < 0 || col >= a.Shape[1] {
		return a.NoData
	}
	return a.Data[row*a.Shape[1]+col]
}

// ErrAbsent indicates no usable data exists for the requested cell: either
// it was never ingested (ocean / out of coverage) or it is corrupt.
var ErrAbsent = errors.New("source: cell absent")

// ErrUnavailable indicates an I/O failure unrelated to any single cell's
// content; the caller should surface this as a 5xx-class condition.
type ErrUnavailable struct {
	Cause error
}

func (e *ErrUnavailable) Error() string { return fmt.Sprintf("source: store unavailable: %v", e.Cause) }
func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// Store is the DEM Source Store: it opens, decompresses, and caches 1x1
// degree elevation cells addressed by integer lat/lon corner.
type Store struct {
	fsys    fs.FS
	decoder *zstd.Decoder

	cache  *lru.Cache[tileid.CellCorner, *Array]
	group  singleflight.Group
	logger *slog.Logger

	warnedOnce sync.Map // tileid.CellCorner -> struct{}, one SourceCorrupt warning per cell per process lifetime
}

// Option configures a Store.
type Option func(*Store)

// WithCacheSize sets the maximum number of decompressed arrays held in RAM.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		cache, err := lru.NewWithEvict(n, func(_ tileid.CellCorner, _ *Array) {
			cacheEvictions.Inc()
		})
		if err == nil {
			s.cache = cache
		}
	}
}

// WithLogger sets the structured logger used for SourceCorrupt warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store reading cells from fsys.
func New(fsys fs.FS, options ...Option) (*Store, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	cache, err := lru.NewWithEvict[tileid.CellCorner, *Array](128, nil)
	if err != nil {
		return nil, err
	}
	s := &Store{
		fsys:    fsys,
		decoder: decoder,
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

func filename(c tileid.CellCorner) (data, meta string) {
	latLetter := "n"
	lat := c.LatFloor
	if lat < 0 {
		latLetter = "s"
		lat = -lat
	}
	lonLetter := "e"
	lon := c.LonFloor
	if lon < 0 {
		lonLetter = "w"
		lon = -lon
	}
	base := fmt.Sprintf("%s%02d_%s%03d_1arc_v3", latLetter, lat, lonLetter, lon)
	return base + ".zst", base + ".json"
}

// Open returns the decompressed array for the given cell, using the cache
// when possible. It returns ErrAbsent (wrapped, via errors.Is) when the cell
// does not exist or is corrupt; this is not treated as an error by callers.
func (s *Store) Open(ctx context.Context, corner tileid.CellCorner) (*Array, error) {
	if array, ok := s.cache.Get(corner); ok {
		cacheHits.Inc()
		return array, nil
	}

	cacheMisses.Inc()
	v, err, _ := s.group.Do(fmt.Sprintf("%d:%d", corner.LatFloor, corner.LonFloor), func() (interface{}, error) {
		if array, ok := s.cache.Get(corner); ok {
			return array, nil
		}
		array, err := s.load(corner)
		if err != nil {
			return nil, err
		}
		s.cache.Add(corner, array)
		return array, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Array), nil
}

func (s *Store) load(corner tileid.CellCorner) (*Array, error) {
	dataName, metaName := filename(corner)

	metaBytes, err := fs.ReadFile(s.fsys, metaName)
	if errors.Is(err, fs.ErrNotExist) {
		absentCells.Inc()
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, &ErrUnavailable{Cause: err}
	}

	var meta sideCar
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		s.logCorruptOnce(corner, fmt.Errorf("parse side-car: %w", err))
		return nil, ErrAbsent
	}

	compressed, err := fs.ReadFile(s.fsys, dataName)
	if errors.Is(err, fs.ErrNotExist) {
		absentCells.Inc()
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, &ErrUnavailable{Cause: err}
	}

	decompressed, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		s.logCorruptOnce(corner, fmt.Errorf("decompress: %w", err))
		return nil, ErrAbsent
	}

	wantLen := meta.Shape[0] * meta.Shape[1] * 2
	if wantLen <= 0 || len(decompressed) != wantLen {
		s.logCorruptOnce(corner, fmt.Errorf("shape %v declares %d bytes, got %d", meta.Shape, wantLen, len(decompressed)))
		return nil, ErrAbsent
	}

	data := make([]int16, meta.Shape[0]*meta.Shape[1])
	for i := range data {
		v := int16(uint16(decompressed[2*i]) | uint16(decompressed[2*i+1])<<8)
		if v == legacyVoid {
			v = canonicalNoData
		}
		data[i] = v
	}

	noData := meta.NoData
	if noData == legacyVoid {
		noData = canonicalNoData
	}

	return &Array{
		Data:   data,
		Shape:  meta.Shape,
		Bounds: meta.Bounds,
		NoData: noData,
	}, nil
}

func (s *Store) logCorruptOnce(corner tileid.CellCorner, cause error) {
	if _, loaded := s.warnedOnce.LoadOrStore(corner, struct{}{}); loaded {
		return
	}
	corruptCells.Inc()
	s.logger.Warn("source cell corrupt, treating as absent",
		"lat_floor", corner.LatFloor, "lon_floor", corner.LonFloor, "error", cause)
}
