// Command floodmap-generate precomputes the precompressed artifact tree
// (brotli variants, gzip variants when --gzip is set, and the manifest) for
// a zoom range and bounding box, so the running server can serve tiles from
// disk instead of synthesizing them on the request path. No identity (.u16)
// files are written.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cipher982/floodmap/internal/artifactstore"
	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/loader"
	"github.com/cipher982/floodmap/internal/logging"
	"github.com/cipher982/floodmap/internal/source"
	"github.com/cipher982/floodmap/internal/tileid"
)

type tile struct {
	z, x, y uint32
}

// minSourceCells is the fewest .zst source cells a legitimate source
// directory should contain. A count below this is almost always a
// misconfigured --source-dir rather than a genuinely tiny dataset, so
// generation aborts loudly instead of silently writing an all-skipped
// manifest.
const minSourceCells = 100

func checkSourceCoverage(sourceDir string) error {
	matches, err := filepath.Glob(filepath.Join(sourceDir, "*.zst"))
	if err != nil {
		return err
	}
	if len(matches) < minSourceCells {
		return fmt.Errorf("found only %d .zst cells (want at least %d); check --source-dir", len(matches), minSourceCells)
	}
	return nil
}

func main() {
	var (
		sourceDir = flag.String("source-dir", "./data/source", "DEM source cell directory")
		outputDir = flag.String("output-dir", "./data/precompressed", "output directory for {z}/{x}/{y} tiles")
		zoomMin   = flag.Uint("zoom-min", 8, "minimum zoom level (inclusive)")
		zoomMax   = flag.Uint("zoom-max", 11, "maximum zoom level (inclusive)")
		minLon    = flag.Float64("min-lon", -180, "bounding box west edge, degrees")
		minLat    = flag.Float64("min-lat", -85.05112878, "bounding box south edge, degrees")
		maxLon    = flag.Float64("max-lon", 180, "bounding box east edge, degrees")
		maxLat    = flag.Float64("max-lat", 85.05112878, "bounding box north edge, degrees")
		workers   = flag.Int("workers", 8, "parallel tile generation workers")
		gzipAlso  = flag.Bool("gzip", false, "also write a gzip variant alongside brotli")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logging.New("text", *logLevel)

	if *zoomMax < *zoomMin {
		logger.Error("zoom-max must be >= zoom-min")
		os.Exit(1)
	}

	if err := checkSourceCoverage(*sourceDir); err != nil {
		logger.Error("refusing to generate from a suspicious source directory", "source_dir", *sourceDir, "error", err)
		os.Exit(2)
	}

	store, err := source.New(os.DirFS(*sourceDir), source.WithLogger(logger))
	if err != nil {
		logger.Error("failed to open source store", "error", err)
		os.Exit(1)
	}
	ld := loader.New(store)

	writer, err := artifactstore.NewWriter(*outputDir)
	if err != nil {
		logger.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	encodings := []artifactstore.Encoding{artifactstore.EncodingBrotli}
	if *gzipAlso {
		encodings = append(encodings, artifactstore.EncodingGzip)
	}

	start := time.Now()
	written, skipped := 0, 0

	for z := *zoomMin; z <= *zoomMax; z++ {
		tiles := tilesForBBox(uint32(z), *minLon, *minLat, *maxLon, *maxLat)
		logger.Info("generating zoom level", "zoom", z, "tiles", len(tiles))

		results := make([]*loader.Mosaic, len(tiles))
		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(*workers)

		for i, t := range tiles {
			i, t := i, t
			g.Go(func() error {
				mosaic, err := ld.Load(ctx, tileid.ID{Z: t.z, X: t.x, Y: t.y})
				if err != nil {
					return fmt.Errorf("tile %d/%d/%d: %w", t.z, t.x, t.y, err)
				}
				results[i] = mosaic
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.Error("generation failed", "error", err)
			os.Exit(1)
		}

		for i, t := range tiles {
			mosaic := results[i]
			id := tileid.ID{Z: t.z, X: t.x, Y: t.y}
			if !mosaic.HasData {
				writer.SkipTile(t.z)
				skipped++
				continue
			}
			payload := codec.EncodeTile(mosaic.Pixels, mosaic.HasData)
			if err := writer.WriteTile(id, payload, encodings); err != nil {
				logger.Error("failed to write tile", "tile", id, "error", err)
				os.Exit(1)
			}
			written++
		}
	}

	if err := writer.WriteManifest(); err != nil {
		logger.Error("failed to write manifest", "error", err)
		os.Exit(1)
	}

	logger.Info("generation complete",
		"written", written,
		"skipped", skipped,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
}

// tilesForBBox enumerates every z/x/y tile whose bounds intersect the given
// geographic bounding box, clamped to Web Mercator's valid latitude range.
func tilesForBBox(z uint32, minLon, minLat, maxLon, maxLat float64) []tile {
	minLat = clampLat(minLat)
	maxLat = clampLat(maxLat)

	topLeft := tileid.FromLonLat(minLon, maxLat, z)
	bottomRight := tileid.FromLonLat(maxLon, minLat, z)

	x0, x1 := topLeft.X, bottomRight.X
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	y0, y1 := topLeft.Y, bottomRight.Y
	if y1 < y0 {
		y0, y1 = y1, y0
	}

	var tiles []tile
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			tiles = append(tiles, tile{z: z, x: x, y: y})
		}
	}
	return tiles
}

func clampLat(lat float64) float64 {
	const limit = 85.05112878
	return math.Max(-limit, math.Min(limit, lat))
}
