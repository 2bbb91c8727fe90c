package artifactstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"

	"github.com/cipher982/floodmap/internal/tileid"
)

// Writer is the offline generator's write path: it materializes tile
// variants and the manifest atomically (temp file + rename), never mutating
// a file in place.
type Writer struct {
	root string

	stats map[uint32]*ZoomStats
}

// NewWriter creates a Writer rooted at dir, creating the root if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{root: dir, stats: map[uint32]*ZoomStats{}}, nil
}

// WriteTile writes the encoded uint16 payload for id in the given
// encodings, atomically, and records it in the in-memory manifest tally.
// If the payload is all-NoData, the caller should call SkipTile instead.
func (w *Writer) WriteTile(id tileid.ID, payload []byte, encodings []Encoding) error {
	dir := filepath.Join(w.root, fmt.Sprintf("%d", id.Z), fmt.Sprintf("%d", id.X))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var variants []string
	for _, enc := range encodings {
		encoded, err := encodeVariant(payload, enc)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%d%s", id.Y, extensionFor(enc)))
		if err := writeAtomic(path, encoded); err != nil {
			return err
		}
		variants = append(variants, string(enc))
	}

	stats := w.statsFor(id.Z)
	stats.Tiles++
	stats.Variants = mergeVariants(stats.Variants, variants)
	return nil
}

// SkipTile records a tile whose mosaic was all-NoData and was deliberately
// not written, per the generator contract.
func (w *Writer) SkipTile(zoom uint32) {
	w.statsFor(zoom).Skipped++
}

func (w *Writer) statsFor(zoom uint32) *ZoomStats {
	s, ok := w.stats[zoom]
	if !ok {
		s = &ZoomStats{Zoom: zoom}
		w.stats[zoom] = s
	}
	return s
}

func mergeVariants(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range add {
		if !seen[v] {
			existing = append(existing, v)
			seen[v] = true
		}
	}
	return existing
}

func encodeVariant(payload []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case EncodingGzip:
		return gzipBytes(payload)
	default:
		return payload, nil
	}
}

// WriteManifest writes manifest.json last, atomically, reflecting every
// WriteTile/SkipTile call so far.
func (w *Writer) WriteManifest() error {
	zooms := make([]ZoomStats, 0, len(w.stats))
	for _, s := range w.stats {
		zooms = append(zooms, *s)
	}
	m := Manifest{GeneratorVersion: ManifestVersion, Zooms: zooms}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(w.root, "manifest.json"), data)
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, so concurrent readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
