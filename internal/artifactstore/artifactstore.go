// Package artifactstore implements the Precompressed Artifact Store: an
// on-disk pyramid of pre-rendered uint16 tile payloads, each materialized in
// one or more content-encodings, read negotiated by preference order and
// written atomically by the offline generator.
package artifactstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/cipher982/floodmap/internal/codec"
	"github.com/cipher982/floodmap/internal/tileid"
)

// Encoding identifies a content-encoding variant backing a tile payload.
type Encoding string

const (
	EncodingBrotli   Encoding = "br"
	EncodingGzip     Encoding = "gzip"
	EncodingIdentity Encoding = "identity"
)

func extensionFor(enc Encoding) string {
	switch enc {
	case EncodingBrotli:
		return ".u16.br"
	case EncodingGzip:
		return ".u16.gz"
	default:
		return ".u16"
	}
}

// ManifestVersion is the generator contract version recorded in manifest.json.
const ManifestVersion = 1

// ZoomStats records per-zoom tile counts and the count of tiles whose
// mosaic was all-NoData and therefore deliberately not written.
type ZoomStats struct {
	Zoom     uint32 `json:"zoom"`
	Tiles    int    `json:"tiles"`
	Skipped  int    `json:"skipped"`
	Variants []string `json:"variants"`
}

// Manifest is the root manifest.json contract.
type Manifest struct {
	GeneratorVersion int         `json:"generator_version"`
	Zooms            []ZoomStats `json:"zooms"`
}

// Store is a read path over a precompressed artifact root. Writes are the
// offline generator's responsibility (see WriteTile/WriteManifest); Store
// itself never mutates the root.
type Store struct {
	root string

	mu       sync.RWMutex
	manifest *Manifest
}

// New opens a Store rooted at dir. The manifest is not read until
// LoadManifest is called and may be absent; Negotiate probes the tile files
// directly either way.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's filesystem root.
func (s *Store) Root() string { return s.root }

// LoadManifest reads manifest.json from the root, caching it in-process.
// A missing manifest is not an error: the store degrades to per-file probes.
func (s *Store) LoadManifest() error {
	data, err := os.ReadFile(filepath.Join(s.root, "manifest.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.mu.Lock()
	s.manifest = &m
	s.mu.Unlock()
	return nil
}

// Manifest returns the most recently loaded manifest, or nil if none has
// been loaded or none exists.
func (s *Store) Manifest() *Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// storedEncodings lists every encoding the generator may have written, in
// the order Negotiate falls back through when none of the client's
// preferences has a direct match on disk.
var storedEncodings = []Encoding{EncodingBrotli, EncodingGzip, EncodingIdentity}

// Negotiate finds a precompressed artifact for id honoring the client's
// preferred content-encodings, in order. A stored variant whose encoding is
// directly acceptable to the client is returned as its raw, still-encoded
// bytes (read whole into memory) alongside the matching Content-Encoding.
// Failing that, any other stored variant is decoded to identity rather than
// falling through to full resynthesis. Returns ok=false only when no
// variant exists on disk in any encoding.
func (s *Store) Negotiate(id tileid.ID, preferences []Encoding) (payload []byte, used Encoding, ok bool, err error) {
	for _, enc := range preferences {
		raw, exists, readErr := s.RawVariant(id, enc)
		if readErr != nil {
			return nil, "", false, readErr
		}
		if !exists {
			continue
		}
		if verr := validateVariant(raw, enc); verr != nil {
			return nil, "", false, verr
		}
		return raw, enc, true, nil
	}

	for _, enc := range storedEncodings {
		if containsEncoding(preferences, enc) {
			continue // already tried above
		}
		raw, exists, readErr := s.RawVariant(id, enc)
		if readErr != nil {
			return nil, "", false, readErr
		}
		if !exists {
			continue
		}
		decoded, decErr := decodeVariant(raw, enc)
		if decErr != nil {
			return nil, "", false, decErr
		}
		if len(decoded) != codec.PayloadBytes {
			return nil, "", false, fmt.Errorf("artifactstore: %s decoded to %d bytes, want %d", s.tilePath(id, enc), len(decoded), codec.PayloadBytes)
		}
		return decoded, EncodingIdentity, true, nil
	}

	return nil, "", false, nil
}

func containsEncoding(list []Encoding, enc Encoding) bool {
	for _, e := range list {
		if e == enc {
			return true
		}
	}
	return false
}

func validateVariant(raw []byte, enc Encoding) error {
	decoded, err := decodeVariant(raw, enc)
	if err != nil {
		return err
	}
	if len(decoded) != codec.PayloadBytes {
		return fmt.Errorf("artifactstore: variant decoded to %d bytes, want %d", len(decoded), codec.PayloadBytes)
	}
	return nil
}

// RawVariant returns the raw (still-encoded) bytes for id in encoding enc,
// plus whether the file exists. The whole file is read into memory; it is
// not served via send-file.
func (s *Store) RawVariant(id tileid.ID, enc Encoding) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.tilePath(id, enc))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func decodeVariant(raw []byte, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingBrotli:
		r := brotli.NewReader(bytes.NewReader(raw))
		return io.ReadAll(r)
	case EncodingGzip:
		return gunzip(raw)
	default:
		return raw, nil
	}
}

func (s *Store) tilePath(id tileid.ID, enc Encoding) string {
	return filepath.Join(s.root,
		fmt.Sprintf("%d", id.Z),
		fmt.Sprintf("%d", id.X),
		fmt.Sprintf("%d%s", id.Y, extensionFor(enc)))
}
