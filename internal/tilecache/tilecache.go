// Package tilecache implements the Tile Cache: a bounded LRU of rendered
// PNG bodies keyed by (mode, water level quantum, z, x, y). Thread-safe via
// hashicorp/golang-lru/v2's internal striped locking.
package tilecache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cipher982/floodmap/internal/colormap"
	"github.com/cipher982/floodmap/internal/tileid"
)

var evictions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "floodmap", Subsystem: "tilecache", Name: "evictions_total",
	Help: "Rendered PNG cache evictions.",
})

// Key identifies one cached rendered PNG.
type Key struct {
	Mode              colormap.Mode
	WaterLevelQuantum float64
	Tile              tileid.ID
}

// Cache is a bounded LRU of rendered PNG bodies.
type Cache struct {
	lru *lru.Cache[Key, []byte]
}

// New creates a Cache holding up to capacity entries.
func New(capacity int) (*Cache, error) {
	l, err := lru.NewWithEvict[Key, []byte](capacity, func(_ Key, _ []byte) {
		evictions.Inc()
	})
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the cached PNG for key, if present, updating its LRU
// recency.
func (c *Cache) Get(key Key) ([]byte, bool) {
	return c.lru.Get(key)
}

// Put inserts or overwrites the cached PNG for key.
func (c *Cache) Put(key Key, png []byte) {
	c.lru.Add(key, png)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
