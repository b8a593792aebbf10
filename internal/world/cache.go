package world

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheCapacity bounds the number of chunks kept in memory.
const DefaultCacheCapacity = 256

// ChunkCache is a get-or-generate LRU of chunk placements.
type ChunkCache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[ChunkCoord, []Placement]
	gen *Generator
	cap int

	hits      uint64
	misses    uint64
	evictions uint64
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// NewChunkCache creates a cache backed by gen.
func NewChunkCache(gen *Generator, capacity int) *ChunkCache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c := &ChunkCache{gen: gen, cap: capacity}
	// simplelru only fails on a non-positive size.
	c.lru, _ = simplelru.NewLRU[ChunkCoord, []Placement](capacity, func(ChunkCoord, []Placement) {
		c.evictions++
	})
	return c
}

// Get returns the placements of coord, generating and inserting them on a
// miss. A hit promotes the entry to most recently used.
func (c *ChunkCache) Get(coord ChunkCoord) []Placement {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.lru.Get(coord); ok {
		c.hits++
		return p
	}
	c.misses++
	p := c.gen.Generate(coord)
	c.lru.Add(coord, p)
	return p
}

// Peek returns cached placements without generating or promoting.
func (c *ChunkCache) Peek(coord ChunkCoord) ([]Placement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(coord)
}

// Lookup returns cached placements and promotes the entry, without
// generating on a miss.
func (c *ChunkCache) Lookup(coord ChunkCoord) ([]Placement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.lru.Get(coord)
	if ok {
		c.hits++
	}
	return p, ok
}

// Touch promotes coord if cached and reports whether it was.
func (c *ChunkCache) Touch(coord ChunkCoord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lru.Get(coord)
	return ok
}

// Put inserts placements produced elsewhere (deferred generation).
func (c *ChunkCache) Put(coord ChunkCoord, p []Placement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(coord, p)
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache counters.
func (c *ChunkCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      c.lru.Len(),
		Capacity:  c.cap,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
