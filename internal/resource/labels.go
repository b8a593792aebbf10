// Package resource pools the expensive per-card resources: synthesized label
// images, compiled materials and the shared card geometry.
package resource

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"card-field/internal/cards"
)

// ErrSynthesis wraps label synthesis failures.
var ErrSynthesis = errors.New("resource: label synthesis failed")

// Tier is the label density tier.
type Tier int

const (
	TierDesktop Tier = iota
	TierMobile
)

func (t Tier) String() string {
	if t == TierMobile {
		return "mobile"
	}
	return "desktop"
}

// ParseTier maps "mobile" to TierMobile and anything else to TierDesktop.
func ParseTier(s string) Tier {
	if s == "mobile" {
		return TierMobile
	}
	return TierDesktop
}

// LabelKey identifies one synthesized label.
type LabelKey struct {
	CardID string
	Tier   Tier
}

// LabelSynthesizer renders a card's label.
type LabelSynthesizer interface {
	Synthesize(card cards.Card, size int) (image.Image, error)
}

var nextHandleID atomic.Uint64

// LabelHandle owns one label image until disposed.
type LabelHandle struct {
	id          uint64
	key         LabelKey
	placeholder bool

	mu       sync.RWMutex
	img      image.Image
	disposed bool
}

func newLabelHandle(key LabelKey, img image.Image, placeholder bool) *LabelHandle {
	return &LabelHandle{
		id:          nextHandleID.Add(1),
		key:         key,
		img:         img,
		placeholder: placeholder,
	}
}

// ID returns a process-unique handle id.
func (h *LabelHandle) ID() uint64 { return h.id }

// Key returns the label key. Placeholders have an empty key.
func (h *LabelHandle) Key() LabelKey { return h.key }

// Placeholder reports whether this is the shared fallback handle.
func (h *LabelHandle) Placeholder() bool { return h.placeholder }

// Image returns the label image, or nil once disposed.
func (h *LabelHandle) Image() image.Image {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.img
}

// Disposed reports whether the handle has been released.
func (h *LabelHandle) Disposed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.disposed
}

// Dispose releases the image. Placeholders are never disposed.
func (h *LabelHandle) Dispose() {
	if h.placeholder {
		return
	}
	h.mu.Lock()
	h.img = nil
	h.disposed = true
	h.mu.Unlock()
}

// LabelStats is a snapshot of label cache counters.
type LabelStats struct {
	Size         int    `json:"size"`
	Capacity     int    `json:"capacity"`
	Hits         uint64 `json:"hits"`
	Synthesized  uint64 `json:"synthesized"`
	Evicted      uint64 `json:"evicted"`
	Placeholders uint64 `json:"placeholders"`
}

// LabelCache caches synthesized labels and evicts in insertion order,
// disposing whatever it evicts.
type LabelCache struct {
	mu          sync.Mutex
	lru         *simplelru.LRU[LabelKey, *LabelHandle]
	synth       LabelSynthesizer
	sizes       map[Tier]int
	capacity    int
	placeholder *LabelHandle

	hits         uint64
	synthesized  uint64
	evicted      uint64
	placeholders uint64

	// OnEvict, if set, is called after an evicted handle is disposed.
	OnEvict func(LabelKey)
}

// NewLabelCache creates a cache holding at most capacity labels.
func NewLabelCache(synth LabelSynthesizer, capacity, desktopPx, mobilePx int) *LabelCache {
	if capacity <= 0 {
		capacity = 512
	}
	c := &LabelCache{
		synth:       synth,
		sizes:       map[Tier]int{TierDesktop: desktopPx, TierMobile: mobilePx},
		capacity:    capacity,
		placeholder: newLabelHandle(LabelKey{}, placeholderImage(), true),
	}
	c.lru, _ = simplelru.NewLRU[LabelKey, *LabelHandle](capacity, func(k LabelKey, h *LabelHandle) {
		h.Dispose()
		c.evicted++
		if c.OnEvict != nil {
			c.OnEvict(k)
		}
	})
	return c
}

// Fork returns an empty cache of the given capacity that synthesizes labels
// the same way as c. The two caches share no entries.
func (c *LabelCache) Fork(capacity int) *LabelCache {
	return NewLabelCache(c.synth, capacity, c.sizes[TierDesktop], c.sizes[TierMobile])
}

// Acquire returns the label for (card, tier), synthesizing it on a miss.
// Hits do not refresh an entry's position, so eviction follows insertion
// order. On synthesis failure the shared placeholder is returned and
// nothing is cached.
func (c *LabelCache) Acquire(card cards.Card, tier Tier) *LabelHandle {
	key := LabelKey{CardID: card.ID, Tier: tier}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.lru.Peek(key); ok && !h.Disposed() {
		c.hits++
		return h
	}

	img, err := c.synthesize(card, tier)
	if err != nil {
		c.placeholders++
		return c.placeholder
	}
	h := newLabelHandle(key, img, false)
	c.synthesized++
	c.lru.Add(key, h)
	return h
}

func (c *LabelCache) synthesize(card cards.Card, tier Tier) (img image.Image, err error) {
	if c.synth == nil {
		return nil, ErrSynthesis
	}
	defer func() {
		// Panics from the drawing backend fall back to the placeholder.
		if r := recover(); r != nil {
			img, err = nil, ErrSynthesis
		}
	}()
	img, err = c.synth.Synthesize(card, c.sizes[tier])
	if err != nil {
		return nil, errors.Join(ErrSynthesis, err)
	}
	if img == nil {
		return nil, ErrSynthesis
	}
	return img, nil
}

// Lookup returns a cached label without synthesizing.
func (c *LabelCache) Lookup(key LabelKey) (*LabelHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.lru.Peek(key)
	if !ok || h.Disposed() {
		return nil, false
	}
	return h, true
}

// Placeholder returns the shared fallback handle.
func (c *LabelCache) Placeholder() *LabelHandle { return c.placeholder }

// Len returns the number of cached labels.
func (c *LabelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cache counters.
func (c *LabelCache) Stats() LabelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return LabelStats{
		Size:         c.lru.Len(),
		Capacity:     c.capacity,
		Hits:         c.hits,
		Synthesized:  c.synthesized,
		Evicted:      c.evicted,
		Placeholders: c.placeholders,
	}
}

// Purge disposes every cached label.
func (c *LabelCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func placeholderImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	fill := color.RGBA{0x12, 0x12, 0x1a, 0xff}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return img
}
