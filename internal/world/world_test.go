package world

import (
	"reflect"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/config"
)

func newTestGenerator() *Generator {
	return NewGenerator(config.DefaultWorld())
}

// TestGenerateDeterministic checks repeated calls and call order do not
// change a chunk's placements.
func TestGenerateDeterministic(t *testing.T) {
	gen := newTestGenerator()
	coords := []ChunkCoord{{0, 0, 0}, {3, -2, 7}, {-100, 50, -1}, {1, 1, 1}}

	first := make(map[ChunkCoord][]Placement)
	for _, c := range coords {
		first[c] = gen.Generate(c)
	}

	// Reverse order, fresh generator, and through a warm cache.
	other := newTestGenerator()
	cache := NewChunkCache(other, 2)
	for i := len(coords) - 1; i >= 0; i-- {
		c := coords[i]
		if got := other.Generate(c); !reflect.DeepEqual(got, first[c]) {
			t.Errorf("Chunk %v differs across generators", c)
		}
		if got := cache.Get(c); !reflect.DeepEqual(got, first[c]) {
			t.Errorf("Chunk %v differs through cache", c)
		}
	}

	if !reflect.DeepEqual(GenerateChunkPlanes(3, -2, 7), first[ChunkCoord{3, -2, 7}]) {
		t.Error("GenerateChunkPlanes should match the default generator")
	}
}

// TestGenerateBounds checks count, containment, scale and index ranges.
func TestGenerateBounds(t *testing.T) {
	cfg := config.DefaultWorld()
	gen := NewGenerator(cfg)

	for x := -3; x <= 3; x++ {
		for y := -3; y <= 3; y++ {
			for z := -3; z <= 3; z++ {
				c := ChunkCoord{x, y, z}
				ps := gen.Generate(c)
				if len(ps) != cfg.ItemsPerChunk {
					t.Fatalf("Expected %d placements, got %d", cfg.ItemsPerChunk, len(ps))
				}
				for _, p := range ps {
					if !c.Contains(p.Position, cfg.ChunkSize) {
						t.Errorf("Placement %s at %v outside chunk %v", p.ID, p.Position, c)
					}
					if p.Chunk != c {
						t.Errorf("Expected chunk %v, got %v", c, p.Chunk)
					}
					if p.Scale < cfg.MinScale || p.Scale >= cfg.MaxScale {
						t.Errorf("Scale %v out of [%v, %v)", p.Scale, cfg.MinScale, cfg.MaxScale)
					}
					if p.CardIndex < 0 || p.CardIndex >= cfg.CardIndexRange {
						t.Errorf("Card index %d out of range", p.CardIndex)
					}
				}
			}
		}
	}
}

// TestGenerateIDs checks placement ids encode chunk and slot.
func TestGenerateIDs(t *testing.T) {
	ps := newTestGenerator().Generate(ChunkCoord{-1, 2, 3})
	if ps[0].ID != "-1-2-3-0" || ps[4].ID != "-1-2-3-4" {
		t.Errorf("Unexpected ids %q %q", ps[0].ID, ps[4].ID)
	}
}

// TestGenerateVariesBySeed checks the world seed changes the layout.
func TestGenerateVariesBySeed(t *testing.T) {
	cfg := config.DefaultWorld()
	a := NewGenerator(cfg).Generate(ChunkCoord{})
	cfg.Seed = 42
	b := NewGenerator(cfg).Generate(ChunkCoord{})
	if reflect.DeepEqual(a, b) {
		t.Error("Expected different placements for different seeds")
	}
}

// TestChunkOf checks flooring for negative coordinates.
func TestChunkOf(t *testing.T) {
	tests := []struct {
		pos  mgl64.Vec3
		want ChunkCoord
	}{
		{mgl64.Vec3{0, 0, 0}, ChunkCoord{0, 0, 0}},
		{mgl64.Vec3{109.9, 110, -0.1}, ChunkCoord{0, 1, -1}},
		{mgl64.Vec3{-110, -110.5, 220}, ChunkCoord{-1, -2, 2}},
	}
	for _, tt := range tests {
		if got := ChunkOf(tt.pos, 110); got != tt.want {
			t.Errorf("ChunkOf(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

// TestOffsetsAndShell checks neighborhood sizes and shell membership.
func TestOffsetsAndShell(t *testing.T) {
	if n := len(Offsets(2)); n != 125 {
		t.Errorf("Expected 125 offsets for radius 2, got %d", n)
	}
	if Offsets(2)[0] != (ChunkCoord{}) {
		t.Error("Expected center first")
	}

	for r := 0; r <= 4; r++ {
		shell := Shell(ChunkCoord{}, r)
		seen := make(map[ChunkCoord]bool)
		for _, c := range shell {
			if Chebyshev(ChunkCoord{}, c) != r {
				t.Errorf("Shell %d contains %v at distance %d", r, c, Chebyshev(ChunkCoord{}, c))
			}
			if seen[c] {
				t.Errorf("Shell %d repeats %v", r, c)
			}
			seen[c] = true
		}
		side := 2*r + 1
		want := side * side * side
		if r > 0 {
			want -= (side - 2) * (side - 2) * (side - 2)
		}
		if len(shell) != want {
			t.Errorf("Shell %d: expected %d coords, got %d", r, want, len(shell))
		}
	}
}

// TestChunkCacheLRU checks promotion on hit and eviction of the LRU entry.
func TestChunkCacheLRU(t *testing.T) {
	cache := NewChunkCache(newTestGenerator(), 3)
	a, b, c, d := ChunkCoord{0, 0, 0}, ChunkCoord{1, 0, 0}, ChunkCoord{2, 0, 0}, ChunkCoord{3, 0, 0}

	cache.Get(a)
	cache.Get(b)
	cache.Get(c)
	cache.Get(a) // promote a; b is now least recent
	cache.Get(d)

	if cache.Len() != 3 {
		t.Fatalf("Expected size 3, got %d", cache.Len())
	}
	if _, ok := cache.Peek(b); ok {
		t.Error("Expected b to be evicted")
	}
	if _, ok := cache.Peek(a); !ok {
		t.Error("Expected a to survive after promotion")
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 4 || stats.Evictions != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

// TestLoaderSync checks a sync window is fully cached on return.
func TestLoaderSync(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 256)
	l := NewLoader(cache, gen, LoadSync, 1, 0)

	w := l.SetWindow(ChunkCoord{5, 5, 5})
	if len(w.Coords) != 27 {
		t.Fatalf("Expected 27 coords, got %d", len(w.Coords))
	}
	if w.Generation != 1 {
		t.Errorf("Expected generation 1, got %d", w.Generation)
	}
	for _, c := range w.Coords {
		if _, ok := cache.Peek(c); !ok {
			t.Errorf("Chunk %v missing after sync window", c)
		}
	}
}

// TestLoaderDeferredApplyOnDrain checks results land only through Drain.
func TestLoaderDeferredApplyOnDrain(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 256)
	l := NewLoader(cache, gen, LoadDeferred, 1, 2)
	l.Start()
	defer l.Stop()

	w := l.SetWindow(ChunkCoord{})
	if _, ok := l.Placements(ChunkCoord{}); ok {
		t.Fatal("Placements should not be available before Drain")
	}

	deadline := time.Now().Add(2 * time.Second)
	loaded := make(map[ChunkCoord]bool)
	for len(loaded) < len(w.Coords) && time.Now().Before(deadline) {
		for _, c := range l.Drain() {
			loaded[c] = true
		}
		time.Sleep(time.Millisecond)
	}
	if len(loaded) != len(w.Coords) {
		t.Fatalf("Expected %d chunks loaded, got %d", len(w.Coords), len(loaded))
	}
	for _, c := range w.Coords {
		p, ok := l.Placements(c)
		if !ok || !reflect.DeepEqual(p, gen.Generate(c)) {
			t.Errorf("Chunk %v not applied correctly", c)
		}
	}
}

// TestLoaderDeferredDropsStale checks results for a replaced window are
// never applied.
func TestLoaderDeferredDropsStale(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 256)
	l := NewLoader(cache, gen, LoadDeferred, 1, 2)
	l.Start()
	defer l.Stop()

	l.SetWindow(ChunkCoord{100, 100, 100})
	// Let the workers finish the first window before replacing it.
	time.Sleep(50 * time.Millisecond)
	l.SetWindow(ChunkCoord{-100, -100, -100})

	deadline := time.Now().Add(2 * time.Second)
	for l.Pending() > 0 && time.Now().Before(deadline) {
		for _, c := range l.Drain() {
			if Chebyshev(c, ChunkCoord{-100, -100, -100}) > 1 {
				t.Fatalf("Applied stale chunk %v", c)
			}
		}
		time.Sleep(time.Millisecond)
	}

	if _, ok := cache.Peek(ChunkCoord{100, 100, 100}); ok {
		t.Error("Stale chunk from cancelled window reached the cache")
	}
	if l.Dropped() == 0 {
		t.Error("Expected stale results to be counted as dropped")
	}
}

// TestLoaderDeferredWithoutStart checks the sequential fallback.
func TestLoaderDeferredWithoutStart(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 256)
	l := NewLoader(cache, gen, LoadDeferred, 0, 1)

	l.SetWindow(ChunkCoord{1, 2, 3})
	if _, ok := l.Placements(ChunkCoord{1, 2, 3}); !ok {
		t.Error("Expected fallback to generate synchronously")
	}
}

// TestLoaderDeferredRequeuesEvicted checks a window chunk evicted after it
// was applied is generated again instead of staying missing.
func TestLoaderDeferredRequeuesEvicted(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 32)
	l := NewLoader(cache, gen, LoadDeferred, 1, 2)
	l.Start()
	defer l.Stop()

	w := l.SetWindow(ChunkCoord{})
	available := func() int {
		n := 0
		for _, c := range w.Coords {
			if _, ok := l.Placements(c); ok {
				n++
			}
		}
		return n
	}
	waitAll := func() int {
		deadline := time.Now().Add(2 * time.Second)
		n := available()
		for n < len(w.Coords) && time.Now().Before(deadline) {
			l.Drain()
			time.Sleep(time.Millisecond)
			n = available()
		}
		return n
	}

	if n := waitAll(); n != len(w.Coords) {
		t.Fatalf("Expected %d chunks loaded, got %d", len(w.Coords), n)
	}

	// Chunks outside the window push the oldest window chunks out.
	for i := 0; i < 10; i++ {
		cache.Put(ChunkCoord{X: 50, Y: 50, Z: i}, nil)
	}
	missing := 0
	for _, c := range w.Coords {
		if _, ok := cache.Peek(c); !ok {
			missing++
		}
	}
	if missing == 0 {
		t.Fatal("Expected some window chunks to be evicted")
	}

	if n := waitAll(); n != len(w.Coords) {
		t.Errorf("Expected evicted chunks to reload, got %d of %d", n, len(w.Coords))
	}
	for _, c := range w.Coords {
		p, ok := cache.Peek(c)
		if !ok || !reflect.DeepEqual(p, gen.Generate(c)) {
			t.Errorf("Chunk %v not regenerated correctly", c)
		}
	}
}

// TestLoaderStopDuringWindowChanges checks Stop may run while the window
// is still being replaced.
func TestLoaderStopDuringWindowChanges(t *testing.T) {
	gen := newTestGenerator()
	cache := NewChunkCache(gen, 256)
	l := NewLoader(cache, gen, LoadDeferred, 1, 2)
	l.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			w := l.SetWindow(ChunkCoord{X: i * 10})
			for _, c := range w.Coords {
				l.Placements(c)
			}
			l.Drain()
		}
	}()

	time.Sleep(time.Millisecond)
	l.Stop()
	<-done

	if _, ok := l.Placements(ChunkCoord{X: 5000}); !ok {
		t.Error("Expected synchronous fallback after Stop")
	}
}
