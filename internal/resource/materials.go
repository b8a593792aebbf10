package resource

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Palette holds the red, green and blue factors of the gradient shader.
type Palette [3]float64

// Palettes are indexed by rank mod len(Palettes).
var Palettes = []Palette{
	{0.9, 0.3, 0.6}, // sunset
	{0.2, 0.7, 0.9}, // azure
	{0.6, 0.2, 0.9}, // twilight
	{0.1, 0.8, 0.5}, // ocean
	{0.9, 0.6, 0.1}, // dusk
	{0.4, 0.9, 0.2}, // aurora
	{0.8, 0.1, 0.3}, // berry
	{0.3, 0.4, 0.9}, // deep sea
	{0.9, 0.8, 0.2}, // saffron
	{0.2, 0.9, 0.7}, // aqua
	{0.7, 0.4, 0.9}, // orchid
	{0.9, 0.2, 0.1}, // magma
}

// Program is a compiled shader program shared by every clone of a material.
type Program struct {
	ID      uint64
	Bucket  int
	Palette Palette
}

// ProgramCompiler compiles the gradient program for a bucket. Compilation
// is the expensive step the pool amortizes.
type ProgramCompiler interface {
	Compile(bucket int, palette Palette) (*Program, error)
}

// StaticCompiler hands out program ids and counts compilations.
type StaticCompiler struct {
	next     atomic.Uint64
	compiled atomic.Uint64
}

// Compile implements ProgramCompiler.
func (c *StaticCompiler) Compile(bucket int, palette Palette) (*Program, error) {
	c.compiled.Add(1)
	return &Program{ID: c.next.Add(1), Bucket: bucket, Palette: palette}, nil
}

// Compiled returns the number of programs compiled.
func (c *StaticCompiler) Compiled() uint64 { return c.compiled.Load() }

// Uniforms are the per-instance shader inputs.
type Uniforms struct {
	Time    float64 `json:"time"`
	Opacity float64 `json:"opacity"`
	Seed    float64 `json:"seed"`
	Red     float64 `json:"red"`
	Green   float64 `json:"green"`
	Blue    float64 `json:"blue"`
}

// Material is one instance of a pooled program with its own uniforms.
type Material struct {
	program     *Program
	Uniforms    Uniforms
	DepthWrite  bool
	Transparent bool
}

// Program returns the shared compiled program.
func (m *Material) Program() *Program { return m.program }

// Clone copies the material, sharing the compiled program.
func (m *Material) Clone() *Material {
	c := *m
	return &c
}

// Advance moves the animation clock and records the fade opacity.
func (m *Material) Advance(dt, opacity float64, depthWrite bool) {
	m.Uniforms.Time += dt
	m.Uniforms.Opacity = opacity
	m.DepthWrite = depthWrite
}

// RankSeed derives the noise seed of a card from its rank.
func RankSeed(rank int) float64 {
	return math.Mod(float64(rank)*1.618033988749, 100)
}

// MaterialStats is a snapshot of pool counters.
type MaterialStats struct {
	Buckets      int    `json:"buckets"`
	Compilations uint64 `json:"compilations"`
	Clones       uint64 `json:"clones"`
	Failures     uint64 `json:"failures"`
}

// MaterialPool keeps one compiled base material per palette bucket and
// hands out clones.
type MaterialPool struct {
	mu       sync.Mutex
	compiler ProgramCompiler
	buckets  int
	base     map[int]*Material
	fallback *Material

	compilations uint64
	clones       uint64
	failures     uint64
}

// NewMaterialPool creates a pool with paletteCount buckets.
func NewMaterialPool(compiler ProgramCompiler, paletteCount int) *MaterialPool {
	if paletteCount <= 0 || paletteCount > len(Palettes) {
		paletteCount = len(Palettes)
	}
	if compiler == nil {
		compiler = &StaticCompiler{}
	}
	return &MaterialPool{
		compiler: compiler,
		buckets:  paletteCount,
		base:     make(map[int]*Material, paletteCount),
		fallback: &Material{
			program:     &Program{Bucket: -1, Palette: Palettes[0]},
			Uniforms:    Uniforms{Opacity: 1, Red: Palettes[0][0], Green: Palettes[0][1], Blue: Palettes[0][2]},
			Transparent: true,
		},
	}
}

// Bucket returns the pool bucket of rank.
func (p *MaterialPool) Bucket(rank int) int {
	b := rank % p.buckets
	if b < 0 {
		b += p.buckets
	}
	return b
}

// Acquire returns a fresh clone of the bucket material for rank, seeded
// for that rank. The bucket's program is compiled on first use only.
func (p *MaterialPool) Acquire(rank int) *Material {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.Bucket(rank)
	base, ok := p.base[bucket]
	if !ok {
		var err error
		base, err = p.compile(bucket)
		if err != nil {
			p.failures++
			base = p.fallback
		} else {
			p.base[bucket] = base
		}
	}

	m := base.Clone()
	m.Uniforms.Seed = RankSeed(rank)
	p.clones++
	return m
}

func (p *MaterialPool) compile(bucket int) (*Material, error) {
	pal := Palettes[bucket]
	prog, err := p.compiler.Compile(bucket, pal)
	if err != nil {
		return nil, fmt.Errorf("compile bucket %d: %w", bucket, err)
	}
	p.compilations++
	return &Material{
		program: prog,
		Uniforms: Uniforms{
			Opacity: 1,
			Red:     pal[0],
			Green:   pal[1],
			Blue:    pal[2],
		},
		DepthWrite:  true,
		Transparent: true,
	}, nil
}

// Stats returns pool counters.
func (p *MaterialPool) Stats() MaterialStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return MaterialStats{
		Buckets:      len(p.base),
		Compilations: p.compilations,
		Clones:       p.clones,
		Failures:     p.failures,
	}
}

// Reset drops every compiled base material.
func (p *MaterialPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.base)
}
