package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/config"
)

// Placement is one generated card slot. Immutable once generated.
type Placement struct {
	ID        string     `json:"id"`
	Chunk     ChunkCoord `json:"chunk"`
	Position  mgl64.Vec3 `json:"position"`
	Scale     float64    `json:"scale"`
	CardIndex int        `json:"cardIndex"`
}

// Generator derives placements from chunk coordinates. It holds no mutable
// state, so one Generator may be shared by any number of goroutines.
type Generator struct {
	seed       uint32
	chunkSize  float64
	items      int
	minScale   float64
	scaleSpan  float64
	indexRange int
}

// Sub-seed stride between items of one chunk.
const itemSeedStride = 1000

// Draw slots within an item's sub-seed.
const (
	drawX = iota
	drawY
	drawZ
	_
	drawScale
	drawCard
)

// NewGenerator creates a generator from world settings.
func NewGenerator(cfg config.WorldConfig) *Generator {
	return &Generator{
		seed:       cfg.Seed,
		chunkSize:  cfg.ChunkSize,
		items:      cfg.ItemsPerChunk,
		minScale:   cfg.MinScale,
		scaleSpan:  cfg.MaxScale - cfg.MinScale,
		indexRange: cfg.CardIndexRange,
	}
}

// ChunkSize returns the edge length of a chunk in world units.
func (g *Generator) ChunkSize() float64 { return g.chunkSize }

// ItemsPerChunk returns the number of placements in every chunk.
func (g *Generator) ItemsPerChunk() int { return g.items }

// Generate returns the placements of chunk c. The result depends only on c
// and the generator's seed.
func (g *Generator) Generate(c ChunkCoord) []Placement {
	seed := hashCoord(g.seed, c)
	origin := c.Origin(g.chunkSize)

	out := make([]Placement, g.items)
	for i := range out {
		sub := seed + uint32(i)*itemSeedStride
		r := func(n uint32) float64 { return seededRandom(sub + n) }

		pos := mgl64.Vec3{
			origin[0] + r(drawX)*g.chunkSize,
			origin[1] + r(drawY)*g.chunkSize,
			origin[2] + r(drawZ)*g.chunkSize,
		}
		out[i] = Placement{
			ID:        fmt.Sprintf("%d-%d-%d-%d", c.X, c.Y, c.Z, i),
			Chunk:     c,
			Position:  pos,
			Scale:     g.minScale + r(drawScale)*g.scaleSpan,
			CardIndex: int(math.Floor(r(drawCard) * float64(g.indexRange))),
		}
	}
	return out
}

var defaultGenerator = NewGenerator(config.DefaultWorld())

// GenerateChunkPlanes generates chunk (cx, cy, cz) with the default world
// settings.
func GenerateChunkPlanes(cx, cy, cz int) []Placement {
	return defaultGenerator.Generate(ChunkCoord{cx, cy, cz})
}
