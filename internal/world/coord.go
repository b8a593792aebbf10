// Package world generates and streams the procedural card field.
//
// Space is cut into cubes of ChunkSize world units. Every chunk holds a fixed
// number of placements derived only from its coordinate and the world seed,
// so any chunk can be regenerated at any time without storing it.
package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkCoord identifies one cube cell of the infinite grid.
type ChunkCoord struct {
	X, Y, Z int
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

// Add returns c offset by o.
func (c ChunkCoord) Add(o ChunkCoord) ChunkCoord {
	return ChunkCoord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

// Chebyshev returns the grid distance between two chunks (max axis delta).
func Chebyshev(a, b ChunkCoord) int {
	return max(absInt(a.X-b.X), absInt(a.Y-b.Y), absInt(a.Z-b.Z))
}

// ChunkOf returns the chunk containing a world position.
func ChunkOf(p mgl64.Vec3, chunkSize float64) ChunkCoord {
	return ChunkCoord{
		X: int(math.Floor(p[0] / chunkSize)),
		Y: int(math.Floor(p[1] / chunkSize)),
		Z: int(math.Floor(p[2] / chunkSize)),
	}
}

// Origin returns the minimum corner of the chunk in world space.
func (c ChunkCoord) Origin(chunkSize float64) mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X) * chunkSize, float64(c.Y) * chunkSize, float64(c.Z) * chunkSize}
}

// Contains reports whether p lies inside the chunk's half-open cube.
func (c ChunkCoord) Contains(p mgl64.Vec3, chunkSize float64) bool {
	return ChunkOf(p, chunkSize) == c
}

// Offsets returns every relative offset within Chebyshev radius r, nearest
// shells first. This is the render-distance neighborhood of a window.
func Offsets(r int) []ChunkCoord {
	if r < 0 {
		return nil
	}
	side := 2*r + 1
	out := make([]ChunkCoord, 0, side*side*side)
	for shell := 0; shell <= r; shell++ {
		out = append(out, Shell(ChunkCoord{}, shell)...)
	}
	return out
}

// Shell returns the coordinates on the surface of the cube of half-width r
// around center: at least one axis offset equals +-r.
func Shell(center ChunkCoord, r int) []ChunkCoord {
	if r == 0 {
		return []ChunkCoord{center}
	}
	side := 2*r + 1
	inner := side - 2
	out := make([]ChunkCoord, 0, side*side*side-inner*inner*inner)
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			onFace := absInt(dx) == r || absInt(dy) == r
			if onFace {
				for dz := -r; dz <= r; dz++ {
					out = append(out, ChunkCoord{center.X + dx, center.Y + dy, center.Z + dz})
				}
				continue
			}
			// Interior column: only the two z caps are on the surface.
			out = append(out,
				ChunkCoord{center.X + dx, center.Y + dy, center.Z - r},
				ChunkCoord{center.X + dx, center.Y + dy, center.Z + r},
			)
		}
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
