// Package fade computes per-placement opacity from grid and depth distance.
package fade

import (
	"math"

	"card-field/internal/config"
	"card-field/internal/world"
)

// ReferenceHz is the tick rate the smoothing factor is defined at.
const ReferenceHz = 60

// Params are the fade model constants.
type Params struct {
	RenderDistance  int
	ChunkFadeMargin float64
	DepthFadeStart  float64
	DepthFadeEnd    float64
	CullMargin      float64
	Smoothing       float64
	Epsilon         float64
	OpaqueThreshold float64
}

// ParamsFrom builds Params from configuration.
func ParamsFrom(w config.WorldConfig, f config.FadeConfig) Params {
	return Params{
		RenderDistance:  w.RenderDistance,
		ChunkFadeMargin: f.ChunkFadeMargin,
		DepthFadeStart:  f.DepthFadeStart,
		DepthFadeEnd:    f.DepthFadeEnd,
		CullMargin:      f.CullMargin,
		Smoothing:       f.Smoothing,
		Epsilon:         f.InvisibleEpsilon,
		OpaqueThreshold: f.OpaqueThreshold,
	}
}

// GridFade is 1 inside the render distance and ramps linearly to 0 over
// the chunk fade margin.
func GridFade(dist int, p Params) float64 {
	if dist <= p.RenderDistance {
		return 1
	}
	return math.Max(0, 1-float64(dist-p.RenderDistance)/math.Max(p.ChunkFadeMargin, 1e-4))
}

// DepthFade is 1 inside the near band and ramps linearly to 0 at the far band.
// Callers square it for the opacity target.
func DepthFade(depth float64, p Params) float64 {
	if depth <= p.DepthFadeStart {
		return 1
	}
	return math.Max(0, 1-(depth-p.DepthFadeStart)/math.Max(p.DepthFadeEnd-p.DepthFadeStart, 1e-4))
}

// TargetOpacity combines both fades.
func TargetOpacity(dist int, depth float64, p Params) float64 {
	d := DepthFade(depth, p)
	return math.Min(GridFade(dist, p), d*d)
}

// Culled reports whether depth is beyond the hard cull distance.
func Culled(depth float64, p Params) bool {
	return depth > p.DepthFadeEnd+p.CullMargin
}

// State is the fade state of one live placement.
type State struct {
	Opacity    float64
	Visible    bool
	DepthWrite bool

	parity uint8
}

// Fader steps fade states once per tick.
type Fader struct {
	params Params
}

// New creates a Fader.
func New(p Params) *Fader {
	return &Fader{params: p}
}

// Params returns the fader's constants.
func (f *Fader) Params() Params { return f.params }

// Step advances s by dt seconds for a placement in chunk at depth z, seen
// from a camera in camChunk at depth camZ. It reports whether the state was
// evaluated; fully faded placements are only evaluated every other tick.
func (f *Fader) Step(s *State, chunk, camChunk world.ChunkCoord, z, camZ, dt float64) bool {
	p := f.params
	s.parity ^= 1
	if s.Opacity < p.Epsilon && !s.Visible && s.parity == 0 {
		return false
	}

	depth := math.Abs(z - camZ)
	if Culled(depth, p) {
		s.Opacity = 0
		s.Visible = false
		s.DepthWrite = false
		return true
	}

	target := TargetOpacity(world.Chebyshev(chunk, camChunk), depth, p)
	if target < p.Epsilon && s.Opacity < p.Epsilon {
		s.Opacity = 0
	} else {
		s.Opacity += (target - s.Opacity) * Alpha(p.Smoothing, dt)
	}

	s.Visible = s.Opacity > p.Epsilon
	s.DepthWrite = s.Visible && s.Opacity > p.OpaqueThreshold
	return true
}

// Alpha converts a per-reference-tick smoothing factor into the factor for
// a tick of dt seconds.
func Alpha(a, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	k := dt * ReferenceHz
	return 1 - math.Pow(1-a, k)
}
