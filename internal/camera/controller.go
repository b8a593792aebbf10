// Package camera turns accumulated input into an inertial camera and decides
// when the chunk window should follow it.
package camera

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/config"
	"card-field/internal/world"
)

// ReferenceHz is the tick rate all per-tick constants are defined at.
const ReferenceHz = 60

// Mode is the controller state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDragging
	ModeFlying
)

func (m Mode) String() string {
	switch m {
	case ModeDragging:
		return "dragging"
	case ModeFlying:
		return "flying"
	default:
		return "idle"
	}
}

// State is the live camera state.
type State struct {
	BasePosition   mgl64.Vec3 `json:"basePosition"`
	Velocity       mgl64.Vec3 `json:"velocity"`
	TargetVelocity mgl64.Vec3 `json:"targetVelocity"`
	Drift          mgl64.Vec3 `json:"drift"`
	Dragging       bool       `json:"dragging"`
}

// Position is the rendered camera position: base plus x/y drift.
func (s State) Position() mgl64.Vec3 {
	return s.BasePosition.Add(mgl64.Vec3{s.Drift[0], s.Drift[1], 0})
}

type flight struct {
	from     mgl64.Vec3
	to       mgl64.Vec3
	start    time.Time
	duration time.Duration
}

// Step is the outcome of one Update.
type Step struct {
	Position     mgl64.Vec3
	Chunk        world.ChunkCoord
	WindowDue    bool
	WindowCenter world.ChunkCoord
	Clicks       []mgl64.Vec2
	FlightEnded  bool
}

// Controller owns the single live camera state. Update must be called from
// one goroutine (the engine tick).
type Controller struct {
	cfg       config.CameraConfig
	chunkSize float64
	touch     bool

	mode        Mode
	state       State
	scrollAccum float64
	flight      *flight

	chunk         world.ChunkCoord
	windowCenter  world.ChunkCoord
	pendingWindow bool
	lastWindowAt  time.Time
}

// NewController creates a controller at (0, 0, InitialZ). touch selects the
// touch-device drift behaviour.
func NewController(cfg config.CameraConfig, chunkSize float64, touch bool) *Controller {
	c := &Controller{
		cfg:       cfg,
		chunkSize: chunkSize,
		touch:     touch,
	}
	c.state.BasePosition = mgl64.Vec3{0, 0, cfg.InitialZ}
	c.chunk = world.ChunkOf(c.state.BasePosition, chunkSize)
	c.windowCenter = c.chunk
	c.pendingWindow = true
	return c
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode { return c.mode }

// State returns a copy of the live state.
func (c *Controller) State() State { return c.state }

// Chunk returns the chunk containing the base position.
func (c *Controller) Chunk() world.ChunkCoord { return c.chunk }

// WindowCenter returns the center of the last materialized window.
func (c *Controller) WindowCenter() world.ChunkCoord { return c.windowCenter }

// Zooming reports whether the camera moves along depth fast enough to
// count as zooming.
func (c *Controller) Zooming() bool {
	return math.Abs(c.state.Velocity[2]) > c.cfg.ZoomThreshold
}

// ThrottleFor returns the minimum interval between window updates.
func ThrottleFor(cfg config.CameraConfig, zooming bool, zoomSpeed float64) time.Duration {
	switch {
	case zoomSpeed > cfg.FastZoomSpeed:
		return time.Duration(cfg.ThrottleFastMs) * time.Millisecond
	case zooming:
		return time.Duration(cfg.ThrottleZoomingMs) * time.Millisecond
	default:
		return time.Duration(cfg.ThrottleBaseMs) * time.Millisecond
	}
}

// ShouldUpdate reports whether throttle has elapsed between last and now.
func ShouldUpdate(last time.Time, throttle time.Duration, now time.Time) bool {
	return now.Sub(last) >= throttle
}

// FlyTo starts (or restarts) a flight from the live base position to target.
// Velocities are zeroed so the flight owns the camera until it ends.
func (c *Controller) FlyTo(target mgl64.Vec3, duration time.Duration, now time.Time) {
	c.state.Velocity = mgl64.Vec3{}
	c.state.TargetVelocity = mgl64.Vec3{}
	c.scrollAccum = 0
	c.flight = &flight{
		from:     c.state.BasePosition,
		to:       target,
		start:    now,
		duration: duration,
	}
	c.mode = ModeFlying
}

// FlightTarget returns the destination of the active flight.
func (c *Controller) FlightTarget() (mgl64.Vec3, bool) {
	if c.flight == nil {
		return mgl64.Vec3{}, false
	}
	return c.flight.to, true
}

// Update advances the camera by dt seconds using the drained input frame.
func (c *Controller) Update(in Frame, dt float64, now time.Time) Step {
	var step Step
	k := dt * ReferenceHz

	c.state.Dragging = in.Held
	if c.mode == ModeFlying {
		step.FlightEnded = c.fly(now)
	} else {
		if in.Held {
			c.mode = ModeDragging
		} else {
			c.mode = ModeIdle
		}
		c.integrate(in, k)
		step.Clicks = c.clicks(in.Releases)
	}

	c.chunk = world.ChunkOf(c.state.BasePosition, c.chunkSize)
	if c.chunk != c.windowCenter {
		c.pendingWindow = true
	}
	if c.pendingWindow {
		zoomSpeed := math.Abs(c.state.Velocity[2])
		throttle := ThrottleFor(c.cfg, c.Zooming(), zoomSpeed)
		if c.lastWindowAt.IsZero() || ShouldUpdate(c.lastWindowAt, throttle, now) {
			c.windowCenter = c.chunk
			c.pendingWindow = false
			c.lastWindowAt = now
			step.WindowDue = true
		}
	}

	step.Position = c.state.Position()
	step.Chunk = c.chunk
	step.WindowCenter = c.windowCenter
	return step
}

// integrate applies one tick of the inertial model.
func (c *Controller) integrate(in Frame, k float64) {
	s := &c.state
	cfg := c.cfg

	inc := cfg.KeyboardSpeed * k
	if in.Keys[KeyForward] {
		s.TargetVelocity[2] -= inc
	}
	if in.Keys[KeyBackward] {
		s.TargetVelocity[2] += inc
	}
	if in.Keys[KeyLeft] {
		s.TargetVelocity[0] -= inc
	}
	if in.Keys[KeyRight] {
		s.TargetVelocity[0] += inc
	}
	if in.Keys[KeyDown] {
		s.TargetVelocity[1] -= inc
	}
	if in.Keys[KeyUp] {
		s.TargetVelocity[1] += inc
	}

	// Dragging the field left moves the camera right.
	s.TargetVelocity[0] -= in.DragDX*cfg.DragSensitivity + in.TouchDX*cfg.TouchSensitivity
	s.TargetVelocity[1] += in.DragDY*cfg.DragSensitivity + in.TouchDY*cfg.TouchSensitivity

	zooming := c.Zooming()
	zoomFactor := clamp(s.BasePosition[2]/50, 0.3, 2.0)
	driftAmount := cfg.DriftBase * zoomFactor
	driftLerp := cfg.DriftLerp
	if zooming {
		driftLerp = cfg.DriftLerpZooming
	}
	a := smoothing(driftLerp, k)
	switch {
	case c.touch:
		s.Drift[0] += (0 - s.Drift[0]) * a
		s.Drift[1] += (0 - s.Drift[1]) * a
	case !in.Held:
		s.Drift[0] += (in.Pointer[0]*driftAmount - s.Drift[0]) * a
		s.Drift[1] += (in.Pointer[1]*driftAmount - s.Drift[1]) * a
	}

	c.scrollAccum += (in.Wheel + in.Pinch) * cfg.WheelSensitivity
	if c.scrollAccum != 0 {
		decay := math.Pow(cfg.ScrollDecay, k)
		// Transfer what the per-tick model would over k reference ticks.
		s.TargetVelocity[2] += c.scrollAccum * (1 - decay) / (1 - cfg.ScrollDecay)
		c.scrollAccum *= decay
		if math.Abs(c.scrollAccum) < 1e-6 {
			c.scrollAccum = 0
		}
	}

	for i := 0; i < 3; i++ {
		s.TargetVelocity[i] = clamp(s.TargetVelocity[i], -cfg.MaxVelocity, cfg.MaxVelocity)
	}

	va := smoothing(cfg.VelocityLerp, k)
	for i := 0; i < 3; i++ {
		s.Velocity[i] += (s.TargetVelocity[i] - s.Velocity[i]) * va
	}

	s.BasePosition = s.BasePosition.Add(s.Velocity.Mul(k))

	decay := math.Pow(cfg.VelocityDecay, k)
	s.TargetVelocity = s.TargetVelocity.Mul(decay)
}

// fly interpolates the active flight and reports whether it just ended.
func (c *Controller) fly(now time.Time) bool {
	f := c.flight
	if f == nil {
		c.mode = ModeIdle
		return false
	}

	t := 1.0
	if f.duration > 0 {
		t = clamp(float64(now.Sub(f.start))/float64(f.duration), 0, 1)
	}
	e := easeInOutCubic(t)
	c.state.BasePosition = f.from.Add(f.to.Sub(f.from).Mul(e))
	c.state.Velocity = mgl64.Vec3{}
	c.state.TargetVelocity = mgl64.Vec3{}

	if t < 1 {
		return false
	}
	c.state.BasePosition = f.to
	c.flight = nil
	if c.state.Dragging {
		c.mode = ModeDragging
	} else {
		c.mode = ModeIdle
	}
	return true
}

// clicks keeps releases whose travel stayed under the click threshold.
func (c *Controller) clicks(releases []Release) []mgl64.Vec2 {
	var out []mgl64.Vec2
	for _, r := range releases {
		if IsClick(r, c.cfg.ClickThresholdPx) {
			out = append(out, r.Up)
		}
	}
	return out
}

// IsClick reports whether a press/release pair moved less than threshold
// pixels on both axes.
func IsClick(r Release, threshold float64) bool {
	return math.Abs(r.Up[0]-r.Down[0]) < threshold && math.Abs(r.Up[1]-r.Down[1]) < threshold
}

// smoothing converts a per-reference-tick lerp factor for a tick of k
// reference ticks.
func smoothing(a, k float64) float64 {
	if k <= 0 {
		return 0
	}
	return 1 - math.Pow(1-a, k)
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := -2*t + 2
	return 1 - u*u*u/2
}
