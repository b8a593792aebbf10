package camera

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/config"
	"card-field/internal/world"
)

const tick = 1.0 / ReferenceHz

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestController() *Controller {
	return NewController(config.DefaultCamera(), config.DefaultWorld().ChunkSize, false)
}

// TestShouldUpdateBoundary checks the throttle is inclusive at the limit.
func TestShouldUpdateBoundary(t *testing.T) {
	throttle := 400 * time.Millisecond
	if ShouldUpdate(t0, throttle, t0.Add(399*time.Millisecond)) {
		t.Error("Expected no update at 399ms")
	}
	if !ShouldUpdate(t0, throttle, t0.Add(400*time.Millisecond)) {
		t.Error("Expected update at 400ms")
	}
}

// TestThrottleFor checks the three throttle tiers.
func TestThrottleFor(t *testing.T) {
	cfg := config.DefaultCamera()
	tests := []struct {
		name      string
		zooming   bool
		zoomSpeed float64
		want      time.Duration
	}{
		{"idle", false, 0, 100 * time.Millisecond},
		{"zooming", true, 0.5, 400 * time.Millisecond},
		{"fast zoom", true, 1.5, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThrottleFor(cfg, tt.zooming, tt.zoomSpeed); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestVelocityForwardThenRelease holds forward for 10 ticks, then releases.
func TestVelocityForwardThenRelease(t *testing.T) {
	c := newTestController()
	maxV := config.DefaultCamera().MaxVelocity
	now := t0

	var held Frame
	held.Keys[KeyForward] = true

	prev := 0.0
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second / ReferenceHz)
		c.Update(held, tick, now)
		vz := math.Abs(c.State().Velocity[2])
		if vz <= prev {
			t.Fatalf("Tick %d: speed %v did not increase from %v", i, vz, prev)
		}
		if vz > maxV {
			t.Fatalf("Tick %d: speed %v exceeds max %v", i, vz, maxV)
		}
		if c.State().Velocity[2] >= 0 {
			t.Fatal("Expected forward to move toward -z")
		}
		prev = vz
	}

	// After release the speed may crest briefly while velocity catches the
	// decaying target, then falls geometrically.
	speeds := make([]float64, 0, 200)
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second / ReferenceHz)
		c.Update(Frame{}, tick, now)
		speeds = append(speeds, math.Abs(c.State().Velocity[2]))
	}
	peak := 0
	for i, v := range speeds {
		if v > speeds[peak] {
			peak = i
		}
	}
	for i := peak + 1; i < len(speeds); i++ {
		if speeds[i] > speeds[i-1] {
			t.Fatalf("Speed rose after peak at tick %d", i)
		}
	}
	if last := speeds[len(speeds)-1]; last > 1e-3 {
		t.Errorf("Expected speed to approach zero, got %v", last)
	}
	tail := speeds[len(speeds)-1] / speeds[len(speeds)-2]
	if tail >= 1 || tail <= 0 {
		t.Errorf("Expected geometric decay ratio in (0,1), got %v", tail)
	}
}

// TestVelocityClamped checks long key holds stay under max velocity.
func TestVelocityClamped(t *testing.T) {
	cfg := config.DefaultCamera()
	cfg.VelocityDecay = 0.999
	c := NewController(cfg, 110, false)

	var f Frame
	f.Keys[KeyRight] = true
	for i := 0; i < 1000; i++ {
		c.Update(f, tick, t0)
	}
	if v := c.State().TargetVelocity[0]; v > cfg.MaxVelocity {
		t.Errorf("Target velocity %v above max", v)
	}
	if v := c.State().Velocity[0]; v > cfg.MaxVelocity {
		t.Errorf("Velocity %v above max", v)
	}
}

// TestTimeNormalized checks half-rate ticks settle near the same speed.
func TestTimeNormalized(t *testing.T) {
	var f Frame
	f.Keys[KeyForward] = true

	a := newTestController()
	for i := 0; i < 300; i++ {
		a.Update(f, 2*tick, t0)
	}

	b := newTestController()
	for i := 0; i < 600; i++ {
		b.Update(f, tick, t0)
	}

	va := a.State().Velocity[2]
	vb := b.State().Velocity[2]
	if math.Abs(va-vb)/math.Abs(vb) > 0.1 {
		t.Errorf("Expected similar cruise speed, got %v vs %v", va, vb)
	}
}

// TestScrollAccumulator checks wheel input moves along depth and decays.
func TestScrollAccumulator(t *testing.T) {
	c := newTestController()
	c.Update(Frame{Wheel: 100}, tick, t0)
	if c.State().TargetVelocity[2] <= 0 {
		t.Fatal("Expected positive wheel to push target velocity +z")
	}
	for i := 0; i < 300; i++ {
		c.Update(Frame{}, tick, t0)
	}
	if c.scrollAccum != 0 {
		t.Errorf("Expected scroll accumulator to drain, got %v", c.scrollAccum)
	}
}

// TestDragMovesOpposite checks drag sign conventions and drift freeze.
func TestDragMovesOpposite(t *testing.T) {
	c := newTestController()
	c.Update(Frame{Held: true, DragDX: 10, DragDY: 10, Pointer: mgl64.Vec2{1, 1}}, tick, t0)

	s := c.State()
	if s.TargetVelocity[0] >= 0 {
		t.Error("Expected drag right to move camera -x")
	}
	if s.TargetVelocity[1] <= 0 {
		t.Error("Expected drag down to move camera +y")
	}
	if s.Drift != (mgl64.Vec3{}) {
		t.Errorf("Expected drift frozen while dragging, got %v", s.Drift)
	}
	if c.Mode() != ModeDragging {
		t.Errorf("Expected dragging mode, got %v", c.Mode())
	}

	c.Update(Frame{Pointer: mgl64.Vec2{1, 1}}, tick, t0)
	if c.State().Drift[0] <= 0 || c.Mode() != ModeIdle {
		t.Error("Expected drift toward pointer once idle")
	}
}

// TestTouchDriftRelaxes checks touch devices pull drift to zero.
func TestTouchDriftRelaxes(t *testing.T) {
	c := NewController(config.DefaultCamera(), 110, true)
	c.state.Drift = mgl64.Vec3{5, 5, 0}
	for i := 0; i < 200; i++ {
		c.Update(Frame{Pointer: mgl64.Vec2{1, 1}}, tick, t0)
	}
	if d := c.State().Drift; math.Abs(d[0]) > 1e-3 || math.Abs(d[1]) > 1e-3 {
		t.Errorf("Expected drift near zero, got %v", d)
	}
}

// TestClickDisambiguation checks the pixel threshold.
func TestClickDisambiguation(t *testing.T) {
	tests := []struct {
		name string
		up   mgl64.Vec2
		want bool
	}{
		{"still", mgl64.Vec2{100, 100}, true},
		{"small jitter", mgl64.Vec2{104, 96}, true},
		{"at threshold", mgl64.Vec2{105, 100}, false},
		{"drag", mgl64.Vec2{150, 100}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Release{Down: mgl64.Vec2{100, 100}, Up: tt.up}
			if got := IsClick(r, 5); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	c := newTestController()
	step := c.Update(Frame{Releases: []Release{
		{Down: mgl64.Vec2{10, 10}, Up: mgl64.Vec2{11, 11}},
		{Down: mgl64.Vec2{10, 10}, Up: mgl64.Vec2{80, 10}},
	}}, tick, t0)
	if len(step.Clicks) != 1 || step.Clicks[0] != (mgl64.Vec2{11, 11}) {
		t.Errorf("Expected one click at (11,11), got %v", step.Clicks)
	}
}

// TestWindowThrottle checks window updates wait for the throttle.
func TestWindowThrottle(t *testing.T) {
	c := newTestController()
	step := c.Update(Frame{}, tick, t0)
	if !step.WindowDue {
		t.Fatal("Expected initial window to be due immediately")
	}

	// Jump one chunk along x and update before the idle throttle elapses.
	c.state.BasePosition[0] += 110
	step = c.Update(Frame{}, tick, t0.Add(50*time.Millisecond))
	if step.WindowDue {
		t.Fatal("Expected window update to be throttled")
	}
	if step.Chunk == step.WindowCenter {
		t.Fatal("Expected camera chunk ahead of window")
	}

	step = c.Update(Frame{}, tick, t0.Add(100*time.Millisecond))
	if !step.WindowDue || step.WindowCenter != step.Chunk {
		t.Errorf("Expected window to catch up, got %+v", step)
	}
}

// TestFlyTo checks a flight eases to the target over wall-clock time.
func TestFlyTo(t *testing.T) {
	c := newTestController()
	var f Frame
	f.Keys[KeyForward] = true
	c.Update(f, tick, t0)

	target := mgl64.Vec3{500, -200, 1000}
	c.FlyTo(target, 2*time.Second, t0)
	if c.Mode() != ModeFlying {
		t.Fatalf("Expected flying, got %v", c.Mode())
	}
	if c.State().Velocity != (mgl64.Vec3{}) || c.State().TargetVelocity != (mgl64.Vec3{}) {
		t.Error("Expected velocities zeroed")
	}
	start := c.State().BasePosition

	// Input is ignored while flying.
	c.Update(f, tick, t0.Add(time.Second))
	mid := c.State().BasePosition
	want := start.Add(target.Sub(start).Mul(0.5))
	if !mid.ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("Expected midpoint %v, got %v", want, mid)
	}

	step := c.Update(f, tick, t0.Add(2*time.Second))
	if !step.FlightEnded || c.Mode() != ModeIdle {
		t.Errorf("Expected flight to end, mode %v", c.Mode())
	}
	if c.State().BasePosition != target {
		t.Errorf("Expected exact target, got %v", c.State().BasePosition)
	}
	if step.Chunk != world.ChunkOf(target, 110) {
		t.Error("Expected chunk to follow the flight")
	}
}

// TestFlyToRestart checks a new flight starts from the live position.
func TestFlyToRestart(t *testing.T) {
	c := newTestController()
	c.FlyTo(mgl64.Vec3{1000, 0, 0}, 2*time.Second, t0)
	c.Update(Frame{}, tick, t0.Add(time.Second))
	live := c.State().BasePosition

	c.FlyTo(mgl64.Vec3{0, 1000, 0}, 2*time.Second, t0.Add(time.Second))
	c.Update(Frame{}, tick, t0.Add(time.Second))
	if !c.State().BasePosition.ApproxEqual(live) {
		t.Errorf("Expected restart from %v, got %v", live, c.State().BasePosition)
	}
}

// TestInputDrain checks deltas reset while held state carries over.
func TestInputDrain(t *testing.T) {
	in := NewInput(800, 600)
	in.KeyDown(KeyForward)
	in.PointerDown(100, 100)
	in.PointerMove(110, 95)
	in.PointerMove(120, 90)
	in.Wheel(30)

	f := in.Drain()
	if !f.Keys[KeyForward] || !f.Held {
		t.Error("Expected held key and pointer")
	}
	if f.DragDX != 20 || f.DragDY != -10 {
		t.Errorf("Expected drag (20,-10), got (%v,%v)", f.DragDX, f.DragDY)
	}
	if f.Wheel != 30 {
		t.Errorf("Expected wheel 30, got %v", f.Wheel)
	}

	in.PointerUp(121, 90)
	f = in.Drain()
	if f.DragDX != 0 || f.Wheel != 0 {
		t.Error("Expected deltas reset after drain")
	}
	if !f.Keys[KeyForward] {
		t.Error("Expected key to stay held across drains")
	}
	if f.Held || len(f.Releases) != 1 || f.Releases[0].Down != (mgl64.Vec2{100, 100}) {
		t.Errorf("Expected one release from (100,100), got %+v", f.Releases)
	}
}

// TestInputPinch checks a closing pinch zooms out (+z).
func TestInputPinch(t *testing.T) {
	in := NewInput(800, 600)
	in.TouchStart([]mgl64.Vec2{{0, 0}, {200, 0}})
	in.TouchMove([]mgl64.Vec2{{0, 0}, {150, 0}})
	if f := in.Drain(); f.Pinch != 50 {
		t.Errorf("Expected pinch 50, got %v", f.Pinch)
	}
}

// TestParseKey checks DOM codes map to movement keys.
func TestParseKey(t *testing.T) {
	tests := map[string]Key{
		"w": KeyForward, "ArrowUp": KeyForward, "KeyS": KeyBackward,
		"a": KeyLeft, "ArrowRight": KeyRight, "e": KeyUp, "q": KeyDown,
	}
	for code, want := range tests {
		if got, ok := ParseKey(code); !ok || got != want {
			t.Errorf("ParseKey(%q) = %v, %v", code, got, ok)
		}
	}
	if _, ok := ParseKey("space"); ok {
		t.Error("Expected unknown key")
	}
}

// TestPointerLeaveRecentresDrift checks drift relaxes to the middle once the
// pointer leaves the viewport.
func TestPointerLeaveRecentresDrift(t *testing.T) {
	in := NewInput(800, 600)
	c := newTestController()

	in.PointerMove(800, 0)
	for i := 0; i < 120; i++ {
		c.Update(in.Drain(), tick, t0)
	}
	if d := c.State().Drift; d[0] <= 1 || d[1] <= 1 {
		t.Fatalf("Expected drift toward the top-right corner, got %v", d)
	}

	in.PointerLeave()
	if f := in.Drain(); f.Pointer != (mgl64.Vec2{}) {
		t.Errorf("Expected pointer reset to center, got %v", f.Pointer)
	}
	for i := 0; i < 300; i++ {
		c.Update(in.Drain(), tick, t0)
	}
	if d := c.State().Drift; math.Abs(d[0]) > 1e-3 || math.Abs(d[1]) > 1e-3 {
		t.Errorf("Expected drift near zero after leave, got %v", d)
	}
}
