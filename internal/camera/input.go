package camera

import (
	"math"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Key is a movement key.
type Key int

const (
	KeyForward Key = iota
	KeyBackward
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	numKeys
)

var keyNames = [numKeys]string{"forward", "backward", "left", "right", "up", "down"}

func (k Key) String() string {
	if k < 0 || k >= numKeys {
		return "unknown"
	}
	return keyNames[k]
}

// ParseKey maps a DOM-style key code or a movement name to a Key.
func ParseKey(code string) (Key, bool) {
	switch strings.ToLower(code) {
	case "w", "keyw", "arrowup", "forward":
		return KeyForward, true
	case "s", "keys", "arrowdown", "backward":
		return KeyBackward, true
	case "a", "keya", "arrowleft", "left":
		return KeyLeft, true
	case "d", "keyd", "arrowright", "right":
		return KeyRight, true
	case "e", "keye", "up":
		return KeyUp, true
	case "q", "keyq", "down":
		return KeyDown, true
	}
	return 0, false
}

// Release is one pointer-down/pointer-up pair in screen pixels.
type Release struct {
	Down mgl64.Vec2
	Up   mgl64.Vec2
}

// Frame is everything the input accumulator gathered since the last drain.
type Frame struct {
	Keys     [numKeys]bool
	Held     bool       // pointer or touch currently down
	DragDX   float64    // mouse drag since last drain, px
	DragDY   float64
	TouchDX  float64    // single-finger drag since last drain, px
	TouchDY  float64
	Wheel    float64    // wheel deltaY since last drain
	Pinch    float64    // shrink in finger distance since last drain, px
	Pointer  mgl64.Vec2 // normalized pointer position, [-1, 1], +y up
	Releases []Release
}

// Input accumulates asynchronous UI events for the tick to drain. All
// methods are safe to call from any goroutine.
type Input struct {
	mu sync.Mutex

	keys     [numKeys]bool
	viewport mgl64.Vec2

	mouseDown bool
	down      mgl64.Vec2
	last      mgl64.Vec2
	pointer   mgl64.Vec2

	touches   int
	lastTouch mgl64.Vec2
	lastPinch float64

	dragDX, dragDY   float64
	touchDX, touchDY float64
	wheel, pinch     float64
	releases         []Release
}

// NewInput creates an accumulator for a viewport of w x h pixels.
func NewInput(w, h float64) *Input {
	in := &Input{}
	in.SetViewport(w, h)
	return in
}

// SetViewport updates the size used to normalize pointer positions.
func (in *Input) SetViewport(w, h float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	in.viewport = mgl64.Vec2{w, h}
}

// KeyDown marks k as held.
func (in *Input) KeyDown(k Key) {
	if k < 0 || k >= numKeys {
		return
	}
	in.mu.Lock()
	in.keys[k] = true
	in.mu.Unlock()
}

// KeyUp releases k.
func (in *Input) KeyUp(k Key) {
	if k < 0 || k >= numKeys {
		return
	}
	in.mu.Lock()
	in.keys[k] = false
	in.mu.Unlock()
}

// ReleaseKeys releases every key (window blur).
func (in *Input) ReleaseKeys() {
	in.mu.Lock()
	in.keys = [numKeys]bool{}
	in.mu.Unlock()
}

// PointerDown starts a drag at screen position (x, y).
func (in *Input) PointerDown(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseDown = true
	in.down = mgl64.Vec2{x, y}
	in.last = in.down
}

// PointerMove records pointer motion; while down it accumulates drag.
func (in *Input) PointerMove(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	p := mgl64.Vec2{x, y}
	in.pointer = in.normalize(p)
	if in.mouseDown {
		in.dragDX += x - in.last[0]
		in.dragDY += y - in.last[1]
		in.last = p
	}
}

// PointerUp ends a drag and records the release for click detection.
func (in *Input) PointerUp(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.mouseDown {
		return
	}
	in.mouseDown = false
	in.releases = append(in.releases, Release{Down: in.down, Up: mgl64.Vec2{x, y}})
}

// PointerLeave cancels a drag without a release and recentres the pointer
// so drift relaxes back to the middle.
func (in *Input) PointerLeave() {
	in.mu.Lock()
	in.mouseDown = false
	in.pointer = mgl64.Vec2{}
	in.mu.Unlock()
}

// Wheel accumulates a wheel deltaY.
func (in *Input) Wheel(deltaY float64) {
	in.mu.Lock()
	in.wheel += deltaY
	in.mu.Unlock()
}

// TouchStart begins a one-finger drag or a two-finger pinch.
func (in *Input) TouchStart(points []mgl64.Vec2) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.touches = len(points)
	switch len(points) {
	case 0:
	case 1:
		in.lastTouch = points[0]
		in.down = points[0]
	default:
		in.lastPinch = points[0].Sub(points[1]).Len()
	}
}

// TouchMove accumulates drag or pinch deltas.
func (in *Input) TouchMove(points []mgl64.Vec2) {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch {
	case len(points) == 1 && in.touches == 1:
		d := points[0].Sub(in.lastTouch)
		in.touchDX += d[0]
		in.touchDY += d[1]
		in.lastTouch = points[0]
	case len(points) >= 2:
		dist := points[0].Sub(points[1]).Len()
		if in.touches >= 2 {
			in.pinch += in.lastPinch - dist
		}
		in.touches = len(points)
		in.lastPinch = dist
	}
}

// TouchEnd ends the touch gesture. A one-finger tap is recorded as a release.
func (in *Input) TouchEnd(last mgl64.Vec2) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.touches == 1 {
		in.releases = append(in.releases, Release{Down: in.down, Up: last})
	}
	in.touches = 0
}

// Viewport returns the current viewport size in pixels.
func (in *Input) Viewport() mgl64.Vec2 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.viewport
}

// NDC converts a pixel position to normalized device coordinates.
func (in *Input) NDC(p mgl64.Vec2) mgl64.Vec2 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.normalize(p)
}

func (in *Input) normalize(p mgl64.Vec2) mgl64.Vec2 {
	x := p[0]/in.viewport[0]*2 - 1
	y := -(p[1]/in.viewport[1])*2 + 1
	return mgl64.Vec2{clamp(x, -1, 1), clamp(y, -1, 1)}
}

// Drain returns the accumulated frame and resets the deltas. Held state
// (keys, pointer position, button) carries over.
func (in *Input) Drain() Frame {
	in.mu.Lock()
	defer in.mu.Unlock()

	f := Frame{
		Keys:     in.keys,
		Held:     in.mouseDown || in.touches > 0,
		DragDX:   in.dragDX,
		DragDY:   in.dragDY,
		TouchDX:  in.touchDX,
		TouchDY:  in.touchDY,
		Wheel:    in.wheel,
		Pinch:    in.pinch,
		Pointer:  in.pointer,
		Releases: in.releases,
	}
	in.dragDX, in.dragDY = 0, 0
	in.touchDX, in.touchDY = 0, 0
	in.wheel, in.pinch = 0, 0
	in.releases = nil
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
