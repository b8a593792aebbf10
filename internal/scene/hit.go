package scene

import (
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/cards"
)

// HitTester picks the nearest renderable item under a screen position given
// in normalized device coordinates.
type HitTester interface {
	HitTest(ndc mgl64.Vec2, cam CameraView, items []RenderItem) (RenderItem, bool)
}

// PerspectiveHitTester casts a ray from a perspective camera looking down -Z
// and intersects it with each item's card quad.
type PerspectiveHitTester struct {
	FovY   float64 // vertical field of view, degrees
	Aspect float64 // width / height
}

// NewPerspectiveHitTester creates a hit tester for a w x h viewport.
func NewPerspectiveHitTester(fovY, w, h float64) *PerspectiveHitTester {
	aspect := 1.0
	if w > 0 && h > 0 {
		aspect = w / h
	}
	return &PerspectiveHitTester{FovY: fovY, Aspect: aspect}
}

// Ray returns the world-space direction through ndc.
func (h *PerspectiveHitTester) Ray(ndc mgl64.Vec2) mgl64.Vec3 {
	t := math.Tan(mgl64.DegToRad(h.FovY) / 2)
	return mgl64.Vec3{ndc[0] * t * h.Aspect, ndc[1] * t, -1}.Normalize()
}

// HitTest implements HitTester.
func (h *PerspectiveHitTester) HitTest(ndc mgl64.Vec2, cam CameraView, items []RenderItem) (RenderItem, bool) {
	origin := cam.Position
	dir := h.Ray(ndc)

	best := math.Inf(1)
	var hit RenderItem
	found := false
	for _, it := range items {
		if it.Opacity <= 0 || dir[2] == 0 {
			continue
		}
		// Card quads face +Z at the placement depth.
		t := (it.Position[2] - origin[2]) / dir[2]
		if t <= 0 || t >= best {
			continue
		}
		p := origin.Add(dir.Mul(t))
		half := it.Scale / 2
		if math.Abs(p[0]-it.Position[0]) > half || math.Abs(p[1]-it.Position[1]) > half {
			continue
		}
		best, hit, found = t, it, true
	}
	return hit, found
}

// LinkOpener performs the external side effect of a confirmed click.
type LinkOpener interface {
	OpenLink(card cards.Card)
}

// LinkOpenerFunc adapts a function to LinkOpener.
type LinkOpenerFunc func(cards.Card)

// OpenLink implements LinkOpener.
func (f LinkOpenerFunc) OpenLink(c cards.Card) { f(c) }

// LogLinkOpener only logs the link.
type LogLinkOpener struct{}

// OpenLink implements LinkOpener.
func (LogLinkOpener) OpenLink(c cards.Card) {
	log.Printf("🌐 Open link %s (%s)", c.URL, c.ID)
}
