package resource

import (
	"log"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/cards"
	"card-field/internal/config"
)

var geometryIDs atomic.Uint64

// Geometry is the unit quad every card is drawn with. Render items refer to
// it by ID.
type Geometry struct {
	ID       uint64        `json:"id"`
	Vertices [4]mgl64.Vec3 `json:"vertices"`
	UVs      [4]mgl64.Vec2 `json:"uvs"`
	Indices  [6]uint16     `json:"indices"`
	Normal   mgl64.Vec3    `json:"normal"`
}

// NewPlane returns a w x h quad in the XY plane centred on the origin,
// facing +Z.
func NewPlane(w, h float64) *Geometry {
	hw, hh := w/2, h/2
	return &Geometry{
		ID:       geometryIDs.Add(1),
		Vertices: [4]mgl64.Vec3{{-hw, hh, 0}, {hw, hh, 0}, {-hw, -hh, 0}, {hw, -hh, 0}},
		UVs:      [4]mgl64.Vec2{{0, 1}, {1, 1}, {0, 0}, {1, 0}},
		Indices:  [6]uint16{0, 2, 1, 2, 3, 1},
		Normal:   mgl64.Vec3{0, 0, 1},
	}
}

// Pool owns the label cache, the material pool and the shared geometry of
// one scene.
type Pool struct {
	Labels    *LabelCache
	Materials *MaterialPool
	geometry  *Geometry
}

// NewPool creates a scene's resource pool.
func NewPool(cfg config.ResourceConfig, synth LabelSynthesizer, compiler ProgramCompiler) *Pool {
	return &Pool{
		Labels:    NewLabelCache(synth, cfg.LabelCapacity, cfg.DesktopLabelPx, cfg.MobileLabelPx),
		Materials: NewMaterialPool(compiler, cfg.PaletteCount),
		geometry:  NewPlane(1, 1),
	}
}

// NewDefaultPool creates a pool with the gg label renderer. If the fonts
// cannot be loaded every label falls back to the placeholder.
func NewDefaultPool(cfg config.ResourceConfig) *Pool {
	var synth LabelSynthesizer
	if s, err := NewGGLabelSynthesizer(); err != nil {
		log.Printf("⚠️ Label renderer unavailable, using placeholders: %v", err)
	} else {
		synth = s
	}
	return NewPool(cfg, synth, &StaticCompiler{})
}

// Geometry returns the shared card geometry.
func (p *Pool) Geometry() *Geometry { return p.geometry }

// Label acquires the label of card at tier.
func (p *Pool) Label(card cards.Card, tier Tier) *LabelHandle {
	return p.Labels.Acquire(card, tier)
}

// Material acquires a material instance for card.
func (p *Pool) Material(card cards.Card) *Material {
	return p.Materials.Acquire(card.Rank)
}

// Close disposes every pooled resource.
func (p *Pool) Close() {
	p.Labels.Purge()
	p.Materials.Reset()
}
