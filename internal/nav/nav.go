// Package nav finds a card in the procedural field and flies the camera to it.
package nav

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/camera"
	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/world"
)

// ErrNotFound is returned when no placement within the search radius
// resolves to the target card.
var ErrNotFound = errors.New("nav: card not found within search radius")

// Result describes a successful search.
type Result struct {
	Card      cards.Card       `json:"card"`
	Placement world.Placement  `json:"placement"`
	Target    mgl64.Vec3       `json:"target"`
	Radius    int              `json:"radius"`
	Visited   int              `json:"visited"`
	From      world.ChunkCoord `json:"from"`
}

// Navigator searches chunk space directly through the generator; it never
// touches the chunk cache.
type Navigator struct {
	gen       *world.Generator
	catalog   *cards.Catalog
	maxRadius int
	offset    float64
	duration  time.Duration
}

// New creates a navigator over gen and catalog.
func New(cfg config.NavConfig, gen *world.Generator, catalog *cards.Catalog) *Navigator {
	return &Navigator{
		gen:       gen,
		catalog:   catalog,
		maxRadius: cfg.MaxSearchRadius,
		offset:    cfg.FlyToDepthOffset,
		duration:  cfg.FlyDuration,
	}
}

// Find searches shells of growing radius around from for a placement that
// resolves to cardID. Each shell only visits coordinates not covered by a
// smaller radius; the first match wins.
func (n *Navigator) Find(cardID string, from world.ChunkCoord) (Result, error) {
	card, ok := n.catalog.Lookup(cardID)
	if !ok {
		return Result{}, ErrNotFound
	}

	visited := 0
	for r := 0; r <= n.maxRadius; r++ {
		for _, c := range world.Shell(from, r) {
			visited++
			for _, p := range n.gen.Generate(c) {
				resolved, ok := n.catalog.Resolve(p.CardIndex)
				if !ok || resolved.ID != cardID {
					continue
				}
				return Result{
					Card:      card,
					Placement: p,
					Target:    p.Position.Add(mgl64.Vec3{0, 0, n.offset}),
					Radius:    r,
					Visited:   visited,
					From:      from,
				}, nil
			}
		}
	}
	return Result{}, ErrNotFound
}

// FlyTo searches from the controller's current chunk and, on success,
// starts a flight to the result. On failure the controller is untouched.
func (n *Navigator) FlyTo(ctrl *camera.Controller, cardID string, now time.Time) (Result, error) {
	res, err := n.Find(cardID, ctrl.Chunk())
	if err != nil {
		return Result{}, err
	}
	ctrl.FlyTo(res.Target, n.duration, now)
	return res, nil
}
