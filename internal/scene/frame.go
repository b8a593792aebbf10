package scene

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/resource"
	"card-field/internal/world"
)

// CameraView is the camera part of a published frame.
type CameraView struct {
	Position     mgl64.Vec3       `json:"position"`
	Velocity     mgl64.Vec3       `json:"velocity"`
	Mode         string           `json:"mode"`
	Chunk        world.ChunkCoord `json:"chunk"`
	WindowCenter world.ChunkCoord `json:"windowCenter"`
	FlightTarget *mgl64.Vec3      `json:"flightTarget,omitempty"`
}

// RenderItem is one renderable placement. Immutable once published.
type RenderItem struct {
	PlacementID      string            `json:"id"`
	CardID           string            `json:"cardId"`
	Chunk            world.ChunkCoord  `json:"chunk"`
	Position         mgl64.Vec3        `json:"position"`
	Scale            float64           `json:"scale"`
	Transform        mgl64.Mat4        `json:"transform"`
	GeometryID       uint64            `json:"geometryId"`
	Opacity          float64           `json:"opacity"`
	DepthWrite       bool              `json:"depthWrite"`
	ProgramID        uint64            `json:"programId"`
	Uniforms         resource.Uniforms `json:"uniforms"`
	LabelID          uint64            `json:"labelId"`
	LabelPlaceholder bool              `json:"labelPlaceholder"`
	URL              string            `json:"url"`
}

// Frame is the immutable result of one tick, published for presentation.
type Frame struct {
	Tick       uint64       `json:"tick"`
	Time       time.Time    `json:"time"`
	Camera     CameraView   `json:"camera"`
	Generation uint64       `json:"generation"`
	Live       int          `json:"live"`
	Items      []RenderItem `json:"items"`
	Tier       string       `json:"tier"`
}

// Item returns the item with placement id, if it is in the frame.
func (f *Frame) Item(id string) (RenderItem, bool) {
	for _, it := range f.Items {
		if it.PlacementID == id {
			return it, true
		}
	}
	return RenderItem{}, false
}

// transform builds the model matrix of a unit plane placed at p and scaled
// by s on both axes of the plane.
func transform(p mgl64.Vec3, s float64) mgl64.Mat4 {
	return mgl64.Translate3D(p[0], p[1], p[2]).Mul4(mgl64.Scale3D(s, s, 1))
}
