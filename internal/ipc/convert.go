package ipc

import (
	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/resource"
	"card-field/internal/scene"
)

// FromFrame converts a published frame to its wire form.
func FromFrame(f *scene.Frame, seq uint64) *FrameMessage {
	msg := &FrameMessage{
		Sequence:   seq,
		Timestamp:  f.Time.UnixNano(),
		Tick:       f.Tick,
		Generation: f.Generation,
		Live:       f.Live,
		Tier:       f.Tier,
		Camera: CameraData{
			Position: f.Camera.Position,
			Velocity: f.Camera.Velocity,
			Mode:     f.Camera.Mode,
			Chunk:    [3]int{f.Camera.Chunk.X, f.Camera.Chunk.Y, f.Camera.Chunk.Z},
		},
	}
	if t := f.Camera.FlightTarget; t != nil {
		msg.Camera.Flying = true
		msg.Camera.FlightTarget = *t
	}

	msg.Items = make([]ItemData, len(f.Items))
	for i, it := range f.Items {
		u := it.Uniforms
		msg.Items[i] = ItemData{
			ID:          it.PlacementID,
			CardID:      it.CardID,
			Transform:   it.Transform,
			GeometryID:  it.GeometryID,
			Opacity:     it.Opacity,
			DepthWrite:  it.DepthWrite,
			ProgramID:   it.ProgramID,
			Time:        u.Time,
			Seed:        u.Seed,
			Palette:     [3]float64{u.Red, u.Green, u.Blue},
			LabelID:     it.LabelID,
			Placeholder: it.LabelPlaceholder,
			URL:         it.URL,
		}
	}
	return msg
}

// FromGeometry converts the shared card mesh to its wire form.
func FromGeometry(g *resource.Geometry) GeometryData {
	d := GeometryData{ID: g.ID, Indices: g.Indices}
	for i := range g.Vertices {
		d.Vertices[i] = g.Vertices[i]
		d.UVs[i] = g.UVs[i]
	}
	return d
}

// Matrix returns the item's model matrix.
func (it ItemData) Matrix() mgl64.Mat4 { return mgl64.Mat4(it.Transform) }

// PositionVec returns the camera position.
func (c CameraData) PositionVec() mgl64.Vec3 { return mgl64.Vec3(c.Position) }
