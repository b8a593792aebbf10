package api

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/camera"
)

// InputEvent is a browser UI event forwarded to the engine.
type InputEvent struct {
	Type   string       `json:"type"` // keydown, keyup, blur, pointerdown, pointermove, pointerup, pointerleave, wheel, touchstart, touchmove, touchend, resize
	Key    string       `json:"key,omitempty"`
	X      float64      `json:"x,omitempty"`
	Y      float64      `json:"y,omitempty"`
	DeltaY float64      `json:"deltaY,omitempty"`
	Points [][2]float64 `json:"points,omitempty"`
	Width  float64      `json:"width,omitempty"`
	Height float64      `json:"height,omitempty"`
}

// viewportSetter is the part of the engine a resize event reaches.
type viewportSetter interface {
	SetViewport(w, h float64)
}

// applyInput writes ev into the accumulator. Unknown keys are ignored.
func applyInput(in *camera.Input, vp viewportSetter, ev InputEvent) error {
	switch ev.Type {
	case "keydown", "keyup":
		k, ok := camera.ParseKey(ev.Key)
		if !ok {
			return nil
		}
		if ev.Type == "keydown" {
			in.KeyDown(k)
		} else {
			in.KeyUp(k)
		}
	case "blur":
		in.ReleaseKeys()
		in.PointerLeave()
	case "pointerdown":
		in.PointerDown(ev.X, ev.Y)
	case "pointermove":
		in.PointerMove(ev.X, ev.Y)
	case "pointerup":
		in.PointerUp(ev.X, ev.Y)
	case "pointerleave":
		in.PointerLeave()
	case "wheel":
		in.Wheel(ev.DeltaY)
	case "touchstart":
		in.TouchStart(points(ev.Points))
	case "touchmove":
		in.TouchMove(points(ev.Points))
	case "touchend":
		in.TouchEnd(mgl64.Vec2{ev.X, ev.Y})
	case "resize":
		if ev.Width <= 0 || ev.Height <= 0 {
			return fmt.Errorf("invalid viewport %vx%v", ev.Width, ev.Height)
		}
		vp.SetViewport(ev.Width, ev.Height)
	default:
		return fmt.Errorf("unknown input type %q", ev.Type)
	}
	return nil
}

func points(raw [][2]float64) []mgl64.Vec2 {
	out := make([]mgl64.Vec2, len(raw))
	for i, p := range raw {
		out[i] = mgl64.Vec2{p[0], p[1]}
	}
	return out
}
