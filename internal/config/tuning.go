package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTuning overlays a YAML tuning file onto base. Keys missing from the
// file keep their value from base.
func LoadTuning(path string, base AppConfig) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	return ParseTuning(raw, base)
}

// ParseTuning is LoadTuning without the file read.
func ParseTuning(raw []byte, base AppConfig) (AppConfig, error) {
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("tuning.yaml: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.World.ChunkSize <= 0:
		return fmt.Errorf("world.chunk_size must be positive, got %v", c.World.ChunkSize)
	case c.World.ItemsPerChunk <= 0:
		return fmt.Errorf("world.items_per_chunk must be positive, got %d", c.World.ItemsPerChunk)
	case c.World.MaxScale < c.World.MinScale:
		return fmt.Errorf("world.max_scale %v below min_scale %v", c.World.MaxScale, c.World.MinScale)
	case c.World.CardIndexRange <= 0:
		return fmt.Errorf("world.card_index_range must be positive, got %d", c.World.CardIndexRange)
	case c.World.RenderDistance < 0:
		return fmt.Errorf("world.render_distance must not be negative, got %d", c.World.RenderDistance)
	case c.World.CacheCapacity <= 0:
		return fmt.Errorf("world.cache_capacity must be positive, got %d", c.World.CacheCapacity)
	case c.World.CacheCapacity < WindowChunks(c.World.RenderDistance):
		return fmt.Errorf("world.cache_capacity %d cannot hold a radius %d window of %d chunks",
			c.World.CacheCapacity, c.World.RenderDistance, WindowChunks(c.World.RenderDistance))
	case c.Fade.DepthFadeEnd <= c.Fade.DepthFadeStart:
		return fmt.Errorf("fade.depth_fade_end %v must exceed depth_fade_start %v", c.Fade.DepthFadeEnd, c.Fade.DepthFadeStart)
	case c.Fade.ChunkFadeMargin <= 0:
		return fmt.Errorf("fade.chunk_fade_margin must be positive, got %v", c.Fade.ChunkFadeMargin)
	case c.Camera.ScrollDecay <= 0 || c.Camera.ScrollDecay >= 1:
		return fmt.Errorf("camera.scroll_decay must be in (0, 1), got %v", c.Camera.ScrollDecay)
	case c.Camera.VelocityDecay <= 0 || c.Camera.VelocityDecay >= 1:
		return fmt.Errorf("camera.velocity_decay must be in (0, 1), got %v", c.Camera.VelocityDecay)
	case c.Camera.MaxVelocity <= 0:
		return fmt.Errorf("camera.max_velocity must be positive, got %v", c.Camera.MaxVelocity)
	case c.Nav.MaxSearchRadius < 0:
		return fmt.Errorf("nav.max_search_radius must not be negative, got %d", c.Nav.MaxSearchRadius)
	case c.Resources.LabelCapacity <= 0:
		return fmt.Errorf("resources.label_capacity must be positive, got %d", c.Resources.LabelCapacity)
	case c.Resources.PaletteCount <= 0:
		return fmt.Errorf("resources.palette_count must be positive, got %d", c.Resources.PaletteCount)
	case c.Engine.TickRate <= 0:
		return fmt.Errorf("engine.tick_rate must be positive, got %d", c.Engine.TickRate)
	}
	return nil
}

// WindowChunks returns the number of chunks in a window of radius r.
func WindowChunks(r int) int {
	side := 2*r + 1
	return side * side * side
}
