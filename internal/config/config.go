// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for world, camera, fade and server settings.
//
// IMPORTANT: When changing values, only modify this file (or a tuning YAML).
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// WORLD CONFIGURATION
// =============================================================================

// WorldConfig holds procedural generation and chunk window settings.
type WorldConfig struct {
	Seed           uint32  `yaml:"seed"`
	ChunkSize      float64 `yaml:"chunk_size"`       // World units per chunk edge
	ItemsPerChunk  int     `yaml:"items_per_chunk"`  // Placements generated per chunk
	MinScale       float64 `yaml:"min_scale"`        // Smallest generated card scale
	MaxScale       float64 `yaml:"max_scale"`        // Largest generated card scale
	CardIndexRange int     `yaml:"card_index_range"` // cardIndex is drawn from [0, range)
	RenderDistance int     `yaml:"render_distance"`  // Chebyshev radius of the chunk window
	CacheCapacity  int     `yaml:"cache_capacity"`   // Chunk LRU capacity
	Deferred       bool    `yaml:"deferred"`         // Generate chunks on background workers
	Workers        int     `yaml:"workers"`          // Deferred generation workers
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Seed:           0,
		ChunkSize:      110,
		ItemsPerChunk:  5,
		MinScale:       12,
		MaxScale:       20,
		CardIndexRange: 1_000_000,
		RenderDistance: 2,
		CacheCapacity:  256,
		Deferred:       false, // sync avoids pop-in; generation is cheap
		Workers:        2,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()
	applyWorldEnv(&cfg)
	return cfg
}

// applyWorldEnv overrides the fields whose environment variable is set.
func applyWorldEnv(cfg *WorldConfig) {
	if s, ok := lookupEnvInt("WORLD_SEED"); ok && s >= 0 {
		cfg.Seed = uint32(s)
	}
	if cs, ok := lookupEnvFloat("CHUNK_SIZE"); ok && cs > 0 {
		cfg.ChunkSize = cs
	}
	if rd, ok := lookupEnvInt("RENDER_DISTANCE"); ok && rd >= 0 {
		cfg.RenderDistance = rd
	}
	if c, ok := lookupEnvInt("CHUNK_CACHE_CAPACITY"); ok && c > 0 {
		cfg.CacheCapacity = c
	}
	if v, ok := os.LookupEnv("CHUNK_DEFERRED"); ok {
		cfg.Deferred = v == "true"
	}
	if w, ok := lookupEnvInt("CHUNK_WORKERS"); ok && w > 0 {
		cfg.Workers = w
	}
}

// =============================================================================
// FADE CONFIGURATION
// =============================================================================

// FadeConfig holds the visibility fade model constants.
type FadeConfig struct {
	ChunkFadeMargin  float64 `yaml:"chunk_fade_margin"`  // Chunks beyond render distance to fade over
	DepthFadeStart   float64 `yaml:"depth_fade_start"`   // Near band (world units)
	DepthFadeEnd     float64 `yaml:"depth_fade_end"`     // Far band (world units)
	CullMargin       float64 `yaml:"cull_margin"`        // Hard cull beyond far band + margin
	Smoothing        float64 `yaml:"smoothing"`          // Opacity smoothing per reference tick
	InvisibleEpsilon float64 `yaml:"invisible_epsilon"`  // Below this a card is not rendered
	OpaqueThreshold  float64 `yaml:"opaque_threshold"`   // Above this depth writes are enabled
}

// DefaultFade returns the default fade configuration.
func DefaultFade() FadeConfig {
	return FadeConfig{
		ChunkFadeMargin:  1,
		DepthFadeStart:   140,
		DepthFadeEnd:     260,
		CullMargin:       50,
		Smoothing:        0.35,
		InvisibleEpsilon: 0.01,
		OpaqueThreshold:  0.99,
	}
}

// =============================================================================
// CAMERA CONFIGURATION
// =============================================================================

// CameraConfig holds the inertial camera model constants.
// All per-tick values are defined at a 60 Hz reference rate.
type CameraConfig struct {
	InitialZ          float64 `yaml:"initial_z"`
	KeyboardSpeed     float64 `yaml:"keyboard_speed"`
	MaxVelocity       float64 `yaml:"max_velocity"`
	VelocityLerp      float64 `yaml:"velocity_lerp"`
	VelocityDecay     float64 `yaml:"velocity_decay"`
	DragSensitivity   float64 `yaml:"drag_sensitivity"`
	TouchSensitivity  float64 `yaml:"touch_sensitivity"`
	WheelSensitivity  float64 `yaml:"wheel_sensitivity"`
	ScrollDecay       float64 `yaml:"scroll_decay"`
	DriftBase         float64 `yaml:"drift_base"`
	DriftLerp         float64 `yaml:"drift_lerp"`
	DriftLerpZooming  float64 `yaml:"drift_lerp_zooming"`
	ZoomThreshold     float64 `yaml:"zoom_threshold"`
	ClickThresholdPx  float64 `yaml:"click_threshold_px"`
	ThrottleBaseMs    int     `yaml:"throttle_base_ms"`
	ThrottleZoomingMs int     `yaml:"throttle_zooming_ms"`
	ThrottleFastMs    int     `yaml:"throttle_fast_ms"`
	FastZoomSpeed     float64 `yaml:"fast_zoom_speed"`
}

// DefaultCamera returns the default camera configuration.
func DefaultCamera() CameraConfig {
	return CameraConfig{
		InitialZ:          50,
		KeyboardSpeed:     0.18,
		MaxVelocity:       3.2,
		VelocityLerp:      0.16,
		VelocityDecay:     0.9,
		DragSensitivity:   0.025,
		TouchSensitivity:  0.02,
		WheelSensitivity:  0.006,
		ScrollDecay:       0.8,
		DriftBase:         8,
		DriftLerp:         0.12,
		DriftLerpZooming:  0.2,
		ZoomThreshold:     0.05,
		ClickThresholdPx:  5,
		ThrottleBaseMs:    100,
		ThrottleZoomingMs: 400,
		ThrottleFastMs:    500,
		FastZoomSpeed:     1.0,
	}
}

// =============================================================================
// NAVIGATION CONFIGURATION
// =============================================================================

// NavConfig holds search and fly-to settings.
type NavConfig struct {
	MaxSearchRadius  int           `yaml:"max_search_radius"`
	FlyToDepthOffset float64       `yaml:"fly_to_depth_offset"`
	FlyDuration      time.Duration `yaml:"fly_duration"`
}

// DefaultNav returns the default navigation configuration.
func DefaultNav() NavConfig {
	return NavConfig{
		MaxSearchRadius:  12,
		FlyToDepthOffset: 40,
		FlyDuration:      2000 * time.Millisecond,
	}
}

// NavFromEnv returns navigation configuration with environment variable overrides.
func NavFromEnv() NavConfig {
	cfg := DefaultNav()
	applyNavEnv(&cfg)
	return cfg
}

func applyNavEnv(cfg *NavConfig) {
	if r, ok := lookupEnvInt("MAX_SEARCH_RADIUS"); ok && r > 0 {
		cfg.MaxSearchRadius = r
	}
	if ms, ok := lookupEnvInt("FLY_DURATION_MS"); ok && ms > 0 {
		cfg.FlyDuration = time.Duration(ms) * time.Millisecond
	}
}

// =============================================================================
// RESOURCE POOL CONFIGURATION
// =============================================================================

// ResourceConfig controls label and material pooling.
type ResourceConfig struct {
	LabelCapacity  int `yaml:"label_capacity"`  // Max cached label images
	PaletteCount   int `yaml:"palette_count"`   // Material buckets (rank mod count)
	DesktopLabelPx int `yaml:"desktop_label_px"` // Label width on desktop tier
	MobileLabelPx  int `yaml:"mobile_label_px"`  // Label width on mobile tier
}

// DefaultResources returns the default resource pool configuration.
func DefaultResources() ResourceConfig {
	return ResourceConfig{
		LabelCapacity:  1024, // above a full radius-2 window (125 chunks x 5)
		PaletteCount:   12,
		DesktopLabelPx: 512,
		MobileLabelPx:  256,
	}
}

// =============================================================================
// ENGINE CONFIGURATION
// =============================================================================

// EngineConfig holds the tick loop and frame limits.
type EngineConfig struct {
	TickRate       int     `yaml:"tick_rate"`       // Engine ticks per second
	MaxRender      int     `yaml:"max_render"`      // Cap on render items per frame
	LabelBudget    int     `yaml:"label_budget"`    // Label syntheses allowed per tick
	TouchDevice    bool    `yaml:"touch_device"`    // Mobile label tier, no pointer drift
	ViewportWidth  float64 `yaml:"viewport_width"`  // Default viewport until a client reports one
	ViewportHeight float64 `yaml:"viewport_height"` // Pixels
	FovY           float64 `yaml:"fov_y"`           // Vertical field of view, degrees
}

// DefaultEngine returns the default engine configuration.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		TickRate:       60,
		MaxRender:      1024,
		LabelBudget:    32,
		ViewportWidth:  1280,
		ViewportHeight: 720,
		FovY:           75,
	}
}

// EngineFromEnv returns engine configuration with environment variable overrides.
func EngineFromEnv() EngineConfig {
	cfg := DefaultEngine()
	applyEngineEnv(&cfg)
	return cfg
}

func applyEngineEnv(cfg *EngineConfig) {
	if tr, ok := lookupEnvInt("TICK_RATE"); ok && tr > 0 {
		cfg.TickRate = tr
	}
	if lb, ok := lookupEnvInt("LABEL_BUDGET"); ok && lb > 0 {
		cfg.LabelBudget = lb
	}
	if v, ok := os.LookupEnv("TOUCH_DEVICE"); ok {
		cfg.TouchDevice = v == "true"
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	CardsPath      string   `yaml:"cards_path"`   // JSON file or .db/.sqlite catalog
	EventLogPath   string   `yaml:"event_log"`    // Empty disables the event log
	FrameSocket    string   `yaml:"frame_socket"` // Empty disables the frame publisher
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      3000,
		CardsPath: "data/cards.json",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
		},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	applyServerEnv(&cfg)
	return cfg
}

func applyServerEnv(cfg *ServerConfig) {
	if p, ok := lookupEnvInt("PORT"); ok && p > 0 {
		cfg.Port = p
	}
	if path := os.Getenv("CARDS_PATH"); path != "" {
		cfg.CardsPath = path
	}
	if path := os.Getenv("EVENT_LOG"); path != "" {
		cfg.EventLogPath = path
	}
	if path := os.Getenv("FRAME_SOCKET"); path != "" {
		cfg.FrameSocket = path
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World     WorldConfig    `yaml:"world"`
	Fade      FadeConfig     `yaml:"fade"`
	Camera    CameraConfig   `yaml:"camera"`
	Nav       NavConfig      `yaml:"nav"`
	Resources ResourceConfig `yaml:"resources"`
	Engine    EngineConfig   `yaml:"engine"`
	Server    ServerConfig   `yaml:"server"`
}

// Default returns the complete configuration without any overrides.
func Default() AppConfig {
	return AppConfig{
		World:     DefaultWorld(),
		Fade:      DefaultFade(),
		Camera:    DefaultCamera(),
		Nav:       DefaultNav(),
		Resources: DefaultResources(),
		Engine:    DefaultEngine(),
		Server:    DefaultServer(),
	}
}

// Load returns the complete configuration with environment overrides.
// If CANVAS_TUNING names a YAML file it is applied before the environment,
// so any env var that is set still wins. The result is validated.
func Load() (AppConfig, error) {
	cfg := Default()
	if path := os.Getenv("CANVAS_TUNING"); path != "" {
		tuned, err := LoadTuning(path, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = tuned
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	applyWorldEnv(&cfg.World)
	applyNavEnv(&cfg.Nav)
	applyEngineEnv(&cfg.Engine)
	applyServerEnv(&cfg.Server)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// lookupEnvInt reports the value of key and whether it is set to an integer.
func lookupEnvInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func lookupEnvFloat(key string) (float64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
