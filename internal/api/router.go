package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"card-field/internal/camera"
	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/eventlog"
	"card-field/internal/nav"
	"card-field/internal/resource"
	"card-field/internal/scene"
)

// EngineInterface is the part of the scene the API calls. Keep it minimal.
type EngineInterface interface {
	// Frame returns the latest published frame without locking the tick.
	Frame() *scene.Frame
	Stats() scene.Stats
	// Search starts a fly-to; source identifies the client in the event log.
	Search(cardID, source string) (nav.Result, error)
	Catalog() *cards.Catalog
	Pool() *resource.Pool
	Tier() resource.Tier
	Input() *camera.Input
	SetViewport(w, h float64)
}

// RouterConfig holds the router's dependencies.
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine:          engine,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is required.
	Engine EngineInterface

	// Events backs /api/events. Optional.
	Events *eventlog.Log

	// RateLimiter is used as is when set; otherwise one is built from
	// RateLimitConfig or DefaultRateLimitConfig.
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins defaults to local development origins.
	CORSOrigins []string

	// World supplies the card scale range for card payloads.
	World config.WorldConfig

	// LabelCapacity bounds the labels synthesized for HTTP clients. The
	// scene's own label cache is only read. Defaults to 128.
	LabelCapacity int

	DisableLogging bool
}

type routerHandlers struct {
	engine  EngineInterface
	events  *eventlog.Log
	limiter *IPRateLimiter
	world   config.WorldConfig
	labels  *resource.LabelCache
}

// NewRouter builds the HTTP router. It starts no goroutines besides the
// rate limiter's cleanup and opens no listeners.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	limiter := cfg.RateLimiter
	if limiter == nil {
		rlc := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlc = *cfg.RateLimitConfig
		}
		limiter = NewIPRateLimiter(rlc)
	}
	r.Use(limiter.Middleware)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"X-Label-Placeholder"},
		MaxAge:         300,
	}))
	r.Use(metricsMiddleware)

	world := cfg.World
	if world.MaxScale == 0 {
		world = config.DefaultWorld()
	}
	labelCap := cfg.LabelCapacity
	if labelCap <= 0 {
		labelCap = 128
	}
	h := &routerHandlers{
		engine:  cfg.Engine,
		events:  cfg.Events,
		limiter: limiter,
		world:   world,
		labels:  cfg.Engine.Pool().Labels.Fork(labelCap),
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/frame", h.handleGetFrame)
		r.Get("/stats", h.handleGetStats)
		r.Get("/events", h.handleGetEvents)
		r.Get("/geometry", h.handleGetGeometry)

		r.Get("/cards", h.handleListCards)
		r.Get("/cards/{id}", h.handleGetCard)
		r.Get("/cards/{id}/label.png", h.handleGetLabel)

		r.Post("/search", h.handleSearch)
		r.Post("/input", h.handleInput)
	})

	return r
}

// metricsMiddleware records latency per route pattern, never per raw path.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		RecordRequest(r.Method, pattern, time.Since(start))
	})
}
