package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"card-field/internal/config"
	"card-field/internal/eventlog"
)

// statsInterval is how often engine counters are exported to Prometheus.
const statsInterval = time.Second

// Server is the HTTP API with the WebSocket hub.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	recorder    StatsRecorder
	http        *http.Server
	stop        chan struct{}
}

// NewServer wires the router and hub. Background workers start in Start.
func NewServer(engine EngineInterface, hub *WebSocketHub, cfg config.AppConfig, events *eventlog.Log) *Server {
	if hub == nil {
		hub = NewWebSocketHub(NewOriginPolicy(cfg.Server.AllowedOrigins))
	}
	hub.Attach(engine)

	s := &Server{
		engine:      engine,
		wsHub:       hub,
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		stop:        make(chan struct{}),
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Events:      events,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.AllowedOrigins,
		World:       cfg.World,
	})
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub { return s.wsHub }

// Router returns the handler for httptest.
func (s *Server) Router() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start launches the hub and metrics export and serves until Shutdown.
func (s *Server) Start() error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop()
	go s.exportStats()

	log.Printf("🌐 API server starting on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) exportStats() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.recorder.Record(s.engine.Stats())
		}
	}
}

// Shutdown stops accepting requests and ends the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return s.http.Shutdown(ctx)
}
