package api

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"card-field/internal/scene"
)

// Metrics use bounded label values only.
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardfield_tick_duration_seconds",
		Help:    "Time spent in one engine tick",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.016, 0.033},
	})

	livePlacements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfield_live_placements",
		Help: "Placements in the live registry",
	})

	renderablePlacements = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfield_renderable_placements",
		Help: "Placements in the last published frame",
	})

	windowUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardfield_window_updates_total",
		Help: "Chunk window recentres",
	})

	clicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_clicks_total",
		Help: "Clicks by hit-test outcome",
	}, []string{"outcome"}) // "hit", "miss"

	chunkCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_chunk_cache_total",
		Help: "Chunk cache lookups and evictions",
	}, []string{"event"}) // "hit", "miss", "eviction"

	chunkCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfield_chunk_cache_size",
		Help: "Chunks held by the cache",
	})

	deferredResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_deferred_results_total",
		Help: "Background chunk results by fate",
	}, []string{"fate"}) // "applied", "dropped"

	labelEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_labels_total",
		Help: "Label cache activity",
	}, []string{"event"}) // "synthesized", "evicted", "placeholder"

	materialCompilations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardfield_material_compilations_total",
		Help: "Shader programs compiled by the material pool",
	})

	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_searches_total",
		Help: "Navigator searches by outcome",
	}, []string{"outcome"}) // "found", "not_found"

	eventLogEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardfield_event_log_total",
		Help: "Event log records by fate",
	}, []string{"fate"}) // "accepted", "dropped"

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"})

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket messages by direction",
	}, []string{"direction"}) // "out", "in"
)

// ObservabilityConfig configures the debug server.
type ObservabilityConfig struct {
	Enabled    bool
	ListenAddr string // localhost only unless ALLOW_DEBUG_EXTERNAL=true
}

// DefaultObservabilityConfig returns localhost-only defaults.
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// StartDebugServer serves pprof and /metrics on a separate listener.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}
	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" &&
		os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Println("⚠️ Debug server forced to localhost")
		cfg.ListenAddr = "127.0.0.1:6060"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("📊 Debug server on %s (pprof, metrics)", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return nil
}

// RecordTick is a scene tick observer.
func RecordTick(rep scene.TickReport) {
	tickDuration.Observe(rep.Duration.Seconds())
	livePlacements.Set(float64(rep.Live))
	renderablePlacements.Set(float64(rep.Renderable))
	if rep.WindowMoved {
		windowUpdates.Inc()
	}
	if rep.Clicks > 0 {
		clicksTotal.WithLabelValues("hit").Add(float64(rep.Hits))
		clicksTotal.WithLabelValues("miss").Add(float64(rep.Clicks - rep.Hits))
	}
}

// StatsRecorder turns cumulative engine counters into Prometheus counter
// increments.
type StatsRecorder struct {
	mu   sync.Mutex
	last scene.Stats
}

// Record adds the growth since the previous call.
func (r *StatsRecorder) Record(s scene.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.last

	addDelta(chunkCacheEvents.WithLabelValues("hit"), s.Cache.Hits, p.Cache.Hits)
	addDelta(chunkCacheEvents.WithLabelValues("miss"), s.Cache.Misses, p.Cache.Misses)
	addDelta(chunkCacheEvents.WithLabelValues("eviction"), s.Cache.Evictions, p.Cache.Evictions)
	chunkCacheSize.Set(float64(s.Cache.Size))

	addDelta(deferredResults.WithLabelValues("applied"), s.DeferredApplied, p.DeferredApplied)
	addDelta(deferredResults.WithLabelValues("dropped"), s.DeferredDropped, p.DeferredDropped)

	addDelta(labelEvents.WithLabelValues("synthesized"), s.Labels.Synthesized, p.Labels.Synthesized)
	addDelta(labelEvents.WithLabelValues("evicted"), s.Labels.Evicted, p.Labels.Evicted)
	addDelta(labelEvents.WithLabelValues("placeholder"), s.Labels.Placeholders, p.Labels.Placeholders)
	addDelta(materialCompilations, s.Materials.Compilations, p.Materials.Compilations)

	found, prevFound := s.Searches-s.SearchMisses, p.Searches-p.SearchMisses
	addDelta(searchesTotal.WithLabelValues("found"), found, prevFound)
	addDelta(searchesTotal.WithLabelValues("not_found"), s.SearchMisses, p.SearchMisses)

	if s.Events != nil {
		var prevTotal, prevDropped uint64
		if p.Events != nil {
			prevTotal, prevDropped = p.Events.Total, p.Events.Dropped
		}
		addDelta(eventLogEvents.WithLabelValues("accepted"), s.Events.Total, prevTotal)
		addDelta(eventLogEvents.WithLabelValues("dropped"), s.Events.Dropped, prevDropped)
	}

	r.last = s
}

func addDelta(c prometheus.Counter, cur, prev uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// RecordConnectionRejected counts a rejected connection. reason is one of
// "rate_limit", "origin", "ws_total_limit", "ws_ip_limit".
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records request latency for a route pattern.
func RecordRequest(method, endpoint string, d time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// UpdateWSConnections sets the active connection gauge.
func UpdateWSConnections(n int) {
	wsConnectionsActive.Set(float64(n))
}
