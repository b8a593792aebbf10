package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"card-field/internal/cards"
	"card-field/internal/nav"
)

const (
	MaxWSConnectionsTotal = 500
	MaxWSConnectionsPerIP = 10

	// FrameInterval is how often the latest frame is pushed to clients.
	FrameInterval = 100 * time.Millisecond

	wsSendBuffer   = 16
	wsWriteTimeout = 5 * time.Second
	wsMaxMessage   = 64 << 10
)

// wsMessage is the envelope for both directions.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
}

// WebSocketHub fans frames and link events out to clients and feeds their
// input back into the engine.
type WebSocketHub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	stop       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	engine    EngineInterface
	origins   *OriginPolicy
	wsLimiter *WebSocketRateLimiter
	upgrader  websocket.Upgrader
}

// NewWebSocketHub creates a hub that accepts browsers from origins.
func NewWebSocketHub(origins *OriginPolicy) *WebSocketHub {
	if origins == nil {
		origins = NewOriginPolicy(nil)
	}
	h := &WebSocketHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stop:       make(chan struct{}),
		origins:    origins,
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if h.origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Attach sets the engine input and search requests are sent to.
func (h *WebSocketHub) Attach(engine EngineInterface) { h.engine = engine }

// Run owns the client set until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 Client connected from %s (%d total)", c.ip, n)
			UpdateWSConnections(n)

		case c := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(c)
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 Client disconnected (%d remaining)", n)
			UpdateWSConnections(n)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				h.trySend(c, msg)
			}
			h.mu.RUnlock()
		}
	}
}

// Stop closes every connection and ends Run.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *WebSocketHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.wsLimiter.Release(c.ip)
	close(c.send)
}

// trySend queues msg for c, skipping slow clients.
func (h *WebSocketHub) trySend(c *wsClient, msg []byte) {
	select {
	case c.send <- msg:
		wsMessagesTotal.WithLabelValues("out").Inc()
	default:
	}
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wsMessage{Event: event, Data: raw})
}

// Broadcast sends an event to every client. Drops under backpressure.
func (h *WebSocketHub) Broadcast(event string, data any) {
	msg, err := encode(event, data)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// OpenLink broadcasts a link:open event so the browser opens the card.
func (h *WebSocketHub) OpenLink(c cards.Card) {
	log.Printf("🌐 Open link %s (%s)", c.URL, c.ID)
	h.Broadcast("link:open", map[string]string{"cardId": c.ID, "url": c.URL})
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes the latest frame at FrameInterval until Stop.
func (h *WebSocketHub) StartBroadcastLoop() {
	ticker := time.NewTicker(FrameInterval)
	go func() {
		defer ticker.Stop()
		var lastTick uint64
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 || h.engine == nil {
				continue
			}
			f := h.engine.Frame()
			if f == nil || f.Tick == lastTick {
				continue
			}
			lastTick = f.Tick
			h.Broadcast("frame:update", f)
		}
	}()
}

// HandleWebSocket upgrades the request and serves the client.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.ClientCount() >= MaxWSConnectionsTotal {
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.wsLimiter.Release(ip)
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	c := &wsClient{conn: conn, ip: ip, send: make(chan []byte, wsSendBuffer)}
	select {
	case h.register <- c:
	case <-h.stop:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *WebSocketHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *WebSocketHub) readPump(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stop:
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		wsMessagesTotal.WithLabelValues("in").Inc()

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if reply := h.handleMessage(c, msg); reply != nil {
			h.mu.RLock()
			if _, ok := h.clients[c]; ok {
				h.trySend(c, reply)
			}
			h.mu.RUnlock()
		}
	}
}

// handleMessage applies one client message and returns an optional reply.
func (h *WebSocketHub) handleMessage(c *wsClient, msg wsMessage) []byte {
	if h.engine == nil {
		return nil
	}
	switch msg.Event {
	case "input":
		var ev InputEvent
		if json.Unmarshal(msg.Data, &ev) == nil {
			applyInput(h.engine.Input(), h.engine, ev)
		}
	case "input:batch":
		var evs []InputEvent
		if json.Unmarshal(msg.Data, &evs) == nil && len(evs) <= maxInputBatch {
			for _, ev := range evs {
				applyInput(h.engine.Input(), h.engine, ev)
			}
		}
	case "search":
		var req searchRequest
		if json.Unmarshal(msg.Data, &req) != nil || req.CardID == "" {
			return nil
		}
		res, err := h.engine.Search(req.CardID, c.ip)
		var out []byte
		switch {
		case errors.Is(err, nav.ErrNotFound):
			out, _ = encode("search:result", map[string]any{"found": false, "cardId": req.CardID})
		case err == nil:
			out, _ = encode("search:result", map[string]any{"found": true, "result": res})
		}
		return out
	}
	return nil
}
