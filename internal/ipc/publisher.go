package ipc

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"card-field/internal/scene"
)

// Publisher streams frames to connected presentation processes.
type Publisher struct {
	socketPath string
	listener   net.Listener

	clients   map[net.Conn]struct{}
	clientsMu sync.RWMutex

	// Ring buffer behavior: the oldest queued frame is dropped when full.
	frameCh chan *scene.Frame

	viewport   ViewportMessage
	viewportMu sync.RWMutex

	clientCount atomic.Int32
	framesSent  atomic.Uint64
	dropped     atomic.Uint64
	sequence    atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// PublisherStats are the publisher counters.
type PublisherStats struct {
	Clients int    `json:"clients"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// NewPublisher creates a publisher on socketPath (DefaultSocketPath if empty).
func NewPublisher(socketPath string) *Publisher {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Publisher{
		socketPath: socketPath,
		clients:    make(map[net.Conn]struct{}),
		frameCh:    make(chan *scene.Frame, 8),
		stopCh:     make(chan struct{}),
	}
}

// SetViewport sets the viewport description sent to new clients.
func (p *Publisher) SetViewport(v ViewportMessage) {
	p.viewportMu.Lock()
	p.viewport = v
	p.viewportMu.Unlock()
}

// Start listens and begins broadcasting.
func (p *Publisher) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return nil
	}

	listener, err := CreatePlatformListener(p.socketPath)
	if err != nil {
		p.running.Store(false)
		return err
	}
	p.listener = listener

	p.wg.Add(2)
	go p.acceptLoop()
	go p.broadcastLoop()

	log.Printf("📡 Frame publisher started on %s", GetPlatformAddress(p.socketPath))
	return nil
}

// Stop closes every client and the listener.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.listener.Close()

	p.clientsMu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = make(map[net.Conn]struct{})
	p.clientCount.Store(0)
	p.clientsMu.Unlock()

	p.wg.Wait()
	releasePlatformListener(p.socketPath)
	log.Println("📡 Frame publisher stopped")
}

// PublishFrame queues f without blocking. Usable as a tick observer through
// Observe.
func (p *Publisher) PublishFrame(f *scene.Frame) {
	if f == nil || !p.running.Load() || p.clientCount.Load() == 0 {
		return
	}
	select {
	case p.frameCh <- f:
		return
	default:
	}
	select {
	case <-p.frameCh:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.frameCh <- f:
	default:
	}
}

// Observe publishes the frame carried by a tick report.
func (p *Publisher) Observe(rep scene.TickReport) { p.PublishFrame(rep.Frame) }

// Stats returns publisher counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Clients: int(p.clientCount.Load()),
		Sent:    p.framesSent.Load(),
		Dropped: p.dropped.Load(),
	}
}

func (p *Publisher) acceptLoop() {
	defer p.wg.Done()
	for p.running.Load() {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.running.Load() {
				return
			}
			log.Printf("⚠️ IPC accept error: %v", err)
			continue
		}
		p.addClient(conn)
	}
}

func (p *Publisher) addClient(conn net.Conn) {
	p.viewportMu.RLock()
	viewport := p.viewport
	p.viewportMu.RUnlock()

	// Viewport goes out before the client can receive frames.
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := WriteMessage(conn, MsgTypeViewport, viewport); err != nil {
		log.Printf("⚠️ Failed to send viewport to presenter: %v", err)
		conn.Close()
		return
	}

	p.clientsMu.Lock()
	if !p.running.Load() {
		p.clientsMu.Unlock()
		conn.Close()
		return
	}
	p.clients[conn] = struct{}{}
	n := p.clientCount.Add(1)
	p.clientsMu.Unlock()

	log.Printf("✅ Presenter connected (total: %d)", n)
}

func (p *Publisher) removeClient(conn net.Conn) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[conn]; !ok {
		return
	}
	delete(p.clients, conn)
	conn.Close()
	n := p.clientCount.Add(-1)
	log.Printf("🔌 Presenter disconnected (remaining: %d)", n)
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case f := <-p.frameCh:
			p.broadcast(f)
		}
	}
}

func (p *Publisher) broadcast(f *scene.Frame) {
	msg := FromFrame(f, p.sequence.Add(1))

	p.clientsMu.RLock()
	clients := make([]net.Conn, 0, len(p.clients))
	for conn := range p.clients {
		clients = append(clients, conn)
	}
	p.clientsMu.RUnlock()

	var failed []net.Conn
	for _, conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := WriteMessage(conn, MsgTypeFrame, msg); err != nil {
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		p.removeClient(conn)
	}
	if len(failed) < len(clients) {
		p.framesSent.Add(1)
	}
}
