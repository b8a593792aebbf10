package ipc

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Subscriber receives frames from a Publisher and reconnects when the
// publisher restarts.
type Subscriber struct {
	socketPath string
	conn       net.Conn
	connMu     sync.Mutex

	latest   atomic.Pointer[FrameMessage]
	viewport atomic.Pointer[ViewportMessage]
	ready    chan struct{}
	once     sync.Once

	received   atomic.Int64
	reconnects atomic.Int64
	errs       atomic.Int64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onFrame func(*FrameMessage)
}

// NewSubscriber creates a subscriber for socketPath (DefaultSocketPath if empty).
func NewSubscriber(socketPath string) *Subscriber {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	return &Subscriber{
		socketPath: socketPath,
		ready:      make(chan struct{}),
		stopCh:     make(chan struct{}),
	}
}

// OnFrame sets a callback run on the read goroutine for every frame.
// Set it before Start.
func (s *Subscriber) OnFrame(fn func(*FrameMessage)) { s.onFrame = fn }

// Start connects in the background.
func (s *Subscriber) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go s.connectionLoop()
	log.Printf("📡 Frame subscriber connecting to %s", GetPlatformAddress(s.socketPath))
}

// Stop disconnects and waits for the read goroutine.
func (s *Subscriber) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.stopCh)
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

// Latest returns the most recent frame, or nil.
func (s *Subscriber) Latest() *FrameMessage { return s.latest.Load() }

// WaitForViewport blocks until the publisher's viewport arrives.
func (s *Subscriber) WaitForViewport(timeout time.Duration) (*ViewportMessage, bool) {
	select {
	case <-s.ready:
		return s.viewport.Load(), true
	case <-time.After(timeout):
		return nil, false
	case <-s.stopCh:
		return nil, false
	}
}

// Stats returns frames received, reconnects and read errors.
func (s *Subscriber) Stats() (received, reconnects, errs int64) {
	return s.received.Load(), s.reconnects.Load(), s.errs.Load()
}

// IsConnected reports whether a connection is open.
func (s *Subscriber) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Subscriber) connectionLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := ConnectPlatform(s.socketPath)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			case <-time.After(ReconnectDelay):
				continue
			}
		}

		s.connMu.Lock()
		if !s.running.Load() {
			s.connMu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.connMu.Unlock()

		s.readLoop(conn)

		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		conn.Close()
		s.reconnects.Add(1)

		select {
		case <-s.stopCh:
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

func (s *Subscriber) readLoop(conn net.Conn) {
	// Blocks in reads; Stop closes conn to unblock.
	for s.running.Load() {
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.running.Load() {
				log.Printf("⚠️ IPC read error: %v", err)
				s.errs.Add(1)
			}
			return
		}

		switch msgType {
		case MsgTypeFrame:
			s.handleFrame(data)
		case MsgTypeViewport:
			s.handleViewport(data)
		}
	}
}

func (s *Subscriber) handleFrame(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		log.Printf("⚠️ Failed to decode frame: %v", err)
		s.errs.Add(1)
		return
	}
	s.latest.Store(f)
	s.received.Add(1)
	if s.onFrame != nil {
		s.onFrame(f)
	}
}

func (s *Subscriber) handleViewport(data []byte) {
	v, err := DecodeViewport(data)
	if err != nil {
		s.errs.Add(1)
		return
	}
	s.viewport.Store(v)
	s.once.Do(func() { close(s.ready) })
}
