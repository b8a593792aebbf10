package eventlog

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

const (
	BufferSize           = 1024                   // circular buffer size
	MaxEventsPerSec      = 2000                   // global rate limit
	MaxEventsPerSource   = 50                     // per-source rate limit per second
	BatchFlushSize       = 64                     // events per batch write
	BatchFlushInterval   = 100 * time.Millisecond // how often to flush
	SourceLimiterCleanup = 5 * time.Minute
)

// Log is a bounded, rate-limited event buffer with an async writer.
// Emit never blocks the engine tick: when the buffer is full the oldest
// event is dropped.
type Log struct {
	buffer    [BufferSize]Event
	writeHead uint64 // atomic
	readHead  uint64 // atomic
	bufMu     sync.Mutex

	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*sourceLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	sinkMu sync.Mutex
	sink   *sink

	recentMu sync.Mutex
	recent   []Event
	recentN  int

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writtenCount uint64 // atomic
}

type sourceLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// New creates an event log keeping the last recent events in memory for
// inspection.
func New(recent int) *Log {
	if recent <= 0 {
		recent = 128
	}
	return &Log{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
		recentN:       recent,
	}
}

// Start opens path (append) and begins the writer goroutines. An empty
// path keeps events in memory only. Paths ending in .zst are written as a
// zstd stream.
func (l *Log) Start(path string) error {
	if l.running.Load() {
		return nil
	}
	if path != "" {
		s, err := openSink(path)
		if err != nil {
			return err
		}
		l.sink = s
	}

	l.running.Store(true)
	l.writerWg.Add(2)
	go l.writerLoop()
	go l.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file.
func (l *Log) Stop() {
	l.stopOnce.Do(func() {
		if !l.running.Load() {
			return
		}
		l.running.Store(false)
		close(l.stopChan)
		l.writerWg.Wait()

		l.sinkMu.Lock()
		if l.sink != nil {
			l.sink.Close()
			l.sink = nil
		}
		l.sinkMu.Unlock()
	})
}

// Emit adds an event. It returns false when the log is stopped or the
// event was rate limited.
func (l *Log) Emit(ev Event) bool {
	if !l.running.Load() {
		return false
	}
	// Per-source first so a flooding source does not drain the global budget.
	if ev.Source != "" && !l.sourceLimiter(ev.Source).Allow() {
		atomic.AddUint64(&l.droppedCount, 1)
		return false
	}
	if !l.globalLimiter.Allow() {
		atomic.AddUint64(&l.droppedCount, 1)
		return false
	}

	l.bufMu.Lock()
	head := atomic.AddUint64(&l.writeHead, 1)
	tail := atomic.LoadUint64(&l.readHead)
	if head-tail > BufferSize {
		// Rolling window: drop the oldest unwritten event.
		atomic.AddUint64(&l.readHead, 1)
		atomic.AddUint64(&l.droppedCount, 1)
	}
	ev.Sequence = head
	l.buffer[head%BufferSize] = ev
	l.bufMu.Unlock()

	l.recentMu.Lock()
	l.recent = append(l.recent, ev)
	if len(l.recent) > l.recentN {
		l.recent = l.recent[len(l.recent)-l.recentN:]
	}
	l.recentMu.Unlock()

	atomic.AddUint64(&l.totalCount, 1)
	return true
}

// EmitKind builds and emits an event in one call.
func (l *Log) EmitKind(kind Kind, tick uint64, source string, payload any) bool {
	return l.Emit(NewEvent(kind, tick, source, payload))
}

// Recent returns up to n of the most recent events, oldest first.
func (l *Log) Recent(n int) []Event {
	l.recentMu.Lock()
	defer l.recentMu.Unlock()
	if n <= 0 || n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]Event, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

func (l *Log) sourceLimiter(source string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := l.sourceLimiters.Load(source); ok {
		e := v.(*sourceLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	e := &sourceLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerSource, MaxEventsPerSource/5)}
	e.lastUsed.Store(now)
	actual, _ := l.sourceLimiters.LoadOrStore(source, e)
	return actual.(*sourceLimiterEntry).limiter
}

func (l *Log) writerLoop() {
	defer l.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-l.stopChan:
			for {
				batch = l.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				l.flushBatch(batch)
			}
		case <-ticker.C:
			batch = l.collectBatch(batch[:0])
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
		}
	}
}

func (l *Log) cleanupLoop() {
	defer l.writerWg.Done()

	ticker := time.NewTicker(SourceLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SourceLimiterCleanup).UnixNano()
			l.sourceLimiters.Range(func(key, value any) bool {
				if value.(*sourceLimiterEntry).lastUsed.Load() < cutoff {
					l.sourceLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (l *Log) collectBatch(batch []Event) []Event {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()

	head := atomic.LoadUint64(&l.writeHead)
	tail := atomic.LoadUint64(&l.readHead)
	for i := tail + 1; i <= head && len(batch) < BatchFlushSize; i++ {
		batch = append(batch, l.buffer[i%BufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&l.readHead, uint64(len(batch)))
	}
	return batch
}

func (l *Log) flushBatch(batch []Event) {
	l.sinkMu.Lock()
	defer l.sinkMu.Unlock()

	if l.sink == nil {
		return
	}
	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		l.sink.w.Write(data)
		l.sink.w.WriteByte('\n')
		atomic.AddUint64(&l.writtenCount, 1)
	}
	l.sink.w.Flush()
}

// Stats is a point-in-time view of the log counters.
type Stats struct {
	Total   uint64 `json:"total"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// Stats returns the current counters.
func (l *Log) Stats() Stats {
	l.bufMu.Lock()
	pending := atomic.LoadUint64(&l.writeHead) - atomic.LoadUint64(&l.readHead)
	l.bufMu.Unlock()
	return Stats{
		Total:   atomic.LoadUint64(&l.totalCount),
		Written: atomic.LoadUint64(&l.writtenCount),
		Dropped: atomic.LoadUint64(&l.droppedCount),
		Pending: pending,
		Running: l.running.Load(),
	}
}

// sink is the output file, optionally behind a zstd encoder.
type sink struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func openSink(path string) (*sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s := &sink{f: f}
	var out io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			f.Close()
			return nil, err
		}
		s.enc = enc
		out = enc
	}
	s.w = bufio.NewWriterSize(out, 64*1024)
	return s, nil
}

// Close flushes and closes the sink. Each zstd session is a complete frame,
// so appended sessions still decode as one concatenated stream.
func (s *sink) Close() error {
	var err error
	if s.w != nil {
		err = s.w.Flush()
	}
	if s.enc != nil {
		if cerr := s.enc.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}
