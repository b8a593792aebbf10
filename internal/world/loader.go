package world

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// LoadMode selects how window chunks are materialized.
type LoadMode int

const (
	// LoadSync generates missing chunks on the tick that needs them.
	LoadSync LoadMode = iota
	// LoadDeferred generates missing chunks on background workers and
	// applies the results on a later tick.
	LoadDeferred
)

func (m LoadMode) String() string {
	if m == LoadDeferred {
		return "deferred"
	}
	return "sync"
}

// Window is the set of chunks currently materialized around a center chunk.
// A Window is replaced wholesale and never mutated.
type Window struct {
	Center     ChunkCoord   `json:"center"`
	Coords     []ChunkCoord `json:"-"`
	Generation uint64       `json:"generation"`
}

// Contains reports whether c is part of the window.
func (w Window) Contains(c ChunkCoord, radius int) bool {
	return w.Coords != nil && Chebyshev(w.Center, c) <= radius
}

type loadJob struct {
	ctx        context.Context
	coord      ChunkCoord
	generation uint64
}

type loadResult struct {
	ctx        context.Context
	coord      ChunkCoord
	generation uint64
	placements []Placement
}

// Loader keeps the chunk cache filled for the current window. In deferred
// mode each window owns a context; replacing the window cancels it and any
// result produced under it is discarded on Drain.
type Loader struct {
	mode    LoadMode
	cache   *ChunkCache
	gen     *Generator
	radius  int
	offsets []ChunkCoord

	window Window
	ctx    context.Context
	cancel context.CancelFunc
	queued map[ChunkCoord]struct{}

	numWorkers int
	jobs       chan loadJob
	results    chan loadResult
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex

	dropped atomic.Uint64
	applied atomic.Uint64
}

// NewLoader creates a loader for windows of the given Chebyshev radius.
// workers is only used in deferred mode; 0 means NumCPU (capped at 16).
func NewLoader(cache *ChunkCache, gen *Generator, mode LoadMode, radius, workers int) *Loader {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > 16 {
		workers = 16
	}
	offsets := Offsets(radius)
	return &Loader{
		mode:       mode,
		cache:      cache,
		gen:        gen,
		radius:     radius,
		offsets:    offsets,
		queued:     make(map[ChunkCoord]struct{}),
		numWorkers: workers,
		jobs:       make(chan loadJob, len(offsets)*2),
		results:    make(chan loadResult, len(offsets)*2),
	}
}

// Mode returns the configured load mode.
func (l *Loader) Mode() LoadMode { return l.mode }

// Radius returns the window's Chebyshev radius.
func (l *Loader) Radius() int { return l.radius }

// Start launches the deferred workers. It is a no-op in sync mode.
func (l *Loader) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running || l.mode != LoadDeferred {
		return
	}
	l.running = true
	l.jobs = make(chan loadJob, len(l.offsets)*2)
	l.wg.Add(l.numWorkers)
	for i := 0; i < l.numWorkers; i++ {
		go l.worker(l.jobs)
	}
}

// Stop cancels outstanding work and waits for the workers to exit.
func (l *Loader) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	if l.cancel != nil {
		l.cancel()
	}
	// Sends happen under mu and check running, so none can follow the close.
	close(l.jobs)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Loader) worker(jobs <-chan loadJob) {
	defer l.wg.Done()

	for job := range jobs {
		if job.ctx.Err() != nil {
			l.dropped.Add(1)
			continue
		}
		res := loadResult{
			ctx:        job.ctx,
			coord:      job.coord,
			generation: job.generation,
			placements: l.gen.Generate(job.coord),
		}
		select {
		case l.results <- res:
		case <-job.ctx.Done():
			l.dropped.Add(1)
		}
	}
}

// Window returns the current window.
func (l *Loader) Window() Window { return l.window }

// SetWindow replaces the window with the neighborhood of center.
// In sync mode every chunk of the new window is in the cache on return.
func (l *Loader) SetWindow(center ChunkCoord) Window {
	coords := make([]ChunkCoord, len(l.offsets))
	for i, o := range l.offsets {
		coords[i] = center.Add(o)
	}
	l.window = Window{
		Center:     center,
		Coords:     coords,
		Generation: l.window.Generation + 1,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.queued)
	if !l.running {
		// Sequential fallback: sync mode, or deferred pool not started.
		for _, c := range coords {
			l.cache.Get(c)
		}
		return l.window
	}

	if l.cancel != nil {
		l.cancel()
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	for _, c := range coords {
		if l.cache.Touch(c) {
			continue
		}
		if !l.enqueueLocked(c) {
			// Queue full, generate on the tick.
			l.cache.Get(c)
		}
	}
	return l.window
}

// enqueueLocked hands c to the workers and reports whether it was queued.
// l.mu must be held and the pool running.
func (l *Loader) enqueueLocked(c ChunkCoord) bool {
	job := loadJob{ctx: l.ctx, coord: c, generation: l.window.Generation}
	select {
	case l.jobs <- job:
		l.queued[c] = struct{}{}
		return true
	default:
		return false
	}
}

// Drain applies deferred results for the current window and returns the
// chunks that became available. Results from a cancelled window are dropped.
func (l *Loader) Drain() []ChunkCoord {
	var ready []ChunkCoord
	for {
		select {
		case res := <-l.results:
			if res.ctx.Err() != nil || res.generation != l.window.Generation {
				l.dropped.Add(1)
				continue
			}
			l.cache.Put(res.coord, res.placements)
			l.mu.Lock()
			delete(l.queued, res.coord)
			l.mu.Unlock()
			l.applied.Add(1)
			ready = append(ready, res.coord)
		default:
			return ready
		}
	}
}

// Placements returns the placements of c if they are available. In sync
// mode a miss is generated immediately. In deferred mode a window chunk
// that is neither cached nor queued (evicted since it was applied) is
// queued again.
func (l *Loader) Placements(c ChunkCoord) ([]Placement, bool) {
	if l.mode == LoadSync {
		return l.cache.Get(c), true
	}
	if p, ok := l.cache.Lookup(c); ok {
		return p, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return l.cache.Get(c), true
	}
	if _, ok := l.queued[c]; ok || !l.window.Contains(c, l.radius) {
		return nil, false
	}
	if !l.enqueueLocked(c) {
		return l.cache.Get(c), true
	}
	return nil, false
}

// Pending returns the number of chunks queued for deferred generation.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queued)
}

// Dropped returns the number of deferred results discarded as stale.
func (l *Loader) Dropped() uint64 { return l.dropped.Load() }

// Applied returns the number of deferred results applied to the cache.
func (l *Loader) Applied() uint64 { return l.applied.Load() }
