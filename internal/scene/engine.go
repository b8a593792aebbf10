// Package scene owns one card field: it drains input, moves the camera,
// keeps the live placement registry in step with the chunk window, fades
// and dresses each placement, and publishes an immutable Frame per tick.
package scene

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/camera"
	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/eventlog"
	"card-field/internal/fade"
	"card-field/internal/nav"
	"card-field/internal/resource"
	"card-field/internal/world"
)

// maxStep caps dt after a stall so the camera does not jump.
const maxStep = 0.1

type liveEntry struct {
	placement  world.Placement
	card       cards.Card
	material   *resource.Material
	label      *resource.LabelHandle
	labelTried bool
	fade       fade.State
}

type liveChunk struct {
	coord   world.ChunkCoord
	entries []*liveEntry
}

// TickReport summarizes one tick for observers.
type TickReport struct {
	Duration    time.Duration
	Live        int
	Renderable  int
	WindowMoved bool
	Clicks      int
	Hits        int
	Labels      int // labels synthesized this tick
	Frame       *Frame
}

// Option configures an Engine.
type Option func(*Engine)

// WithHitTester replaces the default perspective hit tester.
func WithHitTester(h HitTester) Option { return func(e *Engine) { e.hit = h } }

// WithLinkOpener sets the click side effect.
func WithLinkOpener(o LinkOpener) Option { return func(e *Engine) { e.opener = o } }

// WithEventLog records engine events into l.
func WithEventLog(l *eventlog.Log) Option { return func(e *Engine) { e.events = l } }

// WithPool supplies the resource pool instead of the default gg-backed one.
func WithPool(p *resource.Pool) Option { return func(e *Engine) { e.pool = p } }

// WithClock replaces time.Now for flights and window throttling.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithTickObserver is called after every tick, outside the engine lock.
func WithTickObserver(fn func(TickReport)) Option { return func(e *Engine) { e.onTick = fn } }

// Engine is one independent scene. All caches are owned by the instance.
type Engine struct {
	mu sync.Mutex

	cfg     config.AppConfig
	input   *camera.Input
	ctrl    *camera.Controller
	gen     *world.Generator
	cache   *world.ChunkCache
	loader  *world.Loader
	fader   *fade.Fader
	pool    *resource.Pool
	catalog *cards.Catalog
	nav     *nav.Navigator
	tier    resource.Tier

	hit    HitTester
	opener LinkOpener
	events *eventlog.Log
	now    func() time.Time
	onTick func(TickReport)

	live  map[world.ChunkCoord]*liveChunk
	tick  uint64
	frame atomic.Pointer[Frame]

	running  bool
	stopChan chan struct{}
	doneChan chan struct{}

	searches     uint64
	searchMisses uint64
	clicks       uint64
	linksOpened  uint64
}

// NewEngine creates a scene over catalog. A nil or empty catalog is valid:
// chunks are generated but nothing renders.
func NewEngine(cfg config.AppConfig, catalog *cards.Catalog, opts ...Option) *Engine {
	if catalog == nil {
		catalog = cards.NewCatalog(nil)
	}
	gen := world.NewGenerator(cfg.World)
	cache := world.NewChunkCache(gen, cfg.World.CacheCapacity)
	mode := world.LoadSync
	if cfg.World.Deferred {
		mode = world.LoadDeferred
	}
	tier := resource.TierDesktop
	if cfg.Engine.TouchDevice {
		tier = resource.TierMobile
	}

	e := &Engine{
		cfg:     cfg,
		input:   camera.NewInput(cfg.Engine.ViewportWidth, cfg.Engine.ViewportHeight),
		ctrl:    camera.NewController(cfg.Camera, cfg.World.ChunkSize, cfg.Engine.TouchDevice),
		gen:     gen,
		cache:   cache,
		loader:  world.NewLoader(cache, gen, mode, cfg.World.RenderDistance, cfg.World.Workers),
		fader:   fade.New(fade.ParamsFrom(cfg.World, cfg.Fade)),
		catalog: catalog,
		nav:     nav.New(cfg.Nav, gen, catalog),
		tier:    tier,
		now:     time.Now,
		live:    make(map[world.ChunkCoord]*liveChunk),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = resource.NewDefaultPool(cfg.Resources)
	}
	if e.hit == nil {
		e.hit = NewPerspectiveHitTester(cfg.Engine.FovY, cfg.Engine.ViewportWidth, cfg.Engine.ViewportHeight)
	}
	if e.opener == nil {
		e.opener = LogLinkOpener{}
	}
	e.frame.Store(&Frame{Tier: tier.String()})
	return e
}

// Input returns the accumulator UI events are written to.
func (e *Engine) Input() *camera.Input { return e.input }

// Catalog returns the card catalog.
func (e *Engine) Catalog() *cards.Catalog { return e.catalog }

// Pool returns the scene's resource pool.
func (e *Engine) Pool() *resource.Pool { return e.pool }

// Tier returns the label tier the scene renders at.
func (e *Engine) Tier() resource.Tier { return e.tier }

// SetViewport updates the pointer normalization and the hit tester aspect.
func (e *Engine) SetViewport(w, h float64) {
	e.input.SetViewport(w, h)
	e.mu.Lock()
	if ph, ok := e.hit.(*PerspectiveHitTester); ok && w > 0 && h > 0 {
		ph.Aspect = w / h
	}
	e.mu.Unlock()
}

// Start begins the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	stop, done := e.stopChan, e.doneChan
	e.mu.Unlock()

	e.loader.Start()
	go e.loop(stop, done)

	log.Printf("🎮 Card field engine started at %d TPS (%s loading, %s labels)",
		e.cfg.Engine.TickRate, e.loader.Mode(), e.tier)
}

// Stop ends the tick loop and the deferred workers.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	// The loop must be gone before the loader closes its job queue.
	<-done
	e.loader.Stop()
	log.Println("🛑 Card field engine stopped")
}

// Close stops the engine and disposes pooled resources.
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live = make(map[world.ChunkCoord]*liveChunk)
	e.pool.Close()
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	rate := e.cfg.Engine.TickRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxStep {
				dt = maxStep
			}
			e.Update(dt)
		}
	}
}

// Update runs one tick of dt seconds and returns the published frame.
func (e *Engine) Update(dt float64) *Frame {
	start := time.Now()

	e.mu.Lock()
	frame, rep := e.update(dt)
	e.frame.Store(frame)
	onTick := e.onTick
	e.mu.Unlock()

	if onTick != nil {
		rep.Duration = time.Since(start)
		rep.Frame = frame
		onTick(rep)
	}
	return frame
}

func (e *Engine) update(dt float64) (*Frame, TickReport) {
	var rep TickReport
	now := e.now()
	e.tick++

	in := e.input.Drain()
	step := e.ctrl.Update(in, dt, now)

	if step.WindowDue {
		w := e.loader.SetWindow(step.WindowCenter)
		rep.WindowMoved = true
		e.emit(eventlog.KindWindow, "", eventlog.WindowPayload{
			Center:     [3]int{w.Center.X, w.Center.Y, w.Center.Z},
			Generation: w.Generation,
			Chunks:     len(w.Coords),
			Mode:       e.loader.Mode().String(),
		})
	}
	e.loader.Drain()
	e.syncRegistry()

	window := e.loader.Window()
	frame := &Frame{
		Tick:       e.tick,
		Time:       now,
		Camera:     e.cameraView(step),
		Generation: window.Generation,
		Tier:       e.tier.String(),
	}

	budget := e.cfg.Engine.LabelBudget
	geometry := e.pool.Geometry().ID
	camZ := step.Position[2]
	for _, c := range window.Coords {
		lc, ok := e.live[c]
		if !ok {
			continue
		}
		for _, en := range lc.entries {
			rep.Live++
			e.fader.Step(&en.fade, c, step.Chunk, en.placement.Position[2], camZ, dt)
			if !en.fade.Visible {
				en.material.Uniforms.Opacity = 0
				en.material.DepthWrite = false
				continue
			}
			en.material.Advance(dt, en.fade.Opacity, en.fade.DepthWrite)
			if e.cfg.Engine.MaxRender > 0 && len(frame.Items) >= e.cfg.Engine.MaxRender {
				continue
			}
			label, synthesized := e.label(en, &budget)
			if synthesized {
				rep.Labels++
			}
			frame.Items = append(frame.Items, RenderItem{
				PlacementID:      en.placement.ID,
				CardID:           en.card.ID,
				Chunk:            c,
				Position:         en.placement.Position,
				Scale:            en.placement.Scale,
				Transform:        transform(en.placement.Position, en.placement.Scale),
				GeometryID:       geometry,
				Opacity:          en.fade.Opacity,
				DepthWrite:       en.fade.DepthWrite,
				ProgramID:        en.material.Program().ID,
				Uniforms:         en.material.Uniforms,
				LabelID:          label.ID(),
				LabelPlaceholder: label.Placeholder(),
				URL:              en.card.URL,
			})
		}
	}
	frame.Live = rep.Live
	rep.Renderable = len(frame.Items)

	for _, px := range step.Clicks {
		rep.Clicks++
		if e.click(px, frame) {
			rep.Hits++
		}
	}

	if step.FlightEnded {
		p := step.Position
		e.emit(eventlog.KindFlyEnd, "", eventlog.FlyPayload{To: [3]float64{p[0], p[1], p[2]}})
	}
	return frame, rep
}

// syncRegistry drops chunks that left the window and materializes the
// window chunks whose placements are available.
func (e *Engine) syncRegistry() {
	w := e.loader.Window()
	for c := range e.live {
		if !w.Contains(c, e.loader.Radius()) {
			delete(e.live, c)
		}
	}
	for _, c := range w.Coords {
		if _, ok := e.live[c]; ok {
			continue
		}
		placements, ok := e.loader.Placements(c)
		if !ok {
			continue
		}
		lc := &liveChunk{coord: c, entries: make([]*liveEntry, 0, len(placements))}
		for _, p := range placements {
			card, ok := e.catalog.Resolve(p.CardIndex)
			if !ok {
				continue
			}
			lc.entries = append(lc.entries, &liveEntry{
				placement: p,
				card:      card,
				material:  e.pool.Material(card),
			})
		}
		e.live[c] = lc
	}
}

// label returns the entry's label, synthesizing at most budget labels per
// tick. A failed synthesis keeps the placeholder for the entry's lifetime;
// an evicted label is acquired again.
func (e *Engine) label(en *liveEntry, budget *int) (*resource.LabelHandle, bool) {
	if en.label != nil && !en.label.Disposed() && (!en.label.Placeholder() || en.labelTried) {
		return en.label, false
	}
	key := resource.LabelKey{CardID: en.card.ID, Tier: e.tier}
	if h, ok := e.pool.Labels.Lookup(key); ok {
		en.label = h
		return h, false
	}
	if *budget <= 0 {
		return e.pool.Labels.Placeholder(), false
	}
	*budget--
	en.label = e.pool.Label(en.card, e.tier)
	en.labelTried = true
	return en.label, !en.label.Placeholder()
}

// click hit-tests a release position and opens the link of what it hit.
func (e *Engine) click(px mgl64.Vec2, frame *Frame) bool {
	e.clicks++
	payload := eventlog.ClickPayload{X: px[0], Y: px[1]}

	it, ok := e.hit.HitTest(e.input.NDC(px), frame.Camera, frame.Items)
	if ok {
		card, found := e.catalog.Lookup(it.CardID)
		if !found {
			card = cards.Card{ID: it.CardID, URL: it.URL}
		}
		payload.PlacementID = it.PlacementID
		payload.CardID = card.ID
		payload.URL = card.URL
		e.linksOpened++
		e.opener.OpenLink(card)
		e.emit(eventlog.KindLink, "", payload)
	}
	e.emit(eventlog.KindClick, "", payload)
	return ok
}

func (e *Engine) cameraView(step camera.Step) CameraView {
	st := e.ctrl.State()
	v := CameraView{
		Position:     step.Position,
		Velocity:     st.Velocity,
		Mode:         e.ctrl.Mode().String(),
		Chunk:        step.Chunk,
		WindowCenter: step.WindowCenter,
	}
	if t, ok := e.ctrl.FlightTarget(); ok {
		v.FlightTarget = &t
	}
	return v
}

// Search flies the camera to the nearest placement of cardID. source names
// the requesting client for the event log. On failure the camera is not
// touched.
func (e *Engine) Search(cardID, source string) (nav.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.searches++
	res, err := e.nav.FlyTo(e.ctrl, cardID, e.now())
	if err != nil {
		e.searchMisses++
		e.emit(eventlog.KindSearch, source, eventlog.SearchPayload{CardID: cardID})
		log.Printf("🔎 Card %q not found within %d chunks", cardID, e.cfg.Nav.MaxSearchRadius)
		return nav.Result{}, err
	}

	e.emit(eventlog.KindSearch, source, eventlog.SearchPayload{
		CardID:  cardID,
		Found:   true,
		Radius:  res.Radius,
		Visited: res.Visited,
	})
	e.emit(eventlog.KindFly, source, eventlog.FlyPayload{
		CardID: cardID,
		To:     [3]float64{res.Target[0], res.Target[1], res.Target[2]},
	})
	log.Printf("✈️ Flying to %s at %s (radius %d, %d chunks searched)",
		cardID, res.Placement.Chunk, res.Radius, res.Visited)
	return res, nil
}

// Frame returns the latest published frame without taking the engine lock.
func (e *Engine) Frame() *Frame { return e.frame.Load() }

func (e *Engine) emit(kind eventlog.Kind, source string, payload any) {
	if e.events != nil {
		e.events.EmitKind(kind, e.tick, source, payload)
	}
}

// Stats is a point-in-time view of the scene.
type Stats struct {
	Tick            uint64                 `json:"tick"`
	Mode            string                 `json:"mode"`
	LoadMode        string                 `json:"loadMode"`
	Window          world.Window           `json:"window"`
	LiveChunks      int                    `json:"liveChunks"`
	Live            int                    `json:"live"`
	Renderable      int                    `json:"renderable"`
	Pending         int                    `json:"pending"`
	DeferredApplied uint64                 `json:"deferredApplied"`
	DeferredDropped uint64                 `json:"deferredDropped"`
	Cache           world.CacheStats       `json:"cache"`
	Labels          resource.LabelStats    `json:"labels"`
	Materials       resource.MaterialStats `json:"materials"`
	Cards           int                    `json:"cards"`
	Searches        uint64                 `json:"searches"`
	SearchMisses    uint64                 `json:"searchMisses"`
	Clicks          uint64                 `json:"clicks"`
	LinksOpened     uint64                 `json:"linksOpened"`
	Events          *eventlog.Stats        `json:"events,omitempty"`
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := 0
	for _, lc := range e.live {
		live += len(lc.entries)
	}
	s := Stats{
		Tick:            e.tick,
		Mode:            e.ctrl.Mode().String(),
		LoadMode:        e.loader.Mode().String(),
		Window:          e.loader.Window(),
		LiveChunks:      len(e.live),
		Live:            live,
		Renderable:      len(e.frame.Load().Items),
		Pending:         e.loader.Pending(),
		DeferredApplied: e.loader.Applied(),
		DeferredDropped: e.loader.Dropped(),
		Cache:           e.cache.Stats(),
		Labels:          e.pool.Labels.Stats(),
		Materials:       e.pool.Materials.Stats(),
		Cards:           e.catalog.Len(),
		Searches:        e.searches,
		SearchMisses:    e.searchMisses,
		Clicks:          e.clicks,
		LinksOpened:     e.linksOpened,
	}
	if e.events != nil {
		es := e.events.Stats()
		s.Events = &es
	}
	return s
}
