package scene

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"card-field/internal/camera"
	"card-field/internal/cards"
	"card-field/internal/config"
	"card-field/internal/eventlog"
	"card-field/internal/nav"
	"card-field/internal/resource"
	"card-field/internal/world"
)

const tick = 1.0 / 60

type countingSynth struct{ calls atomic.Int64 }

func (s *countingSynth) Synthesize(c cards.Card, size int) (image.Image, error) {
	s.calls.Add(1)
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// createTestEngine builds an engine with a stub label synthesizer and a
// manual clock.
func createTestEngine(t *testing.T, cfg config.AppConfig, catalog *cards.Catalog, opts ...Option) (*Engine, *manualClock, *countingSynth) {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	synth := &countingSynth{}
	pool := resource.NewPool(cfg.Resources, synth, &resource.StaticCompiler{})
	all := append([]Option{WithPool(pool), WithClock(clock.Now)}, opts...)
	e := NewEngine(cfg, catalog, all...)
	t.Cleanup(e.Close)
	return e, clock, synth
}

func demoCatalog(n int) *cards.Catalog { return cards.NewCatalog(cards.Demo(n)) }

// TestFirstUpdatePublishesWindow verifies the first tick materializes the
// whole window and renders the nearest placements.
func TestFirstUpdatePublishesWindow(t *testing.T) {
	cfg := config.Default()
	e, _, _ := createTestEngine(t, cfg, demoCatalog(500))

	f := e.Update(tick)
	side := 2*cfg.World.RenderDistance + 1
	wantLive := side * side * side * cfg.World.ItemsPerChunk

	if f.Tick != 1 || f.Generation != 1 {
		t.Errorf("Expected tick 1 generation 1, got %d/%d", f.Tick, f.Generation)
	}
	if f.Live != wantLive {
		t.Errorf("Expected %d live placements, got %d", wantLive, f.Live)
	}
	if len(f.Items) == 0 {
		t.Fatal("Expected renderable items on the first tick")
	}
	for _, it := range f.Items {
		if it.Opacity <= 0 || it.Opacity >= 1 {
			t.Errorf("Expected fade-in opacity in (0,1) on first tick, got %v", it.Opacity)
		}
		if it.DepthWrite {
			t.Error("Expected no depth write while fading in")
		}
	}
	if e.Frame() != f {
		t.Error("Expected Frame to return the published frame")
	}
}

// TestOpaqueItemsWriteDepth verifies fully faded-in near items write depth
// and advance their animation clock.
func TestOpaqueItemsWriteDepth(t *testing.T) {
	e, _, _ := createTestEngine(t, config.Default(), demoCatalog(500))

	var f *Frame
	for i := 0; i < 120; i++ {
		f = e.Update(tick)
	}
	opaque := 0
	for _, it := range f.Items {
		if it.DepthWrite {
			opaque++
			if it.Opacity <= 0.99 {
				t.Errorf("Depth write at opacity %v", it.Opacity)
			}
			if it.Uniforms.Time <= 0 {
				t.Error("Expected animation time to advance while visible")
			}
		}
	}
	if opaque == 0 {
		t.Error("Expected some opaque items after two seconds")
	}
}

// TestEmptyCatalogRendersNothing verifies chunks without cards skip every
// placement.
func TestEmptyCatalogRendersNothing(t *testing.T) {
	e, _, synth := createTestEngine(t, config.Default(), nil)

	f := e.Update(tick)
	if f.Live != 0 || len(f.Items) != 0 {
		t.Errorf("Expected nothing live, got %d live %d items", f.Live, len(f.Items))
	}
	if synth.calls.Load() != 0 {
		t.Error("Expected no label synthesis")
	}
	if e.Stats().Cache.Size == 0 {
		t.Error("Expected chunks to be generated regardless")
	}
}

// TestLabelBudget verifies label synthesis is spread across ticks.
func TestLabelBudget(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.LabelBudget = 4

	var reports []TickReport
	e, _, synth := createTestEngine(t, cfg, demoCatalog(5000),
		WithTickObserver(func(r TickReport) { reports = append(reports, r) }))

	f := e.Update(tick)
	if got := synth.calls.Load(); got > 4 {
		t.Errorf("Expected at most 4 syntheses, got %d", got)
	}
	placeholders := 0
	for _, it := range f.Items {
		if it.LabelPlaceholder {
			placeholders++
		}
	}
	if len(f.Items) > 4 && placeholders == 0 {
		t.Error("Expected placeholders for labels over budget")
	}

	e.Update(tick)
	if got := synth.calls.Load(); got <= 4 || got > 8 {
		t.Errorf("Expected 5..8 syntheses after two ticks, got %d", got)
	}
	if len(reports) != 2 || reports[0].Labels > 4 {
		t.Errorf("Expected two tick reports within budget, got %+v", reports)
	}
}

// TestClickOpensLink verifies a click is hit-tested and opens the link.
func TestClickOpensLink(t *testing.T) {
	var opened []cards.Card
	hitFirst := hitFunc(func(ndc mgl64.Vec2, cam CameraView, items []RenderItem) (RenderItem, bool) {
		if len(items) == 0 {
			return RenderItem{}, false
		}
		return items[0], true
	})
	log := eventlog.New(16)
	log.Start("")
	defer log.Stop()

	e, _, _ := createTestEngine(t, config.Default(), demoCatalog(500),
		WithHitTester(hitFirst),
		WithEventLog(log),
		WithLinkOpener(LinkOpenerFunc(func(c cards.Card) { opened = append(opened, c) })))

	e.Update(tick)
	e.Input().PointerDown(100, 100)
	e.Input().PointerUp(102, 101)
	f := e.Update(tick)

	if len(opened) != 1 {
		t.Fatalf("Expected one link opened, got %d", len(opened))
	}
	if opened[0].URL == "" || opened[0].ID != f.Items[0].CardID {
		t.Errorf("Expected link of %s, got %+v", f.Items[0].CardID, opened[0])
	}

	kinds := map[eventlog.Kind]int{}
	for _, ev := range log.Recent(0) {
		kinds[ev.Kind]++
	}
	if kinds[eventlog.KindClick] != 1 || kinds[eventlog.KindLink] != 1 {
		t.Errorf("Expected one click and one link event, got %v", kinds)
	}
	if s := e.Stats(); s.Clicks != 1 || s.LinksOpened != 1 {
		t.Errorf("Expected 1 click 1 link in stats, got %d/%d", s.Clicks, s.LinksOpened)
	}
}

// TestDragDoesNotClick verifies a long drag skips the hit test.
func TestDragDoesNotClick(t *testing.T) {
	calls := 0
	counting := hitFunc(func(mgl64.Vec2, CameraView, []RenderItem) (RenderItem, bool) {
		calls++
		return RenderItem{}, false
	})
	e, _, _ := createTestEngine(t, config.Default(), demoCatalog(500), WithHitTester(counting))

	e.Update(tick)
	e.Input().PointerDown(100, 100)
	e.Input().PointerMove(160, 100)
	e.Input().PointerUp(160, 100)
	e.Update(tick)

	if calls != 0 {
		t.Errorf("Expected no hit test for a drag, got %d", calls)
	}
}

// TestSearchFliesAndMovesWindow verifies a search flies the camera to the
// card and the window follows once the flight ends.
func TestSearchFliesAndMovesWindow(t *testing.T) {
	cfg := config.Default()
	catalog := demoCatalog(2000)
	log := eventlog.New(32)
	log.Start("")
	defer log.Stop()
	e, clock, _ := createTestEngine(t, cfg, catalog, WithEventLog(log))
	e.Update(tick)

	gen := world.NewGenerator(cfg.World)
	target, _ := catalog.Resolve(gen.Generate(world.ChunkCoord{X: 1})[0].CardIndex)

	res, err := e.Search(target.ID, "test")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if f := e.Update(tick); f.Camera.Mode != "flying" || f.Camera.FlightTarget == nil {
		t.Errorf("Expected flying toward target, got %+v", f.Camera)
	}

	clock.Advance(cfg.Nav.FlyDuration)
	f := e.Update(tick)
	if f.Camera.Position != res.Target {
		t.Errorf("Expected camera at %v, got %v", res.Target, f.Camera.Position)
	}
	if want := world.ChunkOf(res.Target, cfg.World.ChunkSize); f.Camera.WindowCenter != want {
		t.Errorf("Expected window centered on %v, got %v", want, f.Camera.WindowCenter)
	}

	kinds := map[eventlog.Kind]int{}
	for _, ev := range log.Recent(0) {
		kinds[ev.Kind]++
	}
	if kinds[eventlog.KindSearch] != 1 || kinds[eventlog.KindFly] != 1 || kinds[eventlog.KindFlyEnd] != 1 {
		t.Errorf("Expected search, fly and fly_end events, got %v", kinds)
	}
	if e.Stats().LiveChunks > 125 {
		t.Errorf("Expected registry bounded by the window, got %d chunks", e.Stats().LiveChunks)
	}
}

// TestSearchNotFoundLeavesCamera verifies a miss changes nothing.
func TestSearchNotFoundLeavesCamera(t *testing.T) {
	e, _, _ := createTestEngine(t, config.Default(), demoCatalog(100))
	before := e.Update(tick).Camera

	if _, err := e.Search("missing", "test"); !errors.Is(err, nav.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	after := e.Update(tick).Camera
	if after.Position != before.Position || after.Mode != "idle" {
		t.Errorf("Expected camera unchanged, got %+v", after)
	}
	if s := e.Stats(); s.Searches != 1 || s.SearchMisses != 1 {
		t.Errorf("Expected one missed search, got %d/%d", s.Searches, s.SearchMisses)
	}
}

// TestDeferredLoadingFillsWindow verifies background generation reaches
// the registry on later ticks.
func TestDeferredLoadingFillsWindow(t *testing.T) {
	cfg := config.Default()
	cfg.World.Deferred = true
	e, _, _ := createTestEngine(t, cfg, demoCatalog(500))
	e.loader.Start()
	defer e.loader.Stop()

	want := 125 * cfg.World.ItemsPerChunk
	deadline := time.Now().Add(2 * time.Second)
	var f *Frame
	for time.Now().Before(deadline) {
		f = e.Update(tick)
		if f.Live == want {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.Live != want {
		t.Fatalf("Expected %d live after deferred load, got %d", want, f.Live)
	}
	if e.Stats().DeferredApplied == 0 {
		t.Error("Expected deferred results to be applied")
	}
}

// TestStartStop verifies the loop ticks and stops cleanly.
func TestStartStop(t *testing.T) {
	cfg := config.Default()
	cfg.World.Deferred = true
	e, _, _ := createTestEngine(t, cfg, demoCatalog(50))

	e.Start()
	e.Start()
	time.Sleep(60 * time.Millisecond)
	e.Stop()
	e.Stop()

	tickAtStop := e.Frame().Tick
	if tickAtStop == 0 {
		t.Error("Expected ticks while running")
	}
	time.Sleep(30 * time.Millisecond)
	if e.Frame().Tick != tickAtStop {
		t.Error("Expected no ticks after Stop")
	}
}

// TestMaterialsCompiledPerBucket verifies materials share programs.
func TestMaterialsCompiledPerBucket(t *testing.T) {
	cfg := config.Default()
	e, _, _ := createTestEngine(t, cfg, demoCatalog(5000))
	e.Update(tick)

	s := e.Stats().Materials
	if s.Compilations > uint64(cfg.Resources.PaletteCount) {
		t.Errorf("Expected at most %d compilations, got %d", cfg.Resources.PaletteCount, s.Compilations)
	}
	if s.Clones < 100 {
		t.Errorf("Expected a clone per live placement, got %d", s.Clones)
	}
}

type hitFunc func(mgl64.Vec2, CameraView, []RenderItem) (RenderItem, bool)

func (f hitFunc) HitTest(ndc mgl64.Vec2, cam CameraView, items []RenderItem) (RenderItem, bool) {
	return f(ndc, cam, items)
}

// TestItemsShareGeometry verifies every render item refers to the pool's
// single card mesh.
func TestItemsShareGeometry(t *testing.T) {
	e, _, _ := createTestEngine(t, config.Default(), demoCatalog(500))
	want := e.Pool().Geometry().ID
	if want == 0 {
		t.Fatal("Expected a non-zero geometry id")
	}

	e.Input().KeyDown(camera.KeyForward)
	for i := 0; i < 30; i++ {
		f := e.Update(tick)
		if len(f.Items) == 0 {
			t.Fatal("Expected renderable items")
		}
		for _, it := range f.Items {
			if it.GeometryID != want {
				t.Fatalf("Expected geometry %d on %s, got %d", want, it.PlacementID, it.GeometryID)
			}
		}
	}
}
