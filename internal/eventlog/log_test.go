package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func readEvents(t *testing.T, data []byte) []Event {
	t.Helper()
	var out []Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("Bad line %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
	}
	return out
}

// TestEmitBeforeStart verifies a stopped log rejects events.
func TestEmitBeforeStart(t *testing.T) {
	l := New(8)
	if l.EmitKind(KindClick, 1, "", nil) {
		t.Error("Expected Emit to fail before Start")
	}
}

// TestWritesJSONL verifies events reach disk in order with sequence numbers.
func TestWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l := New(8)
	if err := l.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.EmitKind(KindWindow, 1, "", WindowPayload{Center: [3]int{1, 2, 3}, Chunks: 125})
	l.EmitKind(KindSearch, 2, "ws-1", SearchPayload{CardID: "golang", Found: true})
	l.Stop()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	events := readEvents(t, data)
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindWindow || events[1].Kind != KindSearch {
		t.Errorf("Expected window then search, got %v then %v", events[0].Kind, events[1].Kind)
	}
	if events[0].Sequence >= events[1].Sequence {
		t.Error("Expected increasing sequence numbers")
	}
	var p SearchPayload
	if err := json.Unmarshal(events[1].Payload, &p); err != nil || p.CardID != "golang" {
		t.Errorf("Expected search payload for golang, got %+v (%v)", p, err)
	}
}

// TestWritesZstd verifies a .zst path produces a decodable zstd stream.
func TestWritesZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")
	l := New(8)
	if err := l.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.EmitKind(KindFly, 3, "", FlyPayload{CardID: "golang", To: [3]float64{1, 2, 3}})
	l.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(dec); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	events := readEvents(t, buf.Bytes())
	if len(events) != 1 || events[0].Kind != KindFly {
		t.Errorf("Expected one fly event, got %+v", events)
	}
}

// TestSourceRateLimit verifies one source cannot flood the log.
func TestSourceRateLimit(t *testing.T) {
	l := New(8)
	l.Start("")
	defer l.Stop()

	accepted := 0
	for i := 0; i < 200; i++ {
		if l.EmitKind(KindClick, uint64(i), "spammer", nil) {
			accepted++
		}
	}
	if accepted >= 200 {
		t.Error("Expected per-source limiter to drop events")
	}
	if l.Stats().Dropped == 0 {
		t.Error("Expected dropped count to grow")
	}
	if !l.EmitKind(KindClick, 0, "someone-else", nil) {
		t.Error("Expected another source to be accepted")
	}
}

// TestRecent verifies the in-memory tail keeps the newest events.
func TestRecent(t *testing.T) {
	l := New(3)
	l.Start("")
	defer l.Stop()

	for i := 0; i < 5; i++ {
		l.EmitKind(KindClick, uint64(i), "", nil)
	}
	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 recent events, got %d", len(recent))
	}
	if recent[0].Tick != 2 || recent[2].Tick != 4 {
		t.Errorf("Expected ticks 2..4, got %d..%d", recent[0].Tick, recent[2].Tick)
	}
	if got := l.Recent(1); len(got) != 1 || got[0].Tick != 4 {
		t.Errorf("Expected newest event, got %+v", got)
	}
}

// TestKindText verifies kinds round-trip by name.
func TestKindText(t *testing.T) {
	for k := KindWindow; k <= KindLink; k++ {
		b, _ := k.MarshalText()
		var got Kind
		got.UnmarshalText(b)
		if got != k {
			t.Errorf("Expected %v, got %v", k, got)
		}
	}
}
