package cards

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestResolveSingleCard checks every index resolves to the only card.
func TestResolveSingleCard(t *testing.T) {
	only := Card{ID: "solo", Name: "solo", URL: "https://example.com", Rank: 1}
	c := NewCatalog([]Card{only})

	for _, idx := range []int{0, 1, 7, 999_999, -3} {
		got, ok := c.Resolve(idx)
		if !ok || got.ID != "solo" {
			t.Errorf("Resolve(%d) = %v, %v; want solo", idx, got.ID, ok)
		}
	}
}

// TestResolveEmpty checks an empty catalog resolves nothing.
func TestResolveEmpty(t *testing.T) {
	var nilCatalog *Catalog
	for _, c := range []*Catalog{NewCatalog(nil), nilCatalog} {
		if _, ok := c.Resolve(5); ok {
			t.Error("Expected no card from empty catalog")
		}
	}
}

// TestResolveModulo checks index wrap-around.
func TestResolveModulo(t *testing.T) {
	c := NewCatalog(Demo(10))
	got, _ := c.Resolve(23)
	if got.Rank != 4 {
		t.Errorf("Expected rank 4 for index 23, got %d", got.Rank)
	}
}

// TestSearch checks exact matches lead and rank orders the rest.
func TestSearch(t *testing.T) {
	c := NewCatalog([]Card{
		{ID: "a", Name: "golang", Title: "Go", Rank: 5},
		{ID: "b", Name: "go", Title: "Go board game", Rank: 9},
		{ID: "c", Name: "rust", Title: "Rust lang", Rank: 1},
		{ID: "d", Name: "gopher", Title: "Gophers", Rank: 2},
	})

	got := c.Search("GO", 10)
	want := []string{"b", "d", "a"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d results, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Result %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	if len(c.Search("go", 1)) != 1 {
		t.Error("Expected limit to apply")
	}
	if c.Search("  ", 10) != nil {
		t.Error("Expected no results for blank query")
	}
}

// TestCardScale checks the log curve endpoints.
func TestCardScale(t *testing.T) {
	tests := []struct {
		subs int64
		want float64
	}{
		{0, 12},
		{100, 12},
		{6_000_000, 20},
		{50_000_000, 20},
	}
	for _, tt := range tests {
		if got := CardScale(tt.subs, 12, 20); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CardScale(%d) = %v, want %v", tt.subs, got, tt.want)
		}
	}
	if mid := CardScale(10_000, 12, 20); mid <= 12 || mid >= 20 {
		t.Errorf("Expected mid-range scale, got %v", mid)
	}
}

// TestFormatSubscribers checks compact counts.
func TestFormatSubscribers(t *testing.T) {
	tests := map[int64]string{
		999:       "999",
		12_345:    "12K",
		1_234_567: "1.2M",
	}
	for n, want := range tests {
		if got := FormatSubscribers(n); got != want {
			t.Errorf("FormatSubscribers(%d) = %q, want %q", n, got, want)
		}
	}
}

// TestParseJSONValidates checks schema rejection and a valid decode.
func TestParseJSONValidates(t *testing.T) {
	valid := `[{"id":"x","name":"x","title":"X","subscribers":10,"description":"","url":"https://x","rank":1}]`
	c, err := ParseJSON([]byte(valid))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 card, got %d", c.Len())
	}

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"not array", `{"id":"x"}`},
		{"missing url", `[{"id":"x","name":"x","rank":1}]`},
		{"negative subscribers", `[{"id":"x","name":"x","url":"u","rank":1,"subscribers":-1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJSON([]byte(tt.raw)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := ParseJSON([]byte(`[]`)); !errors.Is(err, ErrEmptyCatalog) {
		t.Errorf("Expected ErrEmptyCatalog, got %v", err)
	}
}

// TestSQLiteRoundTrip checks the SQLite adapter orders by rank.
func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cards.db")
	list := Demo(20)
	list[0], list[19] = list[19], list[0]

	if err := WriteSQLite(ctx, path, list); err != nil {
		t.Fatalf("WriteSQLite failed: %v", err)
	}
	c, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 20 {
		t.Fatalf("Expected 20 cards, got %d", c.Len())
	}
	first, _ := c.Resolve(0)
	if first.Rank != 1 {
		t.Errorf("Expected rank 1 first, got %d", first.Rank)
	}
	if _, ok := c.Lookup("card-20"); !ok {
		t.Error("Expected lookup by id to succeed")
	}
}

// TestLoadJSONFile checks extension dispatch to the JSON adapter.
func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.json")
	if err := os.WriteFile(path, []byte(`[{"id":"a","name":"a","url":"u","rank":3}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if card, ok := c.Lookup("a"); !ok || card.Rank != 3 {
		t.Errorf("Unexpected card %+v", card)
	}
}
