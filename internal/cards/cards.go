// Package cards holds the read-only card catalog the field resolves
// placements against.
package cards

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrEmptyCatalog is returned by loaders that find no cards.
var ErrEmptyCatalog = errors.New("cards: empty catalog")

// Card is one content item.
type Card struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Subscribers int64  `json:"subscribers"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Rank        int    `json:"rank"`
}

// Catalog is an ordered, immutable card list with an id index.
type Catalog struct {
	cards []Card
	byID  map[string]int
}

// NewCatalog copies cards into a catalog. Duplicate ids keep the first entry
// in the index.
func NewCatalog(list []Card) *Catalog {
	c := &Catalog{
		cards: append([]Card(nil), list...),
		byID:  make(map[string]int, len(list)),
	}
	for i, card := range c.cards {
		if _, dup := c.byID[card.ID]; !dup {
			c.byID[card.ID] = i
		}
	}
	return c
}

// Len returns the number of cards.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.cards)
}

// Resolve maps a placement's card index onto the catalog (index mod length).
// An empty catalog resolves nothing.
func (c *Catalog) Resolve(cardIndex int) (Card, bool) {
	n := c.Len()
	if n == 0 {
		return Card{}, false
	}
	i := cardIndex % n
	if i < 0 {
		i += n
	}
	return c.cards[i], true
}

// Lookup finds a card by id.
func (c *Catalog) Lookup(id string) (Card, bool) {
	if c == nil {
		return Card{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Card{}, false
	}
	return c.cards[i], true
}

// Search returns up to limit cards whose id, name or title contains query
// (case-insensitive), best rank first. Exact id or name matches come first.
func (c *Catalog) Search(query string, limit int) []Card {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || c.Len() == 0 || limit <= 0 {
		return nil
	}

	type hit struct {
		card  Card
		exact bool
	}
	var hits []hit
	for _, card := range c.cards {
		id, name := strings.ToLower(card.ID), strings.ToLower(card.Name)
		switch {
		case id == q || name == q:
			hits = append(hits, hit{card, true})
		case strings.Contains(name, q) || strings.Contains(id, q) ||
			strings.Contains(strings.ToLower(card.Title), q):
			hits = append(hits, hit{card, false})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].exact != hits[j].exact {
			return hits[i].exact
		}
		return hits[i].card.Rank < hits[j].card.Rank
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Card, len(hits))
	for i, h := range hits {
		out[i] = h.card
	}
	return out
}

// All returns a copy of the card list.
func (c *Catalog) All() []Card {
	if c == nil {
		return nil
	}
	return append([]Card(nil), c.cards...)
}

// Subscriber range mapped onto the card scale.
const (
	minSubscribers = 100
	maxSubscribers = 6_000_000
)

// CardScale maps an audience size onto [minScale, maxScale] on a log10 curve.
func CardScale(subscribers int64, minScale, maxScale float64) float64 {
	minLog := math.Log10(minSubscribers)
	maxLog := math.Log10(maxSubscribers)
	logSubs := math.Log10(math.Max(float64(subscribers), minSubscribers))
	t := math.Min(1, math.Max(0, (logSubs-minLog)/(maxLog-minLog)))
	return minScale + t*(maxScale-minScale)
}

// FormatSubscribers renders a compact audience count (1.2M, 45K, 900).
func FormatSubscribers(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.0fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// Demo returns n deterministic placeholder cards, ranked 1..n.
func Demo(n int) []Card {
	out := make([]Card, n)
	for i := range out {
		rank := i + 1
		name := fmt.Sprintf("field%04d", rank)
		out[i] = Card{
			ID:          fmt.Sprintf("card-%d", rank),
			Name:        name,
			Title:       fmt.Sprintf("Field %d", rank),
			Subscribers: int64(maxSubscribers / rank),
			Description: fmt.Sprintf("Community number %d of the demo field.", rank),
			URL:         "https://www.reddit.com/r/" + name,
			Rank:        rank,
		}
	}
	return out
}
