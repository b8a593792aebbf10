package api

import (
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"card-field/internal/cards"
	"card-field/internal/nav"
	"card-field/internal/resource"
)

const (
	defaultCardLimit = 20
	maxCardLimit     = 100
	maxInputBatch    = 256
)

// cardJSON is a card with its presentation hints.
type cardJSON struct {
	cards.Card
	Scale           float64 `json:"scale"`
	SubscriberLabel string  `json:"subscriberLabel"`
	LabelURL        string  `json:"labelUrl"`
}

func (h *routerHandlers) cardPayload(c cards.Card) cardJSON {
	return cardJSON{
		Card:            c,
		Scale:           cards.CardScale(c.Subscribers, h.world.MinScale, h.world.MaxScale),
		SubscriberLabel: cards.FormatSubscribers(c.Subscribers),
		LabelURL:        "/api/cards/" + c.ID + "/label.png",
	}
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Frame())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"engine":     h.engine.Stats(),
		"rateLimit":  h.limiter.Stats(),
		"httpLabels": h.labels.Stats(),
	})
}

func (h *routerHandlers) handleGetGeometry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Pool().Geometry())
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, "Event log disabled", http.StatusNotFound)
		return
	}
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 || n > 500 {
		n = 50
	}
	writeJSON(w, h.events.Recent(n))
}

func (h *routerHandlers) handleListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, "Missing query parameter q", http.StatusBadRequest)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultCardLimit
	}
	if limit > maxCardLimit {
		limit = maxCardLimit
	}

	found := h.engine.Catalog().Search(q, limit)
	out := make([]cardJSON, len(found))
	for i, c := range found {
		out[i] = h.cardPayload(c)
	}
	writeJSON(w, out)
}

func (h *routerHandlers) handleGetCard(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.Catalog().Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Card not found", http.StatusNotFound)
		return
	}
	writeJSON(w, h.cardPayload(c))
}

func (h *routerHandlers) handleGetLabel(w http.ResponseWriter, r *http.Request) {
	c, ok := h.engine.Catalog().Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "Card not found", http.StatusNotFound)
		return
	}
	tier := h.engine.Tier()
	if t := r.URL.Query().Get("tier"); t != "" {
		tier = resource.ParseTier(t)
	}

	// Labels the scene already holds are read, never refreshed or evicted.
	label, ok := h.engine.Pool().Labels.Lookup(resource.LabelKey{CardID: c.ID, Tier: tier})
	if !ok {
		label = h.labels.Acquire(c, tier)
	}
	img := label.Image()
	placeholder := label.Placeholder()
	if img == nil {
		// Evicted between acquire and read.
		img = h.labels.Placeholder().Image()
		placeholder = true
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if placeholder {
		w.Header().Set("X-Label-Placeholder", "true")
		w.Header().Set("Cache-Control", "no-store")
	}
	if err := png.Encode(w, img); err != nil {
		writeError(w, "Encode failed", http.StatusInternalServerError)
	}
}

type searchRequest struct {
	CardID string `json:"cardId"`
}

func (h *routerHandlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardID == "" {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Search(req.CardID, GetClientIP(r))
	if errors.Is(err, nav.ErrNotFound) {
		writeError(w, "Card not found nearby", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"found":  true,
		"result": res,
		"card":   h.cardPayload(res.Card),
	})
}

func (h *routerHandlers) handleInput(w http.ResponseWriter, r *http.Request) {
	var events []InputEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&events); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(events) > maxInputBatch {
		writeError(w, "Too many events", http.StatusRequestEntityTooLarge)
		return
	}

	applied := 0
	for _, ev := range events {
		if err := applyInput(h.engine.Input(), h.engine, ev); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		applied++
	}
	writeJSON(w, map[string]int{"applied": applied})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
