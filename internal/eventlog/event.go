// Package eventlog records engine events (window moves, searches, flights,
// clicks, opened links) into a bounded buffer drained to newline-delimited
// JSON on disk.
package eventlog

import (
	"encoding/json"
	"time"
)

// Kind classifies an event.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindWindow       // window recentred
	KindSearch
	KindFly
	KindFlyEnd
	KindClick
	KindLink
)

// Version is written into every event.
const Version uint8 = 1

func (k Kind) String() string {
	switch k {
	case KindWindow:
		return "window"
	case KindSearch:
		return "search"
	case KindFly:
		return "fly"
	case KindFlyEnd:
		return "fly_end"
	case KindClick:
		return "click"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// MarshalText writes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a kind name; unknown names decode as KindUnknown.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = KindUnknown
	for c := KindWindow; c <= KindLink; c++ {
		if c.String() == string(b) {
			*k = c
			break
		}
	}
	return nil
}

// Event is one log record.
type Event struct {
	Version   uint8           `json:"version"`
	Kind      Kind            `json:"kind"`
	Timestamp int64           `json:"timestamp"` // unix nano
	Sequence  uint64          `json:"sequence"`
	Tick      uint64          `json:"tick"`
	Source    string          `json:"source,omitempty"` // client id, used for rate limiting
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event, encoding payload as JSON. An unencodable payload is
// dropped rather than failing the caller.
func NewEvent(kind Kind, tick uint64, source string, payload any) Event {
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	return Event{
		Version:   Version,
		Kind:      kind,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		Source:    source,
		Payload:   raw,
	}
}

// WindowPayload describes a window recentre.
type WindowPayload struct {
	Center     [3]int `json:"center"`
	Generation uint64 `json:"generation"`
	Chunks     int    `json:"chunks"`
	Mode       string `json:"mode"`
}

// SearchPayload describes a navigator search.
type SearchPayload struct {
	CardID  string `json:"cardId"`
	Found   bool   `json:"found"`
	Radius  int    `json:"radius"`
	Visited int    `json:"visited"`
}

// FlyPayload describes a flight start or end.
type FlyPayload struct {
	CardID string     `json:"cardId,omitempty"`
	To     [3]float64 `json:"to"`
}

// ClickPayload describes a click and what it hit.
type ClickPayload struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	PlacementID string  `json:"placementId,omitempty"`
	CardID      string  `json:"cardId,omitempty"`
	URL         string  `json:"url,omitempty"`
}
