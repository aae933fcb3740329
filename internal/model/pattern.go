package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PatternKind enumerates the detectable chart patterns.
type PatternKind string

const (
	PatternGoldenCross      PatternKind = "golden_cross"
	PatternDeathCross       PatternKind = "death_cross"
	PatternOversold         PatternKind = "oversold"
	PatternOverbought       PatternKind = "overbought"
	PatternMACDBullishCross PatternKind = "macd_bullish_cross"
)

var patternTitles = map[PatternKind]string{
	PatternGoldenCross:      "Golden Cross",
	PatternDeathCross:       "Death Cross",
	PatternOversold:         "Oversold",
	PatternOverbought:       "Overbought",
	PatternMACDBullishCross: "MACD Bullish Cross",
}

// PatternKinds lists every kind in rule evaluation order.
func PatternKinds() []PatternKind {
	return []PatternKind{
		PatternGoldenCross,
		PatternDeathCross,
		PatternOversold,
		PatternOverbought,
		PatternMACDBullishCross,
	}
}

// Title returns the human-readable pattern name.
func (k PatternKind) Title() string {
	if t, ok := patternTitles[k]; ok {
		return t
	}
	return string(k)
}

// Valid reports whether k is one of the known kinds.
func (k PatternKind) Valid() bool {
	_, ok := patternTitles[k]
	return ok
}

// PatternEvent is an immutable detection result. Previous and Latest are the
// snapshots that triggered it; Context is an opaque caller-supplied payload
// that is stored and forwarded untouched.
type PatternEvent struct {
	ID          uuid.UUID          `json:"id"`
	Asset       string             `json:"asset"`
	DetectedAt  time.Time          `json:"detected_at"`
	Kind        PatternKind        `json:"kind"`
	Confidence  int                `json:"confidence"`
	Description string             `json:"description"`
	Previous    *IndicatorSnapshot `json:"previous,omitempty"`
	Latest      IndicatorSnapshot  `json:"latest"`
	Context     json.RawMessage    `json:"context,omitempty"`
	Originator  string             `json:"originator"`
}

var eventNamespace = uuid.MustParse("6f1c54b2-6a7e-5d8c-9a43-0f6b5b1f2d10")

// NewEventID derives a stable ID from the asset, detection time and kind, so
// re-detecting the same snapshot pair produces the same event ID.
func NewEventID(asset string, ts time.Time, kind PatternKind) uuid.UUID {
	name := asset + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + string(kind)
	return uuid.NewSHA1(eventNamespace, []byte(name))
}

// JSON returns the JSON-encoded event.
func (e *PatternEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
