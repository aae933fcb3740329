package notification

import (
	"fmt"
	"strings"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// LevelFor maps an event's confidence to an alert level.
func LevelFor(confidence int) AlertLevel {
	switch {
	case confidence >= 85:
		return AlertCritical
	case confidence >= 75:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// FromEvent renders a PatternEvent as an Alert.
func FromEvent(ev model.PatternEvent) Alert {
	var b strings.Builder
	b.WriteString(ev.Description)
	fmt.Fprintf(&b, "\nAsset: %s", ev.Asset)
	fmt.Fprintf(&b, "\nDate: %s", ev.DetectedAt.UTC().Format("2006-01-02"))
	fmt.Fprintf(&b, "\nConfidence: %d%%", ev.Confidence)
	for _, f := range ev.Latest.Fields() {
		if !f.Value.Valid {
			continue
		}
		if !relevantField(ev.Kind, f.Name) {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value.Decimal.StringFixed(2))
	}

	return Alert{
		Level:      LevelFor(ev.Confidence),
		Title:      fmt.Sprintf("%s %s", ev.Asset, ev.Kind.Title()),
		Message:    b.String(),
		EventID:    ev.ID,
		Asset:      ev.Asset,
		Kind:       string(ev.Kind),
		Confidence: ev.Confidence,
		TS:         ev.DetectedAt,
	}
}

func relevantField(kind model.PatternKind, field string) bool {
	switch kind {
	case model.PatternGoldenCross, model.PatternDeathCross:
		return field == model.FieldSMA50 || field == model.FieldSMA200
	case model.PatternOversold, model.PatternOverbought:
		return field == model.FieldRSI14
	case model.PatternMACDBullishCross:
		return field == model.FieldMACD || field == model.FieldMACDSignal
	}
	return false
}
