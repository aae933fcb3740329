// Package pattern classifies transitions between consecutive indicator
// snapshots into discrete pattern events.
//
// Rules are evaluated in declaration order: golden cross, death cross,
// oversold, overbought, MACD bullish cross. A rule whose inputs are absent
// is skipped silently.
package pattern

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Thresholds configures the momentum rules.
type Thresholds struct {
	RSIOversold   decimal.Decimal
	RSIOverbought decimal.Decimal
}

// DefaultThresholds returns RSI 30 / 70.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOversold:   DefaultRSIOversold,
		RSIOverbought: DefaultRSIOverbought,
	}
}

// Validate checks that oversold < overbought and both lie in [0, 100].
func (t Thresholds) Validate() error {
	lo, hi := t.RSIOversold, t.RSIOverbought
	if lo.IsNegative() || hi.GreaterThan(decimal.NewFromInt(100)) || !lo.LessThan(hi) {
		return fmt.Errorf("invalid RSI thresholds: oversold=%s overbought=%s", lo, hi)
	}
	return nil
}

// Detector evaluates the rule set over snapshot pairs. It is stateless and
// safe for concurrent use.
type Detector struct {
	rules      []Rule
	originator string
}

// NewDetector creates a detector with the standard rule set. originator is
// stamped on every event to identify the producing process.
func NewDetector(th Thresholds, originator string) *Detector {
	return &Detector{
		originator: originator,
		rules: []Rule{
			crossRule{kind: model.PatternGoldenCross, confidence: ConfidenceGoldenCross,
				fast: fieldSMA50, slow: fieldSMA200, up: true},
			crossRule{kind: model.PatternDeathCross, confidence: ConfidenceDeathCross,
				fast: fieldSMA50, slow: fieldSMA200, up: false},
			thresholdRule{kind: model.PatternOversold, confidence: ConfidenceOversold,
				value: fieldRSI, limit: th.RSIOversold, below: true},
			thresholdRule{kind: model.PatternOverbought, confidence: ConfidenceOverbought,
				value: fieldRSI, limit: th.RSIOverbought, below: false},
			crossRule{kind: model.PatternMACDBullishCross, confidence: ConfidenceMACDBullishCross,
				fast: fieldMACD, slow: fieldSignal, up: true},
		},
	}
}

// Rules returns the rule set in evaluation order.
func (d *Detector) Rules() []Rule { return d.rules }

// Detect evaluates every rule against (prev, latest). prev may be nil, in
// which case no crossover can fire. Snapshots of different assets yield a
// *model.MismatchedAssetError.
func (d *Detector) Detect(prev *model.IndicatorSnapshot, latest model.IndicatorSnapshot) ([]model.PatternEvent, error) {
	if prev != nil && prev.Asset != latest.Asset {
		return nil, &model.MismatchedAssetError{Expected: prev.Asset, Got: latest.Asset}
	}

	var events []model.PatternEvent
	for _, r := range d.rules {
		desc, ok := r.Evaluate(prev, &latest)
		if !ok {
			continue
		}
		ev := model.PatternEvent{
			ID:          model.NewEventID(latest.Asset, latest.TS, r.Kind()),
			Asset:       latest.Asset,
			DetectedAt:  latest.TS,
			Kind:        r.Kind(),
			Confidence:  r.Confidence(),
			Description: desc,
			Latest:      latest,
			Originator:  d.originator,
		}
		if prev != nil {
			p := *prev
			ev.Previous = &p
		}
		events = append(events, ev)
	}
	return events, nil
}

// Scan runs Detect over every consecutive pair of an ordered snapshot
// slice. The first snapshot is evaluated with prev=nil unless seed is given.
func (d *Detector) Scan(seed *model.IndicatorSnapshot, snaps []model.IndicatorSnapshot) ([]model.PatternEvent, error) {
	var out []model.PatternEvent
	prev := seed
	for i := range snaps {
		evs, err := d.Detect(prev, snaps[i])
		if err != nil {
			return out, err
		}
		out = append(out, evs...)
		prev = &snaps[i]
	}
	return out, nil
}

// WithContext returns copies of events carrying ctx as their opaque
// analysis-context payload.
func WithContext(events []model.PatternEvent, ctx json.RawMessage) []model.PatternEvent {
	if len(ctx) == 0 {
		return events
	}
	out := make([]model.PatternEvent, len(events))
	for i, ev := range events {
		ev.Context = append(json.RawMessage(nil), ctx...)
		out[i] = ev
	}
	return out
}
