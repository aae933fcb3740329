package pattern

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Fixed confidence per pattern kind, on a 0–100 scale.
const (
	ConfidenceGoldenCross      = 85
	ConfidenceDeathCross       = 85
	ConfidenceOversold         = 75
	ConfidenceOverbought       = 75
	ConfidenceMACDBullishCross = 70
)

// Default RSI thresholds.
var (
	DefaultRSIOversold   = decimal.NewFromInt(30)
	DefaultRSIOverbought = decimal.NewFromInt(70)
)

// Rule is a pure predicate over a snapshot pair. Evaluate returns a
// description and true when the pattern is present. Rules never see
// snapshots from different assets.
type Rule interface {
	Kind() model.PatternKind
	Confidence() int
	Evaluate(prev *model.IndicatorSnapshot, latest *model.IndicatorSnapshot) (string, bool)
}

type field struct {
	label string
	get   func(*model.IndicatorSnapshot) decimal.NullDecimal
}

var (
	fieldSMA50  = field{"SMA50", func(s *model.IndicatorSnapshot) decimal.NullDecimal { return s.SMA50 }}
	fieldSMA200 = field{"SMA200", func(s *model.IndicatorSnapshot) decimal.NullDecimal { return s.SMA200 }}
	fieldMACD   = field{"MACD", func(s *model.IndicatorSnapshot) decimal.NullDecimal { return s.MACD }}
	fieldSignal = field{"signal", func(s *model.IndicatorSnapshot) decimal.NullDecimal { return s.MACDSignal }}
	fieldRSI    = field{"RSI14", func(s *model.IndicatorSnapshot) decimal.NullDecimal { return s.RSI14 }}
)

// crossRule fires when fast moves from at-or-below slow to strictly above
// (up=true), or from at-or-above to strictly below (up=false). All four
// values must be defined and a previous snapshot must exist.
type crossRule struct {
	kind       model.PatternKind
	confidence int
	fast, slow field
	up         bool
}

func (r crossRule) Kind() model.PatternKind { return r.kind }
func (r crossRule) Confidence() int         { return r.confidence }

func (r crossRule) Evaluate(prev, latest *model.IndicatorSnapshot) (string, bool) {
	if prev == nil {
		return "", false
	}
	pf, ps := r.fast.get(prev), r.slow.get(prev)
	lf, ls := r.fast.get(latest), r.slow.get(latest)
	if !pf.Valid || !ps.Valid || !lf.Valid || !ls.Valid {
		return "", false
	}

	var crossed bool
	direction := "above"
	if r.up {
		crossed = pf.Decimal.LessThanOrEqual(ps.Decimal) && lf.Decimal.GreaterThan(ls.Decimal)
	} else {
		crossed = pf.Decimal.GreaterThanOrEqual(ps.Decimal) && lf.Decimal.LessThan(ls.Decimal)
		direction = "below"
	}
	if !crossed {
		return "", false
	}
	return fmt.Sprintf("%s: %s (%s) crossed %s %s (%s)",
		r.kind.Title(), r.fast.label, lf.Decimal.StringFixed(2), direction, r.slow.label, ls.Decimal.StringFixed(2)), true
}

// thresholdRule fires when the latest value is strictly below (below=true)
// or strictly above the limit. The previous snapshot is not consulted.
type thresholdRule struct {
	kind       model.PatternKind
	confidence int
	value      field
	limit      decimal.Decimal
	below      bool
}

func (r thresholdRule) Kind() model.PatternKind { return r.kind }
func (r thresholdRule) Confidence() int         { return r.confidence }

func (r thresholdRule) Evaluate(_, latest *model.IndicatorSnapshot) (string, bool) {
	v := r.value.get(latest)
	if !v.Valid {
		return "", false
	}
	if r.below && v.Decimal.LessThan(r.limit) {
		return fmt.Sprintf("%s: %s at %s is below %s", r.kind.Title(), r.value.label,
			v.Decimal.StringFixed(2), r.limit.String()), true
	}
	if !r.below && v.Decimal.GreaterThan(r.limit) {
		return fmt.Sprintf("%s: %s at %s is above %s", r.kind.Title(), r.value.label,
			v.Decimal.StringFixed(2), r.limit.String()), true
	}
	return "", false
}
