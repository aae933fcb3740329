// Package indicator computes technical indicators over daily price series.
//
// All indicators implement the Indicator interface and use exact decimal
// arithmetic: sums are exact and each division rounds half away from zero
// to divScale fractional digits, so identical input always yields identical
// output. Indicators are single-goroutine; a Series owns one set per asset.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Look-back windows of the fixed indicator set.
const (
	SMAShortPeriod   = 20
	SMAMediumPeriod  = 50
	SMALongPeriod    = 200
	EMAFastPeriod    = 12
	EMASlowPeriod    = 26
	RSIPeriod        = 14
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	ATRPeriod        = 14
)

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next price point.
	Update(p model.PricePoint)

	// Value returns the current value. Meaningless until Ready.
	Value() decimal.Decimal

	// Ready returns true once the look-back window is satisfied.
	Ready() bool
}

// Stateful is implemented by indicators that can be checkpointed.
type Stateful interface {
	State() IndicatorState
	Restore(st IndicatorState) error
}
