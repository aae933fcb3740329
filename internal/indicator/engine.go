package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Params are the tunable inputs of the engine. Window lengths are fixed.
type Params struct {
	// BandWidth is the Bollinger standard-deviation multiplier.
	BandWidth decimal.Decimal
	// OutputScale is the number of fractional digits in published values.
	OutputScale int32
}

// DefaultParams returns 2σ bands and 8 published digits.
func DefaultParams() Params {
	return Params{
		BandWidth:   decimal.NewFromInt(2),
		OutputScale: 8,
	}
}

// Engine computes indicator snapshots for price series. It holds no mutable
// state and is safe for concurrent use across assets.
type Engine struct {
	params Params
}

// NewEngine creates an engine with the given parameters.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// NewSeries creates an empty incremental Series for asset.
func (e *Engine) NewSeries(asset string) *Series {
	return NewSeries(asset, e.params)
}

// Compute derives one snapshot per timestamp with at least one defined
// indicator. If some indicator is still undefined at the last point the
// snapshots are returned together with an *InsufficientHistoryError.
func (e *Engine) Compute(asset string, series []model.PricePoint) ([]model.IndicatorSnapshot, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%s: %w", asset, ErrEmptySeries)
	}

	s := e.NewSeries(asset)
	snaps, err := s.PushAll(series)
	if err != nil {
		return nil, err
	}
	return snaps, s.Complete()
}
