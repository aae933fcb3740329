package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// EMA calculates the Exponential Moving Average with α = 2/(N+1), seeded
// with the SMA of the first N values. The recurrence is evaluated as
// (2·v + (N-1)·prev) / (N+1) so each step rounds once.
type EMA struct {
	period  int
	count   int
	sum     decimal.Decimal
	current decimal.Decimal
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(p model.PricePoint) { e.UpdateValue(p.Close) }

// UpdateValue feeds a raw value (MACD feeds its line into the signal EMA).
func (e *EMA) UpdateValue(v decimal.Decimal) {
	e.count++

	if e.count <= e.period {
		e.sum = e.sum.Add(v)
		if e.count == e.period {
			e.current = divN(e.sum, e.period)
		}
		return
	}

	num := v.Mul(two).Add(e.current.Mul(decimal.NewFromInt(int64(e.period - 1))))
	e.current = divN(num, e.period+1)
}

func (e *EMA) Value() decimal.Decimal { return e.current }
func (e *EMA) Ready() bool            { return e.count >= e.period }

// State serializes the EMA for checkpoint persistence.
func (e *EMA) State() IndicatorState {
	return IndicatorState{
		Type:    "EMA",
		Period:  e.period,
		Count:   e.count,
		Sum:     e.sum,
		Current: e.current,
	}
}

// Restore rebuilds the EMA from a checkpoint.
func (e *EMA) Restore(st IndicatorState) error {
	if err := st.expect("EMA", e.period); err != nil {
		return err
	}
	e.count = st.Count
	e.sum = st.Sum
	e.current = st.Current
	return nil
}
