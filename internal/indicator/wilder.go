package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Wilder is Wilder's smoothed moving average (SMMA). The first value is the
// simple mean of `period` inputs, then avg = (prev·(period-1) + v) / period.
// RSI smooths gains and losses with it; ATR smooths true range.
type Wilder struct {
	period  int
	count   int
	sum     decimal.Decimal
	current decimal.Decimal
}

// NewWilder creates a Wilder smoother with the given period.
func NewWilder(period int) *Wilder {
	return &Wilder{period: period}
}

func (w *Wilder) Name() string { return "SMMA" }

func (w *Wilder) Update(p model.PricePoint) { w.UpdateValue(p.Close) }

// UpdateValue feeds a raw value.
func (w *Wilder) UpdateValue(v decimal.Decimal) {
	w.count++

	if w.count <= w.period {
		w.sum = w.sum.Add(v)
		if w.count == w.period {
			w.current = divN(w.sum, w.period)
		}
		return
	}

	num := w.current.Mul(decimal.NewFromInt(int64(w.period - 1))).Add(v)
	w.current = divN(num, w.period)
}

func (w *Wilder) Value() decimal.Decimal { return w.current }
func (w *Wilder) Ready() bool            { return w.count >= w.period }

// State serializes the smoother for checkpoint persistence.
func (w *Wilder) State() IndicatorState {
	return IndicatorState{
		Type:    "SMMA",
		Period:  w.period,
		Count:   w.count,
		Sum:     w.sum,
		Current: w.current,
	}
}

// Restore rebuilds the smoother from a checkpoint.
func (w *Wilder) Restore(st IndicatorState) error {
	if err := st.expect("SMMA", w.period); err != nil {
		return err
	}
	w.count = st.Count
	w.sum = st.Sum
	w.current = st.Current
	return nil
}
