package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// ATR calculates the Average True Range with Wilder smoothing, seeded with
// the mean of the first `period` true ranges. True range starts at the
// second point: max(H−L, |H−prevC|, |L−prevC|).
//
// A point without High or Low disables the ATR for the rest of the series;
// the value stays absent rather than being computed from partial ranges.
type ATR struct {
	period    int
	hasPrev   bool
	prevClose decimal.Decimal
	disabled  bool
	smooth    *Wilder
}

// NewATR creates an ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, smooth: NewWilder(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(p model.PricePoint) {
	if a.disabled {
		return
	}
	if !p.HasRange() {
		a.disabled = true
		return
	}
	if !a.hasPrev {
		a.prevClose = p.Close
		a.hasPrev = true
		return
	}

	high, low := p.High.Decimal, p.Low.Decimal
	tr := maxDecimal(
		high.Sub(low),
		high.Sub(a.prevClose).Abs(),
		low.Sub(a.prevClose).Abs(),
	)
	a.smooth.UpdateValue(tr)
	a.prevClose = p.Close
}

func (a *ATR) Value() decimal.Decimal {
	if !a.Ready() {
		return decimal.Zero
	}
	return a.smooth.Value()
}

func (a *ATR) Ready() bool { return !a.disabled && a.smooth.Ready() }

// Disabled reports whether a point without a price range was seen.
func (a *ATR) Disabled() bool { return a.disabled }

// State serializes the ATR for checkpoint persistence.
func (a *ATR) State() IndicatorState {
	return IndicatorState{
		Type:      "ATR",
		Period:    a.period,
		HasPrev:   a.hasPrev,
		PrevClose: a.prevClose,
		Disabled:  a.disabled,
		Children:  []IndicatorState{a.smooth.State()},
	}
}

// Restore rebuilds the ATR from a checkpoint.
func (a *ATR) Restore(st IndicatorState) error {
	if err := st.expect("ATR", a.period); err != nil {
		return err
	}
	if len(st.Children) != 1 {
		return errStateShape("ATR", "expected one smoother")
	}
	if err := a.smooth.Restore(st.Children[0]); err != nil {
		return err
	}
	a.hasPrev = st.HasPrev
	a.prevClose = st.PrevClose
	a.disabled = st.Disabled
	return nil
}
