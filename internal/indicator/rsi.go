package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// RSI calculates the Relative Strength Index with Wilder smoothing of the
// average gain (G) and loss (L). RSI = 100 - 100/(1+G/L), evaluated as
// 100·G/(G+L): L == 0 gives 100, and a flat series (G == L == 0) gives 50.
type RSI struct {
	period    int
	hasPrev   bool
	prevClose decimal.Decimal
	gain      *Wilder
	loss      *Wilder
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gain:   NewWilder(period),
		loss:   NewWilder(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(p model.PricePoint) {
	if !r.hasPrev {
		r.prevClose = p.Close
		r.hasPrev = true
		return
	}

	delta := p.Close.Sub(r.prevClose)
	r.prevClose = p.Close

	gain, loss := decimal.Zero, decimal.Zero
	if delta.Sign() > 0 {
		gain = delta
	} else {
		loss = delta.Neg()
	}
	r.gain.UpdateValue(gain)
	r.loss.UpdateValue(loss)
}

func (r *RSI) Value() decimal.Decimal {
	if !r.Ready() {
		return decimal.Zero
	}
	g, l := r.gain.Value(), r.loss.Value()
	total := g.Add(l)
	if total.IsZero() {
		return fifty
	}
	return div(g.Mul(hundred), total)
}

func (r *RSI) Ready() bool { return r.gain.Ready() }

// State serializes the RSI for checkpoint persistence.
func (r *RSI) State() IndicatorState {
	return IndicatorState{
		Type:      "RSI",
		Period:    r.period,
		HasPrev:   r.hasPrev,
		PrevClose: r.prevClose,
		Children:  []IndicatorState{r.gain.State(), r.loss.State()},
	}
}

// Restore rebuilds the RSI from a checkpoint.
func (r *RSI) Restore(st IndicatorState) error {
	if err := st.expect("RSI", r.period); err != nil {
		return err
	}
	if len(st.Children) != 2 {
		return errStateShape("RSI", "expected gain and loss smoothers")
	}
	if err := r.gain.Restore(st.Children[0]); err != nil {
		return err
	}
	if err := r.loss.Restore(st.Children[1]); err != nil {
		return err
	}
	r.hasPrev = st.HasPrev
	r.prevClose = st.PrevClose
	return nil
}
