package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// MACD tracks the fast and slow EMAs, their difference (the MACD line) and
// an EMA of the line (the signal). The signal is seeded with the SMA of the
// first signal-period line values, so it starts slow+signal-2 points in.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given fast, slow and signal periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(p model.PricePoint) {
	m.fast.Update(p)
	m.slow.Update(p)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.UpdateValue(m.line())
	}
}

func (m *MACD) line() decimal.Decimal {
	return m.fast.Value().Sub(m.slow.Value())
}

// Value returns the MACD line.
func (m *MACD) Value() decimal.Decimal {
	if !m.Ready() {
		return decimal.Zero
	}
	return m.line()
}

// Ready reports whether the MACD line is defined.
func (m *MACD) Ready() bool { return m.fast.Ready() && m.slow.Ready() }

// Signal returns the signal line and whether it is defined.
func (m *MACD) Signal() (decimal.Decimal, bool) {
	return m.signal.Value(), m.signal.Ready()
}

// Fast and Slow expose the component EMAs, which are published on their own.
func (m *MACD) Fast() *EMA { return m.fast }
func (m *MACD) Slow() *EMA { return m.slow }

// State serializes the MACD for checkpoint persistence.
func (m *MACD) State() IndicatorState {
	return IndicatorState{
		Type:     "MACD",
		Period:   m.slow.period,
		Children: []IndicatorState{m.fast.State(), m.slow.State(), m.signal.State()},
	}
}

// Restore rebuilds the MACD from a checkpoint.
func (m *MACD) Restore(st IndicatorState) error {
	if err := st.expect("MACD", m.slow.period); err != nil {
		return err
	}
	if len(st.Children) != 3 {
		return errStateShape("MACD", "expected fast, slow and signal EMAs")
	}
	for i, ema := range []*EMA{m.fast, m.slow, m.signal} {
		if err := ema.Restore(st.Children[i]); err != nil {
			return err
		}
	}
	return nil
}
