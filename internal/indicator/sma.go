package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/ringbuf"
)

// SMA calculates the Simple Moving Average of closes over a rolling window.
// The running sum is exact; only the final mean is rounded.
type SMA struct {
	period int
	win    *ringbuf.Window[decimal.Decimal]
	sum    decimal.Decimal
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		win:    ringbuf.New[decimal.Decimal](period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(p model.PricePoint) { s.UpdateValue(p.Close) }

// UpdateValue feeds a raw value instead of a price point.
func (s *SMA) UpdateValue(v decimal.Decimal) {
	if old, evicted := s.win.Push(v); evicted {
		s.sum = s.sum.Sub(old)
	}
	s.sum = s.sum.Add(v)
}

func (s *SMA) Value() decimal.Decimal {
	if !s.Ready() {
		return decimal.Zero
	}
	return divN(s.sum, s.period)
}

func (s *SMA) Ready() bool { return s.win.Full() }

// Sum returns the exact sum of the values in the window.
func (s *SMA) Sum() decimal.Decimal { return s.sum }

// Values returns the window contents, oldest first.
func (s *SMA) Values() []decimal.Decimal { return s.win.Values() }

// State serializes the SMA for checkpoint persistence.
func (s *SMA) State() IndicatorState {
	return IndicatorState{
		Type:   "SMA",
		Period: s.period,
		Window: s.win.Values(),
		Sum:    s.sum,
	}
}

// Restore rebuilds the SMA from a checkpoint.
func (s *SMA) Restore(st IndicatorState) error {
	if err := st.expect("SMA", s.period); err != nil {
		return err
	}
	if len(st.Window) > s.period {
		return errStateShape("SMA", "window larger than period")
	}
	s.win.Reset(st.Window)
	s.sum = decimal.Zero
	for _, v := range st.Window {
		s.sum = s.sum.Add(v)
	}
	return nil
}
