package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Bollinger computes bands at middle ± width·σ where middle is the SMA and σ
// the population standard deviation of the same window. The variance is
// (N·Σx² − (Σx)²) / N², so only the final division and square root round.
type Bollinger struct {
	sma   *SMA
	width decimal.Decimal
}

// Bands is one evaluation of the three Bollinger lines.
type Bands struct {
	Upper  decimal.Decimal
	Middle decimal.Decimal
	Lower  decimal.Decimal
}

// NewBollinger creates bands over period closes at width standard deviations.
func NewBollinger(period int, width decimal.Decimal) *Bollinger {
	return &Bollinger{sma: NewSMA(period), width: width}
}

func (b *Bollinger) Name() string { return "BBANDS" }

func (b *Bollinger) Update(p model.PricePoint) { b.sma.Update(p) }

// Value returns the middle band.
func (b *Bollinger) Value() decimal.Decimal { return b.sma.Value() }

func (b *Bollinger) Ready() bool { return b.sma.Ready() }

// Bands returns the current bands. Meaningless until Ready.
func (b *Bollinger) Bands() Bands {
	if !b.Ready() {
		return Bands{}
	}
	n := decimal.NewFromInt(int64(b.sma.period))
	sum := b.sma.Sum()
	sumSq := decimal.Zero
	for _, v := range b.sma.Values() {
		sumSq = sumSq.Add(v.Mul(v))
	}
	variance := div(n.Mul(sumSq).Sub(sum.Mul(sum)), n.Mul(n))
	offset := b.width.Mul(sqrt(variance))
	middle := b.sma.Value()
	return Bands{
		Upper:  middle.Add(offset),
		Middle: middle,
		Lower:  middle.Sub(offset),
	}
}

// State serializes the bands for checkpoint persistence. The width is
// configuration, not state, and is not stored.
func (b *Bollinger) State() IndicatorState {
	st := b.sma.State()
	st.Type = "BBANDS"
	return st
}

// Restore rebuilds the bands from a checkpoint.
func (b *Bollinger) Restore(st IndicatorState) error {
	if err := st.expect("BBANDS", b.sma.period); err != nil {
		return err
	}
	st.Type = "SMA"
	return b.sma.Restore(st)
}
