package indicator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Series holds the running indicator state of one asset. Points are pushed
// in strictly increasing timestamp order.
type Series struct {
	asset  string
	params Params

	count  int
	lastTS time.Time
	last   *model.IndicatorSnapshot
	rev    int64

	sma20  *SMA
	sma50  *SMA
	sma200 *SMA
	macd   *MACD
	rsi    *RSI
	bb     *Bollinger
	atr    *ATR
}

// NewSeries creates an empty Series for asset.
func NewSeries(asset string, params Params) *Series {
	return &Series{
		asset:  asset,
		params: params,
		sma20:  NewSMA(SMAShortPeriod),
		sma50:  NewSMA(SMAMediumPeriod),
		sma200: NewSMA(SMALongPeriod),
		macd:   NewMACD(EMAFastPeriod, EMASlowPeriod, MACDSignalPeriod),
		rsi:    NewRSI(RSIPeriod),
		bb:     NewBollinger(BollingerPeriod, params.BandWidth),
		atr:    NewATR(ATRPeriod),
	}
}

// stateful lists the indicators in checkpoint order.
func (s *Series) stateful() []Stateful {
	return []Stateful{s.sma20, s.sma50, s.sma200, s.macd, s.rsi, s.bb, s.atr}
}

// Asset returns the asset this series belongs to.
func (s *Series) Asset() string { return s.asset }

// Count returns the number of points consumed.
func (s *Series) Count() int { return s.count }

// LastTS returns the timestamp of the last point consumed.
func (s *Series) LastTS() time.Time { return s.lastTS }

// Last returns the most recent emitted snapshot, or nil.
func (s *Series) Last() *model.IndicatorSnapshot { return s.last }

// PriceRevision returns the price-store revision the consumed points were
// read at. Zero means unknown.
func (s *Series) PriceRevision() int64 { return s.rev }

// SetPriceRevision records the price-store revision of the consumed points.
func (s *Series) SetPriceRevision(rev int64) { s.rev = rev }

// Push consumes the next point. It returns the snapshot for p's timestamp
// and ok=false when no indicator is defined yet.
func (s *Series) Push(p model.PricePoint) (snap model.IndicatorSnapshot, ok bool, err error) {
	if p.Asset != s.asset {
		return snap, false, &model.MismatchedAssetError{Expected: s.asset, Got: p.Asset}
	}
	if s.count > 0 && !p.TS.After(s.lastTS) {
		return snap, false, &NonMonotonicError{Asset: s.asset, Index: s.count, Prev: s.lastTS, TS: p.TS}
	}

	s.sma20.Update(p)
	s.sma50.Update(p)
	s.sma200.Update(p)
	s.macd.Update(p)
	s.rsi.Update(p)
	s.bb.Update(p)
	s.atr.Update(p)
	s.count++
	s.lastTS = p.TS

	snap = s.snapshot(p.TS)
	if snap.Empty() {
		return snap, false, nil
	}
	s.last = &snap
	return snap, true, nil
}

// PushAll consumes points in order and returns the emitted snapshots. It
// stops at the first invalid point.
func (s *Series) PushAll(points []model.PricePoint) ([]model.IndicatorSnapshot, error) {
	out := make([]model.IndicatorSnapshot, 0, len(points))
	for _, p := range points {
		snap, ok, err := s.Push(p)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Complete returns an *InsufficientHistoryError when any indicator is still
// undefined at the latest point, nil otherwise.
func (s *Series) Complete() error {
	var missing []string
	if s.last == nil || !s.last.TS.Equal(s.lastTS) {
		empty := model.IndicatorSnapshot{}
		missing = empty.Missing()
	} else {
		missing = s.last.Missing()
	}
	if len(missing) == 0 {
		return nil
	}
	return &InsufficientHistoryError{Asset: s.asset, Points: s.count, Missing: missing}
}

func (s *Series) snapshot(ts time.Time) model.IndicatorSnapshot {
	snap := model.IndicatorSnapshot{Asset: s.asset, TS: ts}
	out := func(v decimal.Decimal, ready bool) decimal.NullDecimal {
		if !ready {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(v.Round(s.params.OutputScale))
	}

	snap.SMA20 = out(s.sma20.Value(), s.sma20.Ready())
	snap.SMA50 = out(s.sma50.Value(), s.sma50.Ready())
	snap.SMA200 = out(s.sma200.Value(), s.sma200.Ready())
	snap.EMA12 = out(s.macd.Fast().Value(), s.macd.Fast().Ready())
	snap.EMA26 = out(s.macd.Slow().Value(), s.macd.Slow().Ready())
	snap.RSI14 = out(s.rsi.Value(), s.rsi.Ready())
	snap.MACD = out(s.macd.Value(), s.macd.Ready())
	sig, sigReady := s.macd.Signal()
	snap.MACDSignal = out(sig, sigReady)

	if s.bb.Ready() {
		b := s.bb.Bands()
		snap.BBUpper = out(b.Upper, true)
		snap.BBMiddle = out(b.Middle, true)
		snap.BBLower = out(b.Lower, true)
	}
	snap.ATR14 = out(s.atr.Value(), s.atr.Ready())
	return snap
}
