package indicator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// checkpointVersion is bumped whenever SeriesState changes incompatibly.
const checkpointVersion = 1

// ErrStaleCheckpoint is returned when a checkpoint was written with a
// different version or parameters and must be discarded.
var ErrStaleCheckpoint = errors.New("stale checkpoint")

// IndicatorState holds the serialized state of a single indicator instance.
// Decimals marshal as strings, so a round trip is exact.
type IndicatorState struct {
	Type   string `json:"type"` // "SMA", "EMA", "SMMA", "RSI", "MACD", "BBANDS", "ATR"
	Period int    `json:"period"`

	// Window-based (SMA, BBANDS)
	Window []decimal.Decimal `json:"window,omitempty"`

	// Running (EMA, SMMA)
	Count   int             `json:"count,omitempty"`
	Sum     decimal.Decimal `json:"sum"`
	Current decimal.Decimal `json:"current"`

	// Delta-based (RSI, ATR)
	HasPrev   bool            `json:"has_prev,omitempty"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Disabled  bool            `json:"disabled,omitempty"`

	// Composite indicators nest their components.
	Children []IndicatorState `json:"children,omitempty"`
}

func (st IndicatorState) expect(typ string, period int) error {
	if st.Type != typ || st.Period != period {
		return fmt.Errorf("restore %s(%d): got %s(%d)", typ, period, st.Type, st.Period)
	}
	return nil
}

// SeriesState is the full checkpoint of one asset's Series.
type SeriesState struct {
	Version     int                      `json:"version"`
	Asset       string                   `json:"asset"`
	Count       int                      `json:"count"`
	LastTS      time.Time                `json:"last_ts"`
	BandWidth   decimal.Decimal          `json:"band_width"`
	OutputScale int32                    `json:"output_scale"`
	Indicators  []IndicatorState         `json:"indicators"`
	Last        *model.IndicatorSnapshot `json:"last,omitempty"`

	// PriceRevision is the price-store revision the series was read at.
	PriceRevision int64 `json:"price_revision,omitempty"`
}

// Checkpoint captures the Series state as JSON.
func (s *Series) Checkpoint() ([]byte, error) {
	st := SeriesState{
		Version:     checkpointVersion,
		Asset:       s.asset,
		Count:       s.count,
		LastTS:      s.lastTS,
		BandWidth:   s.params.BandWidth,
		OutputScale: s.params.OutputScale,
		Last:        s.last,

		PriceRevision: s.rev,
	}
	for _, ind := range s.stateful() {
		st.Indicators = append(st.Indicators, ind.State())
	}
	return json.Marshal(st)
}

// RestoreSeries rebuilds a Series from a checkpoint taken with the same
// parameters. A checkpoint from another version or parameter set yields
// ErrStaleCheckpoint; the caller should recompute from the full history.
func RestoreSeries(data []byte, params Params) (*Series, error) {
	var st SeriesState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if st.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: version %d", ErrStaleCheckpoint, st.Version)
	}
	if !st.BandWidth.Equal(params.BandWidth) || st.OutputScale != params.OutputScale {
		return nil, fmt.Errorf("%w: parameters changed", ErrStaleCheckpoint)
	}

	s := NewSeries(st.Asset, params)
	inds := s.stateful()
	if len(st.Indicators) != len(inds) {
		return nil, fmt.Errorf("%w: %d indicators, want %d", ErrStaleCheckpoint, len(st.Indicators), len(inds))
	}
	for i, ind := range inds {
		if err := ind.Restore(st.Indicators[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStaleCheckpoint, err)
		}
	}
	s.count = st.Count
	s.lastTS = st.LastTS
	s.last = st.Last
	s.rev = st.PriceRevision
	return s, nil
}
