package indengine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/indicator"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/pattern"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// rising returns n daily points on an accelerating uptrend, 100 + i + i²/50,
// with a 2-wide range. Every close is a gain, so RSI is pinned at 100, and
// MACD stays strictly above its signal line.
func rising(asset string, n int) []model.PricePoint {
	out := make([]model.PricePoint, n)
	for i := range out {
		c := decimal.NewFromInt(int64(100 + i)).Add(decimal.NewFromInt(int64(i * i)).Div(decimal.NewFromInt(50)))
		out[i] = model.PricePoint{
			Asset: asset,
			TS:    day0.AddDate(0, 0, i),
			Open:  decimal.NewNullDecimal(c),
			High:  decimal.NewNullDecimal(c.Add(decimal.NewFromInt(1))),
			Low:   decimal.NewNullDecimal(c.Sub(decimal.NewFromInt(1))),
			Close: c,
		}
	}
	return out
}

// memPrices versions rows like the SQL stores: a new or changed row takes
// a fresh revision, an identical rewrite keeps its old one.
type memPrices struct {
	mu     sync.Mutex
	points map[string][]model.PricePoint
	revs   map[string]map[time.Time]int64
	rev    int64
	errs   map[string]error
}

func newMemPrices() *memPrices {
	return &memPrices{
		points: map[string][]model.PricePoint{},
		revs:   map[string]map[time.Time]int64{},
		errs:   map[string]error{},
	}
}

func (m *memPrices) set(asset string, pts []model.PricePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := map[time.Time]model.PricePoint{}
	for _, p := range m.points[asset] {
		old[p.TS] = p
	}
	revs := map[time.Time]int64{}
	for _, p := range pts {
		if o, ok := old[p.TS]; ok && bytes.Equal(o.JSON(), p.JSON()) {
			revs[p.TS] = m.revs[asset][p.TS]
			continue
		}
		m.rev++
		revs[p.TS] = m.rev
	}
	m.points[asset] = pts
	m.revs[asset] = revs
}

func (m *memPrices) PriceRevision(_ context.Context, asset string, through time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[asset]; err != nil {
		return 0, err
	}
	var rev int64
	for ts, r := range m.revs[asset] {
		if (through.IsZero() || !ts.After(through)) && r > rev {
			rev = r
		}
	}
	return rev, nil
}

func (m *memPrices) ReadPrices(_ context.Context, asset string, after time.Time) ([]model.PricePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[asset]; err != nil {
		return nil, err
	}
	var out []model.PricePoint
	for _, p := range m.points[asset] {
		if after.IsZero() || p.TS.After(after) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPrices) ListAssets(context.Context) ([]model.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Asset, 0, len(m.points))
	for a := range m.points {
		out = append(out, model.Asset{Symbol: a})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// memSink upserts snapshots on (asset, ts) and appends events.
type memSink struct {
	mu     sync.Mutex
	snaps  map[string]map[time.Time]model.IndicatorSnapshot
	events []model.PatternEvent
	err    error
}

func newMemSink() *memSink {
	return &memSink{snaps: map[string]map[time.Time]model.IndicatorSnapshot{}}
}

func (m *memSink) UpsertSnapshots(_ context.Context, snaps []model.IndicatorSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, s := range snaps {
		if m.snaps[s.Asset] == nil {
			m.snaps[s.Asset] = map[time.Time]model.IndicatorSnapshot{}
		}
		m.snaps[s.Asset][s.TS] = s
	}
	return nil
}

func (m *memSink) AppendEvents(_ context.Context, events []model.PatternEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, events...)
	return nil
}

// ordered returns asset's stored snapshots by timestamp.
func (m *memSink) ordered(asset string) []model.IndicatorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.IndicatorSnapshot, 0, len(m.snaps[asset]))
	for _, s := range m.snaps[asset] {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out
}

func (m *memSink) LatestSnapshot(_ context.Context, asset string) (*model.IndicatorSnapshot, error) {
	snaps := m.ordered(asset)
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[len(snaps)-1], nil
}

func (m *memSink) ReadEvents(_ context.Context, asset string) ([]model.PatternEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PatternEvent
	for _, ev := range m.events {
		if ev.Asset == asset {
			out = append(out, ev)
		}
	}
	return out, nil
}

type memCheckpoints struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCheckpoints() *memCheckpoints { return &memCheckpoints{data: map[string][]byte{}} }

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, asset string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[asset] = append([]byte(nil), data...)
	return nil
}

func (m *memCheckpoints) LoadCheckpoint(_ context.Context, asset string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[asset], nil
}

type memJobs struct {
	mu   sync.Mutex
	runs []model.JobRun
}

func (m *memJobs) LogJob(_ context.Context, run model.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memJobs) byAsset() map[string]model.JobRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]model.JobRun{}
	for _, r := range m.runs {
		out[r.Asset] = r
	}
	return out
}

var errBoom = errors.New("boom")

type harness struct {
	prices *memPrices
	sink   *memSink
	alerts *memSink
	ckpt   *memCheckpoints
	jobs   *memJobs
	engine *indicator.Engine
	det    *pattern.Detector
}

func newHarness() *harness {
	return &harness{
		prices: newMemPrices(),
		sink:   newMemSink(),
		alerts: newMemSink(),
		ckpt:   newMemCheckpoints(),
		jobs:   &memJobs{},
		engine: indicator.NewEngine(indicator.DefaultParams()),
		det:    pattern.NewDetector(pattern.DefaultThresholds(), "test"),
	}
}

func (h *harness) pipeline(opts Options) *Pipeline {
	p, err := NewPipeline(h.engine, h.det, Deps{
		Prices:     h.prices,
		Indicators: h.sink,
		Events:     h.sink,
		Alerts:     h.alerts,
		Jobs:       h.jobs,
		Restorer:   indicator.NewRestorer(h.engine, quietLogger(), h.ckpt),
	}, opts, quietLogger())
	if err != nil {
		panic(err)
	}
	return p
}
