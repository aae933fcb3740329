package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/indicator"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/metrics"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, m)

	m, err = ParseMode("full")
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m)

	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}

func TestNewPipelineRequiresPrices(t *testing.T) {
	h := newHarness()
	_, err := NewPipeline(h.engine, h.det, Deps{}, Options{}, quietLogger())
	assert.Error(t, err)
}

func TestRunAssetFull(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 260))
	p := h.pipeline(Options{Mode: ModeFull})

	res := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	assert.Equal(t, model.JobSuccess, res.Status())
	assert.Equal(t, 260, res.Points)
	// EMA12 is the first defined field, at index 11.
	assert.Equal(t, 260-11, res.Snapshots)
	assert.Len(t, h.sink.ordered("GLD"), 260-11)

	// Only the final pair is evaluated: a steady rise is overbought.
	require.Len(t, res.Events, 1)
	assert.Equal(t, model.PatternOverbought, res.Events[0].Kind)
	assert.Equal(t, day0.AddDate(0, 0, 259), res.Events[0].DetectedAt)

	run := h.jobs.byAsset()["GLD"]
	assert.Equal(t, model.JobSuccess, run.Status)
	assert.Equal(t, "full", run.Mode)
	assert.Equal(t, 260-11, run.RowsProcessed)

	assert.NotNil(t, h.ckpt.data["GLD"], "full mode also checkpoints")
}

func TestRunAssetScanHistory(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 60))
	p := h.pipeline(Options{Mode: ModeFull, ScanHistory: true})

	res := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	// RSI is defined from index 14 and pinned at 100 on a pure rise.
	overbought := 0
	for _, ev := range res.Events {
		if ev.Kind == model.PatternOverbought {
			overbought++
		}
	}
	assert.Equal(t, 60-14, overbought)
}

func TestRunAssetPartial(t *testing.T) {
	h := newHarness()
	h.prices.set("SLV", rising("SLV", 30))
	p := h.pipeline(Options{Mode: ModeFull})

	res := p.RunAsset(context.Background(), "SLV")
	require.NoError(t, res.Err)
	assert.True(t, res.Partial)
	assert.Equal(t, model.JobPartial, res.Status())
	assert.Len(t, h.sink.ordered("SLV"), 30-11, "partial snapshots are still written")

	run := h.jobs.byAsset()["SLV"]
	assert.Equal(t, model.JobPartial, run.Status)
	assert.Contains(t, run.Error, "insufficient history")
}

func TestRunAssetEmpty(t *testing.T) {
	h := newHarness()
	p := h.pipeline(Options{Mode: ModeFull})

	res := p.RunAsset(context.Background(), "NONE")
	assert.ErrorIs(t, res.Err, indicator.ErrEmptySeries)
	assert.Equal(t, model.JobFailed, h.jobs.byAsset()["NONE"].Status)
}

func TestRunAssetNonMonotonic(t *testing.T) {
	h := newHarness()
	pts := rising("GLD", 40)
	pts[20].TS = pts[19].TS
	h.prices.set("GLD", pts)
	p := h.pipeline(Options{Mode: ModeFull})

	res := p.RunAsset(context.Background(), "GLD")
	var nm *indicator.NonMonotonicError
	require.ErrorAs(t, res.Err, &nm)
	assert.Equal(t, 20, nm.Index)
	assert.Empty(t, h.sink.ordered("GLD"), "a rejected series writes nothing")
	assert.Nil(t, h.ckpt.data["GLD"])
}

func TestRunAssetMismatchedAsset(t *testing.T) {
	h := newHarness()
	pts := rising("GLD", 20)
	pts[5].Asset = "SLV"
	h.prices.set("GLD", pts)

	res := h.pipeline(Options{Mode: ModeFull}).RunAsset(context.Background(), "GLD")
	assert.ErrorIs(t, res.Err, model.ErrMismatchedAsset)
}

func TestIncrementalEqualsFull(t *testing.T) {
	all := rising("GLD", 260)

	// Incremental: cold start on the first 220 points, then resume.
	inc := newHarness()
	inc.prices.set("GLD", all[:220])
	p := inc.pipeline(Options{Mode: ModeIncremental})

	first := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, first.Err)
	assert.False(t, first.Restored)

	inc.prices.set("GLD", all)
	second := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, second.Err)
	assert.True(t, second.Restored)
	assert.Equal(t, 40, second.Points, "only points after the checkpoint are read")

	// Full recomputation over the whole history.
	full := newHarness()
	full.prices.set("GLD", all)
	fres := full.pipeline(Options{Mode: ModeFull, ScanHistory: true}).RunAsset(context.Background(), "GLD")
	require.NoError(t, fres.Err)

	incSnaps, fullSnaps := inc.sink.ordered("GLD"), full.sink.ordered("GLD")
	require.Len(t, incSnaps, len(fullSnaps))
	for i := range fullSnaps {
		assert.JSONEq(t, string(fullSnaps[i].JSON()), string(incSnaps[i].JSON()), "snapshot %d", i)
	}

	ids := func(evs []model.PatternEvent) []string {
		out := make([]string, len(evs))
		for i, ev := range evs {
			out[i] = ev.ID.String()
		}
		return out
	}
	incEvents := append(append([]model.PatternEvent(nil), first.Events...), second.Events...)
	assert.Equal(t, ids(fres.Events), ids(incEvents))
}

func TestIncrementalNoNewPoints(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 50))
	p := h.pipeline(Options{Mode: ModeIncremental})

	require.NoError(t, p.RunAsset(context.Background(), "GLD").Err)
	res := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	assert.True(t, res.Restored)
	assert.Zero(t, res.Points)
	assert.Empty(t, res.Events)
}

func TestRequiredSinkFailureHoldsCheckpoint(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 40))
	h.sink.err = errBoom
	p := h.pipeline(Options{Mode: ModeIncremental})

	res := p.RunAsset(context.Background(), "GLD")
	assert.ErrorIs(t, res.Err, errBoom)
	assert.Nil(t, h.ckpt.data["GLD"])
	assert.Equal(t, model.JobFailed, h.jobs.byAsset()["GLD"].Status)
	assert.Equal(t, 40, h.jobs.byAsset()["GLD"].RowsFailed)
}

func TestContextAttached(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 30))
	payload := json.RawMessage(`{"run":"nightly"}`)
	p := h.pipeline(Options{Mode: ModeFull, Context: payload})

	res := p.RunAsset(context.Background(), "GLD")
	require.NotEmpty(t, res.Events)
	for _, ev := range res.Events {
		assert.JSONEq(t, string(payload), string(ev.Context))
		assert.Equal(t, "test", ev.Originator)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	h := newHarness()
	h.prices.set("GOOD", rising("GOOD", 60))
	bad := rising("BAD", 60)
	bad[30].TS = bad[10].TS
	h.prices.set("BAD", bad)
	h.prices.set("ERR", rising("ERR", 60))
	h.prices.errs["ERR"] = errBoom

	p := h.pipeline(Options{Mode: ModeFull, Concurrency: 2})
	br, err := p.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, br.Results, 3)
	byAsset := map[string]AssetResult{}
	for _, r := range br.Results {
		byAsset[r.Asset] = r
	}
	assert.NoError(t, byAsset["GOOD"].Err)
	assert.ErrorIs(t, byAsset["BAD"].Err, indicator.ErrNonMonotonicTimestamps)
	assert.ErrorIs(t, byAsset["ERR"].Err, errBoom)
	assert.Equal(t, 1, br.Succeeded)
	assert.Equal(t, 2, br.Failed)

	assert.Len(t, h.sink.ordered("GOOD"), 60-11)
	assert.Len(t, h.jobs.byAsset(), 3, "every asset gets a job log entry")
}

func TestRunBatchCancelled(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 30))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	br := h.pipeline(Options{Mode: ModeFull}).RunBatch(ctx, []string{"GLD", "SLV"})
	require.Len(t, br.Results, 2)
	for _, r := range br.Results {
		assert.True(t, errors.Is(r.Err, context.Canceled))
	}
	assert.Empty(t, h.sink.ordered("GLD"))
}

func TestPipelineMetrics(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 30))
	m := metrics.NewMetrics(prometheus.NewRegistry())

	p, err := NewPipeline(h.engine, h.det, Deps{
		Prices:     h.prices,
		Indicators: h.sink,
		Events:     h.sink,
		Restorer:   indicator.NewRestorer(h.engine, quietLogger(), h.ckpt),
		Metrics:    m,
	}, Options{Mode: ModeIncremental}, quietLogger())
	require.NoError(t, err)

	p.RunBatch(context.Background(), []string{"GLD", "NONE"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetsProcessed.WithLabelValues(model.JobPartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetsProcessed.WithLabelValues(model.JobFailed)))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.PointsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckpointHits.WithLabelValues("cold")))
}

func TestWithMode(t *testing.T) {
	h := newHarness()
	p := h.pipeline(Options{Mode: ModeIncremental})
	q := p.WithMode(ModeFull)
	assert.Equal(t, ModeIncremental, p.Options().Mode)
	assert.Equal(t, ModeFull, q.Options().Mode)
}

// snapshotsJSON renders stored snapshots for whole-history comparison.
func snapshotsJSON(t *testing.T, snaps []model.IndicatorSnapshot) string {
	t.Helper()
	b, err := json.Marshal(snaps)
	require.NoError(t, err)
	return string(b)
}

func TestIncrementalRecomputesAfterCorrection(t *testing.T) {
	for _, at := range []int{59, 30} {
		t.Run(day0.AddDate(0, 0, at).Format("2006-01-02"), func(t *testing.T) {
			pts := rising("GLD", 60)
			inc := newHarness()
			inc.prices.set("GLD", pts)
			p := inc.pipeline(Options{Mode: ModeIncremental})
			require.NoError(t, p.RunAsset(context.Background(), "GLD").Err)

			corrected := append([]model.PricePoint(nil), pts...)
			c := corrected[at].Close.Sub(decimal.NewFromInt(7))
			corrected[at].Close = c
			corrected[at].High = decimal.NewNullDecimal(c.Add(decimal.NewFromInt(1)))
			corrected[at].Low = decimal.NewNullDecimal(c.Sub(decimal.NewFromInt(1)))
			inc.prices.set("GLD", corrected)

			res := p.RunAsset(context.Background(), "GLD")
			require.NoError(t, res.Err)
			assert.False(t, res.Restored, "a correction behind the checkpoint discards it")
			assert.Equal(t, 60, res.Points)

			full := newHarness()
			full.prices.set("GLD", corrected)
			require.NoError(t, full.pipeline(Options{Mode: ModeFull}).RunAsset(context.Background(), "GLD").Err)
			assert.JSONEq(t, snapshotsJSON(t, full.sink.ordered("GLD")), snapshotsJSON(t, inc.sink.ordered("GLD")))

			// The rebuilt checkpoint carries the new revision: appending resumes.
			inc.prices.set("GLD", append(corrected, rising("GLD", 62)[60:]...))
			res = p.RunAsset(context.Background(), "GLD")
			require.NoError(t, res.Err)
			assert.True(t, res.Restored)
			assert.Equal(t, 2, res.Points)
		})
	}
}

func TestIdenticalRewriteKeepsCheckpoint(t *testing.T) {
	h := newHarness()
	pts := rising("GLD", 40)
	h.prices.set("GLD", pts)
	p := h.pipeline(Options{Mode: ModeIncremental})
	require.NoError(t, p.RunAsset(context.Background(), "GLD").Err)

	h.prices.set("GLD", append([]model.PricePoint(nil), pts...))
	res := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	assert.True(t, res.Restored)
	assert.Zero(t, res.Points)
}

func TestColdRunAlertsOnlyLatestEvents(t *testing.T) {
	h := newHarness()
	all := rising("GLD", 65)
	h.prices.set("GLD", all[:60])
	p := h.pipeline(Options{Mode: ModeIncremental})

	cold := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, cold.Err)
	require.Greater(t, len(cold.Events), 1, "a cold run scans its history")
	assert.Len(t, h.sink.events, len(cold.Events), "history is still persisted")

	last := day0.AddDate(0, 0, 59)
	require.NotEmpty(t, h.alerts.events)
	for _, ev := range h.alerts.events {
		assert.Equal(t, last, ev.DetectedAt)
	}
	assert.Equal(t, len(h.alerts.events), cold.Alerted)

	// A resumed run alerts on everything it found.
	h.prices.set("GLD", all)
	warm := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, warm.Err)
	require.True(t, warm.Restored)
	assert.Equal(t, len(warm.Events), warm.Alerted)
	assert.Len(t, h.alerts.events, cold.Alerted+len(warm.Events))
}

func TestFullScanAlertsOnlyLatestEvents(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 60))
	res := h.pipeline(Options{Mode: ModeFull, ScanHistory: true}).RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	assert.Len(t, h.alerts.events, 1)
	assert.Equal(t, 1, res.Alerted)
}

func TestAlertFailureDoesNotFailAsset(t *testing.T) {
	h := newHarness()
	h.prices.set("GLD", rising("GLD", 30))
	h.alerts.err = errBoom
	m := metrics.NewMetrics(prometheus.NewRegistry())

	p, err := NewPipeline(h.engine, h.det, Deps{
		Prices:   h.prices,
		Events:   h.sink,
		Alerts:   h.alerts,
		Restorer: indicator.NewRestorer(h.engine, quietLogger(), h.ckpt),
		Metrics:  m,
	}, Options{Mode: ModeIncremental}, quietLogger())
	require.NoError(t, err)

	res := p.RunAsset(context.Background(), "GLD")
	require.NoError(t, res.Err)
	assert.NotNil(t, h.ckpt.data["GLD"], "checkpoint still advances")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("alerts")))
}
