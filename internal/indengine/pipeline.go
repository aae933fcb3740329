package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/indicator"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/metrics"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/pattern"
)

// Mode selects how a refresh treats stored history.
type Mode string

const (
	// ModeFull recomputes every asset from its complete price history.
	ModeFull Mode = "full"
	// ModeIncremental resumes from the asset's checkpoint and feeds only
	// the points after it.
	ModeIncremental Mode = "incremental"
)

// ParseMode accepts "full" or "incremental"; empty means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	}
	return "", fmt.Errorf("unknown mode %q (want full or incremental)", s)
}

// Options tunes a Pipeline.
type Options struct {
	Mode        Mode
	Concurrency int    // max assets processed at once
	Job         string // job name recorded in the job log
	// ScanHistory makes full mode detect over every consecutive snapshot
	// pair instead of only the final one.
	ScanHistory bool
	// Context is attached to every emitted event as its analysis payload.
	Context json.RawMessage
}

func (o *Options) applyDefaults() {
	if o.Mode == "" {
		o.Mode = ModeIncremental
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Job == "" {
		o.Job = "refresh"
	}
}

// Deps are the ports a Pipeline reads from and writes to. Prices is
// required; the rest may be nil.
type Deps struct {
	Prices     model.PriceReader
	Indicators model.IndicatorWriter
	Events     model.PatternWriter
	// Alerts receives the events worth notifying about: every event of a
	// run resumed from a checkpoint, otherwise only those detected at the
	// newest snapshot. Its failures are logged, never returned.
	Alerts     model.PatternWriter
	Jobs       model.JobLogger
	Restorer   *indicator.Restorer
	Metrics    *metrics.Metrics
}

// AssetResult is the outcome of refreshing one asset.
type AssetResult struct {
	Asset     string
	Mode      Mode
	Restored  bool // resumed from a checkpoint
	Points    int
	Snapshots int
	Events    []model.PatternEvent
	Alerted   int  // events handed to the alert sink
	Partial   bool // some indicator still undefined
	Err       error
	Duration  time.Duration
}

// Status maps the result to a job-log status.
func (r AssetResult) Status() string {
	switch {
	case r.Err != nil:
		return model.JobFailed
	case r.Partial:
		return model.JobPartial
	default:
		return model.JobSuccess
	}
}

// BatchResult summarises one RunBatch call.
type BatchResult struct {
	Mode      Mode
	Started   time.Time
	Finished  time.Time
	Results   []AssetResult
	Succeeded int
	Partial   int
	Failed    int
}

// Pipeline reads prices, computes indicator snapshots, detects patterns and
// fans the results out to the configured sinks, one asset at a time.
type Pipeline struct {
	engine   *indicator.Engine
	detector *pattern.Detector
	deps     Deps
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(engine *indicator.Engine, detector *pattern.Detector, deps Deps, opts Options, log *slog.Logger) (*Pipeline, error) {
	if deps.Prices == nil {
		return nil, errors.New("indengine: price reader is required")
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	if deps.Restorer == nil {
		deps.Restorer = indicator.NewRestorer(engine, log)
	}
	return &Pipeline{
		engine:   engine,
		detector: detector,
		deps:     deps,
		opts:     opts,
		log:      log.With("component", "pipeline"),
		now:      time.Now,
	}, nil
}

// Options returns the pipeline's effective options.
func (p *Pipeline) Options() Options { return p.opts }

// WithMode returns a copy of p that runs in mode.
func (p *Pipeline) WithMode(mode Mode) *Pipeline {
	cp := *p
	cp.opts.Mode = mode
	return &cp
}

// RunAll refreshes every asset the price reader knows about.
func (p *Pipeline) RunAll(ctx context.Context) (BatchResult, error) {
	assets, err := p.deps.Prices.ListAssets(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list assets: %w", err)
	}
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	return p.RunBatch(ctx, symbols), nil
}

// RunBatch refreshes assets concurrently, at most Concurrency at a time. A
// failing asset never affects its siblings; assets not yet started when ctx
// is cancelled are reported with ctx's error.
func (p *Pipeline) RunBatch(ctx context.Context, assets []string) BatchResult {
	br := BatchResult{Mode: p.opts.Mode, Started: p.now(), Results: make([]AssetResult, len(assets))}

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, asset := range assets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				br.Results[i] = AssetResult{Asset: asset, Mode: p.opts.Mode, Err: err}
				return nil
			}
			br.Results[i] = p.RunAsset(ctx, asset)
			return nil
		})
	}
	_ = g.Wait()

	br.Finished = p.now()
	for _, r := range br.Results {
		switch r.Status() {
		case model.JobSuccess:
			br.Succeeded++
		case model.JobPartial:
			br.Partial++
		default:
			br.Failed++
		}
	}
	if m := p.deps.Metrics; m != nil {
		m.RunDur.Observe(br.Finished.Sub(br.Started).Seconds())
		m.LastRun.Set(float64(br.Finished.Unix()))
	}
	p.log.InfoContext(ctx, "[pipeline] batch done",
		"mode", string(br.Mode), "assets", len(assets),
		"succeeded", br.Succeeded, "partial", br.Partial, "failed", br.Failed,
		"elapsed", br.Finished.Sub(br.Started))
	return br
}

// RunAsset refreshes a single asset and records the outcome in the job log.
func (p *Pipeline) RunAsset(ctx context.Context, asset string) AssetResult {
	started := p.now()
	res := p.runAsset(ctx, asset)
	res.Duration = p.now().Sub(started)

	p.record(ctx, res, started)
	return res
}

func (p *Pipeline) runAsset(ctx context.Context, asset string) AssetResult {
	res := AssetResult{Asset: asset, Mode: p.opts.Mode}

	var (
		series *indicator.Series
		after  time.Time
		seed   *model.IndicatorSnapshot
	)
	revs, _ := p.deps.Prices.(model.PriceRevisionReader)
	if p.opts.Mode == ModeIncremental {
		result := "cold"
		series, res.Restored = p.deps.Restorer.Load(ctx, asset)
		if res.Restored && revs != nil {
			// A price written at or before the checkpoint after it was
			// taken means a correction: recompute from the full history.
			rev, err := revs.PriceRevision(ctx, asset, series.LastTS())
			if err != nil {
				res.Err = fmt.Errorf("price revision %s: %w", asset, err)
				return res
			}
			if rev > series.PriceRevision() {
				p.log.InfoContext(ctx, "prices corrected behind checkpoint, recomputing",
					"asset", asset, "checkpoint_ts", series.LastTS(),
					"checkpoint_rev", series.PriceRevision(), "rev", rev)
				series, res.Restored = p.engine.NewSeries(asset), false
				result = "invalidated"
			}
		}
		if res.Restored {
			result = "restored"
			after = series.LastTS()
			seed = series.Last()
		}
		if m := p.deps.Metrics; m != nil && p.deps.Restorer.Enabled() {
			m.CheckpointHits.WithLabelValues(result).Inc()
		}
	} else {
		series = p.engine.NewSeries(asset)
	}

	// Taken before the read, so a write racing the read shows up as a
	// newer revision next run.
	var readRev int64
	if revs != nil {
		rev, err := revs.PriceRevision(ctx, asset, time.Time{})
		if err != nil {
			res.Err = fmt.Errorf("price revision %s: %w", asset, err)
			return res
		}
		readRev = rev
	}

	points, err := p.deps.Prices.ReadPrices(ctx, asset, after)
	if err != nil {
		res.Err = fmt.Errorf("read prices %s: %w", asset, err)
		return res
	}
	res.Points = len(points)
	if len(points) == 0 {
		if !res.Restored {
			res.Err = fmt.Errorf("%s: %w", asset, indicator.ErrEmptySeries)
		}
		return res
	}

	snaps, err := series.PushAll(points)
	if err != nil {
		res.Err = err
		return res
	}
	if err := series.Complete(); err != nil {
		if !errors.Is(err, indicator.ErrInsufficientHistory) {
			res.Err = err
			return res
		}
		res.Partial = true
		p.log.WarnContext(ctx, "insufficient history", "asset", asset, "error", err)
	}
	res.Snapshots = len(snaps)

	events, err := p.detect(seed, snaps)
	if err != nil {
		res.Err = err
		return res
	}
	res.Events = pattern.WithContext(events, p.opts.Context)

	if p.deps.Indicators != nil && len(snaps) > 0 {
		if err := p.deps.Indicators.UpsertSnapshots(ctx, snaps); err != nil {
			res.Err = fmt.Errorf("write snapshots %s: %w", asset, err)
			return res
		}
	}
	if p.deps.Events != nil && len(res.Events) > 0 {
		if err := p.deps.Events.AppendEvents(ctx, res.Events); err != nil {
			res.Err = fmt.Errorf("write events %s: %w", asset, err)
			return res
		}
	}
	p.alert(ctx, &res, snaps)

	if revs != nil {
		series.SetPriceRevision(readRev)
	}

	// The checkpoint advances only once every sink accepted the batch, so a
	// failed run is recomputed next time. Event IDs make the replay
	// idempotent.
	if err := p.deps.Restorer.Save(ctx, series); err != nil {
		p.log.WarnContext(ctx, "checkpoint save failed", "asset", asset, "error", err)
		if m := p.deps.Metrics; m != nil {
			m.SinkErrors.WithLabelValues("checkpoint").Inc()
		}
	}
	return res
}

// detect applies the detector to the snapshots produced by one run. Full
// mode looks at the final pair unless ScanHistory is set; incremental mode
// evaluates every new snapshot against its predecessor, the first one
// against the checkpoint's last snapshot.
func (p *Pipeline) detect(seed *model.IndicatorSnapshot, snaps []model.IndicatorSnapshot) ([]model.PatternEvent, error) {
	if len(snaps) == 0 {
		return nil, nil
	}
	if p.opts.Mode == ModeIncremental || p.opts.ScanHistory {
		return p.detector.Scan(seed, snaps)
	}
	n := len(snaps)
	var prev *model.IndicatorSnapshot
	if n >= 2 {
		prev = &snaps[n-2]
	}
	return p.detector.Detect(prev, snaps[n-1])
}

// alert hands the run's notifiable events to the alert sink. A run that did
// not resume from a checkpoint alerts only on events at its newest snapshot.
func (p *Pipeline) alert(ctx context.Context, res *AssetResult, snaps []model.IndicatorSnapshot) {
	if p.deps.Alerts == nil || len(res.Events) == 0 {
		return
	}
	events := res.Events
	if !res.Restored {
		latest := snaps[len(snaps)-1].TS
		events = nil
		for _, ev := range res.Events {
			if ev.DetectedAt.Equal(latest) {
				events = append(events, ev)
			}
		}
	}
	if len(events) == 0 {
		return
	}
	res.Alerted = len(events)
	if err := p.deps.Alerts.AppendEvents(ctx, events); err != nil {
		p.log.WarnContext(ctx, "alert delivery failed", "asset", res.Asset, "error", err)
		if m := p.deps.Metrics; m != nil {
			m.SinkErrors.WithLabelValues("alerts").Inc()
		}
	}
}

func (p *Pipeline) record(ctx context.Context, res AssetResult, started time.Time) {
	status := res.Status()
	log := p.log.With("asset", res.Asset, "mode", string(res.Mode), "status", status)
	switch status {
	case model.JobFailed:
		log.ErrorContext(ctx, "asset failed", "error", res.Err)
	default:
		log.DebugContext(ctx, "asset done", "points", res.Points, "snapshots", res.Snapshots,
			"events", len(res.Events), "restored", res.Restored, "elapsed", res.Duration)
	}

	if m := p.deps.Metrics; m != nil {
		m.AssetsProcessed.WithLabelValues(status).Inc()
		m.ComputeDur.Observe(res.Duration.Seconds())
		m.PointsTotal.Add(float64(res.Points))
		m.SnapshotsTotal.Add(float64(res.Snapshots))
		for _, ev := range res.Events {
			m.PatternEvents.WithLabelValues(string(ev.Kind)).Inc()
		}
	}

	if p.deps.Jobs == nil {
		return
	}
	run := model.JobRun{
		Asset:         res.Asset,
		Job:           p.opts.Job,
		Mode:          string(res.Mode),
		Status:        status,
		RowsProcessed: res.Snapshots,
		StartedAt:     started,
		FinishedAt:    started.Add(res.Duration),
	}
	if res.Err != nil {
		run.RowsFailed = res.Points
		run.Error = res.Err.Error()
	} else if res.Partial {
		run.Error = indicator.ErrInsufficientHistory.Error()
	}
	// The job log outlives a cancelled batch.
	if err := p.deps.Jobs.LogJob(context.WithoutCancel(ctx), run); err != nil {
		log.WarnContext(ctx, "job log write failed", "error", err)
	}
}
