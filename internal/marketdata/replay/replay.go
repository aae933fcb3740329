// Package replay reads one asset's stored price history and emits it point
// by point at a configurable speed, for backtesting the engine and detector
// without waiting for new data.
package replay

import (
	"context"
	"log/slog"
	"time"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// MaxGap caps the sleep between two points regardless of speed.
const MaxGap = 5 * time.Second

// Replayer emits historical price points from a PriceReader.
type Replayer struct {
	reader model.PriceReader
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by reader.
func New(reader model.PriceReader, log *slog.Logger) *Replayer {
	return &Replayer{reader: reader, log: log.With("component", "replay"), sleep: sleepCtx}
}

// Run replays asset's points after from (zero = all) into out, in timestamp
// order. speed scales the real gap between points: 86400 plays one day per
// second, 0 emits as fast as the consumer reads. out is not closed.
func (r *Replayer) Run(ctx context.Context, asset string, from time.Time, speed float64, out chan<- model.PricePoint) (int, error) {
	points, err := r.reader.ReadPrices(ctx, asset, from)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		r.log.Info("[replay] no points found", "asset", asset)
		return 0, nil
	}
	r.log.Info("[replay] loaded points", "asset", asset, "points", len(points), "speed", speed)

	var prevTS time.Time
	emitted := 0
	for _, p := range points {
		if speed > 0 && !prevTS.IsZero() {
			if err := r.sleep(ctx, Gap(p.TS.Sub(prevTS), speed)); err != nil {
				return emitted, err
			}
		}
		prevTS = p.TS

		select {
		case <-ctx.Done():
			r.log.Info("[replay] cancelled", "asset", asset, "emitted", emitted)
			return emitted, ctx.Err()
		case out <- p:
			emitted++
		}
	}

	r.log.Info("[replay] completed", "asset", asset, "emitted", emitted)
	return emitted, nil
}

// Gap returns the scaled wait for a real gap, capped at MaxGap.
func Gap(real time.Duration, speed float64) time.Duration {
	if real <= 0 || speed <= 0 {
		return 0
	}
	scaled := time.Duration(float64(real) / speed)
	if scaled > MaxGap {
		scaled = MaxGap
	}
	return scaled
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
