package indicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Restorer resumes per-asset Series from checkpoints. Stores are tried in
// priority order (e.g. Redis → SQLite); when none holds a usable checkpoint
// the asset cold-starts from its full history.
type Restorer struct {
	engine *Engine
	stores []model.CheckpointStore
	log    *slog.Logger
}

// NewRestorer creates a Restorer over the given stores, highest priority first.
func NewRestorer(engine *Engine, log *slog.Logger, stores ...model.CheckpointStore) *Restorer {
	return &Restorer{engine: engine, stores: stores, log: log.With("component", "restorer")}
}

// Load returns the checkpointed Series for asset and restored=true, or a
// fresh Series and restored=false. Unreadable or stale checkpoints fall
// through to the next store.
func (r *Restorer) Load(ctx context.Context, asset string) (s *Series, restored bool) {
	for i, store := range r.stores {
		data, err := store.LoadCheckpoint(ctx, asset)
		if err != nil {
			r.log.Warn("checkpoint read failed", "asset", asset, "store", i, "error", err)
			continue
		}
		if data == nil {
			continue
		}
		s, err := RestoreSeries(data, r.engine.Params())
		if err != nil {
			r.log.Warn("checkpoint discarded", "asset", asset, "store", i, "error", err)
			continue
		}
		if s.Asset() != asset {
			r.log.Warn("checkpoint discarded", "asset", asset, "store", i,
				"error", &model.MismatchedAssetError{Expected: asset, Got: s.Asset()})
			continue
		}
		return s, true
	}
	return r.engine.NewSeries(asset), false
}

// Save writes the Series checkpoint to every store. All stores are
// attempted; failures are joined.
func (r *Restorer) Save(ctx context.Context, s *Series) error {
	if len(r.stores) == 0 {
		return nil
	}
	data, err := s.Checkpoint()
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.Asset(), err)
	}
	var errs []error
	for _, store := range r.stores {
		if err := store.SaveCheckpoint(ctx, s.Asset(), data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Enabled reports whether any checkpoint store is configured.
func (r *Restorer) Enabled() bool { return len(r.stores) > 0 }
