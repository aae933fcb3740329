package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the pipeline from concrete storage
// (SQLite, Postgres, Redis, Kafka). Each implementation satisfies one or more.

// PriceReader reads price history.
type PriceReader interface {
	// ReadPrices returns points for asset with TS strictly after `after`,
	// ordered by ascending TS. A zero `after` reads the full history.
	ReadPrices(ctx context.Context, asset string, after time.Time) ([]PricePoint, error)

	// ListAssets returns the asset catalogue.
	ListAssets(ctx context.Context) ([]Asset, error)
}

// PriceRevisionReader is implemented by price stores that version their
// rows. Every write of a price row, insert or correction, stamps it with a
// revision larger than any before it.
type PriceRevisionReader interface {
	// PriceRevision returns the largest revision among asset's rows with
	// TS at or before through; a zero through covers every row. An asset
	// without rows has revision 0.
	PriceRevision(ctx context.Context, asset string, through time.Time) (int64, error)
}

// PriceWriter upserts price history keyed by (asset, ts).
type PriceWriter interface {
	UpsertAsset(ctx context.Context, a Asset) error
	UpsertPrices(ctx context.Context, points []PricePoint) error
}

// IndicatorWriter persists indicator snapshots, upserting on (asset, ts).
type IndicatorWriter interface {
	UpsertSnapshots(ctx context.Context, snaps []IndicatorSnapshot) error
}

// IndicatorReader reads persisted snapshots.
type IndicatorReader interface {
	// LatestSnapshot returns the newest snapshot for asset, or nil, nil.
	LatestSnapshot(ctx context.Context, asset string) (*IndicatorSnapshot, error)
}

// PatternWriter appends pattern events. Sinks never update or delete events.
type PatternWriter interface {
	AppendEvents(ctx context.Context, events []PatternEvent) error
}

// CheckpointStore reads and writes per-asset engine checkpoints as raw JSON.
// Using []byte avoids a model→indicator→model import cycle.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, asset string, data []byte) error

	// LoadCheckpoint returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, asset string) ([]byte, error)
}

// JobLogger records pipeline runs.
type JobLogger interface {
	LogJob(ctx context.Context, run JobRun) error
}
