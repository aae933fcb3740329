package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

const (
	defaultLatestTTL     = 72 * time.Hour
	defaultCheckpointTTL = 7 * 24 * time.Hour
	defaultStreamMaxLen  = 10000
)

// Config configures the Redis store.
type Config struct {
	Addr          string
	Password      string
	DB            int
	LatestTTL     time.Duration // TTL of ind:latest:{asset}
	CheckpointTTL time.Duration // TTL of ckpt:{asset}
	StreamMaxLen  int64         // approximate MAXLEN of the pattern stream
}

func (c *Config) applyDefaults() {
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
	if c.CheckpointTTL <= 0 {
		c.CheckpointTTL = defaultCheckpointTTL
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = defaultStreamMaxLen
	}
}

// Key layout:
//
//	ind:latest:{asset}   newest IndicatorSnapshot as JSON (SET + TTL)
//	ckpt:{asset}         engine checkpoint JSON (SET + TTL)
//	stream:patterns      every PatternEvent, field "data" (XADD, MAXLEN ~)
//	pub:pattern:{asset}  PUBLISH channel per asset
const (
	patternStream = "stream:patterns"
)

func latestKey(asset string) string     { return "ind:latest:" + asset }
func checkpointKey(asset string) string { return "ckpt:" + asset }
func patternChannel(asset string) string {
	return "pub:pattern:" + asset
}

// Store caches the latest snapshot per asset, keeps engine checkpoints and
// streams pattern events. It is a cache beside the SQL stores, never the
// system of record.
type Store struct {
	client *goredis.Client
	cfg    Config
	log    *slog.Logger
}

var (
	_ model.IndicatorWriter = (*Store)(nil)
	_ model.IndicatorReader = (*Store)(nil)
	_ model.PatternWriter   = (*Store)(nil)
	_ model.CheckpointStore = (*Store)(nil)
)

// New connects and pings Redis.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	cfg.applyDefaults()
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log = log.With("component", "redis")
	log.Info("[redis] connected", "addr", cfg.Addr)
	return &Store{client: client, cfg: cfg, log: log}, nil
}

// Client exposes the underlying client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// UpsertSnapshots stores the newest snapshot of each asset in the batch.
// Older snapshots in the batch are skipped; the SQL stores keep history.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []model.IndicatorSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	newest := make(map[string]int, 1)
	order := make([]string, 0, 1)
	for i := range snaps {
		j, ok := newest[snaps[i].Asset]
		if !ok {
			order = append(order, snaps[i].Asset)
			newest[snaps[i].Asset] = i
			continue
		}
		if snaps[i].TS.After(snaps[j].TS) {
			newest[snaps[i].Asset] = i
		}
	}

	pipe := s.client.Pipeline()
	for _, asset := range order {
		snap := &snaps[newest[asset]]
		pipe.Set(ctx, latestKey(asset), snap.JSON(), s.cfg.LatestTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis snapshot pipeline (%d assets): %w", len(order), err)
	}
	return nil
}

// AppendEvents XADDs each event to the pattern stream and publishes it on
// the asset's channel, in one pipeline.
func (s *Store) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for i := range events {
		ev := &events[i]
		data := string(ev.JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: patternStream,
			MaxLen: s.cfg.StreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"id":   ev.ID.String(),
				"kind": string(ev.Kind),
				"data": data,
			},
		})
		pipe.Publish(ctx, patternChannel(ev.Asset), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis event pipeline (%d events): %w", len(events), err)
	}
	return nil
}

// SaveCheckpoint stores the engine checkpoint with the configured TTL.
func (s *Store) SaveCheckpoint(ctx context.Context, asset string, data []byte) error {
	if err := s.client.Set(ctx, checkpointKey(asset), data, s.cfg.CheckpointTTL).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", checkpointKey(asset), err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
