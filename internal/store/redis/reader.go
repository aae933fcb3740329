package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// LatestSnapshot returns the cached newest snapshot, or nil, nil on a miss.
func (s *Store) LatestSnapshot(ctx context.Context, asset string) (*model.IndicatorSnapshot, error) {
	raw, err := s.client.Get(ctx, latestKey(asset)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", latestKey(asset), err)
	}
	var snap model.IndicatorSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", latestKey(asset), err)
	}
	return &snap, nil
}

// LoadCheckpoint returns the cached checkpoint, or nil, nil on a miss.
func (s *Store) LoadCheckpoint(ctx context.Context, asset string) ([]byte, error) {
	raw, err := s.client.Get(ctx, checkpointKey(asset)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", checkpointKey(asset), err)
	}
	return raw, nil
}

// RecentEvents returns up to count events from the pattern stream, oldest
// first. Entries that fail to decode are skipped and logged.
func (s *Store) RecentEvents(ctx context.Context, count int64) ([]model.PatternEvent, error) {
	if count <= 0 {
		return nil, nil
	}
	msgs, err := s.client.XRevRangeN(ctx, patternStream, "+", "-", count).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", patternStream, err)
	}

	events := make([]model.PatternEvent, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var ev model.PatternEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.log.Warn("skipping undecodable stream entry", "id", msgs[i].ID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
