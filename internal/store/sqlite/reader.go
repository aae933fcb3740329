package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// ReadPrices returns points for asset with ts strictly after `after`,
// ordered by ts ascending for correct replay order.
func (s *Store) ReadPrices(ctx context.Context, asset string, after time.Time) ([]model.PricePoint, error) {
	afterTS := int64(-1 << 62)
	if !after.IsZero() {
		afterTS = after.Unix()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, COALESCE(volume, 0)
		FROM daily_prices
		WHERE symbol = ? AND ts > ?
		ORDER BY ts ASC
	`, asset, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query daily_prices: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var ts int64
		if err := rows.Scan(&p.Asset, &ts, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan daily_prices: %w", err)
		}
		p.TS = time.Unix(ts, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// PriceRevision returns the largest row revision for asset at or before
// through (every row when through is zero).
func (s *Store) PriceRevision(ctx context.Context, asset string, through time.Time) (int64, error) {
	throughTS := int64(1 << 62)
	if !through.IsZero() {
		throughTS = through.Unix()
	}
	var rev int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(rev), 0) FROM daily_prices WHERE symbol = ? AND ts <= ?`,
		asset, throughTS).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("sqlite price revision %s: %w", asset, err)
	}
	return rev, nil
}

// ListAssets returns the active catalogue ordered by symbol.
func (s *Store) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, asset_type, COALESCE(market, ''), COALESCE(currency, ''), COALESCE(sector, '')
		FROM assets WHERE is_active = 1 ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query assets: %w", err)
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var a model.Asset
		var typ string
		if err := rows.Scan(&a.Symbol, &a.Name, &typ, &a.Market, &a.Currency, &a.Sector); err != nil {
			return nil, fmt.Errorf("sqlite scan assets: %w", err)
		}
		a.Type = model.AssetType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot for asset, or nil, nil.
func (s *Store) LatestSnapshot(ctx context.Context, asset string) (*model.IndicatorSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, ts, `+strings.Join(indicatorColumns, ", ")+`
		FROM technical_indicators
		WHERE symbol = ?
		ORDER BY ts DESC LIMIT 1
	`, asset)

	var snap model.IndicatorSnapshot
	var ts int64
	vals := make([]decimal.NullDecimal, len(indicatorColumns))
	dest := []any{&snap.Asset, &ts}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite latest snapshot %s: %w", asset, err)
	}
	snap.TS = time.Unix(ts, 0).UTC()
	snap.SMA20, snap.SMA50, snap.SMA200 = vals[0], vals[1], vals[2]
	snap.EMA12, snap.EMA26, snap.RSI14 = vals[3], vals[4], vals[5]
	snap.MACD, snap.MACDSignal = vals[6], vals[7]
	snap.BBUpper, snap.BBMiddle, snap.BBLower = vals[8], vals[9], vals[10]
	snap.ATR14 = vals[11]
	return &snap, nil
}

// ReadEvents returns stored events for asset in detection order.
func (s *Store) ReadEvents(ctx context.Context, asset string) ([]model.PatternEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, detected_at, kind, confidence, description, previous, latest, context, originator
		FROM pattern_events
		WHERE symbol = ?
		ORDER BY detected_at ASC, rowid ASC
	`, asset)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pattern_events: %w", err)
	}
	defer rows.Close()

	var out []model.PatternEvent
	for rows.Next() {
		var ev model.PatternEvent
		var detected int64
		var kind, latest string
		var prev, evCtx sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Asset, &detected, &kind, &ev.Confidence, &ev.Description,
			&prev, &latest, &evCtx, &ev.Originator); err != nil {
			return nil, fmt.Errorf("sqlite scan pattern_events: %w", err)
		}
		ev.DetectedAt = time.Unix(detected, 0).UTC()
		ev.Kind = model.PatternKind(kind)
		l, err := decodeSnapshot(latest)
		if err != nil {
			return nil, fmt.Errorf("decode latest snapshot: %w", err)
		}
		ev.Latest = *l
		if prev.Valid {
			if ev.Previous, err = decodeSnapshot(prev.String); err != nil {
				return nil, fmt.Errorf("decode previous snapshot: %w", err)
			}
		}
		if evCtx.Valid {
			ev.Context = []byte(evCtx.String)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LoadCheckpoint returns the stored checkpoint for asset, or nil, nil.
func (s *Store) LoadCheckpoint(ctx context.Context, asset string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM engine_checkpoints WHERE symbol = ?`, asset).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load checkpoint %s: %w", asset, err)
	}
	return []byte(data), nil
}

// CountJobs returns the number of etl_logs rows for asset with status.
func (s *Store) CountJobs(ctx context.Context, asset, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM etl_logs WHERE symbol = ? AND status = ?`, asset, status).Scan(&n)
	return n, err
}
