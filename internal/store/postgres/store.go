package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/store"
)

// Store implements the price, indicator, pattern and job-log ports on the
// markets.* schema. Rows reference assets by asset_id; callers use symbols.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface checks.
var (
	_ model.PriceReader         = (*Store)(nil)
	_ model.PriceRevisionReader = (*Store)(nil)
	_ model.PriceWriter         = (*Store)(nil)
	_ model.IndicatorWriter     = (*Store)(nil)
	_ model.IndicatorReader     = (*Store)(nil)
	_ model.PatternWriter       = (*Store)(nil)
	_ model.JobLogger           = (*Store)(nil)
)

var indicatorColumns = func() []string {
	var cols []string
	for _, f := range (&model.IndicatorSnapshot{}).Fields() {
		cols = append(cols, f.Name)
	}
	return cols
}()

// UpsertAsset inserts or updates a catalogue entry keyed by symbol.
func (s *Store) UpsertAsset(ctx context.Context, a model.Asset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets.assets (symbol, asset_name, asset_type, market, currency, sector)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (symbol) DO UPDATE SET
			asset_name = EXCLUDED.asset_name,
			asset_type = EXCLUDED.asset_type,
			market = EXCLUDED.market,
			currency = EXCLUDED.currency,
			sector = EXCLUDED.sector
	`, a.Symbol, a.Name, string(a.Type), a.Market, a.Currency, a.Sector)
	if err != nil {
		return fmt.Errorf("upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

// UpsertPrices writes points atomically, updating rows with the same
// (asset, ts). Inserted and updated rows take a fresh revision. Points for symbols missing from the catalogue fail the batch.
func (s *Store) UpsertPrices(ctx context.Context, points []model.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	query := `
		INSERT INTO markets.daily_prices (asset_id, ts, open_price, high_price, low_price, close_price, volume)
		SELECT a.asset_id, $2::timestamptz, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::bigint
		FROM markets.assets a WHERE a.symbol = $1
		ON CONFLICT (asset_id, ts) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume,
			rev = nextval('markets.price_rev_seq')
	`
	return s.inTx(ctx, "upsert prices", len(points), func(tx pgx.Tx, i int) error {
		p := points[i]
		tag, err := tx.Exec(ctx, query, p.Asset, p.TS, p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", store.ErrUnknownAsset, p.Asset)
		}
		return nil
	})
}

// UpsertSnapshots writes snapshots atomically, overwriting every indicator
// column of an existing (asset, ts) row.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []model.IndicatorSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	var params, updates []string
	for i, c := range indicatorColumns {
		params = append(params, fmt.Sprintf("$%d::numeric", i+3))
		updates = append(updates, c+" = EXCLUDED."+c)
	}
	query := `
		INSERT INTO markets.technical_indicators (asset_id, ts, ` + strings.Join(indicatorColumns, ", ") + `)
		SELECT a.asset_id, $2::timestamptz, ` + strings.Join(params, ", ") + ` FROM markets.assets a WHERE a.symbol = $1
		ON CONFLICT (asset_id, ts) DO UPDATE SET ` + strings.Join(updates, ", ") + `, updated_at = NOW()`

	return s.inTx(ctx, "upsert indicators", len(snaps), func(tx pgx.Tx, i int) error {
		snap := &snaps[i]
		args := []any{snap.Asset, snap.TS}
		for _, f := range snap.Fields() {
			args = append(args, f.Value)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", store.ErrUnknownAsset, snap.Asset)
		}
		return nil
	})
}

// AppendEvents inserts events; an existing event ID is left untouched.
func (s *Store) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	if len(events) == 0 {
		return nil
	}
	query := `
		INSERT INTO markets.pattern_events
			(event_id, asset_id, detected_at, kind, confidence, description, previous, latest, context, originator)
		SELECT $1::uuid, a.asset_id, $3::timestamptz, $4::text, $5::smallint, $6::text, $7::jsonb, $8::jsonb, $9::jsonb, $10::text
		FROM markets.assets a WHERE a.symbol = $2
		ON CONFLICT (event_id) DO NOTHING
	`
	return s.inTx(ctx, "append events", len(events), func(tx pgx.Tx, i int) error {
		ev := events[i]
		var prev, evCtx any
		if ev.Previous != nil {
			prev = ev.Previous.JSON()
		}
		if len(ev.Context) > 0 {
			evCtx = []byte(ev.Context)
		}
		_, err := tx.Exec(ctx, query, ev.ID, ev.Asset, ev.DetectedAt, string(ev.Kind), ev.Confidence,
			ev.Description, prev, ev.Latest.JSON(), evCtx, ev.Originator)
		return err
	})
}

// LogJob appends an etl_logs row. Unknown symbols are logged with a NULL asset.
func (s *Store) LogJob(ctx context.Context, run model.JobRun) error {
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets.etl_logs
			(asset_id, job_name, job_type, status, rows_processed, rows_failed, error_message,
			 started_at, completed_at, duration_seconds)
		VALUES ((SELECT asset_id FROM markets.assets WHERE symbol = $1), $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, run.Asset, run.Job, run.Mode, run.Status, run.RowsProcessed, run.RowsFailed, errMsg,
		run.StartedAt, run.FinishedAt, run.FinishedAt.Sub(run.StartedAt).Seconds())
	if err != nil {
		return fmt.Errorf("log job: %w", err)
	}
	return nil
}

// ReadPrices returns points for asset with ts strictly after `after`,
// ascending.
func (s *Store) ReadPrices(ctx context.Context, asset string, after time.Time) ([]model.PricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.symbol, p.ts, p.open_price, p.high_price, p.low_price, p.close_price, COALESCE(p.volume, 0)
		FROM markets.daily_prices p
		JOIN markets.assets a ON a.asset_id = p.asset_id
		WHERE a.symbol = $1 AND ($2::timestamptz IS NULL OR p.ts > $2)
		ORDER BY p.ts ASC
	`, asset, nullTime(after))
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Asset, &p.TS, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.TS = p.TS.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// PriceRevision returns the largest row revision for asset at or before
// through (every row when through is zero).
func (s *Store) PriceRevision(ctx context.Context, asset string, through time.Time) (int64, error) {
	var rev int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(p.rev), 0)
		FROM markets.daily_prices p
		JOIN markets.assets a ON a.asset_id = p.asset_id
		WHERE a.symbol = $1 AND ($2::timestamptz IS NULL OR p.ts <= $2)
	`, asset, nullTime(through)).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("query price revision: %w", err)
	}
	return rev, nil
}

// ListAssets returns the active catalogue ordered by symbol.
func (s *Store) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, asset_name, asset_type, COALESCE(market, ''), COALESCE(currency, ''), COALESCE(sector, '')
		FROM markets.assets WHERE is_active ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var a model.Asset
		var typ string
		if err := rows.Scan(&a.Symbol, &a.Name, &typ, &a.Market, &a.Currency, &a.Sector); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.Type = model.AssetType(typ)
		out = append(out, a)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest snapshot for asset, or nil, nil.
func (s *Store) LatestSnapshot(ctx context.Context, asset string) (*model.IndicatorSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT a.symbol, t.ts, t.`+strings.Join(indicatorColumns, ", t.")+`
		FROM markets.technical_indicators t
		JOIN markets.assets a ON a.asset_id = t.asset_id
		WHERE a.symbol = $1
		ORDER BY t.ts DESC LIMIT 1
	`, asset)

	var snap model.IndicatorSnapshot
	vals := make([]decimal.NullDecimal, len(indicatorColumns))
	dest := []any{&snap.Asset, &snap.TS}
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	if err := row.Scan(dest...); err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot %s: %w", asset, err)
	}
	snap.TS = snap.TS.UTC()
	snap.SMA20, snap.SMA50, snap.SMA200 = vals[0], vals[1], vals[2]
	snap.EMA12, snap.EMA26, snap.RSI14 = vals[3], vals[4], vals[5]
	snap.MACD, snap.MACDSignal = vals[6], vals[7]
	snap.BBUpper, snap.BBMiddle, snap.BBLower = vals[8], vals[9], vals[10]
	snap.ATR14 = vals[11]
	return &snap, nil
}

// ReadEvents returns stored events for asset in detection order.
func (s *Store) ReadEvents(ctx context.Context, asset string) ([]model.PatternEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.event_id, a.symbol, e.detected_at, e.kind, e.confidence, e.description,
		       e.previous, e.latest, e.context, e.originator
		FROM markets.pattern_events e
		JOIN markets.assets a ON a.asset_id = e.asset_id
		WHERE a.symbol = $1
		ORDER BY e.detected_at ASC, e.created_at ASC
	`, asset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.PatternEvent
	for rows.Next() {
		var ev model.PatternEvent
		var kind string
		var prev, latest, evCtx []byte
		if err := rows.Scan(&ev.ID, &ev.Asset, &ev.DetectedAt, &kind, &ev.Confidence, &ev.Description,
			&prev, &latest, &evCtx, &ev.Originator); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = model.PatternKind(kind)
		ev.DetectedAt = ev.DetectedAt.UTC()
		if err := json.Unmarshal(latest, &ev.Latest); err != nil {
			return nil, fmt.Errorf("decode latest snapshot: %w", err)
		}
		if prev != nil {
			ev.Previous = &model.IndicatorSnapshot{}
			if err := json.Unmarshal(prev, ev.Previous); err != nil {
				return nil, fmt.Errorf("decode previous snapshot: %w", err)
			}
		}
		if evCtx != nil {
			ev.Context = evCtx
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, op string, n int, exec func(pgx.Tx, int) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback(ctx)

	for i := 0; i < n; i++ {
		if err := exec(tx, i); err != nil {
			return fmt.Errorf("%s: row %d: %w", op, i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit tx: %w", op, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
