package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/depo.db"
}

// Store persists prices, indicator snapshots, pattern events, engine
// checkpoints and job logs in a single SQLite file. Decimals are stored as
// TEXT so values round-trip exactly.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var (
	_ model.PriceReader         = (*Store)(nil)
	_ model.PriceRevisionReader = (*Store)(nil)
	_ model.PriceWriter         = (*Store)(nil)
	_ model.IndicatorWriter     = (*Store)(nil)
	_ model.IndicatorReader     = (*Store)(nil)
	_ model.PatternWriter       = (*Store)(nil)
	_ model.CheckpointStore     = (*Store)(nil)
	_ model.JobLogger           = (*Store)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers queue behind it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Store{db: db, log: log}, nil
}

// indicatorColumns lists technical_indicators value columns in snapshot order.
var indicatorColumns = func() []string {
	var cols []string
	for _, f := range (&model.IndicatorSnapshot{}).Fields() {
		cols = append(cols, f.Name)
	}
	return cols
}()

func createSchema(db *sql.DB) error {
	var ind strings.Builder
	for _, c := range indicatorColumns {
		ind.WriteString("\t\t\t" + c + " TEXT,\n")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS assets (
			symbol     TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			market     TEXT,
			currency   TEXT,
			sector     TEXT,
			is_active  INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   TEXT,
			high   TEXT,
			low    TEXT,
			close  TEXT    NOT NULL,
			volume INTEGER,
			rev    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ts)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_rev ON daily_prices (rev);

		CREATE TABLE IF NOT EXISTS technical_indicators (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
` + ind.String() + `
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS pattern_events (
			id          TEXT PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			detected_at INTEGER NOT NULL,
			kind        TEXT    NOT NULL,
			confidence  INTEGER NOT NULL,
			description TEXT    NOT NULL,
			previous    TEXT,
			latest      TEXT    NOT NULL,
			context     TEXT,
			originator  TEXT    NOT NULL,
			created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_pattern_events_symbol ON pattern_events (symbol, detected_at);

		CREATE TABLE IF NOT EXISTS engine_checkpoints (
			symbol     TEXT PRIMARY KEY,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS etl_logs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL,
			job            TEXT    NOT NULL,
			mode           TEXT,
			status         TEXT    NOT NULL,
			rows_processed INTEGER NOT NULL DEFAULT 0,
			rows_failed    INTEGER NOT NULL DEFAULT 0,
			error          TEXT,
			started_at     INTEGER NOT NULL,
			finished_at    INTEGER NOT NULL,
			duration_ms    INTEGER NOT NULL
		);
	`)
	return err
}

// UpsertAsset inserts or replaces a catalogue entry.
func (s *Store) UpsertAsset(ctx context.Context, a model.Asset) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (symbol, name, asset_type, market, currency, sector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name, asset_type = excluded.asset_type, market = excluded.market,
			currency = excluded.currency, sector = excluded.sector
	`, a.Symbol, a.Name, string(a.Type), a.Market, a.Currency, a.Sector)
	if err != nil {
		return fmt.Errorf("sqlite upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

// UpsertPrices writes points in a single transaction, replacing existing
// rows with the same (symbol, ts). Every written row gets a fresh revision.
func (s *Store) UpsertPrices(ctx context.Context, points []model.PricePoint) error {
	return s.inTx(ctx, `
		INSERT OR REPLACE INTO daily_prices (symbol, ts, open, high, low, close, volume, rev)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(rev), 0) + 1 FROM daily_prices))
	`, len(points), func(stmt *sql.Stmt, i int) error {
		p := points[i]
		_, err := stmt.ExecContext(ctx, p.Asset, p.TS.Unix(), p.Open, p.High, p.Low, p.Close, p.Volume)
		return err
	})
}

// UpsertSnapshots writes snapshots in a single transaction, replacing
// existing rows with the same (symbol, ts). Absent values are stored as NULL.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []model.IndicatorSnapshot) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(indicatorColumns)+2), ", ")
	query := `INSERT OR REPLACE INTO technical_indicators (symbol, ts, ` +
		strings.Join(indicatorColumns, ", ") + `) VALUES (` + placeholders + `)`

	return s.inTx(ctx, query, len(snaps), func(stmt *sql.Stmt, i int) error {
		snap := &snaps[i]
		args := []any{snap.Asset, snap.TS.Unix()}
		for _, f := range snap.Fields() {
			args = append(args, f.Value)
		}
		_, err := stmt.ExecContext(ctx, args...)
		return err
	})
}

// AppendEvents inserts events. An event whose ID already exists is left
// untouched, so re-running detection over the same pair is idempotent.
func (s *Store) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	return s.inTx(ctx, `
		INSERT OR IGNORE INTO pattern_events
			(id, symbol, detected_at, kind, confidence, description, previous, latest, context, originator)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(events), func(stmt *sql.Stmt, i int) error {
		ev := events[i]
		var prev sql.NullString
		if ev.Previous != nil {
			prev = sql.NullString{String: string(ev.Previous.JSON()), Valid: true}
		}
		var evCtx sql.NullString
		if len(ev.Context) > 0 {
			evCtx = sql.NullString{String: string(ev.Context), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, ev.ID.String(), ev.Asset, ev.DetectedAt.Unix(), string(ev.Kind),
			ev.Confidence, ev.Description, prev, string(ev.Latest.JSON()), evCtx, ev.Originator)
		return err
	})
}

// SaveCheckpoint stores the latest engine checkpoint for asset.
func (s *Store) SaveCheckpoint(ctx context.Context, asset string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO engine_checkpoints (symbol, data, updated_at) VALUES (?, ?, ?)
	`, asset, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite save checkpoint %s: %w", asset, err)
	}
	return nil
}

// LogJob appends a pipeline run record.
func (s *Store) LogJob(ctx context.Context, run model.JobRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_logs
			(symbol, job, mode, status, rows_processed, rows_failed, error, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Asset, run.Job, run.Mode, run.Status, run.RowsProcessed, run.RowsFailed,
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		run.StartedAt.Unix(), run.FinishedAt.Unix(), run.FinishedAt.Sub(run.StartedAt).Milliseconds())
	if err != nil {
		return fmt.Errorf("sqlite log job: %w", err)
	}
	return nil
}

// inTx prepares query once and executes it n times in one transaction.
func (s *Store) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite batch row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("committed batch", "rows", n, "took", time.Since(start))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeSnapshot(raw string) (*model.IndicatorSnapshot, error) {
	var snap model.IndicatorSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
