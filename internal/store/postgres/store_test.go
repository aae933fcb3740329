package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
	"github.com/cagdasatacanf-arch/Depo-Data/internal/store"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func seedAsset(t *testing.T, s *Store, symbol string) {
	t.Helper()
	require.NoError(t, s.UpsertAsset(context.Background(), model.Asset{
		Symbol: symbol, Name: symbol + " Inc", Type: model.AssetEquity, Market: "NASDAQ", Currency: "USD",
	}))
}

func TestStore_PricesUpsertAndRead(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedAsset(t, s, "AAPL")

	pts := []model.PricePoint{
		{Asset: "AAPL", TS: day0.AddDate(0, 0, 1), Close: decimal.RequireFromString("181.5")},
		{Asset: "AAPL", TS: day0, Open: nd("180"), High: nd("182.25"), Low: nd("179.75"), Close: decimal.RequireFromString("181"), Volume: 5_000_000},
	}
	require.NoError(t, s.UpsertPrices(ctx, pts))

	got, err := s.ReadPrices(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].TS.Equal(day0))
	assert.True(t, got[0].High.Decimal.Equal(decimal.RequireFromString("182.25")))
	assert.False(t, got[1].Open.Valid)
	assert.Equal(t, int64(5_000_000), got[0].Volume)

	after, err := s.ReadPrices(ctx, "AAPL", day0)
	require.NoError(t, err)
	assert.Len(t, after, 1)

	pts[0].Close = decimal.RequireFromString("182")
	require.NoError(t, s.UpsertPrices(ctx, pts[:1]))
	got, err = s.ReadPrices(ctx, "AAPL", day0)
	require.NoError(t, err)
	assert.True(t, got[0].Close.Equal(decimal.NewFromInt(182)))
}

func TestStore_PriceRevision(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedAsset(t, s, "AAPL")

	rev, err := s.PriceRevision(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, rev)

	pts := []model.PricePoint{
		{Asset: "AAPL", TS: day0, Close: decimal.NewFromInt(180)},
		{Asset: "AAPL", TS: day0.AddDate(0, 0, 1), Close: decimal.NewFromInt(181)},
	}
	require.NoError(t, s.UpsertPrices(ctx, pts[:1]))
	base, err := s.PriceRevision(ctx, "AAPL", day0)
	require.NoError(t, err)
	require.Positive(t, base)

	require.NoError(t, s.UpsertPrices(ctx, pts[1:]))
	rev, err = s.PriceRevision(ctx, "AAPL", day0)
	require.NoError(t, err)
	assert.Equal(t, base, rev, "appending later rows keeps the revision")

	pts[0].Close = decimal.NewFromInt(179)
	require.NoError(t, s.UpsertPrices(ctx, pts[:1]))
	rev, err = s.PriceRevision(ctx, "AAPL", day0)
	require.NoError(t, err)
	assert.Greater(t, rev, base, "a correction raises the revision")
}

func TestStore_UnknownAsset(t *testing.T) {
	s := NewStore(setupTestDB(t))
	err := s.UpsertPrices(context.Background(), []model.PricePoint{
		{Asset: "NOPE", TS: day0, Close: decimal.NewFromInt(1)},
	})
	require.ErrorIs(t, err, store.ErrUnknownAsset)
}

func TestStore_SnapshotsAndEvents(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedAsset(t, s, "MSFT")

	snaps := []model.IndicatorSnapshot{
		{Asset: "MSFT", TS: day0, SMA50: nd("400"), SMA200: nd("401")},
		{Asset: "MSFT", TS: day0.AddDate(0, 0, 1), SMA50: nd("402.12345678"), SMA200: nd("401")},
	}
	require.NoError(t, s.UpsertSnapshots(ctx, snaps))
	require.NoError(t, s.UpsertSnapshots(ctx, snaps[1:]))

	latest, err := s.LatestSnapshot(ctx, "MSFT")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.SMA50.Decimal.Equal(decimal.RequireFromString("402.12345678")))
	assert.False(t, latest.RSI14.Valid)

	none, err := s.LatestSnapshot(ctx, "ZZZ")
	require.NoError(t, err)
	assert.Nil(t, none)

	ev := model.PatternEvent{
		ID:          model.NewEventID("MSFT", snaps[1].TS, model.PatternGoldenCross),
		Asset:       "MSFT",
		DetectedAt:  snaps[1].TS,
		Kind:        model.PatternGoldenCross,
		Confidence:  85,
		Description: "Golden Cross",
		Previous:    &snaps[0],
		Latest:      snaps[1],
		Context:     json.RawMessage(`{"source":"test"}`),
		Originator:  "itest",
	}
	require.NoError(t, s.AppendEvents(ctx, []model.PatternEvent{ev}))
	require.NoError(t, s.AppendEvents(ctx, []model.PatternEvent{ev}))

	events, err := s.ReadEvents(ctx, "MSFT")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.JSONEq(t, `{"source":"test"}`, string(events[0].Context))
	require.NotNil(t, events[0].Previous)
	assert.True(t, events[0].Previous.SMA200.Decimal.Equal(decimal.NewFromInt(401)))

	require.NoError(t, s.LogJob(ctx, model.JobRun{
		Asset: "MSFT", Job: "indicators", Mode: "full", Status: model.JobSuccess,
		RowsProcessed: 2, StartedAt: day0, FinishedAt: day0.Add(1500 * time.Millisecond),
	}))
}

func TestStore_ListAssets(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()
	seedAsset(t, s, "B")
	seedAsset(t, s, "A")

	assets, err := s.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "A", assets[0].Symbol)
	assert.Equal(t, model.AssetEquity, assets[0].Type)
}
