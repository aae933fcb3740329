package replay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

type fakeReader struct {
	points []model.PricePoint
	after  time.Time
}

func (f *fakeReader) ReadPrices(_ context.Context, asset string, after time.Time) ([]model.PricePoint, error) {
	f.after = after
	var out []model.PricePoint
	for _, p := range f.points {
		if p.Asset == asset && p.TS.After(after) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeReader) ListAssets(context.Context) ([]model.Asset, error) { return nil, nil }

func days(asset string, n int) []model.PricePoint {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	out := make([]model.PricePoint, n)
	for i := range out {
		out[i] = model.PricePoint{Asset: asset, TS: start.AddDate(0, 0, i), Close: decimal.NewFromInt(int64(100 + i))}
	}
	return out
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunEmitsInOrder(t *testing.T) {
	reader := &fakeReader{points: append(days("GLD", 5), days("SLV", 3)...)}
	r := New(reader, quiet())

	out := make(chan model.PricePoint, 10)
	n, err := r.Run(context.Background(), "GLD", time.Time{}, 0, out)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	close(out)

	var prev time.Time
	for p := range out {
		assert.Equal(t, "GLD", p.Asset)
		assert.True(t, p.TS.After(prev))
		prev = p.TS
	}
}

func TestRunFrom(t *testing.T) {
	pts := days("GLD", 5)
	reader := &fakeReader{points: pts}
	out := make(chan model.PricePoint, 10)

	n, err := New(reader, quiet()).Run(context.Background(), "GLD", pts[2].TS, 0, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, pts[2].TS, reader.after)
}

func TestRunPacing(t *testing.T) {
	reader := &fakeReader{points: days("GLD", 4)}
	r := New(reader, quiet())

	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	out := make(chan model.PricePoint, 10)
	_, err := r.Run(context.Background(), "GLD", time.Time{}, 86400, out)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, slept)
}

func TestRunCancelled(t *testing.T) {
	reader := &fakeReader{points: days("GLD", 5)}
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.PricePoint) // unbuffered: nobody reads

	cancel()
	n, err := New(reader, quiet()).Run(ctx, "GLD", time.Time{}, 0, out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestGap(t *testing.T) {
	assert.Equal(t, time.Duration(0), Gap(time.Hour, 0))
	assert.Equal(t, time.Duration(0), Gap(-time.Hour, 10))
	assert.Equal(t, time.Second, Gap(24*time.Hour, 86400))
	assert.Equal(t, MaxGap, Gap(30*24*time.Hour, 86400))
}
