package redis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// setupTestStore starts a Redis container. Skipped in -short mode or when
// Docker is unavailable.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	s, err := New(Config{Addr: addr, StreamMaxLen: 100}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LatestSnapshotKeepsNewest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	miss, err := s.LatestSnapshot(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, miss)

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	snaps := []model.IndicatorSnapshot{
		{Asset: "AAPL", TS: d2, EMA12: decimal.NewNullDecimal(decimal.RequireFromString("187.25"))},
		{Asset: "AAPL", TS: d1, EMA12: decimal.NewNullDecimal(decimal.RequireFromString("186.5"))},
		{Asset: "GLD", TS: d1},
	}
	require.NoError(t, s.UpsertSnapshots(ctx, snaps))

	got, err := s.LatestSnapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.TS.Equal(d2))
	assert.True(t, got.EMA12.Decimal.Equal(decimal.RequireFromString("187.25")))
	assert.False(t, got.SMA200.Valid)

	gld, err := s.LatestSnapshot(ctx, "GLD")
	require.NoError(t, err)
	require.NotNil(t, gld)
}

func TestStore_CheckpointRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	data, err := s.LoadCheckpoint(ctx, "SLV")
	require.NoError(t, err)
	assert.Nil(t, data)

	want := []byte(`{"version":1,"asset":"SLV"}`)
	require.NoError(t, s.SaveCheckpoint(ctx, "SLV", want))
	got, err := s.LoadCheckpoint(ctx, "SLV")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ttl, err := s.Client().TTL(ctx, checkpointKey("SLV")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStore_AppendEventsAndRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.Client().Subscribe(ctx, patternChannel("GLD"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	events := []model.PatternEvent{event("GLD", 1), event("GLD", 2), event("GLD", 3)}
	require.NoError(t, s.AppendEvents(ctx, events))

	recent, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, events[1].ID, recent[0].ID)
	assert.Equal(t, events[2].ID, recent[1].ID)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, events[0].ID.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no pubsub message")
	}
}
