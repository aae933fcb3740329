package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/markethours"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	cal, err := markethours.New(markethours.DefaultConfig())
	require.NoError(t, err)
	return New(context.Background(), cal, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegister_RejectsBadSpecAndDuplicates(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("refresh", "0 30 17 * * 1-5", noop, true))
	assert.Error(t, s.Register("refresh", "0 30 17 * * 1-5", noop, true))
	assert.Error(t, s.Register("bad", "30 17 * *", noop, false))
}

func TestRun_GatedOnTradingDays(t *testing.T) {
	s := newTestScheduler(t)
	calls := 0
	job := func(context.Context) error { calls++; return nil }
	require.NoError(t, s.Register("refresh", "0 30 17 * * *", job, true))
	require.NoError(t, s.Register("always", "0 0 * * * *", job, false))

	var skipped []string
	s.OnSkip = func(name string) { skipped = append(skipped, name) }

	loc := s.cal.Location()
	s.now = func() time.Time { return time.Date(2026, 7, 3, 17, 30, 0, 0, loc) } // holiday
	s.run("refresh", s.jobs["refresh"])
	s.run("always", s.jobs["always"])
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"refresh"}, skipped)

	s.now = func() time.Time { return time.Date(2026, 7, 6, 17, 30, 0, 0, loc) }
	s.run("refresh", s.jobs["refresh"])
	assert.Equal(t, 2, calls)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(t)
	boom := errors.New("boom")
	require.NoError(t, s.Register("refresh", "0 30 17 * * *", func(context.Context) error { return boom }, true))

	assert.ErrorIs(t, s.RunNow("refresh"), boom)
	assert.Error(t, s.RunNow("missing"))
}

func TestNext_UsesCalendarZone(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register("refresh", "0 30 17 * * *", func(context.Context) error { return nil }, true))
	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return !s.Next("refresh").IsZero() }, time.Second, 5*time.Millisecond)
	next := s.Next("refresh").In(s.cal.Location())
	assert.Equal(t, 17, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.True(t, s.Next("missing").IsZero())
}
