package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func goldenCross() model.PatternEvent {
	ts := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	return model.PatternEvent{
		ID:          model.NewEventID("GLD", ts, model.PatternGoldenCross),
		Asset:       "GLD",
		DetectedAt:  ts,
		Kind:        model.PatternGoldenCross,
		Confidence:  85,
		Description: "SMA50 crossed above SMA200",
		Latest: model.IndicatorSnapshot{
			Asset: "GLD", TS: ts,
			SMA50: dec("201.456"), SMA200: dec("200.1"), RSI14: dec("61.2"),
		},
	}
}

// ──────────────────────────────────────────────────────────────
// Formatting
// ──────────────────────────────────────────────────────────────

func TestFromEvent(t *testing.T) {
	a := FromEvent(goldenCross())
	assert.Equal(t, AlertCritical, a.Level)
	assert.Equal(t, "GLD Golden Cross", a.Title)
	assert.Equal(t, "golden_cross", a.Kind)
	assert.Contains(t, a.Message, "Date: 2024-06-03")
	assert.Contains(t, a.Message, "sma_50: 201.46")
	assert.Contains(t, a.Message, "sma_200: 200.10")
	assert.NotContains(t, a.Message, "rsi_14", "only the fields the rule reads are rendered")
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, AlertCritical, LevelFor(85))
	assert.Equal(t, AlertWarning, LevelFor(75))
	assert.Equal(t, AlertInfo, LevelFor(70))
}

// ──────────────────────────────────────────────────────────────
// Webhook
// ──────────────────────────────────────────────────────────────

func TestWebhookNotifier_Send(t *testing.T) {
	var got Alert
	var eventHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		eventHeader = r.Header.Get("X-Event-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := goldenCross()
	n := NewWebhookNotifier(srv.URL, time.Second, quietLogger())
	require.NoError(t, n.Send(context.Background(), FromEvent(ev)))
	assert.Equal(t, ev.ID, got.EventID)
	assert.Equal(t, ev.ID.String(), eventHeader)
	assert.True(t, got.TS.Equal(ev.DetectedAt))
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second, quietLogger())
	err := n.Send(context.Background(), FromEvent(goldenCross()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// ──────────────────────────────────────────────────────────────
// Telegram (Bot API faked with httptest)
// ──────────────────────────────────────────────────────────────

func fakeBotAPI(t *testing.T, sent *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Depo","username":"depo_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			*sent = append(*sent, r.PostForm.Get("chat_id")+"|"+r.PostForm.Get("text"))
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
}

func TestTelegramNotifier_Send(t *testing.T) {
	var sent []string
	srv := fakeBotAPI(t, &sent)
	defer srv.Close()

	n, err := NewTelegramNotifier(TelegramConfig{
		BotToken: "123:abc",
		ChatID:   42,
		Endpoint: srv.URL + "/bot%s/%s",
	}, quietLogger())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), FromEvent(goldenCross())))
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0], "42|"))
	assert.Contains(t, sent[0], "Golden Cross")
	assert.Contains(t, sent[0], `201\.46`, "MarkdownV2 escapes dots")
}

// ──────────────────────────────────────────────────────────────
// Dispatcher
// ──────────────────────────────────────────────────────────────

type recordingNotifier struct {
	name string
	mu   sync.Mutex
	got  []Alert
	err  error
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.err
}

func TestDispatcher_FiltersAndDedups(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(DispatcherConfig{MinConfidence: 75}, quietLogger(), rec)

	gc := goldenCross()
	macd := gc
	macd.Kind = model.PatternMACDBullishCross
	macd.Confidence = 70
	macd.ID = model.NewEventID(macd.Asset, macd.DetectedAt, macd.Kind)

	require.NoError(t, d.AppendEvents(context.Background(), []model.PatternEvent{gc, macd}))
	require.NoError(t, d.AppendEvents(context.Background(), []model.PatternEvent{gc}))

	require.Len(t, rec.got, 1, "low-confidence filtered, duplicate skipped")
	assert.Equal(t, gc.ID, rec.got[0].EventID)
}

func TestDispatcher_FailureDoesNotStopOtherBackends(t *testing.T) {
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}
	good := &recordingNotifier{name: "good"}
	d := NewDispatcher(DispatcherConfig{}, quietLogger(), bad, good)

	var outcomes []string
	d.OnSent = func(name string, err error) {
		outcomes = append(outcomes, name+":"+map[bool]string{true: "ok", false: "err"}[err == nil])
	}

	err := d.AppendEvents(context.Background(), []model.PatternEvent{goldenCross()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.got, 1)
	assert.Equal(t, []string{"bad:err", "good:ok"}, outcomes)
}

func TestDispatcher_UndeliveredEventIsRetried(t *testing.T) {
	rec := &recordingNotifier{name: "rec", err: errors.New("down")}
	d := NewDispatcher(DispatcherConfig{}, quietLogger(), rec)
	ev := goldenCross()
	ctx := context.Background()

	require.Error(t, d.AppendEvents(ctx, []model.PatternEvent{ev}))

	rec.err = nil
	require.NoError(t, d.AppendEvents(ctx, []model.PatternEvent{ev}))
	require.NoError(t, d.AppendEvents(ctx, []model.PatternEvent{ev}))
	assert.Len(t, rec.got, 2, "failed attempt, then one delivery, then deduplicated")
}

func TestDispatcher_PartialDeliveryCountsAsSent(t *testing.T) {
	bad := &recordingNotifier{name: "bad", err: errors.New("boom")}
	good := &recordingNotifier{name: "good"}
	d := NewDispatcher(DispatcherConfig{}, quietLogger(), bad, good)
	ev := goldenCross()
	ctx := context.Background()

	require.Error(t, d.AppendEvents(ctx, []model.PatternEvent{ev}))
	require.NoError(t, d.AppendEvents(ctx, []model.PatternEvent{ev}))
	assert.Len(t, bad.got, 1)
	assert.Len(t, good.got, 1)
}

func TestDispatcher_DedupWindowEvicts(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(DispatcherConfig{DedupSize: 2}, quietLogger(), rec)

	base := goldenCross()
	mk := func(day int) model.PatternEvent {
		ev := base
		ev.DetectedAt = time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
		ev.ID = model.NewEventID(ev.Asset, ev.DetectedAt, ev.Kind)
		return ev
	}
	ctx := context.Background()
	require.NoError(t, d.AppendEvents(ctx, []model.PatternEvent{mk(1), mk(2), mk(3)}))
	require.NoError(t, d.AppendEvents(ctx, []model.PatternEvent{mk(1)}))
	assert.Len(t, rec.got, 4, "day 1 fell out of the window and is sent again")
}

func TestDispatcher_RateLimitHonoursContext(t *testing.T) {
	rec := &recordingNotifier{name: "rec"}
	d := NewDispatcher(DispatcherConfig{RatePerSecond: 0.001, Burst: 1}, quietLogger(), rec)

	ev1 := goldenCross()
	ev2 := ev1
	ev2.DetectedAt = ev1.DetectedAt.AddDate(0, 0, 1)
	ev2.ID = model.NewEventID(ev2.Asset, ev2.DetectedAt, ev2.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.AppendEvents(ctx, []model.PatternEvent{ev1, ev2})
	require.Error(t, err)
	assert.Len(t, rec.got, 1)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(quietLogger())
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Send(context.Background(), FromEvent(goldenCross())))
}
