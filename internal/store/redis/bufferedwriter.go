package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// Sink is the subset of Store the buffered writer forwards to.
type Sink interface {
	model.IndicatorWriter
	model.PatternWriter
}

// pendingWrite is a batch held back while the circuit was open.
type pendingWrite struct {
	snaps  []model.IndicatorSnapshot
	events []model.PatternEvent
}

// BufferedWriter routes writes through a circuit breaker. While the circuit
// is open, batches are held in memory (oldest dropped past maxBuf) and
// replayed once the breaker closes again.
type BufferedWriter struct {
	sink Sink
	cb   *CircuitBreaker
	ctx  context.Context
	log  *slog.Logger

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	OnBuffer func()          // called when a batch is buffered
	OnFlush  func(count int) // called after a flush
}

var (
	_ model.IndicatorWriter = (*BufferedWriter)(nil)
	_ model.PatternWriter   = (*BufferedWriter)(nil)
)

// NewBufferedWriter wraps sink. ctx bounds flushes after recovery.
func NewBufferedWriter(ctx context.Context, sink Sink, cb *CircuitBreaker, maxBufferSize int, log *slog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bw := &BufferedWriter{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		log:    log.With("component", "redis-buffer"),
		buffer: make([]pendingWrite, 0, 16),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		bw.log.Info("circuit state change", "from", from.String(), "to", to.String())
		if to == StateClosed {
			go bw.flush()
		}
	}
	return bw
}

// UpsertSnapshots writes through the breaker, buffering while it is open.
func (bw *BufferedWriter) UpsertSnapshots(ctx context.Context, snaps []model.IndicatorSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	err := bw.cb.Execute(func() error { return bw.sink.UpsertSnapshots(ctx, snaps) })
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(pendingWrite{snaps: append([]model.IndicatorSnapshot(nil), snaps...)})
		return nil
	}
	return err
}

// AppendEvents writes through the breaker, buffering while it is open.
func (bw *BufferedWriter) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := bw.cb.Execute(func() error { return bw.sink.AppendEvents(ctx, events) })
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(pendingWrite{events: append([]model.PatternEvent(nil), events...)})
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(pw pendingWrite) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
		bw.log.Warn("buffer full, dropped oldest batch", "max", bw.maxBuf)
	}
	bw.buffer = append(bw.buffer, pw)
	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered batches in arrival order. A batch that fails again
// is re-queued at the front together with everything after it.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 16)
	bw.mu.Unlock()

	flushed := 0
	for i, pw := range toFlush {
		var err error
		if len(pw.snaps) > 0 {
			err = bw.sink.UpsertSnapshots(bw.ctx, pw.snaps)
		}
		if err == nil && len(pw.events) > 0 {
			err = bw.sink.AppendEvents(bw.ctx, pw.events)
		}
		if err != nil {
			bw.log.Error("flush failed, re-queueing", "remaining", len(toFlush)-i, "error", err)
			bw.mu.Lock()
			bw.buffer = append(append([]pendingWrite(nil), toFlush[i:]...), bw.buffer...)
			bw.mu.Unlock()
			break
		}
		flushed++
	}

	bw.log.Info("flushed buffered writes", "count", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered batches.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
