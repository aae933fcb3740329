package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// DispatcherConfig configures alert fan-out.
type DispatcherConfig struct {
	MinConfidence int     // events below this are not alerted
	RatePerSecond float64 // per-backend send rate; <= 0 means unlimited
	Burst         int
	DedupSize     int // number of recent event IDs remembered
}

// Dispatcher is a PatternWriter that renders events to alerts and sends
// each alert to every backend. Each backend has its own rate limiter; an
// event ID already delivered is not sent again.
type Dispatcher struct {
	cfg      DispatcherConfig
	backends []backend
	log      *slog.Logger

	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
	ring []uuid.UUID
	next int

	// OnSent is called after each delivery attempt (for metrics).
	OnSent func(backend string, err error)
}

type backend struct {
	n       Notifier
	limiter *rate.Limiter
}

var _ model.PatternWriter = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over the given notifiers.
func NewDispatcher(cfg DispatcherConfig, log *slog.Logger, notifiers ...Notifier) *Dispatcher {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = 1024
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	d := &Dispatcher{
		cfg:  cfg,
		log:  log.With("component", "dispatcher"),
		seen: make(map[uuid.UUID]struct{}, cfg.DedupSize),
		ring: make([]uuid.UUID, cfg.DedupSize),
	}
	for _, n := range notifiers {
		d.backends = append(d.backends, backend{n: n, limiter: rate.NewLimiter(limit, cfg.Burst)})
	}
	return d
}

// AppendEvents sends an alert per qualifying event. Delivery failures are
// joined and returned after every event has been attempted; a context
// cancellation stops immediately. An event counts as delivered once any
// backend accepted it; until then a later call retries it.
func (d *Dispatcher) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	var errs []error
	for i := range events {
		ev := &events[i]
		if ev.Confidence < d.cfg.MinConfidence {
			continue
		}
		if d.seenBefore(ev.ID) {
			d.log.Debug("skipping duplicate event", "id", ev.ID, "asset", ev.Asset)
			continue
		}
		alert := FromEvent(*ev)
		delivered := false
		for _, b := range d.backends {
			if err := b.limiter.Wait(ctx); err != nil {
				if delivered {
					d.markSeen(ev.ID)
				}
				return errors.Join(append(errs, fmt.Errorf("%s: rate limiter: %w", b.n.Name(), err))...)
			}
			err := b.n.Send(ctx, alert)
			if d.OnSent != nil {
				d.OnSent(b.n.Name(), err)
			}
			if err != nil {
				d.log.Error("alert delivery failed", "backend", b.n.Name(), "asset", ev.Asset, "kind", ev.Kind, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", b.n.Name(), err))
				continue
			}
			delivered = true
		}
		if delivered {
			d.markSeen(ev.ID)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) seenBefore(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// markSeen records id, evicting the oldest remembered ID when full.
func (d *Dispatcher) markSeen(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return
	}
	if old := d.ring[d.next]; old != uuid.Nil {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.seen[id] = struct{}{}
	d.next = (d.next + 1) % len(d.ring)
}
