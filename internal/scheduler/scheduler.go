// Package scheduler runs named jobs on cron schedules in the trading
// calendar's time zone, optionally only on trading days.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/markethours"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

type entry struct {
	id              cron.EntryID
	spec            string
	job             Job
	tradingDaysOnly bool
}

// Scheduler manages cron jobs. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	cal  *markethours.Calendar
	ctx  context.Context
	log  *slog.Logger
	now  func() time.Time

	mu   sync.Mutex
	jobs map[string]*entry

	// OnSkip is called when a gated job is skipped on a non-trading day.
	OnSkip func(name string)
}

// New creates a scheduler. ctx is passed to every job run.
func New(ctx context.Context, cal *markethours.Calendar, log *slog.Logger) *Scheduler {
	log = log.With("component", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cal.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cal:  cal,
		ctx:  ctx,
		log:  log,
		now:  time.Now,
		jobs: make(map[string]*entry),
	}
}

// Register schedules job under name with a six-field cron spec
// (seconds first). Gated jobs only run on trading days.
func (s *Scheduler) Register(name, spec string, job Job, tradingDaysOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	e := &entry{spec: spec, job: job, tradingDaysOnly: tradingDaysOnly}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, e) })
	if err != nil {
		return fmt.Errorf("scheduler: register %s (%q): %w", name, spec, err)
	}
	e.id = id
	s.jobs[name] = e
	s.log.Info("registered job", "job", name, "spec", spec, "trading_days_only", tradingDaysOnly)
	return nil
}

// RunNow executes a registered job immediately, ignoring the trading-day
// gate (manual trigger / run on start).
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return e.job(s.ctx)
}

// Next returns the next scheduled run of name, or the zero time.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

func (s *Scheduler) run(name string, e *entry) {
	now := s.now()
	if e.tradingDaysOnly && !s.cal.IsTradingDay(now) {
		s.log.Info("skipping job on non-trading day", "job", name, "date", now.In(s.cal.Location()).Format("2006-01-02"))
		if s.OnSkip != nil {
			s.OnSkip(name)
		}
		return
	}
	start := time.Now()
	s.log.Info("running job", "job", name)
	if err := e.job(s.ctx); err != nil {
		s.log.Error("job failed", "job", name, "duration", time.Since(start).String(), "error", err)
		return
	}
	s.log.Info("job finished", "job", name, "duration", time.Since(start).String())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("[scheduler] started")
}

// Stop stops scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("[scheduler] stop timed out with jobs still running")
		return
	}
	s.log.Info("[scheduler] stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
