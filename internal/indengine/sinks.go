package indengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cagdasatacanf-arch/Depo-Data/internal/model"
)

// SinkError wraps a failure of one named sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return fmt.Sprintf("sink %s: %v", e.Sink, e.Err) }
func (e *SinkError) Unwrap() error { return e.Err }

type named[W any] struct {
	name     string
	w        W
	required bool
}

// fanout writes to every sink in registration order. Failures of optional
// sinks are logged and counted; failures of required sinks are returned,
// joined, after all sinks were attempted.
type fanout[W any] struct {
	sinks   []named[W]
	log     *slog.Logger
	onError func(sink string)
}

func (f *fanout[W]) add(name string, w W, required bool) {
	f.sinks = append(f.sinks, named[W]{name: name, w: w, required: required})
}

func (f *fanout[W]) each(call func(W) error) error {
	var errs []error
	for _, s := range f.sinks {
		err := call(s.w)
		if err == nil {
			continue
		}
		if f.onError != nil {
			f.onError(s.name)
		}
		if !s.required {
			f.log.Warn("optional sink failed", "sink", s.name, "error", err)
			continue
		}
		errs = append(errs, &SinkError{Sink: s.name, Err: err})
	}
	return errors.Join(errs...)
}

// Names lists the registered sinks.
func (f *fanout[W]) Names() []string {
	out := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		out[i] = s.name
	}
	return out
}

// IndicatorSinks fans UpsertSnapshots out to several writers.
type IndicatorSinks struct{ fanout[model.IndicatorWriter] }

// PatternSinks fans AppendEvents out to several writers.
type PatternSinks struct{ fanout[model.PatternWriter] }

var (
	_ model.IndicatorWriter = (*IndicatorSinks)(nil)
	_ model.PatternWriter   = (*PatternSinks)(nil)
)

// NewIndicatorSinks creates an empty fan-out. onError may be nil.
func NewIndicatorSinks(log *slog.Logger, onError func(sink string)) *IndicatorSinks {
	return &IndicatorSinks{fanout[model.IndicatorWriter]{log: log.With("component", "indicator-sinks"), onError: onError}}
}

// NewPatternSinks creates an empty fan-out. onError may be nil.
func NewPatternSinks(log *slog.Logger, onError func(sink string)) *PatternSinks {
	return &PatternSinks{fanout[model.PatternWriter]{log: log.With("component", "pattern-sinks"), onError: onError}}
}

// Add registers a writer. A required writer's failure fails the asset and
// holds back its checkpoint.
func (s *IndicatorSinks) Add(name string, w model.IndicatorWriter, required bool) {
	s.add(name, w, required)
}

// Add registers a writer. A required writer's failure fails the asset and
// holds back its checkpoint.
func (s *PatternSinks) Add(name string, w model.PatternWriter, required bool) {
	s.add(name, w, required)
}

func (s *IndicatorSinks) UpsertSnapshots(ctx context.Context, snaps []model.IndicatorSnapshot) error {
	return s.each(func(w model.IndicatorWriter) error { return w.UpsertSnapshots(ctx, snaps) })
}

func (s *PatternSinks) AppendEvents(ctx context.Context, events []model.PatternEvent) error {
	return s.each(func(w model.PatternWriter) error { return w.AppendEvents(ctx, events) })
}

// JobLoggers records every job run in each logger; failures are joined.
type JobLoggers []model.JobLogger

func (j JobLoggers) LogJob(ctx context.Context, run model.JobRun) error {
	var errs []error
	for _, l := range j {
		if err := l.LogJob(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
