package indicator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptySeries is returned for a price series with no points.
	ErrEmptySeries = errors.New("empty price series")

	// ErrNonMonotonicTimestamps is returned when a point's timestamp does not
	// strictly follow its predecessor. The series is rejected, never re-sorted.
	ErrNonMonotonicTimestamps = errors.New("timestamps not strictly increasing")

	// ErrInsufficientHistory marks a partial result: snapshots are returned
	// alongside it, but some indicators never became defined.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// NonMonotonicError reports the first out-of-order point.
type NonMonotonicError struct {
	Asset string
	Index int
	Prev  time.Time
	TS    time.Time
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("%s: point %d at %s does not follow %s: %v",
		e.Asset, e.Index, e.TS.Format(time.RFC3339), e.Prev.Format(time.RFC3339), ErrNonMonotonicTimestamps)
}

func (e *NonMonotonicError) Unwrap() error { return ErrNonMonotonicTimestamps }

// InsufficientHistoryError lists the indicators still absent after the last
// point of the series.
type InsufficientHistoryError struct {
	Asset   string
	Points  int
	Missing []string
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s: %v after %d points: %s undefined",
		e.Asset, ErrInsufficientHistory, e.Points, strings.Join(e.Missing, ", "))
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

func errStateShape(typ, msg string) error {
	return fmt.Errorf("restore %s: %s", typ, msg)
}
