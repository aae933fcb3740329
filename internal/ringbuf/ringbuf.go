// Package ringbuf provides a fixed-capacity sliding window that evicts the
// oldest value on overflow. Indicators use it for their look-back windows.
// It is not safe for concurrent use; each indicator owns its window.
package ringbuf

// Window is a ring of the most recent Cap() values.
type Window[T any] struct {
	buf   []T
	head  int // next write position
	count int
}

// New creates a window holding up to size values. Minimum size is 1.
func New[T any](size int) *Window[T] {
	if size < 1 {
		size = 1
	}
	return &Window[T]{buf: make([]T, size)}
}

// Push appends v. When the window was already full the oldest value is
// overwritten and returned with evicted=true.
func (w *Window[T]) Push(v T) (old T, evicted bool) {
	if w.count == len(w.buf) {
		old = w.buf[w.head]
		evicted = true
	} else {
		w.count++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	return old, evicted
}

// Len returns the number of values held.
func (w *Window[T]) Len() int { return w.count }

// Cap returns the window size.
func (w *Window[T]) Cap() int { return len(w.buf) }

// Full reports whether Len() == Cap().
func (w *Window[T]) Full() bool { return w.count == len(w.buf) }

// Values returns the held values, oldest first. The slice is a copy.
func (w *Window[T]) Values() []T {
	out := make([]T, 0, w.count)
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}

// Newest returns the most recently pushed value.
func (w *Window[T]) Newest() (T, bool) {
	var zero T
	if w.count == 0 {
		return zero, false
	}
	return w.buf[(w.head-1+len(w.buf))%len(w.buf)], true
}

// Reset empties the window and refills it with values (oldest first). Only
// the last Cap() values are kept.
func (w *Window[T]) Reset(values []T) {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head, w.count = 0, 0
	for _, v := range values {
		w.Push(v)
	}
}
