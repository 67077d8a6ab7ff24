// Package timing measures per-request latency: time to first byte and total
// time, in whole milliseconds.
package timing

import "time"

// Timer tracks start, first-byte, and stop instants for one request attempt.
// Not safe for concurrent use; a request's forward attempts are sequential.
type Timer struct {
	start      time.Time
	firstByte  time.Time
	end        time.Time
	started    bool
	firstByteSet bool
	stopped    bool
}

// New returns a started Timer.
func New() *Timer {
	return (&Timer{}).Start()
}

// Start resets and starts the timer.
func (t *Timer) Start() *Timer {
	t.start = time.Now()
	t.firstByte = time.Time{}
	t.end = time.Time{}
	t.started = true
	t.firstByteSet = false
	t.stopped = false
	return t
}

// MarkFirstByte records the first-byte instant. Ignored if already marked.
func (t *Timer) MarkFirstByte() *Timer {
	if !t.firstByteSet {
		t.firstByte = time.Now()
		t.firstByteSet = true
	}
	return t
}

// Stop records the end instant. If first byte was never marked, it is
// treated as coinciding with stop.
func (t *Timer) Stop() *Timer {
	t.end = time.Now()
	if !t.firstByteSet {
		t.firstByte = t.end
		t.firstByteSet = true
	}
	t.stopped = true
	return t
}

// FirstByteDelayMS returns the TTFB in milliseconds, or ok=false if the timer
// hasn't been started and marked/stopped yet.
func (t *Timer) FirstByteDelayMS() (int64, bool) {
	if !t.started || !t.firstByteSet {
		return 0, false
	}
	return t.firstByte.Sub(t.start).Milliseconds(), true
}

// TotalTimeMS returns the total elapsed time in milliseconds, or ok=false if
// the timer hasn't been stopped.
func (t *Timer) TotalTimeMS() (int64, bool) {
	if !t.started || !t.stopped {
		return 0, false
	}
	return t.end.Sub(t.start).Milliseconds(), true
}

// Reset clears the timer back to its zero state.
func (t *Timer) Reset() *Timer {
	*t = Timer{}
	return t
}
