package flow

import "time"

// Timer accumulates wall-clock time over one or more start/stop intervals.
// It is not safe for concurrent use; the controller owns it exclusively.
type Timer struct {
	now     func() time.Time
	started time.Time
	running bool
	total   time.Duration
}

// NewTimer returns a stopped timer with zero accumulated duration.
func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start records the reference instant.
func (t *Timer) Start() {
	t.started = t.now()
	t.running = true
}

// Resume re-records the reference instant and keeps the accumulated duration.
func (t *Timer) Resume() {
	t.Start()
}

// Stop closes the running interval and returns the accumulated seconds.
// Without a running interval the accumulator is returned unchanged.
func (t *Timer) Stop() float64 {
	if t.running {
		t.total += t.now().Sub(t.started)
		t.running = false
	}
	return t.total.Seconds()
}

// Running reports whether an interval is open.
func (t *Timer) Running() bool {
	return t.running
}
