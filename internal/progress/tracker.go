// Package progress reports percentage and ETA of long operations to a caller sink.
package progress

import (
	"fmt"
	"math"
	"time"
)

// Sink receives progress emissions. It must not block for long; it runs inline.
type Sink func(current, total int, message string)

// State is the tracker lifecycle position.
type State int

const (
	Created State = iota
	Started
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return "unknown"
}

const (
	DefaultMinInterval = 100 * time.Millisecond
	DefaultMinDelta    = 1.0
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithThrottle sets the minimum wall-clock interval and percentage delta between emissions.
func WithThrottle(interval time.Duration, delta float64) Option {
	return func(t *Tracker) {
		t.minInterval = interval
		t.minDelta = delta
	}
}

// Status is a point-in-time view of a tracker.
type Status struct {
	Label      string        `json:"label"`
	Current    int           `json:"current"`
	Total      int           `json:"total"`
	Percentage float64       `json:"percentage"`
	Elapsed    time.Duration `json:"elapsed"`
	ETA        time.Duration `json:"eta"`
	State      string        `json:"state"`
}

// Tracker follows a single operation of known size.
type Tracker struct {
	label   string
	total   int
	current int
	state   State

	startedAt  time.Time
	finishedAt time.Time
	lastEmit   time.Time
	lastPct    float64
	emitted100 bool

	minInterval time.Duration
	minDelta    float64
	sink        Sink
	now         func() time.Time
}

// New creates a tracker in the Created state. A nil sink discards emissions.
func New(label string, total int, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		label:       label,
		total:       total,
		sink:        sink,
		now:         time.Now,
		minInterval: DefaultMinInterval,
		minDelta:    DefaultMinDelta,
	}
	for _, o := range opts {
		o(t)
	}
	if t.sink == nil {
		t.sink = func(int, int, string) {}
	}
	return t
}

// Label returns the tracker label.
func (t *Tracker) Label() string { return t.label }

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// Start records the start time and emits 0%. Calling it twice is a no-op.
func (t *Tracker) Start() {
	if t.state != Created {
		return
	}
	t.state = Started
	t.startedAt = t.now()
	t.lastEmit = t.startedAt
	t.lastPct = 0
	t.sink(0, t.total, fmt.Sprintf("%s: started", t.label))
}

// Update moves progress to current. Emissions are throttled except for the first
// one reaching 100%. Updates after Finish are ignored.
func (t *Tracker) Update(current int, message string) {
	if t.state == Finished {
		return
	}
	if t.state == Created {
		t.Start()
	}
	t.state = Running
	if current < 0 {
		current = 0
	}
	if t.total > 0 && current > t.total {
		current = t.total
	}
	t.current = current

	now := t.now()
	pct := t.Percentage()
	switch {
	case pct >= 100 && !t.emitted100:
		t.emitted100 = true
	case now.Sub(t.lastEmit) >= t.minInterval && pct-t.lastPct >= t.minDelta:
	default:
		return
	}
	t.lastEmit = now
	t.lastPct = pct
	t.sink(t.current, t.total, t.format(message, pct))
}

// Increment advances progress by one.
func (t *Tracker) Increment(message string) {
	t.Update(t.current+1, message)
}

// Finish marks the operation complete, emits 100% with the elapsed time and returns it.
func (t *Tracker) Finish(message string) time.Duration {
	if t.state == Finished {
		return t.finishedAt.Sub(t.startedAt)
	}
	if t.state == Created {
		t.Start()
	}
	t.state = Finished
	t.finishedAt = t.now()
	if t.total > 0 {
		t.current = t.total
	}
	elapsed := t.finishedAt.Sub(t.startedAt)
	msg := fmt.Sprintf("%s: done in %s", t.label, FormatDuration(elapsed))
	if message != "" {
		msg = fmt.Sprintf("%s: %s (done in %s)", t.label, message, FormatDuration(elapsed))
	}
	t.sink(t.current, t.total, msg)
	return elapsed
}

// Percentage is current/total in [0, 100]. A finished tracker or an empty total reads 100.
func (t *Tracker) Percentage() float64 {
	if t.state == Finished || t.total <= 0 {
		return 100
	}
	pct := float64(t.current) * 100 / float64(t.total)
	return math.Max(0, math.Min(100, pct))
}

// ETA projects observed throughput onto the remaining items. It is zero until the
// first item completes.
func (t *Tracker) ETA() time.Duration {
	if t.state == Finished || t.current <= 0 || t.total <= 0 {
		return 0
	}
	elapsed := t.now().Sub(t.startedAt)
	if elapsed <= 0 {
		return 0
	}
	remaining := t.total - t.current
	if remaining <= 0 {
		return 0
	}
	perItem := float64(elapsed) / float64(t.current)
	return time.Duration(perItem * float64(remaining))
}

// Elapsed is the time since Start, frozen at Finish.
func (t *Tracker) Elapsed() time.Duration {
	switch t.state {
	case Created:
		return 0
	case Finished:
		return t.finishedAt.Sub(t.startedAt)
	}
	return t.now().Sub(t.startedAt)
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status() Status {
	return Status{
		Label:      t.label,
		Current:    t.current,
		Total:      t.total,
		Percentage: t.Percentage(),
		Elapsed:    t.Elapsed(),
		ETA:        t.ETA(),
		State:      t.state.String(),
	}
}

func (t *Tracker) format(message string, pct float64) string {
	out := fmt.Sprintf("%s: %.1f%%", t.label, pct)
	if message != "" {
		out = fmt.Sprintf("%s: %s (%.1f%%)", t.label, message, pct)
	}
	if eta := t.ETA(); eta > 0 {
		out += ", ETA " + FormatDuration(eta)
	}
	return out
}

// FormatDuration renders d as seconds, minutes or hours with one decimal.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}
