package progress

import (
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type emission struct {
	current, total int
	msg            string
}

func recorder() (*[]emission, Sink) {
	var out []emission
	return &out, func(c, t int, m string) { out = append(out, emission{c, t, m}) }
}

func TestTracker_Lifecycle(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	got, sink := recorder()
	tr := New("detect", 10, sink, WithClock(clk.now))

	if tr.State() != Created || tr.Percentage() != 0 {
		t.Fatalf("unexpected initial state %s %.1f", tr.State(), tr.Percentage())
	}
	tr.Start()
	for i := 1; i <= 5; i++ {
		clk.advance(time.Second)
		tr.Update(i, "H1")
	}
	if p := tr.Percentage(); p != 50 {
		t.Errorf("expected 50%%, got %.1f", p)
	}
	if eta := tr.ETA(); eta != 5*time.Second {
		t.Errorf("expected ETA 5s, got %v", eta)
	}

	clk.advance(time.Second)
	elapsed := tr.Finish("all timeframes")
	if elapsed != 6*time.Second {
		t.Errorf("expected 6s elapsed, got %v", elapsed)
	}
	if tr.Percentage() != 100 || tr.ETA() != 0 {
		t.Errorf("finished tracker should read 100%% and zero ETA")
	}

	n := len(*got)
	tr.Update(3, "late")
	if len(*got) != n {
		t.Error("update after finish should be ignored")
	}
	last := (*got)[n-1]
	if last.current != 10 || !strings.Contains(last.msg, "done in 6.0s") {
		t.Errorf("unexpected final emission %+v", last)
	}
	if (*got)[0].msg != "detect: started" {
		t.Errorf("unexpected first emission %q", (*got)[0].msg)
	}
}

func TestTracker_Throttle(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	got, sink := recorder()
	tr := New("fix", 1000, sink, WithClock(clk.now))
	tr.Start()

	// tight loop: no wall-clock progress, only the final 100% gets through
	for i := 1; i <= 1000; i++ {
		tr.Update(i, "")
	}
	if len(*got) != 2 {
		t.Fatalf("expected start and 100%% emissions only, got %d", len(*got))
	}
	if (*got)[1].current != 1000 {
		t.Errorf("expected final emission at 1000, got %d", (*got)[1].current)
	}
}

func TestTracker_ThrottleByDelta(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	got, sink := recorder()
	tr := New("fix", 1000, sink, WithClock(clk.now))
	tr.Start()
	for i := 1; i <= 50; i++ {
		clk.advance(time.Second)
		tr.Update(i, "")
	}
	// 50 updates of 0.1% each, one second apart: one emission per full percent
	if emitted := len(*got) - 1; emitted != 5 {
		t.Errorf("expected 5 throttled emissions, got %d", emitted)
	}
}

func TestTracker_Bounds(t *testing.T) {
	tr := New("x", 4, nil)
	tr.Update(-3, "")
	if tr.Percentage() != 0 {
		t.Errorf("negative progress should clamp to 0, got %.1f", tr.Percentage())
	}
	tr.Update(99, "")
	if tr.Percentage() != 100 {
		t.Errorf("overshoot should clamp to 100, got %.1f", tr.Percentage())
	}
	if tr.ETA() < 0 {
		t.Error("ETA must not be negative")
	}
	empty := New("empty", 0, nil)
	if empty.Percentage() != 100 {
		t.Errorf("zero-total tracker should read 100, got %.1f", empty.Percentage())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1.5m"},
		{150 * time.Minute, "2.5h"},
		{-time.Second, "0.0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMultiPhase(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	got, sink := recorder()
	mp := NewMultiPhase([]string{"backup", "detect", "fix"}, sink, WithClock(clk.now))

	tr := mp.StartPhase("detect", 2)
	if tr.Label() != "detect (Phase 2/3)" {
		t.Errorf("unexpected label %q", tr.Label())
	}
	clk.advance(2 * time.Second)
	mp.FinishPhase("")

	mp.StartPhase("fix", 1)
	clk.advance(3 * time.Second)
	sum := mp.FinishAll("run")

	if len(sum.Phases) != 2 || sum.Total != 5*time.Second {
		t.Errorf("unexpected summary %+v", sum)
	}
	last := (*got)[len(*got)-1]
	if !strings.Contains(last.msg, "all phases done in 5.0s") {
		t.Errorf("unexpected final message %q", last.msg)
	}
}
