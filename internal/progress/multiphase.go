package progress

import (
	"fmt"
	"time"
)

// PhaseTiming records how long one phase took.
type PhaseTiming struct {
	Name    string        `json:"name"`
	Elapsed time.Duration `json:"elapsed"`
}

// Summary aggregates all finished phases.
type Summary struct {
	Phases []PhaseTiming `json:"phases"`
	Total  time.Duration `json:"total"`
}

// MultiPhase tracks an ordered sequence of phases, each with its own Tracker.
type MultiPhase struct {
	phases  []string
	sink    Sink
	opts    []Option
	started int
	current *Tracker
	curName string
	timings []PhaseTiming
}

// NewMultiPhase declares the phase order up front so trackers can be labeled i/N.
func NewMultiPhase(phases []string, sink Sink, opts ...Option) *MultiPhase {
	return &MultiPhase{
		phases: append([]string(nil), phases...),
		sink:   sink,
		opts:   opts,
	}
}

// StartPhase finishes any running phase and starts a tracker labeled "name (Phase i/N)".
func (m *MultiPhase) StartPhase(name string, total int) *Tracker {
	if m.current != nil {
		m.FinishPhase("")
	}
	m.started++
	pos := m.started
	for i, p := range m.phases {
		if p == name {
			pos = i + 1
			break
		}
	}
	n := len(m.phases)
	if pos > n {
		n = pos
	}
	m.current = New(fmt.Sprintf("%s (Phase %d/%d)", name, pos, n), total, m.sink, m.opts...)
	m.curName = name
	m.current.Start()
	return m.current
}

// Current returns the running phase tracker, or nil.
func (m *MultiPhase) Current() *Tracker { return m.current }

// FinishPhase finishes the running phase and records its timing.
func (m *MultiPhase) FinishPhase(message string) time.Duration {
	if m.current == nil {
		return 0
	}
	elapsed := m.current.Finish(message)
	m.timings = append(m.timings, PhaseTiming{Name: m.curName, Elapsed: elapsed})
	m.current = nil
	m.curName = ""
	return elapsed
}

// FinishAll closes the running phase and returns the per-phase and total elapsed time.
func (m *MultiPhase) FinishAll(message string) Summary {
	m.FinishPhase("")
	s := Summary{Phases: append([]PhaseTiming(nil), m.timings...)}
	for _, p := range s.Phases {
		s.Total += p.Elapsed
	}
	if m.sink != nil {
		msg := fmt.Sprintf("all phases done in %s", FormatDuration(s.Total))
		if message != "" {
			msg = fmt.Sprintf("%s: %s", message, msg)
		}
		m.sink(len(s.Phases), len(s.Phases), msg)
	}
	return s
}
