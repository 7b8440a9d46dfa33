package recorder

import (
	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/timeframe"
)

// RunEvent holds the outcome of one gap repair run.
type RunEvent struct {
	RunID              string
	Symbol             string
	Strategy           string
	Status             string // "done" or "failed"
	Error              string
	StartedAt          int64
	FinishedAt         int64
	BackupName         string
	GapsDetected       int
	MissingPoints      int
	TimeframesWithGaps int
	GapsFixed          int
	PointsAdded        int
	TimeframesFixed    int
	SuccessRate        float64
	GapHours           float64
}

// TimeframeEvent holds the per-timeframe detail of a run.
type TimeframeEvent struct {
	RunID          string
	Symbol         string
	Timeframe      string
	Rows           int
	IntervalSec    int64
	Mismatch       bool
	Gaps           int
	MissingPoints  int
	Strategy       string
	PointsAdded    int
	FixError       string
	ExcludedClosed int
}

// CleanupEvent records a backup pruning pass.
type CleanupEvent struct {
	Kept    int
	Deleted int
	Error   string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordRun(evt *RunEvent) error
	RecordTimeframe(evt *TimeframeEvent) error
	RecordCleanup(evt *CleanupEvent) error
	Close() error
}

// FromReport flattens an analyzer report into recorder events.
func FromReport(rep *analyzer.Report) (*RunEvent, []*TimeframeEvent) {
	s := rep.Summary
	run := &RunEvent{
		RunID:              rep.RunID,
		Symbol:             rep.Symbol,
		Strategy:           string(rep.Strategy),
		Status:             rep.Status,
		Error:              rep.Error,
		StartedAt:          rep.StartedAt.Unix(),
		FinishedAt:         rep.FinishedAt.Unix(),
		BackupName:         rep.BackupName,
		GapsDetected:       s.GapsDetected,
		MissingPoints:      s.MissingPoints,
		TimeframesWithGaps: s.TimeframesWithGaps,
		GapsFixed:          s.GapsFixed,
		PointsAdded:        s.PointsAdded,
		TimeframesFixed:    s.TimeframesFixed,
		SuccessRate:        s.FixingSuccessRate,
		GapHours:           s.TotalGapDurationHours,
	}

	labels := make([]string, 0, len(rep.Gaps))
	for tf := range rep.Gaps {
		labels = append(labels, tf)
	}
	timeframe.SortLabels(labels)

	tfs := make([]*TimeframeEvent, 0, len(labels))
	for _, tf := range labels {
		g := rep.Gaps[tf]
		evt := &TimeframeEvent{
			RunID:          rep.RunID,
			Symbol:         rep.Symbol,
			Timeframe:      tf,
			Rows:           g.Rows,
			IntervalSec:    int64(g.OperativeInterval.Seconds()),
			Mismatch:       g.IsIntervalMismatch,
			Gaps:           g.Stats.TotalGaps,
			MissingPoints:  g.Stats.TotalMissingPoints,
			FixError:       rep.FixErrors[tf],
			ExcludedClosed: g.ExcludedClosures,
		}
		if fix, ok := rep.Fixes[tf]; ok {
			evt.Strategy = string(fix.Strategy)
			evt.PointsAdded = fix.PointsAdded
		}
		tfs = append(tfs, evt)
	}
	return run, tfs
}
