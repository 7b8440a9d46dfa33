package model

import "time"

// Gap is a span between two existing observations that should hold more.
type Gap struct {
	Start                 time.Time     `json:"start"`
	End                   time.Time     `json:"end"`
	Duration              time.Duration `json:"duration"`
	ExpectedMissingPoints int           `json:"expected_missing_points"`
	GapSize               float64       `json:"gap_size"`
}

// GapStats summarizes the gaps of one timeframe.
type GapStats struct {
	TotalGaps          int           `json:"total_gaps"`
	TotalMissingPoints int           `json:"total_missing_points"`
	AvgGapSize         float64       `json:"avg_gap_size"`
	MinGapSize         float64       `json:"min_gap_size"`
	MaxGapSize         float64       `json:"max_gap_size"`
	StdGapSize         float64       `json:"std_gap_size"`
	TotalGapDuration   time.Duration `json:"total_gap_duration"`
}

// GapReport is the detector output for one timeframe.
type GapReport struct {
	Timeframe          string        `json:"timeframe"`
	Rows               int           `json:"rows"`
	Start              time.Time     `json:"start"`
	End                time.Time     `json:"end"`
	ExpectedInterval   time.Duration `json:"expected_interval"`
	ActualInterval     time.Duration `json:"actual_interval"`
	OperativeInterval  time.Duration `json:"operative_interval"`
	IsIntervalMismatch bool          `json:"is_interval_mismatch"`
	ExcludedClosures   int           `json:"excluded_closures"`
	Gaps               []Gap         `json:"gaps"`
	Stats              GapStats      `json:"stats"`
}

// HasGaps reports whether any gap was found.
func (r *GapReport) HasGaps() bool { return r != nil && len(r.Gaps) > 0 }
