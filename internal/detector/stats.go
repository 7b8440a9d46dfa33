package detector

import (
	"time"

	"GapSentinel/internal/calculator"
	"GapSentinel/internal/model"
)

// Summarize computes the per-timeframe statistics of a gap list.
func Summarize(gaps []model.Gap) model.GapStats {
	stats := model.GapStats{TotalGaps: len(gaps)}
	if len(gaps) == 0 {
		return stats
	}
	sizes := make([]float64, len(gaps))
	var total time.Duration
	for i, g := range gaps {
		sizes[i] = g.GapSize
		stats.TotalMissingPoints += g.ExpectedMissingPoints
		total += g.Duration
	}
	stats.TotalGapDuration = total
	stats.AvgGapSize, _ = calculator.Mean(sizes)
	stats.StdGapSize, _ = calculator.StdDev(sizes)
	stats.MinGapSize, stats.MaxGapSize, _ = calculator.MinMax(sizes)
	return stats
}

// Totals is the cross-timeframe rollup of gap statistics.
type Totals struct {
	TotalTimeframes    int           `json:"total_timeframes"`
	TimeframesWithGaps int           `json:"timeframes_with_gaps"`
	TotalGaps          int           `json:"total_gaps"`
	TotalMissingPoints int           `json:"total_missing_points"`
	TotalGapDuration   time.Duration `json:"total_gap_duration"`
	GapRatio           float64       `json:"gap_ratio"`
}

// Rollup sums per-timeframe reports into totals.
func Rollup(reports map[string]*model.GapReport) Totals {
	t := Totals{TotalTimeframes: len(reports)}
	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.HasGaps() {
			t.TimeframesWithGaps++
		}
		t.TotalGaps += r.Stats.TotalGaps
		t.TotalMissingPoints += r.Stats.TotalMissingPoints
		t.TotalGapDuration += r.Stats.TotalGapDuration
	}
	if t.TotalTimeframes > 0 {
		t.GapRatio = float64(t.TimeframesWithGaps) / float64(t.TotalTimeframes)
	}
	return t
}
