// Package detector finds missing-observation spans in a single timeframe series.
package detector

import (
	"math"
	"time"

	"GapSentinel/internal/calculator"
	"GapSentinel/internal/errs"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/model"
	"GapSentinel/internal/timeframe"

	"github.com/sirupsen/logrus"
)

const (
	DefaultGapMultiplier = 2.0
	// MinGapMultiplier keeps every gap wide enough for at least one slot, so a repaired
	// series never leaves a sub-2x remainder behind.
	MinGapMultiplier         = 2.0
	DefaultIntervalTolerance = 0.1
	DefaultClosureCeiling    = 24 * time.Hour
)

// Config tunes gap detection.
type Config struct {
	// GapMultiplier: a diff of at least GapMultiplier × operative interval is a gap.
	GapMultiplier float64
	// IntervalTolerance is the relative deviation allowed between actual and nominal interval.
	IntervalTolerance float64
	// ClosureCeiling drops longer gaps on minute-resolution data (market closures).
	ClosureCeiling time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	switch {
	case out.GapMultiplier == 0:
		out.GapMultiplier = DefaultGapMultiplier
	case out.GapMultiplier < MinGapMultiplier:
		out.GapMultiplier = MinGapMultiplier
	}
	if out.IntervalTolerance <= 0 {
		out.IntervalTolerance = DefaultIntervalTolerance
	}
	if out.ClosureCeiling <= 0 {
		out.ClosureCeiling = DefaultClosureCeiling
	}
	return out
}

// Detector scans series for gaps.
type Detector struct {
	cfg    Config
	logger *logrus.Logger
}

// New creates a Detector. A nil logger discards output.
func New(cfg Config, logger *logrus.Logger) *Detector {
	return &Detector{cfg: cfg.withDefaults(), logger: logging.OrDiscard(logger)}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// Detect analyzes one timeframe series. The input is not modified.
func (d *Detector) Detect(label string, series model.Series) (*model.GapReport, error) {
	if len(series.Records) == 0 {
		return nil, errs.New(errs.InvalidInput, "timeframe %s: empty series", label)
	}
	for i, r := range series.Records {
		if r.Time.IsZero() {
			return nil, errs.New(errs.InvalidInput, "timeframe %s: record %d has no timestamp", label, i)
		}
	}

	sorted := series.Sorted()
	times := make([]time.Time, len(sorted.Records))
	for i, r := range sorted.Records {
		times[i] = r.Time
	}
	start, end := sorted.Span()

	expected, known := timeframe.Expected(label)
	report := &model.GapReport{
		Timeframe:        label,
		Rows:             len(times),
		Start:            start,
		End:              end,
		ExpectedInterval: expected,
		Gaps:             []model.Gap{},
	}

	diffs := calculator.Diffs(times)
	actual, err := calculator.DominantInterval(diffs)
	if err != nil {
		// single record or all timestamps equal: nothing to scan
		report.ActualInterval = expected
		report.OperativeInterval = expected
		return report, nil
	}
	report.ActualInterval = actual
	report.OperativeInterval = d.operative(label, known, expected, actual, report)

	op := report.OperativeInterval
	threshold := time.Duration(float64(op) * d.cfg.GapMultiplier)
	minuteData := timeframe.IsMinuteResolution(op)

	for i, diff := range diffs {
		if diff < threshold {
			continue
		}
		if minuteData && diff > d.cfg.ClosureCeiling {
			report.ExcludedClosures++
			continue
		}
		report.Gaps = append(report.Gaps, newGap(times[i], times[i+1], op))
	}
	report.Stats = Summarize(report.Gaps)

	entry := d.logger.WithFields(logrus.Fields{
		"timeframe": label,
		"rows":      report.Rows,
		"gaps":      report.Stats.TotalGaps,
		"missing":   report.Stats.TotalMissingPoints,
	})
	if report.ExcludedClosures > 0 {
		entry = entry.WithField("closures", report.ExcludedClosures)
	}
	entry.Debug("gap scan complete")
	return report, nil
}

func (d *Detector) operative(label string, known bool, expected, actual time.Duration, report *model.GapReport) time.Duration {
	if !known {
		d.logger.WithFields(logrus.Fields{"timeframe": label, "actual": actual}).
			Warn("unknown timeframe label, using detected interval")
		return actual
	}
	deviation := math.Abs(float64(actual - expected))
	if deviation > d.cfg.IntervalTolerance*float64(expected) {
		report.IsIntervalMismatch = true
		d.logger.WithFields(logrus.Fields{
			"timeframe": label,
			"expected":  expected,
			"actual":    actual,
		}).Warn("interval mismatch, scanning at detected interval")
		return actual
	}
	return expected
}

func newGap(start, end time.Time, op time.Duration) model.Gap {
	dur := end.Sub(start)
	size := float64(dur) / float64(op)
	missing := int(math.Floor(size)) - 1
	if missing < 0 {
		missing = 0
	}
	return model.Gap{
		Start:                 start,
		End:                   end,
		Duration:              dur,
		ExpectedMissingPoints: missing,
		GapSize:               size,
	}
}
