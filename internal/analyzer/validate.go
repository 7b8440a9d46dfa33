package analyzer

import (
	"fmt"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/timeframe"
)

// TimeframeCheck is the read-only structural check of one series.
type TimeframeCheck struct {
	Timeframe  string    `json:"timeframe"`
	Rows       int       `json:"rows"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Sorted     bool      `json:"sorted"`
	Duplicates int       `json:"duplicates"`
	Valid      bool      `json:"valid"`
	Problems   []string  `json:"problems,omitempty"`
}

// DatasetValidation collects the per-timeframe checks.
type DatasetValidation struct {
	Shape      string           `json:"shape"`
	Valid      bool             `json:"valid"`
	TotalRows  int              `json:"total_rows"`
	Timeframes []TimeframeCheck `json:"timeframes"`
}

// ValidateDataset reports row counts and spans per timeframe without modifying input.
// A series with missing timestamps or duplicates fails the check; an unsorted one is
// only flagged, since detection sorts it. The returned error is ValidationFailed when
// any timeframe fails.
func (a *Analyzer) ValidateDataset(input map[string]any) (*DatasetValidation, error) {
	shape, ds, err := Resolve(input)
	if err != nil {
		return nil, err
	}
	out := &DatasetValidation{Shape: shape.Kind(), Valid: true}
	labels := shape.Timeframes()
	timeframe.SortLabels(labels)

	var failed []string
	for _, label := range labels {
		s := ds[label]
		c := TimeframeCheck{Timeframe: label, Rows: len(s.Records), Sorted: true}
		if c.Rows == 0 {
			c.Problems = append(c.Problems, "no records")
		}
		seen := make(map[int64]struct{}, len(s.Records))
		zero := 0
		for i, r := range s.Records {
			if r.Time.IsZero() {
				zero++
				continue
			}
			if _, dup := seen[r.Time.UnixNano()]; dup {
				c.Duplicates++
			}
			seen[r.Time.UnixNano()] = struct{}{}
			if i > 0 && r.Time.Before(s.Records[i-1].Time) {
				c.Sorted = false
			}
			if c.Start.IsZero() || r.Time.Before(c.Start) {
				c.Start = r.Time
			}
			if r.Time.After(c.End) {
				c.End = r.Time
			}
		}
		if zero > 0 {
			c.Problems = append(c.Problems, fmt.Sprintf("%d records without timestamp", zero))
		}
		if c.Duplicates > 0 {
			c.Problems = append(c.Problems, fmt.Sprintf("%d duplicate timestamps", c.Duplicates))
		}
		c.Valid = len(c.Problems) == 0
		if !c.Valid {
			out.Valid = false
			failed = append(failed, label)
		}
		out.TotalRows += c.Rows
		out.Timeframes = append(out.Timeframes, c)
	}
	if !out.Valid {
		return out, errs.New(errs.ValidationFailed, "timeframes failed validation: %v", failed)
	}
	return out, nil
}
