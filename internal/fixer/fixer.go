// Package fixer inserts the missing observations reported by the detector and fills
// their values with a chosen strategy.
package fixer

import (
	"math"
	"sort"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/logging"
	"GapSentinel/internal/model"
	"GapSentinel/internal/strategy"

	"github.com/sirupsen/logrus"
)

// Result describes one repaired series.
type Result struct {
	Series          model.Series              `json:"-"`
	Requested       strategy.Strategy         `json:"requested_strategy"`
	Strategy        strategy.Strategy         `json:"strategy"`
	Reason          string                    `json:"reason,omitempty"`
	GapsFixed       int                       `json:"gaps_fixed"`
	PointsAdded     int                       `json:"points_added"`
	OriginalLength  int                       `json:"original_length"`
	FinalLength     int                       `json:"final_length"`
	Characteristics *strategy.Characteristics `json:"characteristics,omitempty"`
}

// Fixer fills gaps.
type Fixer struct {
	thresholds strategy.Thresholds
	logger     *logrus.Logger
}

// New creates a Fixer. Zero thresholds select strategy.DefaultThresholds.
func New(th strategy.Thresholds, logger *logrus.Logger) *Fixer {
	return &Fixer{thresholds: th, logger: logging.OrDiscard(logger)}
}

// Fix returns a sorted copy of series with one record inserted for every expected
// missing slot of the reported gaps. Original records keep their values; inserted
// records get values from the strategy and labels carried forward.
func (f *Fixer) Fix(series model.Series, report *model.GapReport, s strategy.Strategy) (*Result, error) {
	if !s.Valid() {
		return nil, errs.New(errs.UnknownStrategy, "unknown fix strategy %q", s)
	}
	sorted := series.Sorted()
	res := &Result{
		Requested:      s,
		Strategy:       s,
		OriginalLength: len(sorted.Records),
	}
	if report == nil || !report.HasGaps() {
		if s == strategy.Auto {
			res.Strategy = strategy.ForwardFill
			res.Reason = "no gaps"
		}
		res.Series = sorted
		res.FinalLength = res.OriginalLength
		return res, nil
	}
	op := report.OperativeInterval
	if op <= 0 {
		return nil, errs.New(errs.InvalidInput, "timeframe %s: report has no operative interval", report.Timeframe)
	}

	if s == strategy.Auto {
		c := strategy.Characterize(sorted, report.Gaps)
		d := strategy.Select(c, f.thresholds)
		res.Strategy, res.Reason = d.Strategy, d.Reason
		res.Characteristics = &c
	}

	records, introduced := f.insertSlots(sorted.Records, report.Gaps, op, res)
	for _, field := range sorted.Fields() {
		if err := fillField(records, introduced, field, res.Strategy); err != nil {
			return nil, err
		}
	}
	carryLabels(records, introduced)

	sorted.Records = records
	res.Series = sorted
	res.FinalLength = len(records)

	f.logger.WithFields(logrus.Fields{
		"timeframe": report.Timeframe,
		"strategy":  res.Strategy,
		"gaps":      res.GapsFixed,
		"added":     res.PointsAdded,
	}).Debug("gaps filled")
	return res, nil
}

// insertSlots merges new empty records at start + k×op into the sorted originals.
func (f *Fixer) insertSlots(orig []model.Record, gaps []model.Gap, op time.Duration, res *Result) ([]model.Record, []bool) {
	existing := make(map[int64]struct{}, len(orig))
	for _, r := range orig {
		existing[r.Time.UnixNano()] = struct{}{}
	}

	var added []model.Record
	for _, g := range gaps {
		n := 0
		for k := 1; k <= g.ExpectedMissingPoints; k++ {
			ts := g.Start.Add(time.Duration(k) * op)
			if !ts.Before(g.End) {
				break
			}
			if _, dup := existing[ts.UnixNano()]; dup {
				continue
			}
			existing[ts.UnixNano()] = struct{}{}
			added = append(added, model.Record{Time: ts, Values: map[string]float64{}})
			n++
		}
		if n > 0 {
			res.GapsFixed++
			res.PointsAdded += n
		}
	}

	type slot struct {
		rec   model.Record
		fresh bool
	}
	all := make([]slot, 0, len(orig)+len(added))
	for _, r := range orig {
		all = append(all, slot{rec: r})
	}
	for _, r := range added {
		all = append(all, slot{rec: r, fresh: true})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].rec.Time.Before(all[j].rec.Time) })

	records := make([]model.Record, len(all))
	introduced := make([]bool, len(all))
	for i, s := range all {
		records[i] = s.rec
		introduced[i] = s.fresh
	}
	return records, introduced
}

func fillField(records []model.Record, introduced []bool, field string, s strategy.Strategy) error {
	if len(records) == 0 {
		return nil
	}
	t0 := records[0].Time
	col := &column{
		x:      make([]float64, len(records)),
		y:      make([]float64, len(records)),
		target: introduced,
	}
	for i, r := range records {
		col.x[i] = r.Time.Sub(t0).Seconds()
		col.y[i] = math.NaN()
		if introduced[i] {
			continue
		}
		if v, ok := r.Values[field]; ok {
			col.y[i] = v
		}
	}
	if err := col.fill(s); err != nil {
		return err
	}
	for i := range records {
		if introduced[i] && !math.IsNaN(col.y[i]) {
			records[i].Values[field] = col.y[i]
		}
	}
	return nil
}

// carryLabels copies the labels of the previous original record onto each inserted
// one, or of the next original when none precedes it.
func carryLabels(records []model.Record, introduced []bool) {
	var last map[string]string
	seen := false
	var pending []int
	for i := range records {
		if !introduced[i] {
			last, seen = records[i].Labels, true
			for _, p := range pending {
				records[p].Labels = copyLabels(last)
			}
			pending = pending[:0]
			continue
		}
		if seen {
			records[i].Labels = copyLabels(last)
		} else {
			pending = append(pending, i)
		}
	}
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
