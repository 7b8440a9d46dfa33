// Package collector loads symbol datasets for repair and stores the repaired output.
package collector

import (
	"context"
	"regexp"
	"sort"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/model"
)

// Source loads the timeframes of one symbol as analyzer input.
type Source interface {
	Load(ctx context.Context, symbol string) (map[string]any, error)
	Name() string
}

// Writer persists a repaired dataset.
type Writer interface {
	Save(ctx context.Context, symbol string, output map[string]any) error
}

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9^][A-Za-z0-9_.=^-]*$`)

func checkSymbol(symbol string) error {
	if len(symbol) > 64 || !symbolPattern.MatchString(symbol) {
		return errs.New(errs.InvalidInput, "invalid symbol %q", symbol)
	}
	return nil
}

// bar is one OHLCV observation before it becomes a record.
type bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func barsToSeries(symbol, tf string, bars []bar) model.Series {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	s := model.Series{Symbol: symbol, Timeframe: tf, Records: make([]model.Record, 0, len(bars))}
	for _, b := range bars {
		s.Records = append(s.Records, model.Record{
			Time: b.Time.UTC(),
			Values: map[string]float64{
				"open":   b.Open,
				"high":   b.High,
				"low":    b.Low,
				"close":  b.Close,
				"volume": b.Volume,
			},
		})
	}
	return s
}
