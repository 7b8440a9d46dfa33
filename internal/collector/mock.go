package collector

import (
	"context"
	"fmt"
	"time"

	"GapSentinel/internal/model"
	"GapSentinel/internal/timeframe"
)

// MockSource generates regular bars for development and knocks holes into them so
// every run has something to repair.
type MockSource struct {
	Price      float64
	Bars       int
	Holes      int
	Timeframes []string
	End        time.Time // zero means now
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Load(ctx context.Context, symbol string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m.Timeframes))
	for _, tf := range m.Timeframes {
		step, ok := timeframe.Expected(tf)
		if !ok {
			return nil, fmt.Errorf("mock source: unknown timeframe %q", tf)
		}
		out[tf] = m.series(symbol, tf, step)
	}
	return out, nil
}

func (m *MockSource) series(symbol, tf string, step time.Duration) model.Series {
	price := m.Price
	if price <= 0 {
		price = 100
	}
	end := m.End
	if end.IsZero() {
		end = time.Now()
	}
	end = end.UTC().Truncate(step)
	count := m.Bars
	if count < 3 {
		count = 3
	}

	drop := holePositions(count, m.Holes)
	bars := make([]bar, 0, count)
	for i := 0; i < count; i++ {
		if drop[i] {
			continue
		}
		p := price * (1 + float64(i-count/2)*0.001)
		bars = append(bars, bar{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
	}
	return barsToSeries(symbol, tf, bars)
}

// holePositions spreads holes evenly over the interior; hole k removes 1 + k%3 bars.
// The first and last bars always survive.
func holePositions(count, holes int) map[int]bool {
	drop := make(map[int]bool)
	if holes <= 0 {
		return drop
	}
	for k := 0; k < holes; k++ {
		at := (k + 1) * count / (holes + 1)
		for j := 0; j < 1+k%3; j++ {
			if i := at + j; i > 0 && i < count-1 {
				drop[i] = true
			}
		}
	}
	return drop
}
