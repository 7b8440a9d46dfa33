package strategy

import (
	"testing"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/model"
)

func seriesOf(values []float64) model.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.Series{}
	for i, v := range values {
		s.Records = append(s.Records, model.Record{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Values: map[string]float64{"close": v},
		})
	}
	return s
}

func build(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestSelect_DecisionRules(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Strategy
	}{
		{"trend", build(100, func(i int) float64 { return 100 + float64(i) }), LinearInterpolation},
		{"volatile", build(100, func(i int) float64 { return 100 + 10*float64(i%2) }), SplineInterpolation},
		{"flat", build(100, func(i int) float64 { return 100 + 0.001*float64(i%3) }), MeanFill},
		{"level shift", build(100, func(i int) float64 {
			if i < 50 {
				return 100
			}
			return 110
		}), ForwardFill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Characterize(seriesOf(tt.values), nil)
			d := Select(c, Thresholds{})
			if d.Strategy != tt.want {
				t.Errorf("expected %s, got %s (%+v)", tt.want, d.Strategy, c.Data)
			}
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	c := Characterize(seriesOf(build(60, func(i int) float64 { return 50 + float64(i%7) })), nil)
	first := Select(c, Thresholds{})
	for i := 0; i < 10; i++ {
		if got := Select(c, Thresholds{}); got != first {
			t.Fatalf("selection changed between calls: %v vs %v", first, got)
		}
	}
	if first.Strategy == Auto {
		t.Error("Select must resolve to a concrete strategy")
	}
}

func TestCharacterize_GapSummary(t *testing.T) {
	gaps := []model.Gap{{GapSize: 2}, {GapSize: 6}}
	c := Characterize(seriesOf([]float64{1, 2, 3, 4}), gaps)
	if c.Gaps.TotalGaps != 2 || c.Gaps.AvgGapSize != 4 || c.Gaps.MaxGapSize != 6 {
		t.Errorf("unexpected gap characteristics: %+v", c.Gaps)
	}
	if c.Data.Field != "close" || c.Data.Points != 4 {
		t.Errorf("unexpected data characteristics: %+v", c.Data)
	}
}

func TestCharacterize_ShortSeries(t *testing.T) {
	c := Characterize(seriesOf([]float64{5, 6}), nil)
	if !c.Data.Stationary {
		t.Error("short series should count as stationary")
	}
	if got := Select(c, Thresholds{}).Strategy; got != MeanFill {
		t.Errorf("expected mean_fill for short series, got %s", got)
	}
}

func TestPrimaryField(t *testing.T) {
	s := model.Series{Records: []model.Record{{Values: map[string]float64{"volume": 1, "open": 2}}}}
	if got := PrimaryField(s); got != "open" {
		t.Errorf("expected first sorted field, got %q", got)
	}
	s.Records[0].Values["price"] = 3
	if got := PrimaryField(s); got != "price" {
		t.Errorf("expected price, got %q", got)
	}
}

func TestParse(t *testing.T) {
	for _, s := range Available() {
		got, err := Parse(string(s))
		if err != nil || got != s {
			t.Errorf("Parse(%q) = %q, %v", s, got, err)
		}
	}
	if got, _ := Parse(""); got != Auto {
		t.Errorf("empty name should mean auto, got %q", got)
	}
	if _, err := Parse("cubic_magic"); !errs.Is(err, errs.UnknownStrategy) {
		t.Errorf("expected UnknownStrategy, got %v", err)
	}
}
