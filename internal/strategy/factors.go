package strategy

import (
	"math"

	"GapSentinel/internal/calculator"
	"GapSentinel/internal/model"

	"github.com/markcheno/go-talib"
)

// DataCharacteristics describes the value column the automatic choice is based on.
type DataCharacteristics struct {
	Field          string  `json:"field"`
	Points         int     `json:"points"`
	Mean           float64 `json:"mean"`
	TrendStrength  float64 `json:"trend_strength"`
	Volatility     float64 `json:"volatility"`
	CoeffVariation float64 `json:"coeff_variation"`
	Stationary     bool    `json:"stationary"`
}

// GapCharacteristics summarizes the gaps the fill has to cover.
type GapCharacteristics struct {
	TotalGaps  int     `json:"total_gaps"`
	AvgGapSize float64 `json:"avg_gap_size"`
	MaxGapSize float64 `json:"max_gap_size"`
}

// Characteristics is the input to Select.
type Characteristics struct {
	Data DataCharacteristics `json:"data"`
	Gaps GapCharacteristics  `json:"gaps"`
}

var preferredFields = []string{"close", "value", "price"}

// PrimaryField picks the column used for characterization: close, value or price when
// present, otherwise the first field in sorted order.
func PrimaryField(series model.Series) string {
	fields := series.Fields()
	if len(fields) == 0 {
		return ""
	}
	for _, want := range preferredFields {
		for _, f := range fields {
			if f == want {
				return f
			}
		}
	}
	return fields[0]
}

// Characterize measures the series and its gaps.
func Characterize(series model.Series, gaps []model.Gap) Characteristics {
	field := PrimaryField(series)
	sorted := series.Sorted()
	values := make([]float64, 0, len(sorted.Records))
	for _, r := range sorted.Records {
		if v, ok := r.Values[field]; ok {
			values = append(values, v)
		}
	}
	c := Characteristics{Data: describe(calculator.Finite(values))}
	c.Data.Field = field
	c.Gaps = describeGaps(gaps)
	return c
}

func describe(values []float64) DataCharacteristics {
	d := DataCharacteristics{Points: len(values)}
	if len(values) == 0 {
		return d
	}
	d.Mean, _ = calculator.Mean(values)
	if len(values) < 3 {
		d.Stationary = true
		return d
	}

	n := len(values)
	slope := talib.LinearRegSlope(values, n)[n-1]
	std := talib.StdDev(values, n, 1.0)[n-1]
	if d.Mean != 0 {
		d.TrendStrength = math.Abs(slope) * float64(n-1) / math.Abs(d.Mean)
		d.CoeffVariation = std / math.Abs(d.Mean)
	} else if std > 0 {
		d.CoeffVariation = math.Inf(1)
	}

	if returns := calculator.Returns(values); len(returns) > 1 {
		d.Volatility, _ = calculator.StdDev(returns)
	}
	d.Stationary = stationary(values, std)
	return d
}

// stationary compares the two halves of the series: their means must sit within half a
// standard deviation and their variances within a factor of two.
func stationary(values []float64, std float64) bool {
	if std == 0 {
		return true
	}
	mid := len(values) / 2
	first, second := values[:mid], values[mid:]
	m1, _ := calculator.Mean(first)
	m2, _ := calculator.Mean(second)
	if math.Abs(m1-m2) > 0.5*std {
		return false
	}
	s1, _ := calculator.StdDev(first)
	s2, _ := calculator.StdDev(second)
	v1, v2 := s1*s1, s2*s2
	if v1 == 0 && v2 == 0 {
		return true
	}
	if v1 == 0 || v2 == 0 {
		return false
	}
	ratio := v1 / v2
	return ratio >= 0.5 && ratio <= 2
}

func describeGaps(gaps []model.Gap) GapCharacteristics {
	g := GapCharacteristics{TotalGaps: len(gaps)}
	if len(gaps) == 0 {
		return g
	}
	sum := 0.0
	for _, gap := range gaps {
		sum += gap.GapSize
		if gap.GapSize > g.MaxGapSize {
			g.MaxGapSize = gap.GapSize
		}
	}
	g.AvgGapSize = sum / float64(len(gaps))
	return g
}
