package calculator

import (
	"errors"
	"math"
	"sort"
)

// ErrNoValues is returned when a statistic is requested over no finite values.
var ErrNoValues = errors.New("no finite values")

// Finite returns the values that are neither NaN nor infinite.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// Mean computes the arithmetic mean of the finite values.
func Mean(values []float64) (float64, error) {
	vs := Finite(values)
	if len(vs) == 0 {
		return 0, ErrNoValues
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs)), nil
}

// Median computes the median of the finite values.
func Median(values []float64) (float64, error) {
	vs := Finite(values)
	if len(vs) == 0 {
		return 0, ErrNoValues
	}
	sort.Float64s(vs)
	n := len(vs)
	if n%2 == 1 {
		return vs[n/2], nil
	}
	return (vs[n/2-1] + vs[n/2]) / 2, nil
}

// StdDev computes the population standard deviation of the finite values.
func StdDev(values []float64) (float64, error) {
	vs := Finite(values)
	if len(vs) == 0 {
		return 0, ErrNoValues
	}
	mean, _ := Mean(vs)
	acc := 0.0
	for _, v := range vs {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(vs))), nil
}

// MinMax returns the smallest and largest finite values.
func MinMax(values []float64) (lo, hi float64, err error) {
	vs := Finite(values)
	if len(vs) == 0 {
		return 0, 0, ErrNoValues
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, nil
}

// Returns computes simple returns between consecutive finite, non-zero values.
func Returns(values []float64) []float64 {
	vs := Finite(values)
	if len(vs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(vs)-1)
	for i := 1; i < len(vs); i++ {
		if vs[i-1] == 0 {
			continue
		}
		out = append(out, (vs[i]-vs[i-1])/vs[i-1])
	}
	return out
}
