package calculator

import (
	"errors"
	"sort"
)

// Spline is a natural cubic spline through a set of knots.
type Spline struct {
	xs, ys, m []float64
}

// NaturalCubic fits a natural cubic spline (zero second derivative at both ends).
// xs must be strictly increasing and contain at least three knots.
func NaturalCubic(xs, ys []float64) (*Spline, error) {
	n := len(xs)
	if n != len(ys) {
		return nil, errors.New("spline: xs and ys differ in length")
	}
	if n < 3 {
		return nil, errors.New("spline: need at least 3 knots")
	}
	h := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h[i] = xs[i+1] - xs[i]
		if h[i] <= 0 {
			return nil, errors.New("spline: xs must be strictly increasing")
		}
	}

	// Thomas algorithm over the interior second derivatives.
	m := make([]float64, n)
	inner := n - 2
	diag := make([]float64, inner)
	rhs := make([]float64, inner)
	for i := 0; i < inner; i++ {
		diag[i] = 2 * (h[i] + h[i+1])
		rhs[i] = 6 * ((ys[i+2]-ys[i+1])/h[i+1] - (ys[i+1]-ys[i])/h[i])
	}
	for i := 1; i < inner; i++ {
		w := h[i] / diag[i-1]
		diag[i] -= w * h[i]
		rhs[i] -= w * rhs[i-1]
	}
	for i := inner - 1; i >= 0; i-- {
		v := rhs[i]
		if i < inner-1 {
			v -= h[i+1] * m[i+2]
		}
		m[i+1] = v / diag[i]
	}

	return &Spline{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
		m:  m,
	}, nil
}

// Eval evaluates the spline at x. Outside the knot range the end segments are extended.
func (s *Spline) Eval(x float64) float64 {
	n := len(s.xs)
	i := sort.SearchFloat64s(s.xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	h := s.xs[i+1] - s.xs[i]
	a := (s.xs[i+1] - x) / h
	b := (x - s.xs[i]) / h
	return a*s.ys[i] + b*s.ys[i+1] +
		((a*a*a-a)*s.m[i]+(b*b*b-b)*s.m[i+1])*h*h/6
}
