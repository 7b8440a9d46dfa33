package fixer

import (
	"math"

	"GapSentinel/internal/calculator"
	"GapSentinel/internal/errs"
	"GapSentinel/internal/strategy"
)

// column is one numeric field laid out over the merged timeline. NaN marks a slot
// without a value; only slots flagged in target are ever written.
type column struct {
	x      []float64
	y      []float64
	target []bool
}

func (c *column) known(i int) bool {
	return !c.target[i] && !math.IsNaN(c.y[i])
}

// runs returns [start, end] index pairs of consecutive unfilled target slots.
func (c *column) runs() [][2]int {
	var out [][2]int
	start := -1
	for i := range c.y {
		open := c.target[i] && math.IsNaN(c.y[i])
		switch {
		case open && start < 0:
			start = i
		case !open && start >= 0:
			out = append(out, [2]int{start, i - 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, [2]int{start, len(c.y) - 1})
	}
	return out
}

// neighbours returns up to k known indices before a (nearest last) and after b.
func (c *column) neighbours(a, b, k int) (left, right []int) {
	for i := a - 1; i >= 0 && len(left) < k; i-- {
		if c.known(i) {
			left = append([]int{i}, left...)
		}
	}
	for i := b + 1; i < len(c.y) && len(right) < k; i++ {
		if c.known(i) {
			right = append(right, i)
		}
	}
	return left, right
}

func (c *column) fill(s strategy.Strategy) error {
	switch s {
	case strategy.ForwardFill:
		c.forward()
	case strategy.BackwardFill:
		c.backward()
	case strategy.LinearInterpolation:
		c.linear()
	case strategy.SplineInterpolation:
		c.spline()
	case strategy.MeanFill:
		c.constant(calculator.Mean)
	case strategy.MedianFill:
		c.constant(calculator.Median)
	default:
		return errs.New(errs.UnknownStrategy, "strategy %q cannot fill values", s)
	}
	// whatever the strategy could not reach falls back to the nearest known value
	c.forward()
	c.backward()
	return nil
}

func (c *column) forward() {
	last := math.NaN()
	for i := range c.y {
		if c.target[i] && math.IsNaN(c.y[i]) {
			c.y[i] = last
			continue
		}
		if !math.IsNaN(c.y[i]) {
			last = c.y[i]
		}
	}
}

func (c *column) backward() {
	next := math.NaN()
	for i := len(c.y) - 1; i >= 0; i-- {
		if c.target[i] && math.IsNaN(c.y[i]) {
			c.y[i] = next
			continue
		}
		if !math.IsNaN(c.y[i]) {
			next = c.y[i]
		}
	}
}

func (c *column) linear() {
	for _, r := range c.runs() {
		left, right := c.neighbours(r[0], r[1], 1)
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		c.interpolate(r, left[0], right[0])
	}
}

func (c *column) interpolate(r [2]int, l, h int) {
	x0, y0 := c.x[l], c.y[l]
	x1, y1 := c.x[h], c.y[h]
	for i := r[0]; i <= r[1]; i++ {
		c.y[i] = y0 + (y1-y0)*(c.x[i]-x0)/(x1-x0)
	}
}

// spline fits a natural cubic through up to three known points either side of each
// run. With fewer than four anchors it degrades to linear interpolation.
func (c *column) spline() {
	for _, r := range c.runs() {
		left, right := c.neighbours(r[0], r[1], 3)
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		anchors := append(append([]int(nil), left...), right...)
		if len(anchors) < 4 {
			c.interpolate(r, left[len(left)-1], right[0])
			continue
		}
		xs := make([]float64, len(anchors))
		ys := make([]float64, len(anchors))
		for i, a := range anchors {
			xs[i], ys[i] = c.x[a], c.y[a]
		}
		sp, err := calculator.NaturalCubic(xs, ys)
		if err != nil {
			c.interpolate(r, left[len(left)-1], right[0])
			continue
		}
		for i := r[0]; i <= r[1]; i++ {
			c.y[i] = sp.Eval(c.x[i])
		}
	}
}

func (c *column) constant(stat func([]float64) (float64, error)) {
	vals := make([]float64, 0, len(c.y))
	for i := range c.y {
		if c.known(i) {
			vals = append(vals, c.y[i])
		}
	}
	v, err := stat(vals)
	if err != nil {
		return
	}
	for i := range c.y {
		if c.target[i] && math.IsNaN(c.y[i]) {
			c.y[i] = v
		}
	}
}
