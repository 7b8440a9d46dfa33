package strategy

import (
	"strings"

	"GapSentinel/internal/errs"
)

// Strategy names a numeric fill method.
type Strategy string

const (
	ForwardFill         Strategy = "forward_fill"
	BackwardFill        Strategy = "backward_fill"
	LinearInterpolation Strategy = "linear_interpolation"
	SplineInterpolation Strategy = "spline_interpolation"
	MeanFill            Strategy = "mean_fill"
	MedianFill          Strategy = "median_fill"
	Auto                Strategy = "auto"
)

var all = []Strategy{
	ForwardFill,
	BackwardFill,
	LinearInterpolation,
	SplineInterpolation,
	MeanFill,
	MedianFill,
	Auto,
}

// Available lists every strategy a caller may request.
func Available() []Strategy {
	return append([]Strategy(nil), all...)
}

// Valid reports whether s is one of the enumerated strategies.
func (s Strategy) Valid() bool {
	for _, v := range all {
		if v == s {
			return true
		}
	}
	return false
}

func (s Strategy) String() string { return string(s) }

// Parse resolves a strategy name. An empty name means Auto.
func Parse(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Auto, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", errs.New(errs.UnknownStrategy, "unknown fix strategy %q", name)
	}
	return s, nil
}
