package strategy

// Thresholds drive the automatic strategy choice.
type Thresholds struct {
	// Trend strength above which linear interpolation is preferred.
	Trend float64
	// Return volatility above which spline interpolation is preferred.
	Volatility float64
	// Coefficient of variation below which the series counts as low-variation.
	LowVariation float64
}

// DefaultThresholds are used when a zero Thresholds is supplied.
var DefaultThresholds = Thresholds{
	Trend:        0.2,
	Volatility:   0.02,
	LowVariation: 0.01,
}

func (t Thresholds) orDefault() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds
	}
	return t
}

// Decision is the outcome of Select: the chosen strategy and the rule that fired.
type Decision struct {
	Strategy Strategy
	Reason   string
}

// Select maps characteristics to a concrete strategy. It never returns Auto and is a
// pure function of its inputs.
func Select(c Characteristics, th Thresholds) Decision {
	th = th.orDefault()
	d := c.Data
	switch {
	case d.TrendStrength > th.Trend:
		return Decision{Strategy: LinearInterpolation, Reason: "strong trend"}
	case d.Volatility > th.Volatility:
		return Decision{Strategy: SplineInterpolation, Reason: "high volatility"}
	case d.CoeffVariation < th.LowVariation || d.Stationary:
		return Decision{Strategy: MeanFill, Reason: "low variation or stationary"}
	default:
		return Decision{Strategy: ForwardFill, Reason: "default"}
	}
}
