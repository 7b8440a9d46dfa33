package calculator

import (
	"errors"
	"sort"
	"time"
)

// Diffs returns the successive differences of sorted timestamps.
func Diffs(times []time.Time) []time.Duration {
	if len(times) < 2 {
		return nil
	}
	out := make([]time.Duration, len(times)-1)
	for i := 1; i < len(times); i++ {
		out[i-1] = times[i].Sub(times[i-1])
	}
	return out
}

// DominantInterval returns the unique mode of the positive diffs, falling back to
// their median when the highest count is shared.
func DominantInterval(diffs []time.Duration) (time.Duration, error) {
	pos := make([]time.Duration, 0, len(diffs))
	for _, d := range diffs {
		if d > 0 {
			pos = append(pos, d)
		}
	}
	if len(pos) == 0 {
		return 0, errors.New("no positive intervals")
	}
	if mode, ok := ModeDuration(pos); ok {
		return mode, nil
	}
	return MedianDuration(pos), nil
}

// ModeDuration returns the most frequent duration when it is unique.
func ModeDuration(ds []time.Duration) (time.Duration, bool) {
	counts := make(map[time.Duration]int, len(ds))
	for _, d := range ds {
		counts[d]++
	}
	var best time.Duration
	bestCount, ties := 0, 0
	for d, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, ties = d, c, 1
		case c == bestCount:
			ties++
		}
	}
	if bestCount == 0 || ties > 1 {
		return 0, false
	}
	return best, true
}

// MedianDuration returns the median of ds; for even counts the lower-upper midpoint.
func MedianDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
