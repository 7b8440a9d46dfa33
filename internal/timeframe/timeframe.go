// Package timeframe maps timeframe labels to their nominal sampling interval.
package timeframe

import (
	"sort"
	"strings"
	"time"
)

// Month is the nominal length used for monthly bars.
const Month = 30 * 24 * time.Hour

var intervals = map[string]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
	"D1":  24 * time.Hour,
	"W1":  7 * 24 * time.Hour,
	"MN1": Month,
}

// exchange-style aliases; "1M" is monthly, so lookup is case-sensitive first.
var aliases = map[string]string{
	"1m":  "M1",
	"5m":  "M5",
	"15m": "M15",
	"30m": "M30",
	"1h":  "H1",
	"4h":  "H4",
	"1d":  "D1",
	"1w":  "W1",
	"1M":  "MN1",
}

// Canonical returns the canonical label (e.g. "H1" for "1h") and whether it is known.
func Canonical(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if _, ok := intervals[label]; ok {
		return label, true
	}
	if c, ok := aliases[label]; ok {
		return c, true
	}
	up := strings.ToUpper(label)
	if _, ok := intervals[up]; ok {
		return up, true
	}
	if c, ok := aliases[strings.ToLower(label)]; ok {
		return c, true
	}
	return label, false
}

// Expected returns the nominal interval for label.
func Expected(label string) (time.Duration, bool) {
	c, ok := Canonical(label)
	if !ok {
		return 0, false
	}
	return intervals[c], true
}

// IsMinuteResolution reports whether d is a sub-hour sampling interval.
func IsMinuteResolution(d time.Duration) bool {
	return d > 0 && d < time.Hour
}

// Labels returns the canonical labels ordered by interval, shortest first.
func Labels() []string {
	out := make([]string, 0, len(intervals))
	for l := range intervals {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return intervals[out[i]] < intervals[out[j]] })
	return out
}

// SortLabels orders labels by nominal interval; unknown labels go last, alphabetically.
func SortLabels(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		di, oki := Expected(labels[i])
		dj, okj := Expected(labels[j])
		switch {
		case oki && okj:
			if di != dj {
				return di < dj
			}
			return labels[i] < labels[j]
		case oki:
			return true
		case okj:
			return false
		default:
			return labels[i] < labels[j]
		}
	})
}
