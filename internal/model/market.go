package model

import (
	"sort"
	"time"
)

// Record is a single observation of a series: numeric fields plus optional labels.
type Record struct {
	Time   time.Time          `json:"time"`
	Values map[string]float64 `json:"values"`
	Labels map[string]string  `json:"labels,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Time: r.Time}
	if r.Values != nil {
		out.Values = make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	if r.Labels != nil {
		out.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// Series holds one timeframe of one symbol.
type Series struct {
	Symbol    string   `json:"symbol,omitempty"`
	Timeframe string   `json:"timeframe,omitempty"`
	Records   []Record `json:"records"`
}

// Len returns the number of records.
func (s Series) Len() int { return len(s.Records) }

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	out := Series{Symbol: s.Symbol, Timeframe: s.Timeframe, Records: make([]Record, len(s.Records))}
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Sorted returns a copy ordered by time. The sort is stable.
func (s Series) Sorted() Series {
	out := s.Clone()
	sort.SliceStable(out.Records, func(i, j int) bool {
		return out.Records[i].Time.Before(out.Records[j].Time)
	})
	return out
}

// Fields returns the numeric field names present in any record, sorted.
func (s Series) Fields() []string {
	seen := make(map[string]struct{})
	for _, r := range s.Records {
		for k := range r.Values {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Span returns the first and last timestamps. The series must be sorted and non-empty.
func (s Series) Span() (time.Time, time.Time) {
	if len(s.Records) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Records[0].Time, s.Records[len(s.Records)-1].Time
}

// Dataset maps a timeframe label to its series.
type Dataset map[string]Series

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	out := make(Dataset, len(d))
	for k, s := range d {
		out[k] = s.Clone()
	}
	return out
}

// Rows returns the total record count across timeframes.
func (d Dataset) Rows() int {
	n := 0
	for _, s := range d {
		n += len(s.Records)
	}
	return n
}

// Timeframes returns the dataset keys sorted alphabetically.
func (d Dataset) Timeframes() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
