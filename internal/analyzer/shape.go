package analyzer

import (
	"encoding/json"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/model"
)

// ContainerKey is the top-level key under which a wrapped dataset keeps its timeframes.
const ContainerKey = "timeframes"

// Shape records how a dataset was laid out so the repaired series can be put back the
// same way. It is either Wrapped or Flat.
type Shape interface {
	Kind() string
	Timeframes() []string
	Reassemble(ds model.Dataset) map[string]any
	shape()
}

// Wrapped: timeframes live under ContainerKey, next to unrelated top-level entries.
type Wrapped struct {
	Container string
	Entries   []string
	// Extra holds the other top-level entries; Inner the non-series entries inside the container.
	Extra map[string]any
	Inner map[string]any
}

// Flat: timeframes are top-level entries mixed with unrelated metadata.
type Flat struct {
	Entries []string
	Extra   map[string]any
}

func (Wrapped) shape() {}
func (Flat) shape()    {}

func (Wrapped) Kind() string { return "wrapped" }
func (Flat) Kind() string    { return "flat" }

func (w Wrapped) Timeframes() []string { return append([]string(nil), w.Entries...) }
func (f Flat) Timeframes() []string    { return append([]string(nil), f.Entries...) }

func (w Wrapped) Reassemble(ds model.Dataset) map[string]any {
	out := copyMap(w.Extra)
	inner := copyMap(w.Inner)
	for _, tf := range w.Entries {
		if s, ok := ds[tf]; ok {
			inner[tf] = s
		}
	}
	out[w.Container] = inner
	return out
}

func (f Flat) Reassemble(ds model.Dataset) map[string]any {
	out := copyMap(f.Extra)
	for _, tf := range f.Entries {
		if s, ok := ds[tf]; ok {
			out[tf] = s
		}
	}
	return out
}

// Resolve works out the shape of input once and extracts every entry that is a time
// series. Entries failing the series check are kept aside as metadata.
func Resolve(input map[string]any) (Shape, model.Dataset, error) {
	if len(input) == 0 {
		return nil, nil, errs.New(errs.NoTimeframeData, "dataset is empty")
	}
	if raw, ok := input[ContainerKey]; ok {
		if inner, ok := asMap(raw); ok {
			ds, entries, rest := extract(inner)
			if len(entries) == 0 {
				return nil, nil, errs.New(errs.NoTimeframeData, "container %q holds no time series", ContainerKey)
			}
			extra := make(map[string]any, len(input)-1)
			for k, v := range input {
				if k != ContainerKey {
					extra[k] = v
				}
			}
			return Wrapped{Container: ContainerKey, Entries: entries, Extra: extra, Inner: rest}, ds, nil
		}
	}
	ds, entries, rest := extract(input)
	if len(entries) == 0 {
		return nil, nil, errs.New(errs.NoTimeframeData, "no time series found in %d entries", len(input))
	}
	return Flat{Entries: entries, Extra: rest}, ds, nil
}

func extract(m map[string]any) (model.Dataset, []string, map[string]any) {
	ds := make(model.Dataset)
	rest := make(map[string]any)
	for k, v := range m {
		s, ok := asSeries(v)
		if !ok {
			rest[k] = v
			continue
		}
		if s.Timeframe == "" {
			s.Timeframe = k
		}
		ds[k] = s
	}
	return ds, ds.Timeframes(), rest
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case model.Dataset:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case map[string]model.Series:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	case json.RawMessage:
		var out map[string]any
		if err := json.Unmarshal(m, &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// asSeries is the series predicate: a typed series, or JSON that decodes into records
// each carrying a timestamp.
func asSeries(v any) (model.Series, bool) {
	switch s := v.(type) {
	case model.Series:
		return s.Clone(), true
	case *model.Series:
		if s == nil {
			return model.Series{}, false
		}
		return s.Clone(), true
	case json.RawMessage:
		return decodeSeries(s)
	case []byte:
		return decodeSeries(s)
	case map[string]any, []any:
		raw, err := json.Marshal(s)
		if err != nil {
			return model.Series{}, false
		}
		return decodeSeries(raw)
	}
	return model.Series{}, false
}

func decodeSeries(raw []byte) (model.Series, bool) {
	var wrapper struct {
		Symbol    string          `json:"symbol"`
		Timeframe string          `json:"timeframe"`
		Records   *[]model.Record `json:"records"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Records != nil {
		s := model.Series{Symbol: wrapper.Symbol, Timeframe: wrapper.Timeframe, Records: *wrapper.Records}
		return s, timestamped(s.Records)
	}
	var records []model.Record
	if err := json.Unmarshal(raw, &records); err == nil {
		return model.Series{Records: records}, timestamped(records)
	}
	return model.Series{}, false
}

func timestamped(records []model.Record) bool {
	if len(records) == 0 {
		return false
	}
	for _, r := range records {
		if r.Time.IsZero() || len(r.Values) == 0 {
			return false
		}
	}
	return true
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
