package analyzer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"GapSentinel/internal/backup"
	"GapSentinel/internal/errs"
	"GapSentinel/internal/history"
	"GapSentinel/internal/model"
	"GapSentinel/internal/strategy"
)

var base = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func series(n int, step time.Duration, skip ...int) model.Series {
	drop := make(map[int]bool)
	for _, i := range skip {
		drop[i] = true
	}
	s := model.Series{Symbol: "EURUSD"}
	for i := 0; i < n; i++ {
		if drop[i] {
			continue
		}
		s.Records = append(s.Records, model.Record{
			Time:   base.Add(time.Duration(i) * step),
			Values: map[string]float64{"close": 100 + float64(i), "volume": 10},
		})
	}
	return s
}

func flatInput() map[string]any {
	return map[string]any{
		"H1":     series(24, time.Hour, 3, 4),
		"M15":    series(96, 15*time.Minute),
		"D1":     series(30, 24*time.Hour, 10),
		"symbol": "EURUSD",
		"source": map[string]any{"feed": "mock"},
	}
}

func TestRun_FlatShape(t *testing.T) {
	a := New(Config{}, nil, nil)
	in := flatInput()
	res, err := a.Run(context.Background(), in, Options{Symbol: "EURUSD", Strategy: strategy.LinearInterpolation})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep := res.Report
	if rep.Shape != "flat" || rep.Status != StatusDone {
		t.Errorf("unexpected report header: shape=%s status=%s", rep.Shape, rep.Status)
	}
	want := Summary{
		TotalTimeframes:       3,
		GapsDetected:          2,
		MissingPoints:         3,
		TimeframesWithGaps:    2,
		GapsFixed:             2,
		PointsAdded:           3,
		TimeframesFixed:       2,
		FixingSuccessRate:     100,
		TotalGapDurationHours: 51,
	}
	if rep.Summary != want {
		t.Errorf("unexpected summary:\n got %+v\nwant %+v", rep.Summary, want)
	}

	if res.Output["symbol"] != "EURUSD" {
		t.Error("metadata entry lost in output")
	}
	if _, ok := res.Output["source"]; !ok {
		t.Error("nested metadata entry lost in output")
	}
	h1, ok := res.Output["H1"].(model.Series)
	if !ok || h1.Len() != 24 {
		t.Fatalf("expected repaired H1 with 24 records, got %T", res.Output["H1"])
	}
	if in["H1"].(model.Series).Len() != 22 {
		t.Error("input series was modified")
	}
	if m15 := res.Output["M15"].(model.Series); m15.Len() != 96 {
		t.Errorf("gap-free timeframe changed length: %d", m15.Len())
	}
}

func TestRun_WrappedShapeWithRawJSON(t *testing.T) {
	h1, _ := json.Marshal(series(10, time.Hour, 5))
	in := map[string]any{
		ContainerKey: map[string]any{
			"H1":    json.RawMessage(h1),
			"notes": "hand-collected",
		},
		"exported_at": "2024-03-05",
	}
	res, err := New(Config{}, nil, nil).Run(context.Background(), in, Options{Strategy: strategy.ForwardFill})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Report.Shape != "wrapped" {
		t.Errorf("expected wrapped shape, got %s", res.Report.Shape)
	}
	inner, ok := res.Output[ContainerKey].(map[string]any)
	if !ok {
		t.Fatalf("expected container in output, got %T", res.Output[ContainerKey])
	}
	if inner["notes"] != "hand-collected" || res.Output["exported_at"] != "2024-03-05" {
		t.Error("non-series entries were not preserved")
	}
	if s := inner["H1"].(model.Series); s.Len() != 10 {
		t.Errorf("expected 10 records after repair, got %d", s.Len())
	}
}

func TestRun_Errors(t *testing.T) {
	a := New(Config{HistorySize: 10}, nil, nil)
	ctx := context.Background()

	if _, err := a.Run(ctx, map[string]any{"symbol": "X"}, Options{}); !errs.Is(err, errs.NoTimeframeData) {
		t.Errorf("expected NoTimeframeData, got %v", err)
	}
	if _, err := a.Run(ctx, flatInput(), Options{Strategy: "wavelet"}); !errs.Is(err, errs.UnknownStrategy) {
		t.Errorf("expected UnknownStrategy, got %v", err)
	}
	bad := flatInput()
	bad["H4"] = model.Series{}
	if _, err := a.Run(ctx, bad, Options{}); !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected detection to fail fast with InvalidInput, got %v", err)
	}

	hist := a.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(hist))
	}
	for _, h := range hist {
		if h.Status != StatusFailed || h.Error == "" {
			t.Errorf("expected failed entry with error, got %+v", h)
		}
	}
}

func TestRun_BackupPhase(t *testing.T) {
	ctx := context.Background()
	st, err := backup.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	a := New(Config{}, backup.NewManager(st, nil), nil)

	in := flatInput()
	res, err := a.Run(ctx, in, Options{Symbol: "EURUSD", Backup: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rep := res.Report
	if !rep.BackupCreated || !strings.HasPrefix(rep.BackupName, "EURUSD_backup_") {
		t.Fatalf("expected backup, got created=%v name=%q err=%q", rep.BackupCreated, rep.BackupName, rep.BackupError)
	}
	if len(rep.Phases.Phases) != 3 {
		t.Errorf("expected 3 phases, got %d", len(rep.Phases.Phases))
	}

	restored, meta, err := a.RestoreFromBackup(ctx, rep.BackupName)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if meta.Tag != "EURUSD" {
		t.Errorf("expected tag EURUSD, got %s", meta.Tag)
	}
	if restored["H1"].Len() != 22 {
		t.Errorf("backup should hold the unrepaired series, got %d records", restored["H1"].Len())
	}

	list, err := a.ListBackups(ctx, "EURUSD")
	if err != nil || len(list) != 1 {
		t.Errorf("expected one backup, got %d (%v)", len(list), err)
	}
	v, err := a.ValidateBackup(ctx, rep.BackupName)
	if err != nil || !v.Valid {
		t.Errorf("expected valid backup, got %+v (%v)", v, err)
	}
	if n, err := a.CleanupBackups(ctx, 0); err != nil || n != 1 {
		t.Errorf("expected 1 deleted, got %d (%v)", n, err)
	}
}

func TestRun_BackupFailureDoesNotAbort(t *testing.T) {
	a := New(Config{}, nil, nil)
	res, err := a.Run(context.Background(), flatInput(), Options{Backup: true})
	if err != nil {
		t.Fatalf("run should continue without backup store: %v", err)
	}
	if res.Report.BackupCreated || res.Report.BackupError == "" {
		t.Errorf("expected recorded backup failure, got %+v", res.Report)
	}
	if _, err := a.ListBackups(context.Background(), ""); !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected InvalidInput without a store, got %v", err)
	}
}

func TestRun_AutoResolvesPerTimeframe(t *testing.T) {
	res, err := New(Config{}, nil, nil).Run(context.Background(), flatInput(), Options{Strategy: strategy.Auto})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for tf, fix := range res.Report.Fixes {
		if fix.Strategy == strategy.Auto || fix.Characteristics == nil {
			t.Errorf("%s: auto not resolved: %+v", tf, fix)
		}
	}
}

func TestRun_ProgressReachesFull(t *testing.T) {
	var last string
	var lastCurrent, lastTotal int
	sink := func(c, tot int, msg string) { last, lastCurrent, lastTotal = msg, c, tot }
	if _, err := New(Config{}, nil, nil).Run(context.Background(), flatInput(), Options{Progress: sink}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lastCurrent != lastTotal || !strings.Contains(last, "all phases done") {
		t.Errorf("unexpected final progress %d/%d %q", lastCurrent, lastTotal, last)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(Config{}, nil, nil).Run(ctx, flatInput(), Options{}); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestHistory_Bounded(t *testing.T) {
	a := New(Config{HistorySize: 2}, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := a.Run(context.Background(), flatInput(), Options{}); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(a.History()); n != 2 {
		t.Errorf("expected 2 retained runs, got %d", n)
	}
}

func TestHistory_CallerOwnedLog(t *testing.T) {
	runs := history.New[RunRecord](3)
	first := New(Config{History: runs, HistorySize: 50}, nil, nil)
	second := New(Config{History: runs}, nil, nil)
	for i := 0; i < 2; i++ {
		if _, err := first.Run(context.Background(), flatInput(), Options{Symbol: "EURUSD"}); err != nil {
			t.Fatal(err)
		}
		if _, err := second.Run(context.Background(), flatInput(), Options{Symbol: "BTCUSDT"}); err != nil {
			t.Fatal(err)
		}
	}
	if runs.Len() != 3 || runs.Cap() != 3 || runs.Evicted() != 1 {
		t.Fatalf("expected a shared log of 3 with one eviction, got len=%d cap=%d evicted=%d", runs.Len(), runs.Cap(), runs.Evicted())
	}
	if last, _ := runs.Last(); last.Symbol != "BTCUSDT" {
		t.Errorf("expected the latest run last, got %+v", last)
	}
	if n := len(first.History()); n != 3 {
		t.Errorf("analyzer should read the shared log, got %d entries", n)
	}
}

func TestRun_BackupForQuoteSymbols(t *testing.T) {
	ctx := context.Background()
	st, err := backup.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	a := New(Config{}, backup.NewManager(st, nil), nil)
	for _, sym := range []string{"^GSPC", "EURUSD=X", "BTC-USD"} {
		res, err := a.Run(ctx, flatInput(), Options{Symbol: sym, Backup: true})
		if err != nil {
			t.Fatalf("%s: %v", sym, err)
		}
		if !res.Report.BackupCreated {
			t.Errorf("%s: backup not created: %s", sym, res.Report.BackupError)
			continue
		}
		list, err := a.ListBackups(ctx, sym)
		if err != nil || len(list) != 1 || list[0].Name != res.Report.BackupName {
			t.Errorf("%s: expected the backup listed under its symbol, got %+v (%v)", sym, list, err)
		}
		if _, meta, err := a.RestoreFromBackup(ctx, res.Report.BackupName); err != nil || meta.Tag != sym {
			t.Errorf("%s: restore gave tag %q (%v)", sym, meta.Tag, err)
		}
	}
}

func TestValidateDataset(t *testing.T) {
	a := New(Config{}, nil, nil)
	v, err := a.ValidateDataset(flatInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Valid || len(v.Timeframes) != 3 || v.Timeframes[0].Timeframe != "M15" {
		t.Errorf("unexpected validation: %+v", v)
	}
	if v.Timeframes[1].Rows != 22 || !v.Timeframes[1].Start.Equal(base) {
		t.Errorf("unexpected H1 check: %+v", v.Timeframes[1])
	}

	dup := series(5, time.Hour)
	dup.Records = append(dup.Records, dup.Records[2])
	v, err = a.ValidateDataset(map[string]any{"H1": dup})
	if !errs.Is(err, errs.ValidationFailed) {
		t.Errorf("expected ValidationFailed, got %v", err)
	}
	if v == nil || v.Valid || v.Timeframes[0].Duplicates != 1 || v.Timeframes[0].Sorted {
		t.Errorf("unexpected validation for duplicates: %+v", v)
	}
}

func TestResolve_RejectsNonSeries(t *testing.T) {
	shape, ds, err := Resolve(map[string]any{
		"H1":     series(3, time.Hour),
		"bars":   []any{"a", "b"},
		"config": map[string]any{"threshold": 2},
		"raw":    json.RawMessage(`{"records":[{"time":"2024-03-04T00:00:00Z","values":{"close":1}}]}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := shape.Timeframes(); len(got) != 2 || got[0] != "H1" || got[1] != "raw" {
		t.Errorf("unexpected timeframes %v", got)
	}
	if ds["raw"].Timeframe != "raw" {
		t.Errorf("expected label from key, got %q", ds["raw"].Timeframe)
	}
}
