package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"GapSentinel/internal/analyzer"
	"GapSentinel/internal/model"
	"GapSentinel/internal/strategy"
)

func sampleReport(t *testing.T) *analyzer.Report {
	t.Helper()
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mk := func(n int, step time.Duration, skip int) model.Series {
		s := model.Series{}
		for i := 0; i < n; i++ {
			if i == skip {
				continue
			}
			s.Records = append(s.Records, model.Record{
				Time:   base.Add(time.Duration(i) * step),
				Values: map[string]float64{"close": float64(i)},
			})
		}
		return s
	}
	res, err := analyzer.New(analyzer.Config{}, nil, nil).Run(context.Background(), map[string]any{
		"H1": mk(24, time.Hour, 7),
		"D1": mk(10, 24*time.Hour, -1),
	}, analyzer.Options{Symbol: "ETHUSDT", Strategy: strategy.ForwardFill})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res.Report
}

func TestFromReport(t *testing.T) {
	run, tfs := FromReport(sampleReport(t))
	if run.Symbol != "ETHUSDT" || run.GapsDetected != 1 || run.PointsAdded != 1 || run.SuccessRate != 100 {
		t.Errorf("unexpected run event: %+v", run)
	}
	if len(tfs) != 2 || tfs[0].Timeframe != "H1" || tfs[1].Timeframe != "D1" {
		t.Fatalf("expected H1 then D1, got %+v", tfs)
	}
	if tfs[0].Strategy != string(strategy.ForwardFill) || tfs[0].IntervalSec != 3600 {
		t.Errorf("unexpected H1 event: %+v", tfs[0])
	}
	if tfs[1].Strategy != "" || tfs[1].Gaps != 0 {
		t.Errorf("gap-free timeframe should carry no fix: %+v", tfs[1])
	}
}

func TestSQLiteRecorder(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	run, tfs := FromReport(sampleReport(t))
	if err := r.RecordRun(run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	for _, tf := range tfs {
		if err := r.RecordTimeframe(tf); err != nil {
			t.Fatalf("record timeframe: %v", err)
		}
	}
	if err := r.RecordCleanup(&CleanupEvent{Kept: 5, Deleted: 2}); err != nil {
		t.Fatalf("record cleanup: %v", err)
	}

	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM timeframe_results WHERE run_id = ?`, run.RunID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 timeframe rows, got %d", n)
	}
	var added int
	var rate float64
	if err := r.db.QueryRow(`SELECT points_added, success_rate FROM repair_runs WHERE run_id = ?`, run.RunID).Scan(&added, &rate); err != nil {
		t.Fatal(err)
	}
	if added != 1 || rate != 100 {
		t.Errorf("unexpected stored run: added=%d rate=%.2f", added, rate)
	}
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordRun(&RunEvent{}); err != nil {
		t.Error(err)
	}
	if err := r.Close(); err != nil {
		t.Error(err)
	}
}
