package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"GapSentinel/internal/errs"
	"GapSentinel/internal/model"
)

func sampleDataset() model.Dataset {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := model.Series{Symbol: "EURUSD"}
	for i := 0; i < 5; i++ {
		s.Records = append(s.Records, model.Record{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Values: map[string]float64{"close": 1.1 + float64(i)/100},
		})
	}
	return model.Dataset{"H1": s}
}

// stepClock returns a clock that advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

type storeCase struct {
	name string
	open func(t *testing.T) Store
}

func stores() []storeCase {
	return []storeCase{
		{"file", func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir(), nil)
			if err != nil {
				t.Fatalf("open file store: %v", err)
			}
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "backups.db"))
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"redis", func(t *testing.T) Store {
			s, _ := newMiniRedisStore(t)
			return s
		}},
	}
}

func TestManager_RoundTrip(t *testing.T) {
	for _, sc := range stores() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(sc.open(t), nil, WithClock(stepClock(time.Minute)))
			ds := sampleDataset()

			name, err := m.Create(ctx, ds, "eurusd", "before repair")
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if !strings.HasPrefix(name, "eurusd_backup_20240501_") {
				t.Errorf("unexpected name %q", name)
			}

			got, meta, err := m.Restore(ctx, name)
			if err != nil {
				t.Fatalf("restore: %v", err)
			}
			if meta.Tag != "eurusd" || meta.Description != "before repair" || meta.Rows != 5 {
				t.Errorf("unexpected metadata: %+v", meta)
			}
			if got.Rows() != ds.Rows() {
				t.Fatalf("expected %d rows, got %d", ds.Rows(), got.Rows())
			}
			for i, r := range got["H1"].Records {
				want := ds["H1"].Records[i]
				if !r.Time.Equal(want.Time) || r.Values["close"] != want.Values["close"] {
					t.Errorf("record %d differs: %+v vs %+v", i, r, want)
				}
			}

			v, err := m.Validate(ctx, name)
			if err != nil || !v.Valid {
				t.Errorf("expected valid backup, got %+v (%v)", v, err)
			}
		})
	}
}

func TestManager_NameCollision(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st, _ := NewFileStore(t.TempDir(), nil)
	m := NewManager(st, nil, WithClock(func() time.Time { return fixed }))

	want := []string{
		"data_backup_20240501_120000",
		"data_backup_20240501_120000_2",
		"data_backup_20240501_120000_3",
	}
	for _, w := range want {
		name, err := m.Create(ctx, sampleDataset(), "", "")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if name != w {
			t.Errorf("expected %s, got %s", w, name)
		}
	}
}

func TestManager_ListAndCleanup(t *testing.T) {
	for _, sc := range stores() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(sc.open(t), nil, WithClock(stepClock(time.Minute)))
			var names []string
			for i := 0; i < 5; i++ {
				tag := "a"
				if i%2 == 1 {
					tag = "b"
				}
				n, err := m.Create(ctx, sampleDataset(), tag, "")
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				names = append(names, n)
			}

			all, err := m.List(ctx, "")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 5 || all[0].Name != names[4] {
				t.Fatalf("expected newest first, got %d entries starting %v", len(all), all)
			}
			onlyB, _ := m.List(ctx, "b")
			if len(onlyB) != 2 {
				t.Errorf("expected 2 backups tagged b, got %d", len(onlyB))
			}

			deleted, err := m.Cleanup(ctx, 2)
			if err != nil {
				t.Fatalf("cleanup: %v", err)
			}
			if deleted != 3 {
				t.Errorf("expected 3 deleted, got %d", deleted)
			}
			left, _ := m.List(ctx, "")
			if len(left) != 2 || left[0].Name != names[4] || left[1].Name != names[3] {
				t.Errorf("expected the two newest to remain, got %+v", left)
			}

			deleted, err = m.Cleanup(ctx, 10)
			if err != nil || deleted != 0 {
				t.Errorf("keep above total should delete nothing, got %d (%v)", deleted, err)
			}
		})
	}
}

type failingDelete struct {
	Store
	fail string
}

func (f failingDelete) Delete(ctx context.Context, name string) error {
	if name == f.fail {
		return errs.New(errs.IOFailure, "disk on fire")
	}
	return f.Store.Delete(ctx, name)
}

func TestManager_CleanupContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	fs, _ := NewFileStore(t.TempDir(), nil)
	seed := NewManager(fs, nil, WithClock(stepClock(time.Minute)))
	var names []string
	for i := 0; i < 4; i++ {
		n, _ := seed.Create(ctx, sampleDataset(), "x", "")
		names = append(names, n)
	}

	m := NewManager(failingDelete{Store: fs, fail: names[1]}, nil)
	deleted, err := m.Cleanup(ctx, 1)
	if err == nil {
		t.Error("expected the failed delete to be reported")
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted despite one failure, got %d", deleted)
	}
}

func TestManager_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, _ := NewFileStore(dir, nil)
	m := NewManager(fs, nil)

	if _, _, err := m.Restore(ctx, "nope_backup_20240101_000000"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := m.Validate(ctx, "nope_backup_20240101_000000"); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound from Validate, got %v", err)
	}
	if _, _, err := m.Restore(ctx, "../etc/passwd"); !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected InvalidInput for path-like name, got %v", err)
	}

	name, err := m.Create(ctx, sampleDataset(), "t", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+payloadExt), []byte(`{"H1":`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Restore(ctx, name); !errs.Is(err, errs.Corrupt) {
		t.Errorf("expected Corrupt, got %v", err)
	}
	v, err := m.Validate(ctx, name)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Valid || len(v.Reasons) < 2 {
		t.Errorf("expected size, checksum and decode failures, got %+v", v)
	}
}

func TestManager_CorruptMetadata(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, _ := NewFileStore(dir, nil)
	m := NewManager(fs, nil)
	name, _ := m.Create(ctx, sampleDataset(), "t", "")
	if err := os.WriteFile(filepath.Join(dir, name+metaExt), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err := m.Validate(ctx, name)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Valid {
		t.Error("expected invalid backup for corrupt metadata")
	}
	list, _ := m.List(ctx, "")
	if len(list) != 0 {
		t.Errorf("corrupt metadata should not be listed, got %d", len(list))
	}
}

func TestFileStore_PartialWriteInvisible(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, _ := NewFileStore(dir, nil)

	// payload without metadata, as left by an interrupted Put
	if err := os.WriteFile(filepath.Join(dir, "half_backup_20240101_000000"+payloadExt), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := fs.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no listed backups, got %+v", list)
	}
	if ok, _ := fs.Exists(ctx, "half_backup_20240101_000000"); ok {
		t.Error("payload-only backup should not exist")
	}
}

func TestManager_SymbolTags(t *testing.T) {
	tests := []struct {
		tag    string
		prefix string
	}{
		{"^GSPC", "GSPC_backup_"},
		{"EURUSD=X", "EURUSD_X_backup_"},
		{"BTC-USD", "BTC-USD_backup_"},
		{"../etc/passwd", "etc_passwd_backup_"},
		{"^^^", "data_backup_"},
	}
	for _, sc := range stores() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(sc.open(t), nil, WithClock(stepClock(time.Minute)))
			for _, tt := range tests {
				name, err := m.Create(ctx, sampleDataset(), tt.tag, "")
				if err != nil {
					t.Fatalf("create %q: %v", tt.tag, err)
				}
				if !strings.HasPrefix(name, tt.prefix) {
					t.Errorf("tag %q: expected name prefix %q, got %q", tt.tag, tt.prefix, name)
				}
				list, err := m.List(ctx, tt.tag)
				if err != nil || len(list) != 1 || list[0].Name != name || list[0].Tag != tt.tag {
					t.Errorf("tag %q: expected one listed backup %s, got %+v (%v)", tt.tag, name, list, err)
				}
				if _, meta, err := m.Restore(ctx, name); err != nil || meta.Tag != tt.tag {
					t.Errorf("tag %q: restore gave %+v (%v)", tt.tag, meta, err)
				}
			}
		})
	}
}

func TestManager_SameTickNewestFirst(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, sc := range stores() {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			m := NewManager(sc.open(t), nil, WithClock(func() time.Time { return fixed }))
			var last string
			for i := 0; i < 11; i++ {
				name, err := m.Create(ctx, sampleDataset(), "x", "")
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				last = name
			}
			if !strings.HasSuffix(last, "_11") {
				t.Fatalf("unexpected eleventh name %s", last)
			}
			list, _ := m.List(ctx, "")
			if len(list) != 11 || list[0].Name != last || list[1].Name != "x_backup_20240501_120000_10" {
				t.Fatalf("expected _11 then _10 first, got %v", names(list))
			}
			if list[10].Name != "x_backup_20240501_120000" {
				t.Errorf("expected the unsuffixed name last, got %s", list[10].Name)
			}
			if n, err := m.Cleanup(ctx, 1); err != nil || n != 10 {
				t.Fatalf("expected 10 deleted, got %d (%v)", n, err)
			}
			left, _ := m.List(ctx, "")
			if len(left) != 1 || left[0].Name != last {
				t.Errorf("expected %s to survive, got %v", last, names(left))
			}
		})
	}
}

func names(list []Metadata) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Name
	}
	return out
}

func TestManager_InvalidArgs(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir(), nil)
	m := NewManager(fs, nil)
	if _, err := m.Cleanup(context.Background(), -1); !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected InvalidInput for negative keep, got %v", err)
	}
}
