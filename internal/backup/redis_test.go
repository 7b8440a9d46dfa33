package backup

import (
	"context"
	"os"
	"testing"
	"time"

	"GapSentinel/internal/errs"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "gstest")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore_Keys(t *testing.T) {
	ctx := context.Background()
	st, mr := newMiniRedisStore(t)
	m := NewManager(st, nil, WithClock(stepClock(time.Second)))

	name, err := m.Create(ctx, sampleDataset(), "r", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, key := range []string{st.metaKey(name), st.dataKey(name)} {
		if !mr.Exists(key) {
			t.Errorf("expected key %s after Put", key)
		}
	}
	if members, err := mr.ZMembers(st.indexKey()); err != nil || len(members) != 1 || members[0] != name {
		t.Errorf("unexpected index %v (%v)", members, err)
	}

	// index entry left without metadata is skipped
	if _, err := mr.ZAdd(st.indexKey(), 1, "orphan_backup_20240101_000000"); err != nil {
		t.Fatal(err)
	}
	list, err := st.List(ctx)
	if err != nil || len(list) != 1 || list[0].Name != name {
		t.Errorf("expected only %s listed, got %+v (%v)", name, list, err)
	}

	mr.Del(st.dataKey(name))
	if _, _, err := m.Restore(ctx, name); !errs.Is(err, errs.Corrupt) {
		t.Errorf("expected Corrupt for a missing payload, got %v", err)
	}

	if err := st.Delete(ctx, name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(st.metaKey(name)) || mr.Exists(st.dataKey(name)) {
		t.Error("keys should be gone after Delete")
	}
	if err := st.Delete(ctx, name); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound deleting twice, got %v", err)
	}
}

// Runs only against a live server: GAPSENTINEL_TEST_REDIS=localhost:6379.
func TestRedisStore_LiveRoundTrip(t *testing.T) {
	addr := os.Getenv("GAPSENTINEL_TEST_REDIS")
	if addr == "" {
		t.Skip("GAPSENTINEL_TEST_REDIS not set")
	}
	ctx := context.Background()
	st, err := NewRedisStore(ctx, addr, "", 0, "gstest-"+uuid.NewString())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer st.Close()

	m := NewManager(st, nil, WithClock(stepClock(time.Second)))
	first, err := m.Create(ctx, sampleDataset(), "r", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := m.Create(ctx, sampleDataset(), "r", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := m.List(ctx, "r")
	if err != nil || len(list) != 2 || list[0].Name != second {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	if _, _, err := m.Restore(ctx, first); err != nil {
		t.Errorf("restore: %v", err)
	}
	if n, err := m.Cleanup(ctx, 0); err != nil || n != 2 {
		t.Errorf("expected 2 deleted, got %d (%v)", n, err)
	}
	if _, _, err := m.Restore(ctx, first); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound after cleanup, got %v", err)
	}
}
