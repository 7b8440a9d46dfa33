package history

import "testing"

func TestLog_EvictsOldest(t *testing.T) {
	l := New[int](3)
	for i := 1; i <= 5; i++ {
		l.Append(i)
	}
	got := l.Entries()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %d, got %d", i, want[i], got[i])
		}
	}
	if l.Evicted() != 2 {
		t.Errorf("expected 2 evicted, got %d", l.Evicted())
	}
	if last, ok := l.Last(); !ok || last != 5 {
		t.Errorf("expected last 5, got %d", last)
	}
}

func TestLog_EntriesIsACopy(t *testing.T) {
	l := New[string](0)
	if l.Cap() != DefaultCapacity {
		t.Errorf("expected default capacity, got %d", l.Cap())
	}
	l.Append("a")
	e := l.Entries()
	e[0] = "mutated"
	if got := l.Entries()[0]; got != "a" {
		t.Errorf("log changed through returned slice: %q", got)
	}
	if _, ok := New[int](1).Last(); ok {
		t.Error("empty log should have no last entry")
	}
}
