// Package history provides a bounded, append-only log owned by its caller.
package history

import "sync"

// DefaultCapacity applies when New is given a non-positive capacity.
const DefaultCapacity = 100

// Log keeps the most recent entries up to its capacity; the oldest entry is evicted
// first. It is safe for concurrent use.
type Log[T any] struct {
	mu      sync.RWMutex
	cap     int
	entries []T
	evicted int
}

// New creates a log holding at most capacity entries.
func New[T any](capacity int) *Log[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log[T]{cap: capacity}
}

// Append adds an entry, evicting the oldest when full.
func (l *Log[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.cap {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.cap-1]
		l.evicted++
	}
	l.entries = append(l.entries, v)
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log[T]) Entries() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]T(nil), l.entries...)
}

// Last returns the newest entry.
func (l *Log[T]) Last() (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var zero T
	if len(l.entries) == 0 {
		return zero, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of retained entries.
func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cap returns the capacity.
func (l *Log[T]) Cap() int { return l.cap }

// Evicted returns how many entries have been dropped so far.
func (l *Log[T]) Evicted() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}
