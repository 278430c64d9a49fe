package realtime

import "sync"

// BoundedLog is an append-only log that evicts its oldest entries beyond cap.
type BoundedLog[E any] struct {
	mu    sync.Mutex
	cap   int
	items []E
}

func NewBoundedLog[E any](capacity int) *BoundedLog[E] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedLog[E]{cap: capacity}
}

// Append adds e and reports how many entries were evicted.
func (l *BoundedLog[E]) Append(e ...E) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, e...)
	return l.trimLocked()
}

// Replace swaps the contents, keeping only the newest cap entries.
func (l *BoundedLog[E]) Replace(items []E) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append([]E(nil), items...)
	l.trimLocked()
}

// Items returns a copy, oldest first.
func (l *BoundedLog[E]) Items() []E {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]E(nil), l.items...)
}

func (l *BoundedLog[E]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *BoundedLog[E]) Cap() int {
	return l.cap
}

func (l *BoundedLog[E]) trimLocked() int {
	over := len(l.items) - l.cap
	if over <= 0 {
		return 0
	}
	kept := make([]E, l.cap)
	copy(kept, l.items[over:])
	l.items = kept
	return over
}
