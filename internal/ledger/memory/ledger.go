// Package memory provides an in-memory ledger for development and testing.
package memory

import (
	"context"
	"sync"
)

// Ledger is a mutex-guarded append-only string set.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New constructs an empty Ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Add inserts key and reports whether it was newly added. The check and the
// insert happen under one lock so concurrent callers with the same key see
// exactly one true.
func (l *Ledger) Add(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = struct{}{}
	return true, nil
}

// Contains reports whether key has been added before.
func (l *Ledger) Contains(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[key]
	return ok, nil
}

// Len returns the number of keys recorded.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
