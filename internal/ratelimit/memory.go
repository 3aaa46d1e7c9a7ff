package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryWindows is an in-memory WindowStore used by tests and by
// single-node deployments that run without Redis.
type MemoryWindows struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemoryWindows() *MemoryWindows {
	return &MemoryWindows{entries: make(map[string][]time.Time)}
}

func (w *MemoryWindows) Purge(_ context.Context, key string, cutoff time.Time) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Only entries strictly older than the cutoff expire; an entry
	// exactly at the boundary is still inside the window.
	kept := w.entries[key][:0]
	for _, at := range w.entries[key] {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	w.entries[key] = kept
	return len(kept), nil
}

func (w *MemoryWindows) Oldest(_ context.Context, key string) (time.Time, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.entries[key]) == 0 {
		return time.Time{}, false, nil
	}
	oldest := w.entries[key][0]
	for _, at := range w.entries[key][1:] {
		if at.Before(oldest) {
			oldest = at
		}
	}
	return oldest, true, nil
}

func (w *MemoryWindows) Record(_ context.Context, key string, at time.Time, _ time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries[key] = append(w.entries[key], at)
	return nil
}
