package worker

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(2)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		if !p.Submit(func() { ran.Add(1) }) {
			t.Fatal("Submit refused work before Drain")
		}
	}
	p.Drain()

	if got := ran.Load(); got != 10 {
		t.Fatalf("ran %d tasks, want 10", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)

	var mu sync.Mutex
	inFlight, peak := 0, 0

	for i := 0; i < 20; i++ {
		p.Submit(func() {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			mu.Lock()
			inFlight--
			mu.Unlock()
		})
	}
	p.Drain()

	if peak > 2 {
		t.Fatalf("peak concurrency %d exceeded pool size 2", peak)
	}
}

func TestPoolRejectsAfterDrain(t *testing.T) {
	p := NewPool(1)
	p.Drain()
	if p.Submit(func() {}) {
		t.Fatal("Submit accepted work after Drain")
	}
}
