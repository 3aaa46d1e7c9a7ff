package scans

import "testing"

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusQueued:    false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestStatusCanTransition(t *testing.T) {
	all := []Status{StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

	// Forward edges only; everything else is illegal except repeating
	// the current state.
	legal := map[Status][]Status{
		StatusQueued:  {StatusRunning, StatusCancelled},
		StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
	}

	for _, from := range all {
		allowed := map[Status]bool{from: true}
		for _, next := range legal[from] {
			allowed[next] = true
		}
		for _, to := range all {
			if got := from.CanTransition(to); got != allowed[to] {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", from, to, got, allowed[to])
			}
		}
	}
}
