package scans

// Status represents the lifecycle state of a scan row. These values
// must match the text values stored in the database (scans.status).
//
// Centralizing these here avoids scattering string literals like
// "queued" or "completed" across packages.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status never changes again except via
// explicit administrative override.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal. The
// graph only moves forward: queued → running → completed|failed, with
// cancellation allowed from queued or running. Re-entering the current
// state is permitted so repeated writes stay idempotent.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	default:
		return false
	}
}
