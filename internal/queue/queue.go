package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lane identifies one of the two priority buckets. Paid tiers enqueue
// into the high lane, which is always drained before the normal lane.
type Lane string

const (
	LaneHigh   Lane = "high"
	LaneNormal Lane = "normal"
	LaneAll    Lane = "all"
)

// Status is the ephemeral job status mirror kept in the side-table.
// The persisted scan row is authoritative; these records exist to make
// status reads cheap and to carry the lazy-cancellation flag, and may
// be absent or stale without corrupting correctness.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DefaultStatusTTL bounds how long a status record outlives its last
// write.
const DefaultStatusTTL = 24 * time.Hour

// Descriptor is the opaque envelope placed on a lane. Field order in
// the serialized form is not significant.
type Descriptor struct {
	JobID      uuid.UUID `json:"job_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Target     string    `json:"target"`
	Mode       string    `json:"mode"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the port over the shared two-lane work queue.
//
// Cancellation is lazy: Cancel only flips the status record, it never
// removes the physical entry. Whoever dequeues the entry must re-check
// GetStatus immediately before executing and skip entries whose status
// is already cancelled. Dequeue is the only call that may block; every
// other operation completes in bounded time.
type Queue interface {
	Enqueue(ctx context.Context, d Descriptor, lane Lane) error
	// Dequeue returns the next entry, preferring the high lane. With a
	// positive timeout it blocks across both lanes up to that long;
	// with a zero timeout it polls and returns immediately. A nil
	// descriptor with a nil error means both lanes were empty.
	Dequeue(ctx context.Context, timeout time.Duration) (*Descriptor, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	SetStatus(ctx context.Context, jobID uuid.UUID, status Status, ttl time.Duration) error
	GetStatus(ctx context.Context, jobID uuid.UUID) (Status, bool, error)
	Len(ctx context.Context, lane Lane) (int64, error)
	Clear(ctx context.Context, lane Lane) error
}
