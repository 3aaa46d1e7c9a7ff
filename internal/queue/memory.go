package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue used by tests and single-node
// development runs. It honors the same lazy-cancellation contract as
// the Redis implementation.
type MemoryQueue struct {
	mu       sync.Mutex
	high     []Descriptor
	normal   []Descriptor
	statuses map[uuid.UUID]statusEntry
	notify   chan struct{}
	now      func() time.Time
}

type statusEntry struct {
	status    Status
	expiresAt time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		statuses: make(map[uuid.UUID]statusEntry),
		notify:   make(chan struct{}, 1),
		now:      time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, d Descriptor, lane Lane) error {
	q.mu.Lock()
	switch lane {
	case LaneHigh:
		q.high = append(q.high, d)
	default:
		q.normal = append(q.normal, d)
	}
	q.setStatusLocked(d.JobID, StatusQueued, DefaultStatusTTL)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *MemoryQueue) pop() *Descriptor {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.high) > 0 {
		d := q.high[0]
		q.high = q.high[1:]
		return &d
	}
	if len(q.normal) > 0 {
		d := q.normal[0]
		q.normal = q.normal[1:]
		return &d
	}
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Descriptor, error) {
	if d := q.pop(); d != nil {
		return d, nil
	}
	if timeout <= 0 {
		return nil, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.notify:
			if d := q.pop(); d != nil {
				return d, nil
			}
		}
	}
}

func (q *MemoryQueue) Cancel(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setStatusLocked(jobID, StatusCancelled, DefaultStatusTTL)
	return nil
}

func (q *MemoryQueue) SetStatus(_ context.Context, jobID uuid.UUID, status Status, ttl time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.setStatusLocked(jobID, status, ttl)
	return nil
}

func (q *MemoryQueue) setStatusLocked(jobID uuid.UUID, status Status, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	q.statuses[jobID] = statusEntry{status: status, expiresAt: q.now().Add(ttl)}
}

func (q *MemoryQueue) GetStatus(_ context.Context, jobID uuid.UUID) (Status, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.statuses[jobID]
	if !ok {
		return "", false, nil
	}
	if q.now().After(e.expiresAt) {
		delete(q.statuses, jobID)
		return "", false, nil
	}
	return e.status, true, nil
}

func (q *MemoryQueue) Len(_ context.Context, lane Lane) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch lane {
	case LaneHigh:
		return int64(len(q.high)), nil
	case LaneNormal:
		return int64(len(q.normal)), nil
	default:
		return int64(len(q.high) + len(q.normal)), nil
	}
}

func (q *MemoryQueue) Clear(_ context.Context, lane Lane) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if lane == LaneHigh || lane == LaneAll {
		q.high = nil
	}
	if lane == LaneNormal || lane == LaneAll {
		q.normal = nil
	}
	return nil
}
