package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"scanq/internal/config"
	"scanq/internal/model"
	"scanq/internal/queue"
	"scanq/internal/scans"
)

func TestRunnerProcessesEnqueuedScans(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newFakeStore()
	q := queue.NewMemoryQueue()

	eng := engineFunc(func(_ context.Context, target, _ string) (*model.ScanResult, error) {
		return &model.ScanResult{Target: target}, nil
	})

	cfg := fastConfig()
	cfg.MaxConcurrentScans = 2
	cfg.DequeueTimeoutMs = 50

	exec := NewExecutor(st, q, eng, cfg, nil)
	runner := NewRunner(cfg, q, exec, nil)
	go runner.Start(ctx)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range ids {
		seedScan(st, id, string(scans.StatusQueued))
		if err := q.Enqueue(ctx, queue.Descriptor{JobID: id, Target: "https://a.example.com", Mode: "common"}, queue.LaneNormal); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		completed := 0
		for _, id := range ids {
			if st.get(id).Status == string(scans.StatusCompleted) {
				completed++
			}
		}
		if completed == len(ids) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("scans never completed, %d of %d done", completed, len(ids))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	st := newFakeStore()
	q := queue.NewMemoryQueue()
	eng := engineFunc(func(_ context.Context, target, _ string) (*model.ScanResult, error) {
		return &model.ScanResult{Target: target}, nil
	})

	cfg := config.WorkerConfig{DequeueTimeoutMs: 20}
	runner := NewRunner(cfg, q, NewExecutor(st, q, eng, cfg, nil), nil)

	stopped := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
}
