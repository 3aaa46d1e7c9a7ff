package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scanq/internal/config"
	"scanq/internal/metrics"
	"scanq/internal/queue"
)

// Runner pulls descriptors off the shared queue and dispatches them to
// the Executor. It encapsulates concurrency limits and the blocking
// dequeue cadence. Multiple runner processes may pull from the same
// queue concurrently; the queue's atomic pop keeps them from ever
// seeing the same entry.
type Runner struct {
	cfg    config.WorkerConfig
	queue  queue.Queue
	exec   *Executor
	logger *slog.Logger
}

func NewRunner(cfg config.WorkerConfig, q queue.Queue, exec *Executor, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, queue: q, exec: exec, logger: logger}
}

// Start runs the dequeue loop in the current goroutine until ctx is
// cancelled, then waits for in-flight scans to finish. Callers
// typically run this in its own goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	dequeueTimeout := time.Duration(r.cfg.DequeueTimeoutMs) * time.Millisecond
	if dequeueTimeout <= 0 {
		dequeueTimeout = 2 * time.Second
	}

	maxScans := r.cfg.MaxConcurrentScans
	if maxScans <= 0 {
		maxScans = 4
	}

	sem := make(chan struct{}, maxScans)
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			wg.Wait()
			return
		}

		d, err := r.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return
			}
			if r.logger != nil {
				r.logger.Warn("dequeue_failed", "error", err)
			}
			// Back off briefly so a down queue store doesn't spin.
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case <-time.After(dequeueTimeout):
			}
			continue
		}

		r.sampleDepth(ctx)

		if d == nil {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(d queue.Descriptor) {
			defer func() {
				<-sem
				wg.Done()
			}()
			r.exec.Process(ctx, d)
		}(*d)
	}
}

func (r *Runner) sampleDepth(ctx context.Context) {
	if high, err := r.queue.Len(ctx, queue.LaneHigh); err == nil {
		metrics.SetQueueDepth(string(queue.LaneHigh), high)
	}
	if normal, err := r.queue.Len(ctx, queue.LaneNormal); err == nil {
		metrics.SetQueueDepth(string(queue.LaneNormal), normal)
	}
}
