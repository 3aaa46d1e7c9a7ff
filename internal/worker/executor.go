package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"scanq/internal/config"
	"scanq/internal/engine"
	"scanq/internal/metrics"
	"scanq/internal/model"
	"scanq/internal/queue"
	"scanq/internal/scans"
	"scanq/internal/store"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 10 * time.Minute
)

// errCancelledMidFlight aborts the retry loop when the status record
// flips to cancelled between attempts.
var errCancelledMidFlight = errors.New("scan cancelled")

// Store is the persistence port the executor needs.
type Store interface {
	GetScan(ctx context.Context, id uuid.UUID) (store.Scan, error)
	UpdateScanStatus(ctx context.Context, id uuid.UUID, status string, startedAt, completedAt *time.Time, errMsg *string) error
	SaveScanResult(ctx context.Context, id uuid.UUID, p store.ScanResultParams) error
}

// Executor runs one dequeued scan to a terminal state. It is safe to
// run more than once for the same scan: redelivered entries converge
// on the same terminal row, and the original started_at is preserved
// so duration spans all attempts.
type Executor struct {
	store       Store
	queue       queue.Queue
	engine      engine.Engine
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewExecutor(st Store, q queue.Queue, eng engine.Engine, cfg config.WorkerConfig, logger *slog.Logger) *Executor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	if base <= 0 {
		base = defaultBackoffBase
	}
	max := time.Duration(cfg.BackoffMaxMs) * time.Millisecond
	if max <= 0 {
		max = defaultBackoffMax
	}
	return &Executor{
		store:       st,
		queue:       q,
		engine:      eng,
		maxAttempts: maxAttempts,
		backoffBase: base,
		backoffMax:  max,
		logger:      logger,
		now:         time.Now,
	}
}

// Process executes one queue descriptor. Entries whose status record
// is already cancelled are skipped without touching the engine.
func (e *Executor) Process(ctx context.Context, d queue.Descriptor) {
	if e.cancelled(ctx, d.JobID) {
		metrics.RecordScanSkipped()
		e.logInfo("scan_skipped_cancelled", "scan_id", d.JobID)
		return
	}

	scan, err := e.store.GetScan(ctx, d.JobID)
	if errors.Is(err, sql.ErrNoRows) {
		e.logWarn("scan_row_missing", "scan_id", d.JobID)
		return
	}
	if err != nil {
		e.logWarn("scan_load_failed", "scan_id", d.JobID, "error", err)
		return
	}

	// A redelivered descriptor for an already-terminal scan is a no-op,
	// and anything else that cannot legally move to running is left
	// untouched.
	current := scans.Status(scan.Status)
	if current.Terminal() {
		return
	}
	if !current.CanTransition(scans.StatusRunning) {
		e.logWarn("scan_invalid_transition", "scan_id", d.JobID, "from", string(current))
		return
	}

	// Duration is measured from the first attempt, so only stamp
	// started_at when this is the first delivery.
	startedAt := e.now().UTC()
	var startedArg *time.Time
	if scan.StartedAt.Valid {
		startedAt = scan.StartedAt.Time
	} else {
		startedArg = &startedAt
	}

	if err := e.store.UpdateScanStatus(ctx, d.JobID, string(scans.StatusRunning), startedArg, nil, nil); err != nil {
		e.logWarn("scan_mark_running_failed", "scan_id", d.JobID, "error", err)
		return
	}
	if err := e.queue.SetStatus(ctx, d.JobID, queue.StatusProcessing, queue.DefaultStatusTTL); err != nil {
		e.logWarn("scan_status_record_failed", "scan_id", d.JobID, "error", err)
	}

	result, err := e.executeWithRetry(ctx, d)
	if errors.Is(err, errCancelledMidFlight) {
		metrics.RecordScanSkipped()
		e.logInfo("scan_abandoned_cancelled", "scan_id", d.JobID)
		return
	}

	completedAt := e.now().UTC()

	if err != nil {
		msg := err.Error()
		if err := e.store.UpdateScanStatus(ctx, d.JobID, string(scans.StatusFailed), nil, &completedAt, &msg); err != nil {
			e.logWarn("scan_mark_failed_failed", "scan_id", d.JobID, "error", err)
		}
		_ = e.queue.SetStatus(ctx, d.JobID, queue.StatusFailed, queue.DefaultStatusTTL)
		metrics.RecordScan(d.Mode, string(scans.StatusFailed))
		e.logWarn("scan_failed", "scan_id", d.JobID, "target", d.Target, "error", err)
		return
	}

	counts := result.Count()
	reportJSON, jsonErr := json.MarshalIndent(result, "", "  ")
	if jsonErr != nil {
		reportJSON = nil
	}

	params := store.ScanResultParams{
		CompletedAt:     completedAt,
		DurationSeconds: int32(completedAt.Sub(startedAt).Seconds()),
		TotalFindings:   int32(len(result.Vulnerabilities)),
		CriticalCount:   int32(counts.Critical),
		HighCount:       int32(counts.High),
		MediumCount:     int32(counts.Medium),
		LowCount:        int32(counts.Low),
		Platform:        result.PlatformDetected,
		Confidence:      result.Confidence,
		ReportJSON:      reportJSON,
		ReportText:      scans.TextReport(result),
	}

	if err := e.store.SaveScanResult(ctx, d.JobID, params); err != nil {
		e.logWarn("scan_save_result_failed", "scan_id", d.JobID, "error", err)
		return
	}
	_ = e.queue.SetStatus(ctx, d.JobID, queue.StatusCompleted, queue.DefaultStatusTTL)

	metrics.RecordScan(d.Mode, string(scans.StatusCompleted))
	e.logInfo("scan_completed",
		"scan_id", d.JobID,
		"target", d.Target,
		"findings", len(result.Vulnerabilities),
		"duration_s", params.DurationSeconds,
	)
}

// executeWithRetry applies the retry policy: exponential backoff with
// jitter, capped delay, bounded attempts. Only transient execution
// failures are retried; permanent failures and cancellation abort
// immediately.
func (e *Executor) executeWithRetry(ctx context.Context, d queue.Descriptor) (*model.ScanResult, error) {
	backoff := retry.NewExponential(e.backoffBase)
	backoff = retry.WithCappedDuration(e.backoffMax, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(uint64(e.maxAttempts-1), backoff)

	attempt := 0
	var result *model.ScanResult

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordScanRetry(d.Mode)
			e.logInfo("scan_retry", "scan_id", d.JobID, "attempt", attempt)
		}

		if e.cancelled(ctx, d.JobID) {
			return errCancelledMidFlight
		}

		res, err := e.engine.Execute(ctx, d.Target, d.Mode)
		if err != nil {
			if engine.IsPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})

	return result, err
}

func (e *Executor) cancelled(ctx context.Context, id uuid.UUID) bool {
	status, ok, err := e.queue.GetStatus(ctx, id)
	return err == nil && ok && status == queue.StatusCancelled
}

func (e *Executor) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Executor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
