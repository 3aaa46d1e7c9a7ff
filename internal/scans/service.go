package scans

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scanq/internal/admission"
	"scanq/internal/metrics"
	"scanq/internal/queue"
	"scanq/internal/ratelimit"
	"scanq/internal/store"
	"scanq/internal/tier"
)

// Store is the persistence port the orchestrator needs. *store.Store
// satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateScan(ctx context.Context, id, ownerID uuid.UUID, target, mode, executionMode, status string) (store.Scan, error)
	GetScanForOwner(ctx context.Context, id, ownerID uuid.UUID) (store.Scan, error)
	ListScansForOwner(ctx context.Context, ownerID uuid.UUID, since *time.Time, limit, offset int) ([]store.Scan, error)
	UpdateScanStatus(ctx context.Context, id uuid.UUID, status string, startedAt, completedAt *time.Time, errMsg *string) error
	DeleteScan(ctx context.Context, id, ownerID uuid.UUID) (bool, error)
}

// Executor runs one queued scan to completion; the worker runtime
// provides the implementation.
type Executor interface {
	Process(ctx context.Context, d queue.Descriptor)
}

// Background submits work to a bounded task pool so the interactive
// execution path never spawns unstructured goroutines.
type Background interface {
	Submit(fn func()) bool
}

// Service owns the scan lifecycle: it admits, persists, and enqueues
// new work, and guards every status transition.
type Service struct {
	store     Store
	queue     queue.Queue
	admission *admission.Controller
	tiers     *tier.Registry
	exec      Executor
	pool      Background
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(st Store, q queue.Queue, adm *admission.Controller, tiers *tier.Registry, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		queue:     q,
		admission: adm,
		tiers:     tiers,
		logger:    logger,
		now:       time.Now,
	}
}

// EnableInlineExecution switches the service into the interactive
// mode: accepted scans are flipped to running and executed immediately
// on the given pool instead of waiting for a worker to dequeue them.
func (s *Service) EnableInlineExecution(exec Executor, pool Background) {
	s.exec = exec
	s.pool = pool
}

// CreateParams carries a submission request.
type CreateParams struct {
	Target        string
	Mode          string
	ExecutionMode string
}

// Create admits and persists a new scan. On an admission denial
// nothing is persisted and the denial reason is returned to the
// caller. The returned decision carries the rate-limit header values.
func (s *Service) Create(ctx context.Context, sub admission.Subject, p CreateParams) (store.Scan, ratelimit.Decision, error) {
	if p.Mode == "" {
		p.Mode = "common"
	}
	if p.ExecutionMode == "" {
		p.ExecutionMode = "report_only"
	}

	decision, err := s.admission.CheckAccess(ctx, sub, p.Mode)
	if err != nil {
		return store.Scan{}, decision, err
	}

	id := newScanID()
	scan, err := s.store.CreateScan(ctx, id, sub.ID, p.Target, p.Mode, p.ExecutionMode, string(StatusQueued))
	if err != nil {
		return store.Scan{}, decision, err
	}

	lane := queue.LaneNormal
	if sub.Tier.Paid() || s.tiers.Bypass(sub.Email) {
		lane = queue.LaneHigh
	}

	d := queue.Descriptor{
		JobID:      scan.ID,
		OwnerID:    sub.ID,
		Target:     scan.Target,
		Mode:       scan.Mode,
		EnqueuedAt: s.now().UTC(),
	}

	// Queue unavailability never fails the submission: the row is
	// persisted and a later requeue can pick it up.
	if err := s.queue.Enqueue(ctx, d, lane); err != nil {
		s.logWarn("scan_enqueue_failed", "scan_id", scan.ID, "error", err)
	}

	s.logInfo("scan_enqueued", "scan_id", scan.ID, "owner_id", sub.ID, "lane", string(lane), "mode", scan.Mode)

	if s.exec != nil && s.pool != nil {
		startedAt := s.now().UTC()
		if err := s.store.UpdateScanStatus(ctx, scan.ID, string(StatusRunning), &startedAt, nil, nil); err == nil {
			scan.Status = string(StatusRunning)
			scan.StartedAt = sql.NullTime{Time: startedAt, Valid: true}
		}
		if !s.pool.Submit(func() { s.exec.Process(context.Background(), d) }) {
			s.logWarn("inline_pool_saturated", "scan_id", scan.ID)
		}
	}

	return scan, decision, nil
}

// Get returns a scan owned by the subject.
func (s *Service) Get(ctx context.Context, sub admission.Subject, id uuid.UUID) (store.Scan, error) {
	scan, err := s.store.GetScanForOwner(ctx, id, sub.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Scan{}, ErrNotFound
	}
	return scan, err
}

// List returns the subject's scans inside their tier's retention
// horizon, newest first. Unlimited tiers see everything.
func (s *Service) List(ctx context.Context, sub admission.Subject, limit, offset int) ([]store.Scan, error) {
	limits := s.tiers.Limits(sub.Tier, sub.Email)

	var since *time.Time
	if cutoff, bounded := limits.Horizon(s.now().UTC()); bounded {
		since = &cutoff
	}

	return s.store.ListScansForOwner(ctx, sub.ID, since, limit, offset)
}

// Cancel marks a queued or running scan cancelled and notifies the
// queue's status side-table so the eventual dequeuer skips the entry.
// Cancelling a terminal scan reports InvalidTransitionError.
func (s *Service) Cancel(ctx context.Context, sub admission.Subject, id uuid.UUID) (store.Scan, error) {
	scan, err := s.Get(ctx, sub, id)
	if err != nil {
		return store.Scan{}, err
	}

	// Terminal() first: CanTransition treats a repeated write as
	// idempotent, but cancelling an already-cancelled scan must still
	// report the domain error.
	current := Status(scan.Status)
	if current.Terminal() || !current.CanTransition(StatusCancelled) {
		return store.Scan{}, &InvalidTransitionError{From: current, To: StatusCancelled}
	}

	completedAt := s.now().UTC()
	if err := s.store.UpdateScanStatus(ctx, id, string(StatusCancelled), nil, &completedAt, nil); err != nil {
		return store.Scan{}, err
	}
	scan.Status = string(StatusCancelled)
	scan.CompletedAt = sql.NullTime{Time: completedAt, Valid: true}

	// Best effort: the persisted row is authoritative either way.
	if err := s.queue.Cancel(ctx, id); err != nil {
		s.logWarn("scan_cancel_notify_failed", "scan_id", id, "error", err)
	}

	metrics.RecordScanCancelled()
	s.logInfo("scan_cancelled", "scan_id", id, "owner_id", sub.ID)

	return scan, nil
}

// Delete removes a scan owned by the subject.
func (s *Service) Delete(ctx context.Context, sub admission.Subject, id uuid.UUID) error {
	deleted, err := s.store.DeleteScan(ctx, id, sub.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Report returns the stored report for a completed scan in the
// requested format ("json" or "text").
func (s *Service) Report(ctx context.Context, sub admission.Subject, id uuid.UUID, format string) (string, error) {
	scan, err := s.Get(ctx, sub, id)
	if err != nil {
		return "", err
	}

	if Status(scan.Status) != StatusCompleted {
		return "", ErrNotCompleted
	}

	switch format {
	case "json":
		if !scan.ReportJSON.Valid {
			return "", ErrNotFound
		}
		return string(scan.ReportJSON.RawMessage), nil
	case "text":
		if !scan.ReportText.Valid {
			return "", ErrNotFound
		}
		return scan.ReportText.String, nil
	default:
		return "", errors.New("invalid format, must be 'json' or 'text'")
	}
}

// LiveStatus prefers the ephemeral status record and falls back to the
// persisted row when the record has expired.
func (s *Service) LiveStatus(ctx context.Context, sub admission.Subject, id uuid.UUID) (queue.Status, error) {
	scan, err := s.Get(ctx, sub, id)
	if err != nil {
		return "", err
	}

	if st, ok, err := s.queue.GetStatus(ctx, id); err == nil && ok {
		return st, nil
	}
	if Status(scan.Status) == StatusRunning {
		return queue.StatusProcessing, nil
	}
	return queue.Status(scan.Status), nil
}

func newScanID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

func (s *Service) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
