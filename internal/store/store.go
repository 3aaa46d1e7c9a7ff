package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"
)

// Store wraps access to the database via a shared pooled *sql.DB.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// hashAPIKey hashes a raw API key string using SHA-256 and returns a hex string.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Account is a subject that submits scans. Credential storage beyond
// the hashed API key lives outside this service.
type Account struct {
	ID        uuid.UUID
	Email     string
	Tier      string
	IsAdmin   bool
	CreatedAt time.Time
}

// Scan is the persisted, authoritative job record.
type Scan struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Target          string
	Mode            string
	ExecutionMode   string
	Status          string
	CreatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
	DurationSeconds sql.NullInt32
	TotalFindings   int32
	CriticalCount   int32
	HighCount       int32
	MediumCount     int32
	LowCount        int32
	Platform        sql.NullString
	Confidence      sql.NullFloat64
	ReportJSON      pqtype.NullRawMessage
	ReportText      sql.NullString
	ErrorMessage    sql.NullString
}

const scanColumns = `id, owner_id, target, mode, execution_mode, status, created_at,
	started_at, completed_at, duration_seconds, total_findings,
	critical_count, high_count, medium_count, low_count,
	platform, confidence, report_json, report_text, error_message`

func scanRow(row interface{ Scan(dest ...any) error }) (Scan, error) {
	var s Scan
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Target, &s.Mode, &s.ExecutionMode, &s.Status, &s.CreatedAt,
		&s.StartedAt, &s.CompletedAt, &s.DurationSeconds, &s.TotalFindings,
		&s.CriticalCount, &s.HighCount, &s.MediumCount, &s.LowCount,
		&s.Platform, &s.Confidence, &s.ReportJSON, &s.ReportText, &s.ErrorMessage,
	)
	return s, err
}

// EnsureAccount upserts an account keyed by email and sets its API key
// hash. Used at startup to provision the initial admin subject.
func (s *Store) EnsureAccount(ctx context.Context, email, rawKey, tier string, admin bool) (Account, error) {
	var a Account
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO accounts (id, email, api_key_hash, tier, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET api_key_hash = EXCLUDED.api_key_hash
		RETURNING id, email, tier, is_admin, created_at`,
		uuid.New(), email, hashAPIKey(rawKey), tier, admin,
	).Scan(&a.ID, &a.Email, &a.Tier, &a.IsAdmin, &a.CreatedAt)
	return a, err
}

// GetAccountByRawKey resolves an account from a presented API key.
func (s *Store) GetAccountByRawKey(ctx context.Context, rawKey string) (Account, error) {
	var a Account
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, email, tier, is_admin, created_at
		FROM accounts WHERE api_key_hash = $1`,
		hashAPIKey(rawKey),
	).Scan(&a.ID, &a.Email, &a.Tier, &a.IsAdmin, &a.CreatedAt)
	return a, err
}

// GetAccount loads an account by id. Callers re-read the tier here at
// decision time rather than caching it.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, email, tier, is_admin, created_at
		FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Email, &a.Tier, &a.IsAdmin, &a.CreatedAt)
	return a, err
}

// UpdateAccountTier applies a tier-change event from the billing
// collaborator.
func (s *Store) UpdateAccountTier(ctx context.Context, email, newTier string) (Account, error) {
	var a Account
	err := s.DB.QueryRowContext(ctx, `
		UPDATE accounts SET tier = $2 WHERE email = $1
		RETURNING id, email, tier, is_admin, created_at`,
		email, newTier,
	).Scan(&a.ID, &a.Email, &a.Tier, &a.IsAdmin, &a.CreatedAt)
	return a, err
}

// ListAccounts returns every known account, used by the retention
// sweeper's sweep-all pass.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, email, tier, is_admin, created_at FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.Tier, &a.IsAdmin, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateScan inserts a new scan row in the queued state.
func (s *Store) CreateScan(ctx context.Context, id, ownerID uuid.UUID, target, mode, executionMode, status string) (Scan, error) {
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO scans (id, owner_id, target, mode, execution_mode, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+scanColumns,
		id, ownerID, target, mode, executionMode, status,
	)
	return scanRow(row)
}

// GetScan loads a scan by id without an ownership check; used by
// workers which receive ids from queue descriptors.
func (s *Store) GetScan(ctx context.Context, id uuid.UUID) (Scan, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = $1`, id)
	return scanRow(row)
}

// GetScanForOwner loads a scan only if it belongs to the owner.
func (s *Store) GetScanForOwner(ctx context.Context, id, ownerID uuid.UUID) (Scan, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanRow(row)
}

// ListScansForOwner returns scans for an owner created at or after the
// optional cutoff, newest first.
func (s *Store) ListScansForOwner(ctx context.Context, ownerID uuid.UUID, since *time.Time, limit, offset int) ([]Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans WHERE owner_id = $1`
	args := []any{ownerID}
	if since != nil {
		query += ` AND created_at >= $2`
		args = append(args, *since)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// CountScansSince counts an owner's scans created at or after the cutoff.
func (s *Store) CountScansSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scans WHERE owner_id = $1 AND created_at >= $2`,
		ownerID, since,
	).Scan(&n)
	return n, err
}

// UpdateScanStatus updates the status and any of the optional timing
// and error fields. Nil arguments leave columns untouched.
func (s *Store) UpdateScanStatus(ctx context.Context, id uuid.UUID, status string, startedAt, completedAt *time.Time, errMsg *string) error {
	var started, completed sql.NullTime
	if startedAt != nil {
		started = sql.NullTime{Time: *startedAt, Valid: true}
	}
	if completedAt != nil {
		completed = sql.NullTime{Time: *completedAt, Valid: true}
	}
	var msg sql.NullString
	if errMsg != nil {
		msg = sql.NullString{String: *errMsg, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		UPDATE scans SET
			status = $2,
			started_at = COALESCE($3, started_at),
			completed_at = COALESCE($4, completed_at),
			error_message = COALESCE($5, error_message)
		WHERE id = $1`,
		id, status, started, completed, msg,
	)
	return err
}

// ScanResultParams carries everything a successful engine run produces.
type ScanResultParams struct {
	CompletedAt     time.Time
	DurationSeconds int32
	TotalFindings   int32
	CriticalCount   int32
	HighCount       int32
	MediumCount     int32
	LowCount        int32
	Platform        string
	Confidence      float64
	ReportJSON      []byte
	ReportText      string
}

// SaveScanResult persists a completed run. The write is a full
// overwrite of the result columns so redelivered executions converge
// on the same terminal row.
func (s *Store) SaveScanResult(ctx context.Context, id uuid.UUID, p ScanResultParams) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE scans SET
			status = 'completed',
			completed_at = $2,
			duration_seconds = $3,
			total_findings = $4,
			critical_count = $5,
			high_count = $6,
			medium_count = $7,
			low_count = $8,
			platform = $9,
			confidence = $10,
			report_json = $11,
			report_text = $12,
			error_message = NULL
		WHERE id = $1`,
		id, p.CompletedAt, p.DurationSeconds, p.TotalFindings,
		p.CriticalCount, p.HighCount, p.MediumCount, p.LowCount,
		p.Platform, p.Confidence,
		pqtype.NullRawMessage{RawMessage: p.ReportJSON, Valid: len(p.ReportJSON) > 0},
		p.ReportText,
	)
	return err
}

// DeleteScan removes a scan owned by the caller. Returns whether a row
// was removed.
func (s *Store) DeleteScan(ctx context.Context, id, ownerID uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM scans WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteScansBefore permanently removes an owner's scans created
// before the cutoff and returns the count removed.
func (s *Store) DeleteScansBefore(ctx context.Context, ownerID uuid.UUID, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM scans WHERE owner_id = $1 AND created_at < $2`, ownerID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
