package http

import (
	"time"

	"scanq/internal/retention"
	"scanq/internal/store"
)

// ErrorResponse is the error envelope for every endpoint except the
// rate-limit denial, which keeps the {"detail": ...} shape existing
// clients depend on.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

type CreateScanRequest struct {
	Target        string `json:"target"`
	Mode          string `json:"mode,omitempty"`
	ExecutionMode string `json:"executionMode,omitempty"`
}

// ScanItem is the wire view of a persisted scan row.
type ScanItem struct {
	ID              string     `json:"id"`
	Target          string     `json:"target"`
	Mode            string     `json:"mode"`
	ExecutionMode   string     `json:"executionMode"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationSeconds *int32     `json:"durationSeconds,omitempty"`
	TotalFindings   int32      `json:"totalFindings"`
	CriticalCount   int32      `json:"criticalCount"`
	HighCount       int32      `json:"highCount"`
	MediumCount     int32      `json:"mediumCount"`
	LowCount        int32      `json:"lowCount"`
	Platform        string     `json:"platform,omitempty"`
	Confidence      *float64   `json:"confidence,omitempty"`
	Error           string     `json:"error,omitempty"`
}

func scanItem(s store.Scan) ScanItem {
	item := ScanItem{
		ID:            s.ID.String(),
		Target:        s.Target,
		Mode:          s.Mode,
		ExecutionMode: s.ExecutionMode,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		TotalFindings: s.TotalFindings,
		CriticalCount: s.CriticalCount,
		HighCount:     s.HighCount,
		MediumCount:   s.MediumCount,
		LowCount:      s.LowCount,
	}
	if s.StartedAt.Valid {
		t := s.StartedAt.Time
		item.StartedAt = &t
	}
	if s.CompletedAt.Valid {
		t := s.CompletedAt.Time
		item.CompletedAt = &t
	}
	if s.DurationSeconds.Valid {
		d := s.DurationSeconds.Int32
		item.DurationSeconds = &d
	}
	if s.Platform.Valid {
		item.Platform = s.Platform.String
	}
	if s.Confidence.Valid {
		conf := s.Confidence.Float64
		item.Confidence = &conf
	}
	if s.ErrorMessage.Valid {
		item.Error = s.ErrorMessage.String
	}
	return item
}

type ScanResponse struct {
	Success bool      `json:"success"`
	Scan    *ScanItem `json:"scan,omitempty"`
}

type ListScansResponse struct {
	Success bool       `json:"success"`
	Scans   []ScanItem `json:"scans"`
}

type ScanStatusResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status"`
}

type TierInfoResponse struct {
	Success        bool     `json:"success"`
	Tier           string   `json:"tier"`
	RateLimit      *int     `json:"rateLimit,omitempty"`
	RateWindowSecs int      `json:"rateWindowSecs,omitempty"`
	ScansPerDay    *int     `json:"scansPerDay,omitempty"`
	AllowedModes   []string `json:"allowedModes"`
	RetentionDays  *int     `json:"retentionDays,omitempty"`
	Bypass         bool     `json:"bypass,omitempty"`
}

// BillingEvent is the tier-change webhook payload. Only the tier
// transition is consumed; payment details never reach this service.
type BillingEvent struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

type BillingEventResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Tier    string `json:"tier"`
}

type QueueStatsResponse struct {
	Success bool  `json:"success"`
	High    int64 `json:"high"`
	Normal  int64 `json:"normal"`
}

type RetentionStatsResponse struct {
	Success bool                        `json:"success"`
	Tiers   map[string]retention.Counts `json:"tiers"`
	Errors  int                         `json:"errors"`
}

type SweepResponse struct {
	Success      bool             `json:"success"`
	ScansDeleted map[string]int64 `json:"scansDeleted"`
	Errors       int              `json:"errors"`
}
