// Package models provides shared types for the dispatch engine, the stores,
// and the CLI. These types mirror the persisted rows and are stable for use
// by external tools.
package models

import "time"

// Job is a client work order tracked through the production workflow.
type Job struct {
	JobID        int64      `json:"job_id"`
	Code         string     `json:"code"`
	Description  string     `json:"description"`
	Priority     Priority   `json:"priority"`
	ClientID     int64      `json:"client_id"`
	WorkerID     *int64     `json:"worker_id,omitempty"`
	Status       Status     `json:"status"`
	EstimatedSec int64      `json:"estimated_sec,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	RiskColor    RiskColor  `json:"risk_color"`
	ActualSec    *int64     `json:"actual_sec,omitempty"`
	Paid         bool       `json:"paid"`
	Price        float64    `json:"price,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitempty"`
	Deleted      bool       `json:"deleted,omitempty"`
}

// Worker is a shop technician that jobs can be assigned to.
type Worker struct {
	WorkerID    int64      `json:"worker_id"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	Skills      []string   `json:"skills"`
	Role        string     `json:"role"`
	HiredAt     *time.Time `json:"hired_at,omitempty"`
	CalendarRaw string     `json:"calendar,omitempty"` // optional JSON schedule override
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

// WorkerStats are derived aggregates over a worker's history. WIP counts
// jobs in active states; the rest come from the prediction ledger and
// delivered jobs.
type WorkerStats struct {
	WorkerID     int64   `json:"worker_id"`
	WIP          int     `json:"wip"`
	Completed    int     `json:"completed"`
	AvgDeviation float64 `json:"avg_deviation"` // |actual-estimated|/estimated, 0..1+
	OnTimeRate   float64 `json:"on_time_rate"`  // delivered on or before due date
	AvgDelaySec  int64   `json:"avg_delay_sec"` // mean lateness of late deliveries
}

// TimeEntry is one tracked work session on a job. At most one entry per job
// is OPEN at a time; DurationSec is business-calendar time, set on close.
type TimeEntry struct {
	EntryID     int64      `json:"entry_id"`
	JobID       int64      `json:"job_id"`
	WorkerID    int64      `json:"worker_id"`
	State       EntryState `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationSec *int64     `json:"duration_sec,omitempty"`
}

// PredictionRecord is one estimate-vs-actual row, used both as training data
// and as the per-worker accuracy ledger.
type PredictionRecord struct {
	RecordID     int64     `json:"record_id"`
	JobID        int64     `json:"job_id"`
	WorkerID     int64     `json:"worker_id"`
	EstimatedSec int64     `json:"estimated_sec"`
	ActualSec    *int64    `json:"actual_sec,omitempty"`
	Deviation    *float64  `json:"deviation,omitempty"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// AssignmentEvent is an append-only audit row for assignment decisions.
type AssignmentEvent struct {
	EventID   int64     `json:"event_id"`
	JobID     int64     `json:"job_id"`
	WorkerID  int64     `json:"worker_id"`
	Origin    string    `json:"origin"` // MANUAL, SUGGESTED, AUTO_REASSIGN
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ClientNotification is a persisted client-facing message; the delay-alert
// throttle queries recent rows by kind.
type ClientNotification struct {
	NotificationID int64     `json:"notification_id"`
	JobID          int64     `json:"job_id"`
	ClientID       int64     `json:"client_id"`
	Kind           string    `json:"kind"` // INFO, ALERTA, ENTREGA
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
}
