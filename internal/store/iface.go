package store

import (
	"context"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Store is the persistence interface for jobs, workers, time entries, the
// prediction ledger, trained models, and the assignment audit log.
// Implementations: the default SQLite store (modernc.org/sqlite) and
// *postgres.Store (pgx).
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job models.Job) (int64, error)
	GetJob(ctx context.Context, jobID int64) (*models.Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...models.Status) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, jobID int64, status models.Status, at time.Time) error
	AssignJob(ctx context.Context, jobID int64, workerID *int64) error
	SetJobEstimate(ctx context.Context, jobID int64, estimatedSec int64) error
	SetJobDueDate(ctx context.Context, jobID int64, due time.Time) error
	SetJobRisk(ctx context.Context, jobID int64, color models.RiskColor) error
	FinalizeJob(ctx context.Context, jobID int64, actualSec int64, at time.Time) error
	SoftDeleteJob(ctx context.Context, jobID int64) error

	// Workers
	CreateWorker(ctx context.Context, w models.Worker) (int64, error)
	GetWorker(ctx context.Context, workerID int64) (*models.Worker, error)
	ListActiveWorkers(ctx context.Context) ([]models.Worker, error)
	SetWorkerActive(ctx context.Context, workerID int64, active bool) error
	WorkerStats(ctx context.Context, workerID int64) (models.WorkerStats, error)

	// Time entries
	OpenTimeEntry(ctx context.Context, jobID, workerID int64, start time.Time) (int64, error)
	OpenEntry(ctx context.Context, jobID int64) (*models.TimeEntry, error)
	CloseTimeEntry(ctx context.Context, entryID int64, end time.Time, durationSec int64) error
	SumClosedSeconds(ctx context.Context, jobID int64) (int64, error)
	ListEntriesForJob(ctx context.Context, jobID int64) ([]models.TimeEntry, error)

	// Estimator history and training data
	DeliveredDurations(ctx context.Context, workerID int64) ([]JobDuration, error)
	TrainingSamples(ctx context.Context, limit int) ([]TrainingSample, error)

	// Prediction ledger
	InsertPrediction(ctx context.Context, rec models.PredictionRecord) (int64, error)
	ClosePredictions(ctx context.Context, jobID int64, actualSec int64) error

	// Trained models (immutable versions)
	SaveModel(ctx context.Context, version string, trainedAt time.Time, payload []byte) error
	LatestModel(ctx context.Context) (version string, payload []byte, err error)

	// Assignment audit log (append-only)
	InsertAssignmentEvent(ctx context.Context, ev models.AssignmentEvent) (int64, error)
	ListAssignmentEvents(ctx context.Context, jobID int64) ([]models.AssignmentEvent, error)
	LastReassignAt(ctx context.Context, jobID int64) (*time.Time, error)

	// Client notifications
	InsertNotification(ctx context.Context, n models.ClientNotification) (int64, error)
	LastNotificationAt(ctx context.Context, jobID int64, kind string) (*time.Time, error)

	// Lifecycle
	SeedDemo(ctx context.Context) error
	Close() error
}

// JobDuration is one delivered job's total tracked seconds for a worker,
// entries already summed per job so tracked sessions are not double counted.
type JobDuration struct {
	JobID    int64
	Priority models.Priority
	TotalSec int64
}

// TrainingSample is one (job, worker) aggregate used to fit the duration
// model: the target is the summed closed-entry duration.
type TrainingSample struct {
	JobID        int64
	WorkerID     int64
	DurationSec  int64
	Priority     models.Priority
	Price        float64
	Description  string
	WorkerSkills []string
	WorkerWIP    int
	WorkerHired  *time.Time
}
