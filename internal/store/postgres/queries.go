package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

const jobColumns = `job_id, code, description, priority, client_id, worker_id, status, estimated_sec, due_date, risk_color, actual_sec, paid, price, created_at, started_at, updated_at, deleted`

func (s *pgStore) CreateJob(ctx context.Context, job models.Job) (int64, error) {
	if !job.Priority.Valid() {
		return 0, fmt.Errorf("invalid priority %q", job.Priority)
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.RiskColor == "" {
		job.RiskColor = models.RiskGreen
	}
	if job.Code == "" {
		b := make([]byte, 3)
		_, _ = rand.Read(b)
		job.Code = fmt.Sprintf("P-%s-%s", time.Now().UTC().Format("200601"), strings.ToUpper(hex.EncodeToString(b)))
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO jobs(code, description, priority, client_id, worker_id, status, estimated_sec, due_date, risk_color, price)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING job_id`,
		job.Code, job.Description, string(job.Priority), job.ClientID, job.WorkerID,
		string(job.Status), job.EstimatedSec, job.DueDate, string(job.RiskColor), job.Price).Scan(&id)
	return id, err
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j                      models.Job
		priority, status, risk string
	)
	err := row.Scan(&j.JobID, &j.Code, &j.Description, &priority, &j.ClientID, &j.WorkerID,
		&status, &j.EstimatedSec, &j.DueDate, &risk, &j.ActualSec, &j.Paid, &j.Price,
		&j.CreatedAt, &j.StartedAt, &j.UpdatedAt, &j.Deleted)
	if err != nil {
		return nil, err
	}
	j.Priority = models.Priority(priority)
	j.Status = models.Status(status)
	j.RiskColor = models.RiskColor(risk)
	return &j, nil
}

func (s *pgStore) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 AND NOT deleted`, jobID)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFoundOr(err, "job %d", jobID)
	}
	return j, nil
}

func (s *pgStore) ListJobsByStatus(ctx context.Context, statuses ...models.Status) ([]models.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE NOT deleted AND status = ANY($1) ORDER BY created_at ASC`, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *pgStore) UpdateJobStatus(ctx context.Context, jobID int64, status models.Status, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET status = $1, updated_at = $2,
  started_at = CASE WHEN $1 = 'IN_PROGRESS' AND started_at IS NULL THEN $2 ELSE started_at END
WHERE job_id = $3 AND NOT deleted`, string(status), at.UTC(), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) AssignJob(ctx context.Context, jobID int64, workerID *int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET worker_id = $1, updated_at = now() WHERE job_id = $2 AND NOT deleted`, workerID, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) SetJobEstimate(ctx context.Context, jobID int64, estimatedSec int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET estimated_sec = $1, updated_at = now() WHERE job_id = $2 AND NOT deleted`, estimatedSec, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) SetJobDueDate(ctx context.Context, jobID int64, due time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET due_date = $1, updated_at = now() WHERE job_id = $2 AND NOT deleted`, due.UTC(), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) SetJobRisk(ctx context.Context, jobID int64, color models.RiskColor) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET risk_color = $1, updated_at = now() WHERE job_id = $2 AND NOT deleted`, string(color), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) FinalizeJob(ctx context.Context, jobID int64, actualSec int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET actual_sec = $1, paid = TRUE, risk_color = 'VERDE', updated_at = $2 WHERE job_id = $3 AND NOT deleted`,
		actualSec, at.UTC(), jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

func (s *pgStore) SoftDeleteJob(ctx context.Context, jobID int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET deleted = TRUE, updated_at = now() WHERE job_id = $1`, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("job %d", jobID)
	}
	return nil
}

// --- Workers ---

const workerColumns = `worker_id, name, active, skills, role, hired_at, calendar, created_at`

func (s *pgStore) CreateWorker(ctx context.Context, w models.Worker) (int64, error) {
	if w.Name == "" {
		return 0, errors.New("worker name required")
	}
	skills, err := json.Marshal(w.Skills)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
INSERT INTO workers(name, active, skills, role, hired_at, calendar) VALUES($1, $2, $3, $4, $5, $6)
RETURNING worker_id`,
		w.Name, w.Active, skills, w.Role, w.HiredAt, w.CalendarRaw).Scan(&id)
	return id, err
}

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var (
		w      models.Worker
		skills []byte
	)
	if err := row.Scan(&w.WorkerID, &w.Name, &w.Active, &skills, &w.Role, &w.HiredAt, &w.CalendarRaw, &w.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(skills, &w.Skills); err != nil {
		w.Skills = nil
	}
	return &w, nil
}

func (s *pgStore) GetWorker(ctx context.Context, workerID int64) (*models.Worker, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE worker_id = $1`, workerID)
	w, err := scanWorker(row)
	if err != nil {
		return nil, notFoundOr(err, "worker %d", workerID)
	}
	return w, nil
}

func (s *pgStore) ListActiveWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers WHERE active ORDER BY worker_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *pgStore) SetWorkerActive(ctx context.Context, workerID int64, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workers SET active = $1 WHERE worker_id = $2`, active, workerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("worker %d", workerID)
	}
	return nil
}

func (s *pgStore) WorkerStats(ctx context.Context, workerID int64) (models.WorkerStats, error) {
	st := models.WorkerStats{WorkerID: workerID}

	err := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM jobs WHERE worker_id = $1 AND NOT deleted AND status IN ('ASSIGNED','IN_PROGRESS','QA')`,
		workerID).Scan(&st.WIP)
	if err != nil {
		return st, err
	}

	err = s.pool.QueryRow(ctx, `
SELECT COALESCE(AVG(deviation), 0) FROM predictions WHERE worker_id = $1 AND actual_sec IS NOT NULL`,
		workerID).Scan(&st.AvgDeviation)
	if err != nil {
		return st, err
	}

	var onTime int
	var avgDelay float64
	err = s.pool.QueryRow(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN due_date IS NULL OR updated_at <= due_date THEN 1 ELSE 0 END), 0),
  COALESCE(AVG(CASE WHEN due_date IS NOT NULL AND updated_at > due_date
                    THEN EXTRACT(EPOCH FROM updated_at - due_date) END), 0)
FROM jobs WHERE worker_id = $1 AND status = 'DELIVERED' AND NOT deleted`, workerID).
		Scan(&st.Completed, &onTime, &avgDelay)
	if err != nil {
		return st, err
	}
	if st.Completed > 0 {
		st.OnTimeRate = float64(onTime) / float64(st.Completed)
	}
	st.AvgDelaySec = int64(avgDelay)
	return st, nil
}

// --- Time entries ---

const entryColumns = `entry_id, job_id, worker_id, state, started_at, ended_at, duration_sec`

func (s *pgStore) OpenTimeEntry(ctx context.Context, jobID, workerID int64, start time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO time_entries(job_id, worker_id, state, started_at) VALUES($1, $2, 'OPEN', $3)
RETURNING entry_id`, jobID, workerID, start.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("open time entry for job %d: %w", jobID, err)
	}
	return id, nil
}

func scanEntry(row pgx.Row) (*models.TimeEntry, error) {
	var (
		e     models.TimeEntry
		state string
	)
	if err := row.Scan(&e.EntryID, &e.JobID, &e.WorkerID, &state, &e.StartedAt, &e.EndedAt, &e.DurationSec); err != nil {
		return nil, err
	}
	e.State = models.EntryState(state)
	return &e, nil
}

func (s *pgStore) OpenEntry(ctx context.Context, jobID int64) (*models.TimeEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE job_id = $1 AND state = 'OPEN'`, jobID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *pgStore) CloseTimeEntry(ctx context.Context, entryID int64, end time.Time, durationSec int64) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE time_entries SET state = 'CLOSED', ended_at = $1, duration_sec = $2 WHERE entry_id = $3 AND state = 'OPEN'`,
		end.UTC(), durationSec, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.NotFoundf("open time entry %d", entryID)
	}
	return nil
}

func (s *pgStore) SumClosedSeconds(ctx context.Context, jobID int64) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration_sec), 0) FROM time_entries WHERE job_id = $1 AND state = 'CLOSED'`, jobID).
		Scan(&total)
	return total, err
}

func (s *pgStore) ListEntriesForJob(ctx context.Context, jobID int64) ([]models.TimeEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE job_id = $1 ORDER BY entry_id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// --- Estimator history and training data ---

func (s *pgStore) DeliveredDurations(ctx context.Context, workerID int64) ([]store.JobDuration, error) {
	rows, err := s.pool.Query(ctx, `
SELECT j.job_id, j.priority, SUM(e.duration_sec)
FROM time_entries e
JOIN jobs j ON j.job_id = e.job_id
WHERE e.worker_id = $1 AND e.state = 'CLOSED' AND j.status = 'DELIVERED' AND NOT j.deleted
GROUP BY j.job_id, j.priority
ORDER BY j.job_id DESC
LIMIT 50`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.JobDuration
	for rows.Next() {
		var d store.JobDuration
		var priority string
		if err := rows.Scan(&d.JobID, &priority, &d.TotalSec); err != nil {
			return nil, err
		}
		d.Priority = models.Priority(priority)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgStore) TrainingSamples(ctx context.Context, limit int) ([]store.TrainingSample, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
SELECT j.job_id, e.worker_id, SUM(e.duration_sec), j.priority, j.price, j.description,
       w.skills, w.hired_at,
       (SELECT COUNT(*) FROM jobs a WHERE a.worker_id = e.worker_id AND NOT a.deleted AND a.status IN ('ASSIGNED','IN_PROGRESS','QA'))
FROM time_entries e
JOIN jobs j ON j.job_id = e.job_id
JOIN workers w ON w.worker_id = e.worker_id
WHERE e.state = 'CLOSED' AND j.status = 'DELIVERED' AND NOT j.deleted
GROUP BY j.job_id, e.worker_id, j.priority, j.price, j.description, w.skills, w.hired_at
ORDER BY j.job_id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TrainingSample
	for rows.Next() {
		var (
			ts       store.TrainingSample
			priority string
			skills   []byte
		)
		if err := rows.Scan(&ts.JobID, &ts.WorkerID, &ts.DurationSec, &priority, &ts.Price,
			&ts.Description, &skills, &ts.WorkerHired, &ts.WorkerWIP); err != nil {
			return nil, err
		}
		ts.Priority = models.Priority(priority)
		if err := json.Unmarshal(skills, &ts.WorkerSkills); err != nil {
			ts.WorkerSkills = nil
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// --- Prediction ledger ---

func (s *pgStore) InsertPrediction(ctx context.Context, rec models.PredictionRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO predictions(job_id, worker_id, estimated_sec, actual_sec, deviation, model_version)
VALUES($1, $2, $3, $4, $5, $6)
RETURNING record_id`,
		rec.JobID, rec.WorkerID, rec.EstimatedSec, rec.ActualSec, rec.Deviation, rec.ModelVersion).Scan(&id)
	return id, err
}

func (s *pgStore) ClosePredictions(ctx context.Context, jobID int64, actualSec int64) error {
	_, err := s.pool.Exec(ctx, `
UPDATE predictions
SET actual_sec = $1,
    deviation = CASE WHEN estimated_sec > 0 THEN ABS($1 - estimated_sec)::DOUBLE PRECISION / estimated_sec END
WHERE job_id = $2 AND actual_sec IS NULL`, actualSec, jobID)
	return err
}

// --- Trained models ---

func (s *pgStore) SaveModel(ctx context.Context, version string, trainedAt time.Time, payload []byte) error {
	if version == "" {
		return errors.New("model version required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trained_models(version, trained_at, payload) VALUES($1, $2, $3)`,
		version, trainedAt.UTC(), payload)
	return err
}

func (s *pgStore) LatestModel(ctx context.Context) (string, []byte, error) {
	var version string
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT version, payload FROM trained_models ORDER BY trained_at DESC, model_id DESC LIMIT 1`).
		Scan(&version, &payload)
	if err != nil {
		return "", nil, notFoundOr(err, "trained model")
	}
	return version, payload, nil
}

// --- Assignment audit log ---

func (s *pgStore) InsertAssignmentEvent(ctx context.Context, ev models.AssignmentEvent) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO assignment_events(job_id, worker_id, origin, rationale) VALUES($1, $2, $3, $4)
RETURNING event_id`, ev.JobID, ev.WorkerID, ev.Origin, ev.Rationale).Scan(&id)
	return id, err
}

func (s *pgStore) ListAssignmentEvents(ctx context.Context, jobID int64) ([]models.AssignmentEvent, error) {
	rows, err := s.pool.Query(ctx, `
SELECT event_id, job_id, worker_id, origin, rationale, created_at
FROM assignment_events WHERE job_id = $1 ORDER BY event_id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AssignmentEvent
	for rows.Next() {
		var ev models.AssignmentEvent
		if err := rows.Scan(&ev.EventID, &ev.JobID, &ev.WorkerID, &ev.Origin, &ev.Rationale, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *pgStore) LastReassignAt(ctx context.Context, jobID int64) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
SELECT created_at FROM assignment_events
WHERE job_id = $1 AND origin = 'AUTO_REASSIGN' ORDER BY event_id DESC LIMIT 1`, jobID).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Client notifications ---

func (s *pgStore) InsertNotification(ctx context.Context, n models.ClientNotification) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO notifications(job_id, client_id, kind, title, message) VALUES($1, $2, $3, $4, $5)
RETURNING notification_id`, n.JobID, n.ClientID, n.Kind, n.Title, n.Message).Scan(&id)
	return id, err
}

func (s *pgStore) LastNotificationAt(ctx context.Context, jobID int64, kind string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
SELECT created_at FROM notifications WHERE job_id = $1 AND kind = $2 ORDER BY notification_id DESC LIMIT 1`,
		jobID, kind).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SeedDemo is a no-op for postgres; demo data is only for local sqlite runs.
func (s *pgStore) SeedDemo(ctx context.Context) error {
	return nil
}
