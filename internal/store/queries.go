package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// --- Jobs ---

func (s *sqliteStore) CreateJob(ctx context.Context, job models.Job) (int64, error) {
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
		job.Code = newJobCode()
	}
	now := time.Now().UTC().Unix()
	var due *int64
	if job.DueDate != nil {
		v := job.DueDate.UTC().Unix()
		due = &v
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO jobs(code, description, priority, client_id, worker_id, status, estimated_sec, due_date, risk_color, price, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Code, job.Description, string(job.Priority), job.ClientID, job.WorkerID,
		string(job.Status), job.EstimatedSec, due, string(job.RiskColor), job.Price, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// newJobCode generates a human-facing job code like P-202609-4F21A3.
func newJobCode() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("P-%s-%s", time.Now().UTC().Format("200601"), strings.ToUpper(hex.EncodeToString(b)))
}

func scanJob(scan func(dest ...any) error) (*models.Job, error) {
	var (
		j                              models.Job
		priority, status, risk         string
		workerID, due, actual, started sql.NullInt64
		createdAt, updatedAt           int64
		paid, deleted                  int
	)
	err := scan(&j.JobID, &j.Code, &j.Description, &priority, &j.ClientID, &workerID,
		&status, &j.EstimatedSec, &due, &risk, &actual, &paid, &j.Price, &createdAt, &started, &updatedAt, &deleted)
	if err != nil {
		return nil, err
	}
	j.Priority = models.Priority(priority)
	j.Status = models.Status(status)
	j.RiskColor = models.RiskColor(risk)
	if workerID.Valid {
		j.WorkerID = &workerID.Int64
	}
	if due.Valid {
		t := time.Unix(due.Int64, 0).UTC()
		j.DueDate = &t
	}
	if actual.Valid {
		j.ActualSec = &actual.Int64
	}
	if started.Valid {
		t := time.Unix(started.Int64, 0).UTC()
		j.StartedAt = &t
	}
	j.CreatedAt = time.Unix(createdAt, 0).UTC()
	j.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	j.Paid = paid != 0
	j.Deleted = deleted != 0
	return &j, nil
}

func (s *sqliteStore) GetJob(ctx context.Context, jobID int64) (*models.Job, error) {
	row := s.stmtGetJob.QueryRowContext(ctx, jobID)
	j, err := scanJob(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("job %d", jobID)
	}
	return j, err
}

func (s *sqliteStore) ListJobsByStatus(ctx context.Context, statuses ...models.Status) ([]models.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE deleted = 0 AND status IN (`+placeholders+`) ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateJobStatus(ctx context.Context, jobID int64, status models.Status, at time.Time) error {
	ts := at.UTC().Unix()
	res, err := s.DB.ExecContext(ctx, `
UPDATE jobs SET status = ?, updated_at = ?,
  started_at = CASE WHEN ? = 'IN_PROGRESS' AND started_at IS NULL THEN ? ELSE started_at END
WHERE job_id = ? AND deleted = 0`,
		string(status), ts, string(status), ts, jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) AssignJob(ctx context.Context, jobID int64, workerID *int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET worker_id = ?, updated_at = ? WHERE job_id = ? AND deleted = 0`,
		workerID, time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) SetJobEstimate(ctx context.Context, jobID int64, estimatedSec int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET estimated_sec = ?, updated_at = ? WHERE job_id = ? AND deleted = 0`,
		estimatedSec, time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) SetJobDueDate(ctx context.Context, jobID int64, due time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET due_date = ?, updated_at = ? WHERE job_id = ? AND deleted = 0`,
		due.UTC().Unix(), time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) SetJobRisk(ctx context.Context, jobID int64, color models.RiskColor) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET risk_color = ?, updated_at = ? WHERE job_id = ? AND deleted = 0`,
		string(color), time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) FinalizeJob(ctx context.Context, jobID int64, actualSec int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE jobs SET actual_sec = ?, paid = 1, risk_color = 'VERDE', updated_at = ? WHERE job_id = ? AND deleted = 0`,
		actualSec, at.UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func (s *sqliteStore) SoftDeleteJob(ctx context.Context, jobID int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE jobs SET deleted = 1, updated_at = ? WHERE job_id = ?`,
		time.Now().UTC().Unix(), jobID)
	if err != nil {
		return err
	}
	return requireRow(res, "job %d", jobID)
}

func requireRow(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFoundf(format, args...)
	}
	return nil
}

// --- Workers ---

func (s *sqliteStore) CreateWorker(ctx context.Context, w models.Worker) (int64, error) {
	if w.Name == "" {
		return 0, errors.New("worker name required")
	}
	skills, err := json.Marshal(w.Skills)
	if err != nil {
		return 0, err
	}
	var hired *int64
	if w.HiredAt != nil {
		v := w.HiredAt.UTC().Unix()
		hired = &v
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO workers(name, active, skills, role, hired_at, calendar, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		w.Name, boolInt(w.Active), string(skills), w.Role, hired, w.CalendarRaw, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanWorker(scan func(dest ...any) error) (*models.Worker, error) {
	var (
		w         models.Worker
		active    int
		skills    string
		hired     sql.NullInt64
		createdAt int64
	)
	if err := scan(&w.WorkerID, &w.Name, &active, &skills, &w.Role, &hired, &w.CalendarRaw, &createdAt); err != nil {
		return nil, err
	}
	w.Active = active != 0
	if err := json.Unmarshal([]byte(skills), &w.Skills); err != nil {
		w.Skills = nil
	}
	if hired.Valid {
		t := time.Unix(hired.Int64, 0).UTC()
		w.HiredAt = &t
	}
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &w, nil
}

const workerColumns = `worker_id, name, active, skills, role, hired_at, calendar, created_at`

func (s *sqliteStore) GetWorker(ctx context.Context, workerID int64) (*models.Worker, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE worker_id = ?`, workerID)
	w, err := scanWorker(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundf("worker %d", workerID)
	}
	return w, err
}

func (s *sqliteStore) ListActiveWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE active = 1 ORDER BY worker_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetWorkerActive(ctx context.Context, workerID int64, active bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE workers SET active = ? WHERE worker_id = ?`, boolInt(active), workerID)
	if err != nil {
		return err
	}
	return requireRow(res, "worker %d", workerID)
}

// WorkerStats recomputes the derived view for one worker: WIP from active
// jobs, accuracy from the prediction ledger, punctuality from delivered jobs.
func (s *sqliteStore) WorkerStats(ctx context.Context, workerID int64) (models.WorkerStats, error) {
	st := models.WorkerStats{WorkerID: workerID}

	if err := s.stmtWorkerWIP.QueryRowContext(ctx, workerID).Scan(&st.WIP); err != nil {
		return st, err
	}

	row := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(AVG(deviation), 0)
FROM predictions WHERE worker_id = ? AND actual_sec IS NOT NULL`, workerID)
	var predCount int
	if err := row.Scan(&predCount, &st.AvgDeviation); err != nil {
		return st, err
	}

	row = s.DB.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN due_date IS NULL OR updated_at <= due_date THEN 1 ELSE 0 END), 0),
  COALESCE(AVG(CASE WHEN due_date IS NOT NULL AND updated_at > due_date THEN updated_at - due_date END), 0)
FROM jobs WHERE worker_id = ? AND status = 'DELIVERED' AND deleted = 0`, workerID)
	var onTime int
	var avgDelay float64
	if err := row.Scan(&st.Completed, &onTime, &avgDelay); err != nil {
		return st, err
	}
	if st.Completed > 0 {
		st.OnTimeRate = float64(onTime) / float64(st.Completed)
	}
	st.AvgDelaySec = int64(avgDelay)
	return st, nil
}

// --- Time entries ---

func (s *sqliteStore) OpenTimeEntry(ctx context.Context, jobID, workerID int64, start time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO time_entries(job_id, worker_id, state, started_at) VALUES(?, ?, 'OPEN', ?)`,
		jobID, workerID, start.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("open time entry for job %d: %w", jobID, err)
	}
	return res.LastInsertId()
}

func scanEntry(scan func(dest ...any) error) (*models.TimeEntry, error) {
	var (
		e           models.TimeEntry
		state       string
		startedAt   int64
		endedAt     sql.NullInt64
		durationSec sql.NullInt64
	)
	if err := scan(&e.EntryID, &e.JobID, &e.WorkerID, &state, &startedAt, &endedAt, &durationSec); err != nil {
		return nil, err
	}
	e.State = models.EntryState(state)
	e.StartedAt = time.Unix(startedAt, 0).UTC()
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		e.EndedAt = &t
	}
	if durationSec.Valid {
		e.DurationSec = &durationSec.Int64
	}
	return &e, nil
}

func (s *sqliteStore) OpenEntry(ctx context.Context, jobID int64) (*models.TimeEntry, error) {
	row := s.stmtOpenEntry.QueryRowContext(ctx, jobID)
	e, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *sqliteStore) CloseTimeEntry(ctx context.Context, entryID int64, end time.Time, durationSec int64) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE time_entries SET state = 'CLOSED', ended_at = ?, duration_sec = ? WHERE entry_id = ? AND state = 'OPEN'`,
		end.UTC().Unix(), durationSec, entryID)
	if err != nil {
		return err
	}
	return requireRow(res, "open time entry %d", entryID)
}

func (s *sqliteStore) SumClosedSeconds(ctx context.Context, jobID int64) (int64, error) {
	var total int64
	err := s.stmtSumClosed.QueryRowContext(ctx, jobID).Scan(&total)
	return total, err
}

func (s *sqliteStore) ListEntriesForJob(ctx context.Context, jobID int64) ([]models.TimeEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT entry_id, job_id, worker_id, state, started_at, ended_at, duration_sec
FROM time_entries WHERE job_id = ? ORDER BY entry_id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// --- Estimator history and training data ---

// DeliveredDurations returns one row per delivered job the worker tracked
// time on, entries summed per job so multiple sessions never double count.
func (s *sqliteStore) DeliveredDurations(ctx context.Context, workerID int64) ([]JobDuration, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT j.job_id, j.priority, SUM(e.duration_sec)
FROM time_entries e
JOIN jobs j ON j.job_id = e.job_id
WHERE e.worker_id = ? AND e.state = 'CLOSED' AND j.status = 'DELIVERED' AND j.deleted = 0
GROUP BY j.job_id, j.priority
ORDER BY j.job_id DESC
LIMIT 50`, workerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []JobDuration
	for rows.Next() {
		var d JobDuration
		var priority string
		if err := rows.Scan(&d.JobID, &priority, &d.TotalSec); err != nil {
			return nil, err
		}
		d.Priority = models.Priority(priority)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TrainingSamples(ctx context.Context, limit int) ([]TrainingSample, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT j.job_id, e.worker_id, SUM(e.duration_sec), j.priority, j.price, j.description,
       w.skills, w.hired_at,
       (SELECT COUNT(*) FROM jobs a WHERE a.worker_id = e.worker_id AND a.deleted = 0 AND a.status IN ('ASSIGNED','IN_PROGRESS','QA'))
FROM time_entries e
JOIN jobs j ON j.job_id = e.job_id
JOIN workers w ON w.worker_id = e.worker_id
WHERE e.state = 'CLOSED' AND j.status = 'DELIVERED' AND j.deleted = 0
GROUP BY j.job_id, e.worker_id
ORDER BY j.job_id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []TrainingSample
	for rows.Next() {
		var (
			ts       TrainingSample
			priority string
			skills   string
			hired    sql.NullInt64
		)
		if err := rows.Scan(&ts.JobID, &ts.WorkerID, &ts.DurationSec, &priority, &ts.Price,
			&ts.Description, &skills, &hired, &ts.WorkerWIP); err != nil {
			return nil, err
		}
		ts.Priority = models.Priority(priority)
		if err := json.Unmarshal([]byte(skills), &ts.WorkerSkills); err != nil {
			ts.WorkerSkills = nil
		}
		if hired.Valid {
			t := time.Unix(hired.Int64, 0).UTC()
			ts.WorkerHired = &t
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// --- Prediction ledger ---

func (s *sqliteStore) InsertPrediction(ctx context.Context, rec models.PredictionRecord) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO predictions(job_id, worker_id, estimated_sec, actual_sec, deviation, model_version, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.WorkerID, rec.EstimatedSec, rec.ActualSec, rec.Deviation, rec.ModelVersion, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ClosePredictions fills in actuals on the job's ledger rows so they become
// usable accuracy samples: deviation = |actual - estimated| / estimated.
func (s *sqliteStore) ClosePredictions(ctx context.Context, jobID int64, actualSec int64) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE predictions
SET actual_sec = ?,
    deviation = CASE WHEN estimated_sec > 0 THEN ABS(? - estimated_sec) * 1.0 / estimated_sec ELSE NULL END
WHERE job_id = ? AND actual_sec IS NULL`, actualSec, actualSec, jobID)
	return err
}

// --- Trained models ---

func (s *sqliteStore) SaveModel(ctx context.Context, version string, trainedAt time.Time, payload []byte) error {
	if version == "" {
		return errors.New("model version required")
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO trained_models(version, trained_at, payload) VALUES(?, ?, ?)`,
		version, trainedAt.UTC().Unix(), string(payload))
	return err
}

func (s *sqliteStore) LatestModel(ctx context.Context) (string, []byte, error) {
	var version, payload string
	err := s.stmtLatestModel.QueryRowContext(ctx).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, NotFoundf("trained model")
	}
	if err != nil {
		return "", nil, err
	}
	return version, []byte(payload), nil
}

// --- Assignment audit log ---

func (s *sqliteStore) InsertAssignmentEvent(ctx context.Context, ev models.AssignmentEvent) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO assignment_events(job_id, worker_id, origin, rationale, created_at) VALUES(?, ?, ?, ?, ?)`,
		ev.JobID, ev.WorkerID, ev.Origin, ev.Rationale, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListAssignmentEvents(ctx context.Context, jobID int64) ([]models.AssignmentEvent, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT event_id, job_id, worker_id, origin, rationale, created_at
FROM assignment_events WHERE job_id = ? ORDER BY event_id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AssignmentEvent
	for rows.Next() {
		var ev models.AssignmentEvent
		var ts int64
		if err := rows.Scan(&ev.EventID, &ev.JobID, &ev.WorkerID, &ev.Origin, &ev.Rationale, &ts); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastReassignAt(ctx context.Context, jobID int64) (*time.Time, error) {
	var ts int64
	err := s.DB.QueryRowContext(ctx, `
SELECT created_at FROM assignment_events
WHERE job_id = ? AND origin = 'AUTO_REASSIGN' ORDER BY event_id DESC LIMIT 1`, jobID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.Unix(ts, 0).UTC()
	return &t, nil
}

// --- Client notifications ---

func (s *sqliteStore) InsertNotification(ctx context.Context, n models.ClientNotification) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO notifications(job_id, client_id, kind, title, message, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		n.JobID, n.ClientID, n.Kind, n.Title, n.Message, time.Now().UTC().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) LastNotificationAt(ctx context.Context, jobID int64, kind string) (*time.Time, error) {
	var ts int64
	err := s.DB.QueryRowContext(ctx, `
SELECT created_at FROM notifications WHERE job_id = ? AND kind = ? ORDER BY notification_id DESC LIMIT 1`,
		jobID, kind).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.Unix(ts, 0).UTC()
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
