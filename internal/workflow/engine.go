// Package workflow is the job state machine. Transitions validate against a
// fixed table, serialize per job, and commit the status row before running
// side effects: the status is the source of truth, everything else (time
// entries, notifications, events) follows best effort and is logged when it
// fails.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/notify"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/otel"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/risk"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// transitions is the full state machine. A status absent from the map is
// terminal.
var transitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusAssigned, models.StatusInProgress},
	models.StatusAssigned:   {models.StatusPending, models.StatusInProgress},
	models.StatusInProgress: {models.StatusQA, models.StatusDelivered, models.StatusAssigned, models.StatusPending},
	models.StatusQA:         {models.StatusInProgress, models.StatusDelivered},
}

// InvalidTransitionError reports a rejected transition with what would have
// been accepted instead.
type InvalidTransitionError struct {
	From    models.Status
	To      models.Status
	Allowed []models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition %s -> %s (allowed: %v)", e.From, e.To, e.Allowed)
}

// Allowed returns the valid target statuses from a given one.
func Allowed(from models.Status) []models.Status {
	return transitions[from]
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Suggester picks a worker for a job that has none. The ranking engine
// satisfies this.
type Suggester interface {
	Suggest(ctx context.Context, job *models.Job) (workerID int64, rationale string, err error)
}

// Config carries the engine knobs.
type Config struct {
	// Refresh the committed due date on every re-estimate. When off, a due
	// date is only projected for jobs that have none.
	AutoUpdateDueDate bool
	Schedule          calendar.Schedule

	// Classifier, when set, re-runs the semaphore after every non-terminal
	// transition.
	Classifier *risk.Classifier

	// Suggester, when set, lets jobs start without a worker: one is picked
	// on the spot.
	Suggester Suggester
}

// Engine executes transitions and their side effects.
type Engine struct {
	store     store.Store
	estimator *estimate.Estimator
	notifier  notify.Notifier
	cfg       Config
	log       *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New returns an Engine. notifier may be nil (one-shot commands).
func New(st store.Store, est *estimate.Estimator, notifier notify.Notifier, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		store:     st,
		estimator: est,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// jobLock serializes all operations on one job. Locks are never dropped;
// the map grows with the distinct jobs touched in one process lifetime,
// which a small shop never notices.
func (e *Engine) jobLock(jobID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[jobID] = l
	}
	return l
}

// Assign moves a PENDING job to ASSIGNED on the given worker, estimating
// duration and projecting a due date when configured.
func (e *Engine) Assign(ctx context.Context, jobID, workerID int64, origin, rationale string) (*models.Job, error) {
	l := e.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusPending {
		return nil, &InvalidTransitionError{From: job.Status, To: models.StatusAssigned, Allowed: Allowed(job.Status)}
	}
	worker, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !worker.Active {
		return nil, fmt.Errorf("worker %d is inactive", workerID)
	}

	now := time.Now().UTC()
	if err := e.store.UpdateJobStatus(ctx, jobID, models.StatusAssigned, now); err != nil {
		return nil, err
	}
	if err := e.store.AssignJob(ctx, jobID, &workerID); err != nil {
		return nil, err
	}
	otel.RecordTransition(ctx, string(job.Status), string(models.StatusAssigned))
	otel.RecordAssignment(ctx, origin)

	e.afterAssign(ctx, job, worker, origin, rationale, now)

	updated, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if e.cfg.Classifier != nil {
		e.reclassify(ctx, updated, now)
	}
	return updated, nil
}

// Reassign swaps the worker on an ASSIGNED or IN_PROGRESS job without
// changing status. An open time entry of the previous worker is closed
// first so their tracked time stays theirs.
func (e *Engine) Reassign(ctx context.Context, jobID, workerID int64, origin, rationale string) (*models.Job, error) {
	l := e.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusAssigned && job.Status != models.StatusInProgress {
		return nil, fmt.Errorf("cannot reassign job in status %s", job.Status)
	}
	if job.WorkerID != nil && *job.WorkerID == workerID {
		return job, nil
	}
	worker, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !worker.Active {
		return nil, fmt.Errorf("worker %d is inactive", workerID)
	}

	now := time.Now().UTC()
	e.closeOpenEntry(ctx, jobID, now)
	if err := e.store.AssignJob(ctx, jobID, &workerID); err != nil {
		return nil, err
	}
	otel.RecordAssignment(ctx, origin)

	e.afterAssign(ctx, job, worker, origin, rationale, now)
	if job.Status == models.StatusInProgress {
		if _, err := e.store.OpenTimeEntry(ctx, jobID, workerID, now); err != nil {
			e.log.Error("reopen time entry after reassign", "job", jobID, "error", err)
		}
	}
	e.notifier.Publish(notify.Event{
		Type:     notify.EventReassigned,
		JobID:    jobID,
		Code:     job.Code,
		Status:   job.Status,
		WorkerID: &workerID,
		Message:  rationale,
	})

	updated, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if e.cfg.Classifier != nil {
		e.reclassify(ctx, updated, now)
	}
	return updated, nil
}

// afterAssign runs the estimation side effects shared by Assign and
// Reassign: all best effort once the assignment itself is committed.
func (e *Engine) afterAssign(ctx context.Context, job *models.Job, worker *models.Worker, origin, rationale string, now time.Time) {
	e.reestimate(ctx, job, worker, now)

	if _, err := e.store.InsertAssignmentEvent(ctx, models.AssignmentEvent{
		JobID:     job.JobID,
		WorkerID:  worker.WorkerID,
		Origin:    origin,
		Rationale: rationale,
	}); err != nil {
		e.log.Error("record assignment event", "job", job.JobID, "error", err)
	}

	workerID := worker.WorkerID
	e.notifier.Publish(notify.Event{
		Type:     notify.EventAssigned,
		JobID:    job.JobID,
		Code:     job.Code,
		Status:   models.StatusAssigned,
		WorkerID: &workerID,
		Message:  rationale,
	})
}

// reestimate refreshes the duration estimate for one worker, opens a
// prediction record against it, and projects the committed due date when the
// job has none (or always, with auto-update on).
func (e *Engine) reestimate(ctx context.Context, job *models.Job, worker *models.Worker, now time.Time) {
	stats, err := e.store.WorkerStats(ctx, worker.WorkerID)
	if err != nil {
		e.log.Error("worker stats for estimate", "worker", worker.WorkerID, "error", err)
	}
	est, err := e.estimator.ForWorker(ctx, job, worker, stats.WIP)
	if err != nil {
		e.log.Error("estimate", "job", job.JobID, "error", err)
		return
	}
	if err := e.store.SetJobEstimate(ctx, job.JobID, est.Seconds); err != nil {
		e.log.Error("store estimate", "job", job.JobID, "error", err)
	}
	otel.RecordEstimate(ctx, est.Source, est.Seconds)
	if _, err := e.store.InsertPrediction(ctx, models.PredictionRecord{
		JobID:        job.JobID,
		WorkerID:     worker.WorkerID,
		EstimatedSec: est.Seconds,
		ModelVersion: est.ModelVersion,
	}); err != nil {
		e.log.Error("record prediction", "job", job.JobID, "error", err)
	}
	if job.DueDate == nil || e.cfg.AutoUpdateDueDate {
		if due, err := e.cfg.Schedule.Advance(now, est.Seconds); err == nil {
			if err := e.store.SetJobDueDate(ctx, job.JobID, due); err != nil {
				e.log.Error("store due date", "job", job.JobID, "error", err)
			}
		}
	}
}

// Transition moves a job to the target status, running that status's side
// effects. Assignment must go through Assign; this handles the rest.
func (e *Engine) Transition(ctx context.Context, jobID int64, to models.Status) (*models.Job, error) {
	l := e.jobLock(jobID)
	l.Lock()
	defer l.Unlock()

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == to {
		// Idempotent: repeating the current status does nothing.
		return job, nil
	}
	if !CanTransition(job.Status, to) {
		return nil, &InvalidTransitionError{From: job.Status, To: to, Allowed: Allowed(job.Status)}
	}
	if to == models.StatusAssigned && job.Status != models.StatusInProgress {
		return nil, fmt.Errorf("use Assign to put a worker on job %d", jobID)
	}

	// Starting an unassigned job picks a worker on the spot.
	workerID := job.WorkerID
	var pickRationale string
	if to == models.StatusInProgress && workerID == nil {
		if e.cfg.Suggester == nil {
			return nil, fmt.Errorf("job %d has no worker to start on", jobID)
		}
		id, rationale, err := e.cfg.Suggester.Suggest(ctx, job)
		if err != nil {
			return nil, fmt.Errorf("pick worker for job %d: %w", jobID, err)
		}
		workerID = &id
		pickRationale = rationale
	}

	now := time.Now().UTC()
	if err := e.store.UpdateJobStatus(ctx, jobID, to, now); err != nil {
		return nil, err
	}
	otel.RecordTransition(ctx, string(job.Status), string(to))

	leavingWork := job.Status == models.StatusInProgress
	switch to {
	case models.StatusPending:
		// Back to the queue: stop the clock, drop the worker.
		if leavingWork {
			e.closeOpenEntry(ctx, jobID, now)
		}
		if err := e.store.AssignJob(ctx, jobID, nil); err != nil {
			e.log.Error("unassign", "job", jobID, "error", err)
		}
	case models.StatusAssigned:
		// Pause: stop the clock, keep the worker.
		e.closeOpenEntry(ctx, jobID, now)
	case models.StatusInProgress:
		if job.WorkerID == nil {
			if err := e.store.AssignJob(ctx, jobID, workerID); err != nil {
				e.log.Error("assign on start", "job", jobID, "error", err)
			} else if worker, err := e.store.GetWorker(ctx, *workerID); err == nil {
				otel.RecordAssignment(ctx, models.OriginSuggested)
				e.afterAssign(ctx, job, worker, models.OriginSuggested, pickRationale, now)
			}
		} else if worker, err := e.store.GetWorker(ctx, *workerID); err == nil {
			e.reestimate(ctx, job, worker, now)
		}
		if _, err := e.store.OpenTimeEntry(ctx, jobID, *workerID, now); err != nil {
			e.log.Error("open time entry", "job", jobID, "error", err)
		}
		e.clientNotice(ctx, job, models.NoticeInfo, "Pedido en producción",
			"Su pedido "+job.Code+" entró a producción.")
	case models.StatusQA:
		e.closeOpenEntry(ctx, jobID, now)
		e.clientNotice(ctx, job, models.NoticeInfo, "Pedido en control de calidad",
			"Su pedido "+job.Code+" está en control de calidad.")
	case models.StatusDelivered:
		e.closeOpenEntry(ctx, jobID, now)
		e.finalize(ctx, job, now)
	}

	e.notifier.Publish(notify.Event{
		Type:   notify.EventStatusChanged,
		JobID:  jobID,
		Code:   job.Code,
		Status: to,
	})

	updated, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if to != models.StatusDelivered && e.cfg.Classifier != nil {
		e.reclassify(ctx, updated, now)
	}
	return updated, nil
}

// reclassify re-runs the semaphore against the tracked time so far; the open
// entry's elapsed business time counts.
func (e *Engine) reclassify(ctx context.Context, job *models.Job, now time.Time) {
	tracked, err := e.store.SumClosedSeconds(ctx, job.JobID)
	if err != nil {
		e.log.Error("sum tracked time", "job", job.JobID, "error", err)
		return
	}
	if open, err := e.store.OpenEntry(ctx, job.JobID); err == nil && open != nil {
		if live := e.cfg.Schedule.BusinessSecondsBetween(open.StartedAt, now); live > 0 {
			tracked += live
		}
	}
	a := e.cfg.Classifier.Classify(job, tracked, now)
	if err := e.SetRisk(ctx, job, a.Color); err != nil {
		e.log.Error("set risk after transition", "job", job.JobID, "error", err)
		return
	}
	job.RiskColor = a.Color
}

/// finalize records the delivered job's actuals: summed tracked time becomes
// the actual duration, open predictions close against it, the semaphore
// resets, and the client is told to pick up.
func (e *Engine) finalize(ctx context.Context, job *models.Job, now time.Time) {
	actual, err := e.store.SumClosedSeconds(ctx, job.JobID)
	if err != nil {
		e.log.Error("sum tracked time", "job", job.JobID, "error", err)
		return
	}
	if err := e.store.FinalizeJob(ctx, job.JobID, actual, now); err != nil {
		e.log.Error("finalize job", "job", job.JobID, "error", err)
	}
	if err := e.store.ClosePredictions(ctx, job.JobID, actual); err != nil {
		e.log.Error("close predictions", "job", job.JobID, "error", err)
	}
	e.clientNotice(ctx, job, models.NoticeDelivery, "Pedido listo",
		"Su pedido "+job.Code+" está terminado y listo para recoger.")
	e.notifier.Publish(notify.Event{
		Type:  notify.EventDelivered,
		JobID: job.JobID,
		Code:  job.Code,
	})
	e.log.Info("job delivered", "job", job.JobID, "code", job.Code, "actual_sec", actual)
}

func (e *Engine) closeOpenEntry(ctx context.Context, jobID int64, now time.Time) {
	entry, err := e.store.OpenEntry(ctx, jobID)
	if err != nil {
		e.log.Error("lookup open entry", "job", jobID, "error", err)
		return
	}
	if entry == nil {
		return
	}
	// Tracked time is business time: a job paused over the weekend did not
	// accrue two days of work.
	dur := e.cfg.Schedule.BusinessSecondsBetween(entry.StartedAt, now)
	if dur < 0 {
		dur = 0
	}
	if err := e.store.CloseTimeEntry(ctx, entry.EntryID, now, dur); err != nil {
		e.log.Error("close time entry", "job", jobID, "entry", entry.EntryID, "error", err)
	}
}

func (e *Engine) clientNotice(ctx context.Context, job *models.Job, kind, title, message string) {
	if _, err := e.store.InsertNotification(ctx, models.ClientNotification{
		JobID:    job.JobID,
		ClientID: job.ClientID,
		Kind:     kind,
		Title:    title,
		Message:  message,
	}); err != nil {
		e.log.Error("client notification", "job", job.JobID, "error", err)
		return
	}
	otel.RecordNotification(ctx, kind)
}

// SetRisk persists a semaphore change and publishes it.
func (e *Engine) SetRisk(ctx context.Context, job *models.Job, color models.RiskColor) error {
	if job.RiskColor == color {
		return nil
	}
	if err := e.store.SetJobRisk(ctx, job.JobID, color); err != nil {
		return err
	}
	otel.RecordRiskChange(ctx, string(color))
	e.notifier.Publish(notify.Event{
		Type:  notify.EventRiskChanged,
		JobID: job.JobID,
		Code:  job.Code,
		Color: color,
	})
	return nil
}
