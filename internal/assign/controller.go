// Package assign is the control loop over open jobs: it places pending work
// on the best-ranked worker, reassesses delivery risk, alerts clients, and
// rescues overdue red jobs by moving them to a clearly better worker. Every
// automatic decision, including the decision to do nothing, is explainable.
package assign

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/notify"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/ranking"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/risk"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/workflow"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Reasons a red job was deliberately left where it is.
const (
	KeepNoCandidates  = "no_candidates"
	KeepAlreadyBest   = "already_best"
	KeepDeltaLow      = "delta_low"
	KeepNotOverdueYet = "not_overdue_yet"
	KeepCooldown      = "cooldown"
)

// Config carries the controller knobs.
type Config struct {
	AutoAssign bool

	// Reassignment policy: only red jobs past due by at least Grace move,
	// at most once per Cooldown, and only to a candidate at least MinDelta
	// better than the current worker.
	ReassignGrace    time.Duration
	ReassignCooldown time.Duration
	ReassignMinDelta float64

	// ForceOnDelay moves a red overdue job even without a better
	// candidate, as long as the best alternative is not worse than the
	// current worker by more than WorseTolerance.
	ForceOnDelay   bool
	WorseTolerance float64

	AlertCooldown time.Duration

	// Schedule is the shop's business calendar; live tracked time on open
	// entries accrues against it.
	Schedule calendar.Schedule
}

// DefaultConfig mirrors the daemon's defaults.
func DefaultConfig() Config {
	return Config{
		AutoAssign:       true,
		ReassignGrace:    15 * time.Minute,
		ReassignCooldown: 60 * time.Minute,
		ReassignMinDelta: 0.1,
		ForceOnDelay:     false,
		WorseTolerance:   0.05,
		AlertCooldown:    30 * time.Minute,
	}
}

// Summary is what one sweep pass did.
type Summary struct {
	Scanned    int
	Assigned   int
	Reassigned int
	RiskMoved  int
	Alerts     int
	Kept       map[string]int // keep-decision counts by reason
}

// Controller wires ranking, risk, and the workflow engine together.
type Controller struct {
	store      store.Store
	engine     *workflow.Engine
	ranker     *ranking.Ranker
	classifier *risk.Classifier
	throttle   risk.Throttle
	notifier   notify.Notifier
	cfg        Config
	log        *slog.Logger
}

// New returns a Controller. throttle and notifier may be nil.
func New(st store.Store, eng *workflow.Engine, rk *ranking.Ranker, cl *risk.Classifier, th risk.Throttle, nt notify.Notifier, cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if th == nil {
		th = risk.NewThrottle(cfg.AlertCooldown)
	}
	if nt == nil {
		nt = notify.Nop{}
	}
	return &Controller{
		store:      st,
		engine:     eng,
		ranker:     rk,
		classifier: cl,
		throttle:   th,
		notifier:   nt,
		cfg:        cfg,
		log:        log,
	}
}

// SweepOnce runs one full pass: place pending jobs, then reassess every
// active one. Per-job failures are logged and skipped so one bad row never
// stalls the queue.
func (c *Controller) SweepOnce(ctx context.Context) (Summary, error) {
	sum := Summary{Kept: make(map[string]int)}

	if c.cfg.AutoAssign {
		pending, err := c.store.ListJobsByStatus(ctx, models.StatusPending)
		if err != nil {
			return sum, err
		}
		for i := range pending {
			job := pending[i]
			sum.Scanned++
			if err := c.placePending(ctx, &job); err != nil {
				c.log.Error("auto assign", "job", job.JobID, "error", err)
				continue
			}
			sum.Assigned++
		}
	}

	active, err := c.store.ListJobsByStatus(ctx,
		models.StatusAssigned, models.StatusInProgress, models.StatusQA)
	if err != nil {
		return sum, err
	}
	now := time.Now().UTC()
	for i := range active {
		job := active[i]
		sum.Scanned++
		c.reassess(ctx, &job, now, &sum)
	}
	return sum, nil
}

// placePending assigns the job to the ranker's top suggestion.
func (c *Controller) placePending(ctx context.Context, job *models.Job) error {
	workerID, rationale, err := c.ranker.Suggest(ctx, job)
	if err != nil {
		return err
	}
	_, err = c.engine.Assign(ctx, job.JobID, workerID, models.OriginSuggested, rationale)
	return err
}

// reassess recomputes the semaphore for one active job, alerts on red, and
// applies the reassignment policy.
func (c *Controller) reassess(ctx context.Context, job *models.Job, now time.Time, sum *Summary) {
	tracked, err := c.trackedSeconds(ctx, job.JobID, now)
	if err != nil {
		c.log.Error("tracked time", "job", job.JobID, "error", err)
		return
	}

	a := c.classifier.Classify(job, tracked, now)
	if a.Color != job.RiskColor {
		if err := c.engine.SetRisk(ctx, job, a.Color); err != nil {
			c.log.Error("set risk", "job", job.JobID, "error", err)
			return
		}
		c.log.Info("risk changed", "job", job.JobID, "code", job.Code,
			"from", job.RiskColor, "to", a.Color, "ratio", a.Ratio)
		job.RiskColor = a.Color
		sum.RiskMoved++
	}

	if a.Color != models.RiskRed {
		return
	}

	if c.alertClient(ctx, job, a, now) {
		sum.Alerts++
	}

	keep, moved := c.maybeReassign(ctx, job, now)
	if moved {
		sum.Reassigned++
		return
	}
	if keep != "" {
		sum.Kept[keep]++
	}
}

// trackedSeconds is the closed total plus the live entry's elapsed business
// time. Wall-clock elapse over a weekend is not work done.
func (c *Controller) trackedSeconds(ctx context.Context, jobID int64, now time.Time) (int64, error) {
	total, err := c.store.SumClosedSeconds(ctx, jobID)
	if err != nil {
		return 0, err
	}
	open, err := c.store.OpenEntry(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if open != nil {
		if live := c.cfg.Schedule.BusinessSecondsBetween(open.StartedAt, now); live > 0 {
			total += live
		}
	}
	return total, nil
}

// alertClient notifies the client once per cooldown window that the job is
// at risk. Returns whether an alert went out.
func (c *Controller) alertClient(ctx context.Context, job *models.Job, a risk.Assessment, now time.Time) bool {
	if !c.throttle.Allow(job.JobID, models.NoticeAlert, now) {
		return false
	}
	// The in-memory throttle resets with the process; the notification log
	// is the durable cutoff.
	last, err := c.store.LastNotificationAt(ctx, job.JobID, models.NoticeAlert)
	if err != nil {
		c.log.Error("alert cooldown lookup", "job", job.JobID, "error", err)
		return false
	}
	if last != nil && now.Sub(*last) < c.cfg.AlertCooldown {
		return false
	}
	msg := fmt.Sprintf("Su pedido %s presenta riesgo de retraso.", job.Code)
	if a.SlackSec < 0 {
		msg = fmt.Sprintf("Su pedido %s está retrasado; estamos reorganizando el taller para entregarlo cuanto antes.", job.Code)
	}
	if _, err := c.store.InsertNotification(ctx, models.ClientNotification{
		JobID:    job.JobID,
		ClientID: job.ClientID,
		Kind:     models.NoticeAlert,
		Title:    "Riesgo de retraso",
		Message:  msg,
	}); err != nil {
		c.log.Error("risk alert", "job", job.JobID, "error", err)
		return false
	}
	c.notifier.Publish(notify.Event{
		Type:    notify.EventAlert,
		JobID:   job.JobID,
		Code:    job.Code,
		Color:   models.RiskRed,
		Message: msg,
	})
	return true
}

// maybeReassign applies the rescue policy to a red job. Returns the keep
// reason when the job stays put, or moved=true when it was handed over.
func (c *Controller) maybeReassign(ctx context.Context, job *models.Job, now time.Time) (keep string, moved bool) {
	if job.DueDate == nil || now.Before(job.DueDate.Add(c.cfg.ReassignGrace)) {
		return KeepNotOverdueYet, false
	}

	last, err := c.store.LastReassignAt(ctx, job.JobID)
	if err != nil {
		c.log.Error("reassign cooldown lookup", "job", job.JobID, "error", err)
		return "", false
	}
	if last != nil && now.Sub(*last) < c.cfg.ReassignCooldown {
		return KeepCooldown, false
	}

	res, err := c.ranker.Rank(ctx, job)
	if err != nil {
		c.log.Error("rank for reassign", "job", job.JobID, "error", err)
		return "", false
	}

	var current *ranking.Candidate
	var best *ranking.Candidate
	for i := range res.Candidates {
		cand := &res.Candidates[i]
		if job.WorkerID != nil && cand.Worker.WorkerID == *job.WorkerID {
			current = cand
			continue
		}
		if best == nil {
			best = cand
		}
	}
	if best == nil {
		return KeepNoCandidates, false
	}

	currentScore := 0.0
	if current != nil {
		currentScore = current.Score
	}

	delta := best.Score - currentScore
	switch {
	case delta >= c.cfg.ReassignMinDelta:
		// clearly better: move
	case c.cfg.ForceOnDelay && delta >= -c.cfg.WorseTolerance:
		// forced rescue: nobody clearly better, but the job is already
		// late and the alternative is not meaningfully worse
	case delta <= 0:
		return KeepAlreadyBest, false
	default:
		return KeepDeltaLow, false
	}

	rationale := fmt.Sprintf("reasignación automática: retraso con semáforo rojo, score %.2f vs %.2f (%s)",
		best.Score, currentScore, strings.Join(best.Reasons, ", "))
	if _, err := c.engine.Reassign(ctx, job.JobID, best.Worker.WorkerID, models.OriginAutoReassign, rationale); err != nil {
		c.log.Error("auto reassign", "job", job.JobID, "error", err)
		return "", false
	}
	c.log.Info("job reassigned", "job", job.JobID, "code", job.Code,
		"to", best.Worker.WorkerID, "delta", delta)
	return "", true
}
