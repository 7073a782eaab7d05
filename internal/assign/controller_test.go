package assign

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/ranking"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/risk"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/workflow"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

func allHours() calendar.Schedule {
	return calendar.Schedule{
		Workdays: map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		Shifts:   []calendar.Shift{{StartMin: 0, EndMin: 24 * 60}},
	}
}

type fixture struct {
	store      store.Store
	engine     *workflow.Engine
	ranker     *ranking.Ranker
	classifier *risk.Classifier
	cfg        Config
	controller *Controller
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	sched := allHours()
	if cfg.Schedule.Shifts == nil {
		cfg.Schedule = sched
	}
	est := estimate.New(s, estimate.DefaultConfig(), nil)
	eng := workflow.New(s, est, nil, workflow.Config{Schedule: sched}, nil)
	rk := ranking.New(s, est, ranking.Config{WIPMax: models.DefaultWIPMax, Schedule: sched}, nil)
	cl := risk.New(risk.DefaultConfig(sched))
	ctl := New(s, eng, rk, cl, nil, nil, cfg, nil)
	return &fixture{store: s, engine: eng, ranker: rk, classifier: cl, cfg: cfg, controller: ctl}
}

func (f *fixture) addWorker(t *testing.T, name string, skills ...string) int64 {
	t.Helper()
	id, err := f.store.CreateWorker(context.Background(), models.Worker{
		Name: name, Active: true, Role: models.RoleTurner, Skills: skills,
	})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	return id
}

func (f *fixture) addJob(t *testing.T, desc string, due *time.Time) int64 {
	t.Helper()
	id, err := f.store.CreateJob(context.Background(), models.Job{
		Description: desc, Priority: models.PriorityMedium, DueDate: due,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return id
}

func (f *fixture) loadWorker(t *testing.T, workerID int64, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id := f.addJob(t, "carga", nil)
		if err := f.store.AssignJob(ctx, id, &workerID); err != nil {
			t.Fatal(err)
		}
		if err := f.store.UpdateJobStatus(ctx, id, models.StatusAssigned, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
}

func past(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(-d)
	return &t
}

func future(d time.Duration) *time.Time {
	t := time.Now().UTC().Add(d)
	return &t
}

func TestSweepPlacesPendingJobs(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", future(48*time.Hour))

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Assigned != 1 {
		t.Fatalf("assigned = %d, want 1", sum.Assigned)
	}

	job, err := f.store.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.StatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", job.Status)
	}
	if job.WorkerID == nil || *job.WorkerID != workerID {
		t.Errorf("worker = %v, want %d", job.WorkerID, workerID)
	}
	// The audit trail marks it as a suggestion, not a manual act.
	events, err := f.store.ListAssignmentEvents(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Origin != models.OriginSuggested {
		t.Errorf("events = %+v, want one SUGGESTED", events)
	}
	if !strings.Contains(events[0].Rationale, "sugerido") {
		t.Errorf("rationale = %q, want score rationale", events[0].Rationale)
	}
}

func TestAutoAssignDisabledLeavesQueue(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.AutoAssign = false
	f := newFixture(t, cfg)
	ctx := context.Background()

	f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", nil)

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Assigned != 0 {
		t.Fatalf("assigned = %d, want 0", sum.Assigned)
	}
	job, _ := f.store.GetJob(ctx, jobID)
	if job.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING", job.Status)
	}
}

func TestOverdueJobTurnsRedAndAlertsOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", past(2*time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, workerID, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.RiskMoved != 1 {
		t.Fatalf("risk moved = %d, want 1", sum.RiskMoved)
	}
	if sum.Alerts != 1 {
		t.Fatalf("alerts = %d, want 1", sum.Alerts)
	}
	job, _ := f.store.GetJob(ctx, jobID)
	if job.RiskColor != models.RiskRed {
		t.Errorf("color = %s, want ROJO", job.RiskColor)
	}

	// Second pass inside the cooldown: still red, but silent.
	sum, err = f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Alerts != 0 {
		t.Errorf("alerts on second pass = %d, want 0 inside cooldown", sum.Alerts)
	}
}

func TestAlertCooldownSurvivesRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", past(2*time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, workerID, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}
	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Alerts != 1 {
		t.Fatalf("alerts = %d, want 1", sum.Alerts)
	}

	// A fresh controller over the same store models a daemon restart: its
	// in-memory throttle is empty, but the stored notification cutoff
	// still holds inside the cooldown window.
	restarted := New(f.store, f.engine, f.ranker, f.classifier, nil, nil, f.cfg, nil)
	sum, err = restarted.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Alerts != 0 {
		t.Errorf("alerts after restart = %d, want 0 inside cooldown", sum.Alerts)
	}
}

func TestLiveTrackedTimeFollowsCalendar(t *testing.T) {
	t.Parallel()
	// A calendar with no workdays: a live entry accrues nothing however
	// long the wall clock says it has been open.
	cfg := DefaultConfig()
	cfg.Schedule = calendar.Schedule{
		Workdays: map[int]bool{},
		Shifts:   []calendar.Shift{{StartMin: 0, EndMin: 24 * 60}},
	}
	f := newFixture(t, cfg)
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", nil)
	if err := f.store.AssignJob(ctx, jobID, &workerID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.OpenTimeEntry(ctx, jobID, workerID, time.Now().UTC().Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := f.controller.trackedSeconds(ctx, jobID, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("tracked = %d, want 0 outside business hours", got)
	}
}

func TestRedJobWithComfortableDueStaysPut(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	// Huge estimate vs tiny window: red, but not overdue yet.
	jobID := f.addJob(t, "torneado de eje", future(time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, workerID, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetJobEstimate(ctx, jobID, 40*3600); err != nil {
		t.Fatal(err)
	}

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	job, _ := f.store.GetJob(ctx, jobID)
	if job.RiskColor != models.RiskRed {
		t.Fatalf("color = %s, want ROJO", job.RiskColor)
	}
	if sum.Kept[KeepNotOverdueYet] != 1 {
		t.Errorf("kept = %v, want one %s", sum.Kept, KeepNotOverdueYet)
	}
	if job.WorkerID == nil || *job.WorkerID != workerID {
		t.Error("job must stay on its worker before due+grace")
	}
}

func TestOverdueRedJobMovesToBetterWorker(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	busy := f.addWorker(t, "Marco", "torneado")
	idle := f.addWorker(t, "Luis", "torneado")
	f.loadWorker(t, busy, 3)

	jobID := f.addJob(t, "torneado de eje", past(time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, busy, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reassigned != 1 {
		t.Fatalf("reassigned = %d, want 1 (kept: %v)", sum.Reassigned, sum.Kept)
	}
	job, _ := f.store.GetJob(ctx, jobID)
	if job.WorkerID == nil || *job.WorkerID != idle {
		t.Errorf("worker = %v, want moved to %d", job.WorkerID, idle)
	}
	if ts, _ := f.store.LastReassignAt(ctx, jobID); ts == nil {
		t.Error("expected AUTO_REASSIGN audit event")
	}
}

func TestReassignCooldownKeepsJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	busy := f.addWorker(t, "Marco", "torneado")
	f.addWorker(t, "Luis", "torneado")
	f.loadWorker(t, busy, 3)

	jobID := f.addJob(t, "torneado de eje", past(time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, busy, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}

	if sum, err := f.controller.SweepOnce(ctx); err != nil || sum.Reassigned != 1 {
		t.Fatalf("first sweep: %v, %+v", err, sum)
	}
	// Force the job red again on its new worker by keeping it overdue;
	// the fresh AUTO_REASSIGN event must block a second move.
	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reassigned != 0 {
		t.Fatalf("second sweep reassigned = %d, want 0", sum.Reassigned)
	}
	if sum.Kept[KeepCooldown] != 1 {
		t.Errorf("kept = %v, want one %s", sum.Kept, KeepCooldown)
	}
}

func TestSoleWorkerKeepsOverdueJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	workerID := f.addWorker(t, "Marco", "torneado")
	jobID := f.addJob(t, "torneado de eje", past(time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, workerID, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}

	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reassigned != 0 {
		t.Fatalf("reassigned = %d, want 0 with nobody else", sum.Reassigned)
	}
	if sum.Kept[KeepNoCandidates] != 1 {
		t.Errorf("kept = %v, want one %s", sum.Kept, KeepNoCandidates)
	}
}

func TestCurrentWorkerAlreadyBestKeepsJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	a := f.addWorker(t, "Marco", "torneado")
	loaded := f.addWorker(t, "Luis", "torneado")
	f.loadWorker(t, loaded, 2)

	jobID := f.addJob(t, "torneado de eje", past(time.Hour))
	if _, err := f.engine.Assign(ctx, jobID, a, models.OriginManual, ""); err != nil {
		t.Fatal(err)
	}

	// The only alternative is busier than Marco: moving would make it worse.
	sum, err := f.controller.SweepOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reassigned != 0 {
		t.Fatalf("reassigned = %d, want 0 (kept: %v)", sum.Reassigned, sum.Kept)
	}
	if sum.Kept[KeepAlreadyBest] != 1 {
		t.Errorf("kept = %v, want one %s", sum.Kept, KeepAlreadyBest)
	}
}
