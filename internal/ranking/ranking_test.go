package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

func testSchedule() calendar.Schedule {
	return calendar.Schedule{
		Workdays: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		Shifts: []calendar.Shift{
			{StartMin: 8 * 60, EndMin: 12*60 + 30},
			{StartMin: 14 * 60, EndMin: 18 * 60},
		},
		UTCOffsetMin: -240,
	}
}

func newRankerFixture(t *testing.T) (store.Store, *Ranker) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	est := estimate.New(s, estimate.DefaultConfig(), nil)
	r := New(s, est, Config{WIPMax: models.DefaultWIPMax, Schedule: testSchedule()}, nil)
	return s, r
}

func addWorker(t *testing.T, s store.Store, name, role string, skills ...string) int64 {
	t.Helper()
	id, err := s.CreateWorker(context.Background(), models.Worker{
		Name: name, Active: true, Role: role, Skills: skills,
	})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	return id
}

func addActiveJob(t *testing.T, s store.Store, workerID int64) {
	t.Helper()
	ctx := context.Background()
	id, err := s.CreateJob(ctx, models.Job{Description: "carga", Priority: models.PriorityLow})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.AssignJob(ctx, id, &workerID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.UpdateJobStatus(ctx, id, models.StatusAssigned, time.Now()); err != nil {
		t.Fatalf("status: %v", err)
	}
}

func TestHardRequirementFiltersRoster(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	addWorker(t, s, "Pedro", models.RoleWelder, "soldadura")
	addWorker(t, s, "Marco", models.RoleTurner, "torneado")

	job := &models.Job{Description: "recargue de palier con soldadura", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (only the welder)", len(res.Candidates))
	}
	if res.Candidates[0].Worker.Name != "Pedro" {
		t.Errorf("top = %s, want Pedro", res.Candidates[0].Worker.Name)
	}
	if len(res.Required) == 0 {
		t.Error("expected hard requirements for welding work")
	}
}

func TestAssistantListedAsSupport(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	addWorker(t, s, "Marco", models.RoleTurner, "torneado")
	addWorker(t, s, "Jorge", models.RoleAssistant, "ayudante")

	job := &models.Job{Description: "torneado de buje con tolerancias h7", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}
	if len(res.Support) != 1 || res.Support[0].Worker.Name != "Jorge" {
		t.Fatalf("support = %+v, want Jorge", res.Support)
	}
}

func TestAssistantRanksWhenNoHardSkills(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	addWorker(t, s, "Jorge", models.RoleAssistant, "ayudante", "pulido")

	job := &models.Job{Description: "pulido de pieza pequeña", Priority: models.PriorityLow}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1: no hard skills means assistants compete", len(res.Candidates))
	}
	if len(res.Support) != 0 {
		t.Errorf("support = %+v, want empty", res.Support)
	}
}

func TestSaturatedWorkerExcludedWhileOthersFree(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	busy := addWorker(t, s, "Marco", models.RoleTurner, "torneado")
	addWorker(t, s, "Luis", models.RoleTurner, "torneado")
	for i := 0; i < models.DefaultWIPMax; i++ {
		addActiveJob(t, s, busy)
	}

	job := &models.Job{Description: "torneado simple", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}
	if res.Candidates[0].Worker.Name != "Luis" {
		t.Errorf("top = %s, want Luis (Marco is saturated)", res.Candidates[0].Worker.Name)
	}
}

func TestAllSaturatedStillRanks(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	a := addWorker(t, s, "Marco", models.RoleTurner, "torneado")
	b := addWorker(t, s, "Luis", models.RoleTurner, "torneado")
	for i := 0; i < models.DefaultWIPMax; i++ {
		addActiveJob(t, s, a)
		addActiveJob(t, s, b)
	}
	addActiveJob(t, s, a) // Marco strictly more loaded

	job := &models.Job{Description: "torneado simple", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2 when everyone is saturated", len(res.Candidates))
	}
	if res.Candidates[0].Worker.Name != "Luis" {
		t.Errorf("top = %s, want the less loaded Luis", res.Candidates[0].Worker.Name)
	}
}

func TestColdStartCapped(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	addWorker(t, s, "Nuevo", models.RoleTurner, "torneado", "roscado")

	job := &models.Job{Description: "torneado con roscado M10", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}
	c := res.Candidates[0]
	if !c.ColdStart {
		t.Error("expected cold-start flag for worker without deliveries")
	}
	if c.Score > 0.85 {
		t.Errorf("score = %v, want <= 0.85 for cold start", c.Score)
	}
}

func TestTieBreakPrefersLowerLoad(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	loaded := addWorker(t, s, "Marco", models.RoleTurner, "torneado")
	addWorker(t, s, "Luis", models.RoleTurner, "torneado")
	addActiveJob(t, s, loaded)

	job := &models.Job{Description: "torneado simple", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(res.Candidates))
	}
	if res.Candidates[0].Worker.Name != "Luis" {
		t.Errorf("top = %s, want the idle Luis", res.Candidates[0].Worker.Name)
	}
}

func TestCandidatesCarryETAAndEstimate(t *testing.T) {
	t.Parallel()
	s, r := newRankerFixture(t)

	addWorker(t, s, "Marco", models.RoleTurner, "torneado")

	job := &models.Job{Description: "torneado simple", Priority: models.PriorityMedium}
	res, err := r.Rank(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	c := res.Candidates[0]
	if c.EstimateSec <= 0 {
		t.Errorf("estimate = %d, want > 0", c.EstimateSec)
	}
	if !c.ETA.After(time.Now().UTC()) {
		t.Errorf("eta = %v, want in the future", c.ETA)
	}
}
