package estimate

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// deliverJob creates a job, tracks sec seconds on it for the worker, and
// marks it delivered.
func deliverJob(t *testing.T, s store.Store, workerID int64, prio models.Priority, sec int64) {
	t.Helper()
	ctx := context.Background()
	jobID, err := s.CreateJob(ctx, models.Job{Description: "trabajo entregado", Priority: prio})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.AssignJob(ctx, jobID, &workerID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	entryID, err := s.OpenTimeEntry(ctx, jobID, workerID, time.Now().Add(-time.Duration(sec)*time.Second))
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	if err := s.CloseTimeEntry(ctx, entryID, time.Now(), sec); err != nil {
		t.Fatalf("close entry: %v", err)
	}
	if err := s.UpdateJobStatus(ctx, jobID, models.StatusDelivered, time.Now()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
}

func TestFallbackTierByPriority(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(s, DefaultConfig(), nil)
	ctx := context.Background()

	tests := []struct {
		prio models.Priority
		want int64
	}{
		{models.PriorityHigh, 3 * 3600},
		{models.PriorityMedium, 6 * 3600},
		{models.PriorityLow, 8 * 3600},
	}
	for _, tc := range tests {
		job := &models.Job{Description: "pieza simple", Priority: tc.prio}
		got, err := e.ForWorker(ctx, job, nil, 0)
		if err != nil {
			t.Fatalf("%s: %v", tc.prio, err)
		}
		if got.Source != SourceFallback {
			t.Errorf("%s: source = %s, want %s", tc.prio, got.Source, SourceFallback)
		}
		if got.Seconds != tc.want {
			t.Errorf("%s: seconds = %d, want %d", tc.prio, got.Seconds, tc.want)
		}
	}
}

func TestFallbackAppliesDescriptionAdjustments(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(s, DefaultConfig(), nil)
	ctx := context.Background()

	plain, err := e.ForWorker(ctx, &models.Job{Description: "pieza simple", Priority: models.PriorityMedium}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	hard, err := e.ForWorker(ctx, &models.Job{Description: "eje inox con roscado M12 y tolerancias h7", Priority: models.PriorityMedium}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hard.Seconds <= plain.Seconds {
		t.Errorf("adjusted %d should exceed plain %d", hard.Seconds, plain.Seconds)
	}
	if len(hard.Reasons) == 0 {
		t.Error("expected adjustment reasons")
	}
}

func TestFallbackThreadBumpExactValue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(s, DefaultConfig(), nil)

	// Threading bumps the 3h ALTA base by 12%: round(10800 * 1.12) = 12096.
	got, err := e.ForWorker(context.Background(),
		&models.Job{Description: "eje con roscado M10", Priority: models.PriorityHigh}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != SourceFallback {
		t.Fatalf("source = %s, want %s", got.Source, SourceFallback)
	}
	if got.Seconds != 12096 {
		t.Errorf("seconds = %d, want 12096", got.Seconds)
	}
}

func TestHistoryTierSamePriorityMedian(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	workerID, err := s.CreateWorker(ctx, models.Worker{Name: "Marco", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	// Five HIGH deliveries: median of {3000,3200,3600,4000,9000} is 3600.
	for _, sec := range []int64{3000, 3200, 3600, 4000, 9000} {
		deliverJob(t, s, workerID, models.PriorityHigh, sec)
	}

	e := New(s, DefaultConfig(), nil)
	worker, _ := s.GetWorker(ctx, workerID)
	got, err := e.ForWorker(ctx, &models.Job{Description: "x", Priority: models.PriorityHigh}, worker, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != SourceHistory {
		t.Fatalf("source = %s, want %s", got.Source, SourceHistory)
	}
	if got.Seconds != 3600 {
		t.Errorf("seconds = %d, want 3600", got.Seconds)
	}
}

func TestHistoryTierFallsBackToAnyPriority(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	workerID, err := s.CreateWorker(ctx, models.Worker{Name: "Luis", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	// Eight mixed deliveries but only two HIGH: the same-priority tier
	// cannot fire, the any-priority one can.
	secs := []int64{3600, 3600, 7200, 7200, 7200, 10800, 10800, 14400}
	for i, sec := range secs {
		prio := models.PriorityMedium
		if i < 2 {
			prio = models.PriorityHigh
		}
		deliverJob(t, s, workerID, prio, sec)
	}

	e := New(s, DefaultConfig(), nil)
	worker, _ := s.GetWorker(ctx, workerID)
	got, err := e.ForWorker(ctx, &models.Job{Description: "x", Priority: models.PriorityHigh}, worker, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != SourceHistory {
		t.Fatalf("source = %s, want %s", got.Source, SourceHistory)
	}
	if got.Seconds != 7200 {
		t.Errorf("seconds = %d, want 7200 (median of all)", got.Seconds)
	}
}

func TestHistoryIgnoredWithoutWorker(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	e := New(s, DefaultConfig(), nil)

	got, err := e.ForWorker(context.Background(), &models.Job{Description: "x", Priority: models.PriorityHigh}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source == SourceHistory {
		t.Error("history tier must not fire without a worker")
	}
}

func TestEstimateClamped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	workerID, err := s.CreateWorker(ctx, models.Worker{Name: "Pedro", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	// Tiny deliveries push the history median below the floor.
	for i := 0; i < 5; i++ {
		deliverJob(t, s, workerID, models.PriorityHigh, 60)
	}

	e := New(s, DefaultConfig(), nil)
	worker, _ := s.GetWorker(ctx, workerID)
	got, err := e.ForWorker(ctx, &models.Job{Description: "x", Priority: models.PriorityHigh}, worker, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Seconds != models.DefaultMinEstimateSec {
		t.Errorf("seconds = %d, want clamped to %d", got.Seconds, models.DefaultMinEstimateSec)
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []int64
		want int64
	}{
		{[]int64{5}, 5},
		{[]int64{1, 3}, 2},
		{[]int64{9, 1, 5}, 5},
		{[]int64{4, 1, 3, 2}, 2},
	}
	for _, tc := range tests {
		if got := median(tc.in); got != tc.want {
			t.Errorf("median(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestVectorMatchesSchema(t *testing.T) {
	t.Parallel()
	names := FeatureNames()
	row := Vector(SampleInput{
		Description: "eje de acero 1045 con roscado M10, x4 piezas",
		Priority:    models.PriorityHigh,
		Price:       350,
	}, time.Now(), Scale{})
	if len(row) != len(names) {
		t.Fatalf("vector width %d != schema width %d", len(row), len(names))
	}
	if row[0] != 1 {
		t.Errorf("bias = %v, want 1", row[0])
	}
}

func TestModelBlendUsesTrainedPrior(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// A model whose only nonzero weight is the bias predicts exp(bias)
	// for every row: here 10000s. Its trained MEDIA prior of 20000s must
	// drive the blend, not the 6h heuristic fallback.
	weights := make([]float64, len(FeatureNames()))
	weights[0] = math.Log(10000)
	m := &Model{
		Version:      "flat",
		TrainedAt:    time.Now().UTC(),
		FeatureNames: FeatureNames(),
		Weights:      weights,
		Priors:       map[models.Priority]int64{models.PriorityMedium: 20000},
		PriceScale:   Scale{Std: 1},
	}
	payload, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveModel(ctx, m.Version, m.TrainedAt, payload); err != nil {
		t.Fatal(err)
	}

	e := New(s, DefaultConfig(), nil)
	got, err := e.ForWorker(ctx, &models.Job{Description: "pieza simple", Priority: models.PriorityMedium}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != SourceModel {
		t.Fatalf("source = %s, want %s", got.Source, SourceModel)
	}
	// 0.7*10000 + 0.3*20000 = 13000. With the heuristic prior instead the
	// blend would land at 0.7*10000 + 0.3*21600 = 13480.
	if math.Abs(float64(got.Seconds)-13000) > 5 {
		t.Errorf("seconds = %d, want ~13000 blended against the trained prior", got.Seconds)
	}
}

func TestIncompatibleModelRejected(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	// A payload trained against a different schema must not be used.
	stale := &Model{
		Version:      "stale",
		TrainedAt:    time.Now().UTC(),
		FeatureNames: []string{"bias", "otra"},
		Weights:      []float64{8, 1},
	}
	payload, err := stale.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveModel(ctx, stale.Version, stale.TrainedAt, payload); err != nil {
		t.Fatal(err)
	}

	e := New(s, DefaultConfig(), nil)
	got, err := e.ForWorker(ctx, &models.Job{Description: "x", Priority: models.PriorityMedium}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != SourceFallback {
		t.Errorf("source = %s, want fallback with incompatible model", got.Source)
	}
}
