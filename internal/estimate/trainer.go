package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// ErrNotEnoughData means the shop has too little tracked history to fit a
// model; callers keep using the fallback tier.
var ErrNotEnoughData = errors.New("not enough delivered jobs to train")

// TrainConfig carries the training knobs.
type TrainConfig struct {
	RidgeLambda float64
	Seed        int64 // split shuffling, fixed so runs are reproducible
	HoldoutFrac float64
	MinSamples  int
	AnchorBelow int // pad with synthetic priors under this many samples
	RecordLimit int
}

// DefaultTrainConfig mirrors the daemon's defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		RidgeLambda: 1.0,
		Seed:        42,
		HoldoutFrac: 0.2,
		MinSamples:  8,
		AnchorBelow: 60,
		RecordLimit: 1000,
	}
}

// Trainer fits duration models from the shop's tracked history and persists
// them as immutable versions.
type Trainer struct {
	store store.Store
	cfg   TrainConfig
	log   *slog.Logger
}

// NewTrainer returns a Trainer over the given store.
func NewTrainer(st store.Store, cfg TrainConfig, log *slog.Logger) *Trainer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HoldoutFrac <= 0 || cfg.HoldoutFrac >= 1 {
		cfg.HoldoutFrac = 0.2
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 8
	}
	if cfg.RidgeLambda <= 0 {
		cfg.RidgeLambda = 1.0
	}
	return &Trainer{store: st, cfg: cfg, log: log}
}

// trainSample is one usable history row before vectorization.
type trainSample struct {
	in  SampleInput
	y   float64 // log-seconds target
	dur int64
}

// Train fits a new model, evaluates it on a seeded holdout, and saves it.
// The previous model stays untouched; readers switch on next load.
func (t *Trainer) Train(ctx context.Context) (*Model, error) {
	history, err := t.store.TrainingSamples(ctx, t.cfg.RecordLimit)
	if err != nil {
		return nil, err
	}
	if len(history) < t.cfg.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughData, len(history), t.cfg.MinSamples)
	}

	now := time.Now().UTC()
	samples := make([]trainSample, 0, len(history))
	for _, s := range history {
		if s.DurationSec <= 0 {
			continue
		}
		samples = append(samples, trainSample{
			in: SampleInput{
				Description:  s.Description,
				Priority:     s.Priority,
				Price:        s.Price,
				WorkerSkills: s.WorkerSkills,
				WorkerWIP:    s.WorkerWIP,
				WorkerHired:  s.WorkerHired,
			},
			y:   math.Log(float64(s.DurationSec)),
			dur: s.DurationSec,
		})
	}
	if len(samples) < t.cfg.MinSamples {
		return nil, fmt.Errorf("%w: have %d usable, need %d", ErrNotEnoughData, len(samples), t.cfg.MinSamples)
	}

	priors := priorsFrom(samples)

	// Seeded shuffle keeps the holdout stable across retrains on the same
	// data, so metric movement reflects data movement.
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	perm := rng.Perm(len(samples))
	holdoutN := int(float64(len(samples)) * t.cfg.HoldoutFrac)
	if holdoutN < 1 {
		holdoutN = 1
	}
	var train, test []trainSample
	for i, idx := range perm {
		if i < holdoutN {
			test = append(test, samples[idx])
		} else {
			train = append(train, samples[idx])
		}
	}

	// Scale comes from the train split only, so holdout metrics never see
	// their own rows through it.
	scale := priceScaleOf(train)

	trainX, trainY, trainDescs := vectorize(train, now, scale)
	testX, testY, testDescs := vectorize(test, now, scale)

	anchors := 0
	realTrainN := len(trainX)
	if len(samples) < t.cfg.AnchorBelow {
		trainX, trainY, anchors = withAnchors(trainX, trainY, priors, scale, now)
	}

	weights, err := ridgeSolve(trainX, trainY, t.cfg.RidgeLambda)
	if err != nil {
		return nil, fmt.Errorf("fit duration model: %w", err)
	}

	m := &Model{
		Version:      fmt.Sprintf("%s-%s", now.Format("20060102T150405"), uuid.NewString()[:8]),
		TrainedAt:    now,
		FeatureNames: FeatureNames(),
		Weights:      weights,
		Priors:       priors,
		PriceScale:   scale,
		Stats: TrainStats{
			Samples:      len(samples),
			Anchors:      anchors,
			HoldoutCount: len(testX),
		},
	}
	m.Stats.MAESec, m.Stats.MAPE, m.Stats.SegmentMAPE = evaluate(m, testX, testY, testDescs)
	m.Stats.TrainMAESec, m.Stats.TrainMAPE, _ = evaluate(m, trainX[:realTrainN], trainY[:realTrainN], trainDescs[:realTrainN])

	payload, err := m.Encode()
	if err != nil {
		return nil, err
	}
	if err := t.store.SaveModel(ctx, m.Version, m.TrainedAt, payload); err != nil {
		return nil, fmt.Errorf("save model %s: %w", m.Version, err)
	}
	t.log.Info("trained duration model",
		"version", m.Version,
		"samples", m.Stats.Samples,
		"anchors", m.Stats.Anchors,
		"mae_sec", int64(m.Stats.MAESec),
		"mape", m.Stats.MAPE,
		"train_mae_sec", int64(m.Stats.TrainMAESec))
	return m, nil
}

// priorMinSamples is how many deliveries a priority needs before its own
// median replaces the static fallback as the trained prior.
const priorMinSamples = 3

// priorsFrom takes the median delivered duration per priority over the full
// sample set, keeping the static fallback where a priority is thin.
func priorsFrom(samples []trainSample) map[models.Priority]int64 {
	byPrio := map[models.Priority][]int64{}
	for _, s := range samples {
		byPrio[s.in.Priority] = append(byPrio[s.in.Priority], s.dur)
	}
	priors := make(map[models.Priority]int64, 3)
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if durs := byPrio[p]; len(durs) >= priorMinSamples {
			priors[p] = median(durs)
		} else {
			priors[p] = fallbackSec(p)
		}
	}
	return priors
}

// priceScaleOf standardizes the price column from the training split.
func priceScaleOf(train []trainSample) Scale {
	if len(train) == 0 {
		return Scale{Std: 1}
	}
	var mean float64
	for _, s := range train {
		mean += s.in.Price / 1000.0
	}
	mean /= float64(len(train))
	var variance float64
	for _, s := range train {
		d := s.in.Price/1000.0 - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(train)))
	if std == 0 {
		std = 1
	}
	return Scale{Mean: mean, Std: std}
}

func vectorize(set []trainSample, now time.Time, scale Scale) (x [][]float64, y []float64, descs []string) {
	x = make([][]float64, 0, len(set))
	y = make([]float64, 0, len(set))
	descs = make([]string, 0, len(set))
	for _, s := range set {
		x = append(x, Vector(s.in, now, scale))
		y = append(y, s.y)
		descs = append(descs, s.in.Description)
	}
	return x, y, descs
}

// withAnchors pads a thin training set with synthetic rows pinned at the
// trained priors, so early models cannot drift far from durations the shop
// already trusts.
func withAnchors(x [][]float64, y []float64, priors map[models.Priority]int64, scale Scale, now time.Time) ([][]float64, []float64, int) {
	anchors := 0
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		target := math.Log(float64(priors[p]))
		for i := 0; i < 3; i++ {
			x = append(x, Vector(SampleInput{Priority: p}, now, scale))
			y = append(y, target)
			anchors++
		}
	}
	return x, y, anchors
}

func evaluate(m *Model, x [][]float64, y []float64, descs []string) (mae, mape float64, segments map[string]float64) {
	if len(x) == 0 {
		return 0, 0, nil
	}
	type agg struct {
		sum float64
		n   int
	}
	segAgg := map[string]*agg{}

	for i, row := range x {
		pred, err := m.Predict(row)
		if err != nil {
			continue
		}
		actual := math.Exp(y[i])
		absErr := math.Abs(float64(pred) - actual)
		pctErr := absErr / actual

		mae += absErr
		mape += pctErr

		f := textfeat.Extract(descs[i])
		for _, tok := range f.Tags() {
			a := segAgg[tok]
			if a == nil {
				a = &agg{}
				segAgg[tok] = a
			}
			a.sum += pctErr
			a.n++
		}
	}
	n := float64(len(x))
	mae /= n
	mape /= n

	if len(segAgg) > 0 {
		segments = make(map[string]float64, len(segAgg))
		for tok, a := range segAgg {
			segments[tok] = a.sum / float64(a.n)
		}
	}
	return mae, mape, segments
}
