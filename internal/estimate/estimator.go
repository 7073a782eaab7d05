package estimate

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/heuristics"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Estimate sources, most trusted first.
const (
	SourceHistory  = "historial"
	SourceModel    = "modelo"
	SourceFallback = "base"
)

// Fallback base durations per priority, in seconds. Urgent work is small
// rework in this shop; low priority jobs tend to be the long fabrications.
const (
	fallbackHighSec   = 3 * 3600
	fallbackMediumSec = 6 * 3600
	fallbackLowSec    = 8 * 3600
)

// Config carries the estimator knobs.
type Config struct {
	MinSec int64
	MaxSec int64

	// History tier sample thresholds.
	SamePriorityMin int // median over same-priority deliveries
	AnyPriorityMin  int // median over all deliveries

	// Weight of the regression output when blended with the trained
	// per-priority prior (the heuristic prior for payloads that predate
	// priors). 0 disables the model tier entirely.
	ModelBlend float64
}

// DefaultConfig mirrors the daemon's defaults.
func DefaultConfig() Config {
	return Config{
		MinSec:          models.DefaultMinEstimateSec,
		MaxSec:          models.DefaultMaxEstimateSec,
		SamePriorityMin: 5,
		AnyPriorityMin:  8,
		ModelBlend:      0.7,
	}
}

// Estimate is a duration prediction with its provenance.
type Estimate struct {
	Seconds      int64
	Source       string
	ModelVersion string
	Interval     heuristics.Interval
	Reasons      []string
}

// Estimator resolves duration predictions against the store. Safe for
// concurrent use; the decoded model is cached until its version changes.
type Estimator struct {
	store store.Store
	cfg   Config
	log   *slog.Logger

	mu           sync.Mutex
	model        *Model
	modelVersion string
}

// New returns an Estimator over the given store.
func New(st store.Store, cfg Config, log *slog.Logger) *Estimator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinSec <= 0 {
		cfg.MinSec = models.DefaultMinEstimateSec
	}
	if cfg.MaxSec <= cfg.MinSec {
		cfg.MaxSec = models.DefaultMaxEstimateSec
	}
	return &Estimator{store: st, cfg: cfg, log: log}
}

// ForWorker predicts how long the job takes the given worker. worker may be
// nil (unassigned candidate scan), which skips the history tier.
func (e *Estimator) ForWorker(ctx context.Context, job *models.Job, worker *models.Worker, wip int) (Estimate, error) {
	f := textfeat.Extract(job.Description)
	adj := heuristics.Apply(f)
	prior := adj.AdjustedSec(fallbackSec(job.Priority))

	if worker != nil {
		if sec, ok, err := e.historyEstimate(ctx, worker.WorkerID, job.Priority); err != nil {
			return Estimate{}, err
		} else if ok {
			sec = e.clamp(sec)
			return Estimate{
				Seconds:  sec,
				Source:   SourceHistory,
				Interval: heuristics.EstimateInterval(sec, f),
				Reasons:  []string{"historial del operario"},
			}, nil
		}
	}

	if e.cfg.ModelBlend > 0 {
		if est, ok := e.modelEstimate(ctx, job, worker, wip, prior); ok {
			est.Seconds = e.clamp(est.Seconds)
			est.Interval = heuristics.EstimateInterval(est.Seconds, f)
			return est, nil
		}
	}

	sec := e.clamp(prior)
	return Estimate{
		Seconds:  sec,
		Source:   SourceFallback,
		Interval: heuristics.EstimateInterval(sec, f),
		Reasons:  adj.Reasons,
	}, nil
}

// historyEstimate returns the median of the worker's delivered durations:
// same-priority jobs when enough exist, otherwise all deliveries.
func (e *Estimator) historyEstimate(ctx context.Context, workerID int64, prio models.Priority) (int64, bool, error) {
	durs, err := e.store.DeliveredDurations(ctx, workerID)
	if err != nil {
		return 0, false, err
	}

	var same, all []int64
	for _, d := range durs {
		if d.TotalSec <= 0 {
			continue
		}
		all = append(all, d.TotalSec)
		if d.Priority == prio {
			same = append(same, d.TotalSec)
		}
	}
	if len(same) >= e.cfg.SamePriorityMin {
		return median(same), true, nil
	}
	if len(all) >= e.cfg.AnyPriorityMin {
		return median(all), true, nil
	}
	return 0, false, nil
}

func (e *Estimator) modelEstimate(ctx context.Context, job *models.Job, worker *models.Worker, wip int, prior int64) (Estimate, bool) {
	m, err := e.currentModel(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("model load failed, using fallback", "error", err)
		}
		return Estimate{}, false
	}

	in := SampleInput{
		Description: job.Description,
		Priority:    job.Priority,
		Price:       job.Price,
	}
	if worker != nil {
		in.WorkerSkills = worker.Skills
		in.WorkerWIP = wip
		in.WorkerHired = worker.HiredAt
	}
	raw, err := m.Predict(Vector(in, time.Now().UTC(), m.PriceScale))
	if err != nil {
		e.log.Warn("model predict failed, using fallback", "version", m.Version, "error", err)
		return Estimate{}, false
	}

	// Blend against the prior the model was trained with; the caller's
	// heuristic prior only covers payloads that predate priors.
	if p := m.PriorFor(job.Priority); p > 0 {
		prior = p
	}
	w := e.cfg.ModelBlend
	blended := int64(w*float64(raw) + (1-w)*float64(prior))
	return Estimate{
		Seconds:      blended,
		Source:       SourceModel,
		ModelVersion: m.Version,
	}, true
}

// currentModel returns the cached model, reloading when the persisted
// version moved. Incompatible payloads are rejected, not coerced.
func (e *Estimator) currentModel(ctx context.Context) (*Model, error) {
	version, payload, err := e.store.LatestModel(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil && e.modelVersion == version {
		return e.model, nil
	}

	m, err := DecodeModel(payload)
	if err != nil {
		return nil, err
	}
	if !m.Compatible() {
		return nil, errors.New("model " + m.Version + " was trained with a different feature schema")
	}
	e.model = m
	e.modelVersion = version
	e.log.Info("loaded duration model", "version", version, "trained_at", m.TrainedAt)
	return m, nil
}

func (e *Estimator) clamp(sec int64) int64 {
	if sec < e.cfg.MinSec {
		return e.cfg.MinSec
	}
	if sec > e.cfg.MaxSec {
		return e.cfg.MaxSec
	}
	return sec
}

func fallbackSec(p models.Priority) int64 {
	switch p {
	case models.PriorityHigh:
		return fallbackHighSec
	case models.PriorityLow:
		return fallbackLowSec
	default:
		return fallbackMediumSec
	}
}

func median(vals []int64) int64 {
	sorted := append([]int64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// expSec exponentiates a log-seconds prediction with the exponent pinned to
// a range that cannot overflow int64.
func expSec(logSec float64) float64 {
	if logSec > 25 {
		logSec = 25
	}
	if logSec < 0 {
		logSec = 0
	}
	return math.Exp(logSec)
}
