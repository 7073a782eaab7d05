// Package ranking orders active workers by fit for a job. The score is a
// weighted blend of skill affinity, current load, and track record, with a
// hard-requirement filter in front of it; assistants never rank for
// machine-skill work but are surfaced separately as support.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/heuristics"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/textfeat"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Score weights. They sum to 1; the blend is then reduced by the load
// penalty, so a saturated expert can lose to an idle generalist.
const (
	weightSkill    = 0.20
	weightLoad     = 0.20
	weightAccuracy = 0.20
	weightRole     = 0.15
	weightOnTime   = 0.10
	weightDelay    = 0.10
	weightPriority = 0.05
)

const (
	// Workers without a single delivery score neutral on every history
	// component and are capped below proven workers.
	coldDeviation = 0.3
	coldNeutral   = 0.5
	coldStartCap  = 0.85

	// Per-active-job penalty on the final score, capped.
	loadPenaltyPerJob = 0.1
	loadPenaltyMax    = 0.3

	// Two candidates closer than this are a tie; load and ETA decide.
	tieEpsilon = 0.05

	// A day of average delay zeroes the punctuality-delay component.
	delayFloorSec = 86400
)

// Candidate is one ranked worker with the evidence behind its score.
type Candidate struct {
	Worker      models.Worker
	Stats       models.WorkerStats
	Score       float64
	EstimateSec int64
	ETA         time.Time
	ColdStart   bool
	Reasons     []string
}

// Result is a full ranking pass over the active roster.
type Result struct {
	Candidates []Candidate // ordered best first
	Support    []Candidate // assistants filtered out by hard requirements
	Required   []string    // hard skill requirements derived from the text
}

// Config carries the ranking knobs.
type Config struct {
	WIPMax   int
	Schedule calendar.Schedule
}

// Ranker scores workers for jobs.
type Ranker struct {
	store     store.Store
	estimator *estimate.Estimator
	cfg       Config
	log       *slog.Logger
}

// New returns a Ranker over the given store and estimator.
func New(st store.Store, est *estimate.Estimator, cfg Config, log *slog.Logger) *Ranker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WIPMax <= 0 {
		cfg.WIPMax = models.DefaultWIPMax
	}
	return &Ranker{store: st, estimator: est, cfg: cfg, log: log}
}

// Suggest returns the top candidate's worker and a short rationale, for
// callers that just need a pick: auto-assignment and starting unassigned
// jobs.
func (r *Ranker) Suggest(ctx context.Context, job *models.Job) (int64, string, error) {
	res, err := r.Rank(ctx, job)
	if err != nil {
		return 0, "", err
	}
	if len(res.Candidates) == 0 {
		return 0, "", fmt.Errorf("no candidate meets requirements %v", res.Required)
	}
	best := res.Candidates[0]
	rationale := fmt.Sprintf("sugerido score %.2f: %s", best.Score, strings.Join(best.Reasons, ", "))
	return best.Worker.WorkerID, rationale, nil
}

// Rank scores every active worker for the job. Saturated workers are left
// out while anyone has spare capacity; when the whole shop is saturated
// they all compete, least loaded first.
func (r *Ranker) Rank(ctx context.Context, job *models.Job) (Result, error) {
	workers, err := r.store.ListActiveWorkers(ctx)
	if err != nil {
		return Result{}, err
	}

	f := textfeat.Extract(job.Description)
	req := heuristics.BuildHardRequirements(f)
	res := Result{Required: req.RequiredSkills}

	type scored struct {
		cand Candidate
		wip  int
	}
	var eligible, saturated []scored

	now := time.Now().UTC()
	for _, w := range workers {
		stats, err := r.store.WorkerStats(ctx, w.WorkerID)
		if err != nil {
			return Result{}, fmt.Errorf("stats for worker %d: %w", w.WorkerID, err)
		}
		skills := heuristics.NormalizeSkills(w.Skills)

		if len(req.RequiredSkills) > 0 && heuristics.IsAssistant(w.Skills, w.Role) {
			res.Support = append(res.Support, Candidate{
				Worker:  w,
				Stats:   stats,
				Reasons: append([]string{"apoyo"}, req.Reasons...),
			})
			continue
		}
		if !heuristics.MeetsRequirements(w.Skills, w.Role, req.RequiredSkills) {
			continue
		}

		worker := w
		est, err := r.estimator.ForWorker(ctx, job, &worker, stats.WIP)
		if err != nil {
			return Result{}, err
		}

		cand := r.score(job, worker, stats, skills, f, est, now)
		s := scored{cand: cand, wip: stats.WIP}
		if stats.WIP >= r.cfg.WIPMax {
			saturated = append(saturated, s)
		} else {
			eligible = append(eligible, s)
		}
	}

	if len(eligible) == 0 {
		eligible = saturated
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if math.Abs(a.cand.Score-b.cand.Score) >= tieEpsilon {
			return a.cand.Score > b.cand.Score
		}
		if a.wip != b.wip {
			return a.wip < b.wip
		}
		return a.cand.ETA.Before(b.cand.ETA)
	})

	for _, s := range eligible {
		res.Candidates = append(res.Candidates, s.cand)
	}
	return res, nil
}

func (r *Ranker) score(job *models.Job, w models.Worker, stats models.WorkerStats, skills []string, f textfeat.Features, est estimate.Estimate, now time.Time) Candidate {
	matched, skillScore := heuristics.SkillOverlap(skills, f.Tags())

	loadScore := 1 - float64(stats.WIP)/float64(r.cfg.WIPMax)
	if loadScore < 0 {
		loadScore = 0
	}

	cold := stats.Completed == 0
	accuracy, onTime, delay := coldNeutral, coldNeutral, coldNeutral
	if cold {
		accuracy = 1 - coldDeviation
	} else {
		dev := math.Min(stats.AvgDeviation, 1)
		accuracy = 1 - dev
		onTime = stats.OnTimeRate
		delay = 1 - math.Min(float64(stats.AvgDelaySec)/delayFloorSec, 1)
	}

	roleScore := 0.0
	if roleMatches(w.Role, f) {
		roleScore = 1
	}

	// Urgent work goes to whoever has proven punctual; for the rest the
	// component is neutral.
	prioScore := coldNeutral
	if job.Priority == models.PriorityHigh && !cold {
		prioScore = onTime
	}

	score := weightSkill*skillScore +
		weightLoad*loadScore +
		weightAccuracy*accuracy +
		weightRole*roleScore +
		weightOnTime*onTime +
		weightDelay*delay +
		weightPriority*prioScore

	penalty := math.Min(loadPenaltyMax, loadPenaltyPerJob*float64(stats.WIP))
	score -= penalty
	if cold && score > coldStartCap {
		score = coldStartCap
	}
	if score < 0 {
		score = 0
	}

	reasons := []string{
		fmt.Sprintf("afinidad %d/%d", matched, len(f.Tags())),
		fmt.Sprintf("carga %d activos", stats.WIP),
	}
	if cold {
		reasons = append(reasons, "sin historial")
	} else {
		reasons = append(reasons, fmt.Sprintf("desviación %.0f%%", stats.AvgDeviation*100))
	}
	if roleScore > 0 {
		reasons = append(reasons, "rol "+w.Role)
	}

	eta := r.eta(w, now, est.Seconds)
	return Candidate{
		Worker:      w,
		Stats:       stats,
		Score:       score,
		EstimateSec: est.Seconds,
		ETA:         eta,
		ColdStart:   cold,
		Reasons:     reasons,
	}
}

// eta projects the completion time over business hours, honoring a worker's
// calendar override when present. An exhausted schedule falls back to wall
// clock so the caller always gets a time.
func (r *Ranker) eta(w models.Worker, now time.Time, sec int64) time.Time {
	sched := r.cfg.Schedule
	if w.CalendarRaw != "" {
		if override, err := calendar.ParseOverride(w.CalendarRaw, sched); err == nil {
			sched = override
		} else {
			r.log.Warn("bad worker calendar, using shop schedule", "worker", w.WorkerID, "error", err)
		}
	}
	eta, err := sched.Advance(now, sec)
	if err != nil {
		return now.Add(time.Duration(sec) * time.Second)
	}
	return eta
}

func roleMatches(role string, f textfeat.Features) bool {
	switch role {
	case models.RoleTurner:
		return f.Processes[textfeat.ProcTurning] || f.HasThread
	case models.RoleMiller:
		return f.Processes[textfeat.ProcMilling]
	case models.RoleWelder:
		return f.Processes[textfeat.ProcWelding] || f.Domain[textfeat.TagHardfacing] || f.Domain[textfeat.TagBuildUp]
	default:
		return false
	}
}
