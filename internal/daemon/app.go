package daemon

import (
	"context"
	"errors"
	"log/slog"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/assign"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/estimate"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/notify"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/ranking"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/risk"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/store/postgres"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/workflow"
)

// App bundles the engine components over one store. The daemon and the
// one-shot CLI commands build the same App so behavior never diverges
// between the two.
type App struct {
	Store      store.Store
	Estimator  *estimate.Estimator
	Trainer    *estimate.Trainer
	Ranker     *ranking.Ranker
	Classifier *risk.Classifier
	Engine     *workflow.Engine
	Controller *assign.Controller
	Schedule   calendar.Schedule
}

// OpenStore opens the configured store: sqlite under home by default, or
// postgres when the driver says so.
func OpenStore(ctx context.Context, home string, cfg config.Config) (store.Store, error) {
	if cfg.DBDriver == "postgres" {
		if cfg.DBURL == "" {
			return nil, errors.New("postgres driver requires db_url or DATABASE_URL")
		}
		return postgres.Open(ctx, cfg.DBURL)
	}
	return store.Open(home)
}

// NewApp wires estimator, ranker, classifier, workflow engine, and the
// assignment controller from one config. notifier may be nil.
func NewApp(st store.Store, cfg config.Config, notifier notify.Notifier, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	sched := cfg.Schedule()

	ecfg := estimate.DefaultConfig()
	ecfg.MinSec = cfg.MinEstimateSec
	ecfg.MaxSec = cfg.MaxEstimateSec
	ecfg.SamePriorityMin = cfg.HistorySamePriority
	ecfg.AnyPriorityMin = cfg.HistoryAnyPriority
	est := estimate.New(st, ecfg, log)

	tcfg := estimate.DefaultTrainConfig()
	tcfg.RidgeLambda = cfg.TrainRidgeLambda
	tcfg.Seed = cfg.TrainSeed
	tcfg.AnchorBelow = cfg.TrainAnchorBelow
	tcfg.RecordLimit = cfg.TrainRecordLimit
	trainer := estimate.NewTrainer(st, tcfg, log)

	ranker := ranking.New(st, est, ranking.Config{WIPMax: cfg.WIPMax, Schedule: sched}, log)
	classifier := risk.New(risk.Config{
		Yellow:     cfg.RiskYellow,
		Red:        cfg.RiskRed,
		YellowHigh: cfg.RiskYellowHigh,
		RedHigh:    cfg.RiskRedHigh,
		Schedule:   sched,
	})
	engine := workflow.New(st, est, notifier, workflow.Config{
		AutoUpdateDueDate: cfg.AutoUpdateDueDate,
		Schedule:          sched,
		Classifier:        classifier,
		Suggester:         ranker,
	}, log)
	controller := assign.New(st, engine, ranker, classifier,
		risk.NewThrottle(cfg.AlertCooldown), notifier, assign.Config{
			AutoAssign:       cfg.AutoAssignEnabled,
			ReassignGrace:    cfg.ReassignGrace,
			ReassignCooldown: cfg.ReassignCooldown,
			ReassignMinDelta: cfg.ReassignMinDelta,
			ForceOnDelay:     cfg.ForceOnDelay,
			WorseTolerance:   cfg.ForceWorseTolerance,
			AlertCooldown:    cfg.AlertCooldown,
			Schedule:         sched,
		}, log)

	return &App{
		Store:      st,
		Estimator:  est,
		Trainer:    trainer,
		Ranker:     ranker,
		Classifier: classifier,
		Engine:     engine,
		Controller: controller,
		Schedule:   sched,
	}
}
