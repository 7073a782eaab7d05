// Package risk classifies delivery risk as a three-color semaphore. The
// signal is the ratio of remaining work to remaining business time before
// the due date; urgent jobs get stricter thresholds.
package risk

import (
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Config carries the semaphore thresholds per ratio of required work to
// available time. A job turns red only when the ratio strictly exceeds Red;
// sitting exactly at the threshold is still recoverable.
type Config struct {
	Yellow float64
	Red    float64

	// Stricter pair for HIGH priority jobs.
	YellowHigh float64
	RedHigh    float64

	Schedule calendar.Schedule
}

// DefaultConfig mirrors the daemon's defaults.
func DefaultConfig(sched calendar.Schedule) Config {
	return Config{
		Yellow:     0.7,
		Red:        1.0,
		YellowHigh: 0.6,
		RedHigh:    0.9,
		Schedule:   sched,
	}
}

// Assessment is one classification with the numbers behind it.
type Assessment struct {
	Color        models.RiskColor
	Ratio        float64 // required / available, 0 when no due date
	RequiredSec  int64   // estimated work still to do
	AvailableSec int64   // business seconds until the due date
	SlackSec     int64   // available - required
}

// Classifier computes assessments against a business calendar.
type Classifier struct {
	cfg Config
}

// New returns a Classifier with the given thresholds.
func New(cfg Config) *Classifier {
	if cfg.Yellow <= 0 {
		cfg.Yellow = 0.7
	}
	if cfg.Red <= cfg.Yellow {
		cfg.Red = 1.0
	}
	if cfg.YellowHigh <= 0 {
		cfg.YellowHigh = 0.6
	}
	if cfg.RedHigh <= cfg.YellowHigh {
		cfg.RedHigh = 0.9
	}
	return &Classifier{cfg: cfg}
}

// Classify assesses a job given the seconds already tracked on it. Jobs
// without a due date are always green: there is nothing to be late against.
func (c *Classifier) Classify(job *models.Job, trackedSec int64, now time.Time) Assessment {
	if job.DueDate == nil {
		return Assessment{Color: models.RiskGreen}
	}

	required := job.EstimatedSec - trackedSec
	if required < 0 {
		required = 0
	}
	available := c.cfg.Schedule.BusinessSecondsBetween(now, *job.DueDate)

	a := Assessment{
		RequiredSec:  required,
		AvailableSec: available,
		SlackSec:     available - required,
	}

	// Past due, or due so soon no business time remains: red, even with
	// nothing left to do. Only delivery clears an overdue job.
	if available <= 0 {
		a.Ratio = ratioCeiling
		a.Color = models.RiskRed
		return a
	}

	a.Ratio = float64(required) / float64(available)

	yellow, red := c.cfg.Yellow, c.cfg.Red
	if job.Priority == models.PriorityHigh {
		yellow, red = c.cfg.YellowHigh, c.cfg.RedHigh
	}

	switch {
	case a.Ratio > red:
		a.Color = models.RiskRed
	case a.Ratio >= yellow:
		a.Color = models.RiskYellow
	default:
		a.Color = models.RiskGreen
	}
	return a
}

// ratioCeiling stands in for "infinite" when no time is available.
const ratioCeiling = 999
