package risk

import (
	"testing"
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/calendar"
	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// allHours removes calendar effects so ratios are easy to reason about.
func allHours() calendar.Schedule {
	return calendar.Schedule{
		Workdays: map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		Shifts:   []calendar.Shift{{StartMin: 0, EndMin: 24 * 60}},
	}
}

func dueIn(now time.Time, d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestNoDueDateIsGreen(t *testing.T) {
	t.Parallel()
	c := New(DefaultConfig(allHours()))

	job := &models.Job{Priority: models.PriorityHigh, EstimatedSec: 360000}
	a := c.Classify(job, 0, time.Now())
	if a.Color != models.RiskGreen {
		t.Errorf("color = %s, want VERDE without due date", a.Color)
	}
}

func TestSemaphoreThresholds(t *testing.T) {
	t.Parallel()
	c := New(DefaultConfig(allHours()))
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		prio     models.Priority
		estimate int64 // tracked = 0, 10h available
		want     models.RiskColor
	}{
		{"comfortable", models.PriorityMedium, 3 * 3600, models.RiskGreen},
		{"at yellow", models.PriorityMedium, 7 * 3600, models.RiskYellow},
		{"exactly at red stays yellow", models.PriorityMedium, 10 * 3600, models.RiskYellow},
		{"over red", models.PriorityMedium, 11 * 3600, models.RiskRed},
		{"high gets stricter yellow", models.PriorityHigh, 6 * 3600, models.RiskYellow},
		{"high gets stricter red", models.PriorityHigh, 10 * 3600, models.RiskRed},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			job := &models.Job{
				Priority:     tc.prio,
				EstimatedSec: tc.estimate,
				DueDate:      dueIn(now, 10*time.Hour),
			}
			a := c.Classify(job, 0, now)
			if a.Color != tc.want {
				t.Errorf("ratio %.2f: color = %s, want %s", a.Ratio, a.Color, tc.want)
			}
		})
	}
}

func TestTrackedTimeReducesRequired(t *testing.T) {
	t.Parallel()
	c := New(DefaultConfig(allHours()))
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	job := &models.Job{
		Priority:     models.PriorityMedium,
		EstimatedSec: 11 * 3600,
		DueDate:      dueIn(now, 10*time.Hour),
	}
	// Untracked it is red; with 8h already done only 3h remain.
	if a := c.Classify(job, 0, now); a.Color != models.RiskRed {
		t.Fatalf("untracked color = %s, want ROJO", a.Color)
	}
	a := c.Classify(job, 8*3600, now)
	if a.Color != models.RiskGreen {
		t.Errorf("tracked color = %s, want VERDE", a.Color)
	}
	if a.RequiredSec != 3*3600 {
		t.Errorf("required = %d, want %d", a.RequiredSec, 3*3600)
	}
}

func TestPastDueIsRed(t *testing.T) {
	t.Parallel()
	c := New(DefaultConfig(allHours()))
	now := time.Now().UTC()

	job := &models.Job{
		Priority:     models.PriorityMedium,
		EstimatedSec: 3600,
		DueDate:      dueIn(now, -2*time.Hour),
	}
	a := c.Classify(job, 0, now)
	if a.Color != models.RiskRed {
		t.Errorf("color = %s, want ROJO past due", a.Color)
	}
	if a.SlackSec > 0 {
		t.Errorf("slack = %d, want <= 0", a.SlackSec)
	}
}

func TestPastDueIsRedEvenWithNoWorkLeft(t *testing.T) {
	t.Parallel()
	c := New(DefaultConfig(allHours()))
	now := time.Now().UTC()

	// Fully tracked but past due: only delivery turns the light green.
	job := &models.Job{
		Priority:     models.PriorityMedium,
		EstimatedSec: 3600,
		DueDate:      dueIn(now, -time.Hour),
	}
	a := c.Classify(job, 3600, now)
	if a.Color != models.RiskRed {
		t.Errorf("color = %s, want ROJO whenever slack <= 0", a.Color)
	}
	if a.RequiredSec != 0 {
		t.Errorf("required = %d, want 0", a.RequiredSec)
	}
}

func TestBusinessCalendarShrinksAvailableTime(t *testing.T) {
	t.Parallel()
	// Shop works 8h/day; a wall-clock 24h window holds far less capacity.
	sched := calendar.Schedule{
		Workdays: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
		Shifts:   []calendar.Shift{{StartMin: 8 * 60, EndMin: 16 * 60}},
	}
	c := New(DefaultConfig(sched))
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) // Tuesday 08:00

	job := &models.Job{
		Priority:     models.PriorityMedium,
		EstimatedSec: 10 * 3600,
		DueDate:      dueIn(now, 24*time.Hour),
	}
	a := c.Classify(job, 0, now)
	// 8h today + nothing overnight = at most 16h of business time;
	// 10h of work against 8h before the same hour tomorrow is red.
	if a.Color != models.RiskYellow && a.Color != models.RiskRed {
		t.Errorf("color = %s, want elevated with calendar pressure (ratio %.2f)", a.Color, a.Ratio)
	}
	if a.AvailableSec >= 24*3600 {
		t.Errorf("available = %d, want below wall clock", a.AvailableSec)
	}
}

func TestThrottleCooldown(t *testing.T) {
	t.Parallel()
	th := NewThrottle(30 * time.Minute)
	now := time.Now()

	if !th.Allow(1, "ALERTA", now) {
		t.Fatal("first emission must pass")
	}
	if th.Allow(1, "ALERTA", now.Add(10*time.Minute)) {
		t.Error("second emission inside cooldown must be blocked")
	}
	if !th.Allow(1, "ENTREGA", now.Add(time.Minute)) {
		t.Error("different kind must not share the cooldown")
	}
	if !th.Allow(2, "ALERTA", now.Add(time.Minute)) {
		t.Error("different job must not share the cooldown")
	}
	if !th.Allow(1, "ALERTA", now.Add(31*time.Minute)) {
		t.Error("emission after cooldown must pass")
	}
}
