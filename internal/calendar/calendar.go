// Package calendar converts between elapsed business seconds and wall-clock
// instants against a shop schedule: a set of workdays, per-day shift windows,
// and a daily work cap. All day/shift arithmetic happens in shop wall-clock
// time (a fixed UTC offset), independent of the server time zone.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Shift is a work window within a day, in minutes from midnight.
type Shift struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

func (s Shift) seconds() int64 { return int64(s.EndMin-s.StartMin) * 60 }

// Schedule is a weekly work pattern. DayShifts overrides Shifts for specific
// weekdays (0=Sunday..6=Saturday); days absent from Workdays have no shifts.
type Schedule struct {
	Workdays     map[int]bool    `json:"workdays"`
	Shifts       []Shift         `json:"shifts"`
	DayShifts    map[int][]Shift `json:"day_shifts,omitempty"`
	MaxDailySec  int64           `json:"max_daily_sec,omitempty"`
	UTCOffsetMin int             `json:"utc_offset_min"`
}

// ErrScheduleExhausted is returned when Advance walks past its iteration
// guard, which only happens on malformed schedules with no usable shifts.
var ErrScheduleExhausted = errors.New("calendar: no working time found within iteration guard")

// advanceGuard bounds the day walk in Advance; ~2 years of days.
const advanceGuard = 750

// ShiftsFor returns the shift windows for weekday d, or nil on non-workdays.
func (s Schedule) ShiftsFor(d int) []Shift {
	if !s.Workdays[d] {
		return nil
	}
	if override, ok := s.DayShifts[d]; ok && len(override) > 0 {
		return override
	}
	return s.Shifts
}

func (s Schedule) location() *time.Location {
	return time.FixedZone("shop", s.UTCOffsetMin*60)
}

// WeeklyBusinessSeconds is the total scheduled seconds in one full week,
// after the daily cap. Useful for capacity math and exact in tests.
func (s Schedule) WeeklyBusinessSeconds() int64 {
	var total int64
	for d := 0; d < 7; d++ {
		var day int64
		for _, sh := range s.ShiftsFor(d) {
			day += sh.seconds()
		}
		if s.MaxDailySec > 0 && day > s.MaxDailySec {
			day = s.MaxDailySec
		}
		total += day
	}
	return total
}

// Advance walks forward from `from` consuming `seconds` of business time and
// returns the resulting instant. A zero or negative request returns `from`
// unchanged. Requests starting outside any shift roll forward to the next
// shift start before consuming time.
func (s Schedule) Advance(from time.Time, seconds int64) (time.Time, error) {
	if seconds <= 0 {
		return from, nil
	}
	loc := s.location()
	cursor := from.In(loc)
	remaining := seconds

	for guard := 0; guard < advanceGuard; guard++ {
		shifts := s.ShiftsFor(int(cursor.Weekday()))
		midnight := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc)
		var usedToday int64
		for _, sh := range shifts {
			wStart := midnight.Add(time.Duration(sh.StartMin) * time.Minute)
			wEnd := midnight.Add(time.Duration(sh.EndMin) * time.Minute)
			if !cursor.Before(wEnd) {
				usedToday += sh.seconds()
				continue
			}
			pos := wStart
			if cursor.After(wStart) {
				pos = cursor
			}
			avail := int64(wEnd.Sub(pos) / time.Second)
			if s.MaxDailySec > 0 {
				if capLeft := s.MaxDailySec - usedToday; capLeft < avail {
					avail = capLeft
				}
			}
			if avail <= 0 {
				continue
			}
			if remaining <= avail {
				return pos.Add(time.Duration(remaining) * time.Second).In(from.Location()), nil
			}
			remaining -= avail
			usedToday += avail
		}
		// Next day at midnight; the next iteration rolls into its first shift.
		cursor = midnight.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrScheduleExhausted
}

// BusinessSecondsBetween returns the business seconds elapsed from a to b,
// negative when b precedes a. Used to decide whether a due-date change is
// material.
func (s Schedule) BusinessSecondsBetween(a, b time.Time) int64 {
	if b.Before(a) {
		return -s.BusinessSecondsBetween(b, a)
	}
	loc := s.location()
	cursor := a.In(loc)
	end := b.In(loc)
	var total int64

	for guard := 0; guard < advanceGuard && cursor.Before(end); guard++ {
		midnight := time.Date(cursor.Year(), cursor.Month(), cursor.Day(), 0, 0, 0, 0, loc)
		var day int64
		for _, sh := range s.ShiftsFor(int(cursor.Weekday())) {
			wStart := midnight.Add(time.Duration(sh.StartMin) * time.Minute)
			wEnd := midnight.Add(time.Duration(sh.EndMin) * time.Minute)
			from := wStart
			if cursor.After(wStart) {
				from = cursor
			}
			to := wEnd
			if end.Before(wEnd) {
				to = end
			}
			if to.After(from) {
				day += int64(to.Sub(from) / time.Second)
			}
		}
		if s.MaxDailySec > 0 && day > s.MaxDailySec {
			day = s.MaxDailySec
		}
		total += day
		cursor = midnight.AddDate(0, 0, 1)
	}
	return total
}

// ParseWorkdays parses "1-6" or "1,2,3" style day lists (0=Sunday). Falls
// back to Monday-Saturday when nothing parses.
func ParseWorkdays(raw string) map[int]bool {
	set := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(strings.TrimSpace(lo))
			b, errB := strconv.Atoi(strings.TrimSpace(hi))
			if errA == nil && errB == nil {
				for d := clampDay(a); d <= clampDay(b); d++ {
					set[d] = true
				}
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			set[clampDay(n)] = true
		}
	}
	if len(set) == 0 {
		for d := 1; d <= 6; d++ {
			set[d] = true
		}
	}
	return set
}

func clampDay(d int) int {
	if d < 0 {
		return 0
	}
	if d > 6 {
		return 6
	}
	return d
}

// ParseShifts parses "08:00-12:30,14:00-18:00" into shift windows. Windows
// with end <= start are dropped; an empty result falls back to 08:00-18:00.
func ParseShifts(raw string) []Shift {
	var out []Shift
	for _, part := range strings.Split(raw, ",") {
		startStr, endStr, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok {
			continue
		}
		start, err1 := parseHHMM(startStr)
		end, err2 := parseHHMM(endStr)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		out = append(out, Shift{StartMin: start, EndMin: end})
	}
	if len(out) == 0 {
		out = append(out, Shift{StartMin: 8 * 60, EndMin: 18 * 60})
	}
	return out
}

func parseHHMM(v string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, fmt.Errorf("calendar: invalid time %q", v)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("calendar: invalid hour %q", v)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("calendar: invalid minute %q", v)
	}
	return hh*60 + mm, nil
}
