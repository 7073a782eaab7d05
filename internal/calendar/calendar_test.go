package calendar

import (
	"errors"
	"testing"
	"time"
)

// shopSchedule mirrors the production pattern: Mon-Sat, split shifts, short
// Saturday, no offset so test instants read as shop time.
func shopSchedule() Schedule {
	return Schedule{
		Workdays: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		Shifts: []Shift{
			{StartMin: 8 * 60, EndMin: 12*60 + 30},
			{StartMin: 14 * 60, EndMin: 18 * 60},
		},
		DayShifts: map[int][]Shift{
			6: {{StartMin: 8 * 60, EndMin: 12 * 60}},
		},
	}
}

// mon is a Monday.
var mon = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestShiftsFor(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	if got := s.ShiftsFor(0); got != nil {
		t.Errorf("Sunday shifts = %v, want none", got)
	}
	if got := s.ShiftsFor(1); len(got) != 2 {
		t.Errorf("Monday shifts = %v, want 2 windows", got)
	}
	if got := s.ShiftsFor(6); len(got) != 1 || got[0].EndMin != 12*60 {
		t.Errorf("Saturday override = %v", got)
	}
}

func TestAdvanceWithinShift(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	got, err := s.Advance(at(mon, 8, 0), 3600)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon, 9, 0); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAdvanceSkipsLunch(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	// 30 min remain before the lunch break; the other 30 land after it.
	got, err := s.Advance(at(mon, 12, 0), 3600)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon, 14, 30); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAdvanceRollsOverWeekend(t *testing.T) {
	t.Parallel()
	s := shopSchedule()
	sat := mon.AddDate(0, 0, 5)

	// One hour left on Saturday, the second hour lands Monday morning.
	got, err := s.Advance(at(sat, 11, 0), 2*3600)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon.AddDate(0, 0, 7), 9, 0); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAdvanceFromOutsideShift(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	got, err := s.Advance(at(mon, 6, 0), 60)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon, 8, 1); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAdvanceZeroReturnsFrom(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	from := at(mon, 10, 13)
	got, err := s.Advance(from, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(from) {
		t.Errorf("got %v, want unchanged %v", got, from)
	}
}

func TestAdvanceExhaustsEmptySchedule(t *testing.T) {
	t.Parallel()
	s := Schedule{Workdays: map[int]bool{}}

	if _, err := s.Advance(mon, 3600); !errors.Is(err, ErrScheduleExhausted) {
		t.Errorf("err = %v, want ErrScheduleExhausted", err)
	}
}

func TestAdvanceRespectsUTCOffset(t *testing.T) {
	t.Parallel()
	s := shopSchedule()
	s.UTCOffsetMin = -240 // shop runs at UTC-4

	// 12:00 UTC is 08:00 on the shop floor.
	got, err := s.Advance(at(mon, 12, 0), 3600)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon, 13, 0); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAdvanceHonorsDailyCap(t *testing.T) {
	t.Parallel()
	s := shopSchedule()
	s.MaxDailySec = 4 * 3600

	// The cap exhausts Monday at 12:00; the remaining hour lands Tuesday.
	got, err := s.Advance(at(mon, 8, 0), 5*3600)
	if err != nil {
		t.Fatal(err)
	}
	if want := at(mon.AddDate(0, 0, 1), 9, 0); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBusinessSecondsBetween(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	// Full Monday: 4.5h morning + 4h afternoon.
	got := s.BusinessSecondsBetween(at(mon, 8, 0), at(mon, 18, 0))
	if want := int64(8*3600 + 1800); got != want {
		t.Errorf("full day = %d, want %d", got, want)
	}

	// Window straddling lunch only counts shift time.
	got = s.BusinessSecondsBetween(at(mon, 12, 0), at(mon, 14, 30))
	if want := int64(3600); got != want {
		t.Errorf("across lunch = %d, want %d", got, want)
	}

	// Reversed endpoints come back negative.
	got = s.BusinessSecondsBetween(at(mon, 18, 0), at(mon, 8, 0))
	if want := int64(-(8*3600 + 1800)); got != want {
		t.Errorf("reversed = %d, want %d", got, want)
	}
}

func TestAdvanceIsAdditive(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	// Two walks must land where one does, including a split that ends
	// exactly on the 12:30 shift boundary.
	cases := []struct{ s1, s2 int64 }{
		{1800, 1800},
		{3600, 6 * 3600},
		{16200, 3600}, // 08:00 + 16200s is exactly 12:30
		{20 * 3600, 5 * 3600},
	}
	start := at(mon, 8, 0)
	for _, tc := range cases {
		whole, err := s.Advance(start, tc.s1+tc.s2)
		if err != nil {
			t.Fatal(err)
		}
		mid, err := s.Advance(start, tc.s1)
		if err != nil {
			t.Fatal(err)
		}
		split, err := s.Advance(mid, tc.s2)
		if err != nil {
			t.Fatal(err)
		}
		if !split.Equal(whole) {
			t.Errorf("%d+%d: split lands %v, whole lands %v", tc.s1, tc.s2, split, whole)
		}
	}
}

func TestBusinessSecondsAcrossOvernightGap(t *testing.T) {
	t.Parallel()
	// Plain 08:00-12:00 and 13:00-17:00 day. A span covering the last hour
	// of one day and the first hour of the next counts only those two
	// hours; the night between is free.
	s := Schedule{
		Workdays: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
		Shifts: []Shift{
			{StartMin: 8 * 60, EndMin: 12 * 60},
			{StartMin: 13 * 60, EndMin: 17 * 60},
		},
	}
	tue := mon.AddDate(0, 0, 1)

	if got := s.BusinessSecondsBetween(at(mon, 16, 0), at(tue, 9, 0)); got != 7200 {
		t.Errorf("overnight span = %d, want 7200", got)
	}
	// From the 17:00 close itself nothing accrues until the next morning.
	if got := s.BusinessSecondsBetween(at(mon, 17, 0), at(tue, 8, 0)); got != 0 {
		t.Errorf("closed hours = %d, want 0", got)
	}
}

func TestBusinessSecondsBetweenSkipsSunday(t *testing.T) {
	t.Parallel()
	s := shopSchedule()
	sat := mon.AddDate(0, 0, 5)

	// Saturday 13:00 (after the short shift) to Sunday night: nothing accrues.
	if got := s.BusinessSecondsBetween(at(sat, 13, 0), at(sat.AddDate(0, 0, 1), 23, 0)); got != 0 {
		t.Errorf("weekend seconds = %d, want 0", got)
	}
}

func TestWeeklyBusinessSeconds(t *testing.T) {
	t.Parallel()
	s := shopSchedule()

	// 5 weekdays of 8.5h plus a 4h Saturday.
	if got, want := s.WeeklyBusinessSeconds(), int64(5*(8*3600+1800)+4*3600); got != want {
		t.Errorf("weekly = %d, want %d", got, want)
	}
}

func TestParseWorkdays(t *testing.T) {
	t.Parallel()

	got := ParseWorkdays("1-6")
	if got[0] || !got[1] || !got[6] {
		t.Errorf("1-6 = %v", got)
	}

	got = ParseWorkdays("0,6")
	if !got[0] || !got[6] || got[3] {
		t.Errorf("0,6 = %v", got)
	}

	// Garbage falls back to Mon-Sat.
	got = ParseWorkdays("nope")
	if got[0] || !got[1] || !got[6] {
		t.Errorf("fallback = %v", got)
	}
}

func TestParseOverride(t *testing.T) {
	t.Parallel()
	base := shopSchedule()

	got, err := ParseOverride("", base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Shifts) != 2 {
		t.Errorf("empty override should return base, got %v", got.Shifts)
	}

	got, err = ParseOverride(`{"shifts":[{"start_min":540,"end_min":780}]}`, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Shifts) != 1 || got.Shifts[0].StartMin != 540 {
		t.Errorf("override shifts = %v", got.Shifts)
	}
	if !got.Workdays[6] {
		t.Error("workdays should fall back to the base schedule")
	}

	if _, err := ParseOverride("{bad", base); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseShifts(t *testing.T) {
	t.Parallel()

	got := ParseShifts("08:00-12:30,14:00-18:00")
	if len(got) != 2 || got[0].StartMin != 8*60 || got[0].EndMin != 12*60+30 {
		t.Errorf("parsed = %v", got)
	}

	// Inverted window dropped, empty result falls back to 08:00-18:00.
	got = ParseShifts("12:00-08:00")
	if len(got) != 1 || got[0].StartMin != 8*60 || got[0].EndMin != 18*60 {
		t.Errorf("fallback = %v", got)
	}
}
