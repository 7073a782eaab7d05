package calendar

import (
	"encoding/json"
	"fmt"
)

// ParseOverride decodes a per-worker schedule stored as JSON. The base
// schedule fills in anything the override leaves at zero, so partial
// overrides (just different shifts, say) stay valid.
func ParseOverride(raw string, base Schedule) (Schedule, error) {
	if raw == "" {
		return base, nil
	}
	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return base, fmt.Errorf("calendar: parse override: %w", err)
	}
	if len(s.Workdays) == 0 {
		s.Workdays = base.Workdays
	}
	if len(s.Shifts) == 0 {
		s.Shifts = base.Shifts
	}
	if s.DayShifts == nil {
		s.DayShifts = base.DayShifts
	}
	if s.MaxDailySec == 0 {
		s.MaxDailySec = base.MaxDailySec
	}
	if s.UTCOffsetMin == 0 {
		s.UTCOffsetMin = base.UTCOffsetMin
	}
	return s, nil
}
