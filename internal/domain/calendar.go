package domain

// Division is one of three equal contiguous groupings of a day's periods.
// Period order is the sole source of morning/evening semantics.
type Division int

const (
	DivisionUnknown Division = iota
	DivisionMorning
	DivisionNoon
	DivisionLateNoon
)

func (d Division) String() string {
	switch d {
	case DivisionMorning:
		return "morning"
	case DivisionNoon:
		return "noon"
	case DivisionLateNoon:
		return "late_noon"
	default:
		return "unknown"
	}
}

// Calendar holds the ordered working days and time periods of a college week.
// Both sequences must be non-empty; chronological index is significant and is
// used for every gap and ordering computation.
type Calendar struct {
	Days    []string
	Periods []string

	dayIndex    map[string]int
	periodIndex map[string]int
	morningEnd  int
	noonEnd     int
}

// NewCalendar builds a calendar with precomputed index maps and the
// three-way equal division split over the period axis.
func NewCalendar(days, periods []string) Calendar {
	c := Calendar{
		Days:        append([]string(nil), days...),
		Periods:     append([]string(nil), periods...),
		dayIndex:    make(map[string]int, len(days)),
		periodIndex: make(map[string]int, len(periods)),
	}
	for i, d := range c.Days {
		c.dayIndex[d] = i
	}
	for i, p := range c.Periods {
		c.periodIndex[p] = i
	}
	n := len(c.Periods)
	c.morningEnd = n / 3
	c.noonEnd = (n * 2) / 3
	return c
}

// DayIndex returns the chronological index of a day name.
func (c Calendar) DayIndex(day string) (int, bool) {
	idx, ok := c.dayIndex[day]
	return idx, ok
}

// PeriodIndex returns the chronological index of a period label.
func (c Calendar) PeriodIndex(period string) (int, bool) {
	idx, ok := c.periodIndex[period]
	return idx, ok
}

// DayAt returns the day name at idx, or "" when out of range.
func (c Calendar) DayAt(idx int) string {
	if idx < 0 || idx >= len(c.Days) {
		return ""
	}
	return c.Days[idx]
}

// PeriodAt returns the period label at idx, or "" when out of range.
func (c Calendar) PeriodAt(idx int) string {
	if idx < 0 || idx >= len(c.Periods) {
		return ""
	}
	return c.Periods[idx]
}

// Division maps a period index onto its day division. The day is split into
// three equal contiguous divisions by integer division; remainders land in
// the late-noon division.
func (c Calendar) Division(periodIdx int) Division {
	switch {
	case periodIdx < 0 || periodIdx >= len(c.Periods):
		return DivisionUnknown
	case periodIdx < c.morningEnd:
		return DivisionMorning
	case periodIdx < c.noonEnd:
		return DivisionNoon
	default:
		return DivisionLateNoon
	}
}

// SpansDivisions reports whether a block of duration periods starting at
// startIdx crosses a division boundary.
func (c Calendar) SpansDivisions(startIdx, duration int) bool {
	if duration <= 1 {
		return false
	}
	first := c.Division(startIdx)
	last := c.Division(startIdx + duration - 1)
	return first != last
}

// Empty reports whether the calendar is missing days or periods.
func (c Calendar) Empty() bool {
	return len(c.Days) == 0 || len(c.Periods) == 0
}
