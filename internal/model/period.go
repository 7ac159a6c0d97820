package model

import (
	"fmt"
	"time"
)

// Period is a coarse time-of-day bucket used to schedule doses. Periods are
// ordered: morning < afternoon < evening.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

var periodOrder = []Period{PeriodMorning, PeriodAfternoon, PeriodEvening}

// Periods returns all periods in chronological order.
func Periods() []Period {
	return periodOrder
}

// ParsePeriod validates a period value received over the wire.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening:
		return p, nil
	}
	return "", fmt.Errorf("invalid time period: %q", s)
}

func (p Period) Valid() bool {
	_, err := ParsePeriod(string(p))
	return err == nil
}

func (p Period) index() int {
	for i, o := range periodOrder {
		if o == p {
			return i
		}
	}
	return -1
}

// Before reports whether p is strictly earlier in the day than other.
func (p Period) Before(other Period) bool {
	return p.index() < other.index()
}

// PeriodForHour maps a wall-clock hour to its period: [5,12) morning,
// [12,18) afternoon, everything else evening.
func PeriodForHour(hour int) Period {
	switch {
	case hour >= 5 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// PeriodsBefore returns the strict prefix of the period ordering before p.
// Morning has no earlier periods.
func PeriodsBefore(p Period) []Period {
	i := p.index()
	if i <= 0 {
		return nil
	}
	out := make([]Period, i)
	copy(out, periodOrder[:i])
	return out
}

// Clock resolves wall-clock time to schedule terms in a fixed location. All
// "today" computations in the subsystem go through one Clock so that the day
// boundary is consistent across triggers.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// NewClockAt returns a Clock with a fixed notion of now, for tests.
func NewClockAt(loc *time.Location, now time.Time) *Clock {
	c := NewClock(loc)
	c.now = func() time.Time { return now }
	return c
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the current calendar date formatted YYYY-MM-DD.
func (c *Clock) Today() string {
	return c.Now().Format("2006-01-02")
}

// CurrentPeriod returns the period the current hour falls in.
func (c *Clock) CurrentPeriod() Period {
	return PeriodForHour(c.Now().Hour())
}
