package clock

import (
	"fmt"
	"time"
)

// DayLayout is the layout of civil day keys (YYYY-MM-DD).
const DayLayout = "2006-01-02"

// Clock allows injecting time in domain/services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant (useful for tests).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

// Calendar maps instants to civil days in one fixed time zone.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for loc. A nil location means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// LoadCalendar resolves an IANA zone name such as "America/Mexico_City".
func LoadCalendar(zone string) (Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return NewCalendar(loc), nil
}

// Location returns the calendar's zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day returns the civil date of t in the calendar's zone as YYYY-MM-DD.
func (c Calendar) Day(t time.Time) string {
	return t.In(c.Location()).Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD key and returns it in canonical form.
func ParseDay(s string) (string, error) {
	d, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", err
	}
	return d.Format(DayLayout), nil
}
