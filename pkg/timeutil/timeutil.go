// Package timeutil provides calendar-day helpers for streaks, daily goals
// and weekly plans. All day arithmetic happens in a single configured
// location so that "today" means the learner's local calendar day.
package timeutil

import (
	"fmt"
	"sync"
	"time"
)

// DateLayout is the ISO calendar date format used as a map key for daily goals.
const DateLayout = "2006-01-02"

// Clock abstracts the current moment.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a manually driven clock for tests.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the frozen moment.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Calendar combines a clock with the location that defines day boundaries.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// NewCalendar creates a calendar. Nil arguments fall back to the system
// clock and UTC.
func NewCalendar(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{clock: clock, loc: loc}
}

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// Location returns the calendar's location.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current moment in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Today returns today's ISO date.
func (c *Calendar) Today() string {
	return FormatDate(c.Now())
}

// Yesterday returns yesterday's ISO date.
func (c *Calendar) Yesterday() string {
	return FormatDate(c.Now().AddDate(0, 0, -1))
}

// StartOfDay returns midnight of t's day in the calendar's location.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// StartOfWeek returns the Sunday midnight that opens t's week.
func (c *Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekDates returns the seven ISO dates of the week that contains t,
// shifted by offset weeks.
func (c *Calendar) WeekDates(t time.Time, offset int) [7]string {
	start := c.StartOfWeek(t).AddDate(0, 0, 7*offset)
	var out [7]string
	for i := range out {
		out[i] = FormatDate(start.AddDate(0, 0, i))
	}
	return out
}

// FormatDate renders t as an ISO calendar date in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses an ISO calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}
