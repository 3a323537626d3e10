// Package calendar resolves instants to weeks and days of week.
package calendar

import (
	"time"

	"example.com/trackme/internal/domain"
)

const day = 24 * time.Hour

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// WeekWindow is a 7x24h partition starting at a resolved week start.
// Next is the following week start; it differs from End by an hour in DST weeks.
type WeekWindow struct {
	Start time.Time
	Next  time.Time
	Days  [domain.DaysPerWeek]Interval
}

// End returns the exclusive end of the window.
func (w WeekWindow) End() time.Time {
	return w.Days[domain.DaysPerWeek-1].End
}

// Span is the part of the timeline owned by this week: [Start, Next).
// Adjacent weeks' spans never overlap and leave no gap.
func (w WeekWindow) Span() Interval {
	return Interval{Start: w.Start, End: w.Next}
}

// Bucket returns the day index t is counted in, and false when t belongs to another week.
// Instants past the last 24h day but before Next (the extra hour of a fall-back week)
// count on the last day.
func (w WeekWindow) Bucket(t time.Time) (int, bool) {
	if !w.Span().Contains(t) {
		return 0, false
	}
	for i, d := range w.Days {
		if d.Contains(t) {
			return i, true
		}
	}
	return domain.DaysPerWeek - 1, true
}

// FetchRange is the range to query for day i so that the seven ranges exactly cover Span.
// It equals Days[i] except for the last day, which ends at Next.
func (w WeekWindow) FetchRange(i int) Interval {
	r := w.Days[i]
	if i == domain.DaysPerWeek-1 {
		r.End = w.Next
	}
	if r.End.Before(r.Start) {
		r.End = r.Start
	}
	return r
}

// Calendar resolves week boundaries in a fixed location. The week starts on Sunday.
type Calendar struct {
	loc *time.Location
}

// New builds a Calendar for loc. A nil location means UTC.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar's time zone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// WeekStart returns local midnight of the Sunday on or before t.
func (c Calendar) WeekStart(t time.Time) time.Time {
	local := t.In(c.Location())
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, c.Location())
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

// Shift moves a week start by the given number of weeks using calendar days,
// so the result is always another week start even across DST changes.
func (c Calendar) Shift(weekStart time.Time, weeks int) time.Time {
	return c.WeekStart(c.WeekStart(weekStart).AddDate(0, 0, 7*weeks))
}

// Window partitions the week starting at weekStart into seven 24h days.
func (c Calendar) Window(weekStart time.Time) WeekWindow {
	start := c.WeekStart(weekStart)
	w := WeekWindow{Start: start, Next: c.Shift(start, 1)}
	for i := range w.Days {
		w.Days[i] = Interval{
			Start: start.Add(time.Duration(i) * day),
			End:   start.Add(time.Duration(i+1) * day),
		}
	}
	return w
}

// DayIndex returns the 0-based day of week of t (Sunday = 0).
func (c Calendar) DayIndex(t time.Time) int {
	return int(t.In(c.Location()).Weekday())
}

// CanAdvance reports whether navigating one week forward from weekStart stays at or before the current week.
func (c Calendar) CanAdvance(weekStart, now time.Time) bool {
	return c.WeekStart(weekStart).Before(c.WeekStart(now))
}

// Title names the week relative to now: "This Week", "Last Week", or "Jan 2   to   Jan 8".
func (c Calendar) Title(weekStart, now time.Time) string {
	start := c.WeekStart(weekStart)
	current := c.WeekStart(now)
	switch {
	case start.Equal(current):
		return "This Week"
	case c.Shift(start, 1).Equal(current):
		return "Last Week"
	default:
		end := start.AddDate(0, 0, 6)
		return start.Format("Jan 2") + "   to   " + end.Format("Jan 2")
	}
}
