package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

func TestWeekStartResolvesToSundayMidnight(t *testing.T) {
	cal := New(time.UTC)

	// Wednesday 2024-05-08 15:30.
	got := cal.WeekStart(time.Date(2024, time.May, 8, 15, 30, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), got)
	require.Equal(t, time.Sunday, got.Weekday())

	// A Sunday resolves to itself at midnight.
	got = cal.WeekStart(time.Date(2024, time.May, 5, 23, 59, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), got)

	// Saturday crosses a month boundary backwards.
	got = cal.WeekStart(time.Date(2024, time.June, 1, 0, 0, 1, 0, time.UTC))
	require.Equal(t, time.Date(2024, time.May, 26, 0, 0, 0, 0, time.UTC), got)
}

func TestWeekStartIsIdempotent(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	cal := New(loc)
	base := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24*40; h += 7 {
		x := base.Add(time.Duration(h) * time.Hour)
		once := cal.WeekStart(x)
		require.True(t, once.Equal(cal.WeekStart(once)), "instant %s", x)
		require.Equal(t, time.Sunday, once.Weekday())
		require.Zero(t, once.Hour())
	}
}

func TestWeekStartUsesCalendarLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	cal := New(loc)
	// Saturday 20:00 UTC is already Sunday 06:00 in UTC+10.
	got := cal.WeekStart(time.Date(2024, time.May, 11, 20, 0, 0, 0, time.UTC))
	require.True(t, got.Equal(time.Date(2024, time.May, 12, 0, 0, 0, 0, loc)))
}

func TestShiftRoundTrip(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	cal := New(loc)
	start := cal.WeekStart(time.Date(2024, time.January, 3, 12, 0, 0, 0, loc))
	for i := 0; i < 60; i++ {
		next := cal.Shift(start, 1)
		require.True(t, next.Equal(cal.WeekStart(next)))
		require.Equal(t, time.Sunday, next.Weekday())
		require.Zero(t, next.Hour(), "week start must stay at local midnight across DST")
		require.True(t, cal.Shift(next, -1).Equal(start))
		start = next
	}
}

func TestWindowPartitionsSevenDays(t *testing.T) {
	cal := New(time.UTC)
	w := cal.Window(time.Date(2024, time.May, 8, 9, 0, 0, 0, time.UTC))

	require.Equal(t, time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC), w.Start)
	require.True(t, w.Days[0].Start.Equal(w.Start))
	for i := 1; i < len(w.Days); i++ {
		require.True(t, w.Days[i].Start.Equal(w.Days[i-1].End), "day %d not contiguous", i)
	}
	for _, d := range w.Days {
		require.Equal(t, 24*time.Hour, d.End.Sub(d.Start))
	}
	require.Equal(t, 168*time.Hour, w.End().Sub(w.Start))
}

func TestIntervalIsHalfOpen(t *testing.T) {
	start := time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC)
	i := Interval{Start: start, End: start.Add(24 * time.Hour)}
	require.True(t, i.Contains(start))
	require.True(t, i.Contains(start.Add(24*time.Hour-time.Nanosecond)))
	require.False(t, i.Contains(start.Add(24*time.Hour)))
	require.False(t, i.Contains(start.Add(-time.Nanosecond)))
}

func TestDayIndex(t *testing.T) {
	cal := New(time.UTC)
	sunday := time.Date(2024, time.May, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		require.Equal(t, i, cal.DayIndex(sunday.AddDate(0, 0, i)))
	}
}

func TestTitle(t *testing.T) {
	cal := New(time.UTC)
	now := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	this := cal.WeekStart(now)

	require.Equal(t, "This Week", cal.Title(this, now))
	require.Equal(t, "Last Week", cal.Title(cal.Shift(this, -1), now))
	require.Equal(t, "Apr 21   to   Apr 27", cal.Title(cal.Shift(this, -2), now))
}

func TestCanAdvance(t *testing.T) {
	cal := New(time.UTC)
	now := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	this := cal.WeekStart(now)
	require.False(t, cal.CanAdvance(this, now))
	require.True(t, cal.CanAdvance(cal.Shift(this, -1), now))
}

func TestWeekSpansPartitionTimelineAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := New(ny)

	for _, anchor := range []time.Time{
		time.Date(2024, time.March, 12, 12, 0, 0, 0, ny),   // spring forward: 167h week
		time.Date(2024, time.November, 5, 12, 0, 0, 0, ny), // fall back: 169h week
	} {
		w := cal.Window(anchor)
		next := cal.Window(w.Next)

		require.Equal(t, 168*time.Hour, w.End().Sub(w.Start))
		require.True(t, w.Span().End.Equal(next.Start), "spans of consecutive weeks must touch")
		require.True(t, w.FetchRange(0).Start.Equal(w.Start))
		for i := 1; i < len(w.Days); i++ {
			require.True(t, w.FetchRange(i).Start.Equal(w.FetchRange(i-1).End), "fetch range %d not contiguous", i)
		}
		require.True(t, w.FetchRange(len(w.Days)-1).End.Equal(w.Next))
	}
}

func TestBucketAssignsEachInstantToOneWeek(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := New(ny)

	spring := cal.Window(time.Date(2024, time.March, 10, 12, 0, 0, 0, ny))
	afterMidnight := time.Date(2024, time.March, 17, 0, 30, 0, 0, ny)
	_, ok := spring.Bucket(afterMidnight)
	require.False(t, ok, "belongs to the following week even though it is before End")
	i, ok := cal.Window(afterMidnight).Bucket(afterMidnight)
	require.True(t, ok)
	require.Equal(t, 0, i)

	fall := cal.Window(time.Date(2024, time.November, 3, 12, 0, 0, 0, ny))
	lateSaturday := time.Date(2024, time.November, 9, 23, 30, 0, 0, ny)
	require.False(t, lateSaturday.Before(fall.End()))
	i, ok = fall.Bucket(lateSaturday)
	require.True(t, ok)
	require.Equal(t, 6, i)
	_, ok = cal.Window(fall.Next).Bucket(lateSaturday)
	require.False(t, ok)
}
