// Package weekly buckets time-stamped series into per-day totals for a calendar week.
package weekly

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/domain"
)

// DistanceFunc returns the geodesic distance in meters between two samples.
type DistanceFunc func(a, b domain.LocationSample) float64

// HaversineDistance is the great-circle distance on a spherical earth.
func HaversineDistance(a, b domain.LocationSample) float64 {
	return geo.DistanceHaversine(
		orb.Point{a.Longitude, a.Latitude},
		orb.Point{b.Longitude, b.Latitude},
	)
}

// Aggregator turns already-fetched samples into DailyTotals. It holds no mutable state.
type Aggregator struct {
	cal      calendar.Calendar
	distance DistanceFunc
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithDistanceFunc overrides the geodesic distance used for location samples.
func WithDistanceFunc(fn DistanceFunc) AggregatorOption {
	return func(a *Aggregator) {
		if fn != nil {
			a.distance = fn
		}
	}
}

// NewAggregator builds an Aggregator bound to the supplied calendar.
func NewAggregator(cal calendar.Calendar, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{cal: cal, distance: HaversineDistance}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Calendar returns the calendar the aggregator resolves weeks with.
func (a *Aggregator) Calendar() calendar.Calendar {
	return a.cal
}

// WeekStart resolves any instant to the start of its week.
func (a *Aggregator) WeekStart(t time.Time) time.Time {
	return a.cal.WeekStart(t)
}

// Distances sums consecutive-pair distances per day. samplesByDay[i] must be
// sorted ascending by time; days with fewer than two samples contribute 0.
func (a *Aggregator) Distances(_ calendar.WeekWindow, samplesByDay [domain.DaysPerWeek][]domain.LocationSample) domain.DailyTotals {
	var totals domain.DailyTotals
	for i, daily := range samplesByDay {
		for j := 0; j+1 < len(daily); j++ {
			totals[i] += a.distance(daily[j], daily[j+1])
		}
	}
	return totals
}

// HealthValues adds each sample's value into the window day its start falls in.
// Samples owned by another week are ignored; input order does not matter.
func (a *Aggregator) HealthValues(window calendar.WeekWindow, samples []domain.HealthSample) domain.DailyTotals {
	var totals domain.DailyTotals
	for _, s := range samples {
		i, ok := window.Bucket(s.StartTime)
		if !ok {
			continue
		}
		totals[i] += s.Value
	}
	return totals
}
