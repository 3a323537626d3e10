package weekly

import (
	"context"
	"time"

	"example.com/trackme/internal/calendar"
	"example.com/trackme/internal/domain"
)

// Invalidator evicts cached summaries for the weeks that contain changed data.
type Invalidator struct {
	cache SummaryCache
	cal   calendar.Calendar
}

var _ domain.SummaryInvalidator = (*Invalidator)(nil)

// NewInvalidator maps changed instants to week starts in the calendar's zone.
func NewInvalidator(cache SummaryCache, cal calendar.Calendar) *Invalidator {
	return &Invalidator{cache: cache, cal: cal}
}

// Invalidate evicts the weeks containing at, or every week of the user when at is empty.
func (i *Invalidator) Invalidate(ctx context.Context, userID string, at ...time.Time) error {
	if len(at) == 0 {
		return i.cache.Purge(ctx, userID)
	}
	seen := make(map[int64]struct{}, len(at))
	weeks := make([]time.Time, 0, len(at))
	for _, t := range at {
		w := i.cal.WeekStart(t)
		if _, ok := seen[w.Unix()]; ok {
			continue
		}
		seen[w.Unix()] = struct{}{}
		weeks = append(weeks, w)
	}
	return i.cache.Delete(ctx, userID, weeks...)
}
