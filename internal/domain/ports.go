package domain

import (
	"context"
	"time"
)

// LocationStore persists location samples.
//
// QueryLocations must return samples with RecordedAt in [start, end) sorted
// ascending by RecordedAt; distance aggregation relies on that order.
type LocationStore interface {
	RecordLocation(ctx context.Context, sample LocationSample) error
	QueryLocations(ctx context.Context, userID string, start, end time.Time) ([]LocationSample, error)
	LastLocation(ctx context.Context, userID string) (*LocationSample, error)
	ListLocations(ctx context.Context, userID string, cursor *Cursor, limit int) ([]LocationSample, *Cursor, error)
}

// HealthStore persists health samples. Query results carry no ordering guarantee.
type HealthStore interface {
	RecordHealthSamples(ctx context.Context, samples []HealthSample) error
	QueryHealthSamples(ctx context.Context, userID string, metric HealthMetric, start, end time.Time) ([]HealthSample, error)
}

// SettingsStore persists tracking settings. GetSettings returns DefaultSettings when none are stored.
//
// UpdateSettings applies mutate to the current settings and saves the result
// atomically per user; an error from mutate leaves the stored settings untouched.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	UpdateSettings(ctx context.Context, userID string, mutate func(*Settings) error) (Settings, error)
}

// HealthDataService is the read side of the health data store.
type HealthDataService interface {
	Authorize(ctx context.Context, userID string, metrics []HealthMetric) (bool, error)
	Query(ctx context.Context, userID string, metric HealthMetric, start, end time.Time) ([]HealthSample, error)
}

// SummaryInvalidator evicts cached weekly summaries after the underlying data
// changed. With no instants every cached week of the user is evicted.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, userID string, at ...time.Time) error
}
