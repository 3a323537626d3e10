// Package memory provides in-memory stores for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/persistence"
)

// Store is an in-memory implementation of the location, health and settings ports.
type Store struct {
	mu        sync.RWMutex
	locations map[string][]domain.LocationSample // keyed by user id
	health    map[string][]domain.HealthSample   // keyed by user id
	settings  map[string]domain.Settings
}

var (
	_ domain.LocationStore = (*Store)(nil)
	_ domain.HealthStore   = (*Store)(nil)
	_ domain.SettingsStore = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		locations: make(map[string][]domain.LocationSample),
		health:    make(map[string][]domain.HealthSample),
		settings:  make(map[string]domain.Settings),
	}
}

// RecordLocation appends a sample, keeping each user's samples ordered by time.
func (s *Store) RecordLocation(_ context.Context, sample domain.LocationSample) error {
	if sample.ID == "" || sample.UserID == "" {
		return fmt.Errorf("%w: sample id and user id are required", domain.ErrInvalidSample)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := s.locations[sample.UserID]
	for _, existing := range samples {
		if existing.ID == sample.ID {
			return fmt.Errorf("%w: duplicate sample id %s", domain.ErrInvalidSample, sample.ID)
		}
	}
	samples = append(samples, sample)
	sort.SliceStable(samples, func(i, j int) bool { return lessLocation(samples[i], samples[j]) })
	s.locations[sample.UserID] = samples
	return nil
}

// QueryLocations returns samples in [start, end) ordered by RecordedAt ASC.
func (s *Store) QueryLocations(_ context.Context, userID string, start, end time.Time) ([]domain.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.LocationSample
	for _, sample := range s.locations[userID] {
		if !sample.RecordedAt.Before(start) && sample.RecordedAt.Before(end) {
			result = append(result, sample)
		}
	}
	return result, nil
}

// LastLocation returns the most recent sample, or ErrNotFound.
func (s *Store) LastLocation(_ context.Context, userID string) (*domain.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.locations[userID]
	if len(samples) == 0 {
		return nil, domain.ErrNotFound
	}
	last := samples[len(samples)-1]
	return &last, nil
}

// ListLocations pages through samples newest first.
func (s *Store) ListLocations(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LocationSample, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := s.locations[userID]
	result := make([]domain.LocationSample, 0, limit)
	for i := len(samples) - 1; i >= 0 && len(result) <= limit; i-- {
		if persistence.Before(samples[i].RecordedAt, samples[i].ID, cursor) {
			result = append(result, samples[i])
		}
	}

	var next *domain.Cursor
	if len(result) > limit {
		result = result[:limit]
		last := result[len(result)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return result, next, nil
}

// RecordHealthSamples stores the samples.
func (s *Store) RecordHealthSamples(_ context.Context, samples []domain.HealthSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range samples {
		if sample.UserID == "" {
			return fmt.Errorf("%w: user id is required", domain.ErrInvalidSample)
		}
	}
	for _, sample := range samples {
		s.health[sample.UserID] = append(s.health[sample.UserID], sample)
	}
	return nil
}

// QueryHealthSamples returns samples of the metric starting in [start, end).
func (s *Store) QueryHealthSamples(_ context.Context, userID string, metric domain.HealthMetric, start, end time.Time) ([]domain.HealthSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.HealthSample
	for _, sample := range s.health[userID] {
		if sample.Metric == metric && !sample.StartTime.Before(start) && sample.StartTime.Before(end) {
			result = append(result, sample)
		}
	}
	return result, nil
}

// GetSettings returns stored settings or the defaults.
func (s *Store) GetSettings(_ context.Context, userID string) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings, ok := s.settings[userID]
	if !ok {
		return domain.DefaultSettings(userID), nil
	}
	settings.HealthReadTypes = append([]domain.HealthMetric(nil), settings.HealthReadTypes...)
	return settings, nil
}

// SaveSettings replaces the user's settings.
func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	if settings.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidSettings)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.HealthReadTypes = append([]domain.HealthMetric(nil), settings.HealthReadTypes...)
	s.settings[settings.UserID] = settings
	return nil
}

// UpdateSettings applies mutate to the user's settings under the store lock.
func (s *Store) UpdateSettings(_ context.Context, userID string, mutate func(*domain.Settings) error) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.settings[userID]
	if !ok {
		current = domain.DefaultSettings(userID)
	}
	current.HealthReadTypes = append([]domain.HealthMetric(nil), current.HealthReadTypes...)
	if err := mutate(&current); err != nil {
		return domain.Settings{}, err
	}
	current.UserID = userID
	s.settings[userID] = current
	current.HealthReadTypes = append([]domain.HealthMetric(nil), current.HealthReadTypes...)
	return current, nil
}

func lessLocation(a, b domain.LocationSample) bool {
	if a.RecordedAt.Equal(b.RecordedAt) {
		return a.ID < b.ID
	}
	return a.RecordedAt.Before(b.RecordedAt)
}
