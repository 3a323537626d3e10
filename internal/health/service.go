// Package health implements the health data collaborator on top of the stores.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/platform/logger"
)

// Service gates health sample reads behind per-user grants.
type Service struct {
	store       domain.HealthStore
	settings    domain.SettingsStore
	log         *logger.Logger
	now         func() time.Time
	invalidator domain.SummaryInvalidator
}

var _ domain.HealthDataService = (*Service)(nil)

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithInvalidator evicts cached summaries after grants and ingests.
func WithInvalidator(inv domain.SummaryInvalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
	}
}

// NewService builds a Service. log may be nil.
func NewService(store domain.HealthStore, settings domain.SettingsStore, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		store:    store,
		settings: settings,
		log:      log.With("component", "health"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize reports whether the user granted read access to every metric.
func (s *Service) Authorize(ctx context.Context, userID string, metrics []domain.HealthMetric) (bool, error) {
	settings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	for _, m := range metrics {
		if !settings.CanRead(m) {
			return false, nil
		}
	}
	return true, nil
}

// Query returns the user's samples of metric starting in [start, end).
func (s *Service) Query(ctx context.Context, userID string, metric domain.HealthMetric, start, end time.Time) ([]domain.HealthSample, error) {
	ok, err := s.Authorize(ctx, userID, []domain.HealthMetric{metric})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAuthorizationDenied
	}
	samples, err := s.store.QueryHealthSamples(ctx, userID, metric, start, end)
	if err != nil {
		return nil, fmt.Errorf("query health samples: %w", err)
	}
	return samples, nil
}

// Grant records read access to the metrics, keeping earlier grants.
func (s *Service) Grant(ctx context.Context, userID string, metrics []domain.HealthMetric) (domain.Settings, error) {
	for _, m := range metrics {
		if !m.Known() {
			return domain.Settings{}, fmt.Errorf("%w: unknown health type %q", domain.ErrInvalidSettings, m)
		}
	}
	settings, err := s.settings.UpdateSettings(ctx, userID, func(current *domain.Settings) error {
		for _, m := range metrics {
			if !current.CanRead(m) {
				current.HealthReadTypes = append(current.HealthReadTypes, m)
			}
		}
		current.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	s.log.Info("health read access granted", "user_id", userID, "metrics", settings.HealthReadTypes)
	// Cached weeks were built without the newly readable series.
	s.invalidate(ctx, userID)
	return settings, nil
}

// Ingest validates and stores samples for the user. Missing ids are generated and a missing
// unit defaults to the metric's canonical unit.
func (s *Service) Ingest(ctx context.Context, userID string, samples []domain.HealthSample) ([]domain.HealthSample, error) {
	out := make([]domain.HealthSample, 0, len(samples))
	for i, sample := range samples {
		if !sample.Metric.Known() {
			return nil, fmt.Errorf("%w: sample %d: unknown metric %q", domain.ErrInvalidSample, i, sample.Metric)
		}
		if sample.Unit == "" {
			sample.Unit = sample.Metric.Unit()
		}
		if sample.Unit != sample.Metric.Unit() {
			return nil, fmt.Errorf("%w: sample %d: %s must be in %s, got %s", domain.ErrInvalidSample, i, sample.Metric, sample.Metric.Unit(), sample.Unit)
		}
		if sample.Value < 0 {
			return nil, fmt.Errorf("%w: sample %d: negative value", domain.ErrInvalidSample, i)
		}
		if sample.StartTime.IsZero() {
			return nil, fmt.Errorf("%w: sample %d: start time is required", domain.ErrInvalidSample, i)
		}
		if sample.ID == "" {
			sample.ID = uuid.NewString()
		}
		sample.UserID = userID
		sample.StartTime = sample.StartTime.UTC()
		out = append(out, sample)
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.store.RecordHealthSamples(ctx, out); err != nil {
		return nil, fmt.Errorf("record health samples: %w", err)
	}
	s.log.Debug("health samples ingested", "user_id", userID, "count", len(out))
	at := make([]time.Time, len(out))
	for i, sample := range out {
		at[i] = sample.StartTime
	}
	s.invalidate(ctx, userID, at...)
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, userID string, at ...time.Time) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userID, at...); err != nil {
		s.log.Warn("summary cache invalidation failed", "user_id", userID, "error", err)
	}
}
