// Package tracking applies the capture configuration to incoming fixes.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/observability"
	"example.com/trackme/internal/platform/logger"
	"example.com/trackme/internal/weekly"
)

// Tracker records fixes for users that have tracking switched on.
type Tracker struct {
	locations domain.LocationStore
	settings  domain.SettingsStore
	distance  weekly.DistanceFunc
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
	inv       domain.SummaryInvalidator
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(log *logger.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock overrides the clock used to stamp settings changes.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithDistanceFunc overrides the distance used by the distance filter.
func WithDistanceFunc(fn weekly.DistanceFunc) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.distance = fn
		}
	}
}

// WithIDGenerator overrides sample id generation.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// WithInvalidator evicts the cached summary of the week a recorded fix falls in.
func WithInvalidator(inv domain.SummaryInvalidator) Option {
	return func(t *Tracker) {
		t.inv = inv
	}
}

// NewTracker builds a Tracker over the given stores.
func NewTracker(locations domain.LocationStore, settings domain.SettingsStore, opts ...Option) *Tracker {
	t := &Tracker{
		locations: locations,
		settings:  settings,
		distance:  weekly.HaversineDistance,
		log:       logger.Nop(),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("component", "tracker")
	return t
}

// Start switches tracking on for the user.
func (t *Tracker) Start(ctx context.Context, userID string) (domain.Settings, error) {
	return t.update(ctx, userID, func(s *domain.Settings) { s.TrackingEnabled = true })
}

// Stop switches tracking off for the user.
func (t *Tracker) Stop(ctx context.Context, userID string) (domain.Settings, error) {
	return t.update(ctx, userID, func(s *domain.Settings) { s.TrackingEnabled = false })
}

// Status returns the user's current settings.
func (t *Tracker) Status(ctx context.Context, userID string) (domain.Settings, error) {
	settings, err := t.settings.GetSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// Configure changes the distance filter and desired accuracy.
func (t *Tracker) Configure(ctx context.Context, userID string, distanceFilter float64, accuracy domain.Accuracy) (domain.Settings, error) {
	return t.Apply(ctx, userID, SettingsPatch{DistanceFilterMeters: &distanceFilter, DesiredAccuracy: &accuracy})
}

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	DistanceFilterMeters *float64
	DesiredAccuracy      *domain.Accuracy
	TrackingEnabled      *bool
}

// Apply merges the patch into the user's settings in a single update.
func (t *Tracker) Apply(ctx context.Context, userID string, patch SettingsPatch) (domain.Settings, error) {
	return t.update(ctx, userID, func(s *domain.Settings) {
		if patch.DistanceFilterMeters != nil {
			s.DistanceFilterMeters = *patch.DistanceFilterMeters
		}
		if patch.DesiredAccuracy != nil {
			s.DesiredAccuracy = *patch.DesiredAccuracy
		}
		if patch.TrackingEnabled != nil {
			s.TrackingEnabled = *patch.TrackingEnabled
		}
	})
}

func (t *Tracker) update(ctx context.Context, userID string, mutate func(*domain.Settings)) (domain.Settings, error) {
	settings, err := t.settings.UpdateSettings(ctx, userID, func(s *domain.Settings) error {
		mutate(s)
		s.UserID = userID
		s.UpdatedAt = t.now().UTC()
		return s.Validate()
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSettings) {
			return domain.Settings{}, err
		}
		return domain.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	t.log.Info("tracking settings updated", "user_id", userID, "enabled", settings.TrackingEnabled,
		"distance_filter_m", settings.DistanceFilterMeters, "accuracy", settings.DesiredAccuracy)
	return settings, nil
}

// Record filters the fix against the user's settings and persists it when accepted.
func (t *Tracker) Record(ctx context.Context, fix domain.LocationFix) (domain.LocationSample, error) {
	if !fix.Valid() {
		observability.RecordFixRejected("invalid")
		return domain.LocationSample{}, fmt.Errorf("%w: invalid coordinates or timestamp", domain.ErrInvalidSample)
	}
	settings, err := t.Status(ctx, fix.UserID)
	if err != nil {
		return domain.LocationSample{}, err
	}
	if !settings.TrackingEnabled {
		observability.RecordFixRejected("disabled")
		return domain.LocationSample{}, domain.ErrTrackingDisabled
	}

	threshold, _ := settings.DesiredAccuracy.Meters()
	if fix.HorizontalAccuracy < 0 || fix.HorizontalAccuracy > threshold {
		observability.RecordFixRejected("accuracy")
		return domain.LocationSample{}, fmt.Errorf("%w: horizontal accuracy %.1fm exceeds %.1fm", domain.ErrFixRejected, fix.HorizontalAccuracy, threshold)
	}

	sample := domain.LocationSample{
		ID:                 t.newID(),
		UserID:             fix.UserID,
		RecordedAt:         fix.RecordedAt.UTC(),
		Latitude:           fix.Latitude,
		Longitude:          fix.Longitude,
		HorizontalAccuracy: fix.HorizontalAccuracy,
	}

	if settings.DistanceFilterMeters > 0 {
		last, err := t.locations.LastLocation(ctx, fix.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.LocationSample{}, fmt.Errorf("load last location: %w", err)
		}
		if last != nil {
			if moved := t.distance(*last, sample); moved < settings.DistanceFilterMeters {
				observability.RecordFixRejected("distance_filter")
				return domain.LocationSample{}, fmt.Errorf("%w: moved %.1fm, filter is %.1fm", domain.ErrFixRejected, moved, settings.DistanceFilterMeters)
			}
		}
	}

	if err := t.locations.RecordLocation(ctx, sample); err != nil {
		return domain.LocationSample{}, fmt.Errorf("record location: %w", err)
	}
	observability.RecordFixAccepted(sample.RecordedAt)
	if t.inv != nil {
		if err := t.inv.Invalidate(ctx, sample.UserID, sample.RecordedAt); err != nil {
			t.log.Warn("summary cache invalidation failed", "user_id", sample.UserID, "error", err)
		}
	}
	return sample, nil
}
