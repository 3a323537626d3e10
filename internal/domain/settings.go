package domain

import (
	"fmt"
	"time"
)

// Accuracy is the desired accuracy requested from location services.
type Accuracy string

const (
	AccuracyBest             Accuracy = "best"
	AccuracyNearestTenMeters Accuracy = "nearest_ten_meters"
	AccuracyHundredMeters    Accuracy = "hundred_meters"
	AccuracyKilometer        Accuracy = "kilometer"
	AccuracyThreeKilometers  Accuracy = "three_kilometers"
)

var accuracyThresholds = map[Accuracy]float64{
	AccuracyBest:             5,
	AccuracyNearestTenMeters: 10,
	AccuracyHundredMeters:    100,
	AccuracyKilometer:        1000,
	AccuracyThreeKilometers:  3000,
}

// Meters returns the worst horizontal accuracy accepted for this setting.
func (a Accuracy) Meters() (float64, bool) {
	m, ok := accuracyThresholds[a]
	return m, ok
}

// Settings captures the per-user tracking configuration.
type Settings struct {
	UserID               string
	TrackingEnabled      bool
	DistanceFilterMeters float64 // 0 disables the filter.
	DesiredAccuracy      Accuracy
	HealthReadTypes      []HealthMetric
	UpdatedAt            time.Time
}

// DefaultSettings returns the settings used before a user changes anything.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:          userID,
		DesiredAccuracy: AccuracyBest,
	}
}

// Validate checks the capture configuration.
func (s Settings) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidSettings)
	}
	if s.DistanceFilterMeters < 0 {
		return fmt.Errorf("%w: distance filter must be >= 0", ErrInvalidSettings)
	}
	if _, ok := s.DesiredAccuracy.Meters(); !ok {
		return fmt.Errorf("%w: unknown desired accuracy %q", ErrInvalidSettings, s.DesiredAccuracy)
	}
	for _, m := range s.HealthReadTypes {
		if !m.Known() {
			return fmt.Errorf("%w: unknown health type %q", ErrInvalidSettings, m)
		}
	}
	return nil
}

// CanRead reports whether the user granted read access to the metric.
func (s Settings) CanRead(metric HealthMetric) bool {
	for _, m := range s.HealthReadTypes {
		if m == metric {
			return true
		}
	}
	return false
}
