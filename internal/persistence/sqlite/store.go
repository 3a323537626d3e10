// Package sqlite implements the stores on a local SQLite file through GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/persistence"
	"example.com/trackme/internal/platform/logger"
)

// Timestamps are stored as Unix milliseconds so range predicates compare integers.

type locationRow struct {
	SampleID           string `gorm:"primaryKey"`
	UserID             string `gorm:"not null;index:idx_location_user_time,priority:1"`
	RecordedAtMs       int64  `gorm:"not null;index:idx_location_user_time,priority:2"`
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
}

func (locationRow) TableName() string { return "location_samples" }

type healthRow struct {
	SampleID    string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;index:idx_health_user_metric_time,priority:1"`
	Metric      string `gorm:"not null;index:idx_health_user_metric_time,priority:2"`
	StartTimeMs int64  `gorm:"not null;index:idx_health_user_metric_time,priority:3"`
	Value       float64
	Unit        string
}

func (healthRow) TableName() string { return "health_samples" }

type settingsRow struct {
	UserID               string `gorm:"primaryKey"`
	TrackingEnabled      bool
	DistanceFilterMeters float64
	DesiredAccuracy      string
	HealthReadTypes      string // comma separated
	UpdatedAtMs          int64
}

func (settingsRow) TableName() string { return "tracking_settings" }

// Store implements the location, health and settings ports on SQLite.
type Store struct {
	db *gorm.DB
}

var (
	_ domain.LocationStore = (*Store)(nil)
	_ domain.HealthStore   = (*Store)(nil)
	_ domain.SettingsStore = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	gormLog := gormLogger.New(
		zap.NewStdLog(log.SugaredLogger.Desugar()),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&locationRow{}, &healthRow{}, &settingsRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordLocation inserts the sample.
func (s *Store) RecordLocation(ctx context.Context, sample domain.LocationSample) error {
	row := locationRow{
		SampleID:           sample.ID,
		UserID:             sample.UserID,
		RecordedAtMs:       sample.RecordedAt.UnixMilli(),
		Latitude:           sample.Latitude,
		Longitude:          sample.Longitude,
		HorizontalAccuracy: sample.HorizontalAccuracy,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert location sample: %w", err)
	}
	return nil
}

// QueryLocations returns samples in [start, end) ordered by time ASC.
func (s *Store) QueryLocations(ctx context.Context, userID string, start, end time.Time) ([]domain.LocationSample, error) {
	var rows []locationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND recorded_at_ms >= ? AND recorded_at_ms < ?", userID, start.UnixMilli(), end.UnixMilli()).
		Order("recorded_at_ms ASC, sample_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toLocations(rows), nil
}

// LastLocation returns the most recent sample, or ErrNotFound.
func (s *Store) LastLocation(ctx context.Context, userID string) (*domain.LocationSample, error) {
	var row locationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at_ms DESC, sample_id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sample := row.toDomain()
	return &sample, nil
}

// ListLocations returns samples newest first, continuing after cursor.
func (s *Store) ListLocations(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LocationSample, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		ms := cursor.RecordedAt.UnixMilli()
		q = q.Where("(recorded_at_ms < ?) OR (recorded_at_ms = ? AND sample_id < ?)", ms, ms, cursor.ID)
	}
	var rows []locationRow
	if err := q.Order("recorded_at_ms DESC, sample_id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	results := toLocations(rows)
	var next *domain.Cursor
	if len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return results, next, nil
}

// RecordHealthSamples inserts the samples, ignoring ones already stored.
func (s *Store) RecordHealthSamples(ctx context.Context, samples []domain.HealthSample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]healthRow, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, healthRow{
			SampleID:    sample.ID,
			UserID:      sample.UserID,
			Metric:      string(sample.Metric),
			StartTimeMs: sample.StartTime.UnixMilli(),
			Value:       sample.Value,
			Unit:        string(sample.Unit),
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("insert health samples: %w", err)
	}
	return nil
}

// QueryHealthSamples returns samples of metric starting in [start, end).
func (s *Store) QueryHealthSamples(ctx context.Context, userID string, metric domain.HealthMetric, start, end time.Time) ([]domain.HealthSample, error) {
	var rows []healthRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND metric = ? AND start_time_ms >= ? AND start_time_ms < ?", userID, string(metric), start.UnixMilli(), end.UnixMilli()).
		Order("start_time_ms ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.HealthSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HealthSample{
			ID:        r.SampleID,
			UserID:    r.UserID,
			Metric:    domain.HealthMetric(r.Metric),
			StartTime: time.UnixMilli(r.StartTimeMs).UTC(),
			Value:     r.Value,
			Unit:      domain.HealthUnit(r.Unit),
		})
	}
	return out, nil
}

// GetSettings returns the stored settings, or the defaults.
func (s *Store) GetSettings(ctx context.Context, userID string) (domain.Settings, error) {
	return loadSettings(s.db.WithContext(ctx), userID)
}

// SaveSettings upserts the user's settings.
func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	return storeSettings(s.db.WithContext(ctx), settings)
}

// UpdateSettings reads, mutates and writes the settings in one transaction.
// The single connection serialises concurrent updates.
func (s *Store) UpdateSettings(ctx context.Context, userID string, mutate func(*domain.Settings) error) (domain.Settings, error) {
	var out domain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := loadSettings(tx, userID)
		if err != nil {
			return err
		}
		if err := mutate(&settings); err != nil {
			return err
		}
		settings.UserID = userID
		if err := storeSettings(tx, settings); err != nil {
			return err
		}
		out = settings
		return nil
	})
	if err != nil {
		return domain.Settings{}, err
	}
	return out, nil
}

func loadSettings(db *gorm.DB, userID string) (domain.Settings, error) {
	var row settingsRow
	err := db.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultSettings(userID), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	settings := domain.Settings{
		UserID:               row.UserID,
		TrackingEnabled:      row.TrackingEnabled,
		DistanceFilterMeters: row.DistanceFilterMeters,
		DesiredAccuracy:      domain.Accuracy(row.DesiredAccuracy),
		UpdatedAt:            time.UnixMilli(row.UpdatedAtMs).UTC(),
	}
	for _, m := range strings.Split(row.HealthReadTypes, ",") {
		if m != "" {
			settings.HealthReadTypes = append(settings.HealthReadTypes, domain.HealthMetric(m))
		}
	}
	return settings, nil
}

func storeSettings(db *gorm.DB, settings domain.Settings) error {
	types := make([]string, 0, len(settings.HealthReadTypes))
	for _, m := range settings.HealthReadTypes {
		types = append(types, string(m))
	}
	row := settingsRow{
		UserID:               settings.UserID,
		TrackingEnabled:      settings.TrackingEnabled,
		DistanceFilterMeters: settings.DistanceFilterMeters,
		DesiredAccuracy:      string(settings.DesiredAccuracy),
		HealthReadTypes:      strings.Join(types, ","),
		UpdatedAtMs:          settings.UpdatedAt.UnixMilli(),
	}
	return db.Save(&row).Error
}

func (r locationRow) toDomain() domain.LocationSample {
	return domain.LocationSample{
		ID:                 r.SampleID,
		UserID:             r.UserID,
		RecordedAt:         time.UnixMilli(r.RecordedAtMs).UTC(),
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		HorizontalAccuracy: r.HorizontalAccuracy,
	}
}

func toLocations(rows []locationRow) []domain.LocationSample {
	out := make([]domain.LocationSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
