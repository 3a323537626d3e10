// Package postgres implements the stores on top of pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/outbox"
	"example.com/trackme/internal/persistence"
)

// Repository provides Postgres-backed persistence for samples, settings and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ domain.LocationStore = (*Repository)(nil)
	_ domain.HealthStore   = (*Repository)(nil)
	_ domain.SettingsStore = (*Repository)(nil)
)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordLocation persists the sample and its location.recorded event in one transaction.
func (r *Repository) RecordLocation(ctx context.Context, sample domain.LocationSample) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insertSample = `INSERT INTO location_samples (sample_id, user_id, recorded_at, latitude, longitude, horizontal_accuracy)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err = tx.Exec(ctx, insertSample,
		sample.ID,
		sample.UserID,
		sample.RecordedAt.UTC(),
		sample.Latitude,
		sample.Longitude,
		sample.HorizontalAccuracy,
	); err != nil {
		return fmt.Errorf("insert location sample: %w", err)
	}

	if err = insertOutbox(ctx, tx, "location_sample", sample.ID, sample.UserID, outbox.EventLocationRecorded, outbox.LocationRecorded{
		SampleID:           sample.ID,
		UserID:             sample.UserID,
		RecordedAt:         sample.RecordedAt.UTC(),
		Latitude:           sample.Latitude,
		Longitude:          sample.Longitude,
		HorizontalAccuracy: sample.HorizontalAccuracy,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, partitionKey, eventType string, payload interface{}) error {
	meta, err := outbox.Lookup(eventType)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

const locationColumns = `sample_id, user_id, recorded_at, latitude, longitude, horizontal_accuracy`

// QueryLocations returns samples in [start, end) ordered by recorded_at ASC.
func (r *Repository) QueryLocations(ctx context.Context, userID string, start, end time.Time) ([]domain.LocationSample, error) {
	const query = `SELECT ` + locationColumns + `
        FROM location_samples
        WHERE user_id=$1 AND recorded_at >= $2 AND recorded_at < $3
        ORDER BY recorded_at ASC, sample_id ASC`

	rows, err := r.pool.Query(ctx, query, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectLocations(rows)
}

// LastLocation returns the most recent sample, or ErrNotFound.
func (r *Repository) LastLocation(ctx context.Context, userID string) (*domain.LocationSample, error) {
	const query = `SELECT ` + locationColumns + `
        FROM location_samples
        WHERE user_id=$1
        ORDER BY recorded_at DESC, sample_id DESC
        LIMIT 1`

	var s domain.LocationSample
	err := r.pool.QueryRow(ctx, query, userID).Scan(&s.ID, &s.UserID, &s.RecordedAt, &s.Latitude, &s.Longitude, &s.HorizontalAccuracy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListLocations returns samples newest first, continuing after cursor.
func (r *Repository) ListLocations(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.LocationSample, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)
	args := []interface{}{userID, limit + 1}
	query := `SELECT ` + locationColumns + ` FROM location_samples WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (recorded_at, sample_id) < ($3, $4)`
		args = append(args, cursor.RecordedAt.UTC(), cursor.ID)
	}
	query += ` ORDER BY recorded_at DESC, sample_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	results, err := collectLocations(rows)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) > limit {
		results = results[:limit]
		last := results[len(results)-1]
		next = &domain.Cursor{RecordedAt: last.RecordedAt, ID: last.ID}
	}
	return results, next, nil
}

func collectLocations(rows pgx.Rows) ([]domain.LocationSample, error) {
	defer rows.Close()
	results := make([]domain.LocationSample, 0)
	for rows.Next() {
		var s domain.LocationSample
		if err := rows.Scan(&s.ID, &s.UserID, &s.RecordedAt, &s.Latitude, &s.Longitude, &s.HorizontalAccuracy); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

// RecordHealthSamples stores samples in a single batch. Re-sent samples are ignored.
func (r *Repository) RecordHealthSamples(ctx context.Context, samples []domain.HealthSample) error {
	if len(samples) == 0 {
		return nil
	}
	const stmt = `INSERT INTO health_samples (sample_id, user_id, metric, start_time, value, unit)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (sample_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, s := range samples {
		batch.Queue(stmt, s.ID, s.UserID, string(s.Metric), s.StartTime.UTC(), s.Value, string(s.Unit))
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert health samples: %w", err)
	}
	return nil
}

// QueryHealthSamples returns samples of metric starting in [start, end).
func (r *Repository) QueryHealthSamples(ctx context.Context, userID string, metric domain.HealthMetric, start, end time.Time) ([]domain.HealthSample, error) {
	const query = `SELECT sample_id, user_id, metric, start_time, value, unit
        FROM health_samples
        WHERE user_id=$1 AND metric=$2 AND start_time >= $3 AND start_time < $4
        ORDER BY start_time ASC`

	rows, err := r.pool.Query(ctx, query, userID, string(metric), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.HealthSample, 0)
	for rows.Next() {
		var (
			s            domain.HealthSample
			metric, unit string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &metric, &s.StartTime, &s.Value, &unit); err != nil {
			return nil, err
		}
		s.Metric = domain.HealthMetric(metric)
		s.Unit = domain.HealthUnit(unit)
		results = append(results, s)
	}
	return results, rows.Err()
}

const selectSettings = `SELECT user_id, tracking_enabled, distance_filter_meters, desired_accuracy, health_read_types, updated_at
        FROM tracking_settings WHERE user_id=$1`

const upsertSettings = `INSERT INTO tracking_settings (user_id, tracking_enabled, distance_filter_meters, desired_accuracy, health_read_types, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO UPDATE SET
            tracking_enabled = EXCLUDED.tracking_enabled,
            distance_filter_meters = EXCLUDED.distance_filter_meters,
            desired_accuracy = EXCLUDED.desired_accuracy,
            health_read_types = EXCLUDED.health_read_types,
            updated_at = EXCLUDED.updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// GetSettings returns the stored settings, or the defaults when the user has none.
func (r *Repository) GetSettings(ctx context.Context, userID string) (domain.Settings, error) {
	s, err := scanSettings(r.pool.QueryRow(ctx, selectSettings, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultSettings(userID), nil
	}
	return s, err
}

// SaveSettings upserts the user's settings.
func (r *Repository) SaveSettings(ctx context.Context, s domain.Settings) error {
	return execSettings(ctx, r.pool, upsertSettings, s)
}

// UpdateSettings locks the user's settings row, applies mutate and writes the
// result back in one transaction. A missing row is seeded with the defaults first
// so concurrent first-time updates also serialise on the row lock.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, mutate func(*domain.Settings) error) (_ domain.Settings, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Settings{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const seed = `INSERT INTO tracking_settings (user_id, tracking_enabled, distance_filter_meters, desired_accuracy, health_read_types, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id) DO NOTHING`
	if err = execSettings(ctx, tx, seed, domain.DefaultSettings(userID)); err != nil {
		return domain.Settings{}, fmt.Errorf("seed settings: %w", err)
	}

	s, err := scanSettings(tx.QueryRow(ctx, selectSettings+" FOR UPDATE", userID))
	if err != nil {
		return domain.Settings{}, fmt.Errorf("lock settings: %w", err)
	}
	if err = mutate(&s); err != nil {
		return domain.Settings{}, err
	}
	s.UserID = userID
	if err = execSettings(ctx, tx, upsertSettings, s); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

func scanSettings(row pgx.Row) (domain.Settings, error) {
	var (
		s        domain.Settings
		accuracy string
		types    []string
	)
	if err := row.Scan(&s.UserID, &s.TrackingEnabled, &s.DistanceFilterMeters, &accuracy, &types, &s.UpdatedAt); err != nil {
		return domain.Settings{}, err
	}
	s.DesiredAccuracy = domain.Accuracy(accuracy)
	for _, t := range types {
		s.HealthReadTypes = append(s.HealthReadTypes, domain.HealthMetric(t))
	}
	return s, nil
}

func execSettings(ctx context.Context, q querier, stmt string, s domain.Settings) error {
	types := make([]string, 0, len(s.HealthReadTypes))
	for _, m := range s.HealthReadTypes {
		types = append(types, string(m))
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := q.Exec(ctx, stmt, s.UserID, s.TrackingEnabled, s.DistanceFilterMeters, string(s.DesiredAccuracy), types, updatedAt.UTC())
	return err
}
