// Package export writes a user's recorded track to a JSON file.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/persistence"
	"example.com/trackme/internal/platform/logger"
)

// FileSuffix is appended to the timestamp in every export file name.
const FileSuffix = "_MyTrack.json"

const fileTimeLayout = "2006-01-02_15:04:05"

// Point is one exported sample.
type Point struct {
	ID                 string    `json:"id"`
	RecordedAt         time.Time `json:"recorded_at"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
}

// Result describes a written export.
type Result struct {
	Path   string `json:"path"`
	Points int    `json:"points"`
}

// Exporter dumps location samples to files under dir.
type Exporter struct {
	locations domain.LocationStore
	dir       string
	loc       *time.Location
	log       *logger.Logger
}

// NewExporter builds an Exporter. File names are stamped in loc (UTC when nil).
func NewExporter(locations domain.LocationStore, dir string, loc *time.Location, log *logger.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{locations: locations, dir: dir, loc: loc, log: log.With("component", "exporter")}
}

// FileName returns the export file name for the instant now.
func (e *Exporter) FileName(now time.Time) string {
	return now.In(e.loc).Format(fileTimeLayout) + FileSuffix
}

// Export writes every sample of the user, oldest first, as a JSON array.
func (e *Exporter) Export(ctx context.Context, userID string, now time.Time) (Result, error) {
	points, err := e.collect(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, e.FileName(now))

	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(points); err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("encode export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Result{}, fmt.Errorf("publish export: %w", err)
	}

	e.log.Info("track exported", "user_id", userID, "path", path, "points", len(points))
	return Result{Path: path, Points: len(points)}, nil
}

func (e *Exporter) collect(ctx context.Context, userID string) ([]Point, error) {
	points := make([]Point, 0)
	var cursor *domain.Cursor
	for {
		page, next, err := e.locations.ListLocations(ctx, userID, cursor, persistence.MaxPageSize)
		if err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}
		for _, s := range page {
			points = append(points, Point{
				ID:                 s.ID,
				RecordedAt:         s.RecordedAt.UTC(),
				Latitude:           s.Latitude,
				Longitude:          s.Longitude,
				HorizontalAccuracy: s.HorizontalAccuracy,
			})
		}
		if next == nil {
			break
		}
		cursor = next
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].RecordedAt.Equal(points[j].RecordedAt) {
			return points[i].ID < points[j].ID
		}
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})
	return points, nil
}
