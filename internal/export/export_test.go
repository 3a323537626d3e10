package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/persistence/memory"
)

func TestFileNameUsesDayOfMonth(t *testing.T) {
	e := NewExporter(nil, t.TempDir(), time.UTC, nil)
	now := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)

	require.Equal(t, "2024-03-05_14:07:09_MyTrack.json", e.FileName(now))
}

func TestExportWritesAllSamplesOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2024, time.May, 6, 8, 0, 0, 0, time.UTC)
	const total = 520 // spans more than one listing page
	for i := total - 1; i >= 0; i-- {
		require.NoError(t, store.RecordLocation(ctx, domain.LocationSample{
			ID:         fmt.Sprintf("s%04d", i),
			UserID:     "user-1",
			RecordedAt: base.Add(time.Duration(i) * time.Second),
			Latitude:   1,
			Longitude:  2,
		}))
	}
	require.NoError(t, store.RecordLocation(ctx, domain.LocationSample{ID: "other", UserID: "user-2", RecordedAt: base}))

	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExporter(store, dir, time.UTC, nil)
	res, err := e.Export(ctx, "user-1", base)
	require.NoError(t, err)
	require.Equal(t, total, res.Points)
	require.Equal(t, filepath.Join(dir, "2024-05-06_08:00:00_MyTrack.json"), res.Path)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var points []Point
	require.NoError(t, json.Unmarshal(raw, &points))
	require.Len(t, points, total)
	require.Equal(t, "s0000", points[0].ID)
	require.Equal(t, fmt.Sprintf("s%04d", total-1), points[total-1].ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
}

func TestExportEmptyTrackWritesEmptyArray(t *testing.T) {
	e := NewExporter(memory.NewStore(), t.TempDir(), nil, nil)
	res, err := e.Export(context.Background(), "nobody", time.Now())
	require.NoError(t, err)
	require.Zero(t, res.Points)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(raw))
}
