//go:build integration

package consumer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/trackme/internal/persistence/postgres"
	"example.com/trackme/internal/tracking"
)

func TestFixesFlowIntoPostgres(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	repo := postgres.NewRepository(pool)
	tracker := tracking.NewTracker(repo, repo)
	_, err := tracker.Start(ctx, "user-1")
	require.NoError(t, err)

	at := time.Date(2024, 5, 6, 7, 0, 0, 0, time.UTC)
	reader := &stubReader{messages: []kafka.Message{
		{Topic: "location_fixes", Key: []byte("user-1"), Value: []byte(`{"user_id":"user-1","recorded_at":"2024-05-06T07:00:00Z","latitude":1,"longitude":2,"horizontal_accuracy":3}`)},
		{Topic: "location_fixes", Key: []byte("user-2"), Value: []byte(`{"user_id":"user-2","recorded_at":"2024-05-06T07:00:00Z","latitude":1,"longitude":2,"horizontal_accuracy":3}`)},
	}}

	err = NewProcessor(reader, NewTrackingHandler(tracker, nil)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, reader.commitCalls, "recorded and disabled fixes are both committed")

	samples, err := repo.QueryLocations(ctx, "user-1", at, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, samples, 1)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&events))
	require.Equal(t, 1, events)
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("trackme"),
		postgrescontainer.WithUsername("trackme"),
		postgrescontainer.WithPassword("trackme"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../db/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, file := range files {
		content, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(content))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}
