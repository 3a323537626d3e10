// Package storage selects and opens the store backend named in the configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/trackme/internal/config"
	"example.com/trackme/internal/domain"
	"example.com/trackme/internal/persistence/memory"
	"example.com/trackme/internal/persistence/postgres"
	"example.com/trackme/internal/persistence/sqlite"
	"example.com/trackme/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Store is the union of the persistence ports every backend implements.
type Store interface {
	domain.LocationStore
	domain.HealthStore
	domain.SettingsStore
}

// Backend is an opened store. Pool is set only for the postgres driver, which is the
// only one with an outbox to drain.
type Backend struct {
	Store  Store
	Pool   *pgxpool.Pool
	Driver string
	close  func() error
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Backend{
			Store:  postgres.NewRepository(pool),
			Pool:   pool,
			Driver: DriverPostgres,
			close:  func() error { pool.Close(); return nil },
		}, nil
	case DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, Driver: DriverSQLite, close: store.Close}, nil
	case DriverMemory:
		return &Backend{Store: memory.NewStore(), Driver: DriverMemory}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
