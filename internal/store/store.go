// Package store opens the configured core.Store implementation.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/sheetbase/internal/config"
	"github.com/JonMunkholm/sheetbase/internal/core"
	"github.com/JonMunkholm/sheetbase/internal/store/postgres"
	"github.com/JonMunkholm/sheetbase/internal/store/sqlite"
)

// Open connects to the store named by cfg.Driver and migrates its schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (core.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, postgres.PoolConfig{
			URL:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", cfg.Driver, "max_conns", cfg.MaxConns)
		return st, nil

	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		slog.Info("opened database", "driver", cfg.Driver, "path", cfg.DSN())
		return st, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
