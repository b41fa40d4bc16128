package db

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Handle is an opened Conn that can also report health.
type Handle interface {
	Conn
	HealthChecker
	io.Closer
}

// Open connects using driver "pgx" (pgxpool) or "postgres" (database/sql
// with lib/pq).
func Open(ctx context.Context, driver, databaseURL string, maxConns, minConns int32) (Handle, error) {
	switch driver {
	case "", "pgx":
		pool, err := NewPool(ctx, databaseURL, maxConns, minConns)
		if err != nil {
			return nil, err
		}
		return NewPgxConn(pool), nil
	case "postgres":
		sqlDB, err := OpenSQL(ctx, databaseURL, int(maxConns), int(minConns))
		if err != nil {
			return nil, err
		}
		return NewSQLConn(sqlDB), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
