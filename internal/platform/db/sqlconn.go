package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// OpenSQL opens a database/sql handle using the lib/pq driver and verifies
// it with a ping.
func OpenSQL(ctx context.Context, databaseURL string, maxOpen, maxIdle int) (*sql.DB, error) {
	connector, err := pq.NewConnector(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlDB, nil
}

// sqlQuerier is satisfied by *sql.DB and *sql.Tx.
type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLConn adapts a database/sql handle to Conn.
type SQLConn struct {
	db *sql.DB
}

// NewSQLConn wraps db.
func NewSQLConn(db *sql.DB) *SQLConn {
	return &SQLConn{db: db}
}

func (c *SQLConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return sqlQuery(ctx, c.db, query, args)
}

func (c *SQLConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, c.db, query, args)
}

func (c *SQLConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Classify("begin", err)
	}
	return &sqlTx{tx: tx}, nil
}

// Ping checks the handle can reach the database.
func (c *SQLConn) Ping(ctx context.Context) error {
	return Classify("ping", c.db.PingContext(ctx))
}

// Stats reports connection statistics in the same shape as the pgx pool.
func (c *SQLConn) Stats() *PoolStats {
	s := c.db.Stats()
	return &PoolStats{
		TotalConns:      int32(s.OpenConnections),
		IdleConns:       int32(s.Idle),
		AcquiredConns:   int32(s.InUse),
		MaxConns:        int32(s.MaxOpenConnections),
		AcquireCount:    s.WaitCount,
		AcquireDuration: s.WaitDuration.String(),
		Healthy:         s.OpenConnections > 0,
	}
}

// Close closes the handle.
func (c *SQLConn) Close() error { return c.db.Close() }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return sqlQuery(ctx, t.tx, query, args)
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, t.tx, query, args)
}

func (t *sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

func sqlQuery(ctx context.Context, q sqlQuerier, query string, args []any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify("query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, Classify("columns", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, Classify("scan", err)
		}
		out = append(out, NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("query", err)
	}
	return out, nil
}

func sqlExec(ctx context.Context, q sqlQuerier, query string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, Classify("exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
