package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgxConn adapts a pgx connection pool to Conn.
type PgxConn struct {
	pool *pgxpool.Pool
}

// NewPgxConn wraps pool.
func NewPgxConn(pool *pgxpool.Pool) *PgxConn {
	return &PgxConn{pool: pool}
}

// Pool returns the underlying pool.
func (c *PgxConn) Pool() *pgxpool.Pool { return c.pool }

func (c *PgxConn) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	return pgxQuery(ctx, c.pool, sql, args)
}

func (c *PgxConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return pgxExec(ctx, c.pool, sql, args)
}

func (c *PgxConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, Classify("begin", err)
	}
	return &pgxTx{tx: tx}, nil
}

// Ping checks the pool can reach the database.
func (c *PgxConn) Ping(ctx context.Context) error {
	return Classify("ping", c.pool.Ping(ctx))
}

// Stats reports pool statistics.
func (c *PgxConn) Stats() *PoolStats {
	return GetPoolStats(c.pool)
}

// Close closes the pool.
func (c *PgxConn) Close() error {
	c.pool.Close()
	return nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	return pgxQuery(ctx, t.tx, sql, args)
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	return pgxExec(ctx, t.tx, sql, args)
}

func (t *pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func pgxQuery(ctx context.Context, q pgxQuerier, sql string, args []any) ([]Row, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, Classify("query", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, Classify("scan", err)
		}
		out = append(out, NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("query", err)
	}
	return out, nil
}

func pgxExec(ctx context.Context, q pgxQuerier, sql string, args []any) (int64, error) {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, Classify("exec", err)
	}
	return tag.RowsAffected(), nil
}
