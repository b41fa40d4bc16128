// Package db is the storage boundary of the engine. Repositories talk to a
// driver-neutral Conn; adapters exist for a pgx pool and for database/sql
// with lib/pq.
package db

import (
	"context"
	"sort"
	"strings"
)

// Querier runs statements. Query materializes every row before returning.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Conn is a pooled connection that can open transactions.
type Conn interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row is one result row. Column lookups are case-insensitive and the row
// remembers which columns were present, independent of their values.
type Row struct {
	columns []string
	values  map[string]any
}

// NewRow pairs column names with values. Extra values are dropped.
func NewRow(columns []string, values []any) Row {
	r := Row{
		columns: make([]string, 0, len(columns)),
		values:  make(map[string]any, len(columns)),
	}
	for i, c := range columns {
		key := strings.ToLower(c)
		if _, dup := r.values[key]; dup {
			continue
		}
		r.columns = append(r.columns, key)
		if i < len(values) {
			r.values[key] = values[i]
		} else {
			r.values[key] = nil
		}
	}
	return r
}

// RowFromMap builds a row from a column -> value map.
func RowFromMap(m map[string]any) Row {
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = m[c]
	}
	return NewRow(cols, vals)
}

// Get returns the value of column and whether the column exists in the row.
func (r Row) Get(column string) (any, bool) {
	v, ok := r.values[strings.ToLower(column)]
	return v, ok
}

// Has reports whether column is part of the row shape.
func (r Row) Has(column string) bool {
	_, ok := r.values[strings.ToLower(column)]
	return ok
}

// Columns returns the lower-cased column names in result order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.columns) }
