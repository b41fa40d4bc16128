// Package query renders parameterized SQL statements for a single entity
// table. Values are always bound as $n placeholders; identifiers come only
// from entity definitions and criteria allowlists.
package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/pkg/pagination"
)

// Statement is SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Config describes the table a Builder writes statements for.
type Config struct {
	Table    string
	IDColumn string
	// Columns is the select list. Empty selects every column.
	Columns      []string
	Active       activestatus.Policy
	DefaultOrder []criteria.OrderTerm
	// UpdatedAtColumn, when set, is stamped by Deactivate and Reactivate.
	UpdatedAtColumn string
	Limits          pagination.Limits
}

// Builder renders statements for one table. It is immutable and safe for
// concurrent use.
type Builder struct {
	table        string
	idColumn     string
	cols         string
	active       activestatus.Policy
	defaultOrder string
	updatedAt    string
	limits       pagination.Limits
}

// New validates cfg and returns a Builder.
func New(cfg Config) (*Builder, error) {
	if !criteria.ValidIdentifier(cfg.Table) {
		return nil, fmt.Errorf("query builder: invalid table %q", cfg.Table)
	}
	if !criteria.ValidIdentifier(cfg.IDColumn) {
		return nil, fmt.Errorf("query builder: invalid id column %q", cfg.IDColumn)
	}
	if err := cfg.Active.Validate(); err != nil {
		return nil, fmt.Errorf("query builder %s: %w", cfg.Table, err)
	}
	if cfg.UpdatedAtColumn != "" && !criteria.ValidIdentifier(cfg.UpdatedAtColumn) {
		return nil, fmt.Errorf("query builder: invalid updated_at column %q", cfg.UpdatedAtColumn)
	}

	cols := "*"
	if len(cfg.Columns) > 0 {
		for _, c := range cfg.Columns {
			if !criteria.ValidIdentifier(c) {
				return nil, fmt.Errorf("query builder: invalid column %q", c)
			}
		}
		cols = strings.Join(cfg.Columns, ", ")
	}

	order := make([]string, 0, len(cfg.DefaultOrder))
	for _, t := range cfg.DefaultOrder {
		if !criteria.ValidIdentifier(t.Column) {
			return nil, fmt.Errorf("query builder: invalid order column %q", t.Column)
		}
		dir := t.Direction
		if dir != criteria.Desc {
			dir = criteria.Asc
		}
		order = append(order, t.Column+" "+string(dir))
	}
	if len(order) == 0 {
		order = append(order, cfg.IDColumn+" ASC")
	}

	limits := cfg.Limits
	if limits.Max <= 0 {
		limits = pagination.DefaultLimits
	}

	return &Builder{
		table:        cfg.Table,
		idColumn:     cfg.IDColumn,
		cols:         cols,
		active:       cfg.Active,
		defaultOrder: strings.Join(order, ", "),
		updatedAt:    cfg.UpdatedAtColumn,
		limits:       limits,
	}, nil
}

// Table returns the table name.
func (b *Builder) Table() string { return b.table }

// Active returns the active-status policy.
func (b *Builder) Active() activestatus.Policy { return b.active }

// Limits returns the page limits applied by Select.
func (b *Builder) Limits() pagination.Limits { return b.limits }

// where accumulates AND-joined clauses and their arguments, tracking the next
// placeholder index.
type where struct {
	parts []string
	args  []any
	idx   int
}

func newWhere() *where { return &where{idx: 1} }

func (w *where) add(clause string, args ...any) {
	w.parts = append(w.parts, clause)
	w.args = append(w.args, args...)
	w.idx += len(args)
}

func (w *where) eq(column string, value any) {
	if value == nil {
		w.add(column + " IS NULL")
		return
	}
	w.add(fmt.Sprintf("%s = $%d", column, w.idx), value)
}

func (w *where) sql() string {
	if len(w.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.parts, " AND ")
}

func (b *Builder) scope(w *where, s criteria.Scope) {
	switch s {
	case criteria.IncludeInactive:
		return
	case criteria.InactiveOnly:
		clause, args, _ := b.active.Clause(false, w.idx)
		w.add(clause, args...)
	default:
		clause, args, _ := b.active.Clause(true, w.idx)
		w.add(clause, args...)
	}
}

func (b *Builder) filter(w *where, c *criteria.Criteria) {
	for _, p := range c.Predicates() {
		w.eq(p.Column, p.Value)
	}
	b.scope(w, c.Scope())
}

// Filter renders the AND-joined predicates of c starting at placeholder idx,
// without the active-status clause.
func Filter(c *criteria.Criteria, idx int) (clause string, args []any, next int) {
	w := &where{idx: idx}
	for _, p := range c.Predicates() {
		w.eq(p.Column, p.Value)
	}
	return strings.Join(w.parts, " AND "), w.args, w.idx
}

// Select renders a filtered, ordered and paged SELECT. The page is normalized
// against the builder's limits and always bound as parameters.
func (b *Builder) Select(c *criteria.Criteria, o *criteria.OrderSpec, p pagination.Page) (Statement, error) {
	if err := c.Err(); err != nil {
		return Statement{}, err
	}
	if err := o.Err(); err != nil {
		return Statement{}, err
	}
	p = b.limits.Normalize(p)

	w := newWhere()
	b.filter(w, c)

	orderBy := o.SQL()
	if orderBy == "" {
		orderBy = b.defaultOrder
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		b.cols, b.table, w.sql(), orderBy, w.idx, w.idx+1)
	args := append(w.args, p.Limit, p.Offset)
	return Statement{SQL: sql, Args: args}, nil
}

// Count renders SELECT COUNT(*) with the same filter as Select.
func (b *Builder) Count(c *criteria.Criteria) (Statement, error) {
	if err := c.Err(); err != nil {
		return Statement{}, err
	}
	w := newWhere()
	b.filter(w, c)
	return Statement{
		SQL:  fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.table, w.sql()),
		Args: w.args,
	}, nil
}

// ByID renders a single-row SELECT by identifier.
func (b *Builder) ByID(id any, s criteria.Scope) Statement {
	w := newWhere()
	w.eq(b.idColumn, id)
	b.scope(w, s)
	return Statement{
		SQL:  fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1", b.cols, b.table, w.sql()),
		Args: w.args,
	}
}

// Exists renders a SELECT 1 probe by identifier.
func (b *Builder) Exists(id any, s criteria.Scope) Statement {
	w := newWhere()
	w.eq(b.idColumn, id)
	b.scope(w, s)
	return Statement{
		SQL:  fmt.Sprintf("SELECT 1 FROM %s%s LIMIT 1", b.table, w.sql()),
		Args: w.args,
	}
}

// Insert renders an INSERT of values with columns in sorted order. A non-empty
// returning column is appended as RETURNING.
func (b *Builder) Insert(values map[string]any, returning string) (Statement, error) {
	if len(values) == 0 {
		return Statement{}, fmt.Errorf("insert into %s: no values", b.table)
	}
	cols, err := sortedColumns(values)
	if err != nil {
		return Statement{}, fmt.Errorf("insert into %s: %w", b.table, err)
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if returning != "" {
		if !criteria.ValidIdentifier(returning) {
			return Statement{}, fmt.Errorf("insert into %s: invalid returning column %q", b.table, returning)
		}
		sql += " RETURNING " + returning
	}
	return Statement{SQL: sql, Args: args}, nil
}

// Update renders an UPDATE of set (sorted by column) on the active row with id.
func (b *Builder) Update(id any, set map[string]any) (Statement, error) {
	if len(set) == 0 {
		return Statement{}, fmt.Errorf("update %s: no columns", b.table)
	}
	cols, err := sortedColumns(set)
	if err != nil {
		return Statement{}, fmt.Errorf("update %s: %w", b.table, err)
	}
	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, set[c])
	}

	w := &where{idx: len(cols) + 1, args: args}
	w.eq(b.idColumn, id)
	b.scope(w, criteria.ActiveOnly)

	return Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s%s", b.table, strings.Join(assignments, ", "), w.sql()),
		Args: w.args,
	}, nil
}

// Deactivate renders the soft delete of the active row with id.
func (b *Builder) Deactivate(id any, now time.Time) Statement {
	col, val := b.active.Deactivate(now)
	return b.flip(id, col, val, now, criteria.ActiveOnly)
}

// Reactivate renders the restore of the inactive row with id.
func (b *Builder) Reactivate(id any, now time.Time) Statement {
	col, val := b.active.Reactivate()
	return b.flip(id, col, val, now, criteria.InactiveOnly)
}

func (b *Builder) flip(id any, col string, val any, now time.Time, s criteria.Scope) Statement {
	set := map[string]any{col: val}
	if b.updatedAt != "" && b.updatedAt != col {
		set[b.updatedAt] = now
	}
	cols, _ := sortedColumns(set)
	assignments := make([]string, len(cols))
	args := make([]any, 0, len(cols)+2)
	for i, c := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, set[c])
	}
	w := &where{idx: len(cols) + 1, args: args}
	w.eq(b.idColumn, id)
	b.scope(w, s)
	return Statement{
		SQL:  fmt.Sprintf("UPDATE %s SET %s%s", b.table, strings.Join(assignments, ", "), w.sql()),
		Args: w.args,
	}
}

// HardDelete renders a permanent DELETE by id regardless of active status.
func (b *Builder) HardDelete(id any) Statement {
	w := newWhere()
	w.eq(b.idColumn, id)
	return Statement{
		SQL:  fmt.Sprintf("DELETE FROM %s%s", b.table, w.sql()),
		Args: w.args,
	}
}

func sortedColumns(values map[string]any) ([]string, error) {
	cols := make([]string, 0, len(values))
	for c := range values {
		if !criteria.ValidIdentifier(c) {
			return nil, fmt.Errorf("invalid column %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}
