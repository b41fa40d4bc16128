package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/criteria"
	"github.com/ehr/recordstore/internal/platform/db"
	"github.com/ehr/recordstore/internal/platform/hydrate"
	"github.com/ehr/recordstore/internal/platform/phi"
	"github.com/ehr/recordstore/internal/platform/query"
	"github.com/ehr/recordstore/internal/platform/sequence"
	"github.com/ehr/recordstore/internal/platform/storeerr"
	"github.com/ehr/recordstore/internal/platform/telemetry"
	"github.com/ehr/recordstore/pkg/pagination"
)

var (
	// ErrForeignCriteria is returned when criteria or an order were built
	// against another entity's allowlist.
	ErrForeignCriteria = errors.New("criteria built for another entity")
	// ErrNoSequence is returned by Create when a record number is needed and
	// no generator is configured.
	ErrNoSequence = errors.New("no record number generator configured")
)

// Data holds logical field values for Create and Update.
type Data map[string]any

// Mapper converts a hydrated record into an entity.
type Mapper[T any] func(r *hydrate.Record) (*T, error)

// Options configures a Repository.
type Options struct {
	Logger          zerolog.Logger
	Instrumentation *telemetry.Instrumentation
	DatePolicy      hydrate.DatePolicy
	Limits          pagination.Limits
	Sequence        sequence.Generator
	Now             func() time.Time
	// Registry classifies PHI fields. Nil uses phi.DefaultRegistry.
	Registry *phi.Registry
	// Schema binds the repository to a detected physical table. Nil uses
	// the definition's preferred table and policy as declared.
	Schema *Schema
}

// Repository runs criteria-based reads and single-statement mutations for
// one entity.
type Repository[T any] struct {
	conn     db.Conn
	def      Definition
	mapper   Mapper[T]
	mapping  *hydrate.Mapping
	hydrator *hydrate.Hydrator
	builder  *query.Builder
	allow    *criteria.Allowlist
	active   activestatus.Policy
	idColumn string
	numberer *sequence.Numberer
	inst     *telemetry.Instrumentation
	logger   zerolog.Logger
	now      func() time.Time
}

// New builds a repository for def on conn.
func New[T any](conn db.Conn, def Definition, mapper Mapper[T], opts Options) (*Repository[T], error) {
	if conn == nil {
		return nil, fmt.Errorf("%s repository: nil connection", def.Entity)
	}
	if mapper == nil {
		return nil, fmt.Errorf("%s repository: nil mapper", def.Entity)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	registry := opts.Registry
	if registry == nil {
		registry = phi.DefaultRegistry
	}
	for _, f := range registry.EncryptedFields(def.Entity) {
		if _, ok := def.phiField(f); !ok {
			return nil, fmt.Errorf("%s repository: field %q is classified as encrypted PHI but has no sealer", def.Entity, f)
		}
	}
	mapping, err := def.Mapping()
	if err != nil {
		return nil, err
	}

	table, active := def.Table(), def.Active
	if s := opts.Schema; s != nil {
		table, active = s.Table, s.Active
		if mapping, err = mapping.Bind(s.Columns); err != nil {
			return nil, err
		}
	}

	queryable := make(map[string]string)
	for _, f := range def.Fields {
		if f.Query {
			col, _ := mapping.WriteColumn(f.Name)
			queryable[f.Name] = col
		}
	}
	allow, err := criteria.NewAllowlist(def.Entity, queryable, def.Orderable)
	if err != nil {
		return nil, err
	}

	idColumn, _ := mapping.WriteColumn(def.IDField)
	updatedAt := ""
	if def.UpdatedAtField != "" {
		updatedAt, _ = mapping.WriteColumn(def.UpdatedAtField)
	}
	builder, err := query.New(query.Config{
		Table:           table,
		IDColumn:        idColumn,
		Active:          active,
		DefaultOrder:    def.DefaultOrder,
		UpdatedAtColumn: updatedAt,
		Limits:          opts.Limits,
	})
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger.With().Str("entity", def.Entity).Str("table", table).Logger()

	// A typed nil *Metrics must not become a non-nil Observer.
	var observer hydrate.Observer
	if m := opts.Instrumentation.Metrics(); m != nil {
		observer = m
	}

	r := &Repository[T]{
		conn:    conn,
		def:     def,
		mapper:  mapper,
		mapping: mapping,
		hydrator: hydrate.New(mapping, hydrate.Options{
			DatePolicy: opts.DatePolicy,
			Logger:     logger,
			Observer:   observer,
			Now:        now,
			Active:     &active,
		}),
		builder:  builder,
		allow:    allow,
		active:   active,
		idColumn: idColumn,
		inst:     opts.Instrumentation,
		logger:   logger,
		now:      now,
	}
	if rn := def.RecordNumber; rn != nil && opts.Sequence != nil {
		r.numberer = sequence.NewNumberer(opts.Sequence, rn.Counter, rn.Prefix, rn.Width)
	}
	return r, nil
}

// Definition returns the entity definition.
func (r *Repository[T]) Definition() Definition { return r.def }

// Table returns the physical table the repository reads and writes.
func (r *Repository[T]) Table() string { return r.builder.Table() }

// ActivePolicy returns the active-status representation in use.
func (r *Repository[T]) ActivePolicy() activestatus.Policy { return r.active }

// Allowlist returns the queryable and orderable fields of the entity.
func (r *Repository[T]) Allowlist() *criteria.Allowlist { return r.allow }

// Criteria returns an empty criteria set for this entity.
func (r *Repository[T]) Criteria() *criteria.Criteria { return criteria.New(r.allow) }

// Order returns an empty order specification for this entity.
func (r *Repository[T]) Order() *criteria.OrderSpec { return criteria.NewOrder(r.allow) }

// Column returns the physical column field is written to.
func (r *Repository[T]) Column(field string) (string, bool) { return r.mapping.WriteColumn(field) }

// FindByID returns the entity with id, or nil when no row matches. The
// default scope is active rows only.
func (r *Repository[T]) FindByID(ctx context.Context, id any, scope ...criteria.Scope) (_ *T, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "find_by_id")
	defer func() { op.End(err) }()

	s := criteria.ActiveOnly
	if len(scope) > 0 {
		s = scope[0]
	}
	return r.findByID(ctx, id, s)
}

func (r *Repository[T]) findByID(ctx context.Context, id any, s criteria.Scope) (*T, error) {
	row, ok, err := r.loadRow(ctx, id, s)
	if err != nil || !ok {
		return nil, err
	}
	return r.hydrate(row)
}

func (r *Repository[T]) loadRow(ctx context.Context, id any, s criteria.Scope) (db.Row, bool, error) {
	key, err := criteria.Normalize(id)
	if err != nil {
		return db.Row{}, false, err
	}
	stmt := r.builder.ByID(key, s)
	rows, err := db.Use(ctx, r.conn).Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return db.Row{}, false, db.Classify(r.def.Entity+" find by id", err)
	}
	if len(rows) == 0 {
		return db.Row{}, false, nil
	}
	return rows[0], true, nil
}

// FindAll returns the entities matching c in order o, paged by p. Nil
// criteria select every active row; a nil order uses the default order.
func (r *Repository[T]) FindAll(ctx context.Context, c *criteria.Criteria, o *criteria.OrderSpec, p pagination.Page) (_ []*T, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "find_all",
		attribute.Int("recordstore.predicates", c.Len()))
	defer func() { op.End(err) }()
	return r.findAll(ctx, c, o, p)
}

func (r *Repository[T]) findAll(ctx context.Context, c *criteria.Criteria, o *criteria.OrderSpec, p pagination.Page) ([]*T, error) {
	if err := r.owns(c, o); err != nil {
		return nil, err
	}
	stmt, err := r.builder.Select(c, o, p)
	if err != nil {
		return nil, err
	}
	rows, err := db.Use(ctx, r.conn).Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, db.Classify(r.def.Entity+" find all", err)
	}
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		t, err := r.hydrate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// FindOneBy returns the first entity matching c in default order, or nil.
func (r *Repository[T]) FindOneBy(ctx context.Context, c *criteria.Criteria) (_ *T, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "find_one_by")
	defer func() { op.End(err) }()

	items, err := r.findAll(ctx, c, nil, pagination.Page{Limit: 1})
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Count returns the number of rows matching c.
func (r *Repository[T]) Count(ctx context.Context, c *criteria.Criteria) (_ int64, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "count")
	defer func() { op.End(err) }()
	return r.count(ctx, c)
}

func (r *Repository[T]) count(ctx context.Context, c *criteria.Criteria) (int64, error) {
	if err := r.owns(c, nil); err != nil {
		return 0, err
	}
	stmt, err := r.builder.Count(c)
	if err != nil {
		return 0, err
	}
	rows, err := db.Use(ctx, r.conn).Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, db.Classify(r.def.Entity+" count", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, _ := rows[0].Get("count")
	return countValue(v)
}

// FindPage returns one page of matching entities with the total count.
func (r *Repository[T]) FindPage(ctx context.Context, c *criteria.Criteria, o *criteria.OrderSpec, p pagination.Page) (_ *pagination.Result[*T], err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "find_page")
	defer func() { op.End(err) }()

	if err := r.owns(c, o); err != nil {
		return nil, err
	}
	if err := o.Err(); err != nil {
		return nil, err
	}

	total, err := r.count(ctx, c)
	if err != nil {
		return nil, err
	}
	items, err := r.findAll(ctx, c, o, p)
	if err != nil {
		return nil, err
	}
	return pagination.NewResult(items, total, r.builder.Limits().Normalize(p)), nil
}

// Exists reports whether an active row with id exists.
func (r *Repository[T]) Exists(ctx context.Context, id any) (_ bool, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "exists")
	defer func() { op.End(err) }()

	key, err := criteria.Normalize(id)
	if err != nil {
		return false, err
	}
	stmt := r.builder.Exists(key, criteria.ActiveOnly)
	rows, err := db.Use(ctx, r.conn).Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return false, db.Classify(r.def.Entity+" exists", err)
	}
	return len(rows) > 0, nil
}

// Create validates data, fills generated fields, seals PHI, inserts one row
// and returns it as re-read from storage.
func (r *Repository[T]) Create(ctx context.Context, data Data) (_ *T, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "create")
	defer func() { op.End(err) }()

	in := make(Data, len(data)+4)
	for name, v := range data {
		f, ok := r.def.Field(name)
		if !ok || f.Internal {
			return nil, storeerr.UnknownField(r.def.Entity, "write", name)
		}
		in[name] = v
	}
	for _, name := range r.def.Required {
		if v, ok := in[name]; !ok || v == nil || v == "" {
			return nil, storeerr.InvalidFormat(r.def.Entity, "field %s is required", name)
		}
	}
	if err := r.seal(in); err != nil {
		return nil, err
	}

	if _, ok := in[r.def.IDField]; !ok && r.def.IDStrategy == GeneratedUUID {
		in[r.def.IDField] = uuid.NewString()
	}
	if rn := r.def.RecordNumber; rn != nil {
		if v, ok := in[rn.Field]; !ok || v == nil || v == "" {
			if r.numberer == nil {
				return nil, fmt.Errorf("%s create: %w", r.def.Entity, ErrNoSequence)
			}
			num, err := r.numberer.Next(ctx)
			if err != nil {
				return nil, fmt.Errorf("%s create: %w", r.def.Entity, err)
			}
			in[rn.Field] = num
		}
	}
	now := r.now()
	for _, name := range []string{r.def.CreatedAtField, r.def.UpdatedAtField} {
		if name != "" {
			in[name] = now
		}
	}

	values, err := r.mapping.Dehydrate(in)
	if err != nil {
		return nil, err
	}
	if col, v := r.active.Reactivate(); v != nil {
		values[col] = v
	}

	returning := ""
	if r.def.IDStrategy == DatabaseAssigned {
		returning = r.idColumn
	}
	stmt, err := r.builder.Insert(values, returning)
	if err != nil {
		return nil, err
	}

	q := db.Use(ctx, r.conn)
	id := in[r.def.IDField]
	if returning != "" {
		rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, db.Classify(r.def.Entity+" create", err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("%s create: insert returned no id", r.def.Entity)
		}
		id, _ = rows[0].Get(returning)
	} else if _, err := q.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
		return nil, db.Classify(r.def.Entity+" create", err)
	}

	r.logger.Debug().Interface("id", id).Msg("record created")

	t, err := r.findByID(ctx, id, criteria.IncludeInactive)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, storeerr.NotFound(r.def.Entity, id)
	}
	return t, nil
}

// Update applies the mutable fields of data to the active row with id and
// returns the re-read entity. Unchanged values are not written; the
// updated_at field is always touched.
func (r *Repository[T]) Update(ctx context.Context, id any, data Data) (_ *T, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "update")
	defer func() { op.End(err) }()

	in := make(Data, len(data)+2)
	for name, v := range data {
		f, ok := r.def.Field(name)
		if !ok || f.Internal {
			return nil, storeerr.UnknownField(r.def.Entity, "write", name)
		}
		if !f.Mutable {
			return nil, storeerr.UnknownField(r.def.Entity, "update", name)
		}
		in[name] = v
	}
	if err := r.seal(in); err != nil {
		return nil, err
	}

	row, ok, err := r.loadRow(ctx, id, criteria.ActiveOnly)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storeerr.NotFound(r.def.Entity, id)
	}

	values, err := r.mapping.Dehydrate(in)
	if err != nil {
		return nil, err
	}
	set := hydrate.Diff(row, values)
	if r.def.UpdatedAtField != "" {
		col, _ := r.mapping.WriteColumn(r.def.UpdatedAtField)
		set[col] = r.now()
	}
	if len(set) == 0 {
		return r.hydrate(row)
	}

	key, _ := criteria.Normalize(id)
	stmt, err := r.builder.Update(key, set)
	if err != nil {
		return nil, err
	}
	n, err := db.Use(ctx, r.conn).Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, db.Classify(r.def.Entity+" update", err)
	}
	if n == 0 {
		return nil, storeerr.NotFound(r.def.Entity, id)
	}

	t, err := r.findByID(ctx, id, criteria.IncludeInactive)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, storeerr.NotFound(r.def.Entity, id)
	}
	return t, nil
}

// Delete soft-deletes the active row with id. It returns false when no
// active row matched.
func (r *Repository[T]) Delete(ctx context.Context, id any) (_ bool, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "delete")
	defer func() { op.End(err) }()

	key, err := criteria.Normalize(id)
	if err != nil {
		return false, err
	}
	ok, err := r.exec(ctx, "delete", r.builder.Deactivate(key, r.now()))
	if ok {
		r.logger.Info().Interface("id", key).Msg("record deactivated")
	}
	return ok, err
}

// Restore reactivates the soft-deleted row with id. It returns false when no
// inactive row matched.
func (r *Repository[T]) Restore(ctx context.Context, id any) (_ bool, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "restore")
	defer func() { op.End(err) }()

	key, err := criteria.Normalize(id)
	if err != nil {
		return false, err
	}
	ok, err := r.exec(ctx, "restore", r.builder.Reactivate(key, r.now()))
	if ok {
		r.logger.Info().Interface("id", key).Msg("record restored")
	}
	return ok, err
}

// HardDelete permanently removes the row with id regardless of its active
// status. Only erasure requests should reach it.
func (r *Repository[T]) HardDelete(ctx context.Context, id any) (_ bool, err error) {
	ctx, op := r.inst.Start(ctx, r.def.Entity, "hard_delete")
	defer func() { op.End(err) }()

	key, err := criteria.Normalize(id)
	if err != nil {
		return false, err
	}
	ok, err := r.exec(ctx, "hard delete", r.builder.HardDelete(key))
	if ok {
		actor, _ := phi.ActorFromContext(ctx)
		r.logger.Warn().
			Str("event", "erasure").
			Interface("id", key).
			Str("actor_id", actor.ID).
			Msg("record permanently deleted")
	}
	return ok, err
}

func (r *Repository[T]) exec(ctx context.Context, opName string, stmt query.Statement) (bool, error) {
	n, err := db.Use(ctx, r.conn).Exec(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return false, db.Classify(r.def.Entity+" "+opName, err)
	}
	return n > 0, nil
}

// BeginTransaction opens a transaction and returns a context carrying it.
// Operations given that context run inside the transaction. Nested begins
// fail with db.ErrNestedTransaction.
func (r *Repository[T]) BeginTransaction(ctx context.Context) (context.Context, error) {
	return db.Begin(ctx, r.conn)
}

// Commit commits the transaction carried by ctx.
func (r *Repository[T]) Commit(ctx context.Context) error { return db.Commit(ctx) }

// Rollback aborts the transaction carried by ctx.
func (r *Repository[T]) Rollback(ctx context.Context) error { return db.Rollback(ctx) }

func (r *Repository[T]) hydrate(row db.Row) (*T, error) {
	rec := r.hydrator.Record(row)
	t, err := r.mapper(rec)
	if err == nil {
		err = rec.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("%s hydrate: %w", r.def.Entity, err)
	}
	return t, nil
}

func (r *Repository[T]) owns(c *criteria.Criteria, o *criteria.OrderSpec) error {
	if a := c.Allowlist(); a != nil && a != r.allow {
		return fmt.Errorf("%s: %w (%s)", r.def.Entity, ErrForeignCriteria, a.Entity())
	}
	if a := o.Allowlist(); a != nil && a != r.allow {
		return fmt.Errorf("%s order: %w (%s)", r.def.Entity, ErrForeignCriteria, a.Entity())
	}
	return nil
}

// seal replaces PHI values in data by their envelopes and fills the clear
// last-four side field.
func (r *Repository[T]) seal(data Data) error {
	for _, p := range r.def.PHI {
		v, ok := data[p.Field]
		if !ok {
			continue
		}
		var sealed SealedValue
		switch t := v.(type) {
		case nil:
			data[p.LastFourField] = nil
			continue
		case string:
			s, err := p.Seal(t)
			if err != nil {
				return err
			}
			sealed = s
		case SealedValue:
			sealed = t
		default:
			return storeerr.InvalidFormat(r.def.Entity, "field %s: unsupported PHI value of type %T", p.Field, v)
		}
		data[p.Field] = sealed.Envelope()
		data[p.LastFourField] = sealed.LastFour()
	}
	return nil
}

func countValue(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("count: unexpected value of type %T", v)
	}
}
