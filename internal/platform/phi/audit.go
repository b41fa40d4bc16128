package phi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Access actions recorded for PHI envelopes.
const (
	ActionDecrypt = "decrypt"
	ActionCompare = "compare"
)

// Actor identifies who is accessing PHI.
type Actor struct {
	ID   string
	Role string
}

type actorKey struct{}

// WithActor attaches the accessing actor to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor attached to ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// AccessEvent is one audited access to an encrypted PHI value.
type AccessEvent struct {
	Entity     string
	RecordID   string
	Field      string
	Action     string
	Reason     string
	Actor      Actor
	AccessedAt time.Time
}

// Auditor records PHI access. An error from RecordAccess must abort the access.
type Auditor interface {
	RecordAccess(ctx context.Context, event AccessEvent) error
}

// LogAuditor writes access events to a zerolog logger.
type LogAuditor struct {
	logger zerolog.Logger
}

// NewLogAuditor creates an auditor that logs every access as a security event.
func NewLogAuditor(logger zerolog.Logger) *LogAuditor {
	return &LogAuditor{logger: logger}
}

// RecordAccess implements Auditor.
func (a *LogAuditor) RecordAccess(_ context.Context, e AccessEvent) error {
	a.logger.Info().
		Str("event", "phi_access").
		Str("entity", e.Entity).
		Str("record_id", e.RecordID).
		Str("field", e.Field).
		Str("action", e.Action).
		Str("reason", e.Reason).
		Str("actor_id", e.Actor.ID).
		Str("actor_role", e.Actor.Role).
		Time("accessed_at", e.AccessedAt).
		Msg("PHI accessed")
	return nil
}

// Execer is the subset of a storage connection the SQL auditor needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// SQLAuditor persists access events to the phi_access_log table.
type SQLAuditor struct {
	conn Execer
}

// NewSQLAuditor creates an auditor backed by conn.
func NewSQLAuditor(conn Execer) *SQLAuditor {
	return &SQLAuditor{conn: conn}
}

// RecordAccess implements Auditor.
func (a *SQLAuditor) RecordAccess(ctx context.Context, e AccessEvent) error {
	const query = `INSERT INTO phi_access_log
		(entity, record_id, field, action, reason, actor_id, actor_role, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := a.conn.Exec(ctx, query,
		e.Entity, e.RecordID, e.Field, e.Action, e.Reason, e.Actor.ID, e.Actor.Role, e.AccessedAt,
	); err != nil {
		return fmt.Errorf("record PHI access: %w", err)
	}
	return nil
}

// MultiAuditor fans an event out to several auditors, stopping at the first error.
type MultiAuditor []Auditor

// RecordAccess implements Auditor.
func (m MultiAuditor) RecordAccess(ctx context.Context, e AccessEvent) error {
	for _, a := range m {
		if err := a.RecordAccess(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
