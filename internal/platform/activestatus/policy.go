// Package activestatus unifies the three ways legacy tables mark a row as
// live: a deleted_at timestamp, an is_active flag and an active_status flag.
// Each entity uses exactly one of them.
package activestatus

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an active-status representation.
type Kind string

const (
	DeletedAt    Kind = "deleted_at"
	IsActive     Kind = "is_active"
	ActiveStatus Kind = "active_status"
)

// detectionOrder is tried after the preferred kind.
var detectionOrder = []Kind{DeletedAt, IsActive, ActiveStatus}

// Policy is the active-status representation of one entity.
type Policy struct {
	Kind   Kind
	Column string
}

// New returns the policy for kind using its conventional column name.
func New(kind Kind) Policy {
	return Policy{Kind: kind, Column: string(kind)}
}

// Validate checks the kind and column.
func (p Policy) Validate() error {
	switch p.Kind {
	case DeletedAt, IsActive, ActiveStatus:
	default:
		return fmt.Errorf("active status: unknown kind %q", p.Kind)
	}
	if p.Column == "" {
		return fmt.Errorf("active status: %s policy has no column", p.Kind)
	}
	return nil
}

// Clause renders the predicate selecting active (or inactive) rows. idx is the
// next placeholder index; next is the index after any arguments consumed.
func (p Policy) Clause(active bool, idx int) (clause string, args []any, next int) {
	if p.Kind == DeletedAt {
		if active {
			return p.Column + " IS NULL", nil, idx
		}
		return p.Column + " IS NOT NULL", nil, idx
	}
	return fmt.Sprintf("%s = $%d", p.Column, idx), []any{flag(active)}, idx + 1
}

// Deactivate returns the column assignment that soft-deletes a row.
func (p Policy) Deactivate(now time.Time) (column string, value any) {
	if p.Kind == DeletedAt {
		return p.Column, now
	}
	return p.Column, 0
}

// Reactivate returns the column assignment that restores a row.
func (p Policy) Reactivate() (column string, value any) {
	if p.Kind == DeletedAt {
		return p.Column, nil
	}
	return p.Column, 1
}

// Row is the read side of a hydrated row.
type Row interface {
	Get(column string) (any, bool)
}

// IsActive reads only the policy's column. A row missing the column entirely
// is treated as active.
func (p Policy) IsActive(row Row) bool {
	v, ok := row.Get(p.Column)
	if !ok {
		return true
	}
	if p.Kind == DeletedAt {
		return v == nil
	}
	return truthy(v)
}

// Detect picks the representation present in columns, trying preferred first
// and then deleted_at, is_active and active_status.
func Detect(columns []string, preferred Kind) (Policy, error) {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[strings.ToLower(c)] = true
	}
	order := detectionOrder
	if preferred != "" {
		order = append([]Kind{preferred}, detectionOrder...)
	}
	for _, k := range order {
		if have[string(k)] {
			return New(k), nil
		}
	}
	return Policy{}, fmt.Errorf("active status: none of deleted_at, is_active, active_status present")
}

// Columns returns every column name that can carry active status.
func Columns() []string {
	return []string{string(DeletedAt), string(IsActive), string(ActiveStatus)}
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int:
		return t != 0
	case int8:
		return t != 0
	case int16:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case uint8:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "t", "true", "y", "yes", "active":
			return true
		}
		return false
	case []byte:
		return truthy(string(t))
	}
	return false
}
