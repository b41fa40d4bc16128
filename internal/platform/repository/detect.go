package repository

import (
	"context"
	"fmt"

	"github.com/ehr/recordstore/internal/platform/activestatus"
	"github.com/ehr/recordstore/internal/platform/db"
)

// Schema is the physical shape an entity was found in.
type Schema struct {
	Table   string
	Columns []string
	Active  activestatus.Policy
	// MissingOptional lists optional fields with no column in the table.
	// They hydrate to their defaults and cannot be written.
	MissingOptional []string
}

// Detect probes the candidate tables of def in order and binds the first
// that exists. It picks the active-status representation and fails when a
// required field has no column.
func Detect(ctx context.Context, q db.Querier, def Definition) (*Schema, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	mapping, err := def.Mapping()
	if err != nil {
		return nil, err
	}
	for _, table := range def.Tables {
		cols, err := db.TableColumns(ctx, q, table)
		if err != nil {
			return nil, db.Classify(def.Entity+" detect", err)
		}
		if len(cols) == 0 {
			continue
		}
		active, err := activestatus.Detect(cols, def.Active.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s table %s: %w", def.Entity, table, err)
		}
		if _, err := mapping.Bind(cols); err != nil {
			return nil, fmt.Errorf("%s table %s: %w", def.Entity, table, err)
		}
		_, optional := mapping.Missing(cols)
		return &Schema{Table: table, Columns: cols, Active: active, MissingOptional: optional}, nil
	}
	return nil, fmt.Errorf("%s: none of the tables %v exist", def.Entity, def.Tables)
}
