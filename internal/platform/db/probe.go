package db

import (
	"context"
	"fmt"
	"strings"
)

// TableColumns returns the lower-cased column names of table in ordinal
// order. A table that does not exist yields an empty slice.
func TableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	const query = `SELECT column_name FROM information_schema.columns
		WHERE table_name = $1 AND table_schema = ANY(current_schemas(false))
		ORDER BY ordinal_position`

	rows, err := q.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("probe columns of %s: %w", table, err)
	}
	cols := make([]string, 0, len(rows))
	for _, r := range rows {
		v, _ := r.Get("column_name")
		switch name := v.(type) {
		case string:
			cols = append(cols, strings.ToLower(name))
		case []byte:
			cols = append(cols, strings.ToLower(string(name)))
		}
	}
	return cols, nil
}
