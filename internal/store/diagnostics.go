package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
)

// CoreTables lists the tables probed by diagnostics.
var CoreTables = []string{eventsTable, variantsTable, experimentsTable, assignmentsTable}

// Ping runs SELECT 1 and returns the scanned value.
func (r *Repository) Ping(ctx context.Context) (int, error) {
	var v int
	if err := r.queryRow(ctx, r.sb.Select("1"), &v); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return v, nil
}

// CountRows returns the row count of one of CoreTables.
func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	if !slices.Contains(CoreTables, table) {
		return 0, fmt.Errorf("count rows: table %q is not probeable", table)
	}

	qb := r.sb.Select("COUNT(*)").From(pgx.Identifier{table}.Sanitize())

	var n int64
	if err := r.queryRow(ctx, qb, &n); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return n, nil
}
