package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/swander00/real-estate-backend/internal/model"
)

// Upserter performs an idempotent batched write keyed by a conflict
// column set. Implementations must treat an empty rows slice as a
// clean no-op and must not guarantee any ordering within the batch.
type Upserter interface {
	Upsert(ctx context.Context, table string, rows []model.Row, conflictKey []string) (int64, error)
}

// PoolUpserter is the production Upserter, backed by a pgxpool.Pool.
type PoolUpserter struct {
	Pool *pgxpool.Pool
}

var _ Upserter = (*PoolUpserter)(nil)

// Upsert builds and executes a single multi-row
// "INSERT ... ON CONFLICT ... DO UPDATE" statement for rows, matching
// the teacher's single-round-trip upsert in sink.go, generalized from
// one row at a time to a full batch.
func (u *PoolUpserter) Upsert(
	ctx context.Context, table string, rows []model.Row, conflictKey []string,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := unionColumns(rows)

	var stmt strings.Builder
	fmt.Fprintf(&stmt, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				stmt.WriteString(", ")
			}
			fmt.Fprintf(&stmt, "$%d", placeholder)
			placeholder++
			args = append(args, row[col])
		}
		stmt.WriteByte(')')
	}

	fmt.Fprintf(&stmt, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(conflictKey, ", "))
	isConflictCol := make(map[string]bool, len(conflictKey))
	for _, c := range conflictKey {
		isConflictCol[c] = true
	}
	first := true
	for _, col := range columns {
		if isConflictCol[col] {
			continue
		}
		if !first {
			stmt.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&stmt, "%s = EXCLUDED.%s", col, col)
	}
	if first {
		// Every column is part of the conflict key; there's nothing
		// to update, so fall back to a no-op update on the first key
		// column to keep the statement valid.
		fmt.Fprintf(&stmt, "%s = EXCLUDED.%s", conflictKey[0], conflictKey[0])
	}

	log.WithFields(log.Fields{
		"table": table,
		"rows":  len(rows),
	}).Debug("store: upserting batch")

	tag, err := u.Pool.Exec(ctx, stmt.String(), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "store: upsert into %s", table)
	}
	return tag.RowsAffected(), nil
}

// unionColumns collects the set of columns present across rows, sorted
// for a deterministic statement (useful for tests and logs); rows
// missing a column contribute nil for that position.
func unionColumns(rows []model.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for col := range row {
			seen[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for col := range seen {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
