package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/swander00/real-estate-backend/internal/model"
)

// CheckpointStore reads and writes the per-resource high-water mark
// used to anchor the next incremental run.
type CheckpointStore interface {
	Get(ctx context.Context, resource model.Resource) (time.Time, bool, error)
	Set(ctx context.Context, resource model.Resource, ts time.Time) error
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS sync_log (
	resourcetype TEXT PRIMARY KEY,
	lastprocessedtimestamp TIMESTAMPTZ NOT NULL,
	updatedat TIMESTAMPTZ NOT NULL
)`

const checkpointQuery = `SELECT lastprocessedtimestamp FROM sync_log WHERE resourcetype = $1`

const checkpointWrite = `
INSERT INTO sync_log (resourcetype, lastprocessedtimestamp, updatedat)
VALUES ($1, $2, now())
ON CONFLICT (resourcetype) DO UPDATE
SET lastprocessedtimestamp = EXCLUDED.lastprocessedtimestamp, updatedat = now()`

// PoolCheckpointStore is the production CheckpointStore, backed by a
// pgxpool.Pool. Grounded on resolved_table.go's resolved-timestamp
// table, with the composite (endpoint, nanos, logical) key collapsed
// to a single (resource, timestamp) pair per spec.md's data model.
type PoolCheckpointStore struct {
	Pool *pgxpool.Pool
}

var _ CheckpointStore = (*PoolCheckpointStore)(nil)

// EnsureSchema creates the sync_log table if it does not already exist.
func (s *PoolCheckpointStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, checkpointSchema)
	return errors.Wrap(err, "store: create sync_log table")
}

// Get returns the last-processed timestamp for resource, or ok=false
// if no checkpoint has ever been recorded.
func (s *PoolCheckpointStore) Get(
	ctx context.Context, resource model.Resource,
) (time.Time, bool, error) {
	var ts time.Time
	err := s.Pool.QueryRow(ctx, checkpointQuery, string(resource)).Scan(&ts)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return time.Time{}, false, nil
	case err != nil:
		return time.Time{}, false, errors.Wrap(err, "store: read checkpoint")
	default:
		return ts, true, nil
	}
}

// Set upserts the checkpoint row for resource. Per spec.md §4.C, an
// empty (zero) timestamp is a no-op: a run that fetched no records
// must never clobber a previously-recorded checkpoint.
func (s *PoolCheckpointStore) Set(
	ctx context.Context, resource model.Resource, ts time.Time,
) error {
	if ts.IsZero() {
		return nil
	}
	_, err := s.Pool.Exec(ctx, checkpointWrite, string(resource), ts)
	return errors.Wrap(err, "store: write checkpoint")
}
