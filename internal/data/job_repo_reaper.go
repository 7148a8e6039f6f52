package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations, used with the two-arg
// pg_try_advisory_xact_lock(major, minor).
const (
	advisoryLockReaperMajor  = 1000
	advisoryLockReaperDelete = 2
)

// DeleteOldJobs deletes terminal jobs in one of params.Statuses whose finished_at
// (or updated_at when unset) is older than MaxAge. At most BatchSize rows are removed
// per call; a concurrent reaper holding the lock makes this call a no-op.
// job_events rows are not touched.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if len(params.Statuses) == 0 {
		return 0, errors.New("at least one status is required")
	}
	statuses := make([]string, 0, len(params.Statuses))
	for _, s := range params.Statuses {
		if !s.Valid() || !s.Terminal() {
			return 0, fmt.Errorf("invalid job status for deletion: %s", s)
		}
		statuses = append(statuses, string(s))
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := pgxutil.TryAdvisoryXactLock(ctx, tx, advisoryLockReaperMajor, advisoryLockReaperDelete)
			if err != nil {
				return err
			}
			if !locked {
				return nil
			}

			cutoff := r.now().Add(-params.MaxAge)
			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = ANY($1)
					  AND COALESCE(finished_at, updated_at) < $2
					ORDER BY COALESCE(finished_at, updated_at)
					LIMIT $3
				)
			`, statuses, cutoff, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
