package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/creative-dispatch/internal/data/database"
	"github.com/target/creative-dispatch/internal/data/pgxutil"
	"github.com/target/creative-dispatch/internal/domain/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

var jobColumnList = []string{
	"id", "type", "status", "payload", "result", "progress", "total",
	"retry_count", "max_retries", "error", "error_type", "replay_count",
	"created_at", "updated_at", "started_at", "finished_at", "next_run_at",
	"last_error_at", "dead_lettered_at", "last_replay_at", "claim_token",
	"heartbeat_at",
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrJobIDRequired
	}
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetStatus reads only the status column; the dispatcher uses it to observe cancellation.
func (r *JobRepo) GetStatus(ctx context.Context, id string) (model.JobStatus, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrJobIDRequired
	}
	var status model.JobStatus
	err := r.DB.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return status, nil
}

// List returns jobs newest first, optionally filtered by status and type.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	qopts := []database.ListQueryOption{
		database.WithColumns(jobColumnList...),
		database.WithOrderBy("created_at", "DESC"),
		database.WithOrderBy("id", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(offset),
	}
	if opts.Status != nil {
		if !opts.Status.Valid() {
			return nil, fmt.Errorf("invalid job status: %s", *opts.Status)
		}
		qopts = append(qopts, database.WithCondition(database.WhereCond("status", database.Equal, string(*opts.Status))))
	}
	if opts.Type != nil {
		qopts = append(qopts, database.WithCondition(database.WhereCond("type", database.Equal, string(*opts.Type))))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("jobs", qopts...))

	var result []*model.Job
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Job])
		if err != nil {
			return fmt.Errorf("collect jobs: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Stats returns job counts per status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'dead')      AS dead,
    count(*) FILTER (WHERE status = 'cancelled') AS cancelled
  FROM jobs
  `).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
		&s.Dead,
		&s.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// CountDeadLetteredSince counts dead jobs whose dead_lettered_at falls at or after since.
func (r *JobRepo) CountDeadLetteredSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM jobs
		WHERE status = 'dead' AND dead_lettered_at >= $1
	`, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead-lettered jobs: %w", err)
	}
	return n, nil
}

// ListStaleRunning returns running jobs whose last heartbeat (or claim time, if none was recorded)
// precedes lastSeenBefore, oldest first.
func (r *JobRepo) ListStaleRunning(ctx context.Context, lastSeenBefore time.Time, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE status = 'running' AND COALESCE(heartbeat_at, started_at) < $1
		ORDER BY COALESCE(heartbeat_at, started_at) ASC, id ASC
		LIMIT $2
	`, lastSeenBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale running jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan stale running jobs: %w", err)
	}
	return jobs, nil
}

// WaitForEnqueue blocks until a job is enqueued or replayed, or ctx ends.
func (r *JobRepo) WaitForEnqueue(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	quoted := pgx.Identifier{JobEnqueuedChannel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", JobEnqueuedChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.WithoutCancel(ctx), "UNLISTEN "+quoted); execErr != nil {
			r.logger.DebugContext(ctx, "unlisten failed", "channel", JobEnqueuedChannel, "error", execErr)
		}
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(interface{ Conn() *pgx.Conn })
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, waitErr := std.Conn().WaitForNotification(ctx)
		return waitErr
	})
}
