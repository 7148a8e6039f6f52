package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/data/pgxutil"
	"github.com/target/creative-dispatch/internal/domain/model"
	apperrors "github.com/target/creative-dispatch/internal/errors"
)

const insertJobSQL = `
  INSERT INTO jobs (type, status, payload, max_retries, next_run_at, created_at, updated_at)
  VALUES ($1, 'pending', $2, $3, $4, $5, $5)
  RETURNING ` + jobColumns

// claimNextSQL picks the oldest due pending job and flips it to running in one statement.
// SKIP LOCKED lets overlapping invocations pass over a row another transaction is claiming.
const claimNextSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'pending'
      AND (next_run_at IS NULL OR next_run_at <= $1)
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    started_at = $1,
    heartbeat_at = $1,
    claim_token = $2,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.type, j.status, j.payload, j.result, j.progress, j.total, j.retry_count,
    j.max_retries, j.error, j.error_type, j.replay_count, j.created_at, j.updated_at, j.started_at,
    j.finished_at, j.next_run_at, j.last_error_at, j.dead_lettered_at, j.last_replay_at,
    j.claim_token, j.heartbeat_at`

// ownedByClaim matches only the running row stamped by the invocation holding the token.
const ownedByClaim = `status = 'running' AND claim_token IS NOT DISTINCT FROM %s::uuid`

// Create inserts a pending job and notifies listeners on JobEnqueuedChannel.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload := []byte(`{}`)
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	var nextRunAt *time.Time
	if req.RunAt != nil {
		t := req.RunAt.UTC()
		nextRunAt = &t
	}
	maxRetries := req.ResolvedMaxRetries(r.cfg.DefaultMaxRetries)

	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			row := tx.QueryRow(ctx, insertJobSQL, string(req.Type), payload, maxRetries, nextRunAt, r.now())
			j, scanErr := scanJobFromRow(row)
			if scanErr != nil {
				return fmt.Errorf("insert job: %w", apperrors.MapDBError(scanErr))
			}
			if _, notifyErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, JobEnqueuedChannel, j.ID); notifyErr != nil {
				return fmt.Errorf("send job notification: %w", notifyErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically moves the oldest due pending job to running and stamps a fresh claim token.
func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx *sql.Tx) error {
			j, scanErr := scanJobFromRow(tx.QueryRowContext(ctx, claimNextSQL, r.now(), r.newClaimToken()))
			if errors.Is(scanErr, sql.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if scanErr != nil {
				return fmt.Errorf("claim job: %w", scanErr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// transition describes one guarded status change and the event recorded with it.
type transition struct {
	name   string
	id     string
	query  string
	args   []any
	at     time.Time
	event  *model.NewJobEvent
	notify bool
}

// applyTransition runs the guarded UPDATE and, when a row matched, appends the event in the same tx.
// Zero affected rows means the job was no longer in the expected status.
func (r *JobRepo) applyTransition(ctx context.Context, t transition) (bool, error) {
	if strings.TrimSpace(t.id) == "" {
		return false, ErrJobIDRequired
	}

	var applied bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, t.query, t.args...)
			if err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("%s rows affected: %w", t.name, err)
			}
			if ra == 0 {
				return nil
			}
			if t.event != nil {
				ev := *t.event
				if ev.JobID == "" {
					ev.JobID = t.id
				}
				if _, appendErr := insertJobEvent(ctx, tx, ev, t.at); appendErr != nil {
					return fmt.Errorf("%s event: %w", t.name, appendErr)
				}
			}
			if t.notify {
				if _, notifyErr := tx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, JobEnqueuedChannel, t.id); notifyErr != nil {
					return fmt.Errorf("send job notification: %w", notifyErr)
				}
			}
			applied = true
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func ownedBy(placeholder string) string {
	return fmt.Sprintf(ownedByClaim, placeholder)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// MarkCompleted stores the handler result on a running job.
func (r *JobRepo) MarkCompleted(ctx context.Context, p core.CompleteJobParams) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "complete job",
		id:   p.ID,
		query: `
			UPDATE jobs
			SET status = 'completed',
			    result = $2,
			    progress = COALESCE($3, progress),
			    total = COALESCE($4, total),
			    finished_at = $5,
			    updated_at = $5,
			    next_run_at = NULL,
			    claim_token = NULL,
			    heartbeat_at = NULL
			WHERE id = $1 AND ` + ownedBy("$6"),
		args: []any{
			p.ID, nullableJSON(p.Result), nullableInt(p.Progress), nullableInt(p.Total), now,
			nullableString(p.ClaimToken),
		},
		at:    now,
		event: p.Event,
	})
}

// ScheduleRetry returns a running job to pending with a future next_run_at.
func (r *JobRepo) ScheduleRetry(ctx context.Context, p core.RetryJobParams) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "schedule retry",
		id:   p.ID,
		query: `
			UPDATE jobs
			SET status = 'pending',
			    retry_count = retry_count + 1,
			    next_run_at = $2,
			    error = $3,
			    error_type = $4,
			    last_error_at = $5,
			    updated_at = $5,
			    claim_token = NULL,
			    heartbeat_at = NULL
			WHERE id = $1 AND ` + ownedBy("$6"),
		args: []any{
			p.ID, p.NextRunAt.UTC(), p.Error, nullableString(p.ErrorType), now,
			nullableString(p.ClaimToken),
		},
		at:    now,
		event: p.Event,
	})
}

// MoveToDeadLetter parks a running job in the dead status.
func (r *JobRepo) MoveToDeadLetter(ctx context.Context, p core.DeadLetterParams) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "dead-letter job",
		id:   p.ID,
		query: `
			UPDATE jobs
			SET status = 'dead',
			    error = $2,
			    error_type = $3,
			    dead_lettered_at = $4,
			    finished_at = $4,
			    last_error_at = $4,
			    updated_at = $4,
			    claim_token = NULL,
			    heartbeat_at = NULL
			WHERE id = $1 AND ` + ownedBy("$5"),
		args:  []any{p.ID, p.Error, nullableString(p.ErrorType), now, nullableString(p.ClaimToken)},
		at:    now,
		event: p.Event,
	})
}

// MarkFailed terminates a running job that could not be dispatched.
func (r *JobRepo) MarkFailed(ctx context.Context, p core.FailJobParams) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "fail job",
		id:   p.ID,
		query: `
			UPDATE jobs
			SET status = 'failed',
			    error = $2,
			    error_type = $3,
			    finished_at = $4,
			    last_error_at = $4,
			    updated_at = $4,
			    claim_token = NULL,
			    heartbeat_at = NULL
			WHERE id = $1 AND ` + ownedBy("$5"),
		args:  []any{p.ID, p.Error, nullableString(p.ErrorType), now, nullableString(p.ClaimToken)},
		at:    now,
		event: p.Event,
	})
}

// MarkCancelled stamps finished_at on a cancelled job and appends the dispatcher's CANCELLED event.
func (r *JobRepo) MarkCancelled(ctx context.Context, id string, event *model.NewJobEvent) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "mark cancelled",
		id:   id,
		query: `
			UPDATE jobs
			SET finished_at = COALESCE(finished_at, $2),
			    updated_at = $2
			WHERE id = $1 AND status = 'cancelled'`,
		args:  []any{id, now},
		at:    now,
		event: event,
	})
}

// Replay returns a dead or failed job to pending with a fresh retry budget.
func (r *JobRepo) Replay(ctx context.Context, id string, event *model.NewJobEvent) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "replay job",
		id:   id,
		query: `
			UPDATE jobs
			SET status = 'pending',
			    replay_count = replay_count + 1,
			    last_replay_at = $2,
			    retry_count = 0,
			    progress = 0,
			    total = 0,
			    result = NULL,
			    next_run_at = NULL,
			    started_at = NULL,
			    finished_at = NULL,
			    dead_lettered_at = NULL,
			    updated_at = $2
			WHERE id = $1 AND status IN ('dead', 'failed')`,
		args:   []any{id, now},
		at:     now,
		event:  event,
		notify: true,
	})
}

// Cancel moves a pending or running job to cancelled.
func (r *JobRepo) Cancel(ctx context.Context, id string, event *model.NewJobEvent) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "cancel job",
		id:   id,
		query: `
			UPDATE jobs
			SET status = 'cancelled',
			    finished_at = $2,
			    next_run_at = NULL,
			    claim_token = NULL,
			    heartbeat_at = NULL,
			    updated_at = $2
			WHERE id = $1 AND status IN ('pending', 'running')`,
		args:  []any{id, now},
		at:    now,
		event: event,
	})
}

// Release hands an interrupted running job back to pending without spending a retry.
func (r *JobRepo) Release(ctx context.Context, p core.ReleaseJobParams) (bool, error) {
	now := r.now()
	return r.applyTransition(ctx, transition{
		name: "release job",
		id:   p.ID,
		query: `
			UPDATE jobs
			SET status = 'pending',
			    next_run_at = NULL,
			    claim_token = NULL,
			    heartbeat_at = NULL,
			    updated_at = $2
			WHERE id = $1 AND ` + ownedBy("$3"),
		args:   []any{p.ID, now, nullableString(p.ClaimToken)},
		at:     now,
		event:  p.Event,
		notify: true,
	})
}

// Heartbeat refreshes heartbeat_at while the claim is still held. False means the job left running
// or was claimed again under a different token.
func (r *JobRepo) Heartbeat(ctx context.Context, id, claimToken string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrJobIDRequired
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET heartbeat_at = $2
		WHERE id = $1 AND `+ownedBy("$3"),
		id, r.now(), nullableString(claimToken))
	if err != nil {
		return false, fmt.Errorf("heartbeat: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return ra > 0, nil
}

// UpdateProgress records handler progress. A job that already left running, or is now held by
// another claim, is ignored.
func (r *JobRepo) UpdateProgress(ctx context.Context, id, claimToken string, progress, total int) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = $2,
		    total = $3,
		    updated_at = $4
		WHERE id = $1 AND `+ownedBy("$5"),
		id, progress, total, r.now(), nullableString(claimToken)); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}
