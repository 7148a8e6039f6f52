package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/creative-dispatch/internal/domain/model"
	apperrors "github.com/target/creative-dispatch/internal/errors"
)

// JobEventRepo is the append-only Job Event Log. The table rejects UPDATE and DELETE,
// so this type only ever inserts and reads.
type JobEventRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobEventRepo creates a JobEventRepo sharing the job repository's configuration.
func NewJobEventRepo(db *sql.DB, cfg RepoConfig) *JobEventRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobEventRepo{DB: db, timeProvider: tp, logger: logger.With("component", "job_event_repo")}
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const insertJobEventSQL = `
	INSERT INTO job_events (job_id, type, message, data, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`

func insertJobEvent(ctx context.Context, q rowQueryer, ev model.NewJobEvent, at time.Time) (*model.JobEvent, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	data, err := ev.EncodeData()
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}

	out := &model.JobEvent{
		JobID:     ev.JobID,
		Type:      ev.Type,
		Message:   ev.MessagePtr(),
		Data:      data,
		CreatedAt: at.UTC(),
	}
	var msg sql.NullString
	if out.Message != nil {
		msg = sql.NullString{String: *out.Message, Valid: true}
	}
	if err := q.QueryRowContext(ctx, insertJobEventSQL,
		ev.JobID, string(ev.Type), msg, nullableJSON(data), out.CreatedAt,
	).Scan(&out.ID); err != nil {
		return nil, fmt.Errorf("insert job event: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// Append writes one event outside any transition, typically a handler-reported event.
func (r *JobEventRepo) Append(ctx context.Context, ev model.NewJobEvent) (*model.JobEvent, error) {
	return insertJobEvent(ctx, r.DB, ev, r.timeProvider.Now())
}

// ListByJob returns a job's timeline ordered by created_at then id.
func (r *JobEventRepo) ListByJob(ctx context.Context, opts model.JobEventListOptions) ([]*model.JobEvent, error) {
	if opts.JobID == "" {
		return nil, ErrJobIDRequired
	}
	limit, offset := clampPage(opts.Limit, opts.Offset)

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, job_id, type, message, data, created_at
		FROM job_events
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, opts.JobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.JobEvent
	for rows.Next() {
		var (
			ev   model.JobEvent
			msg  sql.NullString
			data []byte
		)
		if scanErr := rows.Scan(&ev.ID, &ev.JobID, &ev.Type, &msg, &data, &ev.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("scan job event: %w", scanErr)
		}
		ev.Message = cloneNullableString(msg)
		if len(data) > 0 {
			ev.Data = append([]byte(nil), data...)
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job events: %w", err)
	}
	return out, nil
}
