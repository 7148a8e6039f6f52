package data

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// JobEnqueuedChannel is the LISTEN/NOTIFY channel signalled whenever a job becomes pending.
const JobEnqueuedChannel = "job_enqueued"

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// DefaultMaxRetries applies when a create request leaves MaxRetries unset.
	DefaultMaxRetries int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
	// ClaimTokens mints the ownership token stamped by ClaimNext. Defaults to random UUIDs.
	ClaimTokens func() string
}

// JobRepo is the Postgres-backed Job Store.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
	tokens       func() string
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = model.DefaultMaxRetries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := cfg.ClaimTokens
	if tokens == nil {
		tokens = uuid.NewString
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
		tokens:       tokens,
	}
}

func (r *JobRepo) now() time.Time {
	return r.timeProvider.Now().UTC()
}

func (r *JobRepo) newClaimToken() string {
	return r.tokens()
}

const jobColumns = `
  id,
  type,
  status,
  payload,
  result,
  progress,
  total,
  retry_count,
  max_retries,
  error,
  error_type,
  replay_count,
  created_at,
  updated_at,
  started_at,
  finished_at,
  next_run_at,
  last_error_at,
  dead_lettered_at,
  last_replay_at,
  claim_token,
  heartbeat_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, result                               []byte
	errMsg, errType                               sql.NullString
	startedAt, finishedAt, nextRunAt, lastErrorAt sql.NullTime
	deadLetteredAt, lastReplayAt, heartbeatAt     sql.NullTime
	claimToken                                    sql.NullString
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&d.payload,
		&d.result,
		&job.Progress,
		&job.Total,
		&job.RetryCount,
		&job.MaxRetries,
		&d.errMsg,
		&d.errType,
		&job.ReplayCount,
		&job.CreatedAt,
		&job.UpdatedAt,
		&d.startedAt,
		&d.finishedAt,
		&d.nextRunAt,
		&d.lastErrorAt,
		&d.deadLetteredAt,
		&d.lastReplayAt,
		&d.claimToken,
		&d.heartbeatAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Payload = cloneJSON(d.payload)
	if len(d.result) > 0 {
		job.Result = append(json.RawMessage(nil), d.result...)
	}
	job.Error = cloneNullableString(d.errMsg)
	job.ErrorType = cloneNullableString(d.errType)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.FinishedAt = cloneNullableTime(d.finishedAt)
	job.NextRunAt = cloneNullableTime(d.nextRunAt)
	job.LastErrorAt = cloneNullableTime(d.lastErrorAt)
	job.DeadLetteredAt = cloneNullableTime(d.deadLetteredAt)
	job.LastReplayAt = cloneNullableTime(d.lastReplayAt)
	job.ClaimToken = cloneNullableString(d.claimToken)
	job.HeartbeatAt = cloneNullableTime(d.heartbeatAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	data.apply(job)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*model.Job, error) {
	var out []*model.Job
	for rows.Next() {
		job, err := scanJobFromRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
