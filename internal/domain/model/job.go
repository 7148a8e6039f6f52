// Package model defines the core data types shared by the dispatcher, its stores, and its HTTP surface.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// JobType is the discriminator that selects a Handler for a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeOfferSync pulls advertiser offers from the external offer API.
	JobTypeOfferSync JobType = "offer_sync"

	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a dispatcher invocation currently owns the job.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the handler returned successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job could not be dispatched (no handler registered for its type).
	JobStatusFailed JobStatus = "failed"
	// JobStatusDead indicates the job exhausted its retries or hit a non-retryable error.
	JobStatusDead JobStatus = "dead"
	// JobStatusCancelled indicates an operator cancelled the job.
	JobStatusCancelled JobStatus = "cancelled"
)

// DefaultMaxRetries is applied when an enqueue request does not specify a retry budget.
const DefaultMaxRetries = 5

var jobTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

var (
	// ErrNoJobsAvailable is returned when no jobs are eligible for claiming.
	ErrNoJobsAvailable = errors.New("no jobs available")
	// ErrJobNotFound is returned by stores when no job has the requested id.
	ErrJobNotFound = errors.New("job not found")
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType to allow env parsing.
func (t *JobType) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	jt := JobType(v)
	if jt.Valid() {
		*t = jt
		return nil
	}
	return fmt.Errorf("invalid JobType: %q", v)
}

// Valid reports whether the job type is a well-formed identifier. Job types are open-ended;
// whether a handler exists for a type is decided at dispatch time.
func (t JobType) Valid() bool {
	return jobTypePattern.MatchString(string(t))
}

// Valid returns true if the JobStatus is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusDead, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status ends an episode.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusDead || s == JobStatusCancelled
}

// Replayable reports whether an operator may replay a job in this status.
func (s JobStatus) Replayable() bool {
	return s == JobStatusDead || s == JobStatusFailed
}

// Cancellable reports whether an operator may cancel a job in this status.
func (s JobStatus) Cancellable() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job represents a unit of deferred work with its lifecycle metadata.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Type           JobType         `json:"type"                       db:"type"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	Result         json.RawMessage `json:"result,omitempty"           db:"result"`
	Progress       int             `json:"progress"                   db:"progress"`
	Total          int             `json:"total"                      db:"total"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	Error          *string         `json:"error,omitempty"            db:"error"`
	ErrorType      *string         `json:"error_type,omitempty"       db:"error_type"`
	ReplayCount    int             `json:"replay_count"               db:"replay_count"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"      db:"finished_at"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"      db:"next_run_at"`
	LastErrorAt    *time.Time      `json:"last_error_at,omitempty"    db:"last_error_at"`
	DeadLetteredAt *time.Time      `json:"dead_lettered_at,omitempty" db:"dead_lettered_at"`
	LastReplayAt   *time.Time      `json:"last_replay_at,omitempty"   db:"last_replay_at"`
	// ClaimToken identifies the invocation that owns a running job. It is cleared whenever the job leaves running.
	ClaimToken  *string    `json:"-"                      db:"claim_token"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty" db:"heartbeat_at"`
}

// Token returns the claim token, or "" when the job is not owned by an invocation.
func (j *Job) Token() string {
	if j == nil || j.ClaimToken == nil {
		return ""
	}
	return *j.ClaimToken
}

// CreateJobRequest represents a request to enqueue a new job.
type CreateJobRequest struct {
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	MaxRetries *int            `json:"max_retries,omitempty"`
	// RunAt delays the first claim; nil means immediately eligible.
	RunAt *time.Time `json:"run_at,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return errors.New("invalid job type")
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	if r.MaxRetries != nil && (*r.MaxRetries < 0 || *r.MaxRetries > 50) {
		return errors.New("max retries must be between 0 and 50")
	}
	return nil
}

// ResolvedMaxRetries returns the retry budget to persist for the request.
func (r *CreateJobRequest) ResolvedMaxRetries(def int) int {
	if r.MaxRetries != nil {
		return *r.MaxRetries
	}
	if def < 0 {
		return DefaultMaxRetries
	}
	return def
}

// JobStats represents counts of jobs per status.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
	Cancelled int `json:"cancelled"`
}

// JobListOptions groups parameters for listing jobs with optional filters.
type JobListOptions struct {
	Status *JobStatus // Optional filter by status
	Type   *JobType   // Optional filter by type
	Limit  int
	Offset int
}

// WorkerRunResult summarises one dispatcher invocation.
type WorkerRunResult struct {
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Paused    bool   `json:"paused"`
	Processed int    `json:"processed"`
}

// Worker run messages returned to triggers.
const (
	WorkerRunPausedMessage    = "Job queue is paused"
	WorkerRunCompletedMessage = "Worker run completed"
)
