// Package core declares the ports between the dispatcher's services and its storage adapters.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/target/creative-dispatch/internal/domain/model"
)

// Service implementations depend on these interfaces, not on concrete repositories.

// JobRepository defines the Job Store operations.
//
// Every transition is guarded by the status it expects to find and reports
// false (with a nil error) when the row was no longer in that status. Transitions
// out of running also require the ClaimToken stamped by ClaimNext, so a
// superseded invocation cannot overwrite a newer claim. The optional Event is
// appended in the same transaction as the transition.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetStatus(ctx context.Context, id string) (model.JobStatus, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)

	// ClaimNext returns model.ErrNoJobsAvailable when no pending job is due.
	ClaimNext(ctx context.Context) (*model.Job, error)
	MarkCompleted(ctx context.Context, params CompleteJobParams) (bool, error)
	ScheduleRetry(ctx context.Context, params RetryJobParams) (bool, error)
	MoveToDeadLetter(ctx context.Context, params DeadLetterParams) (bool, error)
	MarkFailed(ctx context.Context, params FailJobParams) (bool, error)
	// MarkCancelled records that the dispatcher observed an operator cancellation.
	MarkCancelled(ctx context.Context, id string, event *model.NewJobEvent) (bool, error)
	// Release returns an interrupted running job to pending without counting a retry.
	Release(ctx context.Context, params ReleaseJobParams) (bool, error)
	// Heartbeat reports false once the claim identified by claimToken is no longer held.
	Heartbeat(ctx context.Context, id, claimToken string) (bool, error)
	UpdateProgress(ctx context.Context, id, claimToken string, progress, total int) error

	Replay(ctx context.Context, id string, event *model.NewJobEvent) (bool, error)
	Cancel(ctx context.Context, id string, event *model.NewJobEvent) (bool, error)

	CountDeadLetteredSince(ctx context.Context, since time.Time) (int, error)
	// ListStaleRunning matches running jobs whose last heartbeat (or claim) precedes lastSeenBefore.
	ListStaleRunning(ctx context.Context, lastSeenBefore time.Time, limit int) ([]*model.Job, error)
	WaitForEnqueue(ctx context.Context) error
}

// CompleteJobParams groups the arguments of MarkCompleted.
type CompleteJobParams struct {
	ID         string
	ClaimToken string
	Result     json.RawMessage
	Progress   *int
	Total      *int
	Event      *model.NewJobEvent
}

// RetryJobParams groups the arguments of ScheduleRetry.
type RetryJobParams struct {
	ID         string
	ClaimToken string
	NextRunAt  time.Time
	Error      string
	ErrorType  string
	Event      *model.NewJobEvent
}

// DeadLetterParams groups the arguments of MoveToDeadLetter.
type DeadLetterParams struct {
	ID         string
	ClaimToken string
	Error      string
	ErrorType  string
	Event      *model.NewJobEvent
}

// FailJobParams groups the arguments of MarkFailed.
type FailJobParams struct {
	ID         string
	ClaimToken string
	Error      string
	ErrorType  string
	Event      *model.NewJobEvent
}

// ReleaseJobParams groups the arguments of Release.
type ReleaseJobParams struct {
	ID         string
	ClaimToken string
	Event      *model.NewJobEvent
}

// JobEventRepository defines the append-only Job Event Log.
type JobEventRepository interface {
	Append(ctx context.Context, ev model.NewJobEvent) (*model.JobEvent, error)
	ListByJob(ctx context.Context, opts model.JobEventListOptions) ([]*model.JobEvent, error)
}

// SystemStateRepository is a generic persisted key to JSON store.
type SystemStateRepository interface {
	// Get returns (nil, nil) when the key has never been written.
	Get(ctx context.Context, key string) (*model.SystemState, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// ReaperRepository defines the maintenance operations run by the reaper.
type ReaperRepository interface {
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs.
type DeleteOldJobsParams struct {
	Statuses  []model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}
