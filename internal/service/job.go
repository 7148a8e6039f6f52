package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	apperrors "github.com/target/creative-dispatch/internal/errors"
	"github.com/target/creative-dispatch/internal/observability/metrics"
	"github.com/target/creative-dispatch/internal/observability/statsd"
)

// ErrInvalidTransition is returned when an admin action does not apply to the job's current status.
var ErrInvalidTransition = errors.New("invalid job status transition")

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	Events          core.JobEventRepository   // Required: job event log
	Logger          *slog.Logger              // Optional: structured logger
	Metrics         statsd.Sink               // Optional: metrics sink
	NotifierOptions domainjob.NotifierOptions // Optional: configure the enqueue notifier
}

// JobService provides enqueue, query and admin operations for jobs.
//
// This service manages:
// - Enqueueing jobs and notifying waiting workers.
// - Reading jobs, statistics and event timelines.
// - Replaying dead or failed jobs and cancelling pending or running ones.
type JobService struct {
	repo     core.JobRepository
	events   core.JobEventRepository
	notifier *domainjob.Notifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Events == nil {
		return nil, errors.New("JobEventRepository is required")
	}

	options := opts.NotifierOptions
	if options.Waiter == nil {
		options.Waiter = opts.Repo
	}
	notifier, err := domainjob.NewNotifier(options)
	if err != nil {
		return nil, fmt.Errorf("create job notifier: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobService{
		repo:     opts.Repo,
		events:   opts.Events,
		notifier: notifier,
		logger:   logger.With("component", "job_service"),
		metrics:  opts.Metrics,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Enqueue creates a pending job.
func (s *JobService) Enqueue(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job request")
	}
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.InfoContext(ctx, "job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"max_retries", job.MaxRetries,
		"next_run_at", job.NextRunAt,
	)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: metrics.TransitionEnqueued,
		Result:     metrics.ResultSuccess,
	})
	return job, nil
}

// Get returns a job by ID.
func (s *JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns jobs matching opts, newest first.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	return s.repo.List(ctx, opts)
}

// Stats returns the job counts per status.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

// Events returns a job's timeline in append order. Unknown jobs are reported as not found.
func (s *JobService) Events(ctx context.Context, opts model.JobEventListOptions) ([]*model.JobEvent, error) {
	if _, err := s.repo.GetStatus(ctx, opts.JobID); err != nil {
		return nil, err
	}
	return s.events.ListByJob(ctx, opts)
}

// Replay returns a dead or failed job to pending with a fresh retry budget.
func (s *JobService) Replay(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Replayable() {
		return nil, fmt.Errorf("%w: cannot replay a %s job", ErrInvalidTransition, job.Status)
	}

	ok, err := s.repo.Replay(ctx, id, &model.NewJobEvent{
		Type:    model.JobEventReplayed,
		Message: "Job replayed",
		Data: map[string]any{
			"previous_status": job.Status,
			"previous_error":  job.Error,
			"replay_count":    job.ReplayCount + 1,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("replay job %s: %w", id, err)
	}
	if !ok {
		return nil, s.transitionMiss(ctx, id, "replay")
	}

	s.logger.InfoContext(ctx, "job replayed", "job_id", id, "job_type", job.Type, "previous_status", job.Status)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: metrics.TransitionReplayed,
		Result:     metrics.ResultSuccess,
	})
	return s.repo.GetByID(ctx, id)
}

// Cancel marks a pending or running job cancelled. A running handler is not interrupted;
// the dispatcher ignores its outcome because the job is no longer running.
func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.Status.Cancellable() {
		return nil, fmt.Errorf("%w: cannot cancel a %s job", ErrInvalidTransition, job.Status)
	}

	ok, err := s.repo.Cancel(ctx, id, &model.NewJobEvent{
		Type:    model.JobEventCancelRequested,
		Message: "Cancellation requested",
		Data:    map[string]any{"previous_status": job.Status},
	})
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", id, err)
	}
	if !ok {
		return nil, s.transitionMiss(ctx, id, "cancel")
	}

	s.logger.InfoContext(ctx, "job cancellation requested", "job_id", id, "previous_status", job.Status)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: metrics.TransitionCancelReq,
		Result:     metrics.ResultSuccess,
	})
	return s.repo.GetByID(ctx, id)
}

// transitionMiss explains a guarded update that matched no row.
func (s *JobService) transitionMiss(ctx context.Context, id, action string) error {
	status, err := s.repo.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot %s a %s job", ErrInvalidTransition, action, status)
}

// Subscribe returns a channel signalled when a job is enqueued or replayed.
func (s *JobService) Subscribe() (func(), <-chan struct{}) {
	return s.notifier.Subscribe()
}

// StopAll stops the enqueue listener.
func (s *JobService) StopAll() {
	s.notifier.StopAll()
}
