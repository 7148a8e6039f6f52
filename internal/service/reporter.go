package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// jobReporter persists a handler's progress and custom events for one attempt.
// Failures are logged and swallowed; a handler never sees a reporting error.
type jobReporter struct {
	jobID  string
	token  string
	jobs   core.JobRepository
	events core.JobEventRepository
	logger *slog.Logger

	mu       sync.Mutex
	progress int
	total    int
	reported bool
}

var _ domainjob.Reporter = (*jobReporter)(nil)

func newJobReporter(j *model.Job, jobs core.JobRepository, events core.JobEventRepository, logger *slog.Logger) *jobReporter {
	return &jobReporter{
		jobID:    j.ID,
		token:    j.Token(),
		jobs:     jobs,
		events:   events,
		logger:   logger,
		progress: j.Progress,
		total:    j.Total,
	}
}

func (r *jobReporter) Progress(ctx context.Context, current, total int) {
	if current < 0 {
		current = 0
	}
	if total < 0 {
		total = 0
	}
	r.mu.Lock()
	r.progress, r.total, r.reported = current, total, true
	r.mu.Unlock()

	if err := r.jobs.UpdateProgress(ctx, r.jobID, r.token, current, total); err != nil {
		r.logger.WarnContext(ctx, "progress update failed",
			"job_id", r.jobID,
			"progress", current,
			"total", total,
			"error", err,
		)
	}
}

func (r *jobReporter) Event(ctx context.Context, eventType model.JobEventType, message string, data any) {
	if eventType == "" {
		eventType = model.JobEventProgress
	}
	if _, err := r.events.Append(ctx, model.NewJobEvent{
		JobID:   r.jobID,
		Type:    eventType,
		Message: message,
		Data:    data,
	}); err != nil {
		r.logger.WarnContext(ctx, "job event append failed",
			"job_id", r.jobID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// snapshot returns the last reported progress, and whether the handler reported any.
func (r *jobReporter) snapshot() (progress, total int, reported bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress, r.total, r.reported
}
