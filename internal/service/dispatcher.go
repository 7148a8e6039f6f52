package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/observability/metrics"
	"github.com/target/creative-dispatch/internal/observability/notify"
	"github.com/target/creative-dispatch/internal/observability/statsd"
)

const tracerName = "github.com/target/creative-dispatch/internal/service"

// DispatcherOptions groups dependencies for Dispatcher.
type DispatcherOptions struct {
	Jobs     core.JobRepository      // Required: job store
	Events   core.JobEventRepository // Required: job event log
	State    *QueueStateService      // Required: pause flag
	Handlers *HandlerRegistry        // Required: job type to handler mapping
	Config   config.DispatcherConfig // Budget, breaker and long-running settings
	Retry    *domainjob.RetryPolicy  // Optional: defaults to math/rand jitter
	Alerter  AlertSender             // Optional: operator alerts
	Metrics  statsd.Sink             // Optional: metrics sink
	Logger   *slog.Logger            // Optional: structured logger
	Tracer   trace.Tracer            // Optional: defaults to the global provider
	Now      func() time.Time        // Optional: clock override for tests
}

// Dispatcher runs one bounded pass over the job queue per invocation.
//
// Each invocation checks the pause flag, then claims and executes due jobs one at a
// time until no job is eligible or the wall-clock budget runs out. Overlapping
// invocations are safe; the store's atomic claim is the only mutual exclusion.
type Dispatcher struct {
	jobs     core.JobRepository
	events   core.JobEventRepository
	state    *QueueStateService
	handlers *HandlerRegistry
	cfg      config.DispatcherConfig
	retry    *domainjob.RetryPolicy
	alerts   AlertSender
	metrics  statsd.Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	breaker  *CircuitBreaker
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Events == nil:
		return nil, errors.New("JobEventRepository is required")
	case opts.State == nil:
		return nil, errors.New("QueueStateService is required")
	case opts.Handlers == nil:
		return nil, errors.New("HandlerRegistry is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "dispatcher")

	retry := opts.Retry
	if retry == nil {
		retry = domainjob.NewRetryPolicy(nil)
	}
	var alerts AlertSender = nopAlertSender{}
	if opts.Alerter != nil {
		alerts = opts.Alerter
	}
	sink := opts.Metrics
	if sink == nil {
		sink = statsd.Discard
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	d := &Dispatcher{
		jobs:     opts.Jobs,
		events:   opts.Events,
		state:    opts.State,
		handlers: opts.Handlers,
		cfg:      cfg,
		retry:    retry,
		alerts:   alerts,
		metrics:  sink,
		logger:   logger,
		tracer:   tracer,
		now:      now,
	}
	d.breaker = &CircuitBreaker{
		jobs:      opts.Jobs,
		state:     opts.State,
		alerts:    alerts,
		logger:    logger,
		threshold: cfg.BreakerThreshold,
		window:    cfg.BreakerWindow,
		now:       now,
	}

	logger.Debug("Dispatcher initialized",
		"budget", cfg.Budget,
		"breaker_threshold", cfg.BreakerThreshold,
		"breaker_window", cfg.BreakerWindow,
		"long_running_threshold", cfg.LongRunningThreshold,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"job_types", opts.Handlers.Types(),
	)
	return d, nil
}

// MustNewDispatcher constructs a Dispatcher and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewDispatcher(opts DispatcherOptions) *Dispatcher {
	d, err := NewDispatcher(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create Dispatcher: %v", err))
	}
	return d
}

// Run performs one invocation. Handler failures are absorbed into job transitions;
// only store failures (claiming, recording a transition) are returned.
func (d *Dispatcher) Run(ctx context.Context) (*model.WorkerRunResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.run")
	defer span.End()

	start := d.now()
	res, err := d.run(ctx, start)

	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.Processed == 0:
		result = metrics.ResultNoop
	}
	processed := 0
	paused := false
	if res != nil {
		processed, paused = res.Processed, res.Paused
	}
	span.SetAttributes(
		attribute.Int("dispatcher.processed", processed),
		attribute.Bool("dispatcher.paused", paused),
	)
	metrics.EmitDispatcherRun(d.metrics, metrics.RunMetric{
		Result:    result,
		Paused:    paused,
		Processed: processed,
		Duration:  d.now().Sub(start),
	})
	return res, err
}

func (d *Dispatcher) run(ctx context.Context, start time.Time) (*model.WorkerRunResult, error) {
	pause, err := d.state.QueuePause(ctx)
	if err != nil {
		return nil, err
	}
	if pause.Paused {
		d.logger.InfoContext(ctx, "job queue is paused, skipping run", "reason", pause.Reason)
		return &model.WorkerRunResult{
			Message: model.WorkerRunPausedMessage,
			Reason:  pause.Reason,
			Paused:  true,
		}, nil
	}

	deadline := start.Add(d.cfg.Budget)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	res := &model.WorkerRunResult{Message: model.WorkerRunCompletedMessage}
	for d.now().Before(deadline) && ctx.Err() == nil {
		j, err := d.jobs.ClaimNext(ctx)
		if errors.Is(err, model.ErrNoJobsAvailable) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("claim next job: %w", err)
		}
		res.Processed++
		metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
			JobType:    string(j.Type),
			Transition: metrics.TransitionClaimed,
			Result:     metrics.ResultSuccess,
		})

		tripped, err := d.execute(ctx, j)
		if err != nil {
			return res, err
		}
		if tripped {
			// This run paused the queue; stop claiming rather than waiting for the next trigger.
			break
		}
	}

	d.logger.InfoContext(ctx, "worker run completed",
		"processed", res.Processed,
		"elapsed", d.now().Sub(start),
	)
	return res, nil
}

// execute runs one claimed job to exactly one terminal or retry transition.
// It reports whether a dead-letter tripped the circuit breaker.
func (d *Dispatcher) execute(ctx context.Context, j *model.Job) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.job", trace.WithAttributes(
		attribute.String("job.id", j.ID),
		attribute.String("job.type", string(j.Type)),
		attribute.Int("job.retry_count", j.RetryCount),
	))
	defer span.End()

	logger := d.logger.With("job_id", j.ID, "job_type", j.Type)

	pre, cancelPre := d.storeContext(ctx)
	defer cancelPre()

	// An operator may have cancelled the job between enqueue and claim.
	status, err := d.jobs.GetStatus(pre, j.ID)
	if err != nil {
		return false, fmt.Errorf("read status of job %s: %w", j.ID, err)
	}
	if status == model.JobStatusCancelled {
		return false, d.observeCancellation(pre, logger, j)
	}

	handler, ok := d.handlers.Get(j.Type)
	if !ok {
		return false, d.failUnknownType(pre, logger, j)
	}

	if _, err := d.events.Append(pre, model.NewJobEvent{
		JobID:   j.ID,
		Type:    model.JobEventStarted,
		Message: "Job started",
		Data:    map[string]any{"retry_count": j.RetryCount, "max_retries": j.MaxRetries},
	}); err != nil {
		logger.WarnContext(ctx, "failed to record job start", "error", err)
	}
	cancelPre()

	reporter := newJobReporter(j, d.jobs, d.events, logger)
	started := d.now()
	stopHeartbeat := d.heartbeat(ctx, logger, j)
	result, herr := d.invoke(ctx, j, handler, reporter)
	stopHeartbeat()
	elapsed := d.now().Sub(started)

	post, cancelPost := d.storeContext(ctx)
	defer cancelPost()

	if herr == nil {
		return false, d.complete(post, logger, j, result, reporter, elapsed)
	}

	span.RecordError(herr)
	span.SetStatus(codes.Error, herr.Error())
	if ctx.Err() != nil {
		// The trigger went away mid-handler; the attempt says nothing about the job itself.
		return false, d.release(post, logger, j, herr, ctx.Err())
	}
	outcome, err := d.handleFailure(post, logger, j, herr, elapsed)
	if err != nil {
		return false, err
	}
	return outcome.tripped, nil
}

// storeContext returns a context for store writes on a claimed job. It survives cancellation of
// the trigger so the job never stays running just because the caller hung up.
func (d *Dispatcher) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.cfg.TransitionTimeout)
}

// heartbeat refreshes the job's heartbeat_at until the returned stop func is called.
func (d *Dispatcher) heartbeat(ctx context.Context, logger *slog.Logger, j *model.Job) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(d.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := d.jobs.Heartbeat(ctx, j.ID, j.Token())
			switch {
			case err != nil && ctx.Err() == nil:
				logger.WarnContext(ctx, "failed to record job heartbeat", "error", err)
			case err == nil && !held:
				// Cancelled or recovered elsewhere; any transition this invocation attempts will be rejected.
				logger.WarnContext(ctx, "job claim is no longer held by this invocation")
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// invoke calls the handler, converting a panic into a system error and arming the long-running alert.
func (d *Dispatcher) invoke(
	ctx context.Context,
	j *model.Job,
	h domainjob.Handler,
	r domainjob.Reporter,
) (result json.RawMessage, err error) {
	if d.cfg.LongRunningThreshold > 0 {
		timer := time.AfterFunc(d.cfg.LongRunningThreshold, func() {
			d.alertLongRunning(context.WithoutCancel(ctx), j, d.cfg.LongRunningThreshold)
		})
		defer timer.Stop()
	}

	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = domainjob.Errorf(domainjob.KindSystem, "handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, j, r)
}

func (d *Dispatcher) complete(
	ctx context.Context,
	logger *slog.Logger,
	j *model.Job,
	result json.RawMessage,
	reporter *jobReporter,
	elapsed time.Duration,
) error {
	if len(result) > 0 && !json.Valid(result) {
		raw, err := json.Marshal(string(result))
		if err != nil {
			return fmt.Errorf("encode result of job %s: %w", j.ID, err)
		}
		result = raw
	}

	params := core.CompleteJobParams{
		ID:         j.ID,
		ClaimToken: j.Token(),
		Result:     result,
		Event: &model.NewJobEvent{
			Type:    model.JobEventCompleted,
			Message: "Job completed",
			Data:    map[string]any{"result": result, "duration_ms": elapsed.Milliseconds()},
		},
	}
	if progress, total, reported := reporter.snapshot(); reported {
		params.Progress, params.Total = &progress, &total
	}

	ok, err := d.jobs.MarkCompleted(ctx, params)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	if !ok {
		// Cancelled or recovered while the handler ran; the stored status wins.
		logger.WarnContext(ctx, "job left running state before completion was recorded")
		return nil
	}

	logger.InfoContext(ctx, "job completed", "duration", elapsed)
	metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultSuccess,
		Duration:   elapsed,
	})
	return nil
}

type failureOutcome struct {
	retried      bool
	deadLettered bool
	tripped      bool
}

// handleFailure classifies err and either schedules a retry or dead-letters the job.
func (d *Dispatcher) handleFailure(
	ctx context.Context,
	logger *slog.Logger,
	j *model.Job,
	herr error,
	elapsed time.Duration,
) (failureOutcome, error) {
	class := domainjob.Classify(herr)
	now := d.now()
	decision := d.retry.Decide(domainjob.RetryInput{
		Kind:       class.Kind,
		RetryCount: j.RetryCount,
		MaxRetries: j.MaxRetries,
		Now:        now,
	})

	if decision.Retry {
		return d.scheduleRetry(ctx, logger, j, class, decision, elapsed)
	}
	return d.deadLetter(ctx, logger, j, class, elapsed)
}

func (d *Dispatcher) scheduleRetry(
	ctx context.Context,
	logger *slog.Logger,
	j *model.Job,
	class domainjob.Classification,
	decision domainjob.RetryDecision,
	elapsed time.Duration,
) (failureOutcome, error) {
	attempt := j.RetryCount + 1
	ok, err := d.jobs.ScheduleRetry(ctx, core.RetryJobParams{
		ID:         j.ID,
		ClaimToken: j.Token(),
		NextRunAt:  decision.NextRunAt,
		Error:      class.Message,
		ErrorType:  string(class.Kind),
		Event: &model.NewJobEvent{
			Type:    model.JobEventRetryScheduled,
			Message: fmt.Sprintf("Retry %d/%d scheduled in %s", attempt, j.MaxRetries, decision.Delay.Round(time.Second)),
			Data: map[string]any{
				"error_type":    class.Kind,
				"error":         class.Message,
				"retry_count":   attempt,
				"max_retries":   j.MaxRetries,
				"next_run_at":   decision.NextRunAt,
				"delay_seconds": decision.Delay.Seconds(),
			},
		},
	})
	if err != nil {
		return failureOutcome{}, fmt.Errorf("schedule retry of job %s: %w", j.ID, err)
	}
	if !ok {
		logger.WarnContext(ctx, "job left running state before retry was recorded", "error", class.Message)
		return failureOutcome{}, nil
	}

	logger.WarnContext(ctx, "job failed, retry scheduled",
		"error", class.Message,
		"error_type", class.Kind,
		"retry_count", attempt,
		"max_retries", j.MaxRetries,
		"next_run_at", decision.NextRunAt,
	)
	metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionRetry,
		Result:     metrics.ResultError,
		ErrorKind:  string(class.Kind),
		Duration:   elapsed,
	})

	if decision.FinalAttempt {
		d.alerts.SendAlert(ctx, notify.Alert{
			Kind:      notify.AlertRetryExhaustionImminent,
			Summary:   fmt.Sprintf("Job %s (%s) is about to use its last retry", j.ID, j.Type),
			Severity:  string(class.Severity),
			JobID:     j.ID,
			JobType:   string(j.Type),
			ErrorKind: string(class.Kind),
			Error:     class.Message,
			Metadata: map[string]string{
				"retry_count": strconv.Itoa(attempt),
				"max_retries": strconv.Itoa(j.MaxRetries),
				"next_run_at": decision.NextRunAt.Format(time.RFC3339),
			},
		})
	}
	return failureOutcome{retried: true}, nil
}

func (d *Dispatcher) deadLetter(
	ctx context.Context,
	logger *slog.Logger,
	j *model.Job,
	class domainjob.Classification,
	elapsed time.Duration,
) (failureOutcome, error) {
	reason := "retries exhausted"
	if !class.Retryable {
		reason = "non-retryable error"
	}
	ok, err := d.jobs.MoveToDeadLetter(ctx, core.DeadLetterParams{
		ID:         j.ID,
		ClaimToken: j.Token(),
		Error:      class.Message,
		ErrorType:  string(class.Kind),
		Event: &model.NewJobEvent{
			Type:    model.JobEventFailed,
			Message: "Job moved to dead letter: " + reason,
			Data: map[string]any{
				"dead_lettered": true,
				"error_type":    class.Kind,
				"error":         class.Message,
				"retry_count":   j.RetryCount,
				"max_retries":   j.MaxRetries,
			},
		},
	})
	if err != nil {
		return failureOutcome{}, fmt.Errorf("dead-letter job %s: %w", j.ID, err)
	}
	if !ok {
		logger.WarnContext(ctx, "job left running state before dead-letter was recorded", "error", class.Message)
		return failureOutcome{}, nil
	}

	logger.ErrorContext(ctx, "job dead-lettered",
		"error", class.Message,
		"error_type", class.Kind,
		"severity", class.Severity,
		"retry_count", j.RetryCount,
		"reason", reason,
	)
	metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionDead,
		Result:     metrics.ResultError,
		ErrorKind:  string(class.Kind),
		Duration:   elapsed,
	})

	out := failureOutcome{deadLettered: true}
	bo, err := d.breaker.Evaluate(ctx)
	if err != nil {
		// The dead-letter is committed; a breaker failure only delays pausing until the next dead-letter.
		logger.ErrorContext(ctx, "circuit breaker evaluation failed", "error", err)
		return out, nil
	}
	if bo.Tripped {
		metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
			JobType:    string(j.Type),
			Transition: metrics.TransitionQueuePause,
			Result:     metrics.ResultSuccess,
		})
	}
	out.tripped = bo.Tripped
	return out, nil
}

// release hands an interrupted job back to pending. retry_count is untouched and the breaker is
// not consulted.
func (d *Dispatcher) release(ctx context.Context, logger *slog.Logger, j *model.Job, herr, cause error) error {
	ok, err := d.jobs.Release(ctx, core.ReleaseJobParams{
		ID:         j.ID,
		ClaimToken: j.Token(),
		Event: &model.NewJobEvent{
			Type:    model.JobEventReleased,
			Message: "Job released: invocation interrupted",
			Data: map[string]any{
				"error":       herr.Error(),
				"cause":       cause.Error(),
				"retry_count": j.RetryCount,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("release job %s: %w", j.ID, err)
	}
	if !ok {
		logger.WarnContext(ctx, "job left running state before release was recorded", "error", herr)
		return nil
	}
	logger.WarnContext(ctx, "invocation interrupted, job released", "error", herr, "cause", cause)
	metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
		JobType:    string(j.Type),
		Transition: metrics.TransitionReleased,
		Result:     metrics.ResultError,
	})
	return nil
}

func (d *Dispatcher) observeCancellation(ctx context.Context, logger *slog.Logger, j *model.Job) error {
	ok, err := d.jobs.MarkCancelled(ctx, j.ID, &model.NewJobEvent{
		Type:    model.JobEventCancelled,
		Message: "Job cancelled before execution",
	})
	if err != nil {
		return fmt.Errorf("record cancellation of job %s: %w", j.ID, err)
	}
	if ok {
		logger.InfoContext(ctx, "job cancelled before handler start")
		metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
			JobType:    string(j.Type),
			Transition: metrics.TransitionCancelled,
			Result:     metrics.ResultSuccess,
		})
	}
	return nil
}

func (d *Dispatcher) failUnknownType(ctx context.Context, logger *slog.Logger, j *model.Job) error {
	msg := "unknown job type: " + string(j.Type)
	ok, err := d.jobs.MarkFailed(ctx, core.FailJobParams{
		ID:         j.ID,
		ClaimToken: j.Token(),
		Error:      msg,
		ErrorType:  string(domainjob.KindSystem),
		Event: &model.NewJobEvent{
			Type:    model.JobEventFailed,
			Message: msg,
			Data:    map[string]any{"dead_lettered": false, "job_type": j.Type},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job %s: %w", j.ID, err)
	}
	if ok {
		logger.ErrorContext(ctx, "no handler registered for job type")
		metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
			JobType:    string(j.Type),
			Transition: metrics.TransitionFailed,
			Result:     metrics.ResultError,
			ErrorKind:  string(domainjob.KindSystem),
		})
	}
	return nil
}

func (d *Dispatcher) alertLongRunning(ctx context.Context, j *model.Job, runningFor time.Duration) {
	d.logger.WarnContext(ctx, "job is running longer than expected",
		"job_id", j.ID,
		"job_type", j.Type,
		"running_for", runningFor,
	)
	d.alerts.SendAlert(ctx, notify.Alert{
		Kind:     notify.AlertLongRunningJob,
		Summary:  fmt.Sprintf("Job %s (%s) has been running for over %s", j.ID, j.Type, runningFor.Round(time.Second)),
		Severity: notify.SeverityWarning,
		JobID:    j.ID,
		JobType:  string(j.Type),
		Metadata: map[string]string{"running_for": runningFor.Round(time.Second).String()},
	})
}

// RecoverStale treats running jobs whose heartbeat has been silent for longer than olderThan
// as lost workers. Each goes through the normal failure path as a system error, so it is
// retried or dead-lettered like any other failed attempt. The transition carries the claim
// token read here, so a worker that resumes afterwards cannot overwrite the outcome.
func (d *Dispatcher) RecoverStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.recover_stale")
	defer span.End()

	now := d.now()
	stale, err := d.jobs.ListStaleRunning(ctx, now.Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale running jobs: %w", err)
	}

	recovered := 0
	for _, j := range stale {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		runningFor := olderThan
		if j.StartedAt != nil {
			runningFor = now.Sub(*j.StartedAt)
		}
		logger := d.logger.With("job_id", j.ID, "job_type", j.Type)
		d.alertLongRunning(ctx, j, runningFor)

		lost := domainjob.Errorf(domainjob.KindSystem, "worker lost: no heartbeat for %s, running for %s",
			silentFor(j, now).Round(time.Second), runningFor.Round(time.Second))
		out, err := d.handleFailure(ctx, logger, j, lost, runningFor)
		if err != nil {
			return recovered, err
		}
		if out.retried || out.deadLettered {
			recovered++
			metrics.EmitJobLifecycle(d.metrics, metrics.JobMetric{
				JobType:    string(j.Type),
				Transition: metrics.TransitionRecovered,
				Result:     metrics.ResultSuccess,
				ErrorKind:  string(domainjob.KindSystem),
			})
		}
	}
	span.SetAttributes(attribute.Int("dispatcher.recovered", recovered))
	return recovered, nil
}

func silentFor(j *model.Job, now time.Time) time.Duration {
	switch {
	case j.HeartbeatAt != nil:
		return now.Sub(*j.HeartbeatAt)
	case j.StartedAt != nil:
		return now.Sub(*j.StartedAt)
	}
	return 0
}
