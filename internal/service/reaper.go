package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/observability/metrics"
	"github.com/target/creative-dispatch/internal/observability/statsd"
)

// StaleRecoverer returns jobs abandoned in the running state to the retry path.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo      core.ReaperRepository // Required: reaper repository
	Recoverer StaleRecoverer        // Optional: stale running job recovery (usually the Dispatcher)
	Config    config.ReaperConfig   // Required: reaper configuration
	Logger    *slog.Logger          // Optional: structured logger
	Metrics   statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides job maintenance operations.
//
// This service manages:
// - Recovering jobs whose worker died while they were running.
// - Deleting old completed and cancelled jobs to prevent database bloat.
// - Deleting old dead and failed jobs once they are past the replay horizon.
type ReaperService struct {
	repo      core.ReaperRepository
	recoverer StaleRecoverer
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	cfg := opts.Config
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", cfg.Interval,
			"running_max_age", cfg.RunningMaxAge,
			"completed_max_age", cfg.CompletedMaxAge,
			"dead_max_age", cfg.DeadMaxAge,
		)
	}

	return &ReaperService{
		repo:      opts.Repo,
		recoverer: opts.Recoverer,
		config:    cfg,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs cleanup operations at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run cleanup immediately after jitter
	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the cleanup loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
				if isContextCancellation(err) {
					continue
				}
				// Continue running despite errors
			}
		}
	}
}

// RunOnce performs a single maintenance pass. The admin CLI uses it directly.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	return s.runCleanup(ctx)
}

// runCleanup performs all cleanup operations.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = cleanupMetrics{}
	)

	steps := []cleanupStep{
		{
			fn:        s.recoverStaleRunningJobs,
			label:     "recover stale running jobs",
			count:     &metricsData.RunningCount,
			metricErr: &metricsData.RunningErr,
		},
		{
			fn:        s.deleteOldFinishedJobs,
			label:     "delete old completed jobs",
			count:     &metricsData.CompletedCount,
			metricErr: &metricsData.CompletedErr,
		},
		{
			fn:        s.deleteOldDeadJobs,
			label:     "delete old dead jobs",
			count:     &metricsData.DeadCount,
			metricErr: &metricsData.DeadErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeCleanupStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitCleanupMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}

	return nil
}

type cleanupFunc func(context.Context) (int64, error)

type cleanupStep struct {
	fn        cleanupFunc
	label     string
	count     *int64
	metricErr *error
}

type cleanupStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeCleanupStep(
	ctx context.Context,
	fn cleanupFunc,
	label string,
) cleanupStepOutcome {
	count, err := fn(ctx)
	outcome := cleanupStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

// recoverStaleRunningJobs hands running jobs whose heartbeat has been silent for RunningMaxAge
// back to the dispatcher's failure path. Loops in batches until a pass recovers nothing.
func (s *ReaperService) recoverStaleRunningJobs(ctx context.Context) (int64, error) {
	if s.recoverer == nil {
		return 0, nil
	}
	var totalCount int64
	for {
		count, err := s.recoverer.RecoverStale(ctx, s.config.RunningMaxAge, s.config.BatchSize)
		totalCount += int64(count)
		if err != nil {
			return totalCount, err
		}
		if count < s.config.BatchSize {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.WarnContext(ctx, "recovered stale running jobs",
			"count", totalCount,
			"max_age", s.config.RunningMaxAge,
		)
	}

	return totalCount, nil
}

// deleteOldFinishedJobs deletes completed and cancelled jobs older than CompletedMaxAge.
func (s *ReaperService) deleteOldFinishedJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, "completed",
		[]model.JobStatus{model.JobStatusCompleted, model.JobStatusCancelled},
		s.config.CompletedMaxAge,
	)
}

// deleteOldDeadJobs deletes dead and failed jobs older than DeadMaxAge. Their events stay behind.
func (s *ReaperService) deleteOldDeadJobs(ctx context.Context) (int64, error) {
	return s.deleteOldJobs(ctx, "dead",
		[]model.JobStatus{model.JobStatusDead, model.JobStatusFailed},
		s.config.DeadMaxAge,
	)
}

// deleteOldJobs loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) deleteOldJobs(
	ctx context.Context,
	label string,
	statuses []model.JobStatus,
	maxAge time.Duration,
) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			Statuses:  statuses,
			MaxAge:    maxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old "+label+" jobs",
			"count", totalCount,
			"statuses", statuses,
			"max_age", maxAge,
		)
	}

	return totalCount, nil
}

type cleanupMetrics struct {
	RunningCount   int64
	RunningErr     error
	CompletedCount int64
	CompletedErr   error
	DeadCount      int64
	DeadErr        error
	Elapsed        time.Duration
}

func (s *ReaperService) emitCleanupMetrics(m cleanupMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.RunningCount + m.CompletedCount + m.DeadCount
	firstErr := firstError(m.RunningErr, m.CompletedErr, m.DeadErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		tags["error_kind"] = string(domainjob.Classify(firstErr).Kind)
	}

	s.metrics.Count("reaper.cleanup", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitCleanupOperationMetric("recover_running", m.RunningCount, m.RunningErr)
	s.emitCleanupOperationMetric("delete_completed", m.CompletedCount, m.CompletedErr)
	s.emitCleanupOperationMetric("delete_dead", m.DeadCount, m.DeadErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitCleanupOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		tags["error_kind"] = string(domainjob.Classify(err).Kind)
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
