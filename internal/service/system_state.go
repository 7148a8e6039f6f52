package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/observability/metrics"
	"github.com/target/creative-dispatch/internal/observability/statsd"
)

// QueueStateServiceOptions groups dependencies for QueueStateService.
type QueueStateServiceOptions struct {
	Repo    core.SystemStateRepository // Required: system state store
	Logger  *slog.Logger               // Optional: structured logger
	Metrics statsd.Sink                // Optional: metrics sink
	Now     func() time.Time           // Optional: clock override for tests
}

// QueueStateService reads and writes the persisted queue pause flag.
type QueueStateService struct {
	repo    core.SystemStateRepository
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewQueueStateService constructs a QueueStateService.
func NewQueueStateService(opts QueueStateServiceOptions) (*QueueStateService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SystemStateRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &QueueStateService{
		repo:    opts.Repo,
		logger:  logger.With("component", "queue_state"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// MustNewQueueStateService constructs a QueueStateService and panics on error.
func MustNewQueueStateService(opts QueueStateServiceOptions) *QueueStateService {
	svc, err := NewQueueStateService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create QueueStateService: %v", err))
	}
	return svc
}

// QueuePause returns the current pause document. A key that was never written reads as not paused.
func (s *QueueStateService) QueuePause(ctx context.Context) (model.QueuePause, error) {
	st, err := s.repo.Get(ctx, model.SystemStateKeyQueuePaused)
	if err != nil {
		return model.QueuePause{}, fmt.Errorf("read queue pause flag: %w", err)
	}
	if st == nil || len(st.Value) == 0 {
		return model.QueuePause{}, nil
	}
	var qp model.QueuePause
	if err := json.Unmarshal(st.Value, &qp); err != nil {
		return model.QueuePause{}, fmt.Errorf("decode queue pause flag: %w", err)
	}
	return qp, nil
}

// Pause sets the queue pause flag with reason.
func (s *QueueStateService) Pause(ctx context.Context, reason string) (model.QueuePause, error) {
	at := s.now()
	qp := model.QueuePause{Paused: true, Reason: strings.TrimSpace(reason), At: &at}
	if err := s.write(ctx, qp); err != nil {
		return model.QueuePause{}, err
	}
	s.logger.WarnContext(ctx, "job queue paused", "reason", qp.Reason)
	return qp, nil
}

// Resume clears the pause flag. It is the only way a paused queue starts claiming again.
func (s *QueueStateService) Resume(ctx context.Context) (model.QueuePause, error) {
	at := s.now()
	qp := model.QueuePause{Paused: false, At: &at}
	if err := s.write(ctx, qp); err != nil {
		return model.QueuePause{}, err
	}
	s.logger.InfoContext(ctx, "job queue resumed")
	return qp, nil
}

// Get returns the raw state document for key, or nil when it was never written.
func (s *QueueStateService) Get(ctx context.Context, key string) (*model.SystemState, error) {
	return s.repo.Get(ctx, key)
}

// Set stores a raw state document under key.
func (s *QueueStateService) Set(ctx context.Context, key string, value json.RawMessage) error {
	return s.repo.Set(ctx, key, value)
}

func (s *QueueStateService) write(ctx context.Context, qp model.QueuePause) error {
	raw, err := json.Marshal(qp)
	if err != nil {
		return fmt.Errorf("encode queue pause flag: %w", err)
	}
	if err := s.repo.Set(ctx, model.SystemStateKeyQueuePaused, raw); err != nil {
		return fmt.Errorf("write queue pause flag: %w", err)
	}
	metrics.EmitQueuePaused(s.metrics, qp.Paused)
	return nil
}
