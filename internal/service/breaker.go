package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/observability/notify"
)

// AlertSender delivers operator alerts. Implementations swallow their own delivery errors.
type AlertSender interface {
	SendAlert(ctx context.Context, alert notify.Alert)
}

type nopAlertSender struct{}

func (nopAlertSender) SendAlert(context.Context, notify.Alert) {}

// CircuitBreaker pauses the queue when too many jobs were dead-lettered within a window.
// It only ever sets the pause flag; resuming is an operator action.
type CircuitBreaker struct {
	jobs      core.JobRepository
	state     *QueueStateService
	alerts    AlertSender
	logger    *slog.Logger
	threshold int
	window    time.Duration
	now       func() time.Time
}

// BreakerOutcome describes one Evaluate call.
type BreakerOutcome struct {
	DeadInWindow int
	Tripped      bool
}

// Evaluate counts recent dead letters and pauses the queue once the threshold is reached.
// A queue that is already paused is left alone so the pause alert fires once.
func (b *CircuitBreaker) Evaluate(ctx context.Context) (BreakerOutcome, error) {
	now := b.now()
	count, err := b.jobs.CountDeadLetteredSince(ctx, now.Add(-b.window))
	if err != nil {
		return BreakerOutcome{}, fmt.Errorf("count dead-lettered jobs: %w", err)
	}
	out := BreakerOutcome{DeadInWindow: count}
	if count < b.threshold {
		return out, nil
	}

	current, err := b.state.QueuePause(ctx)
	if err != nil {
		return out, err
	}
	if current.Paused {
		return out, nil
	}

	reason := fmt.Sprintf("%d jobs dead-lettered in the last %s", count, b.window)
	if _, err := b.state.Pause(ctx, reason); err != nil {
		return out, err
	}
	out.Tripped = true

	b.logger.ErrorContext(ctx, "circuit breaker tripped, job queue paused",
		"dead_in_window", count,
		"threshold", b.threshold,
		"window", b.window,
	)
	b.alerts.SendAlert(ctx, notify.Alert{
		Kind:       notify.AlertQueuePaused,
		Summary:    "Job queue paused: " + reason,
		Severity:   notify.SeverityCritical,
		OccurredAt: now,
		Metadata: map[string]string{
			"dead_in_window": strconv.Itoa(count),
			"threshold":      strconv.Itoa(b.threshold),
			"window":         b.window.String(),
		},
	})
	return out, nil
}
