// Package jobrunner drives the dispatcher on a schedule and hosts the built-in job handlers.
package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// DispatchFunc runs one bounded dispatcher invocation.
type DispatchFunc interface {
	Run(ctx context.Context) (*model.WorkerRunResult, error)
}

// EnqueueSubscriber delivers a signal whenever a job is enqueued.
type EnqueueSubscriber interface {
	Subscribe() (func(), <-chan struct{})
}

// RunnerOptions configures the periodic worker trigger.
type RunnerOptions struct {
	Dispatcher DispatchFunc
	Config     config.WorkerConfig
	Logger     *slog.Logger

	// Subscriber is optional; when set and WakeOnEnqueue is on, an enqueue starts a run early.
	Subscriber EnqueueSubscriber
}

// Runner invokes the dispatcher on every tick, standing in for an external cron trigger.
type Runner struct {
	dispatcher DispatchFunc
	subscriber EnqueueSubscriber
	interval   time.Duration
	wake       bool
	logger     *slog.Logger
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Runner{
		dispatcher: opts.Dispatcher,
		subscriber: opts.Subscriber,
		interval:   cfg.Interval,
		wake:       cfg.WakeOnEnqueue && opts.Subscriber != nil,
		logger:     resolveLogger(opts.Logger).With("component", "job_runner"),
	}, nil
}

// Run triggers the dispatcher until the context is cancelled. A failed invocation is logged
// and the next tick tries again.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "interval", r.interval, "wake_on_enqueue", r.wake)

	var notify <-chan struct{}
	if r.wake {
		unsub, ch := r.subscriber.Subscribe()
		defer unsub()
		notify = ch
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		if !r.waitForNotify(ctx, ticker.C, notify) {
			return nil
		}
		r.runOnce(ctx)
	}
}

// RunOnce performs a single dispatcher invocation.
func (r *Runner) RunOnce(ctx context.Context) (*model.WorkerRunResult, error) {
	return r.dispatcher.Run(ctx)
}

func (r *Runner) runOnce(ctx context.Context) {
	res, err := r.dispatcher.Run(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		r.logger.ErrorContext(ctx, "dispatcher run failed", "error", err)
	case res.Paused:
		r.logger.DebugContext(ctx, "dispatcher skipped, queue paused", "reason", res.Reason)
	case res.Processed > 0:
		r.logger.InfoContext(ctx, "dispatcher run finished", "processed", res.Processed)
	}
}

func (r *Runner) waitForNotify(ctx context.Context, tick <-chan time.Time, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-tick:
		return true
	case <-notify:
		return true
	}
}
