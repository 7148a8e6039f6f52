package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/adapters/jobrunner"
	"github.com/target/creative-dispatch/internal/adapters/reaper"
	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/observability/statsd"
	"github.com/target/creative-dispatch/internal/service"
)

// WorkerRunConfig contains configuration for the periodic dispatcher trigger.
type WorkerRunConfig struct {
	Dispatcher jobrunner.DispatchFunc
	// Subscriber wakes the worker on enqueue when Config.WakeOnEnqueue is set. Optional.
	Subscriber jobrunner.EnqueueSubscriber
	Config     config.WorkerConfig
	Logger     *slog.Logger
}

// RunWorker starts the periodic dispatcher trigger.
func RunWorker(ctx context.Context, cfg WorkerRunConfig) error {
	runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
		Dispatcher: cfg.Dispatcher,
		Subscriber: cfg.Subscriber,
		Config:     cfg.Config,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}
	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Repo      core.ReaperRepository
	Recoverer service.StaleRecoverer
	Config    config.ReaperConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Repo:      cfg.Repo,
		Recoverer: cfg.Recoverer,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
