package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/target/creative-dispatch/internal/bootstrap"
	"github.com/target/creative-dispatch/internal/domain/model"
)

type migrateOptions struct {
	Timeout time.Duration
}

type enqueueOptions struct {
	Type       string
	Payload    string
	MaxRetries int
	RunAt      string
	Delay      time.Duration
}

type statusOptions struct {
	ID     string
	Events int
	JSON   bool
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnqueueFlags(args)
	if err != nil {
		return err
	}
	req, err := opts.request(time.Now().UTC())
	if err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		job, enqueueErr := svcs.Jobs.Enqueue(ctx, req)
		if enqueueErr != nil {
			return fmt.Errorf("enqueue: %w", enqueueErr)
		}
		return printJob(cmdCtx.out(), job)
	})
}

// runWorker performs one dispatcher invocation. The dispatcher's own budget bounds it.
func runWorker(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("run-worker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, 0, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		res, runErr := svcs.Dispatcher.Run(ctx)
		if runErr != nil {
			return fmt.Errorf("dispatcher run: %w", runErr)
		}
		return printRunResult(cmdCtx.out(), res)
	})
}

func runReplay(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag("replay", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		job, replayErr := svcs.Jobs.Replay(ctx, id)
		if replayErr != nil {
			return fmt.Errorf("replay %s: %w", id, replayErr)
		}
		return printJob(cmdCtx.out(), job)
	})
}

func runCancel(cmdCtx *commandContext, args []string) error {
	id, err := parseIDFlag("cancel", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		job, cancelErr := svcs.Jobs.Cancel(ctx, id)
		if cancelErr != nil {
			return fmt.Errorf("cancel %s: %w", id, cancelErr)
		}
		return printJob(cmdCtx.out(), job)
	})
}

func runPause(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("pause", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	reason := fs.String("reason", "paused by operator", "Reason recorded with the pause flag")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		qp, pauseErr := svcs.QueueState.Pause(ctx, strings.TrimSpace(*reason))
		if pauseErr != nil {
			return fmt.Errorf("pause queue: %w", pauseErr)
		}
		return printQueuePause(cmdCtx.out(), qp)
	})
}

func runResume(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		qp, resumeErr := svcs.QueueState.Resume(ctx)
		if resumeErr != nil {
			return fmt.Errorf("resume queue: %w", resumeErr)
		}
		return printQueuePause(cmdCtx.out(), qp)
	})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatusFlags(args)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		if opts.ID == "" {
			qp, qErr := svcs.QueueState.QueuePause(ctx)
			if qErr != nil {
				return fmt.Errorf("read queue state: %w", qErr)
			}
			if opts.JSON {
				return printJSON(cmdCtx.out(), qp)
			}
			return printQueuePause(cmdCtx.out(), qp)
		}

		job, getErr := svcs.Jobs.Get(ctx, opts.ID)
		if getErr != nil {
			return fmt.Errorf("get job %s: %w", opts.ID, getErr)
		}
		events, evErr := svcs.Jobs.Events(ctx, model.JobEventListOptions{JobID: opts.ID, Limit: opts.Events})
		if evErr != nil {
			return fmt.Errorf("list events for %s: %w", opts.ID, evErr)
		}
		if opts.JSON {
			return printJSON(cmdCtx.out(), map[string]any{"job": job, "events": events})
		}
		if printErr := printJob(cmdCtx.out(), job); printErr != nil {
			return printErr
		}
		return printEvents(cmdCtx.out(), events)
	})
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print stats as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svcs bootstrap.ServiceContainer) error {
		stats, statsErr := svcs.Jobs.Stats(ctx)
		if statsErr != nil {
			return fmt.Errorf("job stats: %w", statsErr)
		}
		if *asJSON {
			return printJSON(cmdCtx.out(), stats)
		}
		return printStats(cmdCtx.out(), stats)
	})
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseEnqueueFlags(args []string) (enqueueOptions, error) {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts enqueueOptions
	fs.StringVar(&opts.Type, "type", string(model.JobTypeOfferSync), "Job type")
	fs.StringVar(&opts.Payload, "payload", "{}", "JSON payload handed to the job handler")
	fs.IntVar(&opts.MaxRetries, "max-retries", -1, "Retry budget (0-50); negative uses the configured default")
	fs.StringVar(&opts.RunAt, "run-at", "", "Earliest run time (RFC 3339); empty runs as soon as possible")
	fs.DurationVar(&opts.Delay, "delay", 0, "Delay before the job becomes due; ignored when --run-at is set")

	if err := fs.Parse(args); err != nil {
		return enqueueOptions{}, err
	}
	if fs.NArg() > 0 {
		return enqueueOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.Delay < 0 {
		return enqueueOptions{}, errors.New("--delay must not be negative")
	}
	return opts, nil
}

// request builds the create request; now anchors --delay.
func (o enqueueOptions) request(now time.Time) (*model.CreateJobRequest, error) {
	payload := strings.TrimSpace(o.Payload)
	if payload == "" {
		payload = "{}"
	}
	req := &model.CreateJobRequest{
		Type:    model.JobType(strings.TrimSpace(o.Type)),
		Payload: json.RawMessage(payload),
	}
	if o.MaxRetries >= 0 {
		maxRetries := o.MaxRetries
		req.MaxRetries = &maxRetries
	}

	switch {
	case o.RunAt != "":
		runAt, err := time.Parse(time.RFC3339, o.RunAt)
		if err != nil {
			return nil, fmt.Errorf("--run-at: %w", err)
		}
		runAt = runAt.UTC()
		req.RunAt = &runAt
	case o.Delay > 0:
		runAt := now.Add(o.Delay)
		req.RunAt = &runAt
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func parseIDFlag(name string, args []string) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "Job ID")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	// Accept the ID positionally too: `replay <id>`.
	if *id == "" && fs.NArg() == 1 {
		*id = fs.Arg(0)
	}
	return validateJobID(*id)
}

func parseStatusFlags(args []string) (statusOptions, error) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts statusOptions
	fs.StringVar(&opts.ID, "id", "", "Show a single job and its event log")
	fs.IntVar(&opts.Events, "events", 50, "Maximum number of events to show with --id")
	fs.BoolVar(&opts.JSON, "json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return statusOptions{}, err
	}

	if opts.ID != "" {
		id, err := validateJobID(opts.ID)
		if err != nil {
			return statusOptions{}, err
		}
		opts.ID = id
	}
	if opts.Events < 1 || opts.Events > 1000 {
		return statusOptions{}, errors.New("--events must be between 1 and 1000")
	}
	return opts, nil
}

func validateJobID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.New("--id is required")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("--id must be a UUID: %w", err)
	}
	return parsed.String(), nil
}
