package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer

	// openServices connects infrastructure and wires services; replaced in tests.
	openServices func(cmdCtx *commandContext) (bootstrap.ServiceContainer, func(), error)
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 30 * time.Second
)

func main() {
	cfg, cfgErr := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(&cfg)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	if cfgErr != nil {
		logger.ErrorContext(context.Background(), "load config", "error", cfgErr)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:          context.Background(),
		Logger:       logger,
		Config:       cfg,
		Out:          os.Stdout,
		openServices: connectServices,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"enqueue": {
			name:        "enqueue",
			description: "Enqueue a job (--type, --payload, --max-retries, --run-at)",
			run:         runEnqueue,
		},
		"run-worker": {
			name:        "run-worker",
			description: "Run one dispatcher invocation and print the result",
			run:         runWorker,
		},
		"replay": {
			name:        "replay",
			description: "Return a dead or failed job to the queue (--id)",
			run:         runReplay,
		},
		"cancel": {
			name:        "cancel",
			description: "Cancel a pending or running job (--id)",
			run:         runCancel,
		},
		"pause": {
			name:        "pause",
			description: "Pause the job queue (--reason)",
			run:         runPause,
		},
		"resume": {
			name:        "resume",
			description: "Resume a paused job queue",
			run:         runResume,
		},
		"status": {
			name:        "status",
			description: "Show queue pause state, or one job and its events with --id",
			run:         runStatus,
		},
		"stats": {
			name:        "stats",
			description: "Show job counts per status",
			run:         runStats,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: creative-dispatch-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := writef(w, "  %-12s %s\n", name, all[name].description); err != nil {
			return err
		}
	}
	return nil
}

func (c *commandContext) services() (bootstrap.ServiceContainer, func(), error) {
	open := c.openServices
	if open == nil {
		open = connectServices
	}
	return open(c)
}

func (c *commandContext) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}
