package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/creative-dispatch/internal/bootstrap"
)

// connectServices dials Postgres (and Redis when the config needs it) and wires the service container.
func connectServices(cmdCtx *commandContext) (bootstrap.ServiceContainer, func(), error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return bootstrap.ServiceContainer{}, nil, fmt.Errorf("connect db: %w", err)
	}

	var redisClient redis.UniversalClient
	if cmdCtx.Config.RequiresRedis() {
		redisClient, err = bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cmdCtx.Config.Redis, Logger: cmdCtx.Logger})
		if err != nil {
			return bootstrap.ServiceContainer{}, nil, errors.Join(fmt.Errorf("connect redis: %w", err), closeInfra(db, nil))
		}
	}

	svcs, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: redisClient,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return bootstrap.ServiceContainer{}, nil, errors.Join(fmt.Errorf("wire services: %w", err), closeInfra(db, redisClient))
	}

	cleanup := func() {
		svcs.Jobs.StopAll()
		if cerr := svcs.Observability.Close(); cerr != nil {
			cmdCtx.Logger.Warn("metrics close failed", "error", cerr)
		}
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("infra close failed", "error", cerr)
		}
	}
	return svcs, cleanup, nil
}

// withServices runs f with a signal-aware, time-bounded context and a wired service container.
func withServices(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, bootstrap.ServiceContainer) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	svcs, cleanup, err := cmdCtx.services()
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return f(ctx, svcs)
}

// withDatabase runs f with a bare database connection.
func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func closeInfra(db *sql.DB, redisClient redis.UniversalClient) error {
	var closeErr error
	if db != nil {
		if err := db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
