package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/adapters/jobrunner"
	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/data"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/observability/metrics"
	"github.com/target/creative-dispatch/internal/observability/notify/pagerduty"
	"github.com/target/creative-dispatch/internal/observability/notify/slack"
	"github.com/target/creative-dispatch/internal/observability/prom"
	"github.com/target/creative-dispatch/internal/observability/statsd"
	"github.com/target/creative-dispatch/internal/service"
	"github.com/target/creative-dispatch/internal/service/alerting"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	QueueState    *service.QueueStateService
	Dispatcher    *service.Dispatcher
	Handlers      *service.HandlerRegistry
	Reaper        core.ReaperRepository
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink fans out to StatsD and Prometheus; statsd.Discard when both are off.
	MetricsSink statsd.Sink
	// MetricsHandler serves the Prometheus registry, nil when Prometheus is disabled.
	MetricsHandler http.Handler
	// Alerter is nil when notifications are disabled.
	Alerter service.AlertSender

	statsdClient *statsd.Client
}

// Close releases the StatsD socket.
func (o ObservabilityContainer) Close() error {
	if o.statsdClient == nil {
		return nil
	}
	return o.statsdClient.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	Jobs   core.JobRepository
	Events core.JobEventRepository
	State  core.SystemStateRepository
	Reaper core.ReaperRepository
	// Cache backs alert de-duplication; nil without Redis.
	Cache core.CacheRepository
}

func buildRepositories(cfg *config.AppConfig, db *sql.DB, rdb redis.UniversalClient, logger *slog.Logger) (*serviceRepositories, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	repoCfg := data.RepoConfig{DefaultMaxRetries: cfg.Dispatcher.DefaultMaxRetries, Logger: logger}
	jobs := data.NewJobRepo(db, repoCfg)
	repos := &serviceRepositories{
		Jobs:   jobs,
		Events: data.NewJobEventRepo(db, repoCfg),
		Reaper: jobs,
	}

	switch cfg.State.Backend {
	case config.StateBackendRedis:
		if rdb == nil {
			return nil, errors.New("redis state backend requires a redis connection")
		}
		state, err := data.NewRedisSystemStateRepo(data.RedisSystemStateOptions{
			Client:    rdb,
			KeyPrefix: cfg.Redis.KeyPrefix + "system_state:",
		})
		if err != nil {
			return nil, fmt.Errorf("create redis state repo: %w", err)
		}
		repos.State = state
	default:
		repos.State = data.NewSystemStateRepo(db, nil)
	}

	if rdb != nil {
		repos.Cache = data.NewRedisCacheRepo(rdb, cfg.Redis.KeyPrefix+"cache:")
	}
	return repos, nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, cache core.CacheRepository) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var out ObservabilityContainer
	var sinks []statsd.Sink
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.statsdClient = client
			sinks = append(sinks, client)
		}
	}
	if cfg.Metrics.PrometheusEnabled {
		promSink := prom.NewSink(prom.Options{Namespace: cfg.Metrics.Prefix})
		out.MetricsHandler = promSink.Handler()
		sinks = append(sinks, promSink)
	}
	out.MetricsSink = metrics.NewMultiSink(sinks...)

	if alerter := buildAlerter(obsLogger, cfg.Notifications, cache); alerter != nil {
		out.Alerter = alerter
	}
	return out
}

// buildAlerter returns nil when no sink is configured.
func buildAlerter(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig, cache core.CacheRepository) *alerting.Alerter {
	if !cfg.Enabled {
		return nil
	}

	var sinks []alerting.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack alert sink", "error", err)
		} else {
			sinks = append(sinks, alerting.SinkRegistration{Name: "slack", Sink: client})
		}
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey:  cfg.PagerDuty.RoutingKey,
			Source:      cfg.PagerDuty.Source,
			Component:   cfg.PagerDuty.Component,
			Timeout:     cfg.Timeout,
			RetryLimit:  cfg.RetryLimit,
			MinSeverity: cfg.PagerDuty.MinSeverity,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty alert sink", "error", err)
		} else {
			sinks = append(sinks, alerting.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}
	if len(sinks) == 0 {
		logger.Warn("notifications enabled but no alert sink is configured")
		return nil
	}

	opts := alerting.Options{Logger: logger, Sinks: sinks}
	if cfg.DedupEnabled() && cache != nil {
		opts.Dedup = cache
		opts.DedupTTL = cfg.DedupTTL
	}
	return alerting.New(opts)
}

// buildHandlerRegistry registers a handler for every job type that is configured.
func buildHandlerRegistry(cfg config.OfferSyncConfig, logger *slog.Logger) (*service.HandlerRegistry, error) {
	registry := service.NewHandlerRegistry()
	if !cfg.Enabled() {
		logger.Warn("offer sync handler disabled; offer_sync jobs will fail", "env", "OFFER_API_BASE_URL")
		return registry, nil
	}
	h, err := jobrunner.NewOfferSyncHandler(jobrunner.OfferSyncHandlerOptions{Config: cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create offer sync handler: %w", err)
	}
	if err := registry.Register(model.JobTypeOfferSync, h); err != nil {
		return nil, err
	}
	return registry, nil
}

type containerOptions struct {
	Config        *config.AppConfig
	Repos         *serviceRepositories
	Handlers      *service.HandlerRegistry
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

func newServiceContainer(opts containerOptions) (ServiceContainer, error) {
	obs := opts.Observability
	if obs.MetricsSink == nil {
		obs.MetricsSink = statsd.Discard
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:    opts.Repos.Jobs,
		Events:  opts.Repos.Events,
		Logger:  opts.Logger,
		Metrics: obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	state, err := service.NewQueueStateService(service.QueueStateServiceOptions{
		Repo:    opts.Repos.State,
		Logger:  opts.Logger,
		Metrics: obs.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create queue state service: %w", err)
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Jobs:     opts.Repos.Jobs,
		Events:   opts.Repos.Events,
		State:    state,
		Handlers: opts.Handlers,
		Config:   opts.Config.Dispatcher,
		Alerter:  obs.Alerter,
		Metrics:  obs.MetricsSink,
		Logger:   opts.Logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create dispatcher: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		QueueState:    state,
		Dispatcher:    dispatcher,
		Handlers:      opts.Handlers,
		Reaper:        opts.Repos.Reaper,
		Observability: obs,
	}, nil
}

// NewServices wires repositories, observability and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repos, err := buildRepositories(deps.Config, deps.DB, deps.RedisClient, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	handlers, err := buildHandlerRegistry(deps.Config.OfferSync, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	return newServiceContainer(containerOptions{
		Config:        deps.Config,
		Repos:         repos,
		Handlers:      handlers,
		Observability: buildObservability(logger, deps.Config.Observability, repos.Cache),
		Logger:        logger,
	})
}

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes a startable long-running component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	svcs := cfg.Services
	return []backgroundService{
		{
			mode: config.ServiceModeHTTP,
			name: "http server",
			start: func(ctx context.Context) error {
				server := NewHTTPServer(&HTTPServerConfig{Config: cfg.Config, Services: svcs, Logger: logger})
				return ServeHTTP(ctx, server, logger)
			},
		},
		{
			mode: config.ServiceModeWorker,
			name: "worker",
			start: func(ctx context.Context) error {
				return RunWorker(ctx, WorkerRunConfig{
					Dispatcher: svcs.Dispatcher,
					Subscriber: svcs.Jobs,
					Config:     cfg.Config.Worker,
					Logger:     logger,
				})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			start: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					Repo:      svcs.Reaper,
					Recoverer: svcs.Dispatcher,
					Config:    cfg.Config.Reaper,
					Logger:    logger,
					Metrics:   svcs.Observability.MetricsSink,
				})
			},
		},
	}
}

// enabledBackgroundServices filters services down to the modes listed in SERVICES.
func enabledBackgroundServices(all []backgroundService, enabled map[config.ServiceMode]bool) []backgroundService {
	out := make([]backgroundService, 0, len(all))
	for _, svc := range all {
		if enabled[svc.mode] {
			out = append(out, svc)
		}
	}
	return out
}

// runBackgroundServices runs every service until ctx ends or one of them fails.
// A failing service cancels the others.
func runBackgroundServices(ctx context.Context, services []backgroundService, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		logger.InfoContext(ctx, "background service started", "service", svc.name, "mode", svc.mode)
		g.Go(func() error {
			err := svc.start(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.Info(svc.name + " stopped")
			return nil
		})
	}
	return g.Wait()
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until SIGINT/SIGTERM or until a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down services...")
	}()

	if cfg.Services.Jobs != nil {
		defer cfg.Services.Jobs.StopAll()
	}
	defer func() {
		if closeErr := cfg.Services.Observability.Close(); closeErr != nil {
			logger.Warn("close metrics sink", "error", closeErr)
		}
	}()

	services := enabledBackgroundServices(buildBackgroundServices(cfg, logger), enabled)
	if err := runBackgroundServices(ctx, services, logger); err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	return nil
}
