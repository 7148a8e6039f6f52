package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "all services with spaces",
			input: " http , worker , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:   true,
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:  "duplicate services",
			input: "worker,worker,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeWorker: true,
				ServiceModeReaper: true,
			},
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,",
			expectError: true,
		},
		{
			name:        "invalid service",
			input:       "http,scheduler",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Name != "creative_dispatch" {
		t.Errorf("expected default db name, got %q", cfg.Postgres.Name)
	}
	if cfg.Dispatcher.Budget != 4*time.Minute {
		t.Errorf("expected 4m budget, got %v", cfg.Dispatcher.Budget)
	}
	if cfg.Dispatcher.BreakerThreshold != 10 || cfg.Dispatcher.BreakerWindow != 10*time.Minute {
		t.Errorf("expected breaker 10 in 10m, got %d in %v", cfg.Dispatcher.BreakerThreshold, cfg.Dispatcher.BreakerWindow)
	}
	if cfg.Dispatcher.DefaultMaxRetries != 5 {
		t.Errorf("expected 5 default retries, got %d", cfg.Dispatcher.DefaultMaxRetries)
	}
	if cfg.State.Backend != StateBackendPostgres {
		t.Errorf("expected postgres state backend, got %q", cfg.State.Backend)
	}
	if !cfg.IsServiceEnabled(ServiceModeHTTP) || !cfg.IsServiceEnabled(ServiceModeWorker) {
		t.Errorf("expected http and worker enabled by default")
	}
	if cfg.IsServiceEnabled(ServiceModeReaper) {
		t.Errorf("expected reaper disabled by default")
	}
	if cfg.RequiresRedis() {
		t.Errorf("expected redis not to be required by default")
	}
	if cfg.OfferSync.Enabled() {
		t.Errorf("expected offer sync disabled without a base url")
	}
}

func TestAppConfig_ParseEnvOverrides(t *testing.T) {
	t.Setenv("SERVICES", "worker,reaper")
	t.Setenv("WORKER_BUDGET", "30s")
	t.Setenv("STATE_BACKEND", " Redis ")
	t.Setenv("DB_HOST", "postgres")
	t.Setenv("OFFER_API_BASE_URL", "https://offers.example.com/")
	t.Setenv("WORKER_TRIGGER_TOKEN", " s3cret ")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Dispatcher.Budget != 30*time.Second {
		t.Errorf("expected 30s budget, got %v", cfg.Dispatcher.Budget)
	}
	if cfg.State.Backend != StateBackendRedis || !cfg.RequiresRedis() {
		t.Errorf("expected redis state backend, got %q", cfg.State.Backend)
	}
	if cfg.Postgres.Host != "postgres" {
		t.Errorf("expected DB_HOST override, got %q", cfg.Postgres.Host)
	}
	if cfg.OfferSync.BaseURL != "https://offers.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.OfferSync.BaseURL)
	}
	if cfg.HTTP.WorkerToken != "s3cret" {
		t.Errorf("expected trimmed worker token, got %q", cfg.HTTP.WorkerToken)
	}
	if cfg.IsServiceEnabled(ServiceModeHTTP) {
		t.Errorf("expected http disabled")
	}
}

func TestConfig_ServiceEnabledWithInvalidServices(t *testing.T) {
	cfg := &AppConfig{Services: "invalid"}
	for _, mode := range ValidServiceModes() {
		if cfg.IsServiceEnabled(mode) {
			t.Errorf("expected %s disabled for invalid SERVICES", mode)
		}
	}
}

func TestValidServiceModes(t *testing.T) {
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper}
	if !reflect.DeepEqual(ValidServiceModes(), expected) {
		t.Errorf("expected %v, got %v", expected, ValidServiceModes())
	}
}

func TestDispatcherConfig_Sanitize(t *testing.T) {
	cfg := DispatcherConfig{
		Budget:               0,
		DefaultMaxRetries:    99,
		LongRunningThreshold: -time.Second,
		BreakerThreshold:     0,
		BreakerWindow:        time.Second,
	}
	cfg.Sanitize()

	if cfg.Budget != time.Second {
		t.Errorf("expected budget floor of 1s, got %v", cfg.Budget)
	}
	if cfg.DefaultMaxRetries != 50 {
		t.Errorf("expected retries clamped to 50, got %d", cfg.DefaultMaxRetries)
	}
	if cfg.LongRunningThreshold != 0 {
		t.Errorf("expected negative threshold to disable, got %v", cfg.LongRunningThreshold)
	}
	if cfg.BreakerThreshold != 1 || cfg.BreakerWindow != time.Minute {
		t.Errorf("expected breaker floors, got %d/%v", cfg.BreakerThreshold, cfg.BreakerWindow)
	}
	if cfg.HeartbeatInterval != 30*time.Second || cfg.TransitionTimeout != 30*time.Second {
		t.Errorf("expected heartbeat and transition defaults, got %v/%v", cfg.HeartbeatInterval, cfg.TransitionTimeout)
	}
}

func TestAppConfig_SanitizeKeepsRunningMaxAgeAboveHeartbeat(t *testing.T) {
	cfg := AppConfig{
		Dispatcher: DispatcherConfig{HeartbeatInterval: 10 * time.Minute},
		Reaper:     ReaperConfig{RunningMaxAge: 15 * time.Minute},
	}
	cfg.Sanitize()

	if cfg.Reaper.RunningMaxAge != 30*time.Minute {
		t.Errorf("expected running max age raised to three heartbeats, got %v", cfg.Reaper.RunningMaxAge)
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	cfg := ReaperConfig{BatchSize: 50000}
	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Errorf("expected interval floor, got %v", cfg.Interval)
	}
	if cfg.RunningMaxAge != 5*time.Minute {
		t.Errorf("expected running max age floor, got %v", cfg.RunningMaxAge)
	}
	if cfg.DeadMaxAge != 24*time.Hour {
		t.Errorf("expected dead max age floor, got %v", cfg.DeadMaxAge)
	}
	if cfg.BatchSize != 10000 {
		t.Errorf("expected batch size cap, got %d", cfg.BatchSize)
	}
}

func TestOfferSyncConfig_Sanitize(t *testing.T) {
	cfg := OfferSyncConfig{RequestsPerSecond: -1, PageSize: 5000}
	cfg.Sanitize()

	if cfg.RequestsPerSecond != 1 || cfg.Burst != 1 {
		t.Errorf("expected limiter floors, got %v/%d", cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.PageSize != 1000 || cfg.MaxPages != 1 {
		t.Errorf("expected page bounds, got %d/%d", cfg.PageSize, cfg.MaxPages)
	}
	if cfg.Timeout != time.Second {
		t.Errorf("expected timeout floor, got %v", cfg.Timeout)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        ".creative_dispatch.",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
	if cfg.Prefix != "creative_dispatch" {
		t.Fatalf("expected prefix dots trimmed, got %q", cfg.Prefix)
	}
}

func TestObservabilityConfig_SanitizeLogLevel(t *testing.T) {
	cfg := ObservabilityConfig{LogLevel: " DEBUG "}
	cfg.Sanitize()
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected debug, got %q", cfg.LogLevel)
	}

	cfg.LogLevel = "verbose"
	cfg.Sanitize()
	if cfg.LogLevel != "info" {
		t.Fatalf("expected fallback to info, got %q", cfg.LogLevel)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		DedupTTL:   -time.Minute,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:     true,
			RoutingKey:  " ",
			MinSeverity: " Critical ",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.DedupEnabled() {
		t.Fatal("expected dedup disabled for a negative ttl")
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.Slack.Username != "creative-dispatch" {
		t.Fatalf("expected slack username default, got %q", cfg.Slack.Username)
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "creative-dispatch" || cfg.PagerDuty.Component != "dispatcher" {
		t.Fatalf("expected pagerduty defaults, got %q/%q", cfg.PagerDuty.Source, cfg.PagerDuty.Component)
	}
	if cfg.PagerDuty.MinSeverity != "critical" {
		t.Fatalf("expected normalised min severity, got %q", cfg.PagerDuty.MinSeverity)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled:  false,
		DedupTTL: time.Minute,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "routing",
		},
	}

	cfg.Sanitize()

	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks disabled when notifications are disabled")
	}
	if cfg.DedupEnabled() {
		t.Fatal("expected dedup disabled when notifications are disabled")
	}
}

func TestStateConfig_Sanitize(t *testing.T) {
	cfg := StateConfig{Backend: "mongo"}
	cfg.Sanitize()
	if cfg.Backend != StateBackendPostgres {
		t.Fatalf("expected unknown backend to fall back to postgres, got %q", cfg.Backend)
	}
}
