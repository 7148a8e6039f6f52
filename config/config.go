// Package config loads creative-dispatch configuration from environment variables.
package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres, Redis and system state backend
//   - dispatcher.go: dispatcher budget, circuit breaker and alert thresholds
//   - http.go: HTTP server configuration
//   - services.go: service mode, worker and reaper configuration
//   - sync.go: offer sync handler configuration
//   - observability.go: metrics, tracing and alert sinks
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, debug level).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	State    StateConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker"`

	Dispatcher DispatcherConfig
	Worker     WorkerConfig
	Reaper     ReaperConfig
	OfferSync  OfferSyncConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.State.Sanitize()
	c.Dispatcher.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
	c.OfferSync.Sanitize()
	c.Observability.Sanitize()

	// A live handler must miss several heartbeats before the reaper treats it as lost.
	if minAge := 3 * c.Dispatcher.HeartbeatInterval; c.Reaper.RunningMaxAge < minAge {
		c.Reaper.RunningMaxAge = minAge
	}

	c.detectDevMode()
}

// detectDevMode checks APP_ENV as a fallback for DEV.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsServiceEnabled reports whether mode is listed in SERVICES.
func (c *AppConfig) IsServiceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// RequiresRedis reports whether any enabled feature needs a Redis connection.
func (c *AppConfig) RequiresRedis() bool {
	return c.State.Backend == StateBackendRedis || c.Observability.Notifications.DedupEnabled()
}
