package config

import "time"

// DispatcherConfig controls one dispatcher invocation and its circuit breaker.
type DispatcherConfig struct {
	// Budget caps the wall-clock time of one invocation. A tighter context deadline wins.
	Budget time.Duration `env:"WORKER_BUDGET" envDefault:"4m"`

	// DefaultMaxRetries applies when an enqueue request leaves max_retries unset.
	DefaultMaxRetries int `env:"JOB_DEFAULT_MAX_RETRIES" envDefault:"5"`

	// LongRunningThreshold triggers one alert per job whose handler runs longer than this.
	LongRunningThreshold time.Duration `env:"WORKER_LONG_RUNNING_THRESHOLD" envDefault:"10m"`

	// BreakerThreshold is the number of dead-lettered jobs inside BreakerWindow that pauses the queue.
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"10"`
	BreakerWindow    time.Duration `env:"BREAKER_WINDOW"    envDefault:"10m"`

	// HeartbeatInterval is how often a running job's heartbeat_at is refreshed while its handler runs.
	// Stale recovery only considers jobs whose heartbeat has gone quiet.
	HeartbeatInterval time.Duration `env:"WORKER_HEARTBEAT_INTERVAL" envDefault:"30s"`

	// TransitionTimeout bounds each store write made after a job is claimed. These writes are
	// detached from the trigger's cancellation.
	TransitionTimeout time.Duration `env:"WORKER_TRANSITION_TIMEOUT" envDefault:"30s"`
}

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultTransitionTimeout = 30 * time.Second
)

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Budget < time.Second {
		d.Budget = time.Second
	}
	if d.DefaultMaxRetries < 0 {
		d.DefaultMaxRetries = 0
	}
	if d.DefaultMaxRetries > 50 {
		d.DefaultMaxRetries = 50
	}
	if d.LongRunningThreshold < 0 {
		d.LongRunningThreshold = 0
	}
	if d.BreakerThreshold < 1 {
		d.BreakerThreshold = 1
	}
	if d.BreakerWindow < time.Minute {
		d.BreakerWindow = time.Minute
	}
	if d.HeartbeatInterval <= 0 {
		d.HeartbeatInterval = defaultHeartbeatInterval
	}
	if d.TransitionTimeout <= 0 {
		d.TransitionTimeout = defaultTransitionTimeout
	}
}
