package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"creative_dispatch"`
	Password string `env:"PASSWORD"                envDefault:"creative_dispatch"`
	Name     string `env:"NAME"                    envDefault:"creative_dispatch"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI       string `env:"URI"        envDefault:"localhost:6379"`
	Password  string `env:"PASSWORD"   envDefault:""`
	DB        int    `env:"DB"         envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"creative-dispatch:"`
}

// StateBackend selects where System State lives.
type StateBackend string

const (
	// StateBackendPostgres keeps System State in the system_state table.
	StateBackendPostgres StateBackend = "postgres"
	// StateBackendRedis keeps System State in Redis hashes.
	StateBackendRedis StateBackend = "redis"
)

// StateConfig selects the System State backend.
type StateConfig struct {
	Backend StateBackend `env:"STATE_BACKEND" envDefault:"postgres"`
}

// Sanitize falls back to postgres for unknown backends.
func (s *StateConfig) Sanitize() {
	s.Backend = StateBackend(strings.ToLower(strings.TrimSpace(string(s.Backend))))
	if s.Backend != StateBackendRedis {
		s.Backend = StateBackendPostgres
	}
}
