package config

import "strings"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// WorkerToken, when set, must be presented as a bearer token to POST /api/worker/run.
	WorkerToken string `env:"WORKER_TRIGGER_TOKEN"`

	// AdminToken, when set, must be presented as a bearer token to the job and queue admin routes.
	AdminToken string `env:"ADMIN_TOKEN"`

	// TracingEnabled starts an OpenTelemetry server span per request.
	TracingEnabled bool `env:"HTTP_TRACING_ENABLED" envDefault:"false"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.WorkerToken = strings.TrimSpace(h.WorkerToken)
	h.AdminToken = strings.TrimSpace(h.AdminToken)
}
