// Package notify defines the alert payload shared by every outbound alert sink.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// AlertKind identifies the dispatcher moment that raised an alert.
type AlertKind string

const (
	// AlertRetryExhaustionImminent fires when a job's last allowed retry is scheduled.
	AlertRetryExhaustionImminent AlertKind = "retry_exhaustion_imminent"
	// AlertLongRunningJob fires when a handler outlives the long-running threshold.
	AlertLongRunningJob AlertKind = "long_running_job"
	// AlertQueuePaused fires when the dead-letter circuit breaker pauses the queue.
	AlertQueuePaused AlertKind = "queue_paused"
)

// Alert is the canonical payload emitted to alert sinks.
type Alert struct {
	Kind       AlertKind
	Summary    string
	Severity   string
	JobID      string
	JobType    string
	ErrorKind  string
	Error      string
	OccurredAt time.Time
	Metadata   map[string]string
}

// DedupKey groups repeated alerts for the same subject.
func (a Alert) DedupKey() string {
	if a.JobID != "" {
		return string(a.Kind) + ":" + a.JobID
	}
	return string(a.Kind)
}

// Sink describes a destination capable of delivering alerts.
type Sink interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, alert Alert) error

// SendAlert implements the Sink interface.
func (f SinkFunc) SendAlert(ctx context.Context, alert Alert) error {
	if f == nil {
		return nil
	}
	return f(ctx, alert)
}
