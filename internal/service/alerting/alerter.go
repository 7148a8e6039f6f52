// Package alerting fans dispatcher alerts out to the configured notification sinks.
package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/observability/notify"
)

const defaultDedupTTL = 10 * time.Minute

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the alerter.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Dedup suppresses repeats of an alert's DedupKey within DedupTTL. Optional.
	Dedup    core.CacheRepository
	DedupTTL time.Duration
	// Now stamps alerts that arrive without OccurredAt.
	Now func() time.Time
}

// Alerter delivers alerts to every registered sink. Delivery failures are logged, never returned.
type Alerter struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	dedup    core.CacheRepository
	dedupTTL time.Duration
	now      func() time.Time
}

// New constructs an Alerter.
func New(opts Options) *Alerter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "alerter")

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	ttl := opts.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Alerter{
		logger:   logger,
		sinks:    sinks,
		dedup:    opts.Dedup,
		dedupTTL: ttl,
		now:      now,
	}
}

// SendAlert fans the alert out to all sinks and waits for them to finish.
func (a *Alerter) SendAlert(ctx context.Context, alert notify.Alert) {
	if a == nil || len(a.sinks) == 0 {
		return
	}
	if alert.Severity == "" {
		alert.Severity = notify.SeverityError
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = a.now()
	}
	if a.suppressed(ctx, alert) {
		a.logger.DebugContext(ctx, "duplicate alert suppressed",
			"alert_kind", alert.Kind,
			"job_id", alert.JobID,
		)
		return
	}

	var wg sync.WaitGroup
	for _, entry := range a.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendAlert(ctx, alert); err != nil {
				a.logger.ErrorContext(ctx, "alert delivery failed",
					"sink", entry.Name,
					"alert_kind", alert.Kind,
					"job_id", alert.JobID,
					"job_type", alert.JobType,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// suppressed claims the alert's dedup key. A cache failure lets the alert through.
func (a *Alerter) suppressed(ctx context.Context, alert notify.Alert) bool {
	if a.dedup == nil {
		return false
	}
	set, err := a.dedup.SetIfNotExists(ctx, "alert:"+alert.DedupKey(), []byte(alert.OccurredAt.Format(time.RFC3339Nano)), a.dedupTTL)
	if err != nil {
		a.logger.WarnContext(ctx, "alert dedup check failed", "alert_kind", alert.Kind, "error", err)
		return false
	}
	return !set
}

// Enabled reports whether the alerter has any active sinks.
func (a *Alerter) Enabled() bool {
	return a != nil && len(a.sinks) > 0
}
