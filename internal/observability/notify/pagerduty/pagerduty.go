package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/creative-dispatch/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	// Endpoint overrides APIEndpoint (tests, regional ingest).
	Endpoint   string
	Timeout    time.Duration
	RetryLimit int
	// MinSeverity drops alerts ranked below it; empty forwards everything.
	MinSeverity string
	Client      *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey  string
	source      string
	component   string
	endpoint    string
	retryLimit  int
	minSeverity int
	client      *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey:  key,
		source:      fallbackString(strings.TrimSpace(cfg.Source), "creative-dispatch"),
		component:   fallbackString(strings.TrimSpace(cfg.Component), "dispatcher"),
		endpoint:    fallbackString(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit:  max(cfg.RetryLimit, 0),
		minSeverity: severityRank(cfg.MinSeverity),
		client:      hc,
	}, nil
}

// SendAlert submits a trigger event to PagerDuty.
func (c *Client) SendAlert(ctx context.Context, alert notify.Alert) error {
	if severityRank(alert.Severity) < c.minSeverity {
		return nil
	}

	body, err := json.Marshal(c.buildEvent(alert))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.submit(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return lastErr
}

// severityRank orders severities; unknown or empty values rank lowest.
func severityRank(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case notify.SeverityWarning:
		return 1
	case notify.SeverityError:
		return 2
	case notify.SeverityCritical:
		return 3
	default:
		return 0
	}
}

func (c *Client) buildEvent(alert notify.Alert) map[string]any {
	severity := strings.ToLower(fallbackString(alert.Severity, notify.SeverityError))

	occurredAt := alert.OccurredAt.UTC()
	if alert.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"alert_kind": string(alert.Kind),
		"job_id":     alert.JobID,
		"job_type":   alert.JobType,
		"error":      alert.Error,
		"error_kind": alert.ErrorKind,
	}
	for k, v := range alert.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	summary := alert.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s for job %s", alert.Kind, fallbackString(alert.JobID, "unknown"))
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    alert.DedupKey(),
		"payload": map[string]any{
			"summary":        summary,
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func fallbackString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read pagerduty error response: %w", readErr)
		}
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain pagerduty response body: %w", err)
	}
	return nil
}
