package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/target/creative-dispatch/internal/mocks"
	"github.com/target/creative-dispatch/internal/observability/notify"
)

type captureSink struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (c *captureSink) SendAlert(_ context.Context, a notify.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type memoryDedup struct {
	mu   sync.Mutex
	keys map[string][]byte
	err  error
}

func (m *memoryDedup) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *memoryDedup) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryDedup) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	delete(m.keys, key)
	return ok, nil
}

func (m *memoryDedup) SetIfNotExists(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = value
	return true, nil
}

func (m *memoryDedup) Health(context.Context) error { return nil }

func TestAlerterSendAlert(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &captureSink{}
	a := New(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: sink}},
		Now:   func() time.Time { return fixed },
	})

	a.SendAlert(context.Background(), notify.Alert{Kind: notify.AlertLongRunningJob, JobID: "j1"})

	if sink.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", sink.count())
	}
	got := sink.alerts[0]
	if got.Severity != notify.SeverityError {
		t.Fatalf("expected severity to default to error, got %s", got.Severity)
	}
	if !got.OccurredAt.Equal(fixed) {
		t.Fatalf("expected OccurredAt %s, got %s", fixed, got.OccurredAt)
	}
}

func TestAlerterDisabled(t *testing.T) {
	a := New(Options{Sinks: []SinkRegistration{{Name: "nil"}}})
	if a.Enabled() {
		t.Fatal("expected Enabled() to be false when no sinks registered")
	}
	// Must not panic.
	a.SendAlert(context.Background(), notify.Alert{Kind: notify.AlertQueuePaused})

	var nilAlerter *Alerter
	nilAlerter.SendAlert(context.Background(), notify.Alert{})
}

func TestAlerterSinkErrorDoesNotBlockOthers(t *testing.T) {
	good := &captureSink{}
	a := New(Options{
		Sinks: []SinkRegistration{
			{Name: "fail", Sink: notify.SinkFunc(func(context.Context, notify.Alert) error {
				return errors.New("boom")
			})},
			{Name: "good", Sink: good},
		},
	})

	a.SendAlert(context.Background(), notify.Alert{Kind: notify.AlertQueuePaused})

	if good.count() != 1 {
		t.Fatalf("expected healthy sink to receive the alert, got %d", good.count())
	}
}

func TestAlerterDedup(t *testing.T) {
	sink := &captureSink{}
	dedup := &memoryDedup{keys: map[string][]byte{}}
	a := New(Options{
		Sinks: []SinkRegistration{{Name: "capture", Sink: sink}},
		Dedup: dedup,
	})
	ctx := context.Background()

	a.SendAlert(ctx, notify.Alert{Kind: notify.AlertRetryExhaustionImminent, JobID: "j1"})
	a.SendAlert(ctx, notify.Alert{Kind: notify.AlertRetryExhaustionImminent, JobID: "j1"})
	a.SendAlert(ctx, notify.Alert{Kind: notify.AlertRetryExhaustionImminent, JobID: "j2"})

	if sink.count() != 2 {
		t.Fatalf("expected 2 alerts after dedup, got %d", sink.count())
	}
	if _, ok := dedup.keys["alert:retry_exhaustion_imminent:j1"]; !ok {
		t.Fatal("expected dedup key for j1")
	}

	dedup.err = errors.New("redis down")
	a.SendAlert(ctx, notify.Alert{Kind: notify.AlertRetryExhaustionImminent, JobID: "j1"})
	if sink.count() != 3 {
		t.Fatalf("expected cache failure to let the alert through, got %d", sink.count())
	}
}

func TestAlerterDedupUsesConfiguredTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	sink := &captureSink{}
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := New(Options{
		Sinks:    []SinkRegistration{{Name: "capture", Sink: sink}},
		Dedup:    cache,
		DedupTTL: 30 * time.Minute,
		Now:      func() time.Time { return at },
	})

	cache.EXPECT().
		SetIfNotExists(gomock.Any(), "alert:queue_paused", []byte(at.Format(time.RFC3339Nano)), 30*time.Minute).
		Return(false, nil)

	a.SendAlert(context.Background(), notify.Alert{Kind: notify.AlertQueuePaused})
	if sink.count() != 0 {
		t.Fatalf("expected alert suppressed while the key is held, got %d", sink.count())
	}
}
