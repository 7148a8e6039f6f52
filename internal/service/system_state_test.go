package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/observability/statsd"
	"github.com/target/creative-dispatch/internal/testutil"
)

type gaugeRecorder struct {
	statsd.Sink
	gauges map[string]float64
}

func (g *gaugeRecorder) Gauge(name string, value float64, _ map[string]string) {
	g.gauges[name] = value
}

func TestQueueStateService(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemoryStore(testutil.TestTime())
	rec := &gaugeRecorder{Sink: statsd.Discard, gauges: map[string]float64{}}
	svc := MustNewQueueStateService(QueueStateServiceOptions{Repo: store, Metrics: rec, Now: store.Now})

	t.Run("missing key reads as not paused", func(t *testing.T) {
		qp, err := svc.QueuePause(ctx)
		require.NoError(t, err)
		assert.False(t, qp.Paused)
	})

	t.Run("pause and resume round trip", func(t *testing.T) {
		qp, err := svc.Pause(ctx, "  too many failures ")
		require.NoError(t, err)
		assert.Equal(t, "too many failures", qp.Reason)
		assert.InDelta(t, 1.0, rec.gauges["queue.paused"], 0)

		stored, err := svc.Get(ctx, model.SystemStateKeyQueuePaused)
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(stored.Value, &raw))
		assert.Equal(t, true, raw["paused"])
		assert.Equal(t, testutil.TestTime().Format(time.RFC3339), raw["at"])

		qp, err = svc.Resume(ctx)
		require.NoError(t, err)
		assert.False(t, qp.Paused)
		assert.InDelta(t, 0.0, rec.gauges["queue.paused"], 0)

		got, err := svc.QueuePause(ctx)
		require.NoError(t, err)
		assert.False(t, got.Paused)
		assert.Empty(t, got.Reason)
	})

	t.Run("undecodable flag is an error", func(t *testing.T) {
		require.NoError(t, svc.Set(ctx, model.SystemStateKeyQueuePaused, json.RawMessage(`"yes"`)))
		_, err := svc.QueuePause(ctx)
		require.Error(t, err)
	})
}

func TestNewQueueStateService_RequiresRepo(t *testing.T) {
	_, err := NewQueueStateService(QueueStateServiceOptions{})
	require.ErrorContains(t, err, "SystemStateRepository is required")
}
