package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/testutil"
)

// concurrency tracks how many handler calls overlap.
type concurrency struct {
	calls, current, peak atomic.Int32
}

func (c *concurrency) enter() int32 {
	call := c.calls.Add(1)
	n := c.current.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return call
		}
	}
}

func (c *concurrency) exit() { c.current.Add(-1) }

func TestDispatcher_HeartbeatKeepsLongHandlerOwned(t *testing.T) {
	ctx := context.Background()
	h := newDispatcherHarness(t, func(c *config.DispatcherConfig) {
		c.HeartbeatInterval = 5 * time.Millisecond
	})
	var cc concurrency
	var j *model.Job
	h.handlers.MustRegister(syncJobType, domainjob.HandlerFunc(
		func(ctx context.Context, _ *model.Job, _ domainjob.Reporter) (json.RawMessage, error) {
			call := cc.enter()
			defer cc.exit()
			if call > 1 {
				return json.RawMessage(`{"attempt":2}`), nil
			}

			h.store.Clock().Advance(2 * time.Hour)
			require.Eventually(t, func() bool {
				got, err := h.store.GetByID(ctx, j.ID)
				return err == nil && got.HeartbeatAt != nil && got.HeartbeatAt.Equal(h.store.Now())
			}, time.Second, time.Millisecond)

			recovered, err := h.dispatcher.RecoverStale(ctx, time.Hour, 10)
			require.NoError(t, err)
			assert.Zero(t, recovered, "a job with a live heartbeat is not stale")

			h.store.Clock().Advance(10 * time.Minute)
			res, err := h.dispatcher.Run(ctx)
			require.NoError(t, err)
			assert.Zero(t, res.Processed)
			return json.RawMessage(`{"attempt":1}`), nil
		}))
	j = h.enqueue(t, testutil.NewJobRequest().WithType(syncJobType))

	_, err := h.dispatcher.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), cc.calls.Load())
	assert.Equal(t, int32(1), cc.peak.Load())
	got := h.get(t, j.ID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"attempt":1}`, string(got.Result))
	assert.Nil(t, got.ClaimToken)
	assert.Equal(t, []model.JobEventType{model.JobEventStarted, model.JobEventCompleted}, h.store.EventTypes(j.ID))
}

func TestDispatcher_SupersededInvocationCannotOverwriteOutcome(t *testing.T) {
	ctx := context.Background()
	// Heartbeats never fire inside the test, so the first claim looks lost.
	h := newDispatcherHarness(t, func(c *config.DispatcherConfig) {
		c.HeartbeatInterval = time.Hour
	})
	var j *model.Job
	var calls atomic.Int32
	h.handlers.MustRegister(syncJobType, domainjob.HandlerFunc(
		func(ctx context.Context, _ *model.Job, r domainjob.Reporter) (json.RawMessage, error) {
			if calls.Add(1) > 1 {
				r.Progress(ctx, 2, 2)
				return json.RawMessage(`{"attempt":2}`), nil
			}

			h.store.Clock().Advance(2 * time.Hour)
			recovered, err := h.dispatcher.RecoverStale(ctx, time.Hour, 10)
			require.NoError(t, err)
			require.Equal(t, 1, recovered)

			h.store.Clock().Advance(10 * time.Minute)
			res, err := h.dispatcher.Run(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, res.Processed)

			r.Progress(ctx, 1, 99)
			return json.RawMessage(`{"attempt":1}`), nil
		}))
	j = h.enqueue(t, testutil.NewJobRequest().WithType(syncJobType))

	_, err := h.dispatcher.Run(ctx)
	require.NoError(t, err)

	got := h.get(t, j.ID)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"attempt":2}`, string(got.Result), "the newer claim's outcome stands")
	assert.Equal(t, 2, got.Progress)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t,
		[]model.JobEventType{
			model.JobEventStarted, model.JobEventRetryScheduled,
			model.JobEventStarted, model.JobEventCompleted,
		},
		h.store.EventTypes(j.ID))
}

// strictStore refuses writes on a done context, as database/sql does.
type strictStore struct {
	*testutil.MemoryStore
}

func (s strictStore) MarkCompleted(ctx context.Context, p core.CompleteJobParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.MarkCompleted(ctx, p)
}

func (s strictStore) ScheduleRetry(ctx context.Context, p core.RetryJobParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.ScheduleRetry(ctx, p)
}

func (s strictStore) MoveToDeadLetter(ctx context.Context, p core.DeadLetterParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.MoveToDeadLetter(ctx, p)
}

func (s strictStore) Release(ctx context.Context, p core.ReleaseJobParams) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.MemoryStore.Release(ctx, p)
}

func (s strictStore) Append(ctx context.Context, ev model.NewJobEvent) (*model.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Append(ctx, ev)
}

func newStrictDispatcher(t *testing.T, handlers *HandlerRegistry) (*testutil.MemoryStore, *Dispatcher) {
	t.Helper()
	store := testutil.NewMemoryStore(testutil.TestTime())
	strict := strictStore{MemoryStore: store}
	return store, MustNewDispatcher(DispatcherOptions{
		Jobs:     strict,
		Events:   strict,
		State:    MustNewQueueStateService(QueueStateServiceOptions{Repo: store, Now: store.Now}),
		Handlers: handlers,
		Config:   defaultDispatcherConfig(),
		Retry:    domainjob.NewRetryPolicy(domainjob.NoJitter),
		Now:      store.Now,
	})
}

func TestDispatcher_InterruptedInvocationReleasesJob(t *testing.T) {
	handlers := NewHandlerRegistry()
	store, d := newStrictDispatcher(t, handlers)

	trigger, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls atomic.Int32
	handlers.MustRegister(syncJobType, domainjob.HandlerFunc(
		func(ctx context.Context, _ *model.Job, _ domainjob.Reporter) (json.RawMessage, error) {
			if calls.Add(1) == 1 {
				cancel()
				return nil, ctx.Err()
			}
			return json.RawMessage(`{}`), nil
		}))
	j, err := store.Create(context.Background(), testutil.NewJobRequest().WithType(syncJobType).WithMaxRetries(1).Build())
	require.NoError(t, err)

	res, err := d.Run(trigger)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	got, err := store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Zero(t, got.RetryCount, "an interrupted attempt does not spend a retry")
	assert.Nil(t, got.NextRunAt)
	assert.Nil(t, got.ClaimToken)
	assert.Equal(t, []model.JobEventType{model.JobEventStarted, model.JobEventReleased}, store.EventTypes(j.ID))

	res, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	got, err = store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestDispatcher_CompletionSurvivesTriggerCancellation(t *testing.T) {
	handlers := NewHandlerRegistry()
	store, d := newStrictDispatcher(t, handlers)

	trigger, cancel := context.WithCancel(context.Background())
	defer cancel()
	handlers.MustRegister(syncJobType, domainjob.HandlerFunc(
		func(context.Context, *model.Job, domainjob.Reporter) (json.RawMessage, error) {
			cancel()
			return json.RawMessage(`{"done":true}`), nil
		}))
	j, err := store.Create(context.Background(), testutil.NewJobRequest().WithType(syncJobType).Build())
	require.NoError(t, err)

	_, err = d.Run(trigger)
	require.NoError(t, err)

	got, err := store.GetByID(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"done":true}`, string(got.Result))
}
