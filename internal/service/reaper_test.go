package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/config"
	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/testutil"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	mu sync.Mutex

	deleteCalls []core.DeleteOldJobsParams
	deleteCount int64
	deleteError error
}

func (m *mockReaperRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, params)
	if m.deleteError != nil {
		return 0, m.deleteError
	}
	// Return count on odd calls, then 0 on even calls to simulate batch exhaustion
	if len(m.deleteCalls)%2 == 1 {
		return m.deleteCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) calls() []core.DeleteOldJobsParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.DeleteOldJobsParams(nil), m.deleteCalls...)
}

type stubRecoverer struct {
	mu     sync.Mutex
	counts []int
	err    error
	calls  int
	ages   []time.Duration
}

func (s *stubRecoverer) RecoverStale(_ context.Context, olderThan time.Duration, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.ages = append(s.ages, olderThan)
	if s.err != nil {
		return 0, s.err
	}
	if len(s.counts) == 0 {
		return 0, nil
	}
	n := s.counts[0]
	s.counts = s.counts[1:]
	return n, nil
}

func (s *stubRecoverer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		RunningMaxAge:   time.Hour,
		CompletedMaxAge: 7 * 24 * time.Hour,
		DeadMaxAge:      30 * 24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "ReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		repo := &mockReaperRepo{deleteCount: 10}
		rec := &stubRecoverer{counts: []int{3}}
		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Recoverer: rec,
			Config:    testReaperConfig(),
		})

		err := svc.runCleanup(context.Background())

		require.NoError(t, err)
		// A short batch ends recovery after one call.
		assert.Equal(t, 1, rec.callCount())
		assert.Equal(t, []time.Duration{time.Hour}, rec.ages)

		calls := repo.calls()
		// DeleteOldJobs is called twice per retention class (finished, dead): 2 * 2 = 4
		require.Len(t, calls, 4)
		assert.Equal(t, []model.JobStatus{model.JobStatusCompleted, model.JobStatusCancelled}, calls[0].Statuses)
		assert.Equal(t, 7*24*time.Hour, calls[0].MaxAge)
		assert.Equal(t, []model.JobStatus{model.JobStatusDead, model.JobStatusFailed}, calls[2].Statuses)
		assert.Equal(t, 30*24*time.Hour, calls[2].MaxAge)
		assert.Equal(t, 1000, calls[2].BatchSize)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{deleteCount: 10}
		rec := &stubRecoverer{err: errors.New("list stale: connection refused")}
		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Recoverer: rec,
			Config:    testReaperConfig(),
		})

		err := svc.runCleanup(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "recover stale running jobs")
		assert.Equal(t, 1, rec.callCount())
		assert.Len(t, repo.calls(), 4)
	})

	t.Run("works without a recoverer", func(t *testing.T) {
		repo := &mockReaperRepo{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Len(t, repo.calls(), 2)
	})
}

func TestReaperService_recoverStaleRunningJobs(t *testing.T) {
	t.Run("loops while batches come back full", func(t *testing.T) {
		cfg := testReaperConfig()
		cfg.BatchSize = 2
		rec := &stubRecoverer{counts: []int{2, 2, 1}}
		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:      &mockReaperRepo{},
			Recoverer: rec,
			Config:    cfg,
		})

		count, err := svc.recoverStaleRunningJobs(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
		assert.Equal(t, 3, rec.callCount())
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.GreaterOrEqual(t, len(repo.calls()), 2)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{deleteError: errors.New("test error")}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.Error(t, err)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, len(repo.calls()), 4)
	})
}

func TestReaperService_RecoversLostJobThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	h := newDispatcherHarness(t)

	lost := testutil.NewJob().WithRetries(0, 3).Build()
	startedAt := h.store.Now().Add(-2 * time.Hour)
	lost.StartedAt = &startedAt
	h.store.Seed(lost)

	svc := MustNewReaperService(ReaperServiceOptions{
		Repo:      h.store,
		Recoverer: h.dispatcher,
		Config:    testReaperConfig(),
	})
	require.NoError(t, svc.RunOnce(ctx))

	got, err := h.store.GetByID(ctx, lost.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorType)
	assert.Equal(t, "system", *got.ErrorType)
	assert.Equal(t, []model.JobEventType{model.JobEventRetryScheduled}, h.store.EventTypes(lost.ID))
	assert.Equal(t, 1, h.alerts.count("long_running_job"))
}
