package service

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/creative-dispatch/internal/core"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/mocks"
	"github.com/target/creative-dispatch/internal/testutil"
)

type mockedDispatcher struct {
	jobs       *mocks.MockJobRepository
	events     *mocks.MockJobEventRepository
	state      *mocks.MockSystemStateRepository
	handlers   *HandlerRegistry
	dispatcher *Dispatcher
}

func newMockedDispatcher(t *testing.T) *mockedDispatcher {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := &mockedDispatcher{
		jobs:     mocks.NewMockJobRepository(ctrl),
		events:   mocks.NewMockJobEventRepository(ctrl),
		state:    mocks.NewMockSystemStateRepository(ctrl),
		handlers: NewHandlerRegistry(),
	}
	clock := testutil.NewTestTimeProvider(testutil.TestTime())
	m.dispatcher = MustNewDispatcher(DispatcherOptions{
		Jobs:     m.jobs,
		Events:   m.events,
		State:    MustNewQueueStateService(QueueStateServiceOptions{Repo: m.state, Now: clock.Now}),
		Handlers: m.handlers,
		Config:   defaultDispatcherConfig(),
		Retry:    domainjob.NewRetryPolicy(domainjob.NoJitter),
		Now:      clock.Now,
	})
	m.state.EXPECT().Get(gomock.Any(), model.SystemStateKeyQueuePaused).Return(nil, nil)
	return m
}

func TestDispatcher_LostCompletionRaceIsNotAnError(t *testing.T) {
	m := newMockedDispatcher(t)
	j := testutil.NewJob().WithClaimToken("claim-7").Build()
	m.handlers.MustRegister(j.Type, domainjob.HandlerFunc(
		func(context.Context, *model.Job, domainjob.Reporter) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		}))

	gomock.InOrder(
		m.jobs.EXPECT().ClaimNext(gomock.Any()).Return(j, nil),
		m.jobs.EXPECT().GetStatus(gomock.Any(), j.ID).Return(model.JobStatusRunning, nil),
		m.jobs.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p core.CompleteJobParams) (bool, error) {
				assert.Equal(t, j.ID, p.ID)
				assert.Equal(t, "claim-7", p.ClaimToken)
				assert.JSONEq(t, `{"ok":true}`, string(p.Result))
				require.NotNil(t, p.Event)
				assert.Equal(t, model.JobEventCompleted, p.Event.Type)
				return false, nil
			}),
		m.jobs.EXPECT().ClaimNext(gomock.Any()).Return(nil, model.ErrNoJobsAvailable),
	)
	m.events.EXPECT().Append(gomock.Any(), gomock.Any()).Return(&model.JobEvent{}, nil)

	res, err := m.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestDispatcher_RetryWriteFailureAbortsRun(t *testing.T) {
	m := newMockedDispatcher(t)
	j := testutil.NewJob().WithRetries(0, 5).Build()
	m.handlers.MustRegister(j.Type, failingWith(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	storeErr := errors.New("connection reset by peer")
	gomock.InOrder(
		m.jobs.EXPECT().ClaimNext(gomock.Any()).Return(j, nil),
		m.jobs.EXPECT().GetStatus(gomock.Any(), j.ID).Return(model.JobStatusRunning, nil),
		m.jobs.EXPECT().ScheduleRetry(gomock.Any(), gomock.Any()).Return(false, storeErr),
	)
	m.events.EXPECT().Append(gomock.Any(), gomock.Any()).Return(&model.JobEvent{}, nil)

	res, err := m.dispatcher.Run(context.Background())
	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "schedule retry of job "+j.ID)
	assert.Equal(t, 1, res.Processed)
}

func TestDispatcher_StartEventFailureDoesNotBlockHandler(t *testing.T) {
	m := newMockedDispatcher(t)
	j := testutil.NewJob().Build()
	ran := false
	m.handlers.MustRegister(j.Type, domainjob.HandlerFunc(
		func(context.Context, *model.Job, domainjob.Reporter) (json.RawMessage, error) {
			ran = true
			return nil, nil
		}))

	gomock.InOrder(
		m.jobs.EXPECT().ClaimNext(gomock.Any()).Return(j, nil),
		m.jobs.EXPECT().GetStatus(gomock.Any(), j.ID).Return(model.JobStatusRunning, nil),
		m.jobs.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).Return(true, nil),
		m.jobs.EXPECT().ClaimNext(gomock.Any()).Return(nil, model.ErrNoJobsAvailable),
	)
	m.events.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("events table locked"))

	_, err := m.dispatcher.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestQueueStateService_WrapsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSystemStateRepository(ctrl)
	svc := MustNewQueueStateService(QueueStateServiceOptions{Repo: repo})

	storeErr := errors.New("redis: connection pool timeout")
	repo.EXPECT().Set(gomock.Any(), model.SystemStateKeyQueuePaused, gomock.Any()).Return(storeErr)
	_, err := svc.Pause(context.Background(), "maintenance")
	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "write queue pause flag")

	repo.EXPECT().Get(gomock.Any(), model.SystemStateKeyQueuePaused).
		Return(&model.SystemState{Key: model.SystemStateKeyQueuePaused, Value: json.RawMessage(`{"paused":`)}, nil)
	_, err = svc.QueuePause(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode queue pause flag")
}

func TestReaperService_DeleteFailureIsReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockReaperRepository(ctrl)
	svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})

	isStatus := func(want model.JobStatus) gomock.Matcher {
		return gomock.Cond(func(p core.DeleteOldJobsParams) bool {
			return len(p.Statuses) > 0 && p.Statuses[0] == want
		})
	}
	gomock.InOrder(
		repo.EXPECT().DeleteOldJobs(gomock.Any(), isStatus(model.JobStatusCompleted)).Return(int64(3), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), isStatus(model.JobStatusCompleted)).Return(int64(0), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), isStatus(model.JobStatusDead)).Return(int64(0), errors.New("statement timeout")),
	)

	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete old dead jobs")
	assert.NotContains(t, err.Error(), "completed")
}
