package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/config"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/service"
	"github.com/target/creative-dispatch/internal/testutil"
)

type apiHarness struct {
	store    *testutil.MemoryStore
	jobs     *service.JobService
	state    *service.QueueStateService
	handlers *service.HandlerRegistry
	router   http.Handler
}

func newAPIHarness(t *testing.T, tweak ...func(*RouterServices)) *apiHarness {
	t.Helper()
	store := testutil.NewMemoryStore(testutil.TestTime())
	jobs := service.MustNewJobService(service.JobServiceOptions{Repo: store, Events: store})
	t.Cleanup(jobs.StopAll)
	state := service.MustNewQueueStateService(service.QueueStateServiceOptions{Repo: store, Now: store.Now})
	handlers := service.NewHandlerRegistry()
	dispatcher := service.MustNewDispatcher(service.DispatcherOptions{
		Jobs:     store,
		Events:   store,
		State:    state,
		Handlers: handlers,
		Config: config.DispatcherConfig{
			Budget:            4 * time.Minute,
			DefaultMaxRetries: 5,
			BreakerThreshold:  10,
			BreakerWindow:     10 * time.Minute,
		},
		Retry: domainjob.NewRetryPolicy(domainjob.NoJitter),
		Now:   store.Now,
	})

	svcs := RouterServices{Jobs: jobs, QueueState: state, Dispatcher: dispatcher}
	for _, fn := range tweak {
		fn(&svcs)
	}
	return &apiHarness{store: store, jobs: jobs, state: state, handlers: handlers, router: NewRouter(svcs)}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateJob(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantErr    string
	}{
		{
			name:       "valid",
			body:       map[string]any{"type": "offer_sync", "payload": map[string]any{"advertiser_id": "adv-1"}, "max_retries": 3},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid type",
			body:       map[string]any{"type": "Bad Type"},
			wantStatus: http.StatusBadRequest,
			wantErr:    "validation_failed",
		},
		{
			name:       "retry budget out of range",
			body:       map[string]any{"type": "offer_sync", "max_retries": 99},
			wantStatus: http.StatusBadRequest,
			wantErr:    "validation_failed",
		},
		{
			name:       "unknown field",
			body:       map[string]any{"type": "offer_sync", "priority": 1},
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid_json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/jobs", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeBody[map[string]string](t, rec)["error"])
				return
			}
			job := decodeBody[model.Job](t, rec)
			assert.Equal(t, model.JobStatusPending, job.Status)
			assert.Equal(t, 3, job.MaxRetries)
		})
	}
}

func TestGetAndListJobs(t *testing.T) {
	ctx := context.Background()
	h := newAPIHarness(t)
	created, err := h.jobs.Enqueue(ctx, testutil.NewJobRequest().Build())
	require.NoError(t, err)
	h.store.Seed(testutil.NewJob().WithStatus(model.JobStatusDead).Build())

	rec := h.do(t, http.MethodGet, "/api/jobs/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeBody[model.Job](t, rec).ID)

	rec = h.do(t, http.MethodGet, "/api/jobs?status=dead", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dead := decodeBody[[]model.Job](t, rec)
	require.Len(t, dead, 1)
	assert.Equal(t, model.JobStatusDead, dead[0].Status)

	rec = h.do(t, http.MethodGet, "/api/jobs?status=sleeping", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/jobs/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[model.JobStats](t, rec)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Dead)
}

func TestJobRoutes_NotFoundAndBadID(t *testing.T) {
	h := newAPIHarness(t)
	missing := "6f1c1f0e-7d7a-4a55-9a8e-2f1a1c9d0b11"

	for _, path := range []string{"/api/jobs/" + missing, "/api/jobs/" + missing + "/events"} {
		rec := h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "job_not_found", decodeBody[map[string]string](t, rec)["error"])
	}

	rec := h.do(t, http.MethodPost, "/api/jobs/"+missing+"/replay", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplayAndCancelRoutes(t *testing.T) {
	ctx := context.Background()
	h := newAPIHarness(t)

	dead := testutil.NewJob().WithStatus(model.JobStatusDead).WithRetries(5, 5).Build()
	h.store.Seed(dead)

	rec := h.do(t, http.MethodPost, "/api/jobs/"+dead.ID+"/replay", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replayed := decodeBody[model.Job](t, rec)
	assert.Equal(t, model.JobStatusPending, replayed.Status)
	assert.Equal(t, 1, replayed.ReplayCount)

	rec = h.do(t, http.MethodPost, "/api/jobs/"+dead.ID+"/replay", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decodeBody[map[string]string](t, rec)["error"])

	rec = h.do(t, http.MethodPost, "/api/jobs/"+dead.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.JobStatusCancelled, decodeBody[model.Job](t, rec).Status)

	rec = h.do(t, http.MethodGet, "/api/jobs/"+dead.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[[]model.JobEvent](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, model.JobEventReplayed, events[0].Type)
	assert.Equal(t, model.JobEventCancelRequested, events[1].Type)

	_, err := h.jobs.Get(ctx, dead.ID)
	require.NoError(t, err)
}

func TestWriteServiceError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, "list", errors.New("pq: relation \"jobs\" does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "list_failed", body["error"])
	assert.Equal(t, "list failed", body["message"])
}
