// Package httpx provides the HTTP API for enqueueing, inspecting and administering jobs.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxEventLimit    = 1000
)

// JobHandlers provides HTTP handlers for job-related operations.
type JobHandlers struct {
	Svc *service.JobService
}

// CreateJob handles HTTP requests to enqueue a new job.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Enqueue(r.Context(), &req)
	if err != nil {
		writeServiceError(w, "create", err)
		return
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobs handles HTTP requests to list jobs, newest first, with optional status/type filters.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := ParseLimitOffset(r, defaultListLimit, maxListLimit)
	opts := model.JobListOptions{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		st := model.JobStatus(v)
		if !st.Valid() {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: errors.New("invalid job status")})
			return
		}
		opts.Status = &st
	}
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		jt := model.JobType(v)
		if !jt.Valid() {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Err: errors.New("invalid job type")})
			return
		}
		opts.Type = &jt
	}

	jobs, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, "list", err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// Stats handles HTTP requests to retrieve job counts per status.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// GetJob handles HTTP requests to retrieve a single job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get", err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListEvents handles HTTP requests to retrieve a job's event timeline.
func (h *JobHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	limit, offset := ParseLimitOffset(r, maxEventLimit, maxEventLimit)
	events, err := h.Svc.Events(r.Context(), model.JobEventListOptions{JobID: id, Limit: limit, Offset: offset})
	if err != nil {
		writeServiceError(w, "list_events", err)
		return
	}
	if events == nil {
		events = []*model.JobEvent{}
	}
	WriteJSON(w, http.StatusOK, events)
}

// Replay handles HTTP requests to return a dead or failed job to the queue.
func (h *JobHandlers) Replay(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Replay(r.Context(), id)
	if err != nil {
		writeServiceError(w, "replay", err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Cancel handles HTTP requests to cancel a pending or running job.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, "cancel", err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func jobIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")})
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id must be a UUID")})
		return "", false
	}
	return id, true
}
