package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/service"
)

// WorkerTrigger runs one bounded dispatcher invocation.
type WorkerTrigger interface {
	Run(ctx context.Context) (*model.WorkerRunResult, error)
}

// WorkerHandlers exposes the dispatcher to an external scheduler.
type WorkerHandlers struct {
	Dispatcher WorkerTrigger
	Logger     *slog.Logger
}

var errWorkerRunFailed = errors.New("worker run failed")

// Run handles POST /api/worker/run. Any error escaping the dispatcher is a 500; state
// already committed by finished jobs is untouched. The cause is logged, not returned.
func (h *WorkerHandlers) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.Dispatcher.Run(r.Context())
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "worker run failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "worker_run_failed",
			Err:     errWorkerRunFailed,
		})
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// QueueHandlers reads and flips the queue pause flag.
type QueueHandlers struct {
	Svc *service.QueueStateService
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

// Status handles GET /api/system/queue.
func (h *QueueHandlers) Status(w http.ResponseWriter, r *http.Request) {
	qp, err := h.Svc.QueuePause(r.Context())
	if err != nil {
		writeServiceError(w, "queue_status", err)
		return
	}
	WriteJSON(w, http.StatusOK, qp)
}

// Pause handles POST /api/system/queue/pause with an optional {"reason": "..."} body.
func (h *QueueHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	var body pauseRequest
	if !DecodeJSON(w, r, &body) {
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "paused by operator"
	}
	qp, err := h.Svc.Pause(r.Context(), reason)
	if err != nil {
		writeServiceError(w, "pause", err)
		return
	}
	WriteJSON(w, http.StatusOK, qp)
}

// Resume handles POST /api/system/queue/resume. Resuming is the only way out of a breaker trip.
func (h *QueueHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	qp, err := h.Svc.Resume(r.Context())
	if err != nil {
		writeServiceError(w, "resume", err)
		return
	}
	WriteJSON(w, http.StatusOK, qp)
}
