package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/creative-dispatch/internal/service"
)

const tracerName = "github.com/target/creative-dispatch/internal/http"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs       *service.JobService
	QueueState *service.QueueStateService
	Dispatcher WorkerTrigger

	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler

	// WorkerToken guards POST /api/worker/run; AdminToken guards the job and queue routes.
	// Empty tokens leave the routes open.
	WorkerToken string
	AdminToken  string

	Tracing bool
	Logger  *slog.Logger
}

// NewRouter creates the API router wrapped in recovery, logging and (optionally) tracing middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	admin := RequireBearer(services.AdminToken)
	if services.Jobs != nil {
		registerJobRoutes(mux, &JobHandlers{Svc: services.Jobs}, admin)
	}
	if services.QueueState != nil {
		registerQueueRoutes(mux, &QueueHandlers{Svc: services.QueueState}, admin)
	}
	if services.Dispatcher != nil {
		h := &WorkerHandlers{Dispatcher: services.Dispatcher, Logger: logger}
		mux.Handle("POST /api/worker/run", RequireBearer(services.WorkerToken)(http.HandlerFunc(h.Run)))
	}
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	mws := []func(http.Handler) http.Handler{Recover(logger)}
	if services.Tracing {
		mws = append(mws, Tracing(tracerName))
	}
	mws = append(mws, Logging(logger))
	return Chain(mux, mws...)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/jobs", wrap(http.HandlerFunc(h.CreateJob)))
	mux.Handle("GET /api/jobs", wrap(http.HandlerFunc(h.ListJobs)))
	mux.Handle("GET /api/jobs/stats", wrap(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/jobs/{id}", wrap(http.HandlerFunc(h.GetJob)))
	mux.Handle("GET /api/jobs/{id}/events", wrap(http.HandlerFunc(h.ListEvents)))
	mux.Handle("POST /api/jobs/{id}/replay", wrap(http.HandlerFunc(h.Replay)))
	mux.Handle("POST /api/jobs/{id}/cancel", wrap(http.HandlerFunc(h.Cancel)))
}

func registerQueueRoutes(mux *http.ServeMux, h *QueueHandlers, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET /api/system/queue", wrap(http.HandlerFunc(h.Status)))
	mux.Handle("POST /api/system/queue/pause", wrap(http.HandlerFunc(h.Pause)))
	mux.Handle("POST /api/system/queue/resume", wrap(http.HandlerFunc(h.Resume)))
}
