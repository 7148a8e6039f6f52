package job

import (
	"context"
	"encoding/json"

	"github.com/target/creative-dispatch/internal/domain/model"
)

// Reporter is handed to a Handler for the duration of one attempt.
// Both methods are best-effort; a reporting failure never fails the job.
type Reporter interface {
	Progress(ctx context.Context, current, total int)
	Event(ctx context.Context, eventType model.JobEventType, message string, data any)
}

// Handler performs the work for one job type. It must be safe to re-run from
// scratch with the same payload, and should return errors the classifier can
// categorise (wrap with NewError to be explicit).
type Handler interface {
	Handle(ctx context.Context, j *model.Job, r Reporter) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j *model.Job, r Reporter) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j *model.Job, r Reporter) (json.RawMessage, error) {
	return f(ctx, j, r)
}

// NopReporter discards every report.
type NopReporter struct{}

func (NopReporter) Progress(context.Context, int, int) {}

func (NopReporter) Event(context.Context, model.JobEventType, string, any) {}
