package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// JobRequestBuilder builds CreateJobRequest values with sensible defaults.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a builder for an offer_sync request with an empty payload.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:    model.JobTypeOfferSync,
			Payload: json.RawMessage(`{}`),
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(t model.JobType) *JobRequestBuilder {
	b.req.Type = t
	return b
}

// WithPayload marshals v as the payload. Raw JSON is used as-is.
func (b *JobRequestBuilder) WithPayload(v any) *JobRequestBuilder {
	switch p := v.(type) {
	case json.RawMessage:
		b.req.Payload = p
	case string:
		b.req.Payload = json.RawMessage(p)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			panic(err) //nolint:forbidigo // builder misuse is a test bug
		}
		b.req.Payload = raw
	}
	return b
}

// WithMaxRetries sets the retry budget.
func (b *JobRequestBuilder) WithMaxRetries(n int) *JobRequestBuilder {
	b.req.MaxRetries = &n
	return b
}

// WithRunAt delays the first claim.
func (b *JobRequestBuilder) WithRunAt(at time.Time) *JobRequestBuilder {
	b.req.RunAt = &at
	return b
}

// Build returns the request.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// JobBuilder builds model.Job values for handler and HTTP tests.
type JobBuilder struct {
	job *model.Job
}

// NewJob creates a builder for a running offer_sync job created at TestTime.
func NewJob() *JobBuilder {
	now := TestTime()
	return &JobBuilder{
		job: &model.Job{
			ID:         uuid.NewString(),
			Type:       model.JobTypeOfferSync,
			Status:     model.JobStatusRunning,
			Payload:    json.RawMessage(`{}`),
			MaxRetries: model.DefaultMaxRetries,
			CreatedAt:  now,
			UpdatedAt:  now,
			StartedAt:  TimePtr(now),
		},
	}
}

// WithID sets the job ID.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithType sets the job type.
func (b *JobBuilder) WithType(t model.JobType) *JobBuilder {
	b.job.Type = t
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(s model.JobStatus) *JobBuilder {
	b.job.Status = s
	return b
}

// WithPayload sets the raw payload.
func (b *JobBuilder) WithPayload(raw string) *JobBuilder {
	b.job.Payload = json.RawMessage(raw)
	return b
}

// WithRetries sets retry_count and max_retries.
func (b *JobBuilder) WithRetries(count, maxRetries int) *JobBuilder {
	b.job.RetryCount = count
	b.job.MaxRetries = maxRetries
	return b
}

// WithClaimToken marks the job as owned by the invocation holding token.
func (b *JobBuilder) WithClaimToken(token string) *JobBuilder {
	b.job.ClaimToken = &token
	return b
}

// Build returns the job.
func (b *JobBuilder) Build() *model.Job {
	return b.job
}
