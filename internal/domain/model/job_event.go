package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// JobEventType names a lifecycle or handler-reported event.
type JobEventType string

// Lifecycle events written by the dispatcher and admin actions.
const (
	JobEventStarted         JobEventType = "STARTED"
	JobEventProgress        JobEventType = "PROGRESS"
	JobEventCompleted       JobEventType = "COMPLETED"
	JobEventCancelled       JobEventType = "CANCELLED"
	JobEventCancelRequested JobEventType = "CANCEL_REQUESTED"
	JobEventRetryScheduled  JobEventType = "RETRY_SCHEDULED"
	JobEventFailed          JobEventType = "FAILED"
	JobEventReplayed        JobEventType = "REPLAYED"
	// JobEventReleased marks a running job handed back to pending because its invocation was interrupted.
	JobEventReleased JobEventType = "RELEASED"
)

// JobEvent is an append-only audit record of one lifecycle transition or handler report.
type JobEvent struct {
	ID        int64           `json:"id"                db:"id"`
	JobID     string          `json:"job_id"            db:"job_id"`
	Type      JobEventType    `json:"type"              db:"type"`
	Message   *string         `json:"message,omitempty" db:"message"`
	Data      json.RawMessage `json:"data,omitempty"    db:"data"`
	CreatedAt time.Time       `json:"created_at"        db:"created_at"`
}

// NewJobEvent describes an event to append.
type NewJobEvent struct {
	JobID   string
	Type    JobEventType
	Message string
	Data    any
}

// Validate checks the event can be persisted.
func (e *NewJobEvent) Validate() error {
	if strings.TrimSpace(e.JobID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return errors.New("event type is required")
	}
	return nil
}

// EncodeData marshals Data, returning nil when there is nothing to store.
func (e *NewJobEvent) EncodeData() ([]byte, error) {
	switch v := e.Data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// MessagePtr returns nil for an empty message so the column stays NULL.
func (e *NewJobEvent) MessagePtr() *string {
	if e.Message == "" {
		return nil
	}
	m := e.Message
	return &m
}

// JobEventListOptions selects a page of a job's timeline.
type JobEventListOptions struct {
	JobID  string
	Limit  int
	Offset int
}
