package model

import (
	"encoding/json"
	"time"
)

// SystemStateKeyQueuePaused holds the circuit-breaker flag read at the start of each dispatcher run.
const SystemStateKeyQueuePaused = "jobQueuePaused"

// SystemState is a persisted key to JSON document entry.
type SystemState struct {
	Key       string          `json:"key"        db:"key"`
	Value     json.RawMessage `json:"value"      db:"value"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// QueuePause is the document stored under SystemStateKeyQueuePaused.
type QueuePause struct {
	Paused bool       `json:"paused"`
	Reason string     `json:"reason,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}
