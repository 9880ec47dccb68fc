package dto

import (
	"encoding/json"
	"time"
)

type EnqueueDTO struct {
	Type         string          `json:"type" validate:"required"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
	Priority     int             `json:"priority" validate:"gte=-100,lte=100"`
	DedupKey     string          `json:"dedup_key,omitempty"`
	RetryLimit   int             `json:"retry_limit" validate:"gte=0,lte=20"`
	StartDelayMS int64           `json:"start_delay_ms" validate:"gte=0"`
}

type EnqueueResponseDTO struct {
	JobID string `json:"job_id"`
}

type JobResponseDTO struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	DedupKey   string          `json:"dedup_key,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	RetryLimit int             `json:"retry_limit"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StreamEvent is the data payload of every SSE progress/complete/error
// event. Heartbeats carry no payload at all.
type StreamEvent struct {
	JobID    string          `json:"jobId"`
	Status   string          `json:"status"`
	Phase    string          `json:"phase,omitempty"`
	Progress int             `json:"progress"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
}
