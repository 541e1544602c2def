package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// GenerationJob drives one video generation. MessageID is the agent entry
// the job settles; PromptMessageID is the user entry carrying the prompt
// and optional image.
type GenerationJob struct {
	ID              uuid.UUID       `json:"id"`
	SessionID       uuid.UUID       `json:"session_id"`
	MessageID       uuid.UUID       `json:"message_id"`
	PromptMessageID uuid.UUID       `json:"prompt_message_id"`
	ConfigJSON      json.RawMessage `json:"config"`
	Status          string          `json:"status"` // "pending" | "processing" | "completed" | "failed" | "cancelled"
	ErrorMessage    *string         `json:"error_message"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at"`
}

// WebSocket event types
const (
	EventStatus    = "status"
	EventCompleted = "completed"
	EventError     = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	SessionID uuid.UUID `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
}

type CompletedEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	JobID     uuid.UUID `json:"job_id"`
	VideoURL  string    `json:"video_url"`
}

// ErrorEvent carries the error kind so the client can react; kind "auth"
// means the credential was rejected and a new key should be requested.
type ErrorEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	MessageID    uuid.UUID `json:"message_id"`
	JobID        uuid.UUID `json:"job_id"`
	ErrorKind    string    `json:"error_kind"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
