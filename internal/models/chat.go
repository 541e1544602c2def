package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Message status values. An agent message settles exactly once:
// pending/generating -> complete, or pending/generating -> error.
const (
	MessageStatusPending    = "pending"
	MessageStatusGenerating = "generating"
	MessageStatusComplete   = "complete"
	MessageStatusError      = "error"
)

type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one entry in a conversation. User entries carry the prompt
// and optional image; agent entries carry the generation outcome. Image and
// video bytes are not inlined: image_url and video_url point at the serving
// endpoints.
type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	Role        string    `json:"role"` // "user" | "agent"
	Text        *string   `json:"text,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	VideoBlobID *string   `json:"-"`
	VideoURL    *string   `json:"video_url,omitempty"`
	Status      string    `json:"status"` // "pending" | "generating" | "complete" | "error"
	ErrorKind   *string   `json:"error_kind,omitempty"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GenerationConfig is the user-tunable part of a generation request.
type GenerationConfig struct {
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
}

// ImagePayload is a base64 image attachment as posted by the browser's
// file picker.
type ImagePayload struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// SubmitMessageRequest is the payload for posting a new prompt to a session.
// At least one of Text and Image must be present.
type SubmitMessageRequest struct {
	Text   string           `json:"text"`
	Image  *ImagePayload    `json:"image,omitempty"`
	Config GenerationConfig `json:"config"`
}

type SessionWithMessages struct {
	Session  *ChatSession   `json:"session"`
	Messages []*ChatMessage `json:"messages"`
}

// ImageURLFor is the serving path for a message's stored image.
func ImageURLFor(messageID uuid.UUID) string {
	return "/api/messages/" + messageID.String() + "/image"
}

// VideoURLFor is the serving path for a blob handle.
func VideoURLFor(blobID string) string {
	return "/api/blobs/" + blobID
}
