package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"veochat-backend/internal/blob"
	"veochat-backend/internal/models"
	"veochat-backend/internal/services"
)

type chatRepository interface {
	CreateSession(ctx context.Context, s *models.ChatSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]*models.ChatSession, error)
	SetTitleFromPrompt(ctx context.Context, id uuid.UUID, title string) error
	TouchSession(ctx context.Context, id uuid.UUID) error
	DeleteSession(ctx context.Context, id uuid.UUID) ([]string, error)
	CreateMessage(ctx context.Context, m *models.ChatMessage, imageData []byte, imageMIME string) error
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	GetMessageImage(ctx context.Context, id uuid.UUID) ([]byte, string, error)
	SettleError(ctx context.Context, id uuid.UUID, kind, message string) (bool, error)
}

type chatJobRepository interface {
	Create(ctx context.Context, j *models.GenerationJob) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error)
}

type jobQueue interface {
	Enqueue(jobID uuid.UUID) error
}

type jobCanceller interface {
	Cancel(jobID uuid.UUID) bool
}

type ChatHandler struct {
	chatRepo       chatRepository
	jobRepo        chatJobRepository
	queue          jobQueue
	registry       jobCanceller
	blobs          *blob.Store
	keys           *services.KeyManager
	maxUploadBytes int64
}

func NewChatHandler(chatRepo chatRepository, jobRepo chatJobRepository, queue jobQueue, registry jobCanceller, blobs *blob.Store, keys *services.KeyManager, maxUploadBytes int64) *ChatHandler {
	return &ChatHandler{
		chatRepo:       chatRepo,
		jobRepo:        jobRepo,
		queue:          queue,
		registry:       registry,
		blobs:          blobs,
		keys:           keys,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	// An empty body is fine; the session starts with the default title.
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	session := &models.ChatSession{}
	if title := strings.TrimSpace(req.Title); title != "" {
		session.Title = title
	}

	if err := h.chatRepo.CreateSession(r.Context(), session); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.chatRepo.ListSessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	session, err := h.chatRepo.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	messages, err := h.chatRepo.ListMessages(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.SessionWithMessages{Session: session, Messages: messages})
}

// DiscardSession deletes a session and everything hanging off it: running
// jobs are cancelled, chat entries removed, and every video handle the
// session held is released.
func (h *ChatHandler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	if _, err := h.chatRepo.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	// Abort in-flight work first so nothing settles into rows that are
	// about to disappear. Jobs still queued are marked cancelled so a
	// worker picking them up later skips them.
	active, err := h.jobRepo.ListActiveBySession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	for _, jobID := range active {
		if !h.registry.Cancel(jobID) {
			h.jobRepo.UpdateStatus(r.Context(), jobID, models.JobStatusCancelled)
		}
	}

	blobIDs, err := h.chatRepo.DeleteSession(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.blobs.ReleaseAll(blobIDs)

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session discarded"})
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	messages, err := h.chatRepo.ListMessages(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// SubmitMessage posts a prompt to a session. It records the user entry and
// a pending agent entry, then queues a generation job and returns 202 with
// the ids the client needs to follow progress.
func (h *ChatHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return
	}

	if _, err := h.chatRepo.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	var req models.SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	imageData, imageMIME, fields := validateSubmission(&req)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	if !h.keys.Ready() {
		writeJSON(w, http.StatusConflict, errorResp("NO_API_KEY", "No usable API key is configured", r))
		return
	}

	userMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Status:    models.MessageStatusComplete,
	}
	if req.Text != "" {
		userMsg.Text = &req.Text
	}
	if err := h.chatRepo.CreateMessage(r.Context(), userMsg, imageData, imageMIME); err != nil {
		handleServiceError(w, r, err)
		return
	}

	agentMsg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAgent,
		Status:    models.MessageStatusPending,
	}
	if err := h.chatRepo.CreateMessage(r.Context(), agentMsg, nil, ""); err != nil {
		handleServiceError(w, r, err)
		return
	}

	configJSON, _ := json.Marshal(req.Config)
	job := &models.GenerationJob{
		SessionID:       sessionID,
		MessageID:       agentMsg.ID,
		PromptMessageID: userMsg.ID,
		ConfigJSON:      configJSON,
	}
	if err := h.jobRepo.Create(r.Context(), job); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.queue.Enqueue(job.ID); err != nil {
		// Settle the agent entry here; no worker will ever see this job.
		h.chatRepo.SettleError(r.Context(), agentMsg.ID, "", "generation queue is full")
		h.jobRepo.UpdateStatus(r.Context(), job.ID, models.JobStatusFailed)
		handleServiceError(w, r, &services.UnavailableError{Message: "Generation queue is full, try again shortly"})
		return
	}

	h.chatRepo.SetTitleFromPrompt(r.Context(), sessionID, titleFromPrompt(req.Text))
	h.chatRepo.TouchSession(r.Context(), sessionID)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":           job.ID,
		"session_id":       sessionID,
		"user_message_id":  userMsg.ID,
		"agent_message_id": agentMsg.ID,
	})
}

// ServeImage streams the stored image attachment of a user entry.
func (h *ChatHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid message ID", r))
		return
	}

	data, mimeType, err := h.chatRepo.GetMessageImage(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Image not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func validateSubmission(req *models.SubmitMessageRequest) (imageData []byte, imageMIME string, fields map[string]string) {
	fields = make(map[string]string)

	if req.Text == "" && req.Image == nil {
		fields["text"] = "Provide a prompt, an image, or both"
	}

	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		switch {
		case err != nil || len(data) == 0:
			fields["image"] = "Image data must be valid base64"
		case !strings.HasPrefix(req.Image.MIMEType, "image/"):
			fields["image"] = "Image mime_type must be an image type"
		default:
			imageData = data
			imageMIME = req.Image.MIMEType
		}
	}

	switch req.Config.AspectRatio {
	case "":
		req.Config.AspectRatio = "16:9"
	case "16:9", "9:16":
	default:
		fields["aspect_ratio"] = "Aspect ratio must be 16:9 or 9:16"
	}

	switch req.Config.Resolution {
	case "":
		req.Config.Resolution = "720p"
	case "720p", "1080p":
	default:
		fields["resolution"] = "Resolution must be 720p or 1080p"
	}

	if len(fields) == 0 {
		return imageData, imageMIME, nil
	}
	return nil, "", fields
}

// titleFromPrompt derives a session title from the first prompt.
func titleFromPrompt(text string) string {
	if text == "" {
		return "Image prompt"
	}
	runes := []rune(text)
	if len(runes) <= 60 {
		return text
	}
	return strings.TrimSpace(string(runes[:60])) + "..."
}
