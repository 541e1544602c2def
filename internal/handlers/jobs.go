package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"veochat-backend/internal/models"
	"veochat-backend/internal/veo"
)

type jobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type messageSettler interface {
	SettleError(ctx context.Context, id uuid.UUID, kind, message string) (bool, error)
}

type eventNotifier interface {
	PublishUpdate(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage)
}

type JobHandler struct {
	jobRepo  jobRepository
	chatRepo messageSettler
	registry jobCanceller
	events   eventNotifier
}

func NewJobHandler(jobRepo jobRepository, chatRepo messageSettler, registry jobCanceller, events eventNotifier) *JobHandler {
	return &JobHandler{
		jobRepo:  jobRepo,
		chatRepo: chatRepo,
		registry: registry,
		events:   events,
	}
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// CancelJob aborts a generation. A running job is interrupted through its
// context and settles on the worker; a job still waiting in the queue is
// settled right here, since no worker will run it.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobRepo.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
			return
		}
		handleServiceError(w, r, err)
		return
	}

	switch job.Status {
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", "Job already settled", r))
		return
	}

	if h.registry.Cancel(jobID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}

	if err := h.jobRepo.UpdateStatus(r.Context(), jobID, models.JobStatusCancelled); err != nil {
		handleServiceError(w, r, err)
		return
	}
	settled, err := h.chatRepo.SettleError(r.Context(), job.MessageID, veo.KindCancelled, "generation cancelled")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if settled {
		h.events.PublishUpdate(r.Context(), job.SessionID, models.WSMessage{
			Type: models.EventError,
			Payload: models.ErrorEvent{
				SessionID:    job.SessionID,
				MessageID:    job.MessageID,
				JobID:        job.ID,
				ErrorKind:    veo.KindCancelled,
				ErrorMessage: "generation cancelled",
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
