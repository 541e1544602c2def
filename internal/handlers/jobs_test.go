package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"veochat-backend/internal/models"
	"veochat-backend/internal/veo"
)

func activeJob() *models.GenerationJob {
	return &models.GenerationJob{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		MessageID: uuid.New(),
		Status:    models.JobStatusProcessing,
	}
}

func TestCancelRunningJob(t *testing.T) {
	job := activeJob()
	jobs := &stubJobRepo{job: job}
	chat := &stubChatRepo{}
	registry := &stubRegistry{running: true}
	notifier := &stubNotifier{}
	h := &JobHandler{jobRepo: jobs, chatRepo: chat, registry: registry, events: notifier}

	req := requestWithID(http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", job.ID.String(), "")
	rr := httptest.NewRecorder()
	h.CancelJob(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
	if len(registry.cancelled) != 1 || registry.cancelled[0] != job.ID {
		t.Errorf("expected registry cancel, got %v", registry.cancelled)
	}
	// The worker observes the cancelled context and settles; the handler
	// must not settle a running job itself.
	if chat.settledID != uuid.Nil {
		t.Error("expected no settlement from the handler for a running job")
	}
	if len(jobs.statees) != 0 {
		t.Errorf("expected no status writes for a running job, got %v", jobs.statees)
	}
}

func TestCancelQueuedJobSettlesHere(t *testing.T) {
	job := activeJob()
	job.Status = models.JobStatusPending
	jobs := &stubJobRepo{job: job}
	chat := &stubChatRepo{}
	notifier := &stubNotifier{}
	h := &JobHandler{jobRepo: jobs, chatRepo: chat, registry: &stubRegistry{running: false}, events: notifier}

	req := requestWithID(http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", job.ID.String(), "")
	rr := httptest.NewRecorder()
	h.CancelJob(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if len(jobs.statees) != 1 || jobs.statees[0] != models.JobStatusCancelled {
		t.Errorf("expected job marked cancelled, got %v", jobs.statees)
	}
	if chat.settledID != job.MessageID || chat.settledKind != veo.KindCancelled {
		t.Errorf("expected agent entry settled cancelled, got id=%s kind=%s", chat.settledID, chat.settledKind)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != models.EventError {
		t.Errorf("expected one error event, got %v", notifier.events)
	}
}

func TestCancelSettledJobConflicts(t *testing.T) {
	job := activeJob()
	job.Status = models.JobStatusCompleted
	h := &JobHandler{jobRepo: &stubJobRepo{job: job}, chatRepo: &stubChatRepo{}, registry: &stubRegistry{}, events: &stubNotifier{}}

	req := requestWithID(http.MethodPost, "/api/jobs/"+job.ID.String()+"/cancel", job.ID.String(), "")
	rr := httptest.NewRecorder()
	h.CancelJob(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}

func TestGetJob(t *testing.T) {
	job := activeJob()
	h := &JobHandler{jobRepo: &stubJobRepo{job: job}, chatRepo: &stubChatRepo{}, registry: &stubRegistry{}, events: &stubNotifier{}}

	req := requestWithID(http.MethodGet, "/api/jobs/"+job.ID.String(), job.ID.String(), "")
	rr := httptest.NewRecorder()
	h.GetJob(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var got models.GenerationJob
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.ID != job.ID || got.Status != models.JobStatusProcessing {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := &JobHandler{jobRepo: &stubJobRepo{}, chatRepo: &stubChatRepo{}, registry: &stubRegistry{}, events: &stubNotifier{}}

	id := uuid.New()
	req := requestWithID(http.MethodGet, "/api/jobs/"+id.String(), id.String(), "")
	rr := httptest.NewRecorder()
	h.GetJob(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
