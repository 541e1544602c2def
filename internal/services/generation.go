package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"veochat-backend/internal/blob"
	"veochat-backend/internal/models"
	"veochat-backend/internal/veo"
)

// settleTimeout bounds the database writes that record a job outcome.
// The job context may already be cancelled or expired by then, so
// settlement runs on its own context.
const settleTimeout = 10 * time.Second

type videoGenerator interface {
	Generate(ctx context.Context, req veo.GenerationRequest) (*veo.Generation, error)
}

type generationChatRepository interface {
	GetMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error)
	GetMessageImage(ctx context.Context, id uuid.UUID) ([]byte, string, error)
	MarkGenerating(ctx context.Context, id uuid.UUID) error
	SettleComplete(ctx context.Context, id uuid.UUID, blobID string) (bool, error)
	SettleError(ctx context.Context, id uuid.UUID, kind, message string) (bool, error)
	TouchSession(ctx context.Context, id uuid.UUID) error
}

type generationJobRepository interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// GenerationService runs one generation job from prompt to settled chat
// entry: it marks the agent entry generating, calls the video client, and
// records exactly one terminal outcome on the entry and the job.
type GenerationService struct {
	generator videoGenerator
	chatRepo  generationChatRepository
	jobRepo   generationJobRepository
	blobs     *blob.Store
	keys      *KeyManager
	redis     eventPublisher
}

func NewGenerationService(generator videoGenerator, chatRepo generationChatRepository, jobRepo generationJobRepository, blobs *blob.Store, keys *KeyManager, redisClient *redis.Client) *GenerationService {
	return &GenerationService{
		generator: generator,
		chatRepo:  chatRepo,
		jobRepo:   jobRepo,
		blobs:     blobs,
		keys:      keys,
		redis:     redisClient,
	}
}

// PublishUpdate sends a WebSocket event to every client watching the session.
func (s *GenerationService) PublishUpdate(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	s.redis.Publish(ctx, fmt.Sprintf("session_updates:%s", sessionID.String()), string(data))
}

// Run executes a single job. The context carries the job deadline and is
// cancelled when the user aborts the job. Every path out of Run settles
// the agent entry; nothing stays pending once a worker has picked the
// job up.
func (s *GenerationService) Run(ctx context.Context, job *models.GenerationJob) error {
	if err := s.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusProcessing); err != nil {
		kind, msg := internalFailure(err)
		s.settleFailure(job, kind, msg)
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := s.chatRepo.MarkGenerating(ctx, job.MessageID); err != nil {
		kind, msg := internalFailure(err)
		s.settleFailure(job, kind, msg)
		return fmt.Errorf("failed to mark message generating: %w", err)
	}
	s.PublishUpdate(ctx, job.SessionID, models.WSMessage{
		Type: models.EventStatus,
		Payload: models.StatusUpdate{
			SessionID: job.SessionID,
			MessageID: job.MessageID,
			JobID:     job.ID,
			Status:    models.MessageStatusGenerating,
		},
	})

	req, err := s.buildRequest(ctx, job)
	if err != nil {
		kind, msg := internalFailure(err)
		s.settleFailure(job, kind, msg)
		return err
	}

	gen, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.settleFailure(job, veo.Kind(err), failureMessage(err))
		return err
	}

	s.settleSuccess(job, gen)
	return nil
}

func (s *GenerationService) buildRequest(ctx context.Context, job *models.GenerationJob) (veo.GenerationRequest, error) {
	prompt, err := s.chatRepo.GetMessage(ctx, job.PromptMessageID)
	if err != nil {
		return veo.GenerationRequest{}, fmt.Errorf("failed to load prompt message: %w", err)
	}

	req := veo.GenerationRequest{}
	if prompt.Text != nil {
		req.Prompt = *prompt.Text
	}

	data, mimeType, err := s.chatRepo.GetMessageImage(ctx, job.PromptMessageID)
	if err == nil {
		req.Image = &veo.ImageAttachment{Data: data, MIMEType: mimeType}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return veo.GenerationRequest{}, fmt.Errorf("failed to load prompt image: %w", err)
	}

	if len(job.ConfigJSON) > 0 {
		var cfg models.GenerationConfig
		if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
			return veo.GenerationRequest{}, fmt.Errorf("failed to decode job config: %w", err)
		}
		req.Config = veo.GenerationConfig{
			AspectRatio: cfg.AspectRatio,
			Resolution:  cfg.Resolution,
		}
	}

	return req, nil
}

func (s *GenerationService) settleSuccess(job *models.GenerationJob, gen *veo.Generation) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	settled, err := s.chatRepo.SettleComplete(ctx, job.MessageID, gen.BlobID)
	if err != nil {
		log.Printf("Failed to settle message %s: %v", job.MessageID, err)
	}
	if !settled {
		// The entry settled without us, e.g. the session was discarded
		// mid-generation. Drop the orphaned handle so the bytes do not
		// outlive their chat entry.
		s.blobs.Release(gen.BlobID)
		s.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusCancelled)
		return
	}

	if err := s.chatRepo.TouchSession(ctx, job.SessionID); err != nil {
		log.Printf("Failed to touch session %s: %v", job.SessionID, err)
	}
	if err := s.jobRepo.UpdateStatus(ctx, job.ID, models.JobStatusCompleted); err != nil {
		log.Printf("Failed to mark job %s completed: %v", job.ID, err)
	}
	s.PublishUpdate(ctx, job.SessionID, models.WSMessage{
		Type: models.EventCompleted,
		Payload: models.CompletedEvent{
			SessionID: job.SessionID,
			MessageID: job.MessageID,
			JobID:     job.ID,
			VideoURL:  models.VideoURLFor(gen.BlobID),
		},
	})
}

func (s *GenerationService) settleFailure(job *models.GenerationJob, kind, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	if kind == veo.KindAuth {
		// A rejected key stays rejected; flag it so the key status
		// endpoint reports not-ready and the UI asks for a new one.
		s.keys.Flag(message)
	}

	status := models.JobStatusFailed
	if kind == veo.KindCancelled {
		status = models.JobStatusCancelled
	}

	settled, err := s.chatRepo.SettleError(ctx, job.MessageID, kind, message)
	if err != nil {
		log.Printf("Failed to settle message %s: %v", job.MessageID, err)
	}
	if err := s.jobRepo.UpdateStatus(ctx, job.ID, status); err != nil {
		log.Printf("Failed to mark job %s %s: %v", job.ID, status, err)
	}
	if err := s.jobRepo.UpdateError(ctx, job.ID, message); err != nil {
		log.Printf("Failed to record job %s error: %v", job.ID, err)
	}

	if settled {
		s.PublishUpdate(ctx, job.SessionID, models.WSMessage{
			Type: models.EventError,
			Payload: models.ErrorEvent{
				SessionID:    job.SessionID,
				MessageID:    job.MessageID,
				JobID:        job.ID,
				ErrorKind:    kind,
				ErrorMessage: message,
			},
		})
	}
}

func failureMessage(err error) string {
	switch veo.Kind(err) {
	case veo.KindCancelled:
		return "generation cancelled"
	case veo.KindTimeout:
		return "generation timed out"
	default:
		return err.Error()
	}
}

// internalFailure classifies an error raised before the vendor was
// involved. Cancel and timeout keep their kinds; everything else is a
// fault of ours and settles without one.
func internalFailure(err error) (kind, message string) {
	switch veo.Kind(err) {
	case veo.KindCancelled:
		return veo.KindCancelled, "generation cancelled"
	case veo.KindTimeout:
		return veo.KindTimeout, "generation timed out"
	default:
		return "", "generation failed to start"
	}
}
