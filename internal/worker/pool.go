package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"veochat-backend/internal/models"
)

// ErrQueueFull is returned by Enqueue when the bounded buffer is at
// capacity. Callers report the submission as rejected rather than block.
var ErrQueueFull = errors.New("generation queue is full")

type jobRunner interface {
	Run(ctx context.Context, job *models.GenerationJob) error
}

type poolJobRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	MarkStaleFailed(ctx context.Context) (int64, error)
}

type poolChatRepository interface {
	FailUnsettledMessages(ctx context.Context) (int64, error)
}

// Pool runs generation jobs on a fixed set of workers fed by an in-memory
// channel. Queued jobs do not survive a restart; SweepStale marks whatever
// a previous run left behind as failed, since operation handles are never
// persisted and cannot be resumed.
type Pool struct {
	runner      jobRunner
	jobRepo     poolJobRepository
	chatRepo    poolChatRepository
	registry    *Registry
	jobs        chan uuid.UUID
	workerCount int
	jobTimeout  time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewPool(runner jobRunner, jobRepo poolJobRepository, chatRepo poolChatRepository, registry *Registry, workerCount, queueSize int, jobTimeout time.Duration) *Pool {
	return &Pool{
		runner:      runner,
		jobRepo:     jobRepo,
		chatRepo:    chatRepo,
		registry:    registry,
		jobs:        make(chan uuid.UUID, queueSize),
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue hands a job to the pool without blocking.
func (p *Pool) Enqueue(jobID uuid.UUID) error {
	select {
	case p.jobs <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// SweepStale fails jobs and chat entries left unsettled by a previous run.
// Called once at startup, before Start.
func (p *Pool) SweepStale(ctx context.Context) {
	if n, err := p.jobRepo.MarkStaleFailed(ctx); err != nil {
		log.Printf("Failed to sweep stale jobs: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d stale jobs as failed", n)
	}
	if n, err := p.chatRepo.FailUnsettledMessages(ctx); err != nil {
		log.Printf("Failed to sweep unsettled chat entries: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d unsettled chat entries as failed", n)
	}
}

func (p *Pool) Start() {
	for i := 1; i <= p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Printf("Started %d generation workers", p.workerCount)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
	log.Println("Worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case jobID := <-p.jobs:
			p.process(id, jobID)
		}
	}
}

func (p *Pool) process(workerID int, jobID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	p.registry.Register(jobID, cancel)
	defer p.registry.Deregister(jobID)

	job, err := p.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		log.Printf("Worker %d: failed to load job %s: %v", workerID, jobID, err)
		return
	}
	if job.Status != models.JobStatusPending {
		// Cancelled while queued; nothing to run.
		return
	}

	log.Printf("Worker %d: processing job %s", workerID, jobID)
	if err := p.runner.Run(ctx, job); err != nil {
		log.Printf("Worker %d: job %s failed: %v", workerID, jobID, err)
		return
	}
	log.Printf("Worker %d: job %s completed", workerID, jobID)
}
