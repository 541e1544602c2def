package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"veochat-backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.GenerationJob) error {
	j.ID = uuid.New()
	j.Status = models.JobStatusPending

	config := j.ConfigJSON
	if len(config) == 0 {
		config = []byte("{}")
	}

	query := `INSERT INTO generation_jobs (id, session_id, message_id, prompt_message_id, config, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.SessionID, j.MessageID, j.PromptMessageID, config, j.Status,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error) {
	j := &models.GenerationJob{}
	query := `SELECT id, session_id, message_id, prompt_message_id, config, status, error_message, created_at, completed_at
		FROM generation_jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.SessionID, &j.MessageID, &j.PromptMessageID, &j.ConfigJSON,
		&j.Status, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := "UPDATE generation_jobs SET status = $1 WHERE id = $2"
	if status == models.JobStatusCompleted || status == models.JobStatusFailed || status == models.JobStatusCancelled {
		now := time.Now()
		query = "UPDATE generation_jobs SET status = $1, completed_at = $2 WHERE id = $3"
		_, err := r.pool.Exec(ctx, query, status, now, id)
		return err
	}
	_, err := r.pool.Exec(ctx, query, status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE generation_jobs SET error_message = $1 WHERE id = $2",
		errMsg, id,
	)
	return err
}

// ListActiveBySession returns ids of jobs that may still be running for a
// session, so a discard can abort them first.
func (r *JobRepo) ListActiveBySession(ctx context.Context, sessionID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM generation_jobs WHERE session_id = $1 AND status IN ('pending', 'processing')`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkStaleFailed fails jobs left in flight by a previous run. The
// in-memory queue does not survive restart, so nothing will pick them up.
func (r *JobRepo) MarkStaleFailed(ctx context.Context) (int64, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE generation_jobs SET status = 'failed', error_message = 'interrupted by restart', completed_at = NOW()
		 WHERE status IN ('pending', 'processing')`,
	)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
