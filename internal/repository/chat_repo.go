package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veochat-backend/internal/models"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) CreateSession(ctx context.Context, s *models.ChatSession) error {
	s.ID = uuid.New()
	if s.Title == "" {
		s.Title = "New chat"
	}

	query := `INSERT INTO chat_sessions (id, title) VALUES ($1, $2) RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query, s.ID, s.Title).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *ChatRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	s := &models.ChatSession{}
	query := `SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ChatRepo) ListSessions(ctx context.Context) ([]*models.ChatSession, error) {
	query := `SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*models.ChatSession{}
	for rows.Next() {
		s := &models.ChatSession{}
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SetTitleFromPrompt names a still-untitled session after its first prompt.
func (r *ChatRepo) SetTitleFromPrompt(ctx context.Context, id uuid.UUID, title string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = NOW() WHERE id = $2 AND title = 'New chat'`,
		title, id,
	)
	return err
}

func (r *ChatRepo) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

// DeleteSession removes a session with its messages and jobs (cascade) and
// returns the blob ids the messages held so the caller can release them.
func (r *ChatRepo) DeleteSession(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT video_blob_id FROM chat_messages WHERE session_id = $1 AND video_blob_id IS NOT NULL`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobIDs := []string{}
	for rows.Next() {
		var blobID string
		if err := rows.Scan(&blobID); err != nil {
			return nil, err
		}
		blobIDs = append(blobIDs, blobID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return blobIDs, nil
}

const messageColumns = `id, session_id, role, text, image_mime_type, video_blob_id, status, error_kind, error_message, created_at, updated_at`

func scanMessage(row pgx.Row) (*models.ChatMessage, error) {
	m := &models.ChatMessage{}
	var imageMIME *string

	err := row.Scan(
		&m.ID, &m.SessionID, &m.Role, &m.Text, &imageMIME, &m.VideoBlobID,
		&m.Status, &m.ErrorKind, &m.Error, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imageMIME != nil {
		u := models.ImageURLFor(m.ID)
		m.ImageURL = &u
	}
	if m.VideoBlobID != nil {
		u := models.VideoURLFor(*m.VideoBlobID)
		m.VideoURL = &u
	}
	return m, nil
}

// CreateMessage inserts a chat entry. Image bytes are stored on the row;
// the serialized form carries only the serving URL.
func (r *ChatRepo) CreateMessage(ctx context.Context, m *models.ChatMessage, imageData []byte, imageMIME string) error {
	m.ID = uuid.New()
	if m.Status == "" {
		m.Status = models.MessageStatusPending
	}

	var mime *string
	if imageMIME != "" {
		mime = &imageMIME
	}

	query := `INSERT INTO chat_messages (id, session_id, role, text, image_data, image_mime_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		m.ID, m.SessionID, m.Role, m.Text, imageData, mime, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return err
	}

	if mime != nil {
		u := models.ImageURLFor(m.ID)
		m.ImageURL = &u
	}
	return nil
}

func (r *ChatRepo) GetMessage(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`
	return scanMessage(r.pool.QueryRow(ctx, query, id))
}

func (r *ChatRepo) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE session_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessageImage returns the stored image payload of a user entry.
// Messages without an image yield pgx.ErrNoRows.
func (r *ChatRepo) GetMessageImage(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	var data []byte
	var mime string

	query := `SELECT image_data, image_mime_type FROM chat_messages WHERE id = $1 AND image_data IS NOT NULL`
	if err := r.pool.QueryRow(ctx, query, id).Scan(&data, &mime); err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

func (r *ChatRepo) MarkGenerating(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET status = 'generating', updated_at = NOW() WHERE id = $1 AND status = 'pending'`,
		id,
	)
	return err
}

// SettleComplete settles an agent entry with its video handle. The status
// guard makes settlement single-shot: a second attempt affects no rows and
// returns false.
func (r *ChatRepo) SettleComplete(ctx context.Context, id uuid.UUID, blobID string) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET status = 'complete', video_blob_id = $1, error_kind = NULL, error_message = NULL, updated_at = NOW()
		 WHERE id = $2 AND status IN ('pending', 'generating')`,
		blobID, id,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// SettleError settles an agent entry with a terminal error.
func (r *ChatRepo) SettleError(ctx context.Context, id uuid.UUID, kind, message string) (bool, error) {
	var kindPtr *string
	if kind != "" {
		kindPtr = &kind
	}

	ct, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET status = 'error', error_kind = $1, error_message = $2, updated_at = NOW()
		 WHERE id = $3 AND status IN ('pending', 'generating')`,
		kindPtr, message, id,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// FailUnsettledMessages marks agent entries that never settled as errors.
// Runs at startup; in-flight generations do not survive a restart.
func (r *ChatRepo) FailUnsettledMessages(ctx context.Context) (int64, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE chat_messages SET status = 'error', error_message = 'generation interrupted by restart', updated_at = NOW()
		 WHERE role = 'agent' AND status IN ('pending', 'generating')`,
	)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
