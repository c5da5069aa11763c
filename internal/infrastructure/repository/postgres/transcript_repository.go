package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

type TranscriptRepository struct {
	db *sql.DB
}

func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) GetOrCreateSession(ctx context.Context, sessionID, userID, title string) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (session_id, user_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (session_id) DO NOTHING
`, sessionID, userID, title, now)
	if err != nil {
		return nil, fmt.Errorf("ensure session insert: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT session_id, user_id, title, created_at, updated_at
FROM chat_sessions
WHERE session_id = $1
`, sessionID)

	var session domain.ChatSession
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, fmt.Errorf("ensure session select: %w", err)
	}
	return &session, nil
}

func (r *TranscriptRepository) AppendMessages(ctx context.Context, sessionID string, messages []domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, m := range messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		metadata := m.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal message metadata: %w", err)
		}
		var score sql.NullFloat64
		if m.Score != nil {
			score = sql.NullFloat64{Float64: *m.Score, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, query, response, score, source, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, m.ID, sessionID, string(m.Role), m.Content, nullableString(m.Query), nullableString(m.Response), score, nullableString(m.Source), metadataJSON, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = $2 WHERE session_id = $1`, sessionID, now); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE session_id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "list messages", fmt.Errorf("session %q not found", sessionID))
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, role, content, query, response, score, source, metadata, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at, id
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			m             domain.ChatMessage
			role          string
			query, resp   sql.NullString
			source        sql.NullString
			score         sql.NullFloat64
			metadataBytes []byte
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &query, &resp, &score, &source, &metadataBytes, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		m.Query = query.String
		m.Response = resp.String
		m.Source = source.String
		if score.Valid {
			v := score.Float64
			m.Score = &v
		}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (r *TranscriptRepository) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(result, domain.ErrSessionNotFound, "delete session", sessionID)
}

var _ ports.TranscriptStore = (*TranscriptRepository)(nil)
