package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	defaultSessionTitle = "New chat"
	sessionTitleMaxLen  = 60
)

type SessionUseCase struct {
	store ports.TranscriptStore
}

func NewSessionUseCase(store ports.TranscriptStore) *SessionUseCase {
	return &SessionUseCase{store: store}
}

func (uc *SessionUseCase) CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	session, err := uc.store.GetOrCreateSession(ctx, uuid.NewString(), strings.TrimSpace(userID), defaultSessionTitle)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (uc *SessionUseCase) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session history", fmt.Errorf("session_id is required"))
	}
	return uc.store.ListMessages(ctx, sessionID)
}

func (uc *SessionUseCase) DeleteSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete session", fmt.Errorf("session_id is required"))
	}
	return uc.store.DeleteSession(ctx, sessionID)
}

// TranscriptWriter persists transcript events directly. It backs the worker
// and the in-process path used when no broker is configured.
type TranscriptWriter struct {
	store ports.TranscriptStore
}

func NewTranscriptWriter(store ports.TranscriptStore) *TranscriptWriter {
	return &TranscriptWriter{store: store}
}

func (w *TranscriptWriter) PublishTranscript(ctx context.Context, event domain.TranscriptEvent) error {
	if strings.TrimSpace(event.SessionID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "write transcript", fmt.Errorf("session_id is required"))
	}
	if len(event.Messages) == 0 {
		return nil
	}
	if _, err := w.store.GetOrCreateSession(ctx, event.SessionID, event.UserID, sessionTitle(event)); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	if err := w.store.AppendMessages(ctx, event.SessionID, event.Messages); err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	slog.Debug("transcript_written", "session_id", event.SessionID, "messages", len(event.Messages))
	return nil
}

func sessionTitle(event domain.TranscriptEvent) string {
	for _, m := range event.Messages {
		if m.Role == domain.RoleUser && strings.TrimSpace(m.Content) != "" {
			return truncateRunes(strings.TrimSpace(m.Content), sessionTitleMaxLen)
		}
	}
	return defaultSessionTitle
}
