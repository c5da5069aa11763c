package ports

import (
	"context"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

// AnswerService runs the retrieval cascade for one query.
type AnswerService interface {
	Answer(ctx context.Context, query domain.Query) (*domain.Answer, error)
}

// IntentRouter answers small talk directly and sends the rest to the cascade.
type IntentRouter interface {
	Route(ctx context.Context, query domain.Query) (*domain.Answer, error)
}

// KnowledgeService manages peptide knowledge items.
type KnowledgeService interface {
	CreatePeptide(ctx context.Context, peptide domain.Peptide) (*domain.KnowledgeItem, error)
	ReplacePeptide(ctx context.Context, name string, peptide domain.Peptide) (*domain.KnowledgeItem, error)
	DeletePeptide(ctx context.Context, name string) error
	GetPeptide(ctx context.Context, name string) (*domain.KnowledgeItem, error)
	FindSimilar(ctx context.Context, name string, topK int) ([]domain.SimilarPeptide, error)
}

// CacheAdmin exposes cache maintenance.
type CacheAdmin interface {
	InvalidateAll(ctx context.Context, scope string) (int, error)
	Stats(ctx context.Context) domain.CacheStats
}

// SessionService reads and edits chat transcripts.
type SessionService interface {
	CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// DashboardService builds the admin aggregate.
type DashboardService interface {
	Summary(ctx context.Context) domain.DashboardSummary
	Usage(ctx context.Context, period domain.UsagePeriod) ([]domain.UsageBucket, error)
}

// AdminService edits the allow-list, chat restrictions and the managed-search switch.
type AdminService interface {
	ListAllowedURLs(ctx context.Context) ([]domain.AllowedURL, error)
	AddAllowedURL(ctx context.Context, pattern, description string) (*domain.AllowedURL, error)
	DeleteAllowedURL(ctx context.Context, id int64) error
	ListRestrictions(ctx context.Context) ([]domain.ChatRestriction, error)
	AddRestriction(ctx context.Context, text string) (*domain.ChatRestriction, error)
	DeleteRestriction(ctx context.Context, id int64) error
	ManagedSearchToggle(ctx context.Context) (domain.ManagedSearchToggle, error)
	SetManagedSearchToggle(ctx context.Context, enabled bool) (domain.ManagedSearchToggle, error)
}
