package ports

import (
	"context"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

// KeyValueStore is the backing store behind the answer and embedding caches.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetEX(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Del(ctx context.Context, keys ...string) (int, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// Embedder builds vectors for query and document text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeStore holds peptide knowledge items.
type KnowledgeStore interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, item domain.KnowledgeItem) error
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]domain.VectorHit, error)
	GetByExactName(ctx context.Context, name string) (*domain.KnowledgeItem, error)
	DeleteByName(ctx context.Context, name string) (int, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ChatCompleter runs a single chat completion. Implementations must not retry.
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ManagedSearchProvider is the primary web-search API.
type ManagedSearchProvider interface {
	Search(ctx context.Context, query string) ([]domain.SearchHit, error)
}

// BroadSearchProvider returns organic results for the fallback tier.
type BroadSearchProvider interface {
	Search(ctx context.Context, query string, numResults int) ([]domain.OrganicResult, error)
}

// PageScraper fetches a page and returns its visible text.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (string, error)
}

// Chunker splits text into overlapping chunks.
type Chunker interface {
	Split(text string) []string
}

// AllowListRepository lists and edits allowed domains.
type AllowListRepository interface {
	ListAllowedURLs(ctx context.Context) ([]domain.AllowedURL, error)
	CreateAllowedURL(ctx context.Context, item *domain.AllowedURL) error
	DeleteAllowedURL(ctx context.Context, id int64) error
}

// RestrictionRepository lists and edits chat restrictions.
type RestrictionRepository interface {
	ListRestrictions(ctx context.Context) ([]domain.ChatRestriction, error)
	CreateRestriction(ctx context.Context, item *domain.ChatRestriction) error
	DeleteRestriction(ctx context.Context, id int64) error
}

// ToggleRepository stores the managed-search switch.
type ToggleRepository interface {
	GetManagedSearchToggle(ctx context.Context) (domain.ManagedSearchToggle, error)
	SetManagedSearchToggle(ctx context.Context, enabled bool) (domain.ManagedSearchToggle, error)
}

// TranscriptStore persists chat sessions and their messages.
type TranscriptStore interface {
	GetOrCreateSession(ctx context.Context, sessionID, userID, title string) (*domain.ChatSession, error)
	AppendMessages(ctx context.Context, sessionID string, messages []domain.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// UsageRepository stores and aggregates external API usage.
type UsageRepository interface {
	RecordUsage(ctx context.Context, usage domain.APIUsage) error
	SummarizeUsage(ctx context.Context, period domain.UsagePeriod, buckets int) ([]domain.UsageBucket, error)
}

// TranscriptPublisher hands transcript events to the background writer.
type TranscriptPublisher interface {
	PublishTranscript(ctx context.Context, event domain.TranscriptEvent) error
}

// BackgroundRunner runs fire-and-forget tasks. Submit never blocks and
// reports false when the task was dropped.
type BackgroundRunner interface {
	Submit(name string, task func(context.Context) error) bool
}

// CascadeObserver records tier and outcome timings.
type CascadeObserver interface {
	ObserveTier(tier string, status domain.TierStatus, elapsed time.Duration)
	ObserveOutcome(state domain.TerminalState, source domain.AnswerSource, elapsed time.Duration)
}
