package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	synthesisMaxContextChars = 4000
	backgroundTaskTimeout    = 30 * time.Second
)

var errCacheWriteFailed = errors.New("cache write failed")

type CascadeConfig struct {
	// HighConfidence is the vector similarity at or above which the judge is skipped.
	HighConfidence float64
	CacheTTL       time.Duration
}

func (c CascadeConfig) normalize() CascadeConfig {
	out := c
	if out.HighConfidence <= 0 || out.HighConfidence > 1 {
		out.HighConfidence = 0.70
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = time.Hour
	}
	return out
}

// CascadeHooks are the side-effect collaborators of a cascade run. All are optional.
type CascadeHooks struct {
	Background  ports.BackgroundRunner
	Transcripts ports.TranscriptPublisher
	Observer    ports.CascadeObserver
}

// CascadeController escalates a query through cache, vector store, managed
// search and fallback search until one tier yields usable context.
type CascadeController struct {
	cache    *CacheGateway
	vector   *VectorKnowledgeTier
	judge    *RelevanceJudge
	managed  *ManagedSearchTier
	fallback *FallbackSearchTier
	synth    *ResponseSynthesizer
	hooks    CascadeHooks
	cfg      CascadeConfig
	now      func() time.Time
}

func NewCascadeController(
	cache *CacheGateway,
	vector *VectorKnowledgeTier,
	judge *RelevanceJudge,
	managed *ManagedSearchTier,
	fallback *FallbackSearchTier,
	synth *ResponseSynthesizer,
	hooks CascadeHooks,
	cfg CascadeConfig,
) *CascadeController {
	return &CascadeController{
		cache:    cache,
		vector:   vector,
		judge:    judge,
		managed:  managed,
		fallback: fallback,
		synth:    synth,
		hooks:    hooks,
		cfg:      cfg.normalize(),
		now:      time.Now,
	}
}

func (c *CascadeController) Answer(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Text = strings.TrimSpace(q.Text)
	q.EntityHint = strings.TrimSpace(q.EntityHint)
	started := c.now()
	scope := q.Scope()

	cacheStarted := c.now()
	if cached, ok := c.cache.Get(ctx, scope, q.Text, q.EntityHint); ok {
		c.observeTier("cache", domain.TierFound, cacheStarted)
		cached.Source = domain.SourceCache
		cached.State = domain.StateAnsweredFromCache
		cached.Cached = true
		cached.SessionID = q.SessionID
		c.recordTranscript(q, cached)
		c.observeOutcome(cached, started)
		return cached, nil
	}
	c.observeTier("cache", domain.TierEmpty, cacheStarted)

	answer, err := c.escalate(ctx, q)
	if err != nil {
		slog.Error("cascade_failed", "query", q.Text, "entity", q.EntityHint, "error", err)
		return nil, err
	}
	answer.SessionID = q.SessionID
	if answer.EntityName == "" {
		answer.EntityName = q.EntityHint
	}

	if answer.State.Answered() {
		c.writeCache(scope, q, *answer)
	}
	c.recordTranscript(q, answer)
	c.observeOutcome(answer, started)
	return answer, nil
}

func (c *CascadeController) escalate(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	tierStarted := c.now()
	vr := c.vector.Lookup(ctx, q.Text, q.EntityHint)
	c.observeTier("vector", vr.Status, tierStarted)

	if vr.Status == domain.TierFound {
		best := vr.Best
		if vr.Exact || best.Score >= c.cfg.HighConfidence {
			if answer, ok := c.answerFromVector(ctx, q, best, domain.SourceVector, domain.StateAnsweredFromVector); ok {
				return answer, nil
			}
		} else {
			judgeStarted := c.now()
			relevant := c.judge.IsRelevant(ctx, q.Text, best.Item.TextContent, q.EntityHint)
			c.observeTier("judge_vector", verdictStatus(relevant), judgeStarted)
			if relevant {
				if answer, ok := c.answerFromVector(ctx, q, best, domain.SourceVectorJudge, domain.StateAnsweredFromVectorJudged); ok {
					return answer, nil
				}
			}
		}
	}

	tierStarted = c.now()
	mr := c.managed.Fetch(ctx, q.Text, q.EntityHint)
	c.observeTier("managed", mr.Status, tierStarted)

	if mr.Status == domain.TierFound {
		judgeStarted := c.now()
		relevant := c.judge.IsRelevant(ctx, q.Text, strings.Join(mr.Contents(), "\n\n"), q.EntityHint)
		c.observeTier("judge_managed", verdictStatus(relevant), judgeStarted)
		if relevant {
			if answer, ok := c.answerFromManaged(ctx, q, mr); ok {
				return answer, nil
			}
		}
	}

	tierStarted = c.now()
	fr := c.fallback.Fetch(ctx, q.Text, q.EntityHint)
	c.observeTier("fallback", fr.Status, tierStarted)

	switch fr.Status {
	case domain.TierEmpty:
		return noInformation(fr.Reason, c.now()), nil
	case domain.TierError:
		if fr.Err == nil {
			fr.Err = errors.New("fallback search failed")
		}
		if domain.IsKind(fr.Err, domain.ErrNotConfigured) {
			return nil, fr.Err
		}
		return nil, domain.WrapError(domain.ErrProviderError, "fallback search", fr.Err)
	}
	return c.answerFromFallback(ctx, q, fr)
}

func (c *CascadeController) answerFromVector(
	ctx context.Context,
	q domain.Query,
	hit domain.VectorHit,
	source domain.AnswerSource,
	state domain.TerminalState,
) (*domain.Answer, bool) {
	label := hit.Item.Name
	text, err := c.synth.Synthesize(ctx, q.Text, firstNonEmpty(q.EntityHint, hit.Item.Name), []SynthesisContext{
		{Label: label, Content: hit.Item.TextContent},
	})
	if err != nil {
		slog.Warn("vector_synthesis_failed", "name", hit.Item.Name, "error", err)
		return nil, false
	}
	return &domain.Answer{
		Text:            text,
		Source:          source,
		State:           state,
		ConfidenceScore: hit.Score,
		ContextRefs:     []domain.ContextRef{{Name: hit.Item.Name, Score: hit.Score}},
		EntityName:      hit.Item.Name,
		SynthesizedAt:   c.now().UTC(),
	}, true
}

func (c *CascadeController) answerFromManaged(ctx context.Context, q domain.Query, mr domain.ManagedResult) (*domain.Answer, bool) {
	contexts := make([]SynthesisContext, 0, len(mr.Items))
	refs := make([]domain.ContextRef, 0, len(mr.Items))
	for _, item := range mr.Items {
		contexts = append(contexts, SynthesisContext{
			Label:   item.URL,
			Content: truncateRunes(item.RawContent, synthesisMaxContextChars),
		})
		refs = append(refs, domain.ContextRef{URL: item.URL, Score: item.ProviderScore})
	}
	text, err := c.synth.Synthesize(ctx, q.Text, q.EntityHint, contexts)
	if err != nil {
		slog.Warn("managed_synthesis_failed", "error", err)
		return nil, false
	}
	return &domain.Answer{
		Text:            text,
		Source:          domain.SourceManaged,
		State:           domain.StateAnsweredFromManaged,
		ConfidenceScore: mr.AggregateScore,
		ContextRefs:     refs,
		SynthesizedAt:   c.now().UTC(),
	}, true
}

func (c *CascadeController) answerFromFallback(ctx context.Context, q domain.Query, fr domain.FallbackResult) (*domain.Answer, error) {
	contexts := make([]SynthesisContext, 0, len(fr.Chunks))
	for _, chunk := range fr.Chunks {
		contexts = append(contexts, SynthesisContext{Label: chunk.SourceURL, Content: chunk.Content})
	}
	text, err := c.synth.Synthesize(ctx, q.Text, q.EntityHint, contexts)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotConfigured) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrProviderError, "synthesize fallback answer", err)
	}

	refs := make([]domain.ContextRef, 0, len(fr.SourceSites))
	for _, site := range fr.SourceSites {
		refs = append(refs, domain.ContextRef{URL: site.URL, Name: site.Title, Score: site.SimilarityScore})
	}
	confidence := 0.0
	if len(fr.Chunks) > 0 {
		confidence = fr.Chunks[0].RelevanceScore
	}
	return &domain.Answer{
		Text:            text,
		Source:          domain.SourceFallback,
		State:           domain.StateAnsweredFromFallback,
		ConfidenceScore: confidence,
		ContextRefs:     refs,
		SynthesizedAt:   c.now().UTC(),
	}, nil
}

func noInformation(reason domain.NoInfoReason, at time.Time) *domain.Answer {
	text := domain.NoSourcesMessage
	if reason == domain.NoInfoBelowConfidence {
		text = domain.BelowConfidenceMessage
	}
	return &domain.Answer{
		Text:          text,
		Source:        domain.SourceNone,
		State:         domain.StateNoInformationFound,
		NoInfoReason:  reason,
		ContextRefs:   []domain.ContextRef{},
		SynthesizedAt: at.UTC(),
	}
}

func (c *CascadeController) writeCache(scope domain.CacheScope, q domain.Query, answer domain.Answer) {
	answer.SessionID = ""
	answer.Cached = false
	c.submit("cache_write", func(ctx context.Context) error {
		if !c.cache.Set(ctx, scope, q.Text, q.EntityHint, answer, c.cfg.CacheTTL) {
			return errCacheWriteFailed
		}
		return nil
	})
}

func (c *CascadeController) recordTranscript(q domain.Query, answer *domain.Answer) {
	if q.SessionID == "" || c.hooks.Transcripts == nil {
		return
	}
	now := c.now().UTC()
	score := answer.ConfidenceScore
	event := domain.TranscriptEvent{
		SessionID: q.SessionID,
		UserID:    q.UserID,
		CreatedAt: now,
		Messages: []domain.ChatMessage{
			{
				ID:        uuid.NewString(),
				SessionID: q.SessionID,
				Role:      domain.RoleUser,
				Content:   q.Text,
				Query:     q.Text,
				CreatedAt: now,
			},
			{
				ID:        uuid.NewString(),
				SessionID: q.SessionID,
				Role:      domain.RoleAssistant,
				Content:   answer.Text,
				Query:     q.Text,
				Response:  answer.Text,
				Score:     &score,
				Source:    string(answer.Source),
				Metadata: map[string]any{
					"state":       string(answer.State),
					"entity_name": answer.EntityName,
					"cached":      answer.Cached,
				},
				CreatedAt: now,
			},
		},
	}
	publisher := c.hooks.Transcripts
	c.submit("transcript_publish", func(ctx context.Context) error {
		return publisher.PublishTranscript(ctx, event)
	})
}

// submit hands a side effect to the background runner. Without a runner the
// task runs on its own goroutine so the response is never held up.
func (c *CascadeController) submit(name string, task func(context.Context) error) {
	if c.hooks.Background != nil {
		if !c.hooks.Background.Submit(name, task) {
			slog.Warn("background_task_dropped", "task", name)
		}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		if err := task(ctx); err != nil {
			slog.Warn("background_task_failed", "task", name, "error", err)
		}
	}()
}

func (c *CascadeController) observeTier(tier string, status domain.TierStatus, started time.Time) {
	if c.hooks.Observer != nil {
		c.hooks.Observer.ObserveTier(tier, status, c.now().Sub(started))
	}
}

func (c *CascadeController) observeOutcome(answer *domain.Answer, started time.Time) {
	elapsed := c.now().Sub(started)
	slog.Info("cascade_outcome",
		"state", answer.State,
		"source", answer.Source,
		"confidence", answer.ConfidenceScore,
		"duration_ms", elapsed.Milliseconds(),
	)
	if c.hooks.Observer != nil {
		c.hooks.Observer.ObserveOutcome(answer.State, answer.Source, elapsed)
	}
}

func verdictStatus(relevant bool) domain.TierStatus {
	if relevant {
		return domain.TierFound
	}
	return domain.TierEmpty
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ ports.AnswerService = (*CascadeController)(nil)

