package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const scenarioQuery = "What is BPC-157 used for?"

type knowledgeStoreFake struct {
	mu          sync.Mutex
	items       map[string]domain.KnowledgeItem
	hits        []domain.VectorHit
	searchErr   error
	searchCalls int
	lastLimit   int
	upserts     int
	// failUpserts makes that many upcoming Upsert calls fail.
	failUpserts int
}

func newKnowledgeStoreFake() *knowledgeStoreFake {
	return &knowledgeStoreFake{items: map[string]domain.KnowledgeItem{}}
}

func (f *knowledgeStoreFake) EnsureReady(context.Context) error { return nil }

func (f *knowledgeStoreFake) Upsert(_ context.Context, item domain.KnowledgeItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpserts > 0 {
		f.failUpserts--
		return errors.New("qdrant unavailable")
	}
	f.upserts++
	f.items[item.Name] = item
	return nil
}

func (f *knowledgeStoreFake) Search(_ context.Context, _ []float32, limit int, _ float64) ([]domain.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func (f *knowledgeStoreFake) GetByExactName(_ context.Context, name string) (*domain.KnowledgeItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[name]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (f *knowledgeStoreFake) DeleteByName(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[name]; !ok {
		return 0, nil
	}
	delete(f.items, name)
	return 1, nil
}

// cascadeCompleterFake tells judge calls from synthesis calls by their token budget.
type cascadeCompleterFake struct {
	verdicts   []string
	judgeCalls int
	synthCalls int
	synthErr   error
	lastSynth  ports.CompletionRequest
}

func (f *cascadeCompleterFake) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	if req.MaxTokens == judgeMaxTokens {
		f.judgeCalls++
		if len(f.verdicts) == 0 {
			return "No", nil
		}
		v := f.verdicts[0]
		f.verdicts = f.verdicts[1:]
		return v, nil
	}
	f.synthCalls++
	f.lastSynth = req
	if f.synthErr != nil {
		return "", f.synthErr
	}
	return "synthesized answer", nil
}

type syncRunnerFake struct {
	names []string
	errs  []error
}

func (f *syncRunnerFake) Submit(name string, task func(context.Context) error) bool {
	f.names = append(f.names, name)
	f.errs = append(f.errs, task(context.Background()))
	return true
}

type transcriptPublisherFake struct {
	events []domain.TranscriptEvent
	err    error
}

func (f *transcriptPublisherFake) PublishTranscript(_ context.Context, event domain.TranscriptEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type cascadeObserverFake struct {
	tiers    []string
	outcomes []domain.TerminalState
}

func (f *cascadeObserverFake) ObserveTier(tier string, _ domain.TierStatus, _ time.Duration) {
	f.tiers = append(f.tiers, tier)
}
func (f *cascadeObserverFake) ObserveOutcome(state domain.TerminalState, _ domain.AnswerSource, _ time.Duration) {
	f.outcomes = append(f.outcomes, state)
}

type cascadeHarness struct {
	kv          *kvStoreFake
	store       *knowledgeStoreFake
	completer   *cascadeCompleterFake
	managed     *managedProviderFake
	broad       *broadProviderFake
	scraper     *scraperFake
	runner      *syncRunnerFake
	transcripts *transcriptPublisherFake
	observer    *cascadeObserverFake
	controller  *CascadeController
}

func newCascadeHarness() *cascadeHarness {
	h := &cascadeHarness{
		kv:          newKVStoreFake(),
		store:       newKnowledgeStoreFake(),
		completer:   &cascadeCompleterFake{},
		managed:     &managedProviderFake{},
		broad:       &broadProviderFake{},
		scraper:     &scraperFake{pages: map[string]string{}},
		runner:      &syncRunnerFake{},
		transcripts: &transcriptPublisherFake{},
		observer:    &cascadeObserverFake{},
	}
	allow := NewAllowListLoader(&allowListRepoFake{items: allowedURLs("examine.com", "nih.gov")})
	embedder := &keywordEmbedderFake{}
	h.controller = NewCascadeController(
		NewCacheGateway(h.kv, time.Hour),
		NewVectorKnowledgeTier(embedder, h.store, 0),
		NewRelevanceJudge(h.completer, "gpt-4o", 0),
		NewManagedSearchTier(h.managed, allow, nil),
		NewFallbackSearchTier(h.broad, h.scraper, allow, pipeChunker{}, embedder, FallbackConfig{MinConfidence: 50}),
		NewResponseSynthesizer(h.completer, nil, "gpt-4o-mini", 0),
		CascadeHooks{Background: h.runner, Transcripts: h.transcripts, Observer: h.observer},
		CascadeConfig{HighConfidence: 0.70, CacheTTL: time.Hour},
	)
	return h
}

func (h *cascadeHarness) vectorHit(score float64) {
	h.store.hits = []domain.VectorHit{{
		Item:  domain.KnowledgeItem{ID: "1", Name: "BPC-157", TextContent: "Name: BPC-157\nOverview: healing peptide"},
		Score: score,
	}}
}

func (h *cascadeHarness) ask(t *testing.T, text, hint string) *domain.Answer {
	t.Helper()
	answer, err := h.controller.Answer(context.Background(), domain.Query{Text: text, EntityHint: hint})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	return answer
}

func TestCascadeCacheHitMakesNoProviderCalls(t *testing.T) {
	h := newCascadeHarness()
	NewCacheGateway(h.kv, time.Hour).Set(context.Background(), domain.ScopeGeneral, scenarioQuery, "", domain.Answer{
		Text:   "cached text",
		Source: domain.SourceVector,
		State:  domain.StateAnsweredFromVector,
	}, 0)
	setsBefore := h.kv.sets

	answer := h.ask(t, "  what is bpc-157 used for?  ", "")
	if answer.Source != domain.SourceCache || answer.State != domain.StateAnsweredFromCache || !answer.Cached {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.Text != "cached text" {
		t.Fatalf("unexpected text %q", answer.Text)
	}
	if h.store.searchCalls != 0 || h.completer.judgeCalls != 0 || h.completer.synthCalls != 0 || h.managed.calls != 0 || h.broad.calls != 0 {
		t.Fatalf("expected zero provider calls")
	}
	if h.kv.sets != setsBefore {
		t.Fatalf("cache hit must not rewrite the entry")
	}
}

func TestCascadeHighConfidenceVectorSkipsJudge(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.92)

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceVector || answer.State != domain.StateAnsweredFromVector {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if h.completer.judgeCalls != 0 || h.managed.calls != 0 || h.broad.calls != 0 {
		t.Fatalf("expected no judge or search calls")
	}
	if h.completer.synthCalls != 1 || answer.Text != "synthesized answer" {
		t.Fatalf("expected one synthesis, got %d", h.completer.synthCalls)
	}
	if answer.EntityName != "BPC-157" || answer.ConfidenceScore != 0.92 {
		t.Fatalf("unexpected metadata: %+v", answer)
	}
	if h.kv.sets != 1 {
		t.Fatalf("expected cache write, got %d", h.kv.sets)
	}
	if _, ok := NewCacheGateway(h.kv, 0).Get(context.Background(), domain.ScopeGeneral, scenarioQuery, ""); !ok {
		t.Fatalf("expected cached answer to be readable")
	}
}

func TestCascadeLowConfidenceVectorJudgedYes(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.4)
	h.completer.verdicts = []string{"Yes"}

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceVectorJudge || answer.State != domain.StateAnsweredFromVectorJudged {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if h.completer.judgeCalls != 1 {
		t.Fatalf("expected one judge call, got %d", h.completer.judgeCalls)
	}
	if h.managed.calls != 0 || h.broad.calls != 0 {
		t.Fatalf("expected no search-tier calls")
	}
}

func TestCascadeManagedAnswerAfterVectorRejected(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.4)
	h.completer.verdicts = []string{"No", "Yes"}
	h.managed.hits = []domain.SearchHit{
		{URL: "https://examine.com/bpc-157", RawContent: "BPC-157 supports healing", ProviderScore: 0.8},
		{URL: "https://pubmed.ncbi.nlm.nih.gov/1", RawContent: "study", ProviderScore: 0.6},
		{URL: "https://random.blog/bpc", RawContent: "noise", ProviderScore: 0.9},
	}

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceManaged || answer.State != domain.StateAnsweredFromManaged {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if h.completer.judgeCalls != 2 {
		t.Fatalf("expected exactly two judge calls, got %d", h.completer.judgeCalls)
	}
	if h.broad.calls != 0 {
		t.Fatalf("fallback must not run")
	}
	if len(answer.ContextRefs) != 2 {
		t.Fatalf("expected two context refs, got %+v", answer.ContextRefs)
	}
	if !strings.Contains(h.completer.lastSynth.Messages[1].Content, "Source 1 (https://examine.com/bpc-157)") {
		t.Fatalf("managed content missing from synthesis prompt")
	}
}

func fallbackPages(h *cascadeHarness, texts map[string]string) {
	urls := make([]string, 0, len(texts))
	for _, u := range []string{"https://examine.com/a", "https://nih.gov/b", "https://examine.com/c"} {
		if _, ok := texts[u]; ok {
			urls = append(urls, u)
		}
	}
	h.broad.results = organic(urls...)
	h.scraper.pages = texts
}

func TestCascadeFallbackWhenManagedHasNoDomainMatch(t *testing.T) {
	h := newCascadeHarness()
	h.managed.hits = []domain.SearchHit{{URL: "https://other.com/x", RawContent: "x", ProviderScore: 0.9}}
	fallbackPages(h, map[string]string{
		"https://examine.com/a": "relevant one|noise",
		"https://nih.gov/b":     "half relevant|relevant two",
		"https://examine.com/c": "relevant three",
	})

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceFallback || answer.State != domain.StateAnsweredFromFallback {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if h.completer.judgeCalls != 0 {
		t.Fatalf("judge must be skipped when nothing was selected, got %d calls", h.completer.judgeCalls)
	}
	if len(answer.ContextRefs) == 0 || len(answer.ContextRefs) > 4 {
		t.Fatalf("expected up to 4 distinct source urls, got %+v", answer.ContextRefs)
	}
	seen := map[string]bool{}
	for _, ref := range answer.ContextRefs {
		if seen[ref.URL] {
			t.Fatalf("duplicate source url %s", ref.URL)
		}
		seen[ref.URL] = true
	}
	if h.completer.synthCalls != 1 || h.kv.sets != 1 {
		t.Fatalf("expected synthesis and cache write")
	}
}

func TestCascadeBelowConfidenceIsNoInformation(t *testing.T) {
	h := newCascadeHarness()
	fallbackPages(h, map[string]string{"https://examine.com/a": "unrelated|other words"})

	answer := h.ask(t, scenarioQuery, "")
	if answer.State != domain.StateNoInformationFound || answer.NoInfoReason != domain.NoInfoBelowConfidence {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.Text != domain.BelowConfidenceMessage {
		t.Fatalf("unexpected text %q", answer.Text)
	}
	if h.completer.synthCalls != 0 {
		t.Fatalf("synthesizer must not run")
	}
	if h.kv.sets != 0 {
		t.Fatalf("no-information results must not be cached")
	}
}

func TestCascadeNoSourcesIsNoInformation(t *testing.T) {
	h := newCascadeHarness()
	h.broad.results = organic("https://blocked.com/a")

	answer := h.ask(t, scenarioQuery, "")
	if answer.State != domain.StateNoInformationFound || answer.Text != domain.NoSourcesMessage {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestCascadeConfidenceGating(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.9)
	h.ask(t, scenarioQuery, "")
	if h.completer.judgeCalls != 0 {
		t.Fatalf("0.9 must never trigger the judge")
	}

	h = newCascadeHarness()
	h.vectorHit(0.5)
	h.completer.verdicts = []string{"Yes"}
	h.ask(t, scenarioQuery, "")
	if h.completer.judgeCalls != 1 {
		t.Fatalf("0.5 must trigger the judge once, got %d", h.completer.judgeCalls)
	}
}

func TestCascadeExactEntityMatchSkipsSearch(t *testing.T) {
	h := newCascadeHarness()
	h.store.items["BPC-157"] = domain.KnowledgeItem{ID: "1", Name: "BPC-157", TextContent: "Name: BPC-157"}

	answer := h.ask(t, "what is the half-life", "BPC-157")
	if answer.Source != domain.SourceVector || answer.ConfidenceScore != 1.0 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if h.store.searchCalls != 0 || h.completer.judgeCalls != 0 {
		t.Fatalf("exact match must skip vector search and judge")
	}
	if _, ok := NewCacheGateway(h.kv, 0).Get(context.Background(), domain.ScopeSpecific, "what is the half-life", "bpc-157"); !ok {
		t.Fatalf("expected entry under the specific scope")
	}
}

func TestCascadeVectorErrorEscalates(t *testing.T) {
	h := newCascadeHarness()
	h.store.searchErr = errors.New("qdrant 503")
	h.completer.verdicts = []string{"Yes"}
	h.managed.hits = []domain.SearchHit{{URL: "https://examine.com/a", RawContent: "content", ProviderScore: 0.7}}

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceManaged {
		t.Fatalf("expected managed answer after vector failure, got %+v", answer)
	}
}

func TestCascadeFallbackFailureSurfaces(t *testing.T) {
	h := newCascadeHarness()
	h.broad.err = errors.New("serpapi down")

	_, err := h.controller.Answer(context.Background(), domain.Query{Text: scenarioQuery})
	if !domain.IsKind(err, domain.ErrProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestCascadeFallbackSynthesisFailureSurfaces(t *testing.T) {
	h := newCascadeHarness()
	h.completer.synthErr = errors.New("openai 500")
	fallbackPages(h, map[string]string{"https://examine.com/a": "relevant text"})

	_, err := h.controller.Answer(context.Background(), domain.Query{Text: scenarioQuery})
	if err == nil {
		t.Fatalf("expected error from final tier")
	}
}

func TestCascadeRejectsInvalidQuery(t *testing.T) {
	h := newCascadeHarness()
	_, err := h.controller.Answer(context.Background(), domain.Query{Text: " "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(h.observer.tiers) != 0 {
		t.Fatalf("no tier may run for an invalid query")
	}
}

func TestCascadeCacheOutageDoesNotFailAnswer(t *testing.T) {
	h := newCascadeHarness()
	h.kv.err = errors.New("redis down")
	h.vectorHit(0.95)

	answer := h.ask(t, scenarioQuery, "")
	if answer.Source != domain.SourceVector {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if len(h.runner.errs) == 0 || !errors.Is(h.runner.errs[0], errCacheWriteFailed) {
		t.Fatalf("expected failed cache write to be reported to the runner, got %v", h.runner.errs)
	}
}

func TestCascadePublishesTranscript(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.95)

	_, err := h.controller.Answer(context.Background(), domain.Query{Text: scenarioQuery, SessionID: "s-1", UserID: "u-1"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(h.transcripts.events) != 1 {
		t.Fatalf("expected one transcript event, got %d", len(h.transcripts.events))
	}
	event := h.transcripts.events[0]
	if event.SessionID != "s-1" || len(event.Messages) != 2 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Messages[0].Role != domain.RoleUser || event.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles: %+v", event.Messages)
	}
	if event.Messages[1].Source != string(domain.SourceVector) || event.Messages[1].Score == nil {
		t.Fatalf("assistant message missing source or score: %+v", event.Messages[1])
	}
}

func TestCascadeObservesTiers(t *testing.T) {
	h := newCascadeHarness()
	h.vectorHit(0.4)
	h.completer.verdicts = []string{"Yes"}
	h.ask(t, scenarioQuery, "")

	want := []string{"cache", "vector", "judge_vector"}
	if strings.Join(h.observer.tiers, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected tiers %v", h.observer.tiers)
	}
	if len(h.observer.outcomes) != 1 || h.observer.outcomes[0] != domain.StateAnsweredFromVectorJudged {
		t.Fatalf("unexpected outcomes %v", h.observer.outcomes)
	}
}
