package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	generalMaxTokens   = 150
	generalTemperature = 0.3
	generalFallback    = "Hello!"
	generalUnavailable = "Hello! How can I help you today?"

	generalSystemPrompt = "You are a concise helpful assistant. If the user greets, reply briefly. " +
		"Avoid mentioning peptides unless asked. Plain text only."

	classifierMaxTokens    = 60
	classifierSystemPrompt = "Classify the user query. Output strict JSON with keys: intent ('general'|'peptide'), " +
		"and peptide_name (string or null). Classify as 'general' if the query is not about peptides " +
		"or chemicals (e.g., greetings)."
)

const (
	IntentGeneral = "general"
	IntentPeptide = "peptide"
)

// Intent is the router's decision for one query. PeptideName is set when the
// classifier named a single peptide.
type Intent struct {
	Kind        string
	PeptideName string
}

var (
	greetingPattern = regexp.MustCompile(`\b(?:hey there|good morning|good evening|good afternoon|how are you|what's up|hello|hey|hi|sup|yo)\b`)
	topicPattern    = regexp.MustCompile(`pept|chemical|mechanism|research|dose|sequence`)
)

// IntentRouter answers general queries directly and sends peptide queries
// through the answer cascade.
type IntentRouter struct {
	answers         ports.AnswerService
	completer       ports.ChatCompleter
	model           string
	classifierModel string
	timeout         time.Duration
	now             func() time.Time
}

func NewIntentRouter(answers ports.AnswerService, completer ports.ChatCompleter, model string, timeout time.Duration) *IntentRouter {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &IntentRouter{
		answers:   answers,
		completer: completer,
		model:     model,
		timeout:   timeout,
		now:       time.Now,
	}
}

// WithClassifier enables LLM classification of queries the greeting heuristic
// lets through. An empty model leaves it disabled.
func (r *IntentRouter) WithClassifier(model string) *IntentRouter {
	r.classifierModel = strings.TrimSpace(model)
	return r
}

// Classify returns the intent for text. Greetings are decided locally. Other
// queries go to the classifier when one is configured; any classifier failure
// falls back to the peptide intent.
func (r *IntentRouter) Classify(ctx context.Context, text string) Intent {
	if LooksLikeGreeting(text) {
		return Intent{Kind: IntentGeneral}
	}
	if r.completer == nil || r.classifierModel == "" {
		return Intent{Kind: IntentPeptide}
	}
	intent, err := r.classify(ctx, text)
	if err != nil {
		slog.Warn("intent_classification_failed", "error", err)
		return Intent{Kind: IntentPeptide}
	}
	return intent
}

func (r *IntentRouter) classify(ctx context.Context, text string) (Intent, error) {
	out, err := r.completer.Complete(ctx, ports.CompletionRequest{
		Model: r.classifierModel,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: strings.TrimSpace(text)},
		},
		Temperature: 0,
		MaxTokens:   classifierMaxTokens,
		Timeout:     r.timeout,
	})
	if err != nil {
		return Intent{}, err
	}
	return parseIntent(out)
}

// parseIntent reads the classifier's JSON object, tolerating code fences or
// prose around it.
func parseIntent(raw string) (Intent, error) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Intent{}, fmt.Errorf("no json object in classifier output %q", raw)
	}
	var decoded struct {
		Intent      string  `json:"intent"`
		PeptideName *string `json:"peptide_name"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decoded); err != nil {
		return Intent{}, fmt.Errorf("decode classifier output: %w", err)
	}
	intent := Intent{Kind: strings.ToLower(strings.TrimSpace(decoded.Intent))}
	switch intent.Kind {
	case IntentGeneral:
		return intent, nil
	case IntentPeptide:
		if decoded.PeptideName != nil {
			intent.PeptideName = strings.TrimSpace(*decoded.PeptideName)
		}
		return intent, nil
	default:
		return Intent{}, fmt.Errorf("unknown intent %q", decoded.Intent)
	}
}

// Route answers general queries directly. Peptide queries go through the
// cascade, scoped to the classified peptide unless the caller already set one.
func (r *IntentRouter) Route(ctx context.Context, q domain.Query) (*domain.Answer, error) {
	intent := r.Classify(ctx, q.Text)
	if intent.Kind == IntentGeneral {
		slog.Info("intent_routed", "intent", IntentGeneral)
		return &domain.Answer{
			Text:          r.generalReply(ctx, q.Text),
			Source:        domain.SourceGeneral,
			State:         domain.StateAnsweredGeneral,
			ContextRefs:   []domain.ContextRef{},
			SessionID:     q.SessionID,
			SynthesizedAt: r.now().UTC(),
		}, nil
	}
	if q.EntityHint == "" && intent.PeptideName != "" {
		q.EntityHint = intent.PeptideName
	}
	slog.Info("intent_routed", "intent", IntentPeptide, "entity", q.EntityHint)
	return r.answers.Answer(ctx, q)
}

// LooksLikeGreeting reports small talk: an empty query, or a greeting with no
// peptide vocabulary in it.
func LooksLikeGreeting(text string) bool {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return true
	}
	return greetingPattern.MatchString(q) && !topicPattern.MatchString(q)
}

func (r *IntentRouter) generalReply(ctx context.Context, text string) string {
	if r.completer == nil {
		return generalUnavailable
	}
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		prompt = "hello"
	}
	out, err := r.completer.Complete(ctx, ports.CompletionRequest{
		Model: r.model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: generalSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: generalTemperature,
		MaxTokens:   generalMaxTokens,
		Timeout:     r.timeout,
	})
	if err != nil {
		slog.Warn("general_reply_failed", "error", err)
		return generalFallback
	}
	if out = strings.TrimSpace(out); out == "" {
		return generalFallback
	}
	return out
}
