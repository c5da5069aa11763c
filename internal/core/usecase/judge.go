package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	judgeMaxTokens       = 2
	judgeMaxContextChars = 4000

	judgeSystemPrompt = "You are a strict binary relevance judge. " +
		"Given a user query and candidate content, respond with exactly one word: Yes or No. " +
		"Say Yes only if the content directly helps answer the query about the specified peptide/topic."
)

// RelevanceJudge asks the model a single yes/no question. It fails closed.
type RelevanceJudge struct {
	completer ports.ChatCompleter
	model     string
	timeout   time.Duration
}

func NewRelevanceJudge(completer ports.ChatCompleter, model string, timeout time.Duration) *RelevanceJudge {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RelevanceJudge{completer: completer, model: model, timeout: timeout}
}

func (j *RelevanceJudge) IsRelevant(ctx context.Context, query, candidate, entityHint string) bool {
	if j == nil || j.completer == nil {
		slog.Warn("judge_not_configured")
		return false
	}
	if strings.TrimSpace(candidate) == "" {
		return false
	}

	name := strings.TrimSpace(entityHint)
	if name == "" {
		name = "the peptide"
	}
	userPrompt := fmt.Sprintf(
		"Query about %s: %s\n\nCandidate Content:\n%s\n\nAnswer with only one word: Yes or No",
		name, query, truncateRunes(candidate, judgeMaxContextChars),
	)

	out, err := j.completer.Complete(ctx, ports.CompletionRequest{
		Model: j.model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: judgeSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   judgeMaxTokens,
		Timeout:     j.timeout,
	})
	if err != nil {
		slog.Warn("judge_call_failed", "error", err)
		return false
	}

	verdict := strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "yes")
	slog.Info("judge_verdict", "relevant", verdict, "raw", out)
	return verdict
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
