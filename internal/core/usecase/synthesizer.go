package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	answerMaxChars      = 1000
	answerWordBreakFrom = 900

	synthesisTemperature = 0.3
	synthesisMaxTokens   = 400

	synthesisSystemPrompt = "You are a helpful assistant specializing in peptide research and information. " +
		"Provide focused, concise responses that directly answer the user's specific question " +
		"without unnecessary details.\n\n" +
		"IMPORTANT FORMATTING REQUIREMENTS:\n" +
		"- Write in plain text only, NO markdown formatting\n" +
		"- Use normal paragraphs with proper spacing\n" +
		"- Keep response under 1000 characters\n" +
		"- Make it easy to read and understand"
)

var (
	mdHeader     = regexp.MustCompile(`#+\s*`)
	mdBold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.*?)\*`)
	mdCodeFence  = regexp.MustCompile("(?s)```.*?```")
	mdInlineCode = regexp.MustCompile("`(.*?)`")
	mdLink       = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	blankLines   = regexp.MustCompile(`\n\s*\n`)
)

// SynthesisContext is one labelled block of supporting text.
type SynthesisContext struct {
	Label   string
	Content string
}

// ResponseSynthesizer turns selected context into a bounded plain-text answer.
type ResponseSynthesizer struct {
	completer    ports.ChatCompleter
	restrictions ports.RestrictionRepository
	model        string
	timeout      time.Duration
}

func NewResponseSynthesizer(
	completer ports.ChatCompleter,
	restrictions ports.RestrictionRepository,
	model string,
	timeout time.Duration,
) *ResponseSynthesizer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &ResponseSynthesizer{
		completer:    completer,
		restrictions: restrictions,
		model:        model,
		timeout:      timeout,
	}
}

func (s *ResponseSynthesizer) Synthesize(ctx context.Context, query, entityHint string, contexts []SynthesisContext) (string, error) {
	if s == nil || s.completer == nil {
		return "", domain.WrapError(domain.ErrNotConfigured, "synthesize", fmt.Errorf("chat completer missing"))
	}

	out, err := s.completer.Complete(ctx, ports.CompletionRequest{
		Model: s.model,
		Messages: []ports.ChatMessage{
			{Role: "system", Content: synthesisSystemPrompt + s.restrictionsBlock(ctx)},
			{Role: "user", Content: synthesisUserPrompt(query, entityHint, contexts)},
		},
		Temperature: synthesisTemperature,
		MaxTokens:   synthesisMaxTokens,
		Timeout:     s.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return CleanAnswer(out), nil
}

// restrictionsBlock renders admin chat restrictions. Lookup failures are logged
// and the prompt goes out without them.
func (s *ResponseSynthesizer) restrictionsBlock(ctx context.Context) string {
	if s.restrictions == nil {
		return ""
	}
	items, err := s.restrictions.ListRestrictions(ctx)
	if err != nil {
		slog.Warn("chat_restrictions_unavailable", "error", err)
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if text := strings.TrimSpace(item.RestrictionText); text != "" {
			lines = append(lines, "- "+text)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\nIMPORTANT RESTRICTIONS TO FOLLOW:\n" + strings.Join(lines, "\n") +
		"\n\nYou MUST follow these restrictions while answering."
}

func synthesisUserPrompt(query, entityHint string, contexts []SynthesisContext) string {
	topic := strings.TrimSpace(entityHint)
	if topic == "" {
		topic = "the peptide in question"
	}

	blocks := make([]string, 0, len(contexts))
	for i, c := range contexts {
		blocks = append(blocks, fmt.Sprintf("Source %d (%s):\n%s", i+1, c.Label, c.Content))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following information about %s, ", topic)
	fmt.Fprintf(&b, "please provide a focused response specifically addressing: %s\n\n", query)
	b.WriteString("Information sources:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nIf the question cannot be answered with the available information, say so clearly. ")
	b.WriteString("Remember: plain text only, no markdown, under 1000 characters, normal paragraphs.")
	return b.String()
}

// CleanAnswer strips residual markdown and caps the text at 1000 characters,
// cutting at a word boundary past the 90% mark when one exists.
func CleanAnswer(raw string) string {
	cleaned := mdHeader.ReplaceAllString(raw, "")
	cleaned = mdBold.ReplaceAllString(cleaned, "$1")
	cleaned = mdItalic.ReplaceAllString(cleaned, "$1")
	cleaned = mdCodeFence.ReplaceAllString(cleaned, "")
	cleaned = mdInlineCode.ReplaceAllString(cleaned, "$1")
	cleaned = mdLink.ReplaceAllString(cleaned, "$1")
	cleaned = blankLines.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)
	return truncateAnswer(cleaned)
}

func truncateAnswer(text string) string {
	runes := []rune(text)
	if len(runes) <= answerMaxChars {
		return text
	}
	head := runes[:answerMaxChars-3]
	lastSpace := -1
	for i := len(head) - 1; i >= 0; i-- {
		if unicode.IsSpace(head[i]) {
			lastSpace = i
			break
		}
	}
	if lastSpace > answerWordBreakFrom {
		return strings.TrimRightFunc(string(head[:lastSpace]), unicode.IsSpace) + "..."
	}
	return string(head) + "..."
}
