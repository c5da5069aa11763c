package domain

import "time"

// AnswerSource labels the tier that produced an answer.
type AnswerSource string

const (
	SourceCache       AnswerSource = "cache"
	SourceVector      AnswerSource = "vector"
	SourceVectorJudge AnswerSource = "vector+judge"
	SourceManaged     AnswerSource = "managed"
	SourceFallback    AnswerSource = "fallback"
	SourceGeneral     AnswerSource = "general"
	SourceNone        AnswerSource = "none"
)

// TerminalState is where one cascade run stopped.
type TerminalState string

const (
	StateAnsweredFromCache        TerminalState = "answered_from_cache"
	StateAnsweredFromVector       TerminalState = "answered_from_vector"
	StateAnsweredFromVectorJudged TerminalState = "answered_from_vector_judged"
	StateAnsweredFromManaged      TerminalState = "answered_from_managed"
	StateAnsweredFromFallback     TerminalState = "answered_from_fallback"
	StateNoInformationFound       TerminalState = "no_information_found"
	// StateAnsweredGeneral is set by the intent router for small talk.
	StateAnsweredGeneral TerminalState = "answered_general"
)

// Answered reports whether the state carries a synthesized answer.
func (s TerminalState) Answered() bool {
	return s != StateNoInformationFound && s != ""
}

// NoInfoReason distinguishes the two empty fallback outcomes.
type NoInfoReason string

const (
	NoInfoNoSources       NoInfoReason = "no_sources"
	NoInfoBelowConfidence NoInfoReason = "below_confidence"
	NoInfoFallbackFailed  NoInfoReason = "fallback_failed"
)

const (
	NoSourcesMessage       = "No information found from allowed sources. Please add relevant domains to the allowed URLs list."
	BelowConfidenceMessage = "No content found that matches the specified confidence score threshold. Please try adjusting the CONFIDENCE_SCORE setting or refine your search query."
)

// SearchHit is one managed-search result.
type SearchHit struct {
	URL           string  `json:"url"`
	Title         string  `json:"title,omitempty"`
	RawContent    string  `json:"raw_content"`
	ProviderScore float64 `json:"provider_score"`
}

// OrganicResult is one broad-search result.
type OrganicResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Rank    int    `json:"rank"`
}

// ContentChunk is a slice of scraped text; scores are set after re-ranking.
type ContentChunk struct {
	Content              string  `json:"content"`
	SourceURL            string  `json:"source_url"`
	SourceTitle          string  `json:"source_title,omitempty"`
	ChunkIndex           int     `json:"chunk_index"`
	RelevanceScore       float64 `json:"relevance_score"`
	ConfidencePercentage float64 `json:"confidence_percentage"`
}

type SourceSite struct {
	URL             string  `json:"url"`
	Title           string  `json:"title,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
	ContentLength   int     `json:"content_length"`
}

type ContextRef struct {
	URL   string  `json:"url,omitempty"`
	Name  string  `json:"name,omitempty"`
	Score float64 `json:"score"`
}

type Answer struct {
	Text            string        `json:"text"`
	Source          AnswerSource  `json:"source"`
	State           TerminalState `json:"state"`
	ConfidenceScore float64       `json:"confidence_score"`
	ContextRefs     []ContextRef  `json:"context_refs"`
	EntityName      string        `json:"entity_name,omitempty"`
	NoInfoReason    NoInfoReason  `json:"no_info_reason,omitempty"`
	Cached          bool          `json:"cached"`
	SessionID       string        `json:"session_id,omitempty"`
	SynthesizedAt   time.Time     `json:"synthesized_at"`
}
