package metrics

import (
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
)

func (m *HTTPServerMetrics) ObserveTier(tier string, status domain.TierStatus, elapsed time.Duration) {
	m.tierResultsTotal.WithLabelValues(m.service, tier, string(status)).Inc()
	m.tierDuration.WithLabelValues(m.service, tier).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) ObserveOutcome(state domain.TerminalState, source domain.AnswerSource, elapsed time.Duration) {
	m.answersTotal.WithLabelValues(m.service, string(state), string(source)).Inc()
	m.answerDuration.WithLabelValues(m.service, string(source)).Observe(elapsed.Seconds())
}
