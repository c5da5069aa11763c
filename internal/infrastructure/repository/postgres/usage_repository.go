package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

type UsageRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db, now: time.Now}
}

func (r *UsageRepository) RecordUsage(ctx context.Context, usage domain.APIUsage) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO api_usage (
	provider, operation, model, status_code, success, latency_ms, request_bytes, tokens_in, tokens_out, cost_usd, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		usage.Provider, usage.Operation, nullableString(usage.Model), usage.StatusCode, usage.Success, usage.LatencyMS,
		usage.RequestBytes, usage.TokensIn, usage.TokensOut, usage.CostUSD, nullableString(usage.ErrorMessage), usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api usage: %w", err)
	}
	return nil
}

// SummarizeUsage groups calls per provider into the last `buckets` day, week
// or month buckets, newest first.
func (r *UsageRepository) SummarizeUsage(ctx context.Context, period domain.UsagePeriod, buckets int) ([]domain.UsageBucket, error) {
	unit, err := truncUnit(period)
	if err != nil {
		return nil, err
	}
	if buckets <= 0 {
		buckets = 1
	}
	since := bucketStart(period, r.now().UTC(), buckets)

	rows, err := r.db.QueryContext(ctx, `
SELECT date_trunc($1, created_at AT TIME ZONE 'UTC') AS bucket_start,
	provider,
	COUNT(*) AS calls,
	COUNT(*) FILTER (WHERE NOT success) AS errors,
	COALESCE(SUM(cost_usd), 0) AS cost_usd
FROM api_usage
WHERE created_at >= $2
GROUP BY bucket_start, provider
ORDER BY bucket_start DESC, provider
`, unit, since)
	if err != nil {
		return nil, fmt.Errorf("summarize api usage: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UsageBucket, 0)
	for rows.Next() {
		var b domain.UsageBucket
		if err := rows.Scan(&b.BucketStart, &b.Provider, &b.Calls, &b.Errors, &b.CostUSD); err != nil {
			return nil, fmt.Errorf("scan usage bucket: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage buckets: %w", err)
	}
	return out, nil
}

func truncUnit(period domain.UsagePeriod) (string, error) {
	switch period {
	case domain.PeriodDaily:
		return "day", nil
	case domain.PeriodWeekly:
		return "week", nil
	case domain.PeriodMonthly:
		return "month", nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "summarize usage", fmt.Errorf("unknown period %q", period))
	}
}

// bucketStart returns the start of the oldest bucket in the window. Weeks
// start on Monday like Postgres date_trunc('week').
func bucketStart(period domain.UsagePeriod, now time.Time, buckets int) time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case domain.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset-7*(buckets-1))
	case domain.PeriodMonthly:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first.AddDate(0, -(buckets - 1), 0)
	default:
		return day.AddDate(0, 0, -(buckets - 1))
	}
}

var _ ports.UsageRepository = (*UsageRepository)(nil)
