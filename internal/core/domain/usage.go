package domain

import "time"

type UsagePeriod string

const (
	PeriodDaily   UsagePeriod = "daily"
	PeriodWeekly  UsagePeriod = "weekly"
	PeriodMonthly UsagePeriod = "monthly"
)

func ParseUsagePeriod(raw string) (UsagePeriod, bool) {
	switch UsagePeriod(raw) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return UsagePeriod(raw), true
	case "":
		return PeriodDaily, true
	default:
		return "", false
	}
}

// APIUsage is one recorded external call.
type APIUsage struct {
	Provider     string    `json:"provider"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model,omitempty"`
	StatusCode   int       `json:"status_code"`
	Success      bool      `json:"success"`
	LatencyMS    float64   `json:"latency_ms"`
	RequestBytes int       `json:"request_bytes"`
	TokensIn     int       `json:"tokens_in"`
	TokensOut    int       `json:"tokens_out"`
	CostUSD      float64   `json:"cost_usd"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type UsageBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Provider    string    `json:"provider"`
	Calls       int       `json:"calls"`
	Errors      int       `json:"errors"`
	CostUSD     float64   `json:"cost_usd"`
}

type DashboardSummary struct {
	ChatRestrictions []ChatRestriction `json:"chat_restrictions"`
	AllowedURLs      []AllowedURL      `json:"allowed_urls"`
	DailyUsage       []UsageBucket     `json:"daily_usage"`
	WeeklyUsage      []UsageBucket     `json:"weekly_usage"`
	MonthlyUsage     []UsageBucket     `json:"monthly_usage"`
	Errors           map[string]string `json:"errors,omitempty"`
	DurationMS       float64           `json:"duration_ms"`
}

type CacheStats struct {
	Connected bool     `json:"connected"`
	KeyCount  int      `json:"cache_keys_count"`
	Sample    []string `json:"cache_keys_sample"`
	TTL       int      `json:"cache_ttl_seconds"`
}
