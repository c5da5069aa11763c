package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/peptide-answer-service/internal/core/domain"
	"github.com/kirillkom/peptide-answer-service/internal/core/ports"
)

const (
	dailyBuckets   = 7
	weeklyBuckets  = 4
	monthlyBuckets = 12
)

// DashboardUseCase aggregates admin data. Branches run concurrently and a
// failed branch leaves an empty list plus an entry in Errors.
type DashboardUseCase struct {
	allowList    ports.AllowListRepository
	restrictions ports.RestrictionRepository
	usage        ports.UsageRepository
	now          func() time.Time
}

func NewDashboardUseCase(
	allowList ports.AllowListRepository,
	restrictions ports.RestrictionRepository,
	usage ports.UsageRepository,
) *DashboardUseCase {
	return &DashboardUseCase{
		allowList:    allowList,
		restrictions: restrictions,
		usage:        usage,
		now:          time.Now,
	}
}

func (uc *DashboardUseCase) Summary(ctx context.Context) domain.DashboardSummary {
	started := uc.now()
	summary := domain.DashboardSummary{
		ChatRestrictions: []domain.ChatRestriction{},
		AllowedURLs:      []domain.AllowedURL{},
		DailyUsage:       []domain.UsageBucket{},
		WeeklyUsage:      []domain.UsageBucket{},
		MonthlyUsage:     []domain.UsageBucket{},
		Errors:           map[string]string{},
	}

	var mu sync.Mutex
	addError := func(branch string, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Errors[branch] = err.Error()
		slog.Warn("dashboard_branch_failed", "branch", branch, "error", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if uc.restrictions == nil {
			addError("chat_restrictions", domain.ErrNotConfigured)
			return nil
		}
		items, err := uc.restrictions.ListRestrictions(egCtx)
		if err != nil {
			addError("chat_restrictions", err)
			return nil
		}
		if items != nil {
			summary.ChatRestrictions = items
		}
		return nil
	})

	eg.Go(func() error {
		if uc.allowList == nil {
			addError("allowed_urls", domain.ErrNotConfigured)
			return nil
		}
		items, err := uc.allowList.ListAllowedURLs(egCtx)
		if err != nil {
			addError("allowed_urls", err)
			return nil
		}
		if items != nil {
			summary.AllowedURLs = items
		}
		return nil
	})

	usageBranch := func(branch string, period domain.UsagePeriod, buckets int, dst *[]domain.UsageBucket) {
		eg.Go(func() error {
			if uc.usage == nil {
				addError(branch, domain.ErrNotConfigured)
				return nil
			}
			rows, err := uc.usage.SummarizeUsage(egCtx, period, buckets)
			if err != nil {
				addError(branch, err)
				return nil
			}
			if rows != nil {
				*dst = rows
			}
			return nil
		})
	}
	usageBranch("daily_usage", domain.PeriodDaily, dailyBuckets, &summary.DailyUsage)
	usageBranch("weekly_usage", domain.PeriodWeekly, weeklyBuckets, &summary.WeeklyUsage)
	usageBranch("monthly_usage", domain.PeriodMonthly, monthlyBuckets, &summary.MonthlyUsage)

	_ = eg.Wait()

	if len(summary.Errors) == 0 {
		summary.Errors = nil
	}
	summary.DurationMS = float64(uc.now().Sub(started).Microseconds()) / 1000
	return summary
}

func (uc *DashboardUseCase) Usage(ctx context.Context, period domain.UsagePeriod) ([]domain.UsageBucket, error) {
	if uc.usage == nil {
		return nil, domain.WrapError(domain.ErrNotConfigured, "api usage", fmt.Errorf("usage repository missing"))
	}
	buckets := dailyBuckets
	switch period {
	case domain.PeriodWeekly:
		buckets = weeklyBuckets
	case domain.PeriodMonthly:
		buckets = monthlyBuckets
	case domain.PeriodDaily:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "api usage", fmt.Errorf("unknown period %q", period))
	}
	rows, err := uc.usage.SummarizeUsage(ctx, period, buckets)
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}
	if rows == nil {
		rows = []domain.UsageBucket{}
	}
	return rows, nil
}
