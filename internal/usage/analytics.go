package usage

import (
	"context"
	"fmt"
	"sort"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

const dayLayout = "2006-01-02"

// LogsForPrompt loads every usage event recorded against promptID.
func LogsForPrompt(ctx context.Context, s store.Store, promptID string) ([]models.UsageLog, error) {
	recs, err := s.QueryEqual(ctx, store.UsageLogs, "promptId", promptID)
	if err != nil {
		return nil, fmt.Errorf("query usage logs: %w", err)
	}
	return store.Decode[models.UsageLog](recs)
}

// Aggregate summarizes logs. Events without a team are left out of
// UsageByTeam; the trend is bucketed by UTC calendar day, oldest first.
func Aggregate(logs []models.UsageLog) models.UsageAnalytics {
	a := models.UsageAnalytics{
		TotalUsage:  len(logs),
		UsageByTeam: map[string]int{},
		UsageByUser: map[string]int{},
		UsageTrend:  []models.DailyUsage{},
	}
	byDay := map[string]int{}
	for _, l := range logs {
		if l.TeamID != "" {
			a.UsageByTeam[l.TeamID]++
		}
		if l.UserID != "" {
			a.UsageByUser[l.UserID]++
		}
		byDay[l.Timestamp.UTC().Format(dayLayout)]++
	}
	for day, n := range byDay {
		a.UsageTrend = append(a.UsageTrend, models.DailyUsage{Date: day, Count: n})
	}
	sort.Slice(a.UsageTrend, func(i, j int) bool { return a.UsageTrend[i].Date < a.UsageTrend[j].Date })
	return a
}

// PromptAnalytics loads and aggregates the usage of one prompt.
func PromptAnalytics(ctx context.Context, s store.Store, promptID string) (models.UsageAnalytics, error) {
	logs, err := LogsForPrompt(ctx, s, promptID)
	if err != nil {
		return models.UsageAnalytics{}, err
	}
	return Aggregate(logs), nil
}
