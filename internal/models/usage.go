package models

import "time"

type UsageAction string

const (
	ActionViewed    UsageAction = "viewed"
	ActionCopied    UsageAction = "copied"
	ActionUsed      UsageAction = "used"
	ActionOptimized UsageAction = "optimized"
)

func (a UsageAction) Valid() bool {
	switch a {
	case ActionViewed, ActionCopied, ActionUsed, ActionOptimized:
		return true
	}
	return false
}

// UsageLog is append-only.
type UsageLog struct {
	ID        string      `json:"id"`
	PromptID  string      `json:"promptId"`
	UserID    string      `json:"userId"`
	TeamID    string      `json:"teamId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Action    UsageAction `json:"action"`
}

type DailyUsage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type UsageAnalytics struct {
	TotalUsage  int            `json:"totalUsage"`
	UsageByTeam map[string]int `json:"usageByTeam"`
	UsageByUser map[string]int `json:"usageByUser"`
	UsageTrend  []DailyUsage   `json:"usageTrend"`
}
