package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

func TestAggregate(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	logs := []models.UsageLog{
		{PromptID: "p1", UserID: "alice", TeamID: "t1", Timestamp: day2},
		{PromptID: "p1", UserID: "alice", TeamID: "t1", Timestamp: day1},
		{PromptID: "p1", UserID: "bob", Timestamp: day1},
	}

	a := Aggregate(logs)

	assert.Equal(t, 3, a.TotalUsage)
	assert.Equal(t, map[string]int{"t1": 2}, a.UsageByTeam)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, a.UsageByUser)
	assert.Equal(t, []models.DailyUsage{{Date: "2026-03-01", Count: 2}, {Date: "2026-03-02", Count: 1}}, a.UsageTrend)
}

func TestAggregateEmpty(t *testing.T) {
	a := Aggregate(nil)
	assert.Zero(t, a.TotalUsage)
	assert.NotNil(t, a.UsageTrend)
	assert.Empty(t, a.UsageByUser)
}
