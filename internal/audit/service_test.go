package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/identity"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

func TestLogFillsUserAndIPFromContext(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s)
	ctx := identity.WithUser(context.Background(), &models.User{ID: "alice"})
	ctx = WithClientIP(ctx, "10.0.0.7")

	require.NoError(t, svc.Log(ctx, LogEntry{Action: "prompt.deleted", ResourceID: "p1", Details: map[string]any{"title": "x"}}))

	logs, err := svc.GetAuditLogs(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].UserID)
	assert.Equal(t, "10.0.0.7", logs[0].IPAddress)
	assert.JSONEq(t, `{"title":"x"}`, string(logs[0].Details))
}

func TestLogDropsMalformedIP(t *testing.T) {
	svc := NewService(store.NewMemory())
	require.NoError(t, svc.Log(context.Background(), LogEntry{Action: "a", IPAddress: "not-an-ip"}))
	logs, err := svc.GetAuditLogs(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].IPAddress)
}

func TestGetAuditLogsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{activity.PromptDeleted, activity.PromptRestored, activity.PromptDeleted, activity.BulkCompleted} {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		require.NoError(t, svc.Record(ctx, activity.Event{Action: action, ActorID: "alice", ResourceID: string(rune('a' + i))}))
	}

	deleted, err := svc.GetAuditLogs(ctx, Query{Action: activity.PromptDeleted})
	require.NoError(t, err)
	require.Len(t, deleted, 2)
	assert.Equal(t, "c", deleted[0].ResourceID)
	assert.Equal(t, "a", deleted[1].ResourceID)

	start := base.Add(90 * time.Minute)
	recent, err := svc.GetAuditLogs(ctx, Query{StartDate: &start})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	page, err := svc.GetAuditLogs(ctx, Query{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "c", page[0].ResourceID)

	none, err := svc.GetAuditLogs(ctx, Query{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)

	other, err := svc.GetAuditLogs(ctx, Query{UserID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, other)
}
