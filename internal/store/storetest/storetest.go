// Package storetest seeds records into a store for tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

// Epoch is the fixed clock used by fixtures.
var Epoch = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func Prompt(t *testing.T, s store.Store, p models.Prompt) models.Prompt {
	t.Helper()
	if p.Title == "" {
		p.Title = "Prompt " + p.ID
	}
	if p.Content == "" {
		p.Content = "You are a helpful assistant."
	}
	if p.Sharing == "" {
		p.Sharing = models.SharingPrivate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = Epoch
		p.LastModified = Epoch
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	require.NoError(t, s.Set(context.Background(), store.PromptPath(p.ID), p))
	for _, teamID := range p.AssignedTeams {
		require.NoError(t, s.Set(context.Background(), store.AssignmentPath(teamID, p.ID), models.TeamAssignment{
			TeamID: teamID, PromptID: p.ID, AssignedBy: p.CreatedBy, AssignedAt: Epoch,
		}))
	}
	return p
}

// Team seeds a team whose members are the given user ids; the first is admin.
func Team(t *testing.T, s store.Store, id, name string, memberIDs ...string) models.Team {
	t.Helper()
	team := models.Team{ID: id, Name: name, CreatedAt: Epoch}
	for i, uid := range memberIDs {
		role := models.MemberMember
		if i == 0 {
			role = models.MemberAdmin
			team.CreatedBy = uid
		}
		team.Members = append(team.Members, models.TeamMember{
			ID: uid, Email: uid + "@example.com", Role: role, JoinedAt: Epoch,
		})
	}
	require.NoError(t, s.Set(context.Background(), store.TeamPath(id), team))
	return team
}

func User(t *testing.T, s store.Store, u models.User) models.User {
	t.Helper()
	if u.Email == "" {
		u.Email = u.ID + "@example.com"
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	require.NoError(t, s.Set(context.Background(), store.UserPath(u.ID), u))
	return u
}

// Usage appends n usage events by userID on promptID, one hour apart.
func Usage(t *testing.T, s store.Store, promptID, userID, teamID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		l := models.UsageLog{
			ID:        fmt.Sprintf("%s-%s-%d", promptID, userID, i),
			PromptID:  promptID,
			UserID:    userID,
			TeamID:    teamID,
			Timestamp: Epoch.Add(time.Duration(i) * time.Hour),
			Action:    models.ActionUsed,
		}
		require.NoError(t, s.Set(context.Background(), store.UsageLogPath(l.ID), l))
	}
}

// Slow holds every prompt read and every mutation for Delay between reading
// the record and handing it back, widening the window in which concurrent
// writers can interleave.
type Slow struct {
	store.Store
	Delay time.Duration
}

func (s Slow) Get(ctx context.Context, p string) (json.RawMessage, error) {
	raw, err := s.Store.Get(ctx, p)
	if store.Parent(p) == store.Prompts {
		time.Sleep(s.Delay)
	}
	return raw, err
}

func (s Slow) Mutate(ctx context.Context, p string, fn store.MutateFunc) error {
	return s.Store.Mutate(ctx, p, func(current json.RawMessage) (map[string]any, error) {
		time.Sleep(s.Delay)
		return fn(current)
	})
}
