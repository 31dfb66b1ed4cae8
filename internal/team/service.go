// Package team manages teams and their membership. A user belongs to at most
// one team at a time; their user record carries the team id.
package team

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Create makes a team with the actor as its first admin.
func (s *Service) Create(ctx context.Context, actor *models.User, name string) (*models.Team, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("creating a team requires a signed-in user")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	if actor.TeamID != "" && !permission.IsSuperUser(actor) {
		return nil, apperr.Invalid("teamId", fmt.Sprintf("user already belongs to team %s", actor.TeamID))
	}

	now := s.now().UTC()
	t := models.Team{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: actor.ID,
		CreatedAt: now,
		Members: []models.TeamMember{
			{ID: actor.ID, Email: actor.Email, Role: models.MemberAdmin, JoinedAt: now},
		},
	}
	writes := map[string]any{store.TeamPath(t.ID): t}
	if actor.TeamID == "" {
		u := *actor
		u.TeamID = t.ID
		writes[store.UserPath(u.ID)] = u
	}
	if err := s.store.Update(ctx, writes); err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	slog.Info("team created", "team_id", t.ID, "created_by", actor.ID)
	return &t, nil
}

// Get returns the team to its members and super users.
func (s *Service) Get(ctx context.Context, actor *models.User, id string) (*models.Team, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || (!permission.IsSuperUser(actor) && t.Member(actor.ID) == nil) {
		return nil, apperr.Unauthorized("cannot view team %s", id)
	}
	return t, nil
}

// AddMember adds userID to the team, or changes their role if already a
// member.
func (s *Service) AddMember(ctx context.Context, actor *models.User, teamID, userID string, role models.MemberRole) (*models.Team, error) {
	if role == "" {
		role = models.MemberMember
	}
	if role != models.MemberAdmin && role != models.MemberMember {
		return nil, apperr.Invalid("role", fmt.Sprintf("unknown member role %q", role))
	}
	t, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !permission.CanManageTeam(actor, t) {
		return nil, apperr.Unauthorized("cannot manage team %s", teamID)
	}
	u, err := store.GetJSON[models.User](ctx, s.store, store.UserPath(userID))
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if u.TeamID != "" && u.TeamID != teamID {
		return nil, apperr.Invalid("userId", fmt.Sprintf("user already belongs to team %s", u.TeamID))
	}

	if m := t.Member(userID); m != nil {
		m.Role = role
	} else {
		t.Members = append(t.Members, models.TeamMember{
			ID: u.ID, Email: u.Email, Role: role, JoinedAt: s.now().UTC(),
		})
	}
	u.TeamID = teamID
	if err := s.store.Update(ctx, map[string]any{
		store.TeamPath(teamID): t,
		store.UserPath(userID): u,
	}); err != nil {
		return nil, fmt.Errorf("add member %s to %s: %w", userID, teamID, err)
	}
	return t, nil
}

// RemoveMember drops userID from the team. The last admin cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *models.User, teamID, userID string) (*models.Team, error) {
	t, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	isSelf := actor != nil && actor.ID == userID
	if !permission.CanManageTeam(actor, t) && !isSelf {
		return nil, apperr.Unauthorized("cannot manage team %s", teamID)
	}
	m := t.Member(userID)
	if m == nil {
		return nil, apperr.NotFound("user %s is not a member of team %s", userID, teamID)
	}
	if m.Role == models.MemberAdmin && adminCount(t) == 1 {
		return nil, apperr.Invalid("userId", "cannot remove the last admin of a team")
	}

	kept := t.Members[:0]
	for _, member := range t.Members {
		if member.ID != userID {
			kept = append(kept, member)
		}
	}
	t.Members = kept

	writes := map[string]any{store.TeamPath(teamID): t}
	u, err := store.GetJSON[models.User](ctx, s.store, store.UserPath(userID))
	switch {
	case err == nil && u.TeamID == teamID:
		u.TeamID = ""
		writes[store.UserPath(userID)] = u
	case err != nil && !apperr.IsNotFound(err):
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if err := s.store.Update(ctx, writes); err != nil {
		return nil, fmt.Errorf("remove member %s from %s: %w", userID, teamID, err)
	}
	return t, nil
}

// ListForUser returns the teams userID is a member of.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Team, error) {
	recs, err := s.store.List(ctx, store.Teams)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	all, err := store.Decode[models.Team](recs)
	if err != nil {
		return nil, err
	}
	out := []models.Team{}
	for i := range all {
		if all[i].Member(userID) != nil {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Team, error) {
	t, err := store.GetJSON[models.Team](ctx, s.store, store.TeamPath(id))
	if err != nil {
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}
	return t, nil
}

func adminCount(t *models.Team) int {
	n := 0
	for _, m := range t.Members {
		if m.Role == models.MemberAdmin {
			n++
		}
	}
	return n
}
