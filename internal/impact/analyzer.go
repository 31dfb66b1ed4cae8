// Package impact computes how disruptive deleting prompts would be. The
// analysis is read-only and must succeed before a delete is offered.
package impact

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/usage"
)

// Weights drive the impact score:
//
//	score = teams*Team + users*User + uses*Usage
//
// HighImpact marks a prompt as high impact in bulk analysis; HighUsage and
// RecentWindow only add warnings.
type Weights struct {
	Team         int
	User         int
	Usage        int
	HighImpact   int
	HighUsage    int
	RecentWindow time.Duration
}

func DefaultWeights() Weights {
	return Weights{
		Team:         10,
		User:         5,
		Usage:        1,
		HighImpact:   100,
		HighUsage:    50,
		RecentWindow: 7 * 24 * time.Hour,
	}
}

func (w Weights) Score(teams, users, uses int) int {
	return teams*w.Team + users*w.User + uses*w.Usage
}

type Analyzer struct {
	store   store.Store
	weights Weights
	now     func() time.Time
}

func NewAnalyzer(s store.Store, w Weights) *Analyzer {
	return &Analyzer{store: s, weights: w, now: time.Now}
}

// AnalyzeDeletionImpact returns apperr.ErrNotFound when the prompt is absent.
func (a *Analyzer) AnalyzeDeletionImpact(ctx context.Context, promptID string) (*models.DeletionImpact, error) {
	p, err := store.GetJSON[models.Prompt](ctx, a.store, store.PromptPath(promptID))
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", promptID, err)
	}

	teams, err := a.affectedTeams(ctx, p)
	if err != nil {
		return nil, err
	}

	logs, err := usage.LogsForPrompt(ctx, a.store, promptID)
	if err != nil {
		return nil, err
	}
	users, err := a.affectedUsers(ctx, logs)
	if err != nil {
		return nil, err
	}

	analytics := usage.Aggregate(logs)
	// usageCount survives log retention; logs may be missing for old usage.
	uses := max(analytics.TotalUsage, p.UsageCount)

	return &models.DeletionImpact{
		PromptID:         promptID,
		Prompt:           *p,
		AffectedTeams:    teams,
		AffectedUsers:    users,
		UsageAnalytics:   analytics,
		TotalImpactScore: a.weights.Score(len(teams), len(users), uses),
		CanDelete:        true,
		Warnings:         a.warnings(p, teams, users, uses),
	}, nil
}

func (a *Analyzer) affectedTeams(ctx context.Context, p *models.Prompt) ([]models.AffectedTeam, error) {
	out := []models.AffectedTeam{}
	seen := map[string]bool{}
	for _, teamID := range p.AssignedTeams {
		if teamID == "" || seen[teamID] {
			continue
		}
		seen[teamID] = true

		at := models.AffectedTeam{TeamID: teamID, TeamName: teamID}
		team, err := store.GetJSON[models.Team](ctx, a.store, store.TeamPath(teamID))
		switch {
		case err == nil:
			at.TeamName = team.Name
			at.MemberCount = len(team.Members)
		case !apperr.IsNotFound(err):
			return nil, fmt.Errorf("load team %s: %w", teamID, err)
		}

		edge, err := store.GetJSON[models.TeamAssignment](ctx, a.store, store.AssignmentPath(teamID, p.ID))
		switch {
		case err == nil:
			at.Assignment = edge
		case !apperr.IsNotFound(err):
			return nil, fmt.Errorf("load assignment %s/%s: %w", teamID, p.ID, err)
		}
		out = append(out, at)
	}
	return out, nil
}

func (a *Analyzer) affectedUsers(ctx context.Context, logs []models.UsageLog) ([]models.AffectedUser, error) {
	byUser := map[string]*models.AffectedUser{}
	for _, l := range logs {
		if l.UserID == "" {
			continue
		}
		u, ok := byUser[l.UserID]
		if !ok {
			u = &models.AffectedUser{UserID: l.UserID}
			byUser[l.UserID] = u
		}
		u.UsageCount++
		if u.LastUsed == nil || l.Timestamp.After(*u.LastUsed) {
			ts := l.Timestamp
			u.LastUsed = &ts
		}
	}

	out := make([]models.AffectedUser, 0, len(byUser))
	for id, u := range byUser {
		user, err := store.GetJSON[models.User](ctx, a.store, store.UserPath(id))
		switch {
		case err == nil:
			u.UserEmail = user.Email
		case !apperr.IsNotFound(err):
			return nil, fmt.Errorf("load user %s: %w", id, err)
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (a *Analyzer) warnings(p *models.Prompt, teams []models.AffectedTeam, users []models.AffectedUser, uses int) []string {
	w := []string{}
	if len(teams) > 0 {
		w = append(w, fmt.Sprintf("This prompt is assigned to %d team(s)", len(teams)))
		members := 0
		for _, t := range teams {
			members += t.MemberCount
		}
		if members > 0 {
			w = append(w, fmt.Sprintf("%d team member(s) will lose access to this prompt", members))
		}
	}
	if len(users) > 0 {
		w = append(w, fmt.Sprintf("%d user(s) have used this prompt", len(users)))
	}
	if a.weights.HighUsage > 0 && uses >= a.weights.HighUsage {
		w = append(w, fmt.Sprintf("This prompt has high usage (%d uses)", uses))
	}
	if p.LastUsed != nil && a.weights.RecentWindow > 0 && a.now().Sub(*p.LastUsed) < a.weights.RecentWindow {
		w = append(w, fmt.Sprintf("This prompt was used within the last %d day(s)", int(a.weights.RecentWindow.Hours()/24)))
	}
	return w
}

// AnalyzeBulkDeletionImpact analyzes each prompt and aggregates the results.
// Any single failure fails the whole analysis.
func (a *Analyzer) AnalyzeBulkDeletionImpact(ctx context.Context, promptIDs []string) (*models.BulkDeletionImpact, error) {
	if len(promptIDs) == 0 {
		return nil, apperr.Invalid("promptIds", "at least one prompt id is required")
	}

	impacts := make([]models.DeletionImpact, len(promptIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range promptIDs {
		g.Go(func() error {
			imp, err := a.AnalyzeDeletionImpact(gctx, id)
			if err != nil {
				return err
			}
			impacts[i] = *imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &models.BulkDeletionImpact{
		Impacts:           impacts,
		HighImpactPrompts: []string{},
		CanDeleteAll:      true,
		Warnings:          []string{},
	}
	teams := map[string]bool{}
	users := map[string]bool{}
	seenWarning := map[string]bool{}
	for _, imp := range impacts {
		out.TotalImpactScore += imp.TotalImpactScore
		for _, t := range imp.AffectedTeams {
			teams[t.TeamID] = true
		}
		for _, u := range imp.AffectedUsers {
			users[u.UserID] = true
		}
		if imp.TotalImpactScore >= a.weights.HighImpact {
			out.HighImpactPrompts = append(out.HighImpactPrompts, imp.PromptID)
		}
		out.CanDeleteAll = out.CanDeleteAll && imp.CanDelete
		for _, w := range imp.Warnings {
			if !seenWarning[w] {
				seenWarning[w] = true
				out.Warnings = append(out.Warnings, w)
			}
		}
	}
	out.TotalAffectedTeams = len(teams)
	out.TotalAffectedUsers = len(users)
	return out, nil
}
