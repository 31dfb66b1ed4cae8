// Package prompt creates, reads and edits prompts and lists the prompts a user
// can see.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/subscription"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

type CreateRequest struct {
	Title   string         `json:"title"`
	Content string         `json:"content"`
	Tags    []string       `json:"tags"`
	Sharing models.Sharing `json:"sharing"`
	TeamID  string         `json:"teamId"`
}

func (s *Service) Create(ctx context.Context, actor *models.User, req CreateRequest) (*models.Prompt, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("creating a prompt requires a signed-in user")
	}
	tags, err := NormalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}
	if req.Sharing == "" {
		req.Sharing = models.SharingPrivate
	}

	now := s.now().UTC()
	p := models.Prompt{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(req.Title),
		Content:      req.Content,
		Tags:         tags,
		Sharing:      req.Sharing,
		CreatedBy:    actor.ID,
		TeamID:       req.TeamID,
		CreatedAt:    now,
		LastModified: now,
		ModifiedBy:   actor.ID,
	}
	if err := s.applySharing(ctx, actor, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}

	writes := map[string]any{store.PromptPath(p.ID): p}
	for _, teamID := range p.AssignedTeams {
		writes[store.AssignmentPath(teamID, p.ID)] = models.TeamAssignment{
			TeamID: teamID, PromptID: p.ID, AssignedBy: actor.ID, AssignedAt: now,
		}
	}
	if err := s.store.Update(ctx, writes); err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	return &p, nil
}

// applySharing enforces the sharing scope and checks that a team prompt's
// team exists.
func (s *Service) applySharing(ctx context.Context, actor *models.User, p *models.Prompt) error {
	if err := shareScope(actor, p); err != nil {
		return err
	}
	if p.Sharing != models.SharingTeam {
		return nil
	}
	if _, err := s.store.Get(ctx, store.TeamPath(p.TeamID)); err != nil {
		return fmt.Errorf("load team %s: %w", p.TeamID, err)
	}
	return nil
}

// shareScope applies the sharing rules without touching the store: a team
// prompt names a team the author belongs to and is assigned to it; other
// scopes carry no team.
func shareScope(actor *models.User, p *models.Prompt) error {
	if !p.Sharing.Valid() {
		return apperr.Invalid("sharing", fmt.Sprintf("unknown sharing scope %q", p.Sharing))
	}
	if p.Sharing != models.SharingTeam {
		p.TeamID = ""
		return nil
	}
	if p.TeamID == "" {
		p.TeamID = actor.TeamID
	}
	if p.TeamID == "" {
		return apperr.Invalid("teamId", "is required when sharing is team")
	}
	if p.TeamID != actor.TeamID && !permission.IsSuperUser(actor) {
		return apperr.Unauthorized("user %s cannot share with team %s", actor.ID, p.TeamID)
	}
	if !p.HasTeam(p.TeamID) {
		p.AssignedTeams = append(p.AssignedTeams, p.TeamID)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, actor *models.User, id string) (*models.Prompt, error) {
	p, err := store.GetJSON[models.Prompt](ctx, s.store, store.PromptPath(id))
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", id, err)
	}
	if !permission.CanViewPrompt(actor, p) {
		return nil, apperr.Unauthorized("cannot view prompt %s", id)
	}
	return p, nil
}

// UpdateRequest carries the fields to change; nil fields are left alone.
type UpdateRequest struct {
	Title   *string         `json:"title"`
	Content *string         `json:"content"`
	Tags    []string        `json:"tags"`
	Sharing *models.Sharing `json:"sharing"`
	TeamID  *string         `json:"teamId"`
}

// Update applies req to the live prompt in one atomic store write. A team
// named by the request is checked against the prompt as it was read first.
func (s *Service) Update(ctx context.Context, actor *models.User, id string, req UpdateRequest) (*models.Prompt, error) {
	current, err := store.GetJSON[models.Prompt](ctx, s.store, store.PromptPath(id))
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", id, err)
	}
	if !permission.CanEditPrompt(actor, current) {
		return nil, apperr.Unauthorized("cannot edit prompt %s", id)
	}
	preview := *current
	preview.AssignedTeams = append([]string(nil), current.AssignedTeams...)
	if err := s.applyUpdate(actor, &preview, req); err != nil {
		return nil, err
	}
	if preview.Sharing == models.SharingTeam && preview.TeamID != current.TeamID {
		if _, err := s.store.Get(ctx, store.TeamPath(preview.TeamID)); err != nil {
			return nil, fmt.Errorf("load team %s: %w", preview.TeamID, err)
		}
	}

	p, err := store.MutateJSON(ctx, s.store, store.PromptPath(id), func(p *models.Prompt) (map[string]any, error) {
		if !permission.CanEditPrompt(actor, p) {
			return nil, apperr.Unauthorized("cannot edit prompt %s", id)
		}
		assignedBefore := append([]string(nil), p.AssignedTeams...)
		if err := s.applyUpdate(actor, p, req); err != nil {
			return nil, err
		}
		writes := map[string]any{}
		for _, teamID := range p.AssignedTeams {
			if !contains(assignedBefore, teamID) {
				writes[store.AssignmentPath(teamID, id)] = models.TeamAssignment{
					TeamID: teamID, PromptID: id, AssignedBy: actor.ID, AssignedAt: p.LastModified,
				}
			}
		}
		return writes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update prompt %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) applyUpdate(actor *models.User, p *models.Prompt, req UpdateRequest) error {
	if req.Title != nil {
		p.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		p.Content = *req.Content
	}
	if req.Tags != nil {
		tags, err := NormalizeTags(req.Tags)
		if err != nil {
			return err
		}
		p.Tags = tags
	}
	if req.Sharing != nil {
		p.Sharing = *req.Sharing
	}
	if req.TeamID != nil {
		p.TeamID = *req.TeamID
	}
	if req.Sharing != nil || req.TeamID != nil {
		if err := shareScope(actor, p); err != nil {
			return err
		}
	}
	p.LastModified = s.now().UTC()
	p.ModifiedBy = actor.ID
	return Validate(p)
}

// ListVisible returns the prompts the actor may view: their own, their team's
// and the global ones. Super users see everything.
func (s *Service) ListVisible(ctx context.Context, actor *models.User) ([]models.Prompt, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("listing prompts requires a signed-in user")
	}
	if permission.IsSuperUser(actor) {
		recs, err := s.store.List(ctx, store.Prompts)
		if err != nil {
			return nil, fmt.Errorf("list prompts: %w", err)
		}
		all, err := store.Decode[models.Prompt](recs)
		if err != nil {
			return nil, err
		}
		return subscription.MergeVisible(all), nil
	}

	var own, team, global []models.Prompt
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		own, err = s.queryPrompts(gctx, "createdBy", actor.ID)
		return err
	})
	if actor.TeamID != "" {
		g.Go(func() error {
			shared, err := s.queryPrompts(gctx, "teamId", actor.TeamID)
			team = subscription.TeamShared(shared, actor.TeamID)
			return err
		})
	}
	g.Go(func() (err error) {
		global, err = s.queryPrompts(gctx, "sharing", models.SharingGlobal)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subscription.MergeVisible(own, team, global), nil
}

func (s *Service) queryPrompts(ctx context.Context, field string, value any) ([]models.Prompt, error) {
	recs, err := s.store.QueryEqual(ctx, store.Prompts, field, value)
	if err != nil {
		return nil, fmt.Errorf("query prompts by %s: %w", field, err)
	}
	return store.Decode[models.Prompt](recs)
}

type RenderRequest struct {
	Variables map[string]string `json:"variables"`
}

// Render fills the prompt's placeholders for a viewer.
func (s *Service) Render(ctx context.Context, actor *models.User, id string, req RenderRequest) (string, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return Fill(p.Content, req.Variables)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
