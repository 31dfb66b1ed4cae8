// Package transfer exports prompts to a portable JSON file and imports them
// back, classifying each incoming prompt before anything is written.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

const FormatVersion = 1

type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeTeam     Scope = "team"
	ScopeAll      Scope = "all"
)

type Resolution string

const (
	Skip      Resolution = "skip"
	Overwrite Resolution = "overwrite"
	CreateNew Resolution = "create_new"
)

type File struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	ExportedBy string          `json:"exportedBy"`
	Scope      Scope           `json:"scope"`
	Prompts    []models.Prompt `json:"prompts"`
}

type Conflict struct {
	Incoming models.Prompt `json:"incoming"`
	Existing models.Prompt `json:"existing"`
}

type InvalidPrompt struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type Analysis struct {
	NewPrompts         []models.Prompt `json:"newPrompts"`
	ConflictingPrompts []Conflict      `json:"conflictingPrompts"`
	InvalidPrompts     []InvalidPrompt `json:"invalidPrompts"`
}

type Result struct {
	Imported    []string             `json:"imported"`
	Overwritten []string             `json:"overwritten"`
	Skipped     []string             `json:"skipped"`
	Failed      []models.BulkFailure `json:"failed"`
	Invalid     []InvalidPrompt      `json:"invalid"`
}

type Service struct {
	store    store.Store
	prompts  *prompt.Service
	recorder activity.Recorder
	now      func() time.Time
}

func NewService(s store.Store, prompts *prompt.Service, rec activity.Recorder) *Service {
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Service{store: s, prompts: prompts, recorder: rec, now: time.Now}
}

// Export collects the actor's visible prompts narrowed to scope.
func (s *Service) Export(ctx context.Context, actor *models.User, scope Scope) (*File, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("export requires a signed-in user")
	}
	if scope == "" {
		scope = ScopePersonal
	}
	switch scope {
	case ScopePersonal, ScopeAll:
	case ScopeTeam:
		if actor.TeamID == "" {
			return nil, apperr.Invalid("scope", "user has no team")
		}
	default:
		return nil, apperr.Invalid("scope", fmt.Sprintf("unknown export scope %q", scope))
	}

	visible, err := s.prompts.ListVisible(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := []models.Prompt{}
	for _, p := range visible {
		switch scope {
		case ScopePersonal:
			if p.CreatedBy != actor.ID {
				continue
			}
		case ScopeTeam:
			if p.Sharing != models.SharingTeam || p.TeamID != actor.TeamID {
				continue
			}
		}
		out = append(out, p)
	}

	return &File{
		Version:    FormatVersion,
		ExportedAt: s.now().UTC(),
		ExportedBy: actor.ID,
		Scope:      scope,
		Prompts:    out,
	}, nil
}

// Analyze classifies every prompt in the file as new, conflicting with an
// existing id, or invalid. Nothing is written.
func (s *Service) Analyze(ctx context.Context, actor *models.User, raw []byte) (*Analysis, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("import requires a signed-in user")
	}
	if err := validateShape(raw); err != nil {
		return nil, err
	}
	var envelope struct {
		Prompts []json.RawMessage `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.Invalid("file", err.Error())
	}

	a := &Analysis{
		NewPrompts:         []models.Prompt{},
		ConflictingPrompts: []Conflict{},
		InvalidPrompts:     []InvalidPrompt{},
	}
	seen := make(map[string]bool)
	for i, item := range envelope.Prompts {
		var p models.Prompt
		if err := json.Unmarshal(item, &p); err != nil {
			a.InvalidPrompts = append(a.InvalidPrompts, InvalidPrompt{Index: i, Error: err.Error()})
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Sharing == "" {
			p.Sharing = models.SharingPrivate
		}
		tags, err := prompt.NormalizeTags(p.Tags)
		if err == nil {
			p.Tags = tags
			err = prompt.Validate(&p)
		}
		if err == nil && seen[p.ID] {
			err = apperr.Invalid("id", "duplicated within the file")
		}
		if err != nil {
			a.InvalidPrompts = append(a.InvalidPrompts, InvalidPrompt{Index: i, ID: p.ID, Error: err.Error()})
			continue
		}
		seen[p.ID] = true

		existing, err := store.GetJSON[models.Prompt](ctx, s.store, store.PromptPath(p.ID))
		switch {
		case err == nil:
			a.ConflictingPrompts = append(a.ConflictingPrompts, Conflict{Incoming: p, Existing: *existing})
		case apperr.IsNotFound(err):
			a.NewPrompts = append(a.NewPrompts, p)
		default:
			return nil, fmt.Errorf("check prompt %s: %w", p.ID, err)
		}
	}
	return a, nil
}

// Apply analyzes the file and writes it, resolving conflicts with res.
// Imported prompts belong to the actor.
func (s *Service) Apply(ctx context.Context, actor *models.User, raw []byte, res Resolution) (*Result, error) {
	if res == "" {
		res = Skip
	}
	if res != Skip && res != Overwrite && res != CreateNew {
		return nil, apperr.Invalid("resolution", fmt.Sprintf("unknown conflict resolution %q", res))
	}
	a, err := s.Analyze(ctx, actor, raw)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Imported:    []string{},
		Overwritten: []string{},
		Skipped:     []string{},
		Failed:      []models.BulkFailure{},
		Invalid:     a.InvalidPrompts,
	}
	for _, p := range a.NewPrompts {
		if err := s.write(ctx, actor, s.adopt(actor, p, nil)); err != nil {
			out.Failed = append(out.Failed, models.BulkFailure{PromptID: p.ID, Error: err.Error()})
			continue
		}
		out.Imported = append(out.Imported, p.ID)
	}
	for _, c := range a.ConflictingPrompts {
		switch res {
		case Skip:
			out.Skipped = append(out.Skipped, c.Incoming.ID)
		case Overwrite:
			if err := s.overwrite(ctx, actor, c.Incoming); err != nil {
				out.Failed = append(out.Failed, models.BulkFailure{PromptID: c.Incoming.ID, Error: err.Error()})
				continue
			}
			out.Overwritten = append(out.Overwritten, c.Incoming.ID)
		case CreateNew:
			p := c.Incoming
			p.ID = uuid.NewString()
			if err := s.write(ctx, actor, s.adopt(actor, p, nil)); err != nil {
				out.Failed = append(out.Failed, models.BulkFailure{PromptID: c.Incoming.ID, Error: err.Error()})
				continue
			}
			out.Imported = append(out.Imported, p.ID)
		}
	}

	slog.Info("import applied",
		"user_id", actor.ID,
		"imported", len(out.Imported),
		"overwritten", len(out.Overwritten),
		"skipped", len(out.Skipped),
		"failed", len(out.Failed),
		"invalid", len(out.Invalid),
	)
	s.recorder.Record(ctx, activity.Event{
		Action:       activity.ImportCompleted,
		ActorID:      actor.ID,
		ResourceType: "import",
		Details: map[string]any{
			"imported":    len(out.Imported),
			"overwritten": len(out.Overwritten),
			"skipped":     len(out.Skipped),
			"failed":      len(out.Failed),
			"invalid":     len(out.Invalid),
		},
	})
	return out, nil
}

// adopt rewrites an incoming prompt for storage under the actor. Usage
// history never travels with a file. Team sharing is kept only for the
// actor's own team; otherwise the prompt becomes private.
func (s *Service) adopt(actor *models.User, in models.Prompt, existing *models.Prompt) models.Prompt {
	now := s.now().UTC()
	p := in
	p.CreatedBy = actor.ID
	p.CreatedAt = now
	p.UsageCount = 0
	p.LastUsed = nil
	p.AssignedTeams = nil
	if existing != nil {
		p.CreatedBy = existing.CreatedBy
		p.CreatedAt = existing.CreatedAt
		p.UsageCount = existing.UsageCount
		p.LastUsed = existing.LastUsed
		p.AssignedTeams = existing.AssignedTeams
	}
	p.LastModified = now
	p.ModifiedBy = actor.ID

	if p.Sharing == models.SharingTeam {
		switch {
		case existing != nil && existing.Sharing == models.SharingTeam && existing.TeamID == p.TeamID:
		case actor.TeamID != "":
			p.TeamID = actor.TeamID
		default:
			p.Sharing = models.SharingPrivate
		}
	}
	if p.Sharing != models.SharingTeam {
		p.TeamID = ""
	}
	if p.TeamID != "" && !p.HasTeam(p.TeamID) {
		p.AssignedTeams = append(p.AssignedTeams, p.TeamID)
	}
	return p
}

// overwrite adopts the incoming prompt onto the live record in one atomic
// write, keeping its ownership, usage and team edges. A prompt deleted since
// the analysis is reported as not found.
func (s *Service) overwrite(ctx context.Context, actor *models.User, in models.Prompt) error {
	_, err := store.MutateJSON(ctx, s.store, store.PromptPath(in.ID), func(existing *models.Prompt) (map[string]any, error) {
		if !permission.CanEditPrompt(actor, existing) {
			return nil, apperr.Unauthorized("cannot overwrite prompt %s", existing.ID)
		}
		p := s.adopt(actor, in, existing)
		writes := map[string]any{}
		if p.TeamID != "" && !existing.HasTeam(p.TeamID) {
			writes[store.AssignmentPath(p.TeamID, p.ID)] = models.TeamAssignment{
				TeamID: p.TeamID, PromptID: p.ID, AssignedBy: actor.ID, AssignedAt: p.LastModified,
			}
		}
		*existing = p
		return writes, nil
	})
	if err != nil {
		return fmt.Errorf("overwrite prompt %s: %w", in.ID, err)
	}
	return nil
}

func (s *Service) write(ctx context.Context, actor *models.User, p models.Prompt) error {
	writes := map[string]any{store.PromptPath(p.ID): p}
	if p.TeamID != "" {
		writes[store.AssignmentPath(p.TeamID, p.ID)] = models.TeamAssignment{
			TeamID: p.TeamID, PromptID: p.ID, AssignedBy: actor.ID, AssignedAt: p.LastModified,
		}
	}
	if err := s.store.Update(ctx, writes); err != nil {
		return fmt.Errorf("write prompt %s: %w", p.ID, err)
	}
	return nil
}
