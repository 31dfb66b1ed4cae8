// Package bulk applies one operation to many prompts. Each prompt is handled
// independently and reported as successful or failed; a failing item never
// aborts the rest.
package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/backup"
	"github.com/nikhilbhutani/promptkeeper/internal/batch"
	"github.com/nikhilbhutani/promptkeeper/internal/metrics"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

type Executor struct {
	store       store.Store
	backups     *backup.Service
	recorder    activity.Recorder
	concurrency int
	now         func() time.Time
}

func NewExecutor(s store.Store, backups *backup.Service, rec activity.Recorder, concurrency int) *Executor {
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Executor{
		store:       s,
		backups:     backups,
		recorder:    rec,
		concurrency: batch.ClampLimit(concurrency),
		now:         time.Now,
	}
}

// Execute validates the operation, then runs it for every prompt id. The
// returned error is set only when the operation as a whole is rejected before
// any item runs.
func (e *Executor) Execute(ctx context.Context, actor *models.User, op models.BulkOperation, promptIDs []string) (models.BulkResult, error) {
	if actor == nil {
		return models.BulkResult{}, apperr.Unauthorized("bulk operations require a signed-in user")
	}
	fn, err := e.prepare(ctx, actor, op)
	if err != nil {
		return models.BulkResult{}, err
	}

	start := time.Now()
	var res models.BulkResult
	if op.Type == models.BulkDelete {
		res = e.backups.BulkDeleteWithCascade(ctx, actor, promptIDs)
	} else {
		res = batch.Run(ctx, promptIDs, e.concurrency, fn)
	}
	metrics.RecordBulk(string(op.Type), len(res.Successful), len(res.Failed), time.Since(start).Seconds())

	slog.Info("bulk operation finished",
		"operation", op.Type,
		"user_id", actor.ID,
		"successful", len(res.Successful),
		"failed", len(res.Failed),
	)
	e.recorder.Record(context.WithoutCancel(ctx), activity.Event{
		Action:       activity.BulkCompleted,
		ActorID:      actor.ID,
		ResourceType: "bulk",
		ResourceID:   string(op.Type),
		Details: map[string]any{
			"successful": res.Successful,
			"failed":     res.Failed,
		},
	})
	return res, nil
}

// Validate checks an operation without running it, so deferred work can be
// rejected before it is queued.
func (e *Executor) Validate(ctx context.Context, actor *models.User, op models.BulkOperation) error {
	if actor == nil {
		return apperr.Unauthorized("bulk operations require a signed-in user")
	}
	_, err := e.prepare(ctx, actor, op)
	return err
}

// prepare decodes op.Data and returns the per-item function.
func (e *Executor) prepare(ctx context.Context, actor *models.User, op models.BulkOperation) (batch.Func, error) {
	switch op.Type {
	case models.BulkDelete:
		return nil, nil

	case models.BulkAddTags, models.BulkRemoveTags:
		var tags []string
		if err := decodeData(op.Data, &tags); err != nil {
			return nil, err
		}
		normalized, err := prompt.NormalizeTags(tags)
		if err != nil {
			return nil, err
		}
		if len(normalized) == 0 {
			return nil, apperr.Invalid("data", "at least one tag is required")
		}
		if op.Type == models.BulkAddTags {
			return e.editPrompt(actor, func(p *models.Prompt) (map[string]any, error) {
				merged, err := prompt.MergeTags(p.Tags, normalized)
				p.Tags = merged
				return nil, err
			}), nil
		}
		return e.editPrompt(actor, func(p *models.Prompt) (map[string]any, error) {
			p.Tags = prompt.RemoveTags(p.Tags, normalized)
			return nil, nil
		}), nil

	case models.BulkAssignTeam, models.BulkUnassignTeam:
		var teamID string
		if err := decodeData(op.Data, &teamID); err != nil {
			return nil, err
		}
		teamID = strings.TrimSpace(teamID)
		if teamID == "" {
			return nil, apperr.Invalid("data", "team id is required")
		}
		if op.Type == models.BulkAssignTeam {
			if _, err := e.store.Get(ctx, store.TeamPath(teamID)); err != nil {
				return nil, fmt.Errorf("load team %s: %w", teamID, err)
			}
			return e.editPrompt(actor, func(p *models.Prompt) (map[string]any, error) {
				if !p.HasTeam(teamID) {
					p.AssignedTeams = append(p.AssignedTeams, teamID)
				}
				return map[string]any{
					store.AssignmentPath(teamID, p.ID): models.TeamAssignment{
						TeamID: teamID, PromptID: p.ID, AssignedBy: actor.ID, AssignedAt: p.LastModified,
					},
				}, nil
			}), nil
		}
		return e.editPrompt(actor, func(p *models.Prompt) (map[string]any, error) {
			kept := p.AssignedTeams[:0]
			for _, t := range p.AssignedTeams {
				if t != teamID {
					kept = append(kept, t)
				}
			}
			p.AssignedTeams = kept
			return map[string]any{store.AssignmentPath(teamID, p.ID): nil}, nil
		}), nil
	}
	return nil, apperr.Invalid("type", fmt.Sprintf("unknown bulk operation %q", op.Type))
}

// editPrompt checks edit permission and applies mutate to the live prompt in
// one atomic store write, together with any extra paths mutate returns.
func (e *Executor) editPrompt(actor *models.User, mutate func(p *models.Prompt) (map[string]any, error)) batch.Func {
	return func(ctx context.Context, id string) error {
		_, err := store.MutateJSON(ctx, e.store, store.PromptPath(id), func(p *models.Prompt) (map[string]any, error) {
			if !permission.CanEditPrompt(actor, p) {
				return nil, apperr.Unauthorized("cannot edit prompt %s", id)
			}
			p.LastModified = e.now().UTC()
			p.ModifiedBy = actor.ID
			return mutate(p)
		})
		if err != nil {
			return fmt.Errorf("prompt %s: %w", id, err)
		}
		return nil
	}
}

func decodeData(raw json.RawMessage, into any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return apperr.Invalid("data", "is required for this operation")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return apperr.Invalid("data", err.Error())
	}
	return nil
}
