// Package backup deletes prompts behind a snapshot and restores them from it.
//
// A cascade is one atomic write against the prompt as it is when the write
// lands: the snapshot is stored and the prompt and its assignment edges are
// removed together, or nothing happens. Concurrent writers of the prompt go
// through the same store primitive, so none of them can bring it back.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/batch"
	"github.com/nikhilbhutani/promptkeeper/internal/metrics"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/permission"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
)

const DefaultListCap = 200

type Options struct {
	Concurrency int
	ListCap     int
}

type Service struct {
	store    store.Store
	recorder activity.Recorder
	opts     Options
	now      func() time.Time
}

func NewService(s store.Store, rec activity.Recorder, opts Options) *Service {
	if opts.ListCap <= 0 {
		opts.ListCap = DefaultListCap
	}
	if rec == nil {
		rec = activity.Nop{}
	}
	return &Service{store: s, recorder: rec, opts: opts, now: time.Now}
}

// DeleteWithCascade snapshots the prompt and its team assignments, then
// removes them.
func (s *Service) DeleteWithCascade(ctx context.Context, actor *models.User, promptID string) (*models.DeletionBackup, error) {
	b, err := s.deleteWithCascade(ctx, actor, promptID)
	if err != nil {
		metrics.RecordDeletion("failed")
		return nil, err
	}
	metrics.RecordDeletion("ok")
	s.recorder.Record(ctx, activity.Event{
		Action:       activity.PromptDeleted,
		ActorID:      actor.ID,
		ResourceType: "prompt",
		ResourceID:   promptID,
		Details: map[string]any{
			"title":           b.PromptData.Title,
			"teamAssignments": len(b.TeamAssignments),
		},
	})
	return b, nil
}

func (s *Service) deleteWithCascade(ctx context.Context, actor *models.User, promptID string) (*models.DeletionBackup, error) {
	p, err := store.GetJSON[models.Prompt](ctx, s.store, store.PromptPath(promptID))
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", promptID, err)
	}
	if !permission.CanDeletePrompt(actor, p) {
		return nil, apperr.Unauthorized("cannot delete prompt %s", promptID)
	}

	edges, err := s.loadEdges(ctx, p)
	if err != nil {
		return nil, err
	}

	var b models.DeletionBackup
	err = s.store.Mutate(ctx, store.PromptPath(promptID), func(current json.RawMessage) (map[string]any, error) {
		var live models.Prompt
		if err := json.Unmarshal(current, &live); err != nil {
			return nil, fmt.Errorf("decode prompt %s: %w", promptID, err)
		}
		if !permission.CanDeletePrompt(actor, &live) {
			return nil, apperr.Unauthorized("cannot delete prompt %s", promptID)
		}

		b = models.DeletionBackup{
			PromptID:        promptID,
			PromptData:      live,
			TeamAssignments: assignments(&live, edges),
			DeletedAt:       s.now().UTC(),
			DeletedBy:       actor.ID,
		}
		writes := map[string]any{
			store.BackupPath(promptID): b,
			store.PromptPath(promptID): nil,
		}
		for _, a := range b.TeamAssignments {
			writes[store.AssignmentPath(a.TeamID, promptID)] = nil
		}
		return writes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete prompt %s: %w", promptID, err)
	}

	slog.Info("prompt deleted with cascade", "prompt_id", promptID, "deleted_by", actor.ID, "assignments", len(b.TeamAssignments))
	return &b, nil
}

// cascadeTeams lists every team a prompt may hold an edge for: its assigned
// teams and its sharing team.
func cascadeTeams(p *models.Prompt) []string {
	out := []string{}
	seen := map[string]bool{"": true}
	for _, teamID := range append(append([]string(nil), p.AssignedTeams...), p.TeamID) {
		if !seen[teamID] {
			seen[teamID] = true
			out = append(out, teamID)
		}
	}
	return out
}

// loadEdges reads the stored assignment edges of p, keyed by team.
func (s *Service) loadEdges(ctx context.Context, p *models.Prompt) (map[string]models.TeamAssignment, error) {
	out := map[string]models.TeamAssignment{}
	for _, teamID := range cascadeTeams(p) {
		edge, err := store.GetJSON[models.TeamAssignment](ctx, s.store, store.AssignmentPath(teamID, p.ID))
		switch {
		case err == nil:
			out[teamID] = *edge
		case apperr.IsNotFound(err):
		default:
			return nil, fmt.Errorf("load assignment %s/%s: %w", teamID, p.ID, err)
		}
	}
	return out, nil
}

// assignments builds the snapshot edges for the live prompt. Teams assigned
// after the edges were loaded get a bare edge so they are still removed.
func assignments(p *models.Prompt, edges map[string]models.TeamAssignment) []models.TeamAssignment {
	teams := cascadeTeams(p)
	out := make([]models.TeamAssignment, 0, len(teams))
	for _, teamID := range teams {
		if edge, ok := edges[teamID]; ok {
			out = append(out, edge)
			continue
		}
		out = append(out, models.TeamAssignment{TeamID: teamID, PromptID: p.ID})
	}
	return out
}

// BulkDeleteWithCascade deletes each prompt independently; one failure does
// not stop the others.
func (s *Service) BulkDeleteWithCascade(ctx context.Context, actor *models.User, promptIDs []string) models.BulkResult {
	return batch.Run(ctx, promptIDs, s.opts.Concurrency, func(ctx context.Context, id string) error {
		_, err := s.DeleteWithCascade(ctx, actor, id)
		return err
	})
}

// ListDeletionBackups returns the backups the actor could restore, newest
// first. limit is clamped to the configured cap.
func (s *Service) ListDeletionBackups(ctx context.Context, actor *models.User, limit int) ([]models.DeletionBackup, error) {
	if actor == nil {
		return nil, apperr.Unauthorized("listing backups requires a signed-in user")
	}
	if limit <= 0 || limit > s.opts.ListCap {
		limit = s.opts.ListCap
	}

	recs, err := s.store.List(ctx, store.DeletionBackups)
	if err != nil {
		return nil, fmt.Errorf("list deletion backups: %w", err)
	}
	all, err := store.Decode[models.DeletionBackup](recs)
	if err != nil {
		return nil, err
	}

	visible := all[:0]
	for _, b := range all {
		if canRestore(actor, &b) {
			visible = append(visible, b)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].DeletedAt.After(visible[j].DeletedAt) })
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

// RestoreDeletedPrompt recreates the prompt under its original id together
// with its team assignments. The backup is kept and stamped as restored.
// Restoring an already-restored prompt that is still live returns it
// unchanged.
func (s *Service) RestoreDeletedPrompt(ctx context.Context, actor *models.User, promptID string) (*models.Prompt, error) {
	b, err := store.GetJSON[models.DeletionBackup](ctx, s.store, store.BackupPath(promptID))
	if apperr.IsNotFound(err) {
		metrics.RecordRestore("failed")
		return nil, apperr.NotFound("no deletion backup for prompt %s", promptID)
	}
	if err != nil {
		metrics.RecordRestore("failed")
		return nil, fmt.Errorf("load deletion backup %s: %w", promptID, err)
	}
	if !canRestore(actor, b) {
		metrics.RecordRestore("failed")
		return nil, apperr.Unauthorized("cannot restore prompt %s", promptID)
	}

	live, err := store.GetJSON[models.Prompt](ctx, s.store, store.PromptPath(promptID))
	switch {
	case err == nil && b.RestoredAt != nil:
		metrics.RecordRestore("noop")
		return live, nil
	case err == nil:
		// Something else was written under the id since the delete.
		metrics.RecordRestore("conflict")
		return nil, apperr.Invalid("promptId", fmt.Sprintf("prompt %s exists again; restoring would overwrite it", promptID))
	case !apperr.IsNotFound(err):
		metrics.RecordRestore("failed")
		return nil, fmt.Errorf("load prompt %s: %w", promptID, err)
	}

	now := s.now().UTC()
	b.RestoredAt = &now
	b.RestoredBy = actor.ID

	writes := map[string]any{
		store.PromptPath(promptID): b.PromptData,
		store.BackupPath(promptID): b,
	}
	for _, a := range b.TeamAssignments {
		writes[store.AssignmentPath(a.TeamID, promptID)] = a
	}
	if err := s.store.Update(ctx, writes); err != nil {
		metrics.RecordRestore("failed")
		return nil, fmt.Errorf("restore prompt %s: %w", promptID, err)
	}

	metrics.RecordRestore("ok")
	slog.Info("prompt restored", "prompt_id", promptID, "restored_by", actor.ID)
	s.recorder.Record(ctx, activity.Event{
		Action:       activity.PromptRestored,
		ActorID:      actor.ID,
		ResourceType: "prompt",
		ResourceID:   promptID,
		Details:      map[string]any{"deletedBy": b.DeletedBy, "deletedAt": b.DeletedAt},
	})
	restored := b.PromptData
	return &restored, nil
}

func canRestore(actor *models.User, b *models.DeletionBackup) bool {
	if actor == nil {
		return false
	}
	return b.DeletedBy == actor.ID || permission.CanDeletePrompt(actor, &b.PromptData)
}
