package transfer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/prompt"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/store/storetest"
)

var (
	alice = &models.User{ID: "alice", TeamID: "t1", Role: models.RoleUser}
	carol = &models.User{ID: "carol", TeamID: "t2", Role: models.RoleUser}
)

func setup(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewMemory()
	storetest.Team(t, s, "t1", "Platform", "alice", "bob")
	storetest.Prompt(t, s, models.Prompt{ID: "mine", CreatedBy: "alice", Tags: []string{"sql"}})
	storetest.Prompt(t, s, models.Prompt{ID: "team", CreatedBy: "bob", Sharing: models.SharingTeam, TeamID: "t1", AssignedTeams: []string{"t1"}})
	storetest.Prompt(t, s, models.Prompt{ID: "global", CreatedBy: "carol", Sharing: models.SharingGlobal})
	storetest.Prompt(t, s, models.Prompt{ID: "hidden", CreatedBy: "carol"})

	svc := NewService(s, prompt.NewService(s), nil)
	svc.now = func() time.Time { return storetest.Epoch.Add(time.Hour) }
	return svc, s
}

func promptIDs(ps []models.Prompt) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestExportScopes(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		scope Scope
		want  []string
	}{
		{ScopePersonal, []string{"mine"}},
		{ScopeTeam, []string{"team"}},
		{ScopeAll, []string{"mine", "team", "global"}},
	}
	for _, tt := range tests {
		f, err := svc.Export(ctx, alice, tt.scope)
		require.NoError(t, err)
		assert.Equal(t, FormatVersion, f.Version)
		assert.ElementsMatch(t, tt.want, promptIDs(f.Prompts), "scope %s", tt.scope)
	}

	_, err := svc.Export(ctx, alice, "everything")
	assert.True(t, apperr.IsValidation(err))
	_, err = svc.Export(ctx, &models.User{ID: "loner"}, ScopeTeam)
	assert.True(t, apperr.IsValidation(err))
}

func TestAnalyzeClassifiesConflicts(t *testing.T) {
	svc, _ := setup(t)
	raw := []byte(`{
		"version": 1,
		"prompts": [
			{"id": "mine", "title": "Changed", "content": "x", "sharing": "private", "tags": []},
			{"id": "fresh", "title": "Fresh", "content": "y", "tags": ["New "]},
			{"title": "No id", "content": "z"},
			{"id": "bad", "title": "", "content": "z"},
			{"id": "fresh", "title": "Dupe", "content": "z"},
			{"id": 7}
		]
	}`)

	a, err := svc.Analyze(context.Background(), alice, raw)
	require.NoError(t, err)

	require.Len(t, a.ConflictingPrompts, 1)
	assert.Equal(t, "mine", a.ConflictingPrompts[0].Incoming.ID)
	assert.Equal(t, "Prompt mine", a.ConflictingPrompts[0].Existing.Title)

	require.Len(t, a.NewPrompts, 2)
	assert.Equal(t, "fresh", a.NewPrompts[0].ID)
	assert.Equal(t, []string{"new"}, a.NewPrompts[0].Tags)
	assert.NotEmpty(t, a.NewPrompts[1].ID)

	require.Len(t, a.InvalidPrompts, 3)
	assert.Equal(t, 3, a.InvalidPrompts[0].Index)
	assert.Equal(t, 4, a.InvalidPrompts[1].Index)
	assert.Equal(t, 5, a.InvalidPrompts[2].Index)
}

func TestAnalyzeRejectsBadFiles(t *testing.T) {
	svc, _ := setup(t)
	for _, raw := range []string{`not json`, `{}`, `{"prompts": "x"}`, `{"prompts": [1]}`, `{"scope": "mars", "prompts": []}`} {
		_, err := svc.Analyze(context.Background(), alice, []byte(raw))
		assert.True(t, apperr.IsValidation(err), "file %s: %v", raw, err)
	}
}

func TestApplyResolutions(t *testing.T) {
	ctx := context.Background()
	raw := []byte(`{"prompts": [
		{"id": "mine", "title": "Changed", "content": "x"},
		{"id": "hidden", "title": "Hijack", "content": "x"},
		{"id": "fresh", "title": "Fresh", "content": "y", "sharing": "team", "teamId": "t9", "usageCount": 40}
	]}`)

	t.Run("skip", func(t *testing.T) {
		svc, s := setup(t)
		res, err := svc.Apply(ctx, alice, raw, Skip)
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, res.Imported)
		assert.ElementsMatch(t, []string{"mine", "hidden"}, res.Skipped)

		p, err := store.GetJSON[models.Prompt](ctx, s, store.PromptPath("fresh"))
		require.NoError(t, err)
		assert.Equal(t, "alice", p.CreatedBy)
		assert.Equal(t, "t1", p.TeamID, "team sharing moves to the importer's team")
		assert.Zero(t, p.UsageCount)
		_, err = s.Get(ctx, store.AssignmentPath("t1", "fresh"))
		assert.NoError(t, err)
	})

	t.Run("overwrite", func(t *testing.T) {
		svc, s := setup(t)
		res, err := svc.Apply(ctx, alice, raw, Overwrite)
		require.NoError(t, err)
		assert.Equal(t, []string{"mine"}, res.Overwritten)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "hidden", res.Failed[0].PromptID)

		p, err := store.GetJSON[models.Prompt](ctx, s, store.PromptPath("mine"))
		require.NoError(t, err)
		assert.Equal(t, "Changed", p.Title)
		assert.Equal(t, storetest.Epoch, p.CreatedAt)
	})

	t.Run("create_new", func(t *testing.T) {
		svc, s := setup(t)
		res, err := svc.Apply(ctx, carol, raw, CreateNew)
		require.NoError(t, err)
		assert.Len(t, res.Imported, 3)
		assert.Empty(t, res.Skipped)

		recs, err := s.List(ctx, store.Prompts)
		require.NoError(t, err)
		assert.Len(t, recs, 4+3)
	})

	t.Run("unknown resolution", func(t *testing.T) {
		svc, _ := setup(t)
		_, err := svc.Apply(ctx, alice, raw, "merge")
		assert.True(t, apperr.IsValidation(err))
	})
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t)
	f, err := svc.Export(ctx, alice, ScopePersonal)
	require.NoError(t, err)
	raw, err := json.Marshal(f)
	require.NoError(t, err)

	target := store.NewMemory()
	dst := NewService(target, prompt.NewService(target), nil)
	res, err := dst.Apply(ctx, &models.User{ID: "dave"}, raw, Skip)
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, res.Imported)

	p, err := store.GetJSON[models.Prompt](ctx, target, store.PromptPath("mine"))
	require.NoError(t, err)
	assert.Equal(t, []string{"sql"}, p.Tags)
	assert.Equal(t, "dave", p.CreatedBy)
}

func TestOverwriteKeepsLiveAssignments(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t)

	err := svc.overwrite(ctx, alice, models.Prompt{ID: "team", Title: "Rewritten", Content: "z", Sharing: models.SharingPrivate})
	require.NoError(t, err)

	p, err := store.GetJSON[models.Prompt](ctx, s, store.PromptPath("team"))
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", p.Title)
	assert.Equal(t, "bob", p.CreatedBy)
	assert.Equal(t, []string{"t1"}, p.AssignedTeams)
	_, err = s.Get(ctx, store.AssignmentPath("t1", "team"))
	assert.NoError(t, err)
}

func TestOverwriteOfVanishedPromptCreatesNothing(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t)

	err := svc.overwrite(ctx, alice, models.Prompt{ID: "gone", Title: "Late", Content: "z"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = s.Get(ctx, store.PromptPath("gone"))
	assert.True(t, apperr.IsNotFound(err))
}
