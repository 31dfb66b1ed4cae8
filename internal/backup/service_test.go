package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/activity"
	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/store/storetest"
)

var (
	alice   = &models.User{ID: "alice", TeamID: "t1", Role: models.RoleUser}
	mallory = &models.User{ID: "mallory", TeamID: "t9", Role: models.RoleUser}
	root    = &models.User{ID: "root", Role: models.RoleSuperUser}
)

type events struct{ got []activity.Event }

func (e *events) Record(_ context.Context, ev activity.Event) error {
	e.got = append(e.got, ev)
	return nil
}

func newService(s store.Store) (*Service, *events) {
	ev := &events{}
	svc := NewService(s, ev, Options{Concurrency: 4})
	svc.now = func() time.Time { return storetest.Epoch.Add(time.Hour) }
	return svc, ev
}

func seed(t *testing.T, s store.Store) models.Prompt {
	t.Helper()
	storetest.Prompt(t, s, models.Prompt{
		ID:            "p1",
		CreatedBy:     "alice",
		Tags:          []string{"sql"},
		AssignedTeams: []string{"t1", "t2"},
	})
	p, err := store.GetJSON[models.Prompt](context.Background(), s, store.PromptPath("p1"))
	require.NoError(t, err)
	return *p
}

func TestDeleteWithCascadeRemovesPromptAndEdges(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, ev := newService(s)

	b, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", b.DeletedBy)
	assert.Len(t, b.TeamAssignments, 2)

	_, err = s.Get(ctx, store.PromptPath("p1"))
	assert.True(t, apperr.IsNotFound(err))
	_, err = s.Get(ctx, store.AssignmentPath("t1", "p1"))
	assert.True(t, apperr.IsNotFound(err))
	_, err = s.Get(ctx, store.AssignmentPath("t2", "p1"))
	assert.True(t, apperr.IsNotFound(err))

	stored, err := store.GetJSON[models.DeletionBackup](ctx, s, store.BackupPath("p1"))
	require.NoError(t, err)
	assert.Equal(t, "p1", stored.PromptData.ID)

	require.Len(t, ev.got, 1)
	assert.Equal(t, activity.PromptDeleted, ev.got[0].Action)
}

func TestDeleteTwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, _ := newService(s)

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)
	_, err = svc.DeleteWithCascade(ctx, alice, "p1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteRequiresPermission(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, _ := newService(s)

	_, err := svc.DeleteWithCascade(ctx, mallory, "p1")
	assert.True(t, apperr.IsUnauthorized(err))

	_, err = s.Get(ctx, store.PromptPath("p1"))
	assert.NoError(t, err)
	_, err = s.Get(ctx, store.BackupPath("p1"))
	assert.True(t, apperr.IsNotFound(err))
}

// failingBackups rejects writes under deletion_backups.
type failingBackups struct{ store.Store }

func (f failingBackups) Set(ctx context.Context, p string, v any) error {
	if store.Parent(p) == store.DeletionBackups {
		return errors.New("quota exceeded")
	}
	return f.Store.Set(ctx, p, v)
}

func (f failingBackups) Mutate(ctx context.Context, p string, fn store.MutateFunc) error {
	return f.Store.Mutate(ctx, p, func(current json.RawMessage) (map[string]any, error) {
		writes, err := fn(current)
		if err != nil {
			return nil, err
		}
		for path := range writes {
			if store.Parent(path) == store.DeletionBackups {
				return nil, errors.New("quota exceeded")
			}
		}
		return writes, nil
	})
}

func TestDeleteAbortsWhenBackupFails(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem)
	svc, ev := newService(failingBackups{mem})

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.Error(t, err)

	_, err = mem.Get(ctx, store.PromptPath("p1"))
	assert.NoError(t, err, "prompt must survive a failed backup")
	_, err = mem.Get(ctx, store.AssignmentPath("t1", "p1"))
	assert.NoError(t, err)
	assert.Empty(t, ev.got)
}

func TestDeleteThenRestoreRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	before := seed(t, s)
	svc, ev := newService(s)

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)

	restored, err := svc.RestoreDeletedPrompt(ctx, alice, "p1")
	require.NoError(t, err)
	assert.Equal(t, before, *restored)

	live, err := store.GetJSON[models.Prompt](ctx, s, store.PromptPath("p1"))
	require.NoError(t, err)
	assert.Equal(t, before, *live)

	for _, team := range []string{"t1", "t2"} {
		edge, err := store.GetJSON[models.TeamAssignment](ctx, s, store.AssignmentPath(team, "p1"))
		require.NoError(t, err)
		assert.Equal(t, "alice", edge.AssignedBy)
	}

	b, err := store.GetJSON[models.DeletionBackup](ctx, s, store.BackupPath("p1"))
	require.NoError(t, err)
	require.NotNil(t, b.RestoredAt)
	assert.Equal(t, "alice", b.RestoredBy)

	require.Len(t, ev.got, 2)
	assert.Equal(t, activity.PromptRestored, ev.got[1].Action)
}

func TestRestoreTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, ev := newService(s)

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)
	_, err = svc.RestoreDeletedPrompt(ctx, alice, "p1")
	require.NoError(t, err)

	again, err := svc.RestoreDeletedPrompt(ctx, alice, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", again.ID)
	assert.Len(t, ev.got, 2, "a no-op restore emits nothing")
}

func TestRestoreWithoutBackupIsNotFound(t *testing.T) {
	svc, _ := newService(store.NewMemory())
	_, err := svc.RestoreDeletedPrompt(context.Background(), root, "ghost")
	assert.True(t, apperr.IsNotFound(err))
}

func TestRestoreRequiresPermission(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, _ := newService(s)

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)
	_, err = svc.RestoreDeletedPrompt(ctx, mallory, "p1")
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestBulkDeletePartitionsIDs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	storetest.Prompt(t, s, models.Prompt{ID: "a", CreatedBy: "alice"})
	storetest.Prompt(t, s, models.Prompt{ID: "b", CreatedBy: "mallory"})
	svc, _ := newService(s)

	res := svc.BulkDeleteWithCascade(ctx, alice, []string{"a", "b", "missing"})

	assert.Equal(t, []string{"a"}, res.Successful)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, "b", res.Failed[0].PromptID)
	assert.Equal(t, "missing", res.Failed[1].PromptID)
}

func TestListDeletionBackupsNewestFirstAndCapped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, store.BackupPath(fmt.Sprintf("p%d", i)), models.DeletionBackup{
			PromptID:   fmt.Sprintf("p%d", i),
			PromptData: models.Prompt{ID: fmt.Sprintf("p%d", i), CreatedBy: "alice"},
			DeletedAt:  storetest.Epoch.Add(time.Duration(i) * time.Minute),
			DeletedBy:  "alice",
		}))
	}
	svc := NewService(s, nil, Options{ListCap: 3})

	got, err := svc.ListDeletionBackups(ctx, root, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "p4", got[0].PromptID)
	assert.Equal(t, "p2", got[2].PromptID)

	got, err = svc.ListDeletionBackups(ctx, root, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.ListDeletionBackups(ctx, mallory, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackupSnapshotSerializesAssignments(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, _ := newService(s)

	_, err := svc.DeleteWithCascade(ctx, root, "p1")
	require.NoError(t, err)

	raw, err := s.Get(ctx, store.BackupPath("p1"))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "promptData")
	assert.Contains(t, doc, "teamAssignments")
	assert.Contains(t, doc, "deletedAt")
}

func TestDeleteRemovesSharingTeamEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	storetest.Prompt(t, s, models.Prompt{
		ID:            "p1",
		CreatedBy:     "alice",
		Sharing:       models.SharingTeam,
		TeamID:        "t3",
		AssignedTeams: []string{"t1"},
	})
	require.NoError(t, s.Set(ctx, store.AssignmentPath("t3", "p1"), models.TeamAssignment{TeamID: "t3", PromptID: "p1"}))
	svc, _ := newService(s)

	b, err := svc.DeleteWithCascade(ctx, root, "p1")
	require.NoError(t, err)
	assert.Len(t, b.TeamAssignments, 2)

	for _, team := range []string{"t1", "t3"} {
		_, err := s.Get(ctx, store.AssignmentPath(team, "p1"))
		assert.True(t, apperr.IsNotFound(err), "edge %s must be removed", team)
	}
}

func TestRestoreRefusesToOverwriteLivePrompt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s)
	svc, ev := newService(s)

	_, err := svc.DeleteWithCascade(ctx, alice, "p1")
	require.NoError(t, err)
	storetest.Prompt(t, s, models.Prompt{ID: "p1", Title: "Imported later", CreatedBy: "alice"})

	_, err = svc.RestoreDeletedPrompt(ctx, alice, "p1")
	assert.True(t, apperr.IsValidation(err))

	live, err := store.GetJSON[models.Prompt](ctx, s, store.PromptPath("p1"))
	require.NoError(t, err)
	assert.Equal(t, "Imported later", live.Title)
	b, err := store.GetJSON[models.DeletionBackup](ctx, s, store.BackupPath("p1"))
	require.NoError(t, err)
	assert.Nil(t, b.RestoredAt)
	assert.Len(t, ev.got, 1, "a refused restore emits nothing")
}

func TestDeleteSnapshotsPromptAsWritten(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	seed(t, mem)
	svc, _ := newService(storetest.Slow{Store: mem, Delay: 30 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		_, err := store.MutateJSON(ctx, mem, store.PromptPath("p1"), func(p *models.Prompt) (map[string]any, error) {
			p.UsageCount = 7
			return nil, nil
		})
		assert.NoError(t, err)
	}()

	b, err := svc.DeleteWithCascade(ctx, alice, "p1")
	<-done
	require.NoError(t, err)
	_, err = mem.Get(ctx, store.PromptPath("p1"))
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 7, b.PromptData.UsageCount, "the snapshot holds the edit made while the delete was reading")
}
