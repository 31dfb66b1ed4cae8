package team

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/store"
	"github.com/nikhilbhutani/promptkeeper/internal/store/storetest"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewMemory()
	svc := NewService(s)
	svc.now = func() time.Time { return storetest.Epoch }
	return svc, s
}

func TestCreateMakesActorAdmin(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	alice := storetest.User(t, s, models.User{ID: "alice"})

	team, err := svc.Create(ctx, &alice, " Platform ")
	require.NoError(t, err)
	assert.Equal(t, "Platform", team.Name)
	require.Len(t, team.Members, 1)
	assert.Equal(t, models.MemberAdmin, team.Members[0].Role)

	u, err := store.GetJSON[models.User](ctx, s, store.UserPath("alice"))
	require.NoError(t, err)
	assert.Equal(t, team.ID, u.TeamID)

	_, err = svc.Create(ctx, u, "Second")
	assert.True(t, apperr.IsValidation(err))
	_, err = svc.Create(ctx, &alice, "  ")
	assert.True(t, apperr.IsValidation(err))
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	storetest.Team(t, s, "t1", "Platform", "alice")
	alice := storetest.User(t, s, models.User{ID: "alice", TeamID: "t1"})
	bob := storetest.User(t, s, models.User{ID: "bob"})

	team, err := svc.AddMember(ctx, &alice, "t1", "bob", "")
	require.NoError(t, err)
	require.NotNil(t, team.Member("bob"))
	assert.Equal(t, models.MemberMember, team.Member("bob").Role)

	got, err := svc.Get(ctx, &bob, "t1")
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)

	_, err = svc.AddMember(ctx, &bob, "t1", "alice", models.MemberMember)
	assert.True(t, apperr.IsUnauthorized(err), "plain members cannot manage the team")

	_, err = svc.RemoveMember(ctx, &alice, "t1", "alice")
	assert.True(t, apperr.IsValidation(err), "last admin stays")

	team, err = svc.RemoveMember(ctx, &alice, "t1", "bob")
	require.NoError(t, err)
	assert.Nil(t, team.Member("bob"))
	u, err := store.GetJSON[models.User](ctx, s, store.UserPath("bob"))
	require.NoError(t, err)
	assert.Empty(t, u.TeamID)

	_, err = svc.RemoveMember(ctx, &alice, "t1", "bob")
	assert.True(t, apperr.IsNotFound(err))
}

func TestAddMemberChecks(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	storetest.Team(t, s, "t1", "Platform", "alice")
	storetest.Team(t, s, "t2", "Research", "carol")
	storetest.User(t, s, models.User{ID: "carol", TeamID: "t2"})
	root := &models.User{ID: "root", Role: models.RoleSuperUser}

	_, err := svc.AddMember(ctx, root, "t1", "ghost", "")
	assert.True(t, apperr.IsNotFound(err))
	_, err = svc.AddMember(ctx, root, "t1", "carol", "")
	assert.True(t, apperr.IsValidation(err))
	_, err = svc.AddMember(ctx, root, "t1", "carol", "owner")
	assert.True(t, apperr.IsValidation(err))
	_, err = svc.AddMember(ctx, root, "nope", "carol", "")
	assert.True(t, apperr.IsNotFound(err))
}

func TestGetAndListForUser(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	storetest.Team(t, s, "t1", "Platform", "alice", "bob")
	storetest.Team(t, s, "t2", "Research", "carol")

	_, err := svc.Get(ctx, &models.User{ID: "carol", TeamID: "t2"}, "t1")
	assert.True(t, apperr.IsUnauthorized(err))

	teams, err := svc.ListForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "t1", teams[0].ID)
}
