package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func prompt(id string, sharing models.Sharing, team string, age time.Duration) models.Prompt {
	return models.Prompt{ID: id, Sharing: sharing, TeamID: team, LastModified: t0.Add(-age)}
}

func ids(ps []models.Prompt) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestMergeVisibleDedupesAndOrders(t *testing.T) {
	own := []models.Prompt{
		prompt("a", models.SharingTeam, "t1", 3*time.Hour),
		prompt("b", models.SharingPrivate, "", time.Hour),
	}
	team := []models.Prompt{
		prompt("a", models.SharingTeam, "t1", 3*time.Hour),
		prompt("c", models.SharingTeam, "t1", 2*time.Hour),
	}
	global := []models.Prompt{
		prompt("d", models.SharingGlobal, "", 0),
		prompt("e", models.SharingGlobal, "", time.Hour),
	}

	got := MergeVisible(own, team, global)

	assert.Equal(t, []string{"d", "b", "e", "c", "a"}, ids(got))
}

func TestMergeVisibleFirstSnapshotWins(t *testing.T) {
	mine := prompt("a", models.SharingTeam, "t1", 0)
	mine.Title = "mine"
	theirs := mine
	theirs.Title = "stale"

	got := MergeVisible([]models.Prompt{mine}, []models.Prompt{theirs})

	assert.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Title)
}

func TestMergeVisibleEmpty(t *testing.T) {
	assert.Empty(t, MergeVisible())
	assert.NotNil(t, MergeVisible(nil, nil))
}

func TestFilters(t *testing.T) {
	all := []models.Prompt{
		prompt("a", models.SharingTeam, "t1", 0),
		prompt("b", models.SharingTeam, "t2", 0),
		prompt("c", models.SharingGlobal, "", 0),
		prompt("d", models.SharingPrivate, "", 0),
	}

	assert.Equal(t, []string{"a"}, ids(TeamShared(all, "t1")))
	assert.Empty(t, TeamShared(all, ""))
	assert.Equal(t, []string{"c"}, ids(Global(all)))
}
