package subscription

import (
	"sort"

	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

// MergeVisible combines prompt snapshots (own, team, global) into one list.
// A prompt present in several snapshots appears once, taking the copy from the
// earliest snapshot. The result is ordered by lastModified, newest first, with
// id as tie-breaker.
func MergeVisible(snapshots ...[]models.Prompt) []models.Prompt {
	seen := make(map[string]bool)
	out := []models.Prompt{}
	for _, snap := range snapshots {
		for _, p := range snap {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TeamShared keeps the team-shared prompts owned by teamID.
func TeamShared(prompts []models.Prompt, teamID string) []models.Prompt {
	out := []models.Prompt{}
	if teamID == "" {
		return out
	}
	for _, p := range prompts {
		if p.Sharing == models.SharingTeam && p.TeamID == teamID {
			out = append(out, p)
		}
	}
	return out
}

// Global keeps the prompts shared with everyone.
func Global(prompts []models.Prompt) []models.Prompt {
	out := []models.Prompt{}
	for _, p := range prompts {
		if p.Sharing == models.SharingGlobal {
			out = append(out, p)
		}
	}
	return out
}
