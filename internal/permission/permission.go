// Package permission decides what a user may do with prompts and teams. Every
// function is total: a nil user or nil resource yields false.
package permission

import "github.com/nikhilbhutani/promptkeeper/internal/models"

func IsSuperUser(u *models.User) bool {
	return u != nil && u.Role == models.RoleSuperUser
}

// CanEditPrompt grants edit rights to the creator, to super users, and to any
// member of the owning team of a team-shared prompt regardless of team role.
func CanEditPrompt(u *models.User, p *models.Prompt) bool {
	if u == nil || p == nil {
		return false
	}
	return IsSuperUser(u) || isOwner(u, p) || sameTeam(u, p)
}

// CanDeletePrompt follows the same rule as CanEditPrompt.
func CanDeletePrompt(u *models.User, p *models.Prompt) bool {
	return CanEditPrompt(u, p)
}

func CanViewPrompt(u *models.User, p *models.Prompt) bool {
	if u == nil || p == nil {
		return false
	}
	return IsSuperUser(u) || isOwner(u, p) || p.Sharing == models.SharingGlobal || sameTeam(u, p)
}

// CanManageTeam is true for super users and the team's admins.
func CanManageTeam(u *models.User, t *models.Team) bool {
	if u == nil || t == nil {
		return false
	}
	if IsSuperUser(u) {
		return true
	}
	m := t.Member(u.ID)
	return m != nil && m.Role == models.MemberAdmin
}

func isOwner(u *models.User, p *models.Prompt) bool {
	return u.ID != "" && p.CreatedBy == u.ID
}

func sameTeam(u *models.User, p *models.Prompt) bool {
	return p.Sharing == models.SharingTeam && p.TeamID != "" && p.TeamID == u.TeamID
}
