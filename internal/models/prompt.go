package models

import "time"

type Sharing string

const (
	SharingPrivate Sharing = "private"
	SharingTeam    Sharing = "team"
	SharingGlobal  Sharing = "global"
)

func (s Sharing) Valid() bool {
	switch s {
	case SharingPrivate, SharingTeam, SharingGlobal:
		return true
	}
	return false
}

type Prompt struct {
	ID            string     `json:"id" validate:"required"`
	Title         string     `json:"title" validate:"required,max=200"`
	Content       string     `json:"content" validate:"required"`
	Tags          []string   `json:"tags" validate:"dive,required,max=50"`
	Sharing       Sharing    `json:"sharing" validate:"required,oneof=private team global"`
	CreatedBy     string     `json:"createdBy"`
	TeamID        string     `json:"teamId,omitempty" validate:"required_if=Sharing team"`
	AssignedTeams []string   `json:"assignedTeams,omitempty"`
	UsageCount    int        `json:"usageCount,omitempty" validate:"gte=0"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastModified  time.Time  `json:"lastModified"`
	ModifiedBy    string     `json:"modifiedBy,omitempty"`
}

// HasTeam reports whether teamID is in the prompt's assigned teams.
func (p *Prompt) HasTeam(teamID string) bool {
	for _, t := range p.AssignedTeams {
		if t == teamID {
			return true
		}
	}
	return false
}

// TeamAssignment is the edge stored at prompt_assignments/{teamId}/{promptId}.
type TeamAssignment struct {
	TeamID     string    `json:"teamId"`
	PromptID   string    `json:"promptId"`
	AssignedBy string    `json:"assignedBy,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}
