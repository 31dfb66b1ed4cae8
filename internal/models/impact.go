package models

import "time"

type AffectedTeam struct {
	TeamID      string          `json:"teamId"`
	TeamName    string          `json:"teamName"`
	MemberCount int             `json:"memberCount"`
	Assignment  *TeamAssignment `json:"assignment,omitempty"`
}

type AffectedUser struct {
	UserID     string     `json:"userId"`
	UserEmail  string     `json:"userEmail"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
}

// DeletionImpact is derived on demand and never persisted.
type DeletionImpact struct {
	PromptID         string         `json:"promptId"`
	Prompt           Prompt         `json:"prompt"`
	AffectedTeams    []AffectedTeam `json:"affectedTeams"`
	AffectedUsers    []AffectedUser `json:"affectedUsers"`
	UsageAnalytics   UsageAnalytics `json:"usageAnalytics"`
	TotalImpactScore int            `json:"totalImpactScore"`
	CanDelete        bool           `json:"canDelete"`
	Warnings         []string       `json:"warnings"`
}

type BulkDeletionImpact struct {
	Impacts            []DeletionImpact `json:"impacts"`
	TotalImpactScore   int              `json:"totalImpactScore"`
	TotalAffectedTeams int              `json:"totalAffectedTeams"`
	TotalAffectedUsers int              `json:"totalAffectedUsers"`
	HighImpactPrompts  []string         `json:"highImpactPrompts"`
	CanDeleteAll       bool             `json:"canDeleteAll"`
	Warnings           []string         `json:"warnings"`
}
