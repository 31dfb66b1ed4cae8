package models

import "time"

type DeletionBackup struct {
	PromptID        string           `json:"promptId"`
	PromptData      Prompt           `json:"promptData"`
	TeamAssignments []TeamAssignment `json:"teamAssignments"`
	DeletedAt       time.Time        `json:"deletedAt"`
	DeletedBy       string           `json:"deletedBy"`
	RestoredAt      *time.Time       `json:"restoredAt,omitempty"`
	RestoredBy      string           `json:"restoredBy,omitempty"`
}
