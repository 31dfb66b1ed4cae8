package models

import "encoding/json"

type BulkOperationType string

const (
	BulkDelete       BulkOperationType = "delete"
	BulkAddTags      BulkOperationType = "add-tags"
	BulkRemoveTags   BulkOperationType = "remove-tags"
	BulkAssignTeam   BulkOperationType = "assign-team"
	BulkUnassignTeam BulkOperationType = "unassign-team"
)

// BulkOperation carries a list of tags for the tag operations and a single
// team id for the team operations.
type BulkOperation struct {
	Type BulkOperationType `json:"type"`
	Data json.RawMessage   `json:"data,omitempty"`
}

type BulkFailure struct {
	PromptID string `json:"promptId"`
	Error    string `json:"error"`
}

// BulkResult partitions the input ids; every id lands in exactly one list.
type BulkResult struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}
