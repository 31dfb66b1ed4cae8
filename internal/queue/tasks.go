package queue

import "github.com/nikhilbhutani/promptkeeper/internal/models"

const (
	TypeBulkExecute = "bulk:execute"

	QueueDefault = "default"
)

// BulkExecutePayload is a bulk operation deferred to the worker. The task id
// equals JobID.
type BulkExecutePayload struct {
	JobID     string               `json:"jobId"`
	UserID    string               `json:"userId"`
	Operation models.BulkOperation `json:"operation"`
	PromptIDs []string             `json:"promptIds"`
}
