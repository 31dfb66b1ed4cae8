package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
	"github.com/nikhilbhutani/promptkeeper/internal/queue"
)

type BulkExecutor interface {
	Execute(ctx context.Context, actor *models.User, op models.BulkOperation, promptIDs []string) (models.BulkResult, error)
}

type UserLoader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type BulkWorker struct {
	executor BulkExecutor
	users    UserLoader
}

func NewBulkWorker(executor BulkExecutor, users UserLoader) *BulkWorker {
	return &BulkWorker{executor: executor, users: users}
}

// ProcessTask runs a deferred bulk operation as the user who requested it and
// stores the partition as the task result. Rejections of the whole operation
// are not retried.
func (w *BulkWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.BulkExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	slog.Info("processing bulk job", "job_id", payload.JobID, "operation", payload.Operation.Type, "items", len(payload.PromptIDs))

	user, err := w.users.GetUser(ctx, payload.UserID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return fmt.Errorf("load user %s: %v: %w", payload.UserID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("load user %s: %w", payload.UserID, err)
	}

	res, err := w.executor.Execute(ctx, user, payload.Operation, payload.PromptIDs)
	if err != nil {
		if apperr.IsValidation(err) || apperr.IsNotFound(err) || apperr.IsUnauthorized(err) {
			return fmt.Errorf("bulk job %s rejected: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("bulk job %s: %w", payload.JobID, err)
	}

	if rw := t.ResultWriter(); rw != nil {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal bulk result: %w", err)
		}
		if _, err := rw.Write(data); err != nil {
			return fmt.Errorf("write bulk result: %w", err)
		}
	}

	slog.Info("bulk job complete", "job_id", payload.JobID, "successful", len(res.Successful), "failed", len(res.Failed))
	return nil
}
