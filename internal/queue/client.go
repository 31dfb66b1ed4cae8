package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/promptkeeper/internal/apperr"
	"github.com/nikhilbhutani/promptkeeper/internal/config"
	"github.com/nikhilbhutani/promptkeeper/internal/models"
)

// ResultRetention is how long finished bulk jobs stay queryable.
const ResultRetention = 24 * time.Hour

type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		client:    asynq.NewClient(RedisOpt(cfg)),
		inspector: asynq.NewInspector(RedisOpt(cfg)),
	}
}

func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}

func (c *Client) EnqueueBulkExecute(ctx context.Context, payload BulkExecutePayload) error {
	return c.enqueue(ctx, TypeBulkExecute, payload,
		asynq.TaskID(payload.JobID),
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(ResultRetention),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

// BulkJob reports the state of a deferred bulk operation.
type BulkJob struct {
	ID        string             `json:"id"`
	State     string             `json:"state"`
	UserID    string             `json:"userId"`
	Result    *models.BulkResult `json:"result,omitempty"`
	LastError string             `json:"lastError,omitempty"`
}

func (c *Client) BulkJob(jobID string) (*BulkJob, error) {
	info, err := c.inspector.GetTaskInfo(QueueDefault, jobID)
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, apperr.NotFound("bulk job %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect bulk job %s: %w", jobID, err)
	}
	return jobFromInfo(info)
}

func jobFromInfo(info *asynq.TaskInfo) (*BulkJob, error) {
	var payload BulkExecutePayload
	if err := json.Unmarshal(info.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode bulk job payload: %w", err)
	}
	job := &BulkJob{
		ID:        info.ID,
		State:     info.State.String(),
		UserID:    payload.UserID,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 {
		var res models.BulkResult
		if err := json.Unmarshal(info.Result, &res); err != nil {
			return nil, fmt.Errorf("decode bulk job result: %w", err)
		}
		job.Result = &res
	}
	return job, nil
}
