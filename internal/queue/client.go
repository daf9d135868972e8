package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talkinghead/internal/config"
)

// RedisOpt converts the shared redis settings into asynq's connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewClient returns a client whose generation tasks run for at most jobTimeout.
func NewClient(cfg config.RedisConfig, jobTimeout time.Duration) *Client {
	return &Client{
		client:  asynq.NewClient(RedisOpt(cfg)),
		timeout: jobTimeout,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueVideoGenerate queues a generation. Model runs are expensive and not
// idempotent, so failed tasks are never retried.
func (c *Client) EnqueueVideoGenerate(ctx context.Context, payload VideoGeneratePayload) error {
	opts := []asynq.Option{asynq.TaskID(payload.JobID), asynq.MaxRetry(0)}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}
	return c.enqueue(ctx, TypeVideoGenerate, payload, opts...)
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
