package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"
)

// ClientConfig tunes how ingestion tasks are enqueued.
type ClientConfig struct {
	RedisAddr string
	RedisDB   int
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

// Client enqueues ingestion tasks for the worker fleet.
type Client struct {
	client *asynq.Client
	cfg    ClientConfig
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB}),
		cfg:    cfg,
		logger: logger,
	}
}

// EnqueueIngest schedules the file for background ingestion and returns the
// asynq task id.
func (c *Client) EnqueueIngest(ctx context.Context, p IngestFilePayload) (string, error) {
	task, err := NewIngestFileTask(p)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueIngest),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Timeout(c.cfg.Timeout),
		asynq.Retention(c.cfg.Retention),
	)
	if err != nil {
		return "", fmt.Errorf("enqueueing ingest task: %w", err)
	}

	c.logger.Info("ingest task enqueued",
		slog.String("task_id", info.ID),
		slog.String("job_id", p.JobID),
		slog.String("document_id", p.DocumentID))
	return info.ID, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ServerConfig tunes the worker-side asynq server.
type ServerConfig struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
}

// NewServer builds the asynq server the worker binary runs. Retries back off
// exponentially; failures are logged with full task context.
func NewServer(cfg ServerConfig, logger *slog.Logger) *asynq.Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				QueueIngest: 10,
				"default":   1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(math.Pow(2, float64(n))) * time.Second
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				logger.Error("ingest task failed",
					slog.String("type", task.Type()),
					slog.Int("retried", retried),
					slog.Any("error", err))
			}),
			ShutdownTimeout: 30 * time.Second,
		},
	)
}
