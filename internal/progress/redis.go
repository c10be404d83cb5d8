package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/formstream/backend/internal/models"
)

const (
	// Channel carries progress events between the worker and API processes.
	Channel = "ingest:progress"

	replayKeyPrefix = "ingest:progress:replay:"
	replayTTL       = time.Hour
	publishTimeout  = 5 * time.Second
)

// RedisBridge publishes progress events over Redis pub/sub and mirrors each
// job's replay log into a bounded Redis list, so subscribers attached to the
// API process can catch up on events the worker emitted before they connected.
type RedisBridge struct {
	rdb         *redis.Client
	replayLimit int
	logger      *slog.Logger
}

func NewRedisBridge(rdb *redis.Client, replayLimit int, logger *slog.Logger) *RedisBridge {
	if replayLimit <= 0 {
		replayLimit = DefaultReplayLimit
	}
	return &RedisBridge{rdb: rdb, replayLimit: replayLimit, logger: logger}
}

func replayKey(jobID string) string { return replayKeyPrefix + jobID }

// Publish encodes the event with msgpack, pushes it onto the job's replay
// list, and broadcasts it on the shared channel. Delivery failures are logged
// rather than surfaced: progress is advisory and must never fail an ingest.
func (b *RedisBridge) Publish(ev models.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	payload, err := msgpack.Marshal(ev)
	if err != nil {
		b.logger.Error("encoding progress event", slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	key := replayKey(ev.JobID)
	pipe := b.rdb.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-b.replayLimit), -1)
	pipe.Expire(ctx, key, replayTTL)
	pipe.Publish(ctx, Channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("publishing progress event",
			slog.String("job_id", ev.JobID),
			slog.Any("error", err))
	}
}

// History returns the job's replay log as stored in Redis, oldest first.
func (b *RedisBridge) History(ctx context.Context, jobID string) ([]models.ProgressEvent, error) {
	raw, err := b.rdb.LRange(ctx, replayKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading progress history: %w", err)
	}
	events := make([]models.ProgressEvent, 0, len(raw))
	for _, r := range raw {
		var ev models.ProgressEvent
		if err := msgpack.Unmarshal([]byte(r), &ev); err != nil {
			b.logger.Warn("skipping undecodable progress event", slog.Any("error", err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Relay subscribes to the shared channel and republishes every event into the
// local broadcaster. Runs until the context is cancelled. The API process
// runs this in a goroutine so worker-side progress reaches its SSE and
// WebSocket clients.
func (b *RedisBridge) Relay(ctx context.Context, local *Broadcaster) error {
	pubsub := b.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", Channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.ProgressEvent
			if err := msgpack.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("skipping undecodable progress event", slog.Any("error", err))
				continue
			}
			local.Publish(ev)
		}
	}
}

var _ Publisher = (*RedisBridge)(nil)
