// Package extractq is the Redis Streams job queue that decouples import
// submission from the long-running extraction call. Submit enqueues a job and
// returns immediately; a consumer-group worker picks the job up, calls the
// extraction service and delivers the result to the reconciler.
package extractq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Stream carries pending extraction jobs.
	Stream = "clinrec:extraction:jobs"
	// Group is the consumer group shared by extraction workers.
	Group = "extraction-workers"
)

// Job identifies one import whose source files need extraction.
type Job struct {
	ImportID   uuid.UUID `json:"import_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue publishes and consumes extraction jobs on a Redis stream.
type Queue struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New creates a Queue from a redis URL (redis://[:password@]host:port/db).
func New(redisURL string, logger zerolog.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Queue{rdb: redis.NewClient(opts), logger: logger}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(rdb *redis.Client, logger zerolog.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger}
}

// Client exposes the underlying redis client for health checks.
func (q *Queue) Client() *redis.Client { return q.rdb }

// Close releases the underlying connection.
func (q *Queue) Close() error { return q.rdb.Close() }

// Enqueue publishes a job for the given import.
func (q *Queue) Enqueue(ctx context.Context, importID uuid.UUID) error {
	job := Job{ImportID: importID, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal extraction job: %w", err)
	}
	id, err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: map[string]interface{}{"data": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue extraction job for import %s: %w", importID, err)
	}
	q.logger.Debug().Str("import_id", importID.String()).Str("stream_id", id).Msg("extraction job enqueued")
	return nil
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, Stream, Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Handler processes one extraction job. A non-nil error leaves the message
// pending for redelivery.
type Handler func(ctx context.Context, job Job) error

// Consume reads jobs for the named consumer until the context is canceled.
// Successfully handled messages are acknowledged; failed ones stay in the
// pending list.
func (q *Queue) Consume(ctx context.Context, consumer string, handle Handler) error {
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    Group,
			Consumer: consumer,
			Streams:  []string{Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error().Err(err).Msg("read extraction jobs")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				job, err := decodeJob(msg)
				if err != nil {
					// Poison message: ack so it does not clog the group.
					q.logger.Error().Err(err).Str("stream_id", msg.ID).Msg("discard malformed extraction job")
					q.rdb.XAck(ctx, Stream, Group, msg.ID)
					continue
				}
				if err := handle(ctx, job); err != nil {
					q.logger.Error().Err(err).Str("import_id", job.ImportID.String()).Msg("extraction job failed, leaving pending")
					continue
				}
				q.rdb.XAck(ctx, Stream, Group, msg.ID)
			}
		}
	}
}

func decodeJob(msg redis.XMessage) (Job, error) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return Job{}, fmt.Errorf("message %s has no data field", msg.ID)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job from message %s: %w", msg.ID, err)
	}
	if job.ImportID == uuid.Nil {
		return Job{}, fmt.Errorf("message %s has no import id", msg.ID)
	}
	return job, nil
}
