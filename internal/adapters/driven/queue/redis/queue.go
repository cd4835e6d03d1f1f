package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferrule-labs/docstream-core/internal/core/domain"
	"github.com/ferrule-labs/docstream-core/internal/core/ports/driven"
)

const (
	// Stream names
	jobStream        = "docstream:jobs"
	jobGroup         = "docstream:workers"
	deadLetterStream = "docstream:dead"

	// Default consumer name prefix
	consumerPrefix = "worker-"

	// Claim timeout - how long before a claimed entry is considered abandoned
	defaultClaimMinIdle = 5 * time.Minute
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

// Queue implements JobQueue using Redis Streams.
// A consumer group gives at-least-once delivery: entries stay in the group's
// pending list until acknowledged, and entries abandoned by dead consumers
// are reclaimed on fetch. Exhausted entries move to a dead-letter stream.
type Queue struct {
	client       *redis.Client
	consumerName string
	claimMinIdle time.Duration
}

// QueueOption customises queue behaviour.
type QueueOption func(*Queue)

// WithClaimMinIdle sets how long an unacknowledged entry must sit idle before
// another consumer may reclaim it.
func WithClaimMinIdle(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.claimMinIdle = d
	}
}

// NewQueue creates a new Redis-backed job queue.
// The consumerName should be unique per worker instance (e.g., hostname + PID).
func NewQueue(client *redis.Client, consumerName string, opts ...QueueOption) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	q := &Queue{
		client:       client,
		consumerName: consumerName,
		claimMinIdle: defaultClaimMinIdle,
	}
	for _, opt := range opts {
		opt(q)
	}

	// Create consumer group if it doesn't exist
	ctx := context.Background()
	err := q.client.XGroupCreateMkStream(ctx, jobStream, jobGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

// Enqueue appends a job to the stream.
func (q *Queue) Enqueue(ctx context.Context, job *domain.JobEnvelope) error {
	if job == nil {
		return errors.New("job is required")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: jobStream,
		Values: map[string]interface{}{
			"job":         string(payload),
			"sha256":      job.ContentHash,
			"mime":        job.MimeType,
			"retry_count": "0",
			"enqueued_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// Fetch claims up to count entries for this consumer. Abandoned pending
// entries are reclaimed first; the remainder comes from new stream entries,
// blocking up to blockSeconds.
func (q *Queue) Fetch(ctx context.Context, count int, blockSeconds int) ([]*driven.JobDelivery, error) {
	if count <= 0 {
		count = 1
	}

	deliveries, err := q.claimAbandoned(ctx, count)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to reclaim pending entries: %w", err)
	}
	if len(deliveries) >= count {
		return deliveries, nil
	}

	// a non-positive blockSeconds reads without blocking; so does a fetch
	// that already reclaimed work
	blockDuration := time.Duration(-1)
	if blockSeconds > 0 && len(deliveries) == 0 {
		blockDuration = time.Duration(blockSeconds) * time.Second
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    jobGroup,
		Consumer: q.consumerName,
		Streams:  []string{jobStream, ">"},
		Count:    int64(count - len(deliveries)),
		Block:    blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return deliveries, nil // No new entries
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return deliveries, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			deliveries = append(deliveries, q.decodeMessage(msg, 0))
		}
	}

	return deliveries, nil
}

// Ack acknowledges an entry and deletes it from the stream. Without the
// delete, finished entries accumulate in the stream forever.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	pipe := q.client.Pipeline()
	pipe.XAck(ctx, jobStream, jobGroup, messageID)
	pipe.XDel(ctx, jobStream, messageID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack entry: %w", err)
	}
	return nil
}

// DeadLetter copies an entry to the dead-letter stream with the failure
// reason and acknowledges the original. The original payload fields ride
// along so dead entries can be inspected or re-submitted.
func (q *Queue) DeadLetter(ctx context.Context, delivery *driven.JobDelivery, reason string) error {
	if delivery == nil {
		return errors.New("delivery is required")
	}

	values := map[string]interface{}{
		"job":                 delivery.RawJob,
		"retry_count":         strconv.Itoa(delivery.RetryCount),
		"dlq_reason":          reason,
		"dlq_timestamp":       time.Now().UTC().Format(time.RFC3339),
		"original_stream":     jobStream,
		"original_message_id": delivery.MessageID,
	}
	if delivery.Job != nil {
		values["sha256"] = delivery.Job.ContentHash
		values["mime"] = delivery.Job.MimeType
	}

	pipe := q.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterStream,
		Values: values,
	})
	pipe.XAck(ctx, jobStream, jobGroup, delivery.MessageID)
	pipe.XDel(ctx, jobStream, delivery.MessageID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to dead-letter entry: %w", err)
	}
	return nil
}

// Stats returns stream depth counters.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	length, err := q.client.XLen(ctx, jobStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}

	groups, err := q.client.XInfoGroups(ctx, jobStream).Result()
	if err == nil {
		for _, group := range groups {
			if group.Name == jobGroup {
				stats.ProcessingCount = group.Pending
				break
			}
		}
	}

	// entries still in the stream minus those already claimed
	stats.PendingCount = length - stats.ProcessingCount
	if stats.PendingCount < 0 {
		stats.PendingCount = 0
	}

	deadLength, err := q.client.XLen(ctx, deadLetterStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get dead-letter length: %w", err)
	}
	stats.DeadLetterCount = deadLength

	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close cleans up resources.
func (q *Queue) Close() error {
	// Redis client is shared, don't close it here
	return nil
}

// claimAbandoned reclaims up to count pending entries whose claim has gone
// idle. The pending list's delivery counter carries each entry's retry count
// across consumers.
func (q *Queue) claimAbandoned(ctx context.Context, count int) ([]*driven.JobDelivery, error) {
	args := &redis.XPendingExtArgs{
		Stream: jobStream,
		Group:  jobGroup,
		Start:  "-",
		End:    "+",
		Count:  int64(count),
	}
	if q.claimMinIdle > 0 {
		args.Idle = q.claimMinIdle
	}

	pending, err := q.client.XPendingExt(ctx, args).Result()
	if err != nil {
		return nil, err
	}

	var deliveries []*driven.JobDelivery
	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   jobStream,
			Group:    jobGroup,
			Consumer: q.consumerName,
			MinIdle:  q.claimMinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		deliveries = append(deliveries, q.decodeMessage(claimed[0], int(p.RetryCount)))
		if len(deliveries) >= count {
			break
		}
	}

	return deliveries, nil
}

// decodeMessage turns one stream entry into a delivery. An undecodable
// payload is marked malformed so the worker can drop it.
func (q *Queue) decodeMessage(msg redis.XMessage, retryCount int) *driven.JobDelivery {
	delivery := &driven.JobDelivery{
		MessageID:  msg.ID,
		RetryCount: retryCount,
	}

	raw, ok := msg.Values["job"].(string)
	if !ok || raw == "" {
		delivery.Malformed = true
		return delivery
	}
	delivery.RawJob = raw

	var job domain.JobEnvelope
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ID == "" || job.SourceURI == "" {
		delivery.Malformed = true
		return delivery
	}
	delivery.Job = &job

	return delivery
}

// Helper functions

func isGroupExistsError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
