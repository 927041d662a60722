// Package queue coordinates the two durable job queues in Redis. Each queue
// has a ready list of job IDs; dequeued jobs move atomically into a shared
// in-flight ZSET scored by lease deadline, which gives each job at most one
// active worker at a time.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-content-pipeline/internal/models"
)

// RedisQueue is the queue client shared by the API (producer) and the
// workers (consumers).
type RedisQueue struct {
	client        *redis.Client
	inflightKey   string
	jobMetaPrefix string
	visibilityTTL time.Duration
}

// New builds a queue client. visibility bounds how long a dequeued job may
// hold its lease before it is considered abandoned; zero means 5 minutes,
// sized for slow article generation.
func New(client *redis.Client, visibility time.Duration) *RedisQueue {
	if visibility == 0 {
		visibility = 5 * time.Minute
	}
	return &RedisQueue{
		client:        client,
		inflightKey:   "queue:inflight",
		jobMetaPrefix: "queue:jobmeta:",
		visibilityTTL: visibility,
	}
}

// Visibility returns the lease duration granted on dequeue.
func (q *RedisQueue) Visibility() time.Duration {
	return q.visibilityTTL
}

func (q *RedisQueue) readyKey(queueName string) string {
	return fmt.Sprintf("queue:ready:%s", queueName)
}

func (q *RedisQueue) metaKey(jobID string) string {
	return q.jobMetaPrefix + jobID
}

// Enqueue appends a job ID to its queue's ready list. The source queue is
// kept in a meta hash so expired leases can be returned to the right list.
func (q *RedisQueue) Enqueue(ctx context.Context, queueName, jobID string) error {
	if !models.KnownQueue(queueName) {
		return fmt.Errorf("%w: %q", models.ErrUnknownQueue, queueName)
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(jobID), "queue", queueName)
	pipe.RPush(ctx, q.readyKey(queueName), jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// DequeueWithLease pops the oldest ready job across the given queues and
// places it in-flight with a visibility deadline. It returns "" when every
// queue is empty.
func (q *RedisQueue) DequeueWithLease(ctx context.Context, queueNames ...string) (string, error) {
	if len(queueNames) == 0 {
		queueNames = models.Queues
	}
	keys := make([]string, 0, len(queueNames)+1)
	for _, name := range queueNames {
		keys = append(keys, q.readyKey(name))
	}
	keys = append(keys, q.inflightKey)

	res, err := dequeueScript.Run(ctx, q.client, keys, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a finished job from in-flight tracking and drops its meta.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims jobs whose lease deadline passed, pushing each back
// onto its source queue. It returns the reclaimed IDs.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		queueName, err := q.client.HGet(ctx, q.metaKey(id), "queue").Result()
		if err != nil || !models.KnownQueue(queueName) {
			queueName = models.QueueContentOps
		}
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.RPush(ctx, q.readyKey(queueName), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// ReadyDepth returns the total length of the ready lists.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(models.Queues))
	for _, name := range models.Queues {
		cmds = append(cmds, pipe.LLen(ctx, q.readyKey(name)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	var total int64
	for _, c := range cmds {
		total += c.Val()
	}
	return total, nil
}

var dequeueScript = redis.NewScript(`
local inflight = KEYS[#KEYS]
for i=1,#KEYS-1 do
  local job = redis.call('LPOP', KEYS[i])
  if job then
    redis.call('ZADD', inflight, ARGV[1], job)
    return job
  end
end
return nil
`)
