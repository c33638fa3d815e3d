package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	redisPopTimeout     = time.Second
	redisPromoteEvery   = time.Second
	redisPromoteBatch   = 100
	redisErrorBackoff   = 2 * time.Second
	redisRecoverBatches = 10000
)

// RedisQueue keeps jobs in Redis lists. A worker moves a job from the ready
// list to its own processing list with BLMOVE and removes it once the handler
// returns. Failed jobs wait in a sorted set scored by their due time.
type RedisQueue struct {
	client      *redis.Client
	name        string
	consumerID  string
	concurrency int
	policy      RetryPolicy
	log         logrus.FieldLogger
}

func NewRedisQueue(
	client *redis.Client,
	name string,
	consumerID string,
	concurrency int,
	policy RetryPolicy,
	log logrus.FieldLogger,
) *RedisQueue {
	if concurrency < 1 {
		concurrency = 1
	}

	return &RedisQueue{
		client:      client,
		name:        name,
		consumerID:  consumerID,
		concurrency: concurrency,
		policy:      policy,
		log:         log.WithFields(logrus.Fields{"component": "redis_queue", "queue": name}),
	}
}

func (q *RedisQueue) readyKey() string      { return "queue:" + q.name + ":ready" }
func (q *RedisQueue) delayedKey() string    { return "queue:" + q.name + ":delayed" }
func (q *RedisQueue) deadKey() string       { return "queue:" + q.name + ":dead" }
func (q *RedisQueue) processingKey() string { return "queue:" + q.name + ":processing:" + q.consumerID }

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.readyKey(), payload).Err()
}

// Consume implements Consumer.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.recoverOrphans(ctx); err != nil {
		return err
	}

	q.log.WithField("concurrency", q.concurrency).Info("🚀 Starting redis queue consumers")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.promoteLoop(ctx)
	}()

	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.processJobs(ctx, workerID, handler)
		}(i + 1)
	}

	wg.Wait()
	q.log.Info("✅ Redis queue consumers stopped")
	return nil
}

// recoverOrphans puts back jobs left in this consumer's processing list by a
// previous run that stopped mid-job.
func (q *RedisQueue) recoverOrphans(ctx context.Context) error {
	recovered := 0
	for i := 0; i < redisRecoverBatches; i++ {
		err := q.client.LMove(ctx, q.processingKey(), q.readyKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return err
		}
		recovered++
	}

	if recovered > 0 {
		q.log.WithField("count", recovered).Warn("♻️ Requeued jobs orphaned by a previous run")
	}
	return nil
}

func (q *RedisQueue) processJobs(ctx context.Context, workerID int, handler Handler) {
	log := q.log.WithField("worker", workerID)

	for ctx.Err() == nil {
		payload, err := q.client.BLMove(ctx, q.readyKey(), q.processingKey(), "RIGHT", "LEFT", redisPopTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("⚠️ Failed to pop job")
			sleepCtx(ctx, redisErrorBackoff)
			continue
		}

		q.deliver(ctx, log, payload, handler)
	}
}

func (q *RedisQueue) deliver(ctx context.Context, log logrus.FieldLogger, payload string, handler Handler) {
	// Acks use a fresh context so a shutdown does not strand the job in the processing list.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	job, err := DecodeJob([]byte(payload))
	if err != nil {
		log.WithError(err).Error("❌ Dropping undecodable job to dead list")
		q.bury(ackCtx, log, payload)
		return
	}

	log = log.WithFields(logrus.Fields{"evaluation_id": job.EvaluationID, "delivery": job.Delivery})

	handlerErr := runHandler(ctx, handler, job)
	switch {
	case handlerErr == nil:
		log.Debug("✅ Job acknowledged")
	case q.policy.ShouldRetry(job.Delivery):
		delay := q.policy.Backoff(job.Delivery)
		next := job
		next.Delivery++
		if err := q.delay(ackCtx, next, delay); err != nil {
			// Leave it in the processing list; the next start requeues it.
			log.WithError(err).Error("❌ Failed to schedule redelivery")
			return
		}
		log.WithError(handlerErr).WithField("retry_in", delay).Warn("⚠️ Job failed, scheduling redelivery")
	default:
		log.WithError(handlerErr).Warn("❌ Job failed on final delivery, moving to dead list")
		if err := q.client.LPush(ackCtx, q.deadKey(), payload).Err(); err != nil {
			log.WithError(err).Error("❌ Failed to move job to dead list")
			return
		}
	}

	if err := q.client.LRem(ackCtx, q.processingKey(), 1, payload).Err(); err != nil {
		log.WithError(err).Error("❌ Failed to acknowledge job")
	}
}

func (q *RedisQueue) bury(ctx context.Context, log logrus.FieldLogger, payload string) {
	if err := q.client.LPush(ctx, q.deadKey(), payload).Err(); err != nil {
		log.WithError(err).Error("❌ Failed to move job to dead list")
		return
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, payload).Err(); err != nil {
		log.WithError(err).Error("❌ Failed to acknowledge job")
	}
}

func (q *RedisQueue) delay(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due), Member: payload}).Err()
}

func (q *RedisQueue) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(redisPromoteEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.promoteDue(ctx, time.Now()); err != nil && ctx.Err() == nil {
				q.log.WithError(err).Warn("⚠️ Failed to promote delayed jobs")
			}
		}
	}
}

// promoteDue moves delayed jobs whose due time has passed onto the ready list.
// Only the caller whose ZREM removed the member pushes it, so concurrent
// consumers never duplicate a job.
func (q *RedisQueue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: redisPromoteBatch,
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(), member).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// Close implements Broker.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
