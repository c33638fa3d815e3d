package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	return client
}

func newTestRedisQueue(t *testing.T, policy RetryPolicy) *RedisQueue {
	t.Helper()

	client := redisTestClient(t)
	q := NewRedisQueue(client, "test-"+uuid.NewString(), "consumer-1", 2, policy, quietLogger())

	t.Cleanup(func() {
		ctx := context.Background()
		client.Del(ctx, q.readyKey(), q.delayedKey(), q.deadKey(), q.processingKey())
		_ = client.Close()
	})
	return q
}

func TestRedisQueue_RetryThenDead(t *testing.T) {
	q := newTestRedisQueue(t, RetryPolicy{MaxDeliveries: 2, BaseDelay: 10 * time.Millisecond})
	rec := &deliveryRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, func(ctx context.Context, job Job) error {
			rec.record(job)
			return errors.New("fails")
		})
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	require.Eventually(t, func() bool {
		n, err := q.client.LLen(context.Background(), q.deadKey()).Result()
		return err == nil && n == 1
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, []int{1, 2}, rec.snapshot())

	n, err := q.client.LLen(context.Background(), q.processingKey()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisQueue_PromoteDueOnlyOnce(t *testing.T) {
	q := newTestRedisQueue(t, DefaultRetryPolicy())
	ctx := context.Background()

	require.NoError(t, q.delay(ctx, NewJob(uuid.New()), -time.Second))
	require.NoError(t, q.delay(ctx, NewJob(uuid.New()), time.Hour))

	promoted, err := q.promoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	promoted, err = q.promoteDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, promoted)

	ready, err := q.client.LLen(ctx, q.readyKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
}

func TestRedisQueue_RecoversOrphans(t *testing.T) {
	q := newTestRedisQueue(t, DefaultRetryPolicy())
	ctx := context.Background()

	job := NewJob(uuid.New())
	payload, err := job.Encode()
	require.NoError(t, err)
	require.NoError(t, q.client.LPush(ctx, q.processingKey(), payload).Err())

	require.NoError(t, q.recoverOrphans(ctx))

	ready, err := q.client.LRange(ctx, q.readyKey(), 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{string(payload)}, ready)
}
