package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type deliveryRecorder struct {
	mu         sync.Mutex
	deliveries []int
}

func (r *deliveryRecorder) record(job Job) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, job.Delivery)
	return len(r.deliveries)
}

func (r *deliveryRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.deliveries...)
}

func startConsumer(t *testing.T, q *MemoryQueue, handler Handler) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, handler)
	}()

	t.Cleanup(func() {
		cancel()
		q.Stop()
		<-done
	})
}

func TestMemoryQueue_DeliversJob(t *testing.T) {
	q := NewMemoryQueue(10, 2, RetryPolicy{MaxDeliveries: 3, BaseDelay: time.Millisecond}, quietLogger())
	rec := &deliveryRecorder{}

	startConsumer(t, q, func(ctx context.Context, job Job) error {
		rec.record(job)
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryQueue_RetriesWithIncreasingDelivery(t *testing.T) {
	q := NewMemoryQueue(10, 1, RetryPolicy{MaxDeliveries: 3, BaseDelay: 5 * time.Millisecond}, quietLogger())
	rec := &deliveryRecorder{}

	startConsumer(t, q, func(ctx context.Context, job Job) error {
		if rec.record(job) < 3 {
			return errors.New("model returned garbage")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, rec.snapshot())
}

func TestMemoryQueue_StopsAfterMaxDeliveries(t *testing.T) {
	q := NewMemoryQueue(10, 1, RetryPolicy{MaxDeliveries: 3, BaseDelay: time.Millisecond}, quietLogger())
	rec := &deliveryRecorder{}

	startConsumer(t, q, func(ctx context.Context, job Job) error {
		rec.record(job)
		return errors.New("always fails")
	})

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, rec.snapshot())
}

func TestMemoryQueue_PanicCountsAsFailure(t *testing.T) {
	q := NewMemoryQueue(10, 1, RetryPolicy{MaxDeliveries: 2, BaseDelay: time.Millisecond}, quietLogger())
	rec := &deliveryRecorder{}

	startConsumer(t, q, func(ctx context.Context, job Job) error {
		if rec.record(job) == 1 {
			panic("boom")
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMemoryQueue_EnqueueAfterStop(t *testing.T) {
	q := NewMemoryQueue(1, 1, DefaultRetryPolicy(), quietLogger())
	q.Stop()

	err := q.Enqueue(context.Background(), NewJob(uuid.New()))
	assert.ErrorIs(t, err, ErrStopped)
	assert.NoError(t, q.Close())
}

func TestMemoryQueue_EnqueueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1, 1, DefaultRetryPolicy(), quietLogger())
	defer q.Stop()

	require.NoError(t, q.Enqueue(context.Background(), NewJob(uuid.New())))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, NewJob(uuid.New()))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
