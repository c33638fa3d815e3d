package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryQueue is an in-process queue backed by a buffered channel. Jobs do
// not survive a restart, so it is only meant for a single process running
// both the API and the worker.
type MemoryQueue struct {
	jobs        chan Job
	policy      RetryPolicy
	concurrency int
	log         logrus.FieldLogger

	mu       sync.Mutex
	timers   map[*time.Timer]struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMemoryQueue(buffer, concurrency int, policy RetryPolicy, log logrus.FieldLogger) *MemoryQueue {
	if buffer < 1 {
		buffer = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &MemoryQueue{
		jobs:        make(chan Job, buffer),
		policy:      policy,
		concurrency: concurrency,
		log:         log.WithField("component", "memory_queue"),
		timers:      make(map[*time.Timer]struct{}),
		stopChan:    make(chan struct{}),
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.stopChan:
		return ErrStopped
	default:
	}

	select {
	case q.jobs <- job:
		q.log.WithField("evaluation_id", job.EvaluationID).Debug("📥 Job enqueued")
		return nil
	case <-q.stopChan:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume implements Consumer. It blocks until ctx is cancelled or the queue
// is stopped, then waits for in-flight handlers to return.
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	q.log.WithField("concurrency", q.concurrency).Info("🚀 Starting memory queue consumers")

	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.processJobs(ctx, i+1, handler)
	}

	select {
	case <-ctx.Done():
	case <-q.stopChan:
	}

	q.wg.Wait()
	q.log.Info("✅ Memory queue consumers stopped")
	return nil
}

func (q *MemoryQueue) processJobs(ctx context.Context, workerID int, handler Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			q.deliver(ctx, workerID, job, handler)
		}
	}
}

func (q *MemoryQueue) deliver(ctx context.Context, workerID int, job Job, handler Handler) {
	log := q.log.WithFields(logrus.Fields{
		"worker":        workerID,
		"evaluation_id": job.EvaluationID,
		"delivery":      job.Delivery,
	})

	err := runHandler(ctx, handler, job)
	if err == nil {
		log.Debug("✅ Job acknowledged")
		return
	}

	if !q.policy.ShouldRetry(job.Delivery) {
		log.WithError(err).Warn("❌ Job failed on final delivery, dropping")
		return
	}

	delay := q.policy.Backoff(job.Delivery)
	log.WithError(err).WithField("retry_in", delay).Warn("⚠️ Job failed, scheduling redelivery")

	next := job
	next.Delivery++
	q.schedule(next, delay)
}

func (q *MemoryQueue) schedule(job Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.stopChan:
		return
	default:
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		select {
		case q.jobs <- job:
		case <-q.stopChan:
		}
	})
	q.timers[timer] = struct{}{}
}

// Stop cancels pending redeliveries and stops the consumers.
func (q *MemoryQueue) Stop() {
	q.stopOnce.Do(func() {
		q.log.Info("🛑 Stopping memory queue...")

		q.mu.Lock()
		close(q.stopChan)
		for timer := range q.timers {
			timer.Stop()
		}
		q.timers = make(map[*time.Timer]struct{})
		q.mu.Unlock()
	})
}

// Close implements Broker.
func (q *MemoryQueue) Close() error {
	q.Stop()
	return nil
}

// runHandler turns a handler panic into an ordinary failed delivery.
func runHandler(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}
