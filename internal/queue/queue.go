// Package queue delivers evaluation jobs to workers with at-least-once
// semantics. Each driver redelivers a failed job with exponential backoff
// until the retry policy gives up.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrStopped is returned by Enqueue after the queue has been shut down.
var ErrStopped = errors.New("queue stopped")

// Job is the message carried by every driver.
type Job struct {
	EvaluationID uuid.UUID `json:"evaluation_id"`
	// Delivery is 1 on the first delivery and grows with each redelivery.
	Delivery   int       `json:"delivery"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func NewJob(evaluationID uuid.UUID) Job {
	return Job{
		EvaluationID: evaluationID,
		Delivery:     1,
		EnqueuedAt:   time.Now().UTC(),
	}
}

func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("invalid job payload: %w", err)
	}
	if job.EvaluationID == uuid.Nil {
		return Job{}, errors.New("invalid job payload: missing evaluation_id")
	}
	if job.Delivery < 1 {
		job.Delivery = 1
	}
	return job, nil
}

// Handler processes one delivery. A non-nil error asks the queue to
// redeliver according to its RetryPolicy.
type Handler func(ctx context.Context, job Job) error

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Consumer runs handler for every delivered job until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Broker is a driver that can both publish and consume.
type Broker interface {
	Queue
	Consumer
	Close() error
}

type RetryPolicy struct {
	MaxDeliveries int
	BaseDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxDeliveries: 3, BaseDelay: 5 * time.Second}
}

// Backoff returns the wait before the delivery that follows failed delivery n.
func (p RetryPolicy) Backoff(delivery int) time.Duration {
	if delivery < 1 {
		delivery = 1
	}
	shift := delivery - 1
	if shift > 16 {
		shift = 16
	}
	return p.BaseDelay * time.Duration(1<<shift)
}

// ShouldRetry reports whether a job whose delivery n failed gets another delivery.
func (p RetryPolicy) ShouldRetry(delivery int) bool {
	return delivery < p.MaxDeliveries
}
