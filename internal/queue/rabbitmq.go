package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	deliveryHeader = "x-delivery"
	publishTimeout = 5 * time.Second
)

// RabbitQueue publishes jobs to a durable queue. A failed job is published to
// a retry queue with a per-message TTL; expired messages are dead-lettered
// back onto the main queue. Jobs that exhaust the policy land in a dead queue.
type RabbitQueue struct {
	conn        *amqp.Connection
	pubChannel  *amqp.Channel
	pubMu       sync.Mutex
	name        string
	concurrency int
	policy      RetryPolicy
	log         logrus.FieldLogger
}

func NewRabbitQueue(url, name string, concurrency int, policy RetryPolicy, log logrus.FieldLogger) (*RabbitQueue, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitQueue{
		conn:        conn,
		pubChannel:  ch,
		name:        name,
		concurrency: concurrency,
		policy:      policy,
		log:         log.WithFields(logrus.Fields{"component": "rabbitmq_queue", "queue": name}),
	}

	if err := q.declare(ch); err != nil {
		conn.Close()
		return nil, err
	}

	q.log.Info("✅ Connected to RabbitMQ and declared queues")
	return q, nil
}

func (q *RabbitQueue) retryName() string { return q.name + ".retry" }
func (q *RabbitQueue) deadName() string  { return q.name + ".dead" }

func (q *RabbitQueue) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		q.name, // queue name
		true,   // durable
		false,  // delete when unused
		false,  // exclusive
		false,  // no-wait
		nil,    // args
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
	}

	if _, err := ch.QueueDeclare(
		q.retryName(),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": q.name,
		},
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.retryName(), err)
	}

	if _, err := ch.QueueDeclare(q.deadName(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.deadName(), err)
	}

	return nil
}

// Enqueue implements Queue.
func (q *RabbitQueue) Enqueue(ctx context.Context, job Job) error {
	return q.publish(ctx, q.name, job, 0)
}

func (q *RabbitQueue) publish(ctx context.Context, routingKey string, job Job, ttl time.Duration) error {
	body, err := job.Encode()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{deliveryHeader: int32(job.Delivery)},
		Body:         body,
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	return q.pubChannel.PublishWithContext(
		ctx,
		"",         // exchange
		routingKey, // routing key
		false,
		false,
		msg,
	)
}

// Consume implements Consumer.
func (q *RabbitQueue) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(q.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	tag := "cv-evaluator-" + uuid.NewString()
	msgs, err := ch.Consume(
		q.name,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.log.WithField("concurrency", q.concurrency).Info("🚀 Starting rabbitmq consumers")

	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log := q.log.WithField("worker", workerID)
			for d := range msgs {
				q.deliver(ctx, log, d, handler)
			}
		}(i + 1)
	}

	<-ctx.Done()
	if err := ch.Cancel(tag, false); err != nil {
		q.log.WithError(err).Warn("⚠️ Failed to cancel consumer")
	}

	wg.Wait()
	q.log.Info("✅ RabbitMQ consumers stopped")
	return nil
}

func (q *RabbitQueue) deliver(ctx context.Context, log logrus.FieldLogger, d amqp.Delivery, handler Handler) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		log.WithError(err).Error("❌ Dropping undecodable job")
		_ = d.Nack(false, false)
		return
	}
	if n, ok := deliveryFromHeaders(d.Headers); ok {
		job.Delivery = n
	}

	log = log.WithFields(logrus.Fields{"evaluation_id": job.EvaluationID, "delivery": job.Delivery})

	handlerErr := runHandler(ctx, handler, job)
	if handlerErr == nil {
		log.Debug("✅ Job acknowledged")
		_ = d.Ack(false)
		return
	}

	pubCtx := context.WithoutCancel(ctx)

	if q.policy.ShouldRetry(job.Delivery) {
		delay := q.policy.Backoff(job.Delivery)
		next := job
		next.Delivery++
		if err := q.publish(pubCtx, q.retryName(), next, delay); err != nil {
			log.WithError(err).Error("❌ Failed to schedule redelivery, requeueing")
			_ = d.Nack(false, true)
			return
		}
		log.WithError(handlerErr).WithField("retry_in", delay).Warn("⚠️ Job failed, scheduling redelivery")
		_ = d.Ack(false)
		return
	}

	log.WithError(handlerErr).Warn("❌ Job failed on final delivery, moving to dead queue")
	if err := q.publish(pubCtx, q.deadName(), job, 0); err != nil {
		log.WithError(err).Error("❌ Failed to move job to dead queue")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func deliveryFromHeaders(headers amqp.Table) (int, bool) {
	switch v := headers[deliveryHeader].(type) {
	case int32:
		return int(v), v > 0
	case int64:
		return int(v), v > 0
	case int:
		return v, v > 0
	case int16:
		return int(v), v > 0
	case int8:
		return int(v), v > 0
	default:
		return 0, false
	}
}

// Close implements Broker.
func (q *RabbitQueue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if err := q.pubChannel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		q.log.WithError(err).Warn("⚠️ Failed to close channel")
	}
	return q.conn.Close()
}
