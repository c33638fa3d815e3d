package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

const reaperFailureMessage = "worker stopped before finishing"

type ReaperOptions struct {
	Evaluations repositories.EvaluationRepository
	// Queue receives a fresh delivery for reaped evaluations that have
	// attempts left. Without it they wait for the startup requeue sweep.
	Queue       queue.Queue
	Interval    time.Duration
	BatchSize   int
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// Reaper fails PROCESSING evaluations whose lease ran out, which is how a
// crashed worker becomes visible as FAILED. The delivery that crashed is gone
// from the queue by then, so the reaper publishes the next one itself.
type Reaper struct {
	evalRepo  repositories.EvaluationRepository
	queue     queue.Queue
	interval  time.Duration
	batchSize int
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewReaper(opts ReaperOptions) (*Reaper, error) {
	if opts.Evaluations == nil {
		return nil, errors.New("evaluation repository is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &Reaper{
		evalRepo:  opts.Evaluations,
		queue:     opts.Queue,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		log:       opts.Log.WithField("component", "reaper"),
		now:       opts.Now,
	}, nil
}

// Run reaps once immediately and then on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.log.WithField("interval", r.interval).Info("🧹 Reaper started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Error("❌ Reaper pass failed")
		}

		select {
		case <-ctx.Done():
			r.log.Info("🛑 Reaper stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReapOnce fails one batch of expired leases and returns how many it failed.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	now := r.now().UTC()

	expired, err := r.evalRepo.FindExpiredLeases(ctx, now, r.batchSize)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, eval := range expired {
		failed, err := r.evalRepo.UpdateStatus(ctx, eval.ID, nil, repositories.StatusUpdate{
			Status:               models.StatusFailed,
			ErrorMessage:         reaperFailureMessage,
			ReclaimExpiredBefore: &now,
		})
		if err != nil {
			if apperrors.IsConflict(err) || apperrors.IsNotFound(err) {
				// Finished or reclaimed since the scan.
				continue
			}
			return reaped, err
		}

		reaped++
		log := r.log.WithFields(logrus.Fields{
			"evaluation_id": failed.ID,
			"attempt":       failed.AttemptsMade,
		})
		log.Warn("⚠️  Lease expired, evaluation marked failed")

		if err := r.retry(ctx, failed); err != nil {
			log.WithError(err).Error("❌ Failed to requeue reaped evaluation")
		}
	}

	return reaped, nil
}

func (r *Reaper) retry(ctx context.Context, eval *models.Evaluation) error {
	if r.queue == nil || eval.Exhausted() {
		return nil
	}

	job := queue.NewJob(eval.ID)
	job.Delivery = eval.AttemptsMade + 1
	return r.queue.Enqueue(ctx, job)
}
