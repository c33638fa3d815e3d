package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

// Requeue re-publishes evaluations that are waiting for a delivery the queue
// no longer holds. The in-memory queue loses its jobs and retry timers on
// restart, so the API calls this once its embedded consumer is running.
// Extra deliveries are harmless: the claim only lets one of them run.
func Requeue(ctx context.Context, evalRepo repositories.EvaluationRepository, q queue.Queue, limit int, log logrus.FieldLogger) (int, error) {
	evals, err := evalRepo.FindRequeueable(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, eval := range evals {
		job := queue.NewJob(eval.ID)
		if eval.Status == models.StatusFailed {
			// Continue the retry budget where the lost timer left it.
			job.Delivery = eval.AttemptsMade + 1
		}

		if err := q.Enqueue(ctx, job); err != nil {
			return requeued, err
		}
		requeued++
	}

	if requeued > 0 {
		log.WithField("count", requeued).Info("📋 Requeued evaluations waiting for delivery")
	}
	return requeued, nil
}
