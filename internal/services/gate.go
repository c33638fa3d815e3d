package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

// SubmissionGate decides whether a caller may start an evaluation and, if so,
// enqueues exactly one job for it.
type SubmissionGate interface {
	RequestStart(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
}

type submissionGate struct {
	evalRepo repositories.EvaluationRepository
	queue    queue.Queue
	log      logrus.FieldLogger
}

func NewSubmissionGate(evalRepo repositories.EvaluationRepository, q queue.Queue, log logrus.FieldLogger) SubmissionGate {
	return &submissionGate{
		evalRepo: evalRepo,
		queue:    q,
		log:      log.WithField("component", "gate"),
	}
}

// RequestStart admits PENDING evaluations and FAILED ones that used up their
// attempts. Admission is a conditional write to QUEUED, so two concurrent
// requests for the same evaluation enqueue at most one job.
func (g *submissionGate) RequestStart(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	eval, err := g.evalRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch eval.Status {
	case models.StatusPending:
	case models.StatusFailed:
		if !eval.Exhausted() {
			return nil, apperrors.Conflictf(
				"evaluation %s failed and is retried automatically (attempt %d of %d)",
				id, eval.AttemptsMade, models.MaxAttempts,
			)
		}
	case models.StatusQueued, models.StatusProcessing:
		return nil, apperrors.Conflictf("evaluation %s is already %s", id, eval.Status)
	case models.StatusCompleted:
		return nil, apperrors.Conflictf("evaluation %s is already completed", id)
	default:
		return nil, apperrors.Conflictf("evaluation %s has unknown status %s", id, eval.Status)
	}

	previous := eval.Status
	queued, err := g.evalRepo.UpdateStatus(ctx, id,
		[]models.EvaluationStatus{previous},
		repositories.StatusUpdate{Status: models.StatusQueued},
	)
	if err != nil {
		return nil, err
	}

	log := g.log.WithFields(logrus.Fields{"evaluation_id": id, "from": previous})

	if err := g.queue.Enqueue(ctx, queue.NewJob(id)); err != nil {
		log.WithError(err).Error("❌ Failed to enqueue evaluation, reverting status")
		g.revert(ctx, log, eval)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to enqueue evaluation")
	}

	log.Info("📥 Evaluation queued")
	return queued, nil
}

func (g *submissionGate) revert(ctx context.Context, log logrus.FieldLogger, previous *models.Evaluation) {
	update := repositories.StatusUpdate{Status: previous.Status}
	if previous.ErrorMessage != nil {
		update.ErrorMessage = *previous.ErrorMessage
	}

	_, err := g.evalRepo.UpdateStatus(context.WithoutCancel(ctx), previous.ID,
		[]models.EvaluationStatus{models.StatusQueued}, update)
	if err != nil {
		log.WithError(err).Error("❌ Failed to revert queued evaluation")
	}
}
