package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
)

// EvaluationRepository is the status store. Every status write is conditional
// on the current status so that concurrent writers cannot overwrite each other.
// Attempts are only counted through StatusUpdate.IncrementAttempts, inside the
// same conditional write as the claim.
type EvaluationRepository interface {
	Create(ctx context.Context, eval *models.Evaluation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected []models.EvaluationStatus, update StatusUpdate) (*models.Evaluation, error)
	FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]models.Evaluation, error)
	FindRequeueable(ctx context.Context, limit int) ([]models.Evaluation, error)
}

type EvaluationUpdateData struct {
	CVMatchRate     int
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
	OverallSummary  string
}

// StatusUpdate describes one transition. Columns that must not survive the
// new status (result outside COMPLETED, error outside FAILED, lease outside
// PROCESSING) are cleared automatically.
type StatusUpdate struct {
	Status            models.EvaluationStatus
	Result            *EvaluationUpdateData
	ErrorMessage      string
	IncrementAttempts bool
	LeaseExpiresAt    *time.Time

	// ReclaimExpiredBefore matches PROCESSING rows whose lease expired before
	// this instant, in addition to the expected statuses (or alone when none
	// are given).
	ReclaimExpiredBefore *time.Time
}

type evaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Create inserts the evaluation together with its files in one transaction.
func (r *evaluationRepository) Create(ctx context.Context, eval *models.Evaluation) error {
	if err := r.db.WithContext(ctx).Create(eval).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to create evaluation")
	}
	return nil
}

func (r *evaluationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	var eval models.Evaluation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&eval).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("evaluation %s not found", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to find evaluation")
	}
	return &eval, nil
}

func (r *evaluationRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	expected []models.EvaluationStatus,
	update StatusUpdate,
) (*models.Evaluation, error) {
	query := r.db.WithContext(ctx).Model(&models.Evaluation{}).Where("id = ?", id)

	switch {
	case len(expected) > 0 && update.ReclaimExpiredBefore != nil:
		query = query.Where(
			"(status IN ? OR (status = ? AND lease_expires_at < ?))",
			expected, models.StatusProcessing, *update.ReclaimExpiredBefore,
		)
	case len(expected) > 0:
		query = query.Where("status IN ?", expected)
	case update.ReclaimExpiredBefore != nil:
		query = query.Where(
			"status = ? AND lease_expires_at < ?",
			models.StatusProcessing, *update.ReclaimExpiredBefore,
		)
	}

	result := query.Updates(buildUpdates(update))
	if result.Error != nil {
		return nil, apperrors.Wrap(result.Error, apperrors.ErrCodeTransientInfra, "failed to update status")
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if result.RowsAffected == 0 {
		return current, apperrors.Conflictf(
			"evaluation %s is %s, cannot move to %s", id, current.Status, update.Status,
		)
	}

	return current, nil
}

func (r *evaluationRepository) FindExpiredLeases(ctx context.Context, now time.Time, limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("status = ? AND lease_expires_at < ?", models.StatusProcessing, now).
		Order("lease_expires_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to find expired leases")
	}

	return evals, nil
}

// FindRequeueable returns QUEUED evaluations and FAILED ones with attempts
// left, oldest first. These are the rows that still expect a delivery.
func (r *evaluationRepository) FindRequeueable(ctx context.Context, limit int) ([]models.Evaluation, error) {
	var evals []models.Evaluation
	err := r.db.WithContext(ctx).
		Where("status = ? OR (status = ? AND attempts_made < ?)",
			models.StatusQueued, models.StatusFailed, models.MaxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&evals).Error

	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to find requeueable evaluations")
	}

	return evals, nil
}

func buildUpdates(update StatusUpdate) map[string]interface{} {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now(),
	}

	if update.IncrementAttempts {
		updates["attempts_made"] = gorm.Expr("attempts_made + ?", 1)
	}

	if update.Status == models.StatusCompleted && update.Result != nil {
		updates["cv_match_rate"] = update.Result.CVMatchRate
		updates["cv_feedback"] = update.Result.CVFeedback
		updates["project_score"] = update.Result.ProjectScore
		updates["project_feedback"] = update.Result.ProjectFeedback
		updates["overall_summary"] = update.Result.OverallSummary
	} else {
		updates["cv_match_rate"] = nil
		updates["cv_feedback"] = nil
		updates["project_score"] = nil
		updates["project_feedback"] = nil
		updates["overall_summary"] = nil
	}

	if update.Status == models.StatusFailed {
		updates["error_message"] = update.ErrorMessage
	} else {
		updates["error_message"] = nil
	}

	if update.Status == models.StatusProcessing && update.LeaseExpiresAt != nil {
		updates["lease_expires_at"] = *update.LeaseExpiresAt
	} else {
		updates["lease_expires_at"] = nil
	}

	return updates
}
