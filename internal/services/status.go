package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

const (
	msgPending          = "Evaluation is still pending, please evaluate first"
	msgInProgressFormat = "Evaluation is in the %s, please wait"
	msgFailedRetrying   = "Evaluation failed, program will try to re-evaluate in a moment"
	msgFailedExhausted  = "Evaluation failed after multiple attempts. Please try starting a new evaluation."
)

// StatusService answers polling requests from the stored row alone.
type StatusService interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*models.ResultResponse, error)
}

type statusService struct {
	evalRepo repositories.EvaluationRepository
}

func NewStatusService(evalRepo repositories.EvaluationRepository) StatusService {
	return &statusService{evalRepo: evalRepo}
}

func (s *statusService) GetStatus(ctx context.Context, id uuid.UUID) (*models.ResultResponse, error) {
	eval, err := s.evalRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := &models.ResultResponse{
		ID:           eval.ID.String(),
		Status:       string(eval.Status),
		AttemptsMade: eval.AttemptsMade,
	}

	switch eval.Status {
	case models.StatusPending:
		resp.Message = msgPending
	case models.StatusQueued, models.StatusProcessing:
		resp.Message = fmt.Sprintf(msgInProgressFormat, eval.Status)
	case models.StatusFailed:
		if eval.Exhausted() {
			resp.Error = msgFailedExhausted
			resp.Exhausted = true
		} else {
			resp.Error = msgFailedRetrying
		}
	case models.StatusCompleted:
		resp.Result = eval.Result()
	}

	return resp, nil
}
