package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

type EvaluationHandler struct {
	gate services.SubmissionGate
}

func NewEvaluationHandler(gate services.SubmissionGate) *EvaluationHandler {
	return &EvaluationHandler{gate: gate}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return apperrors.Validation("Invalid request payload")
	}

	if req.EvaluationID == "" {
		return apperrors.Validation("evaluation_id is required")
	}

	evalID, err := uuid.Parse(req.EvaluationID)
	if err != nil {
		return apperrors.Validation("Invalid evaluation_id format")
	}

	eval, err := h.gate.RequestStart(c.UserContext(), evalID)
	if err != nil {
		return err
	}

	// Return immediately; the worker picks the job up.
	return c.Status(fiber.StatusAccepted).JSON(models.EvaluateResponse{
		Message:      "Evaluation has been queued.",
		EvaluationID: eval.ID.String(),
	})
}
