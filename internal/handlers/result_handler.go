package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

type ResultHandler struct {
	status services.StatusService
}

func NewResultHandler(status services.StatusService) *ResultHandler {
	return &ResultHandler{
		status: status,
	}
}

// HandleGetResult handles GET /result/:id
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	evalID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperrors.Validation("Invalid evaluation ID format")
	}

	response, err := h.status.GetStatus(c.UserContext(), evalID)
	if err != nil {
		return err
	}

	return c.JSON(response)
}
