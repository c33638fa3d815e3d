package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
)

type DocumentRepository interface {
	FindByEvaluationID(ctx context.Context, evaluationID uuid.UUID) ([]models.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// FindByEvaluationID implements DocumentRepository.
func (d *documentRepository) FindByEvaluationID(ctx context.Context, evaluationID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := d.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("file_type ASC").
		Find(&docs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientInfra, "failed to find documents")
	}

	return docs, nil
}
