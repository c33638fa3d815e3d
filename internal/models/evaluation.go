package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EvaluationStatus string

const (
	StatusPending    EvaluationStatus = "PENDING"
	StatusQueued     EvaluationStatus = "QUEUED"
	StatusProcessing EvaluationStatus = "PROCESSING"
	StatusCompleted  EvaluationStatus = "COMPLETED"
	StatusFailed     EvaluationStatus = "FAILED"
)

// MaxAttempts is the number of worker executions after which a FAILED
// evaluation is considered exhausted and may be started again by the caller.
const MaxAttempts = 3

type Evaluation struct {
	ID              uuid.UUID        `gorm:"size:36;primaryKey" json:"id"`
	Status          EvaluationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	AttemptsMade    int              `gorm:"not null;default:0" json:"attempts_made"`
	CVMatchRate     *int             `gorm:"column:cv_match_rate" json:"cv_match_rate,omitempty"`
	CVFeedback      *string          `gorm:"column:cv_feedback;type:text" json:"cv_feedback,omitempty"`
	ProjectScore    *float64         `json:"project_score,omitempty"`
	ProjectFeedback *string          `gorm:"type:text" json:"project_feedback,omitempty"`
	OverallSummary  *string          `gorm:"type:text" json:"overall_summary,omitempty"`
	ErrorMessage    *string          `gorm:"type:text" json:"error_message,omitempty"`
	LeaseExpiresAt  *time.Time       `json:"lease_expires_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// Relations
	Files []Document `gorm:"foreignKey:EvaluationID" json:"files,omitempty"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}

func (e *Evaluation) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	return nil
}

// File returns the first attached document of the given type.
func (e *Evaluation) File(fileType DocumentType) (*Document, bool) {
	for i := range e.Files {
		if e.Files[i].FileType == fileType {
			return &e.Files[i], true
		}
	}
	return nil, false
}

// Exhausted reports whether the evaluation failed and used up its attempts.
func (e *Evaluation) Exhausted() bool {
	return e.Status == StatusFailed && e.AttemptsMade >= MaxAttempts
}

// Result returns the stored result payload, or nil unless the evaluation completed.
func (e *Evaluation) Result() *EvaluationData {
	if e.Status != StatusCompleted {
		return nil
	}
	return &EvaluationData{
		CVMatchRate:     derefInt(e.CVMatchRate),
		CVFeedback:      derefString(e.CVFeedback),
		ProjectScore:    derefFloat(e.ProjectScore),
		ProjectFeedback: derefString(e.ProjectFeedback),
		OverallSummary:  derefString(e.OverallSummary),
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
