package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentType string

const (
	DocumentTypeCV      DocumentType = "CV"
	DocumentTypeProject DocumentType = "PROJECT"
)

type Document struct {
	ID               uuid.UUID    `gorm:"size:36;primaryKey" json:"id"`
	EvaluationID     uuid.UUID    `gorm:"size:36;not null;index" json:"evaluation_id"`
	Filename         string       `gorm:"type:text" json:"filename"`
	OriginalFileName string       `gorm:"type:text" json:"original_filename"`
	FileType         DocumentType `gorm:"type:varchar(10);not null" json:"file_type"`
	FilePath         string       `gorm:"type:text" json:"-"`
	FileSize         int64        `json:"file_size"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (d *Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
