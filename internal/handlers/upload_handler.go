package handlers

import (
	"fmt"
	"mime/multipart"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluator-pipeline/internal/services"
)

const (
	fieldCV      = "cv"
	fieldProject = "project"
)

type UploadHandler struct {
	evalRepo       repositories.EvaluationRepository
	storageService services.StorageService
	maxFileSize    int64
	log            logrus.FieldLogger
}

func NewUploadHandler(
	evalRepo repositories.EvaluationRepository,
	storageService services.StorageService,
	maxFileSize int64,
	log logrus.FieldLogger,
) *UploadHandler {
	return &UploadHandler{
		evalRepo:       evalRepo,
		storageService: storageService,
		maxFileSize:    maxFileSize,
		log:            log.WithField("component", "upload"),
	}
}

type uploadPart struct {
	field    string
	fileType models.DocumentType
	header   *multipart.FileHeader
}

// HandleUpload handles POST /upload. Both files are required; the evaluation
// and its two documents are stored together or not at all.
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.Validation("failed to parse multipart form")
	}

	parts := []*uploadPart{
		{field: fieldCV, fileType: models.DocumentTypeCV},
		{field: fieldProject, fileType: models.DocumentTypeProject},
	}

	for _, part := range parts {
		files := form.File[part.field]
		if len(files) == 0 {
			return apperrors.Validation(fmt.Sprintf("missing file field '%s'. Expected fields: 'cv' and 'project'", part.field))
		}
		if len(files) > 1 {
			return apperrors.Validation(fmt.Sprintf("only one file allowed in field '%s'", part.field))
		}

		header := files[0]
		if header.Size > h.maxFileSize {
			return apperrors.Validation(fmt.Sprintf("%s file too large. Max size: %d bytes", part.field, h.maxFileSize))
		}
		if ext := filepath.Ext(header.Filename); !services.SupportedExtension(ext) {
			return apperrors.Newf(apperrors.ErrCodeUnsupportedFormat,
				"%s file has unsupported format %q: allowed .pdf, .docx, .doc, .txt", part.field, ext)
		}
		part.header = header
	}

	eval := &models.Evaluation{Status: models.StatusPending}
	var saved []string

	for _, part := range parts {
		filename, filePath, err := h.storageService.SaveFile(part.header, part.field)
		if err != nil {
			h.cleanup(saved)
			return err
		}
		saved = append(saved, filename)

		eval.Files = append(eval.Files, models.Document{
			Filename:         filename,
			OriginalFileName: part.header.Filename,
			FileType:         part.fileType,
			FilePath:         filePath,
			FileSize:         part.header.Size,
		})
	}

	if err := h.evalRepo.Create(c.UserContext(), eval); err != nil {
		h.cleanup(saved)
		return err
	}

	h.log.WithField("evaluation_id", eval.ID).Info("📤 Files uploaded")

	resp := models.UploadResponse{
		EvaluationID: eval.ID.String(),
		Status:       string(eval.Status),
	}
	for _, doc := range eval.Files {
		resp.Documents = append(resp.Documents, models.UploadedFile{
			ID:           doc.ID.String(),
			Filename:     doc.Filename,
			OriginalName: doc.OriginalFileName,
			FileType:     string(doc.FileType),
			FileSize:     doc.FileSize,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *UploadHandler) cleanup(filenames []string) {
	for _, name := range filenames {
		if err := h.storageService.DeleteFile(name); err != nil {
			h.log.WithError(err).WithField("file", name).Warn("⚠️  Failed to remove uploaded file")
		}
	}
}
