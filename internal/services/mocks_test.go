package services

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

type mockReferences struct {
	mock.Mock
}

func (m *mockReferences) GetByKey(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) EvaluateCV(ctx context.Context, cvText, jobDescription, rubric string) (*CVEvaluation, error) {
	args := m.Called(ctx, cvText, jobDescription, rubric)
	eval, _ := args.Get(0).(*CVEvaluation)
	return eval, args.Error(1)
}

func (m *mockOrchestrator) EvaluateProject(ctx context.Context, projectText, rubric string) (*ProjectEvaluation, error) {
	args := m.Called(ctx, projectText, rubric)
	eval, _ := args.Get(0).(*ProjectEvaluation)
	return eval, args.Error(1)
}

func (m *mockOrchestrator) Summarize(ctx context.Context, cvMatchRate int, cvFeedback string, projectScore float64, projectFeedback string) (string, error) {
	args := m.Called(ctx, cvMatchRate, cvFeedback, projectScore, projectFeedback)
	return args.String(0), args.Error(1)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, job queue.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Evaluation{}, &models.Document{}))
	return db
}

func seedEvaluation(t *testing.T, db *gorm.DB, status models.EvaluationStatus, attempts int) *models.Evaluation {
	t.Helper()

	eval := &models.Evaluation{
		Status:       status,
		AttemptsMade: attempts,
		Files: []models.Document{
			{Filename: "cv.pdf", OriginalFileName: "cv.pdf", FileType: models.DocumentTypeCV, FilePath: "/uploads/cv.pdf"},
			{Filename: "project.docx", OriginalFileName: "project.docx", FileType: models.DocumentTypeProject, FilePath: "/uploads/project.docx"},
		},
	}
	require.NoError(t, db.Create(eval).Error)
	return eval
}

func setColumns(t *testing.T, db *gorm.DB, eval *models.Evaluation, columns map[string]interface{}) {
	t.Helper()
	require.NoError(t, db.Model(&models.Evaluation{}).Where("id = ?", eval.ID).Updates(columns).Error)
}

func reload(t *testing.T, db *gorm.DB, eval *models.Evaluation) *models.Evaluation {
	t.Helper()

	var fresh models.Evaluation
	require.NoError(t, db.Where("id = ?", eval.ID).First(&fresh).Error)
	return &fresh
}

// recordEnqueues accepts every job and returns a func listing them so far.
func recordEnqueues(q *mockQueue) func() []queue.Job {
	var mu sync.Mutex
	var jobs []queue.Job
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		mu.Lock()
		defer mu.Unlock()
		jobs = append(jobs, args.Get(1).(queue.Job))
	})
	return func() []queue.Job {
		mu.Lock()
		defer mu.Unlock()
		return append([]queue.Job(nil), jobs...)
	}
}
